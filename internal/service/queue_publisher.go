// Package service holds collaborators the ledger notifies after each commit.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/queue"
)

const (
	defaultBuffer      = 1024
	defaultDialTimeout = 2 * time.Second
	publishTimeout     = 5 * time.Second
	redialBackoff      = time.Second
)

// ErrQueueFull is reported when an event is dropped because the outbound
// buffer has no room.
var ErrQueueFull = errors.New("queue publisher: buffer full, event dropped")

// ErrPublisherClosed is returned by Notify after Close.
var ErrPublisherClosed = errors.New("queue publisher: closed")

// PublishRecorder is the metrics hook for publish attempts.
type PublishRecorder interface {
	RecordEventPublish(eventType string, err error)
}

// PublisherOption customises a QueuePublisher.
type PublisherOption func(*QueuePublisher)

// WithBuffer sets how many events may wait for delivery.
func WithBuffer(n int) PublisherOption {
	return func(p *QueuePublisher) {
		if n > 0 {
			p.events = make(chan ledger.Event, n)
		}
	}
}

// WithDialTimeout bounds the TCP connect and AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *QueuePublisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// QueuePublisher publishes ledger events to the ledger.events queue.
// Notify only enqueues; a single goroutine started by Start owns the broker
// connection, redials after any failure and drains the buffer. Events that
// do not fit in the buffer are dropped and counted.
type QueuePublisher struct {
	url         string
	log         logrus.FieldLogger
	metrics     PublishRecorder
	dialTimeout time.Duration

	events chan ledger.Event
	done   chan struct{}
	wg     sync.WaitGroup
	start  sync.Once
	stop   sync.Once

	// owned by the run goroutine
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

var _ ledger.Notifier = (*QueuePublisher)(nil)

// NewQueuePublisher returns a publisher for url. Nothing is dialed until
// Start runs and the first event arrives.
func NewQueuePublisher(url string, log logrus.FieldLogger, metrics PublishRecorder, opts ...PublisherOption) *QueuePublisher {
	p := &QueuePublisher{
		url:         url,
		log:         log.WithField("component", "queue-publisher"),
		metrics:     metrics,
		dialTimeout: defaultDialTimeout,
		events:      make(chan ledger.Event, defaultBuffer),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Notify implements ledger.Notifier. It never waits on the broker.
func (p *QueuePublisher) Notify(_ context.Context, ev ledger.Event) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	default:
		p.record(ev, ErrQueueFull)
		return ErrQueueFull
	}
}

// Start launches the delivery goroutine. Calling it twice is harmless.
func (p *QueuePublisher) Start() {
	p.start.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

// Close stops delivery and releases the broker connection. Events still
// buffered are discarded.
func (p *QueuePublisher) Close() {
	p.stop.Do(func() { close(p.done) })
	p.wg.Wait()
	p.closeConn()
}

func (p *QueuePublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.events:
			pub, err := buildPublishing(ev)
			if err == nil {
				err = p.publish(pub)
			}
			p.record(ev, err)
		}
	}
}

func (p *QueuePublisher) record(ev ledger.Event, err error) {
	if p.metrics != nil {
		p.metrics.RecordEventPublish(string(ev.Type), err)
	}
	if err != nil {
		p.log.WithError(err).WithField("event", ev.Type).Warn("publish failed")
	}
}

func buildPublishing(ev ledger.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(queue.FromLedger(ev))
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ev.At.UTC(),
		Body:         body,
	}, nil
}

func (p *QueuePublisher) publish(pub amqp.Publishing) error {
	if p.ch == nil || p.ch.IsClosed() {
		if err := p.dial(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, "", queue.LedgerQueueName, false, false, pub); err != nil {
		p.closeConn()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// dial opens a connection and declares the queue. After a failure it
// refuses to redial for redialBackoff so a dead broker drains the buffer
// quickly instead of costing one handshake timeout per event.
func (p *QueuePublisher) dial() error {
	if time.Now().Before(p.nextDial) {
		return errors.New("dial broker: backing off after failure")
	}
	p.closeConn()
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(p.dialTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		p.nextDial = time.Now().Add(redialBackoff)
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDial = time.Now().Add(redialBackoff)
		return fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(queue.LedgerQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.nextDial = time.Now().Add(redialBackoff)
		return fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *QueuePublisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
