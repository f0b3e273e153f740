package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-ledger/internal/ledger"
)

type fakeLedger struct {
	res   ledger.SweepResult
	err   error
	calls int
}

func (f *fakeLedger) CompleteExpired(context.Context) (ledger.SweepResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeRecorder struct {
	completed []int
	errs      []error
}

func (r *fakeRecorder) RecordSweep(n int, err error) {
	r.completed = append(r.completed, n)
	r.errs = append(r.errs, err)
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewSweeper("every now and then", &fakeLedger{}, nil, log)
	assert.Error(t, err)
}

func TestRunOnceRecords(t *testing.T) {
	log, hook := test.NewNullLogger()
	fl := &fakeLedger{res: ledger.SweepResult{Completed: []int64{1, 2}, Reconciled: 1}}
	rec := &fakeRecorder{}
	s, err := NewSweeper("@every 1m", fl, rec, log)
	require.NoError(t, err)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, res.Completed)
	assert.Equal(t, []int{2}, rec.completed)
	assert.Nil(t, rec.errs[0])
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "sweep finished", hook.LastEntry().Message)
}

func TestRunOnceFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	boom := errors.New("db down")
	rec := &fakeRecorder{}
	s, err := NewSweeper("@every 1m", &fakeLedger{err: boom}, rec, log)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, rec.errs[0], boom)
	assert.Equal(t, "sweep failed", hook.LastEntry().Message)
}

func TestSweepAgainstLedger(t *testing.T) {
	log, _ := test.NewNullLogger()
	l := ledger.New("0x00000000000000000000000000000000000000aa", ledger.WithLogger(log))
	s, err := NewSweeper("@every 1m", l, nil, log)
	require.NoError(t, err)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	s.Start()
	s.Stop(context.Background())
}
