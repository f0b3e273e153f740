package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-ledger/internal/clock"
	"github.com/iliyamo/parking-ledger/internal/money"
)

const (
	ownerAddr = Address("0x00000000000000000000000000000000000000aa")
	aliceAddr = Address("0x00000000000000000000000000000000000000a1")
	bobAddr   = Address("0x00000000000000000000000000000000000000b2")
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	l     *Ledger
	clock *clock.Manual
	owner context.Context
	alice context.Context
	bob   context.Context
}

// newFixture builds a ledger with location 1 "Downtown" holding spot A1 at
// 5.99/h, with the clock one hour before t0 and both users funded.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := clock.NewManual(t0.Add(-time.Hour))
	f := &fixture{
		clock: clk,
		owner: WithCaller(context.Background(), ownerAddr),
		alice: WithCaller(context.Background(), aliceAddr),
		bob:   WithCaller(context.Background(), bobAddr),
	}
	f.l = New(ownerAddr, append([]Option{WithClock(clk)}, opts...)...)

	id, err := f.l.AddLocation(f.owner, "Downtown", "123 Main St", money.MustParse("5.99"))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.NoError(t, f.l.AddSpot(f.owner, 1, "A1", 0, SpotStandard))

	_, err = f.l.Deposit(f.alice, money.MustParse("100.00"))
	require.NoError(t, err)
	_, err = f.l.Deposit(f.bob, money.MustParse("100.00"))
	require.NoError(t, err)
	return f
}

func (f *fixture) book(ctx context.Context, spot string, start time.Time, hours int64, pay string) (int64, Receipt, error) {
	return f.l.CreateReservation(ctx, CreateParams{
		LocationID:    1,
		SpotID:        spot,
		Start:         start,
		Hours:         hours,
		PaymentMethod: "crypto",
		Payment:       money.MustParse(pay),
	})
}

func TestDowntownScenario(t *testing.T) {
	f := newFixture(t)

	id, rc, err := f.book(f.alice, "A1", t0, 2, "12.00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, money.MustParse("11.98"), rc.Charged)
	assert.Equal(t, money.MustParse("0.02"), rc.Refunded)
	assert.Equal(t, rc.Paid, rc.Charged+rc.Refunded)

	r, err := f.l.Reservation(id)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("11.98"), r.TotalCost)
	assert.Equal(t, t0.Add(2*time.Hour), r.End)
	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, "crypto", r.PaymentMethod)
	assert.Equal(t, money.MustParse("88.02"), f.l.BalanceOf(aliceAddr))
	assert.Equal(t, money.MustParse("11.98"), f.l.Treasury().Balance)

	_, _, err = f.book(f.bob, "A1", t0.Add(time.Hour), 2, "12.00")
	assert.ErrorIs(t, err, ErrSpotUnavailable)
	assert.Equal(t, KindConflict, KindOf(err))

	adj, _, err := f.book(f.bob, "A1", t0.Add(2*time.Hour), 1, "5.99")
	require.NoError(t, err)
	assert.Equal(t, int64(2), adj)

	_, err = f.l.ExtendReservation(f.alice, id, 1, "crypto", money.MustParse("5.99"))
	assert.ErrorIs(t, err, ErrWindowConflict)
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = f.l.CancelReservation(f.bob, id)
	assert.ErrorIs(t, err, ErrNotOwner)
	r2, _ := f.l.Reservation(id)
	assert.Equal(t, r, r2)
}

func TestIsSpotAvailable(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.l.IsSpotAvailable(1, "A1", t0, 2))

	_, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.NoError(t, err)

	assert.False(t, f.l.IsSpotAvailable(1, "A1", t0, 1))
	assert.False(t, f.l.IsSpotAvailable(1, "A1", t0.Add(-30*time.Minute), 1))
	assert.True(t, f.l.IsSpotAvailable(1, "A1", t0.Add(2*time.Hour), 3))
	assert.True(t, f.l.IsSpotAvailable(1, "A1", t0.Add(-time.Hour), 1))

	assert.False(t, f.l.IsSpotAvailable(1, "A1", t0.Add(5*time.Hour), 0))
	assert.False(t, f.l.IsSpotAvailable(1, "B9", t0.Add(5*time.Hour), 1))
	assert.False(t, f.l.IsSpotAvailable(7, "A1", t0.Add(5*time.Hour), 1))

	require.NoError(t, f.l.SetLocationActive(f.owner, 1, false))
	assert.False(t, f.l.IsSpotAvailable(1, "A1", t0.Add(5*time.Hour), 1))
}

func TestCreateReservationFailuresLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	loc, _ := f.l.Location(1)
	bal := f.l.BalanceOf(aliceAddr)

	_, _, err := f.book(f.alice, "A1", t0, 2, "11.97")
	assert.ErrorIs(t, err, ErrInsufficientPayment)
	assert.Equal(t, KindInsufficientPayment, KindOf(err))

	_, _, err = f.book(f.alice, "A1", t0, 2, "500.00")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, KindInsufficientPayment, KindOf(err))

	_, _, err = f.book(f.alice, "A1", t0, 0, "12.00")
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, _, err = f.book(f.alice, "ZZ", t0, 1, "12.00")
	assert.ErrorIs(t, err, ErrSpotNotFound)
	_, _, err = f.l.CreateReservation(f.alice, CreateParams{LocationID: 9, SpotID: "A1", Start: t0, Hours: 1, Payment: 600})
	assert.ErrorIs(t, err, ErrLocationNotFound)
	_, _, err = f.l.CreateReservation(context.Background(), CreateParams{LocationID: 1, SpotID: "A1", Start: t0, Hours: 1, Payment: 600})
	assert.ErrorIs(t, err, ErrUnauthorized)

	loc2, _ := f.l.Location(1)
	assert.Equal(t, loc, loc2)
	assert.Equal(t, bal, f.l.BalanceOf(aliceAddr))
	assert.Empty(t, f.l.UserReservations(aliceAddr))
	assert.Equal(t, money.Zero, f.l.Treasury().Balance)
}

func TestInactiveLocation(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.book(f.alice, "A1", t0, 1, "5.99")
	require.NoError(t, err)

	require.NoError(t, f.l.SetLocationActive(f.owner, 1, false))
	_, _, err = f.book(f.bob, "A1", t0.Add(3*time.Hour), 1, "5.99")
	assert.ErrorIs(t, err, ErrLocationInactive)
	err = f.l.AddSpot(f.owner, 1, "A2", 0, SpotElectric)
	assert.ErrorIs(t, err, ErrLocationInactive)

	_, err = f.l.ExtendReservation(f.alice, id, 1, "", money.MustParse("5.99"))
	assert.NoError(t, err)
}

func TestAvailableCounterTracksNow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.AddSpot(f.owner, 1, "A2", money.MustParse("7.50"), SpotElectric))
	loc, _ := f.l.Location(1)
	assert.Equal(t, 2, loc.TotalSpots)
	assert.Equal(t, 2, loc.AvailableSpots)

	// future booking leaves the counter alone
	_, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.NoError(t, err)
	loc, _ = f.l.Location(1)
	assert.Equal(t, 2, loc.AvailableSpots)

	// booking covering now takes the spot
	id, _, err := f.book(f.bob, "A2", t0.Add(-90*time.Minute), 1, "7.50")
	require.NoError(t, err)
	loc, _ = f.l.Location(1)
	assert.Equal(t, 1, loc.AvailableSpots)
	avail, err := f.l.AvailableSpots(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, avail)

	// cancelling the current occupant releases it
	_, err = f.l.CancelReservation(f.bob, id)
	require.NoError(t, err)
	loc, _ = f.l.Location(1)
	assert.Equal(t, 2, loc.AvailableSpots)

	window, err := f.l.AvailableSpotsFor(1, t0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, window)
}

func TestSpotRateOverridesBase(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.AddSpot(f.owner, 1, "E1", money.MustParse("8.00"), SpotElectric))
	_, rc, err := f.book(f.alice, "E1", t0, 3, "30.00")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("24.00"), rc.Charged)
	assert.Equal(t, money.MustParse("6.00"), rc.Refunded)
}

func TestExtendReservation(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.NoError(t, err)

	rc, err := f.l.ExtendReservation(f.alice, id, 1, "card", money.MustParse("6.00"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("5.99"), rc.Charged)
	assert.Equal(t, money.MustParse("0.01"), rc.Refunded)

	r, _ := f.l.Reservation(id)
	assert.Equal(t, t0.Add(3*time.Hour), r.End)
	assert.Equal(t, money.MustParse("17.97"), r.TotalCost)
	assert.Equal(t, "card", r.PaymentMethod)

	_, err = f.l.ExtendReservation(f.bob, id, 1, "", money.MustParse("6.00"))
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.l.ExtendReservation(f.alice, 99, 1, "", money.MustParse("6.00"))
	assert.ErrorIs(t, err, ErrReservationNotFound)
	_, err = f.l.ExtendReservation(f.alice, id, 1, "", money.MustParse("5.98"))
	assert.ErrorIs(t, err, ErrInsufficientPayment)
	_, err = f.l.ExtendReservation(f.alice, id, -1, "", money.MustParse("5.98"))
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.l.CancelReservation(f.alice, id)
	require.NoError(t, err)
	_, err = f.l.ExtendReservation(f.alice, id, 1, "", money.MustParse("6.00"))
	assert.ErrorIs(t, err, ErrReservationNotActive)
}

func TestCancelReservationRefunds(t *testing.T) {
	t.Run("full before start", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
		require.NoError(t, err)

		rc, err := f.l.CancelReservation(f.alice, id)
		require.NoError(t, err)
		assert.Equal(t, money.MustParse("11.98"), rc.Refunded)
		assert.Equal(t, money.MustParse("100.00"), f.l.BalanceOf(aliceAddr))
		assert.Equal(t, money.Zero, f.l.Treasury().Balance)

		r, _ := f.l.Reservation(id)
		assert.Equal(t, StatusCancelled, r.Status)
		assert.Equal(t, money.MustParse("11.98"), r.Refunded)

		_, err = f.l.CancelReservation(f.alice, id)
		assert.ErrorIs(t, err, ErrAlreadyCancelled)
		assert.Equal(t, KindInvalidState, KindOf(err))
	})

	t.Run("nothing after start", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
		require.NoError(t, err)
		f.clock.Set(t0.Add(30 * time.Minute))

		rc, err := f.l.CancelReservation(f.alice, id)
		require.NoError(t, err)
		assert.Equal(t, money.Zero, rc.Refunded)
		assert.Equal(t, money.MustParse("11.98"), rc.Charged)
		assert.Equal(t, money.MustParse("11.98"), f.l.Treasury().Withdrawable)
	})

	t.Run("prorated", func(t *testing.T) {
		f := newFixture(t, WithRefundPolicy(Prorated))
		id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
		require.NoError(t, err)
		f.clock.Set(t0.Add(time.Hour))

		rc, err := f.l.CancelReservation(f.alice, id)
		require.NoError(t, err)
		assert.Equal(t, money.MustParse("5.99"), rc.Refunded)
	})

	t.Run("owner override", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
		require.NoError(t, err)
		_, err = f.l.CancelReservation(f.owner, id)
		require.NoError(t, err)
		assert.Equal(t, money.MustParse("100.00"), f.l.BalanceOf(aliceAddr))
	})
}

func TestCompleteReservation(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.NoError(t, err)

	elapsed, err := f.l.IsReservationElapsed(id)
	require.NoError(t, err)
	assert.False(t, elapsed)
	assert.ErrorIs(t, f.l.CompleteReservation(context.Background(), id), ErrWindowNotElapsed)

	f.clock.Set(t0.Add(2 * time.Hour))
	elapsed, _ = f.l.IsReservationElapsed(id)
	assert.True(t, elapsed)

	require.NoError(t, f.l.CompleteReservation(context.Background(), id))
	r, _ := f.l.Reservation(id)
	require.NoError(t, f.l.CompleteReservation(context.Background(), id))
	r2, _ := f.l.Reservation(id)
	assert.Equal(t, StatusCompleted, r2.Status)
	assert.Equal(t, r, r2)

	_, err = f.l.CancelReservation(f.alice, id)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	id2, _, err := f.book(f.alice, "A1", t0.Add(3*time.Hour), 1, "5.99")
	require.NoError(t, err)
	_, err = f.l.CancelReservation(f.alice, id2)
	require.NoError(t, err)
	assert.ErrorIs(t, f.l.CompleteReservation(context.Background(), id2), ErrAlreadyCancelled)
	assert.ErrorIs(t, f.l.CompleteReservation(context.Background(), 404), ErrReservationNotFound)
}

func TestCompleteExpiredSweep(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.AddSpot(f.owner, 1, "A2", 0, SpotHandicap))
	first, _, err := f.book(f.alice, "A1", t0, 1, "5.99")
	require.NoError(t, err)
	second, _, err := f.book(f.bob, "A2", t0, 3, "17.97")
	require.NoError(t, err)

	// both windows cover t0+30m but the counter was computed an hour before
	f.clock.Set(t0.Add(30 * time.Minute))
	res, err := f.l.CompleteExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	assert.Equal(t, 2, res.Reconciled)
	loc, _ := f.l.Location(1)
	assert.Equal(t, 0, loc.AvailableSpots)

	f.clock.Set(t0.Add(90 * time.Minute))
	res, err = f.l.CompleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{first}, res.Completed)
	loc, _ = f.l.Location(1)
	assert.Equal(t, 1, loc.AvailableSpots)

	res, err = f.l.CompleteExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	assert.Zero(t, res.Reconciled)

	r, _ := f.l.Reservation(second)
	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, money.MustParse("5.99"), f.l.Treasury().Withdrawable)
}

func TestUserReservationsHistory(t *testing.T) {
	f := newFixture(t)
	a, _, err := f.book(f.alice, "A1", t0, 1, "5.99")
	require.NoError(t, err)
	b, _, err := f.book(f.bob, "A1", t0.Add(time.Hour), 1, "5.99")
	require.NoError(t, err)
	c, _, err := f.book(f.alice, "A1", t0.Add(2*time.Hour), 1, "5.99")
	require.NoError(t, err)
	_, err = f.l.CancelReservation(f.alice, a)
	require.NoError(t, err)

	assert.Equal(t, []int64{a, c}, f.l.UserReservations(aliceAddr))
	assert.Equal(t, []int64{b}, f.l.UserReservations(bobAddr))
	assert.Empty(t, f.l.UserReservations(Address("0x0000000000000000000000000000000000000000")))
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.AddLocation(f.alice, "Rogue", "nowhere", 100)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.l.AddLocation(f.owner, " ", "x", 100)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = f.l.AddLocation(f.owner, "Free", "x", 0)
	assert.ErrorIs(t, err, ErrInvalidRate)

	id, err := f.l.AddLocation(f.owner, "City Center Garage", "456 Park Ave", money.MustParse("8.50"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	assert.Equal(t, []int64{1, 2}, f.l.LocationIDs())

	assert.ErrorIs(t, f.l.AddSpot(f.owner, 1, "A1", 0, SpotStandard), ErrDuplicateSpot)
	assert.ErrorIs(t, f.l.AddSpot(f.owner, 9, "A1", 0, SpotStandard), ErrLocationNotFound)
	assert.ErrorIs(t, f.l.AddSpot(f.owner, 2, "bad id!", 0, SpotStandard), ErrInvalidSpotID)
	assert.ErrorIs(t, f.l.AddSpot(f.owner, 2, "P1", 0, SpotType("valet")), ErrInvalidSpotType)
	assert.ErrorIs(t, f.l.AddSpot(f.alice, 2, "P1", 0, SpotStandard), ErrUnauthorized)
	assert.ErrorIs(t, f.l.SetLocationActive(f.owner, 9, false), ErrLocationNotFound)

	s, err := f.l.Spot(1, "A1")
	require.NoError(t, err)
	assert.Equal(t, SpotStandard, s.Type)
	assert.True(t, s.Available)
	_, err = f.l.Spot(1, "nope")
	assert.ErrorIs(t, err, ErrSpotNotFound)
}

func TestRemoveSpot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.AddSpot(f.owner, 1, "A2", 0, SpotStandard))
	id, _, err := f.book(f.alice, "A1", t0, 1, "5.99")
	require.NoError(t, err)

	assert.ErrorIs(t, f.l.RemoveSpot(f.owner, 1, "A1"), ErrSpotInUse)
	assert.ErrorIs(t, f.l.RemoveSpot(f.owner, 1, "Q7"), ErrSpotNotFound)
	assert.ErrorIs(t, f.l.RemoveSpot(f.alice, 1, "A2"), ErrUnauthorized)

	require.NoError(t, f.l.RemoveSpot(f.owner, 1, "A2"))
	loc, _ := f.l.Location(1)
	assert.Equal(t, 1, loc.TotalSpots)
	assert.Equal(t, 1, loc.AvailableSpots)

	f.clock.Set(t0.Add(time.Hour))
	require.NoError(t, f.l.RemoveSpot(f.owner, 1, "A1"))
	spots, err := f.l.Spots(1)
	require.NoError(t, err)
	assert.Empty(t, spots)

	r, err := f.l.Reservation(id)
	require.NoError(t, err)
	assert.Equal(t, "A1", r.SpotID)
}

func TestTreasuryWithdraw(t *testing.T) {
	f := newFixture(t)
	first, _, err := f.book(f.alice, "A1", t0, 1, "5.99")
	require.NoError(t, err)
	_, _, err = f.book(f.bob, "A1", t0.Add(time.Hour), 1, "5.99")
	require.NoError(t, err)

	st := f.l.Treasury()
	assert.Equal(t, money.MustParse("11.98"), st.Balance)
	assert.Equal(t, money.MustParse("11.98"), st.Escrowed)
	assert.Equal(t, money.Zero, st.Withdrawable)

	_, err = f.l.WithdrawTreasury(f.owner, 1)
	assert.ErrorIs(t, err, ErrTreasuryInsufficient)

	f.clock.Set(t0.Add(time.Hour))
	require.NoError(t, f.l.CompleteReservation(context.Background(), first))

	_, err = f.l.WithdrawTreasury(f.alice, 100)
	assert.ErrorIs(t, err, ErrUnauthorized)

	st, err = f.l.WithdrawTreasury(f.owner, money.MustParse("5.00"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("6.98"), st.Balance)
	assert.Equal(t, money.MustParse("0.99"), st.Withdrawable)
	assert.Equal(t, money.MustParse("5.00"), f.l.BalanceOf(ownerAddr))
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	bal, err := f.l.Deposit(f.alice, money.MustParse("0.50"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("100.50"), bal)

	_, err = f.l.Deposit(f.alice, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.l.Deposit(context.Background(), 100)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConcurrentBookingsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	const n = 32
	users := make([]context.Context, n)
	for i := range users {
		addr := Address(fmt.Sprintf("0x%040x", 0x100+i))
		users[i] = WithCaller(context.Background(), addr)
		_, err := f.l.Deposit(users[i], money.MustParse("50.00"))
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(ctx context.Context, offset int) {
			defer wg.Done()
			_, _, err := f.book(ctx, "A1", t0.Add(time.Duration(offset%2)*30*time.Minute), 2, "11.98")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSpotUnavailable):
				conflict++
			}
		}(users[i], i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflict)
	assert.Equal(t, money.MustParse("11.98"), f.l.Treasury().Balance)
}

type failingStore struct {
	nopStore
	fail bool
	n    int
}

func (s *failingStore) Commit(_ context.Context, cs ChangeSet) error {
	if s.fail {
		return errors.New("connection reset")
	}
	s.n++
	return nil
}

func TestCommitFailureLeavesMemoryUntouched(t *testing.T) {
	st := &failingStore{}
	f := newFixture(t, WithStore(st))
	commits := st.n

	st.fail = true
	_, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, errors.Is(err, ErrSpotUnavailable))

	assert.Empty(t, f.l.UserReservations(aliceAddr))
	assert.Equal(t, money.MustParse("100.00"), f.l.BalanceOf(aliceAddr))
	assert.True(t, f.l.IsSpotAvailable(1, "A1", t0, 2))

	st.fail = false
	id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, commits+1, st.n)
}

type memStore struct {
	snap Snapshot
}

func (m *memStore) Load(context.Context) (Snapshot, error) { return m.snap, nil }

func (m *memStore) Commit(_ context.Context, cs ChangeSet) error {
	m.snap.Locations = upsert(m.snap.Locations, cs.Locations, func(l Location) int64 { return l.ID })
	m.snap.Reservations = upsert(m.snap.Reservations, cs.Reservations, func(r Reservation) int64 { return r.ID })
	for _, k := range cs.RemovedSpots {
		for i, s := range m.snap.Spots {
			if s.Key() == k {
				m.snap.Spots = append(m.snap.Spots[:i], m.snap.Spots[i+1:]...)
				break
			}
		}
	}
	for _, s := range cs.Spots {
		found := false
		for i := range m.snap.Spots {
			if m.snap.Spots[i].Key() == s.Key() {
				m.snap.Spots[i], found = s, true
			}
		}
		if !found {
			m.snap.Spots = append(m.snap.Spots, s)
		}
	}
	if m.snap.Balances == nil {
		m.snap.Balances = map[Address]money.Cents{}
	}
	for a, v := range cs.Balances {
		m.snap.Balances[a] = v
	}
	if cs.Treasury != nil {
		m.snap.Treasury = *cs.Treasury
	}
	return nil
}

func upsert[T any](dst, src []T, id func(T) int64) []T {
	for _, v := range src {
		found := false
		for i := range dst {
			if id(dst[i]) == id(v) {
				dst[i], found = v, true
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func TestRestoreRebuildsIndexes(t *testing.T) {
	st := &memStore{}
	f := newFixture(t, WithStore(st))
	id, _, err := f.book(f.alice, "A1", t0, 2, "11.98")
	require.NoError(t, err)

	restored := New(ownerAddr, WithStore(st), WithClock(f.clock))
	require.NoError(t, restored.Restore(context.Background()))

	assert.Equal(t, []int64{id}, restored.UserReservations(aliceAddr))
	assert.False(t, restored.IsSpotAvailable(1, "A1", t0, 1))
	assert.Equal(t, f.l.BalanceOf(aliceAddr), restored.BalanceOf(aliceAddr))
	assert.Equal(t, f.l.Treasury(), restored.Treasury())

	next, err := restored.AddLocation(f.owner, "Riverside Parking", "789 River Rd", money.MustParse("4.25"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestNotifierReceivesCommittedEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	rec := NotifierFunc(func(_ context.Context, ev Event) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return errors.New("broker down")
	})
	f := newFixture(t, WithNotifier(rec))
	_, _, err := f.book(f.alice, "A1", t0, 1, "5.99")
	require.NoError(t, err)
	_, _, err = f.book(f.bob, "A1", t0, 1, "5.99")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	last := events[len(events)-1]
	assert.Equal(t, EventReservationCreated, last.Type)
	assert.Equal(t, aliceAddr, last.User)
	assert.NotEmpty(t, last.ID)
	for _, ev := range events {
		if ev.Type == EventReservationCreated {
			assert.Equal(t, aliceAddr, ev.User)
		}
	}
}

func TestTextLimitsMatchColumns(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.AddLocation(f.owner, strings.Repeat("n", 256), "x", 100)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	_, err = f.l.AddLocation(f.owner, "Lot", strings.Repeat("a", 256), 100)
	assert.ErrorIs(t, err, ErrInvalidLocationAddress)
	// characters, not bytes
	id, err := f.l.AddLocation(f.owner, strings.Repeat("é", 255), strings.Repeat("ü", 255), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, _, err = f.l.CreateReservation(f.alice, CreateParams{
		LocationID: 1, SpotID: "A1", Start: t0, Hours: 1,
		PaymentMethod: strings.Repeat("c", 65), Payment: money.MustParse("5.99"),
	})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	assert.Empty(t, f.l.UserReservations(aliceAddr))

	rid, _, err := f.l.CreateReservation(f.alice, CreateParams{
		LocationID: 1, SpotID: "A1", Start: t0, Hours: 1,
		PaymentMethod: strings.Repeat("c", 64), Payment: money.MustParse("5.99"),
	})
	require.NoError(t, err)
	_, err = f.l.ExtendReservation(f.alice, rid, 1, strings.Repeat("d", 65), money.MustParse("5.99"))
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	r, _ := f.l.Reservation(rid)
	assert.Equal(t, t0.Add(time.Hour), r.End)
}

func TestWindowMustFitDatetimeRange(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.book(f.alice, "A1", time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), 1, "5.99")
	assert.ErrorIs(t, err, ErrInvalidStart)
	// start fits, end does not
	_, _, err = f.book(f.alice, "A1", time.Date(9999, 12, 31, 23, 0, 0, 0, time.UTC), 2, "11.98")
	assert.ErrorIs(t, err, ErrInvalidStart)
	_, _, err = f.book(f.alice, "A1", time.Date(999, 12, 31, 0, 0, 0, 0, time.UTC), 1, "5.99")
	assert.ErrorIs(t, err, ErrInvalidStart)
	assert.Empty(t, f.l.UserReservations(aliceAddr))

	late := time.Date(9999, 12, 31, 20, 0, 0, 0, time.UTC)
	id, _, err := f.book(f.alice, "A1", late, 1, "5.99")
	require.NoError(t, err)
	_, err = f.l.ExtendReservation(f.alice, id, 5, "", money.MustParse("29.95"))
	assert.ErrorIs(t, err, ErrInvalidDuration)
	r, _ := f.l.Reservation(id)
	assert.Equal(t, late.Add(time.Hour), r.End)
}

func TestCommittedLogCarriesOnlySetFields(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.InfoLevel)
	f := newFixture(t, WithLogger(log))
	hook.Reset()

	_, err := f.l.Deposit(f.alice, money.MustParse("1.00"))
	require.NoError(t, err)
	require.Len(t, hook.Entries, 1)
	dep := hook.Entries[0].Data
	assert.Equal(t, EventWalletDeposited, dep["event"])
	assert.Equal(t, aliceAddr, dep["user"])
	assert.NotContains(t, dep, "reservation_id")
	assert.NotContains(t, dep, "spot_id")
	assert.NotContains(t, dep, "location_id")

	hook.Reset()
	require.NoError(t, f.l.SetLocationActive(f.owner, 1, false))
	require.Len(t, hook.Entries, 1)
	loc := hook.Entries[0].Data
	assert.Equal(t, int64(1), loc["location_id"])
	assert.NotContains(t, loc, "user")
	assert.NotContains(t, loc, "reservation_id")
}
