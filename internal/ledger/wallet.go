package ledger

import (
	"context"
	"math"
	"time"

	"github.com/iliyamo/parking-ledger/internal/money"
)

// Deposit credits the caller's wallet and returns the new balance.
func (l *Ledger) Deposit(ctx context.Context, amount money.Cents) (money.Cents, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance money.Cents
	err = l.update(ctx, "deposit", func(now time.Time) (ChangeSet, error) {
		var cs ChangeSet
		cur := l.pendingBalance(&cs, caller)
		if cur > math.MaxInt64-amount {
			return ChangeSet{}, ErrInvalidAmount
		}
		balance = cur + amount
		cs.setBalance(caller, balance)
		ev := newEvent(EventWalletDeposited, now)
		ev.User, ev.Amount = caller, amount
		cs.Events = []Event{ev}
		return cs, nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// BalanceOf returns the wallet balance of addr.
func (l *Ledger) BalanceOf(addr Address) money.Cents {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// Treasury reports the collected balance and how much of it is free.
func (l *Ledger) Treasury() TreasuryState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasuryState()
}

func (l *Ledger) treasuryState() TreasuryState {
	esc := l.escrowed()
	free := l.treasury - esc
	if free < 0 {
		free = 0
	}
	return TreasuryState{Balance: l.treasury, Escrowed: esc, Withdrawable: free}
}

// WithdrawTreasury moves amount from the unescrowed treasury into the
// owner's wallet. Owner only.
func (l *Ledger) WithdrawTreasury(ctx context.Context, amount money.Cents) (TreasuryState, error) {
	owner, err := l.requireOwner(ctx)
	if err != nil {
		return TreasuryState{}, err
	}
	if amount <= 0 {
		return TreasuryState{}, ErrInvalidAmount
	}
	var state TreasuryState
	err = l.update(ctx, "withdraw_treasury", func(now time.Time) (ChangeSet, error) {
		st := l.treasuryState()
		if amount > st.Withdrawable {
			return ChangeSet{}, ErrTreasuryInsufficient
		}
		var cs ChangeSet
		cs.setTreasury(l.treasury - amount)
		cs.setBalance(owner, l.pendingBalance(&cs, owner)+amount)
		ev := newEvent(EventTreasuryWithdrawn, now)
		ev.User, ev.Amount = owner, amount
		cs.Events = []Event{ev}
		state = TreasuryState{Balance: st.Balance - amount, Escrowed: st.Escrowed, Withdrawable: st.Withdrawable - amount}
		return cs, nil
	})
	if err != nil {
		return TreasuryState{}, err
	}
	return state, nil
}
