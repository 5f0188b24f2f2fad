// Package transfer moves value units between identities.
package transfer

import (
	"context"
	"fmt"
	"math"

	"github.com/mmynk/microsplit/internal/ledgererr"
	"github.com/mmynk/microsplit/internal/models"
)

// MaxBalance is the largest balance a store can hold.
const MaxBalance = math.MaxInt64

// Executor performs a single all-or-nothing value transfer.
type Executor interface {
	Transfer(ctx context.Context, from, to models.Identity, amount uint64) error
}

// Balances is the settlement backend an executor acts on. Implementations
// are expected to be transaction-scoped so that a failed operation rolls
// back every balance write made through them.
type Balances interface {
	Balance(ctx context.Context, id models.Identity) (uint64, error)
	SetBalance(ctx context.Context, id models.Identity, amount uint64) error
}

// LedgerExecutor transfers between balances held in a Balances backend.
type LedgerExecutor struct {
	balances Balances
}

var _ Executor = (*LedgerExecutor)(nil)

// New returns an executor over b.
func New(b Balances) *LedgerExecutor {
	return &LedgerExecutor{balances: b}
}

// Transfer debits from and credits to. Both balances are read and checked
// before either is written, so a rejected transfer writes nothing.
func (e *LedgerExecutor) Transfer(ctx context.Context, from, to models.Identity, amount uint64) error {
	fromBal, err := e.balances.Balance(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", from, err)
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ledgererr.ErrInsufficientFunds, from, fromBal, amount)
	}
	if amount == 0 || from == to {
		return nil
	}

	toBal, err := e.balances.Balance(ctx, to)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", to, err)
	}
	if amount > MaxBalance || toBal > MaxBalance-amount {
		return fmt.Errorf("%w: crediting %d to %s", ledgererr.ErrBalanceOverflow, amount, to)
	}

	if err := e.balances.SetBalance(ctx, from, fromBal-amount); err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if err := e.balances.SetBalance(ctx, to, toBal+amount); err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	return nil
}

// Credit adds amount to id's balance. Used for genesis funding.
func Credit(ctx context.Context, b Balances, id models.Identity, amount uint64) error {
	bal, err := b.Balance(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", id, err)
	}
	if amount > MaxBalance || bal > MaxBalance-amount {
		return fmt.Errorf("%w: crediting %d to %s", ledgererr.ErrBalanceOverflow, amount, id)
	}
	return b.SetBalance(ctx, id, bal+amount)
}
