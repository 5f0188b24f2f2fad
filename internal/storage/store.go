// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/microsplit/internal/models"
)

// ErrNotFound is returned by Tx.GetRecord when no record exists at an address.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for ledger storage.
// This abstraction allows swapping storage backends (SQLite, Bolt, etc.)
// without changing the ledger.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error the
	// transaction is rolled back and nothing fn wrote is visible; otherwise it
	// is committed.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside a transaction.
// Tx satisfies transfer.Balances.
type Tx interface {
	// GetRecord returns the encoded record at addr, or ErrNotFound.
	GetRecord(ctx context.Context, addr models.Address) ([]byte, error)

	// PutRecord inserts or replaces the encoded record at addr.
	PutRecord(ctx context.Context, addr models.Address, data []byte) error

	// DeleteRecord removes the record at addr. Deleting a missing record
	// returns ErrNotFound.
	DeleteRecord(ctx context.Context, addr models.Address) error

	// Balance returns id's balance; unknown identities have balance 0.
	Balance(ctx context.Context, id models.Identity) (uint64, error)

	// SetBalance overwrites id's balance.
	SetBalance(ctx context.Context, id models.Identity, amount uint64) error

	// AppendEvent records a ledger event.
	AppendEvent(ctx context.Context, e *models.Event) error

	// Events lists events for addr in insertion order.
	Events(ctx context.Context, addr models.Address) ([]*models.Event, error)
}
