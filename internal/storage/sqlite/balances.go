package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/mmynk/microsplit/internal/models"
)

// Balance returns the balance of id. Identities never credited have balance 0.
func (t *sqlTx) Balance(ctx context.Context, id models.Identity) (uint64, error) {
	var amount int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT amount FROM balances WHERE identity = ?",
		id[:],
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return uint64(amount), nil
}

// SetBalance overwrites the balance of id.
func (t *sqlTx) SetBalance(ctx context.Context, id models.Identity, amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("balance %d exceeds storable range", amount)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO balances (identity, amount) VALUES (?, ?)
		 ON CONFLICT(identity) DO UPDATE SET amount = excluded.amount`,
		id[:], int64(amount),
	)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}
