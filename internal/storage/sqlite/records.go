package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/internal/storage"
)

// GetRecord retrieves the encoded record stored at addr.
func (t *sqlTx) GetRecord(ctx context.Context, addr models.Address) ([]byte, error) {
	var data []byte
	err := t.tx.QueryRowContext(ctx,
		"SELECT data FROM split_records WHERE address = ?",
		addr[:],
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("split %s: %w", addr, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split record: %w", err)
	}
	return data, nil
}

// PutRecord inserts or replaces the record at addr.
func (t *sqlTx) PutRecord(ctx context.Context, addr models.Address, data []byte) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO split_records (address, data) VALUES (?, ?)
		 ON CONFLICT(address) DO UPDATE SET data = excluded.data`,
		addr[:], data,
	)
	if err != nil {
		return fmt.Errorf("failed to put split record: %w", err)
	}
	return nil
}

// DeleteRecord removes the record at addr.
func (t *sqlTx) DeleteRecord(ctx context.Context, addr models.Address) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM split_records WHERE address = ?", addr[:])
	if err != nil {
		return fmt.Errorf("failed to delete split record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("split %s: %w", addr, storage.ErrNotFound)
	}
	return nil
}
