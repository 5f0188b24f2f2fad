package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/microsplit/internal/models"
)

// AppendEvent persists a new event.
func (t *sqlTx) AppendEvent(ctx context.Context, e *models.Event) error {
	// Generate ID if not set
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (id, kind, address, actor, amount, participant_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Address[:], e.Actor[:],
		strconv.FormatUint(e.Amount, 10), e.ParticipantIndex, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// Events retrieves all events recorded for a split address, oldest first.
func (t *sqlTx) Events(ctx context.Context, addr models.Address) ([]*models.Event, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, kind, address, actor, amount, participant_index, created_at
		 FROM events WHERE address = ? ORDER BY seq`,
		addr[:],
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e := &models.Event{}
		var kind, amount string
		var address, actor []byte

		if err := rows.Scan(&e.ID, &kind, &address, &actor, &amount, &e.ParticipantIndex, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = models.EventKind(kind)
		copy(e.Address[:], address)
		copy(e.Actor[:], actor)
		if e.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse event amount: %w", err)
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}
