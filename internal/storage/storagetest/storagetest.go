// Package storagetest holds behaviour tests every storage.Store must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/internal/storage"
)

var errAbort = errors.New("abort")

// Run exercises store. The store must be empty.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	addr := models.Address{0xA1}
	other := models.Address{0xA2}
	alice := models.Identity{0x01}

	t.Run("GetRecord returns ErrNotFound for missing record", func(t *testing.T) {
		err := store.View(ctx, func(tx storage.Tx) error {
			_, err := tx.GetRecord(ctx, addr)
			return err
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutRecord then GetRecord", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.PutRecord(ctx, addr, []byte("v1"))
		})
		if err != nil {
			t.Fatalf("PutRecord failed: %v", err)
		}

		var got []byte
		err = store.View(ctx, func(tx storage.Tx) error {
			var err error
			got, err = tx.GetRecord(ctx, addr)
			return err
		})
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if string(got) != "v1" {
			t.Errorf("GetRecord = %q, want %q", got, "v1")
		}
	})

	t.Run("PutRecord replaces existing record", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.PutRecord(ctx, addr, []byte("v2"))
		})
		if err != nil {
			t.Fatalf("PutRecord failed: %v", err)
		}
		if got := getRecord(t, store, addr); string(got) != "v2" {
			t.Errorf("GetRecord = %q, want %q", got, "v2")
		}
	})

	t.Run("failed Update rolls back every write", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.PutRecord(ctx, addr, []byte("v3")); err != nil {
				return err
			}
			if err := tx.PutRecord(ctx, other, []byte("x")); err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, alice, 99); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, &models.Event{Kind: models.EventSplitPaid, Address: addr}); err != nil {
				return err
			}
			return errAbort
		})
		if !errors.Is(err, errAbort) {
			t.Fatalf("Update error = %v, want errAbort", err)
		}

		if got := getRecord(t, store, addr); string(got) != "v2" {
			t.Errorf("record after rollback = %q, want %q", got, "v2")
		}
		if got := balance(t, store, alice); got != 0 {
			t.Errorf("balance after rollback = %d, want 0", got)
		}
		if got := events(t, store, addr); len(got) != 0 {
			t.Errorf("events after rollback = %d, want 0", len(got))
		}
		err = store.View(ctx, func(tx storage.Tx) error {
			_, err := tx.GetRecord(ctx, other)
			return err
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("rolled back record still visible: %v", err)
		}
	})

	t.Run("DeleteRecord removes record", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.DeleteRecord(ctx, addr)
		})
		if err != nil {
			t.Fatalf("DeleteRecord failed: %v", err)
		}
		err = store.Update(ctx, func(tx storage.Tx) error {
			return tx.DeleteRecord(ctx, addr)
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("second DeleteRecord error = %v, want ErrNotFound", err)
		}
	})

	t.Run("balances default to zero and persist", func(t *testing.T) {
		bob := models.Identity{0x02}
		if got := balance(t, store, bob); got != 0 {
			t.Fatalf("unknown balance = %d, want 0", got)
		}
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.SetBalance(ctx, bob, 1<<62)
		})
		if err != nil {
			t.Fatalf("SetBalance failed: %v", err)
		}
		if got := balance(t, store, bob); got != 1<<62 {
			t.Errorf("balance = %d, want %d", got, uint64(1<<62))
		}
	})

	t.Run("events are listed per address in order", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			for i, kind := range []models.EventKind{models.EventSplitCreated, models.EventSplitPaid, models.EventSplitClosed} {
				e := &models.Event{
					Kind:             kind,
					Address:          other,
					Actor:            alice,
					Amount:           ^uint64(0) - uint64(i),
					ParticipantIndex: i - 1,
				}
				if err := tx.AppendEvent(ctx, e); err != nil {
					return err
				}
				if e.ID == "" || e.CreatedAt == 0 {
					t.Errorf("AppendEvent did not fill ID/CreatedAt: %+v", e)
				}
			}
			return tx.AppendEvent(ctx, &models.Event{Kind: models.EventSplitCreated, Address: addr})
		})
		if err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}

		got := events(t, store, other)
		if len(got) != 3 {
			t.Fatalf("events = %d, want 3", len(got))
		}
		if got[0].Kind != models.EventSplitCreated || got[2].Kind != models.EventSplitClosed {
			t.Errorf("unexpected order: %s, %s", got[0].Kind, got[2].Kind)
		}
		if got[0].Amount != ^uint64(0) {
			t.Errorf("amount = %d, want max uint64", got[0].Amount)
		}
		if got[1].ParticipantIndex != 0 || got[1].Actor != alice || got[1].Address != other {
			t.Errorf("event fields not preserved: %+v", got[1])
		}
	})
}

func getRecord(t *testing.T, store storage.Store, addr models.Address) []byte {
	t.Helper()
	var got []byte
	err := store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		got, err = tx.GetRecord(context.Background(), addr)
		return err
	})
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	return got
}

func balance(t *testing.T, store storage.Store, id models.Identity) uint64 {
	t.Helper()
	var got uint64
	err := store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		got, err = tx.Balance(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return got
}

func events(t *testing.T, store storage.Store, addr models.Address) []*models.Event {
	t.Helper()
	var got []*models.Event
	err := store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		got, err = tx.Events(context.Background(), addr)
		return err
	})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	return got
}
