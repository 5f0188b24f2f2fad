// Package bolt provides a BoltDB-backed implementation of the storage.Store interface.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/internal/storage"
)

var (
	bucketRecords  = []byte("split_records")
	bucketBalances = []byte("balances")
	bucketEvents   = []byte("events")
)

var _ storage.Store = (*Store)(nil)

// Store persists split records, balances and events in a single Bolt file.
type Store struct {
	db *bbolt.DB
}

// New opens (and migrates) the Bolt database at path.
func New(path string, options *bbolt.Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRecords, bucketBalances, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn in a Bolt read-write transaction. Bolt allows one writer at
// a time, so updates are serialised.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// View runs fn in a Bolt read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) GetRecord(_ context.Context, addr models.Address) ([]byte, error) {
	raw := t.tx.Bucket(bucketRecords).Get(addr[:])
	if raw == nil {
		return nil, fmt.Errorf("split %s: %w", addr, storage.ErrNotFound)
	}
	// Bolt values are only valid for the life of the transaction.
	return append([]byte(nil), raw...), nil
}

func (t *boltTx) PutRecord(_ context.Context, addr models.Address, data []byte) error {
	if err := t.tx.Bucket(bucketRecords).Put(addr[:], data); err != nil {
		return fmt.Errorf("failed to put split record: %w", err)
	}
	return nil
}

func (t *boltTx) DeleteRecord(_ context.Context, addr models.Address) error {
	bucket := t.tx.Bucket(bucketRecords)
	if bucket.Get(addr[:]) == nil {
		return fmt.Errorf("split %s: %w", addr, storage.ErrNotFound)
	}
	if err := bucket.Delete(addr[:]); err != nil {
		return fmt.Errorf("failed to delete split record: %w", err)
	}
	return nil
}

func (t *boltTx) Balance(_ context.Context, id models.Identity) (uint64, error) {
	raw := t.tx.Bucket(bucketBalances).Get(id[:])
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt balance for %s: %d bytes", id, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (t *boltTx) SetBalance(_ context.Context, id models.Identity, amount uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	if err := t.tx.Bucket(bucketBalances).Put(id[:], buf[:]); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// eventRecord mirrors the events bucket payload.
type eventRecord struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Actor            string `json:"actor"`
	Amount           uint64 `json:"amount"`
	ParticipantIndex int    `json:"participantIndex"`
	CreatedAt        int64  `json:"createdAt"`
}

func (t *boltTx) AppendEvent(_ context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	bucket, err := t.tx.Bucket(bucketEvents).CreateBucketIfNotExists(e.Address[:])
	if err != nil {
		return fmt.Errorf("failed to create event bucket: %w", err)
	}
	seq, err := bucket.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate event sequence: %w", err)
	}
	payload, err := json.Marshal(eventRecord{
		ID:               e.ID,
		Kind:             string(e.Kind),
		Actor:            e.Actor.String(),
		Amount:           e.Amount,
		ParticipantIndex: e.ParticipantIndex,
		CreatedAt:        e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	if err := bucket.Put(key[:], payload); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (t *boltTx) Events(_ context.Context, addr models.Address) ([]*models.Event, error) {
	bucket := t.tx.Bucket(bucketEvents).Bucket(addr[:])
	if bucket == nil {
		return nil, nil
	}
	var events []*models.Event
	err := bucket.ForEach(func(_, v []byte) error {
		var rec eventRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		actor, err := models.ParseIdentity(rec.Actor)
		if err != nil {
			return err
		}
		events = append(events, &models.Event{
			ID:               rec.ID,
			Kind:             models.EventKind(rec.Kind),
			Address:          addr,
			Actor:            actor,
			Amount:           rec.Amount,
			ParticipantIndex: rec.ParticipantIndex,
			CreatedAt:        rec.CreatedAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
