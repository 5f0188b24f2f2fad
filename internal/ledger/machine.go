// Package ledger implements the split lifecycle: create, pay and close.
//
// A split moves Uninitialized → Active → Closed. Each operation runs under
// the split's address lock and inside a single store transaction, evaluates
// its guards in a fixed order and either commits every effect (record,
// balances, event) or none of them.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"slices"
	"time"

	"github.com/mmynk/microsplit/internal/address"
	"github.com/mmynk/microsplit/internal/codec"
	"github.com/mmynk/microsplit/internal/ledgererr"
	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/internal/storage"
	"github.com/mmynk/microsplit/internal/transfer"
)

// Operation names, used for logging and metrics labels.
const (
	OpCreate = "create"
	OpPay    = "pay"
	OpClose  = "close"
)

// Observer is notified of committed transitions and rejections.
type Observer interface {
	SplitCreated(r *models.SplitRecord)
	SplitPaid(r *models.SplitRecord, amount uint64)
	SplitClosed(r *models.SplitRecord)
	Rejected(op string, code ledgererr.Code)
}

type noopObserver struct{}

func (noopObserver) SplitCreated(*models.SplitRecord) {}
func (noopObserver) SplitPaid(*models.SplitRecord, uint64) {}
func (noopObserver) SplitClosed(*models.SplitRecord) {}
func (noopObserver) Rejected(string, ledgererr.Code) {}

// Machine is the split lifecycle state machine.
type Machine struct {
	store        storage.Store
	deriver      *address.Deriver
	locks        *keyedMutex
	unitsPerByte uint64
	observer     Observer
	nowFn        func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithDeriver overrides the address deriver (default: address.Default()).
func WithDeriver(d *address.Deriver) Option {
	return func(m *Machine) { m.deriver = d }
}

// WithRentRate sets the storage deposit charged per byte of record space.
// Zero disables deposits.
func WithRentRate(unitsPerByte uint64) Option {
	return func(m *Machine) { m.unitsPerByte = unitsPerByte }
}

// WithObserver installs an observer; nil resets to a no-op.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o == nil {
			o = noopObserver{}
		}
		m.observer = o
	}
}

// WithClock overrides the time source. Primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now == nil {
			now = time.Now
		}
		m.nowFn = now
	}
}

// New creates a Machine over store.
func New(store storage.Store, opts ...Option) *Machine {
	m := &Machine{
		store:    store,
		deriver:  address.Default(),
		locks:    newKeyedMutex(),
		observer: noopObserver{},
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Split is a record together with its address.
type Split struct {
	Address models.Address
	Record  *models.SplitRecord
}

// CreateParams are the inputs of CreateSplit.
type CreateParams struct {
	SplitID      string
	TotalAmount  uint64
	Participants []models.Identity

	// Address optionally names the expected split address.
	Address models.Address
}

// SplitRef names an existing split.
type SplitRef struct {
	Creator models.Identity
	SplitID string

	// Address optionally names the expected split address.
	Address models.Address
}

// Vault is the identity holding storage deposits.
func (m *Machine) Vault() models.Identity { return m.deriver.Vault() }

// Derive returns the address of (creator, splitID).
func (m *Machine) Derive(creator models.Identity, splitID string) models.Address {
	return m.deriver.Derive(creator, splitID)
}

// Deposit returns the storage deposit for a split ID of the given length.
func (m *Machine) Deposit(splitIDLen int) (uint64, error) {
	hi, lo := bits.Mul64(m.unitsPerByte, uint64(codec.Space(splitIDLen, models.MaxParticipants)))
	if hi != 0 || lo > transfer.MaxBalance {
		return 0, ledgererr.ErrBalanceOverflow
	}
	return lo, nil
}

// checkCreate evaluates the creation guards in their fixed order.
func checkCreate(p CreateParams) error {
	switch {
	case len(p.SplitID) > models.MaxSplitIDLen:
		return ledgererr.ErrSplitIDTooLong
	case len(p.Participants) == 0:
		return ledgererr.ErrNoParticipants
	case len(p.Participants) > models.MaxParticipants:
		return ledgererr.ErrTooManyParticipants
	case p.TotalAmount == 0:
		return ledgererr.ErrInvalidAmount
	}
	seen := make(map[models.Identity]struct{}, len(p.Participants))
	for _, id := range p.Participants {
		if _, dup := seen[id]; dup {
			return ledgererr.ErrDuplicateParticipant
		}
		seen[id] = struct{}{}
	}
	return nil
}

// CreateSplit creates a split owned by creator and debits the storage deposit.
func (m *Machine) CreateSplit(ctx context.Context, creator models.Identity, p CreateParams) (*Split, error) {
	if err := checkCreate(p); err != nil {
		return nil, m.reject(OpCreate, err)
	}
	addr, ok := m.deriver.Verify(p.Address, creator, p.SplitID)
	if !ok {
		return nil, m.reject(OpCreate, ledgererr.ErrAddressMismatch)
	}
	deposit, err := m.Deposit(len(p.SplitID))
	if err != nil {
		return nil, m.reject(OpCreate, err)
	}

	n := uint64(len(p.Participants))
	rec := &models.SplitRecord{
		Creator:         creator,
		SplitID:         p.SplitID,
		TotalAmount:     p.TotalAmount,
		AmountPerPerson: p.TotalAmount / n,
		Participants:    append([]models.Identity(nil), p.Participants...),
		Paid:            make([]bool, n),
		CreatedAt:       m.nowFn().Unix(),
		Deposit:         deposit,
	}

	unlock := m.locks.Lock(addr)
	defer unlock()

	err = m.store.Update(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetRecord(ctx, addr); err == nil {
			return ledgererr.ErrSplitExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		data, err := codec.Encode(rec)
		if err != nil {
			return err
		}
		if err := transfer.New(tx).Transfer(ctx, creator, m.Vault(), deposit); err != nil {
			return err
		}
		if err := tx.PutRecord(ctx, addr, data); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Kind:             models.EventSplitCreated,
			Address:          addr,
			Actor:            creator,
			Amount:           rec.TotalAmount,
			ParticipantIndex: -1,
			CreatedAt:        rec.CreatedAt,
		})
	})
	if err != nil {
		return nil, m.reject(OpCreate, err)
	}

	slog.Info("Split created",
		"address", addr,
		"creator", creator,
		"split_id", rec.SplitID,
		"total", rec.TotalAmount,
		"participants", len(rec.Participants),
		"amount_per_person", rec.AmountPerPerson,
		"remainder", rec.Remainder(),
	)
	m.observer.SplitCreated(rec)
	return &Split{Address: addr, Record: rec.Clone()}, nil
}

// PaySplit pays payer's share of the split to its creator.
func (m *Machine) PaySplit(ctx context.Context, payer models.Identity, ref SplitRef) (*Split, error) {
	addr, ok := m.deriver.Verify(ref.Address, ref.Creator, ref.SplitID)
	if !ok {
		return nil, m.reject(OpPay, ledgererr.ErrAddressMismatch)
	}

	unlock := m.locks.Lock(addr)
	defer unlock()

	var (
		rec *models.SplitRecord
		idx int
	)
	err := m.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		if rec, err = m.load(ctx, tx, addr); err != nil {
			return err
		}

		idx = rec.ParticipantIndex(payer)
		if idx < 0 {
			return ledgererr.ErrNotAParticipant
		}
		if rec.Paid[idx] {
			return ledgererr.ErrAlreadyPaid
		}

		if err := transfer.New(tx).Transfer(ctx, payer, rec.Creator, rec.AmountPerPerson); err != nil {
			return err
		}
		rec.Paid[idx] = true

		data, err := codec.Encode(rec)
		if err != nil {
			return err
		}
		if err := tx.PutRecord(ctx, addr, data); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Kind:             models.EventSplitPaid,
			Address:          addr,
			Actor:            payer,
			Amount:           rec.AmountPerPerson,
			ParticipantIndex: idx,
			CreatedAt:        m.nowFn().Unix(),
		})
	})
	if err != nil {
		return nil, m.reject(OpPay, err)
	}

	slog.Info("Split paid",
		"address", addr,
		"payer", payer,
		"participant_index", idx,
		"amount", rec.AmountPerPerson,
		"paid", rec.PaidCount(),
		"participants", len(rec.Participants),
	)
	m.observer.SplitPaid(rec, rec.AmountPerPerson)
	return &Split{Address: addr, Record: rec}, nil
}

// CloseSplit removes a fully paid split and refunds its deposit to the creator.
// It returns the record as it was just before removal.
func (m *Machine) CloseSplit(ctx context.Context, signer models.Identity, ref SplitRef) (*Split, error) {
	addr, ok := m.deriver.Verify(ref.Address, ref.Creator, ref.SplitID)
	if !ok {
		return nil, m.reject(OpClose, ledgererr.ErrAddressMismatch)
	}

	unlock := m.locks.Lock(addr)
	defer unlock()

	var rec *models.SplitRecord
	err := m.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		if rec, err = m.load(ctx, tx, addr); err != nil {
			return err
		}

		if signer != rec.Creator {
			return ledgererr.ErrUnauthorized
		}
		if !rec.FullyPaid() {
			return ledgererr.ErrNotFullyPaid
		}

		if err := transfer.New(tx).Transfer(ctx, m.Vault(), rec.Creator, rec.Deposit); err != nil {
			return err
		}
		if err := tx.DeleteRecord(ctx, addr); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Kind:             models.EventSplitClosed,
			Address:          addr,
			Actor:            signer,
			Amount:           rec.Deposit,
			ParticipantIndex: -1,
			CreatedAt:        m.nowFn().Unix(),
		})
	})
	if err != nil {
		return nil, m.reject(OpClose, err)
	}

	slog.Info("Split closed", "address", addr, "creator", rec.Creator, "refund", rec.Deposit)
	m.observer.SplitClosed(rec)
	return &Split{Address: addr, Record: rec}, nil
}

// GetSplit resolves the record at addr.
func (m *Machine) GetSplit(ctx context.Context, addr models.Address) (*models.SplitRecord, error) {
	var rec *models.SplitRecord
	err := m.store.View(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = m.load(ctx, tx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Events lists the committed events of the split at addr.
func (m *Machine) Events(ctx context.Context, addr models.Address) ([]*models.Event, error) {
	var events []*models.Event
	err := m.store.View(ctx, func(tx storage.Tx) error {
		var err error
		events, err = tx.Events(ctx, addr)
		return err
	})
	return events, err
}

// Balance returns id's balance.
func (m *Machine) Balance(ctx context.Context, id models.Identity) (uint64, error) {
	var bal uint64
	err := m.store.View(ctx, func(tx storage.Tx) error {
		var err error
		bal, err = tx.Balance(ctx, id)
		return err
	})
	return bal, err
}

// Fund credits id with amount. It is used to apply genesis balances at
// startup and is not exposed to callers.
func (m *Machine) Fund(ctx context.Context, id models.Identity, amount uint64) error {
	return m.store.Update(ctx, func(tx storage.Tx) error {
		return transfer.Credit(ctx, tx, id, amount)
	})
}

// ApplyGenesis credits the given balances once per store. It reports false
// without changing anything if genesis was already applied.
func (m *Machine) ApplyGenesis(ctx context.Context, balances map[models.Identity]uint64) (bool, error) {
	ids := make([]models.Identity, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b models.Identity) int { return bytes.Compare(a[:], b[:]) })

	marker := m.deriver.GenesisMarker()
	applied := false
	err := m.store.Update(ctx, func(tx storage.Tx) error {
		prior, err := tx.Events(ctx, marker)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			return nil
		}
		now := m.nowFn().Unix()
		for _, id := range ids {
			if err := transfer.Credit(ctx, tx, id, balances[id]); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, &models.Event{
				Kind:             models.EventGenesis,
				Address:          marker,
				Actor:            id,
				Amount:           balances[id],
				ParticipantIndex: -1,
				CreatedAt:        now,
			}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// load reads and decodes the record at addr and checks that the record's own
// (creator, splitId) re-derive to addr.
func (m *Machine) load(ctx context.Context, tx storage.Tx, addr models.Address) (*models.SplitRecord, error) {
	data, err := tx.GetRecord(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ledgererr.ErrSplitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split: %w", err)
	}
	rec, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if m.deriver.Derive(rec.Creator, rec.SplitID) != addr {
		return nil, ledgererr.ErrAddressMismatch
	}
	return rec, nil
}

func (m *Machine) reject(op string, err error) error {
	code := ledgererr.CodeOf(err)
	if code == "" {
		slog.Error("Split operation failed", "op", op, "error", err)
	} else {
		slog.Warn("Split operation rejected", "op", op, "code", code, "error", err)
	}
	m.observer.Rejected(op, code)
	return err
}
