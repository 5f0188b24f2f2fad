package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmynk/microsplit/internal/codec"
	"github.com/mmynk/microsplit/internal/ledgererr"
	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/internal/storage"
	"github.com/mmynk/microsplit/internal/storage/sqlite"
)

const startingBalance = 1_000_000

var (
	creator  = identity(0xC0)
	p1       = identity(0x01)
	p2       = identity(0x02)
	outsider = identity(0xEE)
)

func identity(fill byte) models.Identity {
	var id models.Identity
	for i := range id {
		id[i] = fill
	}
	return id
}

// setupMachine creates a machine over a temp SQLite store and funds the
// given identities.
func setupMachine(t *testing.T, funded []models.Identity, opts ...Option) *Machine {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) })}, opts...)
	m := New(store, opts...)
	for _, id := range funded {
		if err := m.Fund(context.Background(), id, startingBalance); err != nil {
			t.Fatalf("failed to fund %s: %v", id, err)
		}
	}
	return m
}

func mustBalance(t *testing.T, m *Machine, id models.Identity) uint64 {
	t.Helper()
	bal, err := m.Balance(context.Background(), id)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return bal
}

func mustCreate(t *testing.T, m *Machine, splitID string, total uint64, participants ...models.Identity) *Split {
	t.Helper()
	split, err := m.CreateSplit(context.Background(), creator, CreateParams{
		SplitID:      splitID,
		TotalAmount:  total,
		Participants: participants,
	})
	if err != nil {
		t.Fatalf("CreateSplit failed: %v", err)
	}
	return split
}

func ref(splitID string) SplitRef {
	return SplitRef{Creator: creator, SplitID: splitID}
}

func TestCreateSplit(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		n         int
		wantShare uint64
	}{
		{"even split", 2_000_000_000, 2, 1_000_000_000},
		{"floor division", 10, 3, 3},
		{"single participant", 7, 1, 7},
		{"total below participant count", 3, 10, 0},
		{"max total", ^uint64(0), 10, ^uint64(0) / 10},
	}

	m := setupMachine(t, []models.Identity{creator})
	ctx := context.Background()

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			participants := make([]models.Identity, tt.n)
			for j := range participants {
				participants[j] = identity(byte(0x10 + j))
			}
			splitID := "create-" + string(rune('a'+i))

			split := mustCreate(t, m, splitID, tt.total, participants...)
			rec := split.Record

			if split.Address != m.Derive(creator, splitID) {
				t.Errorf("address = %s, want derived address", split.Address)
			}
			if rec.AmountPerPerson != tt.wantShare {
				t.Errorf("AmountPerPerson = %d, want %d", rec.AmountPerPerson, tt.wantShare)
			}
			if len(rec.Paid) != tt.n {
				t.Fatalf("len(Paid) = %d, want %d", len(rec.Paid), tt.n)
			}
			for j, paid := range rec.Paid {
				if paid {
					t.Errorf("Paid[%d] = true at creation", j)
				}
			}
			if rec.Creator != creator || rec.SplitID != splitID || rec.TotalAmount != tt.total {
				t.Errorf("unexpected record fields: %+v", rec)
			}
			if rec.CreatedAt != 1_700_000_000 {
				t.Errorf("CreatedAt = %d, want clock time", rec.CreatedAt)
			}

			stored, err := m.GetSplit(ctx, split.Address)
			if err != nil {
				t.Fatalf("GetSplit failed: %v", err)
			}
			if stored.AmountPerPerson != tt.wantShare || len(stored.Participants) != tt.n {
				t.Errorf("stored record differs: %+v", stored)
			}
		})
	}
}

func TestCreateSplitGuardOrder(t *testing.T) {
	eleven := make([]models.Identity, 11)
	for i := range eleven {
		eleven[i] = identity(byte(0x20 + i))
	}
	long := strings.Repeat("a", 33)

	tests := []struct {
		name         string
		splitID      string
		total        uint64
		participants []models.Identity
		wantErr      error
	}{
		{"split id too long", long, 100, []models.Identity{p1}, ledgererr.ErrSplitIDTooLong},
		{"split id too long wins over everything", long, 0, nil, ledgererr.ErrSplitIDTooLong},
		{"split id too long wins over too many", long, 0, eleven, ledgererr.ErrSplitIDTooLong},
		{"no participants", "empty-parts", 100, nil, ledgererr.ErrNoParticipants},
		{"no participants wins over invalid amount", "empty-parts", 0, []models.Identity{}, ledgererr.ErrNoParticipants},
		{"too many participants", "too-many", 100, eleven, ledgererr.ErrTooManyParticipants},
		{"too many wins over invalid amount", "too-many", 0, eleven, ledgererr.ErrTooManyParticipants},
		{"zero amount", "zero-amount", 0, []models.Identity{p1}, ledgererr.ErrInvalidAmount},
		{"zero amount wins over duplicates", "zero-amount", 0, []models.Identity{p1, p1}, ledgererr.ErrInvalidAmount},
		{"duplicate participant", "dupes", 100, []models.Identity{p1, p2, p1}, ledgererr.ErrDuplicateParticipant},
	}

	m := setupMachine(t, []models.Identity{creator})
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateSplit(ctx, creator, CreateParams{
				SplitID:      tt.splitID,
				TotalAmount:  tt.total,
				Participants: tt.participants,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateSplit error = %v, want %v", err, tt.wantErr)
			}
			if _, err := m.GetSplit(ctx, m.Derive(creator, tt.splitID)); !errors.Is(err, ledgererr.ErrSplitNotFound) {
				t.Errorf("rejected create left a record behind: %v", err)
			}
			if got := mustBalance(t, m, creator); got != startingBalance {
				t.Errorf("creator balance = %d, want %d", got, startingBalance)
			}
		})
	}
}

func TestCreateSplitBoundaries(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator})

	ten := make([]models.Identity, models.MaxParticipants)
	for i := range ten {
		ten[i] = identity(byte(0x30 + i))
	}
	mustCreate(t, m, strings.Repeat("b", models.MaxSplitIDLen), 1, p1)
	mustCreate(t, m, "ten", 10, ten...)
	mustCreate(t, m, "", 1, p1)
}

func TestCreateSplitTwiceFails(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator})
	mustCreate(t, m, "dup", 100, p1)
	before := mustBalance(t, m, creator)

	_, err := m.CreateSplit(context.Background(), creator, CreateParams{
		SplitID:      "dup",
		TotalAmount:  500,
		Participants: []models.Identity{p2},
	})
	if !errors.Is(err, ledgererr.ErrSplitExists) {
		t.Fatalf("second create error = %v, want SplitExists", err)
	}

	rec, err := m.GetSplit(context.Background(), m.Derive(creator, "dup"))
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	if rec.TotalAmount != 100 || rec.Participants[0] != p1 {
		t.Errorf("original record was overwritten: %+v", rec)
	}
	if got := mustBalance(t, m, creator); got != before {
		t.Errorf("creator charged for failed create: %d -> %d", before, got)
	}
}

func TestSameSplitIDDifferentCreators(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator, p2})
	a := mustCreate(t, m, "shared-slug", 10, p1)

	b, err := m.CreateSplit(context.Background(), p2, CreateParams{
		SplitID:      "shared-slug",
		TotalAmount:  10,
		Participants: []models.Identity{p1},
	})
	if err != nil {
		t.Fatalf("CreateSplit by second creator failed: %v", err)
	}
	if a.Address == b.Address {
		t.Error("different creators share an address")
	}
}

func TestCreateSplitAddressMismatch(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator})

	_, err := m.CreateSplit(context.Background(), creator, CreateParams{
		SplitID:      "mine",
		TotalAmount:  10,
		Participants: []models.Identity{p1},
		Address:      m.Derive(creator, "someone-else"),
	})
	if !errors.Is(err, ledgererr.ErrAddressMismatch) {
		t.Fatalf("error = %v, want AddressMismatch", err)
	}

	split, err := m.CreateSplit(context.Background(), creator, CreateParams{
		SplitID:      "mine",
		TotalAmount:  10,
		Participants: []models.Identity{p1},
		Address:      m.Derive(creator, "mine"),
	})
	if err != nil {
		t.Fatalf("create with matching address failed: %v", err)
	}
	if split.Address != m.Derive(creator, "mine") {
		t.Error("unexpected address")
	}
}

func TestStorageDeposit(t *testing.T) {
	const rate = 3
	m := setupMachine(t, []models.Identity{creator, p1}, WithRentRate(rate))
	ctx := context.Background()

	want := uint64(rate * codec.Space(len("rent"), models.MaxParticipants))
	split := mustCreate(t, m, "rent", 10, p1)
	if split.Record.Deposit != want {
		t.Fatalf("Deposit = %d, want %d", split.Record.Deposit, want)
	}
	if got := mustBalance(t, m, creator); got != startingBalance-want {
		t.Errorf("creator balance after create = %d, want %d", got, startingBalance-want)
	}
	if got := mustBalance(t, m, m.Vault()); got != want {
		t.Errorf("vault balance = %d, want %d", got, want)
	}

	if _, err := m.PaySplit(ctx, p1, ref("rent")); err != nil {
		t.Fatalf("PaySplit failed: %v", err)
	}
	if _, err := m.CloseSplit(ctx, creator, ref("rent")); err != nil {
		t.Fatalf("CloseSplit failed: %v", err)
	}
	if got := mustBalance(t, m, creator); got != startingBalance+10 {
		t.Errorf("creator balance after close = %d, want %d", got, startingBalance+10)
	}
	if got := mustBalance(t, m, m.Vault()); got != 0 {
		t.Errorf("vault balance after close = %d, want 0", got)
	}
}

func TestCreateSplitCannotAffordDeposit(t *testing.T) {
	m := setupMachine(t, nil, WithRentRate(1))

	_, err := m.CreateSplit(context.Background(), creator, CreateParams{
		SplitID:      "broke",
		TotalAmount:  10,
		Participants: []models.Identity{p1},
	})
	if !errors.Is(err, ledgererr.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want InsufficientFunds", err)
	}
	if _, err := m.GetSplit(context.Background(), m.Derive(creator, "broke")); !errors.Is(err, ledgererr.ErrSplitNotFound) {
		t.Errorf("record created despite failed deposit: %v", err)
	}
}

// TestEndToEnd follows the lifecycle: create 2 units for [P1, P2], P1 pays,
// close is refused, P2 pays, close succeeds and the record is gone.
func TestEndToEnd(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator, p1, p2})
	ctx := context.Background()

	split := mustCreate(t, m, "test-split-01", 2, p1, p2)
	if split.Record.AmountPerPerson != 1 {
		t.Fatalf("AmountPerPerson = %d, want 1", split.Record.AmountPerPerson)
	}

	creatorBefore := mustBalance(t, m, creator)
	paid, err := m.PaySplit(ctx, p1, ref("test-split-01"))
	if err != nil {
		t.Fatalf("PaySplit(P1) failed: %v", err)
	}
	if !paid.Record.Paid[0] || paid.Record.Paid[1] {
		t.Fatalf("Paid = %v, want [true false]", paid.Record.Paid)
	}
	if got := mustBalance(t, m, creator); got != creatorBefore+1 {
		t.Errorf("creator balance = %d, want %d", got, creatorBefore+1)
	}
	if got := mustBalance(t, m, p1); got != startingBalance-1 {
		t.Errorf("P1 balance = %d, want %d", got, startingBalance-1)
	}

	if _, err := m.CloseSplit(ctx, creator, ref("test-split-01")); !errors.Is(err, ledgererr.ErrNotFullyPaid) {
		t.Fatalf("CloseSplit error = %v, want NotFullyPaid", err)
	}

	paid, err = m.PaySplit(ctx, p2, ref("test-split-01"))
	if err != nil {
		t.Fatalf("PaySplit(P2) failed: %v", err)
	}
	if !paid.Record.Paid[0] || !paid.Record.Paid[1] {
		t.Fatalf("Paid = %v, want [true true]", paid.Record.Paid)
	}

	closed, err := m.CloseSplit(ctx, creator, ref("test-split-01"))
	if err != nil {
		t.Fatalf("CloseSplit failed: %v", err)
	}
	if closed.Address != split.Address {
		t.Errorf("closed address = %s, want %s", closed.Address, split.Address)
	}
	if _, err := m.GetSplit(ctx, split.Address); !errors.Is(err, ledgererr.ErrSplitNotFound) {
		t.Errorf("GetSplit after close error = %v, want SplitNotFound", err)
	}

	events, err := m.Events(ctx, split.Address)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	kinds := make([]models.EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	want := []models.EventKind{models.EventSplitCreated, models.EventSplitPaid, models.EventSplitPaid, models.EventSplitClosed}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if events[2].ParticipantIndex != 1 || events[2].Actor != p2 {
		t.Errorf("second payment event = %+v", events[2])
	}
}

func TestPaySplitRejections(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator, p1, p2, outsider})
	ctx := context.Background()
	split := mustCreate(t, m, "pay-test-01", 2_000, p1, p2)

	if _, err := m.PaySplit(ctx, p1, ref("pay-test-01")); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	t.Run("double payment", func(t *testing.T) {
		before := mustBalance(t, m, p1)
		_, err := m.PaySplit(ctx, p1, ref("pay-test-01"))
		if !errors.Is(err, ledgererr.ErrAlreadyPaid) {
			t.Fatalf("error = %v, want AlreadyPaid", err)
		}
		rec, _ := m.GetSplit(ctx, split.Address)
		if !rec.Paid[0] || rec.Paid[1] {
			t.Errorf("Paid changed: %v", rec.Paid)
		}
		if got := mustBalance(t, m, p1); got != before {
			t.Errorf("payer charged twice: %d -> %d", before, got)
		}
	})

	t.Run("outsider", func(t *testing.T) {
		_, err := m.PaySplit(ctx, outsider, ref("pay-test-01"))
		if !errors.Is(err, ledgererr.ErrNotAParticipant) {
			t.Fatalf("error = %v, want NotAParticipant", err)
		}
		rec, _ := m.GetSplit(ctx, split.Address)
		if !rec.Paid[0] || rec.Paid[1] {
			t.Errorf("Paid changed: %v", rec.Paid)
		}
		if got := mustBalance(t, m, outsider); got != startingBalance {
			t.Errorf("outsider balance = %d, want %d", got, startingBalance)
		}
	})

	t.Run("creator who is not a participant", func(t *testing.T) {
		_, err := m.PaySplit(ctx, creator, ref("pay-test-01"))
		if !errors.Is(err, ledgererr.ErrNotAParticipant) {
			t.Fatalf("error = %v, want NotAParticipant", err)
		}
	})

	t.Run("unknown split", func(t *testing.T) {
		_, err := m.PaySplit(ctx, p1, ref("no-such-split"))
		if !errors.Is(err, ledgererr.ErrSplitNotFound) {
			t.Fatalf("error = %v, want SplitNotFound", err)
		}
	})

	t.Run("address mismatch", func(t *testing.T) {
		r := ref("pay-test-01")
		r.Address = m.Derive(creator, "other")
		_, err := m.PaySplit(ctx, p2, r)
		if !errors.Is(err, ledgererr.ErrAddressMismatch) {
			t.Fatalf("error = %v, want AddressMismatch", err)
		}
		rec, _ := m.GetSplit(ctx, split.Address)
		if rec.Paid[1] {
			t.Error("misrouted payment was applied")
		}
	})
}

func TestPaySplitInsufficientFunds(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator, p1})
	ctx := context.Background()
	split := mustCreate(t, m, "expensive", 2*startingBalance+2, p1, p2)

	creatorBefore := mustBalance(t, m, creator)
	_, err := m.PaySplit(ctx, p2, ref("expensive"))
	if !errors.Is(err, ledgererr.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want InsufficientFunds", err)
	}

	rec, err := m.GetSplit(ctx, split.Address)
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	if rec.Paid[1] {
		t.Error("paid flag set despite failed transfer")
	}
	if got := mustBalance(t, m, creator); got != creatorBefore {
		t.Errorf("creator balance changed: %d -> %d", creatorBefore, got)
	}
	events, _ := m.Events(ctx, split.Address)
	if len(events) != 1 {
		t.Errorf("events = %d, want only the creation event", len(events))
	}
}

func TestCloseSplit(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator, p1})
	ctx := context.Background()
	split := mustCreate(t, m, "close-test-01", 1_000, p1)

	t.Run("non-creator on unpaid split is unauthorized", func(t *testing.T) {
		_, err := m.CloseSplit(ctx, p1, ref("close-test-01"))
		if !errors.Is(err, ledgererr.ErrUnauthorized) {
			t.Fatalf("error = %v, want Unauthorized", err)
		}
	})

	t.Run("unpaid split", func(t *testing.T) {
		_, err := m.CloseSplit(ctx, creator, ref("close-test-01"))
		if !errors.Is(err, ledgererr.ErrNotFullyPaid) {
			t.Fatalf("error = %v, want NotFullyPaid", err)
		}
		if _, err := m.GetSplit(ctx, split.Address); err != nil {
			t.Errorf("record removed by rejected close: %v", err)
		}
	})

	if _, err := m.PaySplit(ctx, p1, ref("close-test-01")); err != nil {
		t.Fatalf("PaySplit failed: %v", err)
	}

	t.Run("non-creator on paid split is unauthorized", func(t *testing.T) {
		_, err := m.CloseSplit(ctx, p1, ref("close-test-01"))
		if !errors.Is(err, ledgererr.ErrUnauthorized) {
			t.Fatalf("error = %v, want Unauthorized", err)
		}
	})

	t.Run("fully paid split closes", func(t *testing.T) {
		if _, err := m.CloseSplit(ctx, creator, ref("close-test-01")); err != nil {
			t.Fatalf("CloseSplit failed: %v", err)
		}
		if _, err := m.GetSplit(ctx, split.Address); !errors.Is(err, ledgererr.ErrSplitNotFound) {
			t.Errorf("GetSplit error = %v, want SplitNotFound", err)
		}
	})

	t.Run("closed split is unresolvable", func(t *testing.T) {
		if _, err := m.CloseSplit(ctx, creator, ref("close-test-01")); !errors.Is(err, ledgererr.ErrSplitNotFound) {
			t.Errorf("second close error = %v, want SplitNotFound", err)
		}
		if _, err := m.PaySplit(ctx, p1, ref("close-test-01")); !errors.Is(err, ledgererr.ErrSplitNotFound) {
			t.Errorf("pay after close error = %v, want SplitNotFound", err)
		}
	})

	t.Run("split id can be reused after close", func(t *testing.T) {
		again := mustCreate(t, m, "close-test-01", 5, p1)
		if again.Address != split.Address {
			t.Error("re-derived address differs")
		}
	})
}

func TestGetSplitRejectsCorruptRecord(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	m := New(store)
	ctx := context.Background()

	addr := m.Derive(creator, "corrupt")
	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.PutRecord(ctx, addr, []byte{1, 2, 3})
	})
	if err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if _, err := m.GetSplit(ctx, addr); !errors.Is(err, ledgererr.ErrDecode) {
		t.Errorf("GetSplit error = %v, want DecodeError", err)
	}
	if _, err := m.PaySplit(ctx, p1, ref("corrupt")); !errors.Is(err, ledgererr.ErrDecode) {
		t.Errorf("PaySplit error = %v, want DecodeError", err)
	}
}

func TestGetSplitRejectsMisplacedRecord(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	m := New(store)
	ctx := context.Background()

	data, err := codec.Encode(&models.SplitRecord{
		Creator:         creator,
		SplitID:         "elsewhere",
		TotalAmount:     1,
		AmountPerPerson: 1,
		Participants:    []models.Identity{p1},
		Paid:            []bool{false},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	addr := m.Derive(creator, "here")
	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.PutRecord(ctx, addr, data)
	})
	if err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if _, err := m.GetSplit(ctx, addr); !errors.Is(err, ledgererr.ErrAddressMismatch) {
		t.Errorf("GetSplit error = %v, want AddressMismatch", err)
	}
}

func TestConcurrentPaymentsLandOnDistinctSlots(t *testing.T) {
	participants := make([]models.Identity, models.MaxParticipants)
	for i := range participants {
		participants[i] = identity(byte(0x40 + i))
	}
	m := setupMachine(t, append([]models.Identity{creator}, participants...))
	ctx := context.Background()
	split := mustCreate(t, m, "race", 1_000, participants...)

	var g errgroup.Group
	for _, p := range participants {
		p := p
		g.Go(func() error {
			_, err := m.PaySplit(ctx, p, ref("race"))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent payment failed: %v", err)
	}

	rec, err := m.GetSplit(ctx, split.Address)
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	if !rec.FullyPaid() {
		t.Errorf("Paid = %v, want all true", rec.Paid)
	}
	if got := mustBalance(t, m, creator); got != startingBalance+1_000 {
		t.Errorf("creator balance = %d, want %d", got, startingBalance+1_000)
	}
	if m.locks.size() != 0 {
		t.Errorf("lock table not drained: %d entries", m.locks.size())
	}
}

func TestConcurrentDoublePaymentChargesOnce(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator, p1})
	ctx := context.Background()
	mustCreate(t, m, "double", 100, p1, p2)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.PaySplit(ctx, p1, ref("double"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ledgererr.ErrAlreadyPaid):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || already != attempts-1 {
		t.Errorf("successes = %d, already paid = %d", successes, already)
	}
	if got := mustBalance(t, m, p1); got != startingBalance-50 {
		t.Errorf("P1 balance = %d, want %d", got, startingBalance-50)
	}
}

func TestConcurrentCreateSameAddress(t *testing.T) {
	m := setupMachine(t, []models.Identity{creator})

	const attempts = 6
	var (
		g      errgroup.Group
		mu     sync.Mutex
		exists int
	)
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := m.CreateSplit(context.Background(), creator, CreateParams{
				SplitID:      "contested",
				TotalAmount:  10,
				Participants: []models.Identity{p1},
			})
			if errors.Is(err, ledgererr.ErrSplitExists) {
				mu.Lock()
				exists++
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists != attempts-1 {
		t.Errorf("SplitExists count = %d, want %d", exists, attempts-1)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	created  int
	paid     uint64
	closed   int
	rejected []ledgererr.Code
}

func (o *recordingObserver) SplitCreated(*models.SplitRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *recordingObserver) SplitPaid(_ *models.SplitRecord, amount uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paid += amount
}

func (o *recordingObserver) SplitClosed(*models.SplitRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
}

func (o *recordingObserver) Rejected(_ string, code ledgererr.Code) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, code)
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	m := setupMachine(t, []models.Identity{creator, p1}, WithObserver(obs))
	ctx := context.Background()

	mustCreate(t, m, "observed", 9, p1)
	m.PaySplit(ctx, p1, ref("observed"))
	m.PaySplit(ctx, p1, ref("observed"))
	m.CloseSplit(ctx, creator, ref("observed"))

	if obs.created != 1 || obs.paid != 9 || obs.closed != 1 {
		t.Errorf("observer saw created=%d paid=%d closed=%d", obs.created, obs.paid, obs.closed)
	}
	if len(obs.rejected) != 1 || obs.rejected[0] != ledgererr.CodeAlreadyPaid {
		t.Errorf("rejections = %v, want [AlreadyPaid]", obs.rejected)
	}
}

func TestApplyGenesisOnce(t *testing.T) {
	m := setupMachine(t, nil)
	ctx := context.Background()
	genesis := map[models.Identity]uint64{p1: 100, p2: 200}

	applied, err := m.ApplyGenesis(ctx, genesis)
	if err != nil || !applied {
		t.Fatalf("first ApplyGenesis = %v, %v; want true, nil", applied, err)
	}
	applied, err = m.ApplyGenesis(ctx, genesis)
	if err != nil || applied {
		t.Fatalf("second ApplyGenesis = %v, %v; want false, nil", applied, err)
	}

	if got := mustBalance(t, m, p1); got != 100 {
		t.Errorf("P1 balance = %d, want 100", got)
	}
	if got := mustBalance(t, m, p2); got != 200 {
		t.Errorf("P2 balance = %d, want 200", got)
	}
}
