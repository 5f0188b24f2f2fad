package models

// EventKind names a ledger event.
type EventKind string

const (
	EventSplitCreated EventKind = "split.created"
	EventSplitPaid    EventKind = "split.paid"
	EventSplitClosed  EventKind = "split.closed"
	EventGenesis      EventKind = "ledger.genesis"
)

// Event records one committed state change of a split.
// Events are appended in the same transaction as the change they describe.
type Event struct {
	// ID is the unique identifier for the event (UUID format).
	ID string

	Kind    EventKind
	Address Address

	// Actor is the signer of the operation (creator or payer).
	Actor Identity

	// Amount is the value moved: the total for split.created, the share for
	// split.paid, the refunded deposit for split.closed and the credit for
	// ledger.genesis.
	Amount uint64

	// ParticipantIndex is the paid slot for split.paid, -1 otherwise.
	ParticipantIndex int

	// CreatedAt is the Unix timestamp when the event was recorded.
	CreatedAt int64
}
