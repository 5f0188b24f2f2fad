package models

const (
	// MaxSplitIDLen is the maximum byte length of a split identifier.
	MaxSplitIDLen = 32

	// MaxParticipants is the maximum number of participants in one split.
	MaxParticipants = 10
)

// SplitRecord is the persisted state of one split.
// Everything except Paid is fixed at creation.
type SplitRecord struct {
	// Creator is the identity that created the split and receives every payment.
	Creator Identity

	// SplitID is the caller-chosen slug (at most MaxSplitIDLen bytes).
	// Together with Creator it determines the record's Address.
	SplitID string

	// TotalAmount is the bill in value units. Always > 0.
	TotalAmount uint64

	// AmountPerPerson is TotalAmount / len(Participants), rounded down.
	// The remainder is never collected; see Remainder.
	AmountPerPerson uint64

	// Participants is the ordered list of payers (1 to MaxParticipants).
	Participants []Identity

	// Paid[i] is true once Participants[i] has paid their share.
	Paid []bool

	// CreatedAt is the Unix timestamp when the split was created.
	CreatedAt int64

	// Deposit is the storage deposit taken from the creator at creation.
	// It is refunded to the creator when the split is closed.
	Deposit uint64
}

// ParticipantIndex returns the index of id in Participants, or -1.
func (r *SplitRecord) ParticipantIndex(id Identity) int {
	for i, p := range r.Participants {
		if p == id {
			return i
		}
	}
	return -1
}

// FullyPaid reports whether every participant has paid.
func (r *SplitRecord) FullyPaid() bool {
	for _, p := range r.Paid {
		if !p {
			return false
		}
	}
	return true
}

// PaidCount returns the number of participants that have paid.
func (r *SplitRecord) PaidCount() int {
	n := 0
	for _, p := range r.Paid {
		if p {
			n++
		}
	}
	return n
}

// Remainder is the part of TotalAmount lost to floor division.
// The creator absorbs it.
func (r *SplitRecord) Remainder() uint64 {
	return r.TotalAmount - r.AmountPerPerson*uint64(len(r.Participants))
}

// Clone returns a deep copy of the record.
func (r *SplitRecord) Clone() *SplitRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = append([]Identity(nil), r.Participants...)
	c.Paid = append([]bool(nil), r.Paid...)
	return &c
}
