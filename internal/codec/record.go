// Package codec encodes split records to their persisted byte layout.
//
// Layout, in order:
//
//	discriminator    8 bytes, sha256("account:SplitState")[:8]
//	creator          32 bytes
//	splitId          varint length + bytes (≤ 32)
//	totalAmount      fixed64, little-endian
//	amountPerPerson  fixed64, little-endian
//	participantCount 1 byte
//	participants     count × 32 bytes
//	paid             count × 1 byte (0 or 1)
//	createdAt        fixed64, little-endian
//	deposit          fixed64, little-endian
package codec

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mmynk/microsplit/internal/ledgererr"
	"github.com/mmynk/microsplit/internal/models"
)

const discriminatorLen = 8

var discriminator = func() [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:SplitState"))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}()

// Space returns the encoded size of a record whose split ID is splitIDLen
// bytes long and which has room for capacity participants.
func Space(splitIDLen, capacity int) int {
	return discriminatorLen +
		models.IdentitySize +
		protowire.SizeBytes(splitIDLen) +
		8 + 8 + // totalAmount, amountPerPerson
		1 + // participantCount
		capacity*models.IdentitySize +
		capacity + // paid
		8 + 8 // createdAt, deposit
}

// Encode serialises r. It fails only when r violates the record invariants.
func Encode(r *models.SplitRecord) ([]byte, error) {
	if err := validate(r); err != nil {
		return nil, err
	}
	n := len(r.Participants)
	buf := make([]byte, 0, Space(len(r.SplitID), n))
	buf = append(buf, discriminator[:]...)
	buf = append(buf, r.Creator[:]...)
	buf = protowire.AppendBytes(buf, []byte(r.SplitID))
	buf = protowire.AppendFixed64(buf, r.TotalAmount)
	buf = protowire.AppendFixed64(buf, r.AmountPerPerson)
	buf = append(buf, byte(n))
	for _, p := range r.Participants {
		buf = append(buf, p[:]...)
	}
	for _, paid := range r.Paid {
		if paid {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	buf = protowire.AppendFixed64(buf, uint64(r.CreatedAt))
	buf = protowire.AppendFixed64(buf, r.Deposit)
	return buf, nil
}

// Decode parses a record. Malformed input yields an error wrapping
// ledgererr.ErrDecode.
func Decode(data []byte) (*models.SplitRecord, error) {
	d := decoder{buf: data}
	if !bytes.Equal(d.take(discriminatorLen), discriminator[:]) {
		return nil, d.fail("bad discriminator")
	}

	r := &models.SplitRecord{}
	copy(r.Creator[:], d.take(models.IdentitySize))

	splitID, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		return nil, d.fail(fmt.Sprintf("split id: %v", protowire.ParseError(n)))
	}
	d.buf = d.buf[n:]
	r.SplitID = string(splitID)

	r.TotalAmount = d.fixed64()
	r.AmountPerPerson = d.fixed64()

	count := d.take(1)
	if d.err != "" {
		return nil, d.fail(d.err)
	}
	size := int(count[0])
	r.Participants = make([]models.Identity, size)
	for i := range r.Participants {
		copy(r.Participants[i][:], d.take(models.IdentitySize))
	}
	r.Paid = make([]bool, size)
	for i, b := range d.take(size) {
		switch b {
		case 0:
		case 1:
			r.Paid[i] = true
		default:
			return nil, d.fail(fmt.Sprintf("paid[%d] = %d", i, b))
		}
	}
	r.CreatedAt = int64(d.fixed64())
	r.Deposit = d.fixed64()

	if d.err != "" {
		return nil, d.fail(d.err)
	}
	if len(d.buf) != 0 {
		return nil, d.fail(fmt.Sprintf("%d trailing bytes", len(d.buf)))
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

func validate(r *models.SplitRecord) error {
	n := len(r.Participants)
	switch {
	case len(r.SplitID) > models.MaxSplitIDLen:
		return fmt.Errorf("%w: split id is %d bytes", ledgererr.ErrDecode, len(r.SplitID))
	case n == 0 || n > models.MaxParticipants:
		return fmt.Errorf("%w: %d participants", ledgererr.ErrDecode, n)
	case len(r.Paid) != n:
		return fmt.Errorf("%w: %d paid flags for %d participants", ledgererr.ErrDecode, len(r.Paid), n)
	case r.TotalAmount == 0:
		return fmt.Errorf("%w: zero total amount", ledgererr.ErrDecode)
	case r.AmountPerPerson > r.TotalAmount/uint64(n):
		return fmt.Errorf("%w: amount per person %d exceeds share of %d", ledgererr.ErrDecode, r.AmountPerPerson, r.TotalAmount)
	}
	return nil
}

// decoder consumes fixed-width fields, remembering the first truncation.
type decoder struct {
	buf []byte
	err string
}

func (d *decoder) take(n int) []byte {
	if d.err != "" {
		return make([]byte, n)
	}
	if len(d.buf) < n {
		d.err = fmt.Sprintf("truncated: need %d bytes, have %d", n, len(d.buf))
		d.buf = nil
		return make([]byte, n)
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) fixed64() uint64 {
	if d.err != "" {
		return 0
	}
	v, n := protowire.ConsumeFixed64(d.buf)
	if n < 0 {
		d.err = fmt.Sprintf("truncated fixed64: %v", protowire.ParseError(n))
		d.buf = nil
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) fail(reason string) error {
	if d.err != "" && reason != d.err {
		reason = d.err
	}
	return fmt.Errorf("%w: %s", ledgererr.ErrDecode, reason)
}
