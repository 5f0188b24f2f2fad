// Package address derives the storage keys of split records.
package address

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/mmynk/microsplit/internal/models"
)

const (
	splitSeed   = "split"
	vaultSeed   = "rent-vault"
	genesisSeed = "genesis"
)

// DefaultProgramID namespaces every derived address. Two deployments with
// different program IDs never share addresses.
const DefaultProgramID = "MSPLit11111111111111111111111111111111111111"

// Deriver computes addresses as BLAKE2b-256 keyed by the program ID.
type Deriver struct {
	key []byte
}

// NewDeriver returns a Deriver for the base58 program ID.
func NewDeriver(programID string) (*Deriver, error) {
	key := base58.Decode(programID)
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("invalid program id %q", programID)
	}
	return &Deriver{key: key}, nil
}

// Default returns the Deriver for DefaultProgramID.
func Default() *Deriver {
	d, err := NewDeriver(DefaultProgramID)
	if err != nil {
		panic(err)
	}
	return d
}

// Derive returns the address of the split (creator, splitID). The split ID is
// the last seed, so the concatenation is unambiguous.
func (d *Deriver) Derive(creator models.Identity, splitID string) models.Address {
	return d.sum([]byte(splitSeed), creator[:], []byte(splitID))
}

// Verify derives the address and reports whether supplied matches it.
// A zero supplied address always matches.
func (d *Deriver) Verify(supplied models.Address, creator models.Identity, splitID string) (models.Address, bool) {
	derived := d.Derive(creator, splitID)
	if supplied.IsZero() {
		return derived, true
	}
	return derived, supplied == derived
}

// Vault is the identity holding storage deposits between create and close.
func (d *Deriver) Vault() models.Identity {
	return models.Identity(d.sum([]byte(vaultSeed)))
}

// GenesisMarker is the address under which applied genesis credits are
// recorded. No split can derive to it.
func (d *Deriver) GenesisMarker() models.Address {
	return d.sum([]byte(genesisSeed))
}

func (d *Deriver) sum(seeds ...[]byte) [32]byte {
	h, err := blake2b.New256(d.key)
	if err != nil {
		// Key length is checked in NewDeriver.
		panic(err)
	}
	for _, s := range seeds {
		h.Write(s)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
