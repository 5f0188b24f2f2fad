package models

import (
	"crypto/ed25519"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// IdentitySize is the byte length of an Identity (an ed25519 public key).
const IdentitySize = ed25519.PublicKeySize

// Identity is the opaque fixed-size public identifier of a party: a creator,
// a participant, or a payer. It is rendered as base58 text, the way wallets
// display public keys.
type Identity [IdentitySize]byte

// ParseIdentity decodes a base58 identity string.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw := base58.Decode(s)
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("invalid identity %q: want %d bytes, got %d", s, IdentitySize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseIdentity is like ParseIdentity but panics on error.
// Intended for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityFromPublicKey converts an ed25519 public key.
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != IdentitySize {
		return id, fmt.Errorf("invalid public key length %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

func (id Identity) String() string { return base58.Encode(id[:]) }

func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PublicKey returns the identity as an ed25519 public key.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

func (id Identity) IsZero() bool { return id == Identity{} }

// AddressSize is the byte length of a derived Address.
const AddressSize = 32

// Address is the deterministic storage key of a split record, derived from
// (creator, splitId).
type Address [AddressSize]byte

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw := base58.Decode(s)
	if len(raw) != AddressSize {
		return addr, fmt.Errorf("invalid address %q: want %d bytes, got %d", s, AddressSize, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) IsZero() bool { return a == Address{} }
