// Package models defines the core domain models for MicroSplit.
//
// # Models
//
//   - Identity: 32-byte public key of a party (creator, participant, payer)
//   - Address: derived storage key of a split record
//   - SplitRecord: a bill split evenly among up to ten participants
//   - Event: an append-only trace of committed split changes
//
// # Lifecycle
//
// A SplitRecord is created by its creator, mutated in place as participants
// pay (each Paid slot flips false→true once), and removed by the creator once
// every slot is paid. Payments move value directly from the participant to
// the creator; the record never holds funds.
//
// # Design Principles
//
//  1. Records are plain values; the ledger package owns all transitions
//  2. Identities and addresses are fixed-size arrays so they can be map keys
//  3. Text forms are base58, matching how wallets print public keys
package models
