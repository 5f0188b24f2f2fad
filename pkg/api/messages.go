package api

import (
	"github.com/mmynk/microsplit/internal/models"
)

const (
	AuthServiceName  = "microsplit.v1.AuthService"
	SplitServiceName = "microsplit.v1.SplitService"

	ChallengeProcedure   = "/" + AuthServiceName + "/Challenge"
	LoginProcedure       = "/" + AuthServiceName + "/Login"
	CreateSplitProcedure = "/" + SplitServiceName + "/CreateSplit"
	PaySplitProcedure    = "/" + SplitServiceName + "/PaySplit"
	CloseSplitProcedure  = "/" + SplitServiceName + "/CloseSplit"
	GetSplitProcedure    = "/" + SplitServiceName + "/GetSplit"
	GetBalanceProcedure  = "/" + SplitServiceName + "/GetBalance"
)

// ErrorHeader is the error metadata key carrying the ledger error code.
const ErrorHeader = "Microsplit-Error"

type ChallengeRequest struct {
	Identity string `json:"identity"`
}

type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"expiresAt"`
}

// LoginRequest answers a challenge. Signature is base58.
type LoginRequest struct {
	Identity  string `json:"identity"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Amounts are encoded as JSON strings so they survive JavaScript clients.

type CreateSplitRequest struct {
	SplitID      string   `json:"splitId"`
	TotalAmount  uint64   `json:"totalAmount,string"`
	Participants []string `json:"participants"`
	Address      string   `json:"address,omitempty"`
}

type CreateSplitResponse struct {
	Split *Split `json:"split"`
}

// SplitRef names a split by creator and splitId, optionally with the address
// the caller expects it to live at.
type SplitRef struct {
	Creator string `json:"creator"`
	SplitID string `json:"splitId"`
	Address string `json:"address,omitempty"`
}

type PaySplitRequest struct {
	SplitRef
}

type PaySplitResponse struct {
	Split *Split `json:"split"`
}

type CloseSplitRequest struct {
	SplitRef
}

// CloseSplitResponse carries the record as it was just before removal.
type CloseSplitResponse struct {
	Split *Split `json:"split"`
}

type GetSplitRequest struct {
	Address string `json:"address"`
}

type GetSplitResponse struct {
	Split *Split `json:"split"`
}

type GetBalanceRequest struct {
	Identity string `json:"identity"`
}

type GetBalanceResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance,string"`
}

// Split is the wire form of a split record.
type Split struct {
	Address         string   `json:"address"`
	Creator         string   `json:"creator"`
	SplitID         string   `json:"splitId"`
	TotalAmount     uint64   `json:"totalAmount,string"`
	AmountPerPerson uint64   `json:"amountPerPerson,string"`
	Participants    []string `json:"participants"`
	Paid            []bool   `json:"paid"`
	CreatedAt       int64    `json:"createdAt"`
	Deposit         uint64   `json:"deposit,string"`
}

// SplitFromRecord converts a stored record.
func SplitFromRecord(addr models.Address, r *models.SplitRecord) *Split {
	participants := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = p.String()
	}
	return &Split{
		Address:         addr.String(),
		Creator:         r.Creator.String(),
		SplitID:         r.SplitID,
		TotalAmount:     r.TotalAmount,
		AmountPerPerson: r.AmountPerPerson,
		Participants:    participants,
		Paid:            append([]bool(nil), r.Paid...),
		CreatedAt:       r.CreatedAt,
		Deposit:         r.Deposit,
	}
}
