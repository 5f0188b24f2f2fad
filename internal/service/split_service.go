package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/microsplit/internal/ledger"
	"github.com/mmynk/microsplit/internal/middleware"
	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/pkg/api"
)

var errNoSigner = errors.New("request is not signed")

// SplitService implements the Connect SplitService
type SplitService struct {
	machine *ledger.Machine
}

// NewSplitService creates a new SplitService over the given lifecycle machine.
func NewSplitService(machine *ledger.Machine) *SplitService {
	return &SplitService{machine: machine}
}

func signer(ctx context.Context) (models.Identity, error) {
	id, ok := middleware.GetIdentity(ctx)
	if !ok {
		return models.Identity{}, connect.NewError(connect.CodeUnauthenticated, errNoSigner)
	}
	return id, nil
}

// parseOptionalAddress returns the zero address for an empty string.
func parseOptionalAddress(s string) (models.Address, error) {
	if s == "" {
		return models.Address{}, nil
	}
	return models.ParseAddress(s)
}

func parseRef(r api.SplitRef) (ledger.SplitRef, error) {
	creator, err := models.ParseIdentity(r.Creator)
	if err != nil {
		return ledger.SplitRef{}, invalidArgument("creator", err)
	}
	addr, err := parseOptionalAddress(r.Address)
	if err != nil {
		return ledger.SplitRef{}, invalidArgument("address", err)
	}
	return ledger.SplitRef{Creator: creator, SplitID: r.SplitID, Address: addr}, nil
}

// CreateSplit creates a split owned by the signer.
func (s *SplitService) CreateSplit(ctx context.Context, req *connect.Request[api.CreateSplitRequest]) (*connect.Response[api.CreateSplitResponse], error) {
	creator, err := signer(ctx)
	if err != nil {
		return nil, err
	}

	participants := make([]models.Identity, len(req.Msg.Participants))
	for i, p := range req.Msg.Participants {
		if participants[i], err = models.ParseIdentity(p); err != nil {
			return nil, invalidArgument("participants", err)
		}
	}
	addr, err := parseOptionalAddress(req.Msg.Address)
	if err != nil {
		return nil, invalidArgument("address", err)
	}

	slog.Debug("CreateSplit request",
		"creator", creator,
		"split_id", req.Msg.SplitID,
		"total", req.Msg.TotalAmount,
		"participants", len(participants),
	)

	split, err := s.machine.CreateSplit(ctx, creator, ledger.CreateParams{
		SplitID:      req.Msg.SplitID,
		TotalAmount:  req.Msg.TotalAmount,
		Participants: participants,
		Address:      addr,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CreateSplitResponse{
		Split: api.SplitFromRecord(split.Address, split.Record),
	}), nil
}

// PaySplit pays the signer's share of a split.
func (s *SplitService) PaySplit(ctx context.Context, req *connect.Request[api.PaySplitRequest]) (*connect.Response[api.PaySplitResponse], error) {
	payer, err := signer(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := parseRef(req.Msg.SplitRef)
	if err != nil {
		return nil, err
	}

	split, err := s.machine.PaySplit(ctx, payer, ref)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.PaySplitResponse{
		Split: api.SplitFromRecord(split.Address, split.Record),
	}), nil
}

// CloseSplit closes a fully paid split owned by the signer.
func (s *SplitService) CloseSplit(ctx context.Context, req *connect.Request[api.CloseSplitRequest]) (*connect.Response[api.CloseSplitResponse], error) {
	closer, err := signer(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := parseRef(req.Msg.SplitRef)
	if err != nil {
		return nil, err
	}

	split, err := s.machine.CloseSplit(ctx, closer, ref)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CloseSplitResponse{
		Split: api.SplitFromRecord(split.Address, split.Record),
	}), nil
}

// GetSplit resolves a split by address. No signature required.
func (s *SplitService) GetSplit(ctx context.Context, req *connect.Request[api.GetSplitRequest]) (*connect.Response[api.GetSplitResponse], error) {
	addr, err := models.ParseAddress(req.Msg.Address)
	if err != nil {
		return nil, invalidArgument("address", err)
	}

	rec, err := s.machine.GetSplit(ctx, addr)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.GetSplitResponse{
		Split: api.SplitFromRecord(addr, rec),
	}), nil
}

// GetBalance returns an identity's balance. No signature required.
func (s *SplitService) GetBalance(ctx context.Context, req *connect.Request[api.GetBalanceRequest]) (*connect.Response[api.GetBalanceResponse], error) {
	id, err := models.ParseIdentity(req.Msg.Identity)
	if err != nil {
		return nil, invalidArgument("identity", err)
	}

	bal, err := s.machine.Balance(ctx, id)
	if err != nil {
		slog.Error("GetBalance failed", "identity", id, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.GetBalanceResponse{
		Identity: id.String(),
		Balance:  bal,
	}), nil
}
