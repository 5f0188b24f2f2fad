package service

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/microsplit/pkg/api"
)

// NewSplitServiceHandler builds the HTTP handler for the SplitService.
// Mutating procedures get mutateOpts (typically RequireAuth), read-only ones
// get readOpts. Both receive the JSON codec.
func NewSplitServiceHandler(svc *SplitService, mutateOpts, readOpts []connect.HandlerOption) (string, http.Handler) {
	mutate := append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, mutateOpts...)
	read := append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, readOpts...)

	mux := http.NewServeMux()
	mux.Handle(api.CreateSplitProcedure, connect.NewUnaryHandler(api.CreateSplitProcedure, svc.CreateSplit, mutate...))
	mux.Handle(api.PaySplitProcedure, connect.NewUnaryHandler(api.PaySplitProcedure, svc.PaySplit, mutate...))
	mux.Handle(api.CloseSplitProcedure, connect.NewUnaryHandler(api.CloseSplitProcedure, svc.CloseSplit, mutate...))
	mux.Handle(api.GetSplitProcedure, connect.NewUnaryHandler(api.GetSplitProcedure, svc.GetSplit, read...))
	mux.Handle(api.GetBalanceProcedure, connect.NewUnaryHandler(api.GetBalanceProcedure, svc.GetBalance, read...))
	return "/" + api.SplitServiceName + "/", mux
}

// NewAuthServiceHandler builds the HTTP handler for the AuthService.
func NewAuthServiceHandler(svc *AuthService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(api.ChallengeProcedure, connect.NewUnaryHandler(api.ChallengeProcedure, svc.Challenge, opts...))
	mux.Handle(api.LoginProcedure, connect.NewUnaryHandler(api.LoginProcedure, svc.Login, opts...))
	return "/" + api.AuthServiceName + "/", mux
}
