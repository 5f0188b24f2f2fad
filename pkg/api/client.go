package api

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

// Client calls both MicroSplit services.
type Client struct {
	token string

	challenge   *connect.Client[ChallengeRequest, ChallengeResponse]
	login       *connect.Client[LoginRequest, LoginResponse]
	createSplit *connect.Client[CreateSplitRequest, CreateSplitResponse]
	paySplit    *connect.Client[PaySplitRequest, PaySplitResponse]
	closeSplit  *connect.Client[CloseSplitRequest, CloseSplitResponse]
	getSplit    *connect.Client[GetSplitRequest, GetSplitResponse]
	getBalance  *connect.Client[GetBalanceRequest, GetBalanceResponse]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		challenge:   connect.NewClient[ChallengeRequest, ChallengeResponse](httpClient, baseURL+ChallengeProcedure, opts...),
		login:       connect.NewClient[LoginRequest, LoginResponse](httpClient, baseURL+LoginProcedure, opts...),
		createSplit: connect.NewClient[CreateSplitRequest, CreateSplitResponse](httpClient, baseURL+CreateSplitProcedure, opts...),
		paySplit:    connect.NewClient[PaySplitRequest, PaySplitResponse](httpClient, baseURL+PaySplitProcedure, opts...),
		closeSplit:  connect.NewClient[CloseSplitRequest, CloseSplitResponse](httpClient, baseURL+CloseSplitProcedure, opts...),
		getSplit:    connect.NewClient[GetSplitRequest, GetSplitResponse](httpClient, baseURL+GetSplitProcedure, opts...),
		getBalance:  connect.NewClient[GetBalanceRequest, GetBalanceResponse](httpClient, baseURL+GetBalanceProcedure, opts...),
	}
}

// SetToken sets the bearer token sent with every later call.
func (c *Client) SetToken(token string) { c.token = token }

func request[T any](c *Client, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if c.token != "" {
		req.Header().Set("Authorization", "Bearer "+c.token)
	}
	return req
}

func (c *Client) Challenge(ctx context.Context, msg *ChallengeRequest) (*ChallengeResponse, error) {
	res, err := c.challenge.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Login(ctx context.Context, msg *LoginRequest) (*LoginResponse, error) {
	res, err := c.login.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CreateSplit(ctx context.Context, msg *CreateSplitRequest) (*CreateSplitResponse, error) {
	res, err := c.createSplit.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) PaySplit(ctx context.Context, msg *PaySplitRequest) (*PaySplitResponse, error) {
	res, err := c.paySplit.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CloseSplit(ctx context.Context, msg *CloseSplitRequest) (*CloseSplitResponse, error) {
	res, err := c.closeSplit.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetSplit(ctx context.Context, msg *GetSplitRequest) (*GetSplitResponse, error) {
	res, err := c.getSplit.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetBalance(ctx context.Context, msg *GetBalanceRequest) (*GetBalanceResponse, error) {
	res, err := c.getBalance.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// ErrorCode returns the ledger error code attached to err, if any.
func ErrorCode(err error) string {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return ""
	}
	return connectErr.Meta().Get(ErrorHeader)
}
