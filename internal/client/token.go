package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// TokenClient is the surface of the underlying asset service the wrap
// and unwrap operations need. The service itself is opaque; only this
// contract is specified.
type TokenClient interface {
	Metadata(ctx context.Context, tokenURL string) (protocol.TokenMetadata, error)
	Allowance(ctx context.Context, tokenURL string, owner common.Address, spender string) (protocol.Nat, error)
	TransferFrom(ctx context.Context, tokenURL string, from common.Address, to string, value protocol.Nat) error
	Transfer(ctx context.Context, tokenURL string, to common.Address, value protocol.Nat) error
}

type HTTPTokenClient struct {
	selfURL string
	hc      *http.Client
}

func NewHTTPTokenClient(selfURL string, hc *http.Client) *HTTPTokenClient {
	return &HTTPTokenClient{selfURL: selfURL, hc: hc}
}

func (c *HTTPTokenClient) Metadata(ctx context.Context, tokenURL string) (protocol.TokenMetadata, error) {
	var resp protocol.TokenMetadata
	if err := getJSON(ctx, c.hc, c.selfURL, tokenURL+"/metadata", &resp); err != nil {
		return protocol.TokenMetadata{}, err
	}
	return resp, nil
}

func (c *HTTPTokenClient) Allowance(ctx context.Context, tokenURL string, owner common.Address, spender string) (protocol.Nat, error) {
	var resp protocol.AllowanceResponse
	u := tokenURL + "/allowance?owner=" + owner.Hex() + "&spender=" + url.QueryEscape(spender)
	if err := getJSON(ctx, c.hc, c.selfURL, u, &resp); err != nil {
		return protocol.Nat{}, err
	}
	return resp.Allowance, nil
}

func (c *HTTPTokenClient) TransferFrom(ctx context.Context, tokenURL string, from common.Address, to string, value protocol.Nat) error {
	return postJSON(ctx, c.hc, c.selfURL, tokenURL+"/transferFrom",
		protocol.TokenTransferFromRequest{From: from, To: to, Value: value}, nil)
}

func (c *HTTPTokenClient) Transfer(ctx context.Context, tokenURL string, to common.Address, value protocol.Nat) error {
	return postJSON(ctx, c.hc, c.selfURL, tokenURL+"/transfer",
		protocol.TokenTransferRequest{To: to, Value: value}, nil)
}
