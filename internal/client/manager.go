package client

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// ManagerClient is the caller-facing surface of the manager node, used
// by external integrations (and the integration tests) for discovery
// and indirect transfers.
type ManagerClient interface {
	Register(ctx context.Context, address common.Address) (string, error)
	StartRegistration(ctx context.Context, address common.Address) (string, error)
	CompleteRegistration(ctx context.Context, address, shardAccount common.Address) error
	GetAssignedShard(ctx context.Context, address common.Address) (string, error)
	Transfer(ctx context.Context, from, to common.Address, value protocol.Nat) error
	BalanceOf(ctx context.Context, address common.Address) (protocol.Nat, error)
	TotalSupply(ctx context.Context) (protocol.Nat, error)
	Stats(ctx context.Context) (protocol.StatsResponse, error)
}

type HTTPManagerClient struct {
	managerURL string
	hc         *http.Client
}

func NewHTTPManagerClient(managerURL string, hc *http.Client) *HTTPManagerClient {
	return &HTTPManagerClient{managerURL: managerURL, hc: hc}
}

func (c *HTTPManagerClient) Register(ctx context.Context, address common.Address) (string, error) {
	var resp protocol.RegisterResponse
	err := postJSON(ctx, c.hc, "", c.managerURL+"/register",
		protocol.RegisterRequest{Address: address}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Shard, nil
}

func (c *HTTPManagerClient) StartRegistration(ctx context.Context, address common.Address) (string, error) {
	var resp protocol.RegisterResponse
	err := postJSON(ctx, c.hc, "", c.managerURL+"/register/start",
		protocol.RegisterRequest{Address: address}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Shard, nil
}

func (c *HTTPManagerClient) CompleteRegistration(ctx context.Context, address, shardAccount common.Address) error {
	return postJSON(ctx, c.hc, "", c.managerURL+"/register/complete",
		protocol.CompleteRegistrationRequest{Address: address, ShardAccount: shardAccount}, nil)
}

func (c *HTTPManagerClient) GetAssignedShard(ctx context.Context, address common.Address) (string, error) {
	var resp protocol.RegisterResponse
	if err := getJSON(ctx, c.hc, "", c.managerURL+"/shards/assigned/"+address.Hex(), &resp); err != nil {
		return "", err
	}
	return resp.Shard, nil
}

func (c *HTTPManagerClient) Transfer(ctx context.Context, from, to common.Address, value protocol.Nat) error {
	return postJSON(ctx, c.hc, "", c.managerURL+"/transfer",
		protocol.ManagerTransferRequest{From: from, To: to, Value: value}, nil)
}

func (c *HTTPManagerClient) BalanceOf(ctx context.Context, address common.Address) (protocol.Nat, error) {
	var resp protocol.BalanceResponse
	if err := getJSON(ctx, c.hc, "", c.managerURL+"/balance/"+address.Hex(), &resp); err != nil {
		return protocol.Nat{}, err
	}
	return resp.Balance, nil
}

func (c *HTTPManagerClient) TotalSupply(ctx context.Context) (protocol.Nat, error) {
	var resp protocol.SupplyResponse
	if err := getJSON(ctx, c.hc, "", c.managerURL+"/supply", &resp); err != nil {
		return protocol.Nat{}, err
	}
	return resp.Supply, nil
}

func (c *HTTPManagerClient) Stats(ctx context.Context) (protocol.StatsResponse, error) {
	var resp protocol.StatsResponse
	if err := getJSON(ctx, c.hc, "", c.managerURL+"/stats", &resp); err != nil {
		return protocol.StatsResponse{}, err
	}
	return resp, nil
}
