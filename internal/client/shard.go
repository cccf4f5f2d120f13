package client

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// ShardClient is the capability a node holds over remote shard nodes.
// The manager uses the account/topology calls; sibling shards use the
// receive calls. Every method targets one shard by its base URL.
type ShardClient interface {
	CreateAccount(ctx context.Context, shardURL string, account common.Address) error
	InitShard(ctx context.Context, shardURL string, req protocol.InitShardRequest) error
	AddSiblingShard(ctx context.Context, shardURL, sibling string) error
	RemoveSiblingShard(ctx context.Context, shardURL, sibling string) error
	SetFee(ctx context.Context, shardURL string, fee protocol.Nat) error
	GetSupply(ctx context.Context, shardURL string) (protocol.Nat, error)
	BalanceOf(ctx context.Context, shardURL string, account common.Address) (protocol.Nat, error)
	TransferFromManager(ctx context.Context, shardURL string, req protocol.TransferRequest) error
	ReceiveTransfer(ctx context.Context, shardURL string, to common.Address, value protocol.Nat) error
	ReceiveTransferAndCall(ctx context.Context, shardURL string, notification protocol.TransferNotification, notifyURL string) (string, error)
}

// HTTPShardClient talks JSON over HTTP to shard nodes, identifying the
// calling node via the node header on every request.
type HTTPShardClient struct {
	selfURL string
	hc      *http.Client
}

func NewHTTPShardClient(selfURL string, hc *http.Client) *HTTPShardClient {
	return &HTTPShardClient{selfURL: selfURL, hc: hc}
}

func (c *HTTPShardClient) CreateAccount(ctx context.Context, shardURL string, account common.Address) error {
	return postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/accounts",
		protocol.CreateAccountRequest{Account: account}, nil)
}

func (c *HTTPShardClient) InitShard(ctx context.Context, shardURL string, req protocol.InitShardRequest) error {
	return postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/init", req, nil)
}

func (c *HTTPShardClient) AddSiblingShard(ctx context.Context, shardURL, sibling string) error {
	return postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/siblings",
		protocol.SiblingRequest{Shard: sibling}, nil)
}

func (c *HTTPShardClient) RemoveSiblingShard(ctx context.Context, shardURL, sibling string) error {
	return deleteJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/siblings",
		protocol.SiblingRequest{Shard: sibling}, nil)
}

func (c *HTTPShardClient) SetFee(ctx context.Context, shardURL string, fee protocol.Nat) error {
	return postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/fee",
		protocol.SetFeeRequest{Fee: fee}, nil)
}

func (c *HTTPShardClient) GetSupply(ctx context.Context, shardURL string) (protocol.Nat, error) {
	var resp protocol.SupplyResponse
	if err := getJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/supply", &resp); err != nil {
		return protocol.Nat{}, err
	}
	return resp.Supply, nil
}

func (c *HTTPShardClient) BalanceOf(ctx context.Context, shardURL string, account common.Address) (protocol.Nat, error) {
	var resp protocol.BalanceResponse
	if err := getJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/balance/"+account.Hex(), &resp); err != nil {
		return protocol.Nat{}, err
	}
	return resp.Balance, nil
}

func (c *HTTPShardClient) TransferFromManager(ctx context.Context, shardURL string, req protocol.TransferRequest) error {
	return postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/transferFromManager", req, nil)
}

func (c *HTTPShardClient) ReceiveTransfer(ctx context.Context, shardURL string, to common.Address, value protocol.Nat) error {
	return postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/receive",
		protocol.ReceiveTransferRequest{To: to, Value: value}, nil)
}

func (c *HTTPShardClient) ReceiveTransferAndCall(ctx context.Context, shardURL string, notification protocol.TransferNotification, notifyURL string) (string, error) {
	var resp protocol.NotifyResponse
	err := postJSON(ctx, c.hc, c.selfURL, shardURL+"/shard/receiveAndCall",
		protocol.ReceiveTransferAndCallRequest{Notification: notification, NotifyURL: notifyURL}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Result, nil
}
