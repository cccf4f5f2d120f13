package protocol

import (
	"github.com/ethereum/go-ethereum/common"
)

// NodeHeader carries the calling node's public URL on privileged
// node-to-node requests. Receivers compare it against their trusted
// manager address or sibling shard set.
const NodeHeader = "X-Enoki-Node"

// ErrorBody is the JSON envelope for failed responses
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// StatusResponse acknowledges a successful mutation
type StatusResponse struct {
	Status string `json:"status"`
}

// TransferNotification is the record delivered to a recipient's notify
// endpoint during a notify-and-settle transfer. Value is the amount net
// of the fee; Data is an opaque payload passed through untouched.
type TransferNotification struct {
	To         common.Address `json:"to"`
	From       common.Address `json:"from"`
	FromShard  string         `json:"from_shard"`
	FeeCharged Nat            `json:"fee_charged"`
	Value      Nat            `json:"value"`
	Data       string         `json:"data,omitempty"`
}

// NotifyResponse carries the recipient's opaque settlement acknowledgment
type NotifyResponse struct {
	Result string `json:"result"`
}

// ---------------------------------------------------------------------------
// Shard node requests
// ---------------------------------------------------------------------------

type CreateAccountRequest struct {
	Account common.Address `json:"account"`
}

// InitShardRequest initializes a freshly added shard with current topology
type InitShardRequest struct {
	UnderlyingToken string   `json:"underlying_token"`
	SiblingShards   []string `json:"sibling_shards"`
	Fee             Nat      `json:"fee"`
}

type SiblingRequest struct {
	Shard string `json:"shard"`
}

type SetFeeRequest struct {
	Fee Nat `json:"fee"`
}

// TransferRequest initiates a transfer out of From's balance. ToShard is
// the destination shard's address; recipient existence is checked locally
// only when ToShard is the local shard.
type TransferRequest struct {
	From    common.Address `json:"from"`
	ToShard string         `json:"to_shard"`
	To      common.Address `json:"to"`
	Value   Nat            `json:"value"`
}

// TransferAndCallRequest is a notify-and-settle transfer: funds are held
// in escrow until the notify endpoint acknowledges or rejects delivery.
type TransferAndCallRequest struct {
	From      common.Address `json:"from"`
	ToShard   string         `json:"to_shard"`
	To        common.Address `json:"to"`
	Value     Nat            `json:"value"`
	NotifyURL string         `json:"notify_url"`
	Data      string         `json:"data,omitempty"`
}

// SpendRequest is a delegated transfer: Spender must be registered as a
// spender of From's account.
type SpendRequest struct {
	Spender common.Address `json:"spender"`
	From    common.Address `json:"from"`
	ToShard string         `json:"to_shard"`
	To      common.Address `json:"to"`
	Value   Nat            `json:"value"`
}

type SpendAndCallRequest struct {
	Spender   common.Address `json:"spender"`
	From      common.Address `json:"from"`
	ToShard   string         `json:"to_shard"`
	To        common.Address `json:"to"`
	Value     Nat            `json:"value"`
	NotifyURL string         `json:"notify_url"`
	Data      string         `json:"data,omitempty"`
}

// ReceiveTransferRequest credits a recipient on behalf of a sibling shard
type ReceiveTransferRequest struct {
	To    common.Address `json:"to"`
	Value Nat            `json:"value"`
}

// ReceiveTransferAndCallRequest forwards a notification for same-shard
// delivery: the receiving shard invokes NotifyURL and credits the
// recipient only if the call succeeds.
type ReceiveTransferAndCallRequest struct {
	Notification TransferNotification `json:"notification"`
	NotifyURL    string               `json:"notify_url"`
}

type SpenderRequest struct {
	Account common.Address `json:"account"`
	Spender common.Address `json:"spender"`
}

type WrapRequest struct {
	Account common.Address `json:"account"`
	Amount  Nat            `json:"amount"`
}

type UnwrapRequest struct {
	Account common.Address `json:"account"`
	Amount  Nat            `json:"amount"`
	To      common.Address `json:"to"`
}

type BalanceResponse struct {
	Account common.Address `json:"account"`
	Balance Nat            `json:"balance"`
}

type SupplyResponse struct {
	Supply Nat `json:"supply"`
}

type FeesResponse struct {
	AccruedFees Nat `json:"accrued_fees"`
}

// PendingTransferState tracks a cross-shard transfer whose remote leg is
// or was outstanding. A transfer that never leaves AwaitingRemote means
// the remote call never returned; the protocol has no timeout for that
// case and the record stays visible for the integrator to act on.
type PendingTransferState string

const (
	TransferDebited        PendingTransferState = "debited"
	TransferAwaitingRemote PendingTransferState = "awaiting_remote"
	TransferSettled        PendingTransferState = "settled"
	TransferRolledBack     PendingTransferState = "rolled_back"
)

// PendingTransfer is the explicit record of an in-flight cross-shard
// transfer between the local debit and the remote settlement.
type PendingTransfer struct {
	ID      string               `json:"id"`
	From    common.Address       `json:"from"`
	To      common.Address       `json:"to"`
	ToShard string               `json:"to_shard"`
	Value   Nat                  `json:"value"`
	State   PendingTransferState `json:"state"`
}

type PendingTransfersResponse struct {
	Transfers []PendingTransfer `json:"transfers"`
}

// ---------------------------------------------------------------------------
// Manager node requests
// ---------------------------------------------------------------------------

type RegisterRequest struct {
	Address common.Address `json:"address"`
}

type RegisterResponse struct {
	Shard string `json:"shard"`
}

// CompleteRegistrationRequest binds the user's chosen in-shard account
// to the shard reserved by startRegistration.
type CompleteRegistrationRequest struct {
	Address      common.Address `json:"address"`
	ShardAccount common.Address `json:"shard_account"`
}

type ManagerTransferRequest struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value Nat            `json:"value"`
}

type AddShardRequest struct {
	Caller common.Address `json:"caller"`
	Shard  string         `json:"shard"`
}

type ManagerSetFeeRequest struct {
	Caller common.Address `json:"caller"`
	Fee    Nat            `json:"fee"`
}

type SetOwnerRequest struct {
	Caller common.Address `json:"caller"`
	Owner  common.Address `json:"owner"`
}

type StatsResponse struct {
	TotalSupply Nat            `json:"total_supply"`
	Owner       common.Address `json:"owner"`
	Fee         Nat            `json:"fee"`
	NumShards   int            `json:"num_shards"`
	NumUsers    int            `json:"num_users"`
	DeployTime  int64          `json:"deploy_time"`
}

// Metadata describes the wrapped token itself
type Metadata struct {
	Logo     string `json:"logo"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type SetLogoRequest struct {
	Caller common.Address `json:"caller"`
	Logo   string         `json:"logo"`
}

// ---------------------------------------------------------------------------
// Underlying token (bridge) wire surface
// ---------------------------------------------------------------------------

// TokenMetadata is the slice of the underlying asset service's metadata
// the shard cares about: the fee it charges per transfer.
type TokenMetadata struct {
	Fee Nat `json:"fee"`
}

type AllowanceResponse struct {
	Allowance Nat `json:"allowance"`
}

type TokenTransferFromRequest struct {
	From  common.Address `json:"from"`
	To    string         `json:"to"`
	Value Nat            `json:"value"`
}

type TokenTransferRequest struct {
	To    common.Address `json:"to"`
	Value Nat            `json:"value"`
}
