package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/enoki-dex/enoki-wrapped-token/config"
	"github.com/enoki-dex/enoki-wrapped-token/internal/client"
	"github.com/enoki-dex/enoki-wrapped-token/internal/manager"
	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
	"github.com/enoki-dex/enoki-wrapped-token/internal/shard"
)

var (
	owner = common.HexToAddress("0x000000000000000000000000000000000000000d")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// lateHandler lets an httptest server start before the node behind it is
// built, so node URLs are known at construction time.
type lateHandler struct {
	handler http.Handler
}

func (l *lateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.handler.ServeHTTP(w, r)
}

// fakeUnderlyingToken is an HTTP stand-in for the wrapped asset service
func fakeUnderlyingToken(t *testing.T, fee string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metadata", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"fee": fee})
	})
	mux.HandleFunc("GET /allowance", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"allowance": "1000000"})
	})
	mux.HandleFunc("POST /transferFrom", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /transfer", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// TestEnv runs a manager and shard nodes over real HTTP
type TestEnv struct {
	Manager    *manager.Service
	ManagerURL string
	Client     *client.HTTPManagerClient
	Shards     []*shard.Server
	ShardURLs  []string
}

func NewTestEnv(t *testing.T, numShards int) *TestEnv {
	t.Helper()
	token := fakeUnderlyingToken(t, "2")

	managerHolder := &lateHandler{}
	managerServer := httptest.NewServer(managerHolder)
	t.Cleanup(managerServer.Close)

	shardHolders := make([]*lateHandler, numShards)
	env := &TestEnv{
		ManagerURL: managerServer.URL,
		Client:     client.NewHTTPManagerClient(managerServer.URL, &http.Client{}),
	}
	for i := 0; i < numShards; i++ {
		shardHolders[i] = &lateHandler{}
		server := httptest.NewServer(shardHolders[i])
		t.Cleanup(server.Close)
		env.ShardURLs = append(env.ShardURLs, server.URL)
	}

	managerService, err := manager.NewService(&config.Config{
		SelfURL:         managerServer.URL,
		Owner:           owner.Hex(),
		Fee:             "1",
		UnderlyingToken: token.URL,
	}, protocol.Metadata{Name: "Wrapped Test", Symbol: "wTEST", Decimals: 8})
	require.NoError(t, err)
	managerHolder.handler = managerService.Router()
	env.Manager = managerService

	for i := 0; i < numShards; i++ {
		shardNode := shard.NewServer(&config.Config{
			SelfURL:         env.ShardURLs[i],
			ManagerURL:      managerServer.URL,
			UnderlyingToken: token.URL,
			Owner:           owner.Hex(),
		})
		shardHolders[i].handler = shardNode.Router()
		env.Shards = append(env.Shards, shardNode)

		env.post(t, env.ManagerURL+"/shards",
			protocol.AddShardRequest{Caller: owner, Shard: env.ShardURLs[i]}, nil)
	}
	return env
}

func (e *TestEnv) post(t *testing.T, url string, body, out any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "POST %s", url)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

// postExpectingError returns the decoded error envelope of a failed call
func (e *TestEnv) postExpectingError(t *testing.T, url string, body any) protocol.ErrorBody {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEqual(t, http.StatusOK, resp.StatusCode, "POST %s unexpectedly succeeded", url)
	var envelope protocol.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func (e *TestEnv) get(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", url)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *TestEnv) register(t *testing.T, user common.Address) string {
	t.Helper()
	shard, err := e.Client.Register(context.Background(), user)
	require.NoError(t, err)
	return shard
}

func (e *TestEnv) transfer(t *testing.T, from, to common.Address, value uint64) {
	t.Helper()
	require.NoError(t, e.Client.Transfer(context.Background(), from, to, protocol.NewNat(value)))
}

func (e *TestEnv) balance(t *testing.T, user common.Address) string {
	t.Helper()
	balance, err := e.Client.BalanceOf(context.Background(), user)
	require.NoError(t, err)
	return balance.String()
}

func (e *TestEnv) totalSupply(t *testing.T) string {
	t.Helper()
	supply, err := e.Client.TotalSupply(context.Background())
	require.NoError(t, err)
	return supply.String()
}

// wrap funds a registered user through the fake underlying asset service
func (e *TestEnv) wrap(t *testing.T, shardURL string, user common.Address, amount uint64) {
	t.Helper()
	e.post(t, shardURL+"/shard/wrap", protocol.WrapRequest{
		Account: user, Amount: protocol.NewNat(amount),
	}, nil)
}

func TestCrossShardTransfer(t *testing.T) {
	env := NewTestEnv(t, 2)

	aliceShard := env.register(t, alice)
	bobShard := env.register(t, bob)
	require.NotEqual(t, aliceShard, bobShard, "two users on two empty shards must land apart")

	assigned, err := env.Client.GetAssignedShard(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, aliceShard, assigned)

	// deposit 100 of the underlying asset; its fee of 2 comes off the top
	env.wrap(t, aliceShard, alice, 100)
	require.Equal(t, "98", env.balance(t, alice))
	require.Equal(t, "98", env.totalSupply(t))

	env.transfer(t, alice, bob, 50)

	// alice pays the transfer fee of 1, bob receives the rest
	require.Equal(t, "48", env.balance(t, alice))
	require.Equal(t, "49", env.balance(t, bob))

	// the fee stays in supply, attributed to no account
	require.Equal(t, "98", env.totalSupply(t))

	var pending protocol.PendingTransfersResponse
	env.get(t, aliceShard+"/shard/pending", &pending)
	require.Len(t, pending.Transfers, 1)
	require.Equal(t, protocol.TransferSettled, pending.Transfers[0].State)

	stats, err := env.Client.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.NumShards)
	require.Equal(t, 2, stats.NumUsers)
	require.Equal(t, "98", stats.TotalSupply.String())
}

func TestTransferInsufficientBalance(t *testing.T) {
	env := NewTestEnv(t, 2)
	aliceShard := env.register(t, alice)
	env.register(t, bob)
	env.wrap(t, aliceShard, alice, 100)

	err := env.Client.Transfer(context.Background(), alice, bob, protocol.NewNat(1000))
	require.Error(t, err)
	require.Equal(t, protocol.CodeInsufficientBalance, protocol.CodeOf(err))

	// nothing moved, nothing was charged
	require.Equal(t, "98", env.balance(t, alice))
	require.Equal(t, "0", env.balance(t, bob))
	require.Equal(t, "98", env.totalSupply(t))
}

func TestDecoupledRegistration(t *testing.T) {
	env := NewTestEnv(t, 2)
	shardAccount := common.HexToAddress("0x00000000000000000000000000000000000000e5")

	assigned, err := env.Client.StartRegistration(context.Background(), alice)
	require.NoError(t, err)
	require.NoError(t, env.Client.CompleteRegistration(context.Background(), alice, shardAccount))

	// funds live under the bound in-shard account
	env.wrap(t, assigned, shardAccount, 100)
	require.Equal(t, "98", env.balance(t, alice))

	// and indirect transfers debit it transparently
	env.register(t, bob)
	env.transfer(t, alice, bob, 50)
	require.Equal(t, "48", env.balance(t, alice))
	require.Equal(t, "49", env.balance(t, bob))
}

func TestNotifyAndSettleRefusal(t *testing.T) {
	env := NewTestEnv(t, 2)
	aliceShard := env.register(t, alice)
	bobShard := env.register(t, bob)
	env.wrap(t, aliceShard, alice, 100)

	refusing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not expecting this payment", http.StatusInternalServerError)
	}))
	t.Cleanup(refusing.Close)

	env.postExpectingError(t, aliceShard+"/shard/transferAndCall", protocol.TransferAndCallRequest{
		From: alice, ToShard: bobShard, To: bob, Value: protocol.NewNat(50),
		NotifyURL: refusing.URL,
	})

	// the fee is kept, the escrowed remainder returns to the sender
	require.Equal(t, "97", env.balance(t, alice))
	require.Equal(t, "0", env.balance(t, bob))
	require.Equal(t, "98", env.totalSupply(t))

	var pending protocol.PendingTransfersResponse
	env.get(t, aliceShard+"/shard/pending", &pending)
	require.Len(t, pending.Transfers, 1)
	require.Equal(t, protocol.TransferRolledBack, pending.Transfers[0].State)
}

func TestNotifyAndSettleAcceptance(t *testing.T) {
	env := NewTestEnv(t, 2)
	aliceShard := env.register(t, alice)
	bobShard := env.register(t, bob)
	env.wrap(t, aliceShard, alice, 100)

	var delivered protocol.TransferNotification
	accepting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&delivered))
		json.NewEncoder(w).Encode(protocol.NotifyResponse{Result: "payment accepted"})
	}))
	t.Cleanup(accepting.Close)

	var resp protocol.NotifyResponse
	env.post(t, aliceShard+"/shard/transferAndCall", protocol.TransferAndCallRequest{
		From: alice, ToShard: bobShard, To: bob, Value: protocol.NewNat(50),
		NotifyURL: accepting.URL, Data: "order-7512",
	}, &resp)
	require.Equal(t, "payment accepted", resp.Result)

	require.Equal(t, "48", env.balance(t, alice))
	require.Equal(t, "49", env.balance(t, bob))
	require.Equal(t, alice, delivered.From)
	require.Equal(t, "49", delivered.Value.String())
	require.Equal(t, "order-7512", delivered.Data)
}

func TestUnwrapWithdrawsUnderlying(t *testing.T) {
	env := NewTestEnv(t, 1)
	aliceShard := env.register(t, alice)
	env.wrap(t, aliceShard, alice, 100)

	env.post(t, aliceShard+"/shard/unwrap", protocol.UnwrapRequest{
		Account: alice, Amount: protocol.NewNat(50), To: alice,
	}, nil)

	// 50 burned: 1 local fee accrues, the rest leaves through the bridge
	require.Equal(t, "48", env.balance(t, alice))
	require.Equal(t, "49", env.totalSupply(t))
}

func TestFeeChangePropagates(t *testing.T) {
	env := NewTestEnv(t, 2)
	aliceShard := env.register(t, alice)
	env.register(t, bob)
	env.wrap(t, aliceShard, alice, 100)

	env.post(t, env.ManagerURL+"/fee", protocol.ManagerSetFeeRequest{
		Caller: owner, Fee: protocol.NewNat(10),
	}, nil)

	env.transfer(t, alice, bob, 50)
	require.Equal(t, "48", env.balance(t, alice))
	require.Equal(t, "40", env.balance(t, bob))
}

func TestLateShardJoinsTopology(t *testing.T) {
	env := NewTestEnv(t, 2)
	aliceShard := env.register(t, alice)
	env.wrap(t, aliceShard, alice, 100)

	// a third shard joins after the system is live
	holder := &lateHandler{}
	server := httptest.NewServer(holder)
	t.Cleanup(server.Close)
	newShard := shard.NewServer(&config.Config{
		SelfURL:    server.URL,
		ManagerURL: env.ManagerURL,
		Owner:      owner.Hex(),
	})
	holder.handler = newShard.Router()
	env.post(t, env.ManagerURL+"/shards",
		protocol.AddShardRequest{Caller: owner, Shard: server.URL}, nil)

	// the two empty shards absorb the next registrations, so one of
	// these users lands on the new shard
	users := []common.Address{
		common.HexToAddress("0x11"), common.HexToAddress("0x12"),
	}
	var onNewShard common.Address
	for _, user := range users {
		if env.register(t, user) == server.URL {
			onNewShard = user
		}
	}
	require.NotEqual(t, common.Address{}, onNewShard, "no user assigned to the new shard")

	// and value can flow to it from the old shards
	env.transfer(t, alice, onNewShard, 30)
	require.Equal(t, "29", env.balance(t, onNewShard))
	require.Equal(t, "98", env.totalSupply(t))
}
