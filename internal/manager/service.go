package manager

import (
	"context"
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/enoki-dex/enoki-wrapped-token/config"
	"github.com/enoki-dex/enoki-wrapped-token/internal/client"
	"github.com/enoki-dex/enoki-wrapped-token/internal/network"
	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

const httpClientTimeout = 10 * time.Second

// Service is the manager node: it assigns users to shards, brokers
// indirect transfers, and administers shard topology and the fee.
// Operations run one at a time against the manager's state; fan-outs to
// shards issue their remote calls concurrently within one operation.
type Service struct {
	selfURL      string
	state        *State
	router       *mux.Router
	shards       client.ShardClient
	snapshotPath string
	mu           sync.Mutex
}

func NewService(cfg *config.Config, metadata protocol.Metadata) (*Service, error) {
	hc := network.NewHTTPClient(cfg.Network, httpClientTimeout)
	return NewServiceWithClient(cfg, metadata, client.NewHTTPShardClient(cfg.SelfURL, hc))
}

// NewServiceWithClient wires an explicit shard client (used by tests)
func NewServiceWithClient(cfg *config.Config, metadata protocol.Metadata, shards client.ShardClient) (*Service, error) {
	fee := uint256.NewInt(0)
	if cfg.Fee != "" {
		parsed, err := uint256.FromDecimal(cfg.Fee)
		if err != nil {
			return nil, err
		}
		fee = parsed
	}
	s := &Service{
		selfURL:      cfg.SelfURL,
		state:        NewState(common.HexToAddress(cfg.Owner), fee, cfg.UnderlyingToken, metadata),
		router:       mux.NewRouter(),
		shards:       shards,
		snapshotPath: cfg.SnapshotPath,
	}
	s.setupRoutes()
	return s, nil
}

// Router returns the HTTP router for testing
func (s *Service) Router() *mux.Router {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.HandleFunc("/register", s.handleRegister).Methods("POST")
	s.router.HandleFunc("/register/start", s.handleStartRegistration).Methods("POST")
	s.router.HandleFunc("/register/complete", s.handleCompleteRegistration).Methods("POST")
	s.router.HandleFunc("/shards/assigned/{address}", s.handleGetAssignedShard).Methods("GET")
	s.router.HandleFunc("/transfer", s.handleTransfer).Methods("POST")
	s.router.HandleFunc("/balance/{address}", s.handleBalanceOf).Methods("GET")
	s.router.HandleFunc("/supply", s.handleTotalSupply).Methods("GET")
	s.router.HandleFunc("/shards", s.handleAddShard).Methods("POST")
	s.router.HandleFunc("/fee", s.handleSetFee).Methods("POST")
	s.router.HandleFunc("/owner", s.handleSetOwner).Methods("POST")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/metadata", s.handleGetMetadata).Methods("GET")
	s.router.HandleFunc("/metadata/logo", s.handleSetLogo).Methods("POST")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Service) Start(addr string) error {
	log.Printf("Manager %s starting on %s", s.selfURL, addr)
	return http.ListenAndServe(addr, s.router)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := protocol.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(protocol.HTTPStatus(code))
	json.NewEncoder(w).Encode(protocol.ErrorBody{Code: code, Message: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return protocol.ErrOther("bad request: " + err.Error())
	}
	return nil
}

func (s *Service) requireOwner(caller common.Address) error {
	if caller != s.state.Owner() {
		return protocol.ErrUnauthorized()
	}
	return nil
}

// register assigns user to the least-loaded shard and has that shard
// open the account. Repeated registration returns the existing
// assignment; if an earlier remote create failed after the assignment
// was committed, re-registering re-issues the create call, so the call
// is the retry path as well as the lookup path.
func (s *Service) register(ctx context.Context, user common.Address) (string, error) {
	account := s.state.UserFor(user)
	if account == nil {
		shard, err := s.state.PickLeastLoaded()
		if err != nil {
			return "", err
		}
		account = &UserAccount{AssignedShard: shard}
		s.state.AddUser(user, account)
		s.state.IncrementLoad(shard)
	}
	if account.Created || account.PendingCompletion {
		return account.AssignedShard, nil
	}
	err := s.shards.CreateAccount(ctx, account.AssignedShard, user)
	if err != nil && protocol.CodeOf(err) != protocol.CodeAccountExists {
		// the assignment is already committed; the caller retries by
		// registering again
		return "", err
	}
	account.Created = true
	return account.AssignedShard, nil
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	shard, err := s.register(r.Context(), req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("Manager: registered %s on %s", req.Address.Hex(), shard)
	writeJSON(w, protocol.RegisterResponse{Shard: shard})
}

// handleStartRegistration reserves a shard without any remote call; the
// caller later binds its own in-shard identity via completeRegistration.
func (s *Service) handleStartRegistration(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account := s.state.UserFor(req.Address)
	if account != nil {
		if account.Created {
			writeError(w, protocol.ErrAccountExists())
			return
		}
		writeJSON(w, protocol.RegisterResponse{Shard: account.AssignedShard})
		return
	}
	shard, err := s.state.PickLeastLoaded()
	if err != nil {
		writeError(w, err)
		return
	}
	s.state.AddUser(req.Address, &UserAccount{AssignedShard: shard, PendingCompletion: true})
	s.state.IncrementLoad(shard)
	writeJSON(w, protocol.RegisterResponse{Shard: shard})
}

func (s *Service) handleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.CompleteRegistrationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account := s.state.UserFor(req.Address)
	if account == nil {
		writeError(w, protocol.ErrAccountNotFound(s.selfURL, req.Address.Hex()))
		return
	}
	if account.Created || !account.PendingCompletion {
		writeError(w, protocol.ErrAccountExists())
		return
	}
	err := s.shards.CreateAccount(r.Context(), account.AssignedShard, req.ShardAccount)
	if err != nil && protocol.CodeOf(err) != protocol.CodeAccountExists {
		writeError(w, err)
		return
	}
	shardAccount := req.ShardAccount
	account.ShardAccount = &shardAccount
	account.Created = true
	account.PendingCompletion = false
	writeJSON(w, protocol.RegisterResponse{Shard: account.AssignedShard})
}

func (s *Service) handleGetAssignedShard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := common.HexToAddress(mux.Vars(r)["address"])
	account := s.state.UserFor(user)
	if account == nil {
		writeError(w, protocol.ErrAccountNotFound(s.selfURL, user.Hex()))
		return
	}
	writeJSON(w, protocol.RegisterResponse{Shard: account.AssignedShard})
}

// shardAccountFor resolves the user's in-shard address: the one chosen
// during decoupled registration if any, else the outer address itself
func shardAccountFor(user common.Address, account *UserAccount) common.Address {
	if account != nil && account.ShardAccount != nil {
		return *account.ShardAccount
	}
	return user
}

// handleTransfer brokers an indirect transfer: both parties are
// registered (idempotent), then the sender's shard runs the transfer
// protocol under manager authority.
func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.ManagerTransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fromShard, err := s.register(r.Context(), req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	toShard, err := s.register(r.Context(), req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.shards.TransferFromManager(r.Context(), fromShard, protocol.TransferRequest{
		From:    shardAccountFor(req.From, s.state.UserFor(req.From)),
		ToShard: toShard,
		To:      shardAccountFor(req.To, s.state.UserFor(req.To)),
		Value:   req.Value,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

// handleBalanceOf routes the query to the user's shard. Unknown users
// read as zero rather than an error.
func (s *Service) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := common.HexToAddress(mux.Vars(r)["address"])
	account := s.state.UserFor(user)
	if account == nil || !account.Created {
		writeJSON(w, protocol.BalanceResponse{Account: user, Balance: protocol.NewNat(0)})
		return
	}
	balance, err := s.shards.BalanceOf(r.Context(), account.AssignedShard, shardAccountFor(user, account))
	if err != nil {
		writeJSON(w, protocol.BalanceResponse{Account: user, Balance: protocol.NewNat(0)})
		return
	}
	writeJSON(w, protocol.BalanceResponse{Account: user, Balance: balance})
}

// totalSupply queries every shard concurrently and sums the results.
// Any shard failure fails the aggregate; there is no partial sum.
func (s *Service) totalSupply(ctx context.Context) (*big.Int, error) {
	addrs := s.state.ShardAddrs()
	supplies := make([]protocol.Nat, len(addrs))
	g, ctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			supply, err := s.shards.GetSupply(ctx, addr)
			if err != nil {
				return err
			}
			supplies[i] = supply
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, supply := range supplies {
		total.Add(total, supply.ToBig())
	}
	return total, nil
}

func (s *Service) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, err := s.totalSupply(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.SupplyResponse{Supply: protocol.NatFromBig(total)})
}

// handleAddShard initializes the new shard with the current topology,
// broadcasts its address to every existing shard, then records it with
// zero load. A failed broadcast is surfaced and the shard is not
// recorded; re-invoking addShard is the recovery path.
func (s *Service) handleAddShard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.AddShardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireOwner(req.Caller); err != nil {
		writeError(w, err)
		return
	}
	if s.state.HasShard(req.Shard) {
		writeError(w, protocol.ErrOther("shard already registered"))
		return
	}

	siblings := s.state.ShardAddrs()
	err := s.shards.InitShard(r.Context(), req.Shard, protocol.InitShardRequest{
		UnderlyingToken: s.state.underlyingToken,
		SiblingShards:   siblings,
		Fee:             protocol.NatFromUint256(s.state.Fee()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	for _, sibling := range siblings {
		sibling := sibling
		g.Go(func() error {
			return s.shards.AddSiblingShard(ctx, sibling, req.Shard)
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, err)
		return
	}

	s.state.AddShard(req.Shard)
	log.Printf("Manager: added shard %s (%d total)", req.Shard, s.state.NumShards())
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

// handleSetFee fans the new fee out to every shard, then records it
func (s *Service) handleSetFee(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.ManagerSetFeeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireOwner(req.Caller); err != nil {
		writeError(w, err)
		return
	}
	fee, err := req.Fee.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	for _, addr := range s.state.ShardAddrs() {
		addr := addr
		g.Go(func() error {
			return s.shards.SetFee(ctx, addr, req.Fee)
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, err)
		return
	}

	s.state.fee = fee
	log.Printf("Manager: fee set to %s", req.Fee.String())
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Service) handleSetOwner(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.SetOwnerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireOwner(req.Caller); err != nil {
		writeError(w, err)
		return
	}
	s.state.owner = req.Owner
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, err := s.totalSupply(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatsResponse{
		TotalSupply: protocol.NatFromBig(total),
		Owner:       s.state.Owner(),
		Fee:         protocol.NatFromUint256(s.state.Fee()),
		NumShards:   s.state.NumShards(),
		NumUsers:    s.state.NumUsers(),
		DeployTime:  s.state.deployTime.Unix(),
	})
}

func (s *Service) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.state.metadata)
}

func (s *Service) handleSetLogo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.SetLogoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireOwner(req.Caller); err != nil {
		writeError(w, err)
		return
	}
	s.state.metadata.Logo = req.Logo
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}
