package shard

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/enoki-dex/enoki-wrapped-token/config"
	"github.com/enoki-dex/enoki-wrapped-token/internal/client"
	"github.com/enoki-dex/enoki-wrapped-token/internal/network"
	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

const httpClientTimeout = 10 * time.Second

// Server handles HTTP requests for a shard node. All state transitions
// are linearizable per node: one mutex is held for the full duration of
// every operation, including any remote calls it awaits, so no other
// operation can observe in-flight state.
type Server struct {
	selfURL      string
	state        *State
	router       *mux.Router
	shards       client.ShardClient
	notify       client.NotifyClient
	token        client.TokenClient
	snapshotPath string
	mu           sync.Mutex
}

func NewServer(cfg *config.Config) *Server {
	hc := network.NewHTTPClient(cfg.Network, httpClientTimeout)
	return NewServerWithClients(cfg,
		client.NewHTTPShardClient(cfg.SelfURL, hc),
		client.NewHTTPNotifyClient(cfg.SelfURL, hc),
		client.NewHTTPTokenClient(cfg.SelfURL, hc),
	)
}

// NewServerWithClients wires explicit remote clients (used by tests)
func NewServerWithClients(cfg *config.Config, shards client.ShardClient, notify client.NotifyClient, token client.TokenClient) *Server {
	s := &Server{
		selfURL:      cfg.SelfURL,
		state:        NewState(cfg.SelfURL, cfg.ManagerURL, common.HexToAddress(cfg.Owner), cfg.UnderlyingToken),
		router:       mux.NewRouter(),
		shards:       shards,
		notify:       notify,
		token:        token,
		snapshotPath: cfg.SnapshotPath,
	}
	s.setupRoutes()
	return s
}

// Router returns the HTTP router for testing
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	// manager-administered topology and accounts
	s.router.HandleFunc("/shard/init", s.handleInitShard).Methods("POST")
	s.router.HandleFunc("/shard/accounts", s.handleCreateAccount).Methods("POST")
	s.router.HandleFunc("/shard/siblings", s.handleAddSibling).Methods("POST")
	s.router.HandleFunc("/shard/siblings", s.handleRemoveSibling).Methods("DELETE")
	s.router.HandleFunc("/shard/fee", s.handleSetFee).Methods("POST")

	// caller-facing balance operations
	s.router.HandleFunc("/shard/balance/{address}", s.handleBalanceOf).Methods("GET")
	s.router.HandleFunc("/shard/supply", s.handleGetSupply).Methods("GET")
	s.router.HandleFunc("/shard/fees", s.handleGetAccruedFees).Methods("GET")
	s.router.HandleFunc("/shard/pending", s.handlePendingTransfers).Methods("GET")
	s.router.HandleFunc("/shard/transfer", s.handleTransfer).Methods("POST")
	s.router.HandleFunc("/shard/transferAndCall", s.handleTransferAndCall).Methods("POST")
	s.router.HandleFunc("/shard/spend", s.handleSpend).Methods("POST")
	s.router.HandleFunc("/shard/spendAndCall", s.handleSpendAndCall).Methods("POST")
	s.router.HandleFunc("/shard/transferFromManager", s.handleTransferFromManager).Methods("POST")
	s.router.HandleFunc("/shard/spenders", s.handleAddSpender).Methods("POST")
	s.router.HandleFunc("/shard/spenders", s.handleRemoveSpender).Methods("DELETE")
	s.router.HandleFunc("/shard/wrap", s.handleWrap).Methods("POST")
	s.router.HandleFunc("/shard/unwrap", s.handleUnwrap).Methods("POST")

	// sibling-authenticated transfer legs
	s.router.HandleFunc("/shard/receive", s.handleReceiveTransfer).Methods("POST")
	s.router.HandleFunc("/shard/receiveAndCall", s.handleReceiveTransferAndCall).Methods("POST")

	s.router.HandleFunc("/shard/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Server) Start(addr string) error {
	log.Printf("Shard %s starting on %s", s.selfURL, addr)
	return http.ListenAndServe(addr, s.router)
}

// writeJSON and writeError are the only response paths; every failure
// renders as the error envelope so remote callers recover typed errors.

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

// requireManager gates operations only the trusted manager may invoke
func (s *Server) requireManager(r *http.Request) error {
	if r.Header.Get(protocol.NodeHeader) != s.state.manager {
		return protocol.ErrUnauthorized()
	}
	return nil
}

// requireSibling gates shard-to-shard operations
func (s *Server) requireSibling(r *http.Request) error {
	if !s.state.IsSibling(r.Header.Get(protocol.NodeHeader)) {
		return protocol.ErrUnauthorized()
	}
	return nil
}

// Handler implementations

func (s *Server) handleInitShard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManager(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.InitShardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fee, err := req.Fee.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	s.state.underlyingToken = req.UnderlyingToken
	s.state.siblings = make(map[string]bool)
	for _, sibling := range req.SiblingShards {
		s.state.AddSibling(sibling)
	}
	s.state.SetFee(fee)
	log.Printf("Shard %s: initialized with %d siblings, fee %s", s.selfURL, len(req.SiblingShards), req.Fee.String())
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManager(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.CreateAccountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.CreateAccount(req.Account); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("Shard %s: created account %s", s.selfURL, req.Account.Hex())
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleAddSibling(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManager(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.SiblingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.state.AddSibling(req.Shard)
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleRemoveSibling(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManager(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.SiblingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.state.RemoveSibling(req.Shard)
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManager(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.SetFeeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fee, err := req.Fee.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	s.state.SetFee(fee)
	log.Printf("Shard %s: fee set to %s", s.selfURL, req.Fee.String())
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account := common.HexToAddress(mux.Vars(r)["address"])
	balance, err := s.state.BalanceOf(account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.BalanceResponse{Account: account, Balance: protocol.NatFromUint256(balance)})
}

func (s *Server) handleGetSupply(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, protocol.SupplyResponse{Supply: protocol.NatFromUint256(s.state.Supply())})
}

func (s *Server) handleGetAccruedFees(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, protocol.FeesResponse{AccruedFees: protocol.NatFromUint256(s.state.AccruedFees())})
}

func (s *Server) handlePendingTransfers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transfers := make([]protocol.PendingTransfer, 0, len(s.state.pending))
	for _, record := range s.state.pending {
		transfers = append(transfers, *record)
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].ID < transfers[j].ID })
	writeJSON(w, protocol.PendingTransfersResponse{Transfers: transfers})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.TransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	if err := s.executeTransfer(r.Context(), req.From, req.To, req.ToShard, value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleTransferAndCall(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.TransferAndCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	result, err := s.executeTransferAndCall(r.Context(), req.From, req.To, req.ToShard, value, req.NotifyURL, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.NotifyResponse{Result: result})
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.SpendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.AssertIsSpender(req.From, req.Spender); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	if err := s.executeTransfer(r.Context(), req.From, req.To, req.ToShard, value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleSpendAndCall(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.SpendAndCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.AssertIsSpender(req.From, req.Spender); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	result, err := s.executeTransferAndCall(r.Context(), req.From, req.To, req.ToShard, value, req.NotifyURL, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.NotifyResponse{Result: result})
}

// handleTransferFromManager runs the identical transfer protocol but
// lets the manager name an arbitrary sender (indirect routing where the
// caller and sender differ).
func (s *Server) handleTransferFromManager(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManager(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.TransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	if err := s.executeTransfer(r.Context(), req.From, req.To, req.ToShard, value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleAddSpender(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.SpenderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.AssertIsCustomer(req.Account); err != nil {
		writeError(w, err)
		return
	}
	s.state.AddSpender(req.Account, req.Spender)
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleRemoveSpender(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.SpenderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.state.RemoveSpender(req.Account, req.Spender)
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSibling(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.ReceiveTransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.AssertIsCustomer(req.To); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	if err := s.state.IncreaseBalance(req.To, value); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("Shard %s: received %s for %s", s.selfURL, req.Value.String(), req.To.Hex())
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

// handleReceiveTransferAndCall delivers a forwarded notification to a
// local notify endpoint and credits the recipient only if the endpoint
// acknowledges. On failure nothing is credited here; the sending shard
// still holds the value in escrow and refunds its sender.
func (s *Server) handleReceiveTransferAndCall(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSibling(r); err != nil {
		writeError(w, err)
		return
	}
	var req protocol.ReceiveTransferAndCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.AssertIsCustomer(req.Notification.To); err != nil {
		writeError(w, err)
		return
	}
	value, err := req.Notification.Value.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	result, err := s.notify.Notify(r.Context(), req.NotifyURL, req.Notification)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.IncreaseBalance(req.Notification.To, value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.NotifyResponse{Result: result})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{
		"shard":    s.selfURL,
		"manager":  s.state.manager,
		"siblings": len(s.state.siblings),
		"fee":      protocol.NatFromUint256(s.state.Fee()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}
