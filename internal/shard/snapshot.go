package shard

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// Snapshot is the serialized form of a shard's full state, written on a
// controlled restart and restored verbatim at boot. Balances are carried
// as address/decimal-string pairs so no precision is lost. The schema
// only ever gains fields, never renames or drops them.
type Snapshot struct {
	Balances    []BalanceEntry             `json:"balances"`
	Escrow      EscrowSnapshot             `json:"escrow"`
	AccruedFees string                     `json:"accrued_fees"`
	Spenders    []SpenderEntry             `json:"spenders,omitempty"`
	Manager     string                     `json:"manager"`
	Owner       common.Address             `json:"owner"`
	Fee         string                     `json:"fee"`
	Underlying  string                     `json:"underlying_token"`
	Siblings    []string                   `json:"sibling_shards"`
	Pending     []protocol.PendingTransfer `json:"pending_transfers,omitempty"`
}

type BalanceEntry struct {
	Account common.Address `json:"account"`
	Balance string         `json:"balance"`
}

type EscrowSnapshot struct {
	LastID   uint64         `json:"last_id"`
	Deposits []EscrowDeposit `json:"deposits,omitempty"`
}

type EscrowDeposit struct {
	ID    uint64 `json:"id"`
	Value string `json:"value"`
}

type SpenderEntry struct {
	Account  common.Address   `json:"account"`
	Spenders []common.Address `json:"spenders"`
}

// Snapshot captures the current state
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Escrow:      EscrowSnapshot{LastID: s.escrow.lastID},
		AccruedFees: s.accrued.Dec(),
		Manager:     s.manager,
		Owner:       s.owner,
		Fee:         s.fee.Dec(),
		Underlying:  s.underlyingToken,
		Siblings:    s.Siblings(),
	}
	for account, balance := range s.balances {
		snap.Balances = append(snap.Balances, BalanceEntry{Account: account, Balance: balance.Dec()})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Account.Hex() < snap.Balances[j].Account.Hex()
	})
	for id, value := range s.escrow.deposits {
		snap.Escrow.Deposits = append(snap.Escrow.Deposits, EscrowDeposit{ID: id, Value: value.Dec()})
	}
	for account, set := range s.spenders {
		entry := SpenderEntry{Account: account}
		for spender := range set {
			entry.Spenders = append(entry.Spenders, spender)
		}
		snap.Spenders = append(snap.Spenders, entry)
	}
	for _, record := range s.pending {
		snap.Pending = append(snap.Pending, *record)
	}
	sort.Strings(snap.Siblings)
	return snap
}

// Restore replaces the state with the snapshot's contents
func (s *State) Restore(snap *Snapshot) error {
	balances := make(map[common.Address]*uint256.Int, len(snap.Balances))
	for _, entry := range snap.Balances {
		value, err := parseDec(entry.Balance)
		if err != nil {
			return fmt.Errorf("balance for %s: %w", entry.Account.Hex(), err)
		}
		balances[entry.Account] = value
	}
	deposits := make(map[uint64]*uint256.Int, len(snap.Escrow.Deposits))
	for _, deposit := range snap.Escrow.Deposits {
		value, err := parseDec(deposit.Value)
		if err != nil {
			return fmt.Errorf("escrow deposit %d: %w", deposit.ID, err)
		}
		deposits[deposit.ID] = value
	}
	accrued, err := parseDec(snap.AccruedFees)
	if err != nil {
		return fmt.Errorf("accrued fees: %w", err)
	}
	fee, err := parseDec(snap.Fee)
	if err != nil {
		return fmt.Errorf("fee: %w", err)
	}

	s.balances = balances
	s.escrow = &EscrowTable{lastID: snap.Escrow.LastID, deposits: deposits}
	s.accrued = accrued
	s.spenders = make(map[common.Address]map[common.Address]bool)
	for _, entry := range snap.Spenders {
		for _, spender := range entry.Spenders {
			s.AddSpender(entry.Account, spender)
		}
	}
	s.manager = snap.Manager
	s.owner = snap.Owner
	s.fee = fee
	s.underlyingToken = snap.Underlying
	s.siblings = make(map[string]bool)
	for _, sibling := range snap.Siblings {
		s.AddSibling(sibling)
	}
	s.pending = make(map[string]*protocol.PendingTransfer)
	for i := range snap.Pending {
		record := snap.Pending[i]
		s.pending[record.ID] = &record
	}
	return nil
}

func parseDec(value string) (*uint256.Int, error) {
	if value == "" {
		return uint256.NewInt(0), nil
	}
	return uint256.FromDecimal(value)
}

// SaveSnapshot writes the node's state to its configured snapshot path
func (s *Server) SaveSnapshot() error {
	if s.snapshotPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.state.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.snapshotPath)
}

// LoadSnapshot restores saved state if a snapshot file exists
func (s *Server) LoadSnapshot() error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Restore(snap); err != nil {
		return err
	}
	log.Printf("Shard %s: restored snapshot with %d accounts", s.selfURL, len(snap.Balances))
	return nil
}
