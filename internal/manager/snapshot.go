package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// Snapshot is the manager's durable state as one JSON blob. Numeric
// values are decimal strings so the schema survives readers without
// big-integer JSON support. Fields are only ever added, never renamed.
type Snapshot struct {
	Users      []UserEntry       `json:"users"`
	Shards     []ShardEntry      `json:"shards"`
	Owner      string            `json:"owner"`
	Fee        string            `json:"fee"`
	Underlying string            `json:"underlying_token"`
	Metadata   protocol.Metadata `json:"metadata"`
	DeployTime int64             `json:"deploy_time"`
}

type UserEntry struct {
	Address           string `json:"address"`
	AssignedShard     string `json:"assigned_shard"`
	ShardAccount      string `json:"shard_account,omitempty"`
	Created           bool   `json:"created"`
	PendingCompletion bool   `json:"pending_completion,omitempty"`
}

type ShardEntry struct {
	Addr        string `json:"addr"`
	NumAccounts uint64 `json:"num_accounts"`
}

func (st *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Users:      make([]UserEntry, 0, len(st.users)),
		Shards:     make([]ShardEntry, 0, len(st.shards)),
		Owner:      st.owner.Hex(),
		Fee:        st.fee.Dec(),
		Underlying: st.underlyingToken,
		Metadata:   st.metadata,
		DeployTime: st.deployTime.Unix(),
	}
	for user, account := range st.users {
		entry := UserEntry{
			Address:           user.Hex(),
			AssignedShard:     account.AssignedShard,
			Created:           account.Created,
			PendingCompletion: account.PendingCompletion,
		}
		if account.ShardAccount != nil {
			entry.ShardAccount = account.ShardAccount.Hex()
		}
		snap.Users = append(snap.Users, entry)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Address < snap.Users[j].Address })
	for _, shard := range st.shards {
		snap.Shards = append(snap.Shards, ShardEntry{Addr: shard.Addr, NumAccounts: shard.NumAccounts})
	}
	return snap
}

func (st *State) Restore(snap *Snapshot) error {
	fee, err := parseDec(snap.Fee)
	if err != nil {
		return fmt.Errorf("fee: %w", err)
	}
	st.users = make(map[common.Address]*UserAccount, len(snap.Users))
	for _, entry := range snap.Users {
		account := &UserAccount{
			AssignedShard:     entry.AssignedShard,
			Created:           entry.Created,
			PendingCompletion: entry.PendingCompletion,
		}
		if entry.ShardAccount != "" {
			addr := common.HexToAddress(entry.ShardAccount)
			account.ShardAccount = &addr
		}
		st.users[common.HexToAddress(entry.Address)] = account
	}
	st.shards = make([]*ShardInfo, 0, len(snap.Shards))
	for _, entry := range snap.Shards {
		st.shards = append(st.shards, &ShardInfo{Addr: entry.Addr, NumAccounts: entry.NumAccounts})
	}
	sort.Slice(st.shards, func(i, j int) bool { return st.shards[i].Addr < st.shards[j].Addr })
	st.owner = common.HexToAddress(snap.Owner)
	st.fee = fee
	st.underlyingToken = snap.Underlying
	st.metadata = snap.Metadata
	st.deployTime = time.Unix(snap.DeployTime, 0)
	return nil
}

func parseDec(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	return uint256.FromDecimal(s)
}

// SaveSnapshot writes the state to the configured path via a temp file
// and rename so a crash mid-write never corrupts the previous snapshot
func (s *Service) SaveSnapshot() error {
	if s.snapshotPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.state.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

// LoadSnapshot restores state from the configured path; a missing file
// means a fresh deployment and is not an error
func (s *Service) LoadSnapshot() error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Restore(&snap)
}
