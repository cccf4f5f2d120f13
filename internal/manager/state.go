package manager

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// UserAccount is the manager's record of where a user lives. ShardAccount
// is set when the user registered through the decoupled flow and chose
// its own in-shard identity; otherwise the user's outer address is also
// its address inside the shard.
type UserAccount struct {
	AssignedShard string
	ShardAccount  *common.Address
	// Created is true once the shard has confirmed the account. A false
	// value with no pending completion means the remote create failed
	// after the assignment was committed; re-registering repairs it.
	Created bool
	// PendingCompletion marks a startRegistration reservation that has
	// not yet been bound to an in-shard address.
	PendingCompletion bool
}

// ShardInfo tracks one shard's address and load proxy
type ShardInfo struct {
	Addr        string
	NumAccounts uint64
}

// State is the manager's full mutable state, owned by the Service
type State struct {
	users  map[common.Address]*UserAccount
	shards []*ShardInfo // kept ordered by address

	owner           common.Address
	fee             *uint256.Int
	underlyingToken string
	metadata        protocol.Metadata
	deployTime      time.Time
}

func NewState(owner common.Address, fee *uint256.Int, underlyingToken string, metadata protocol.Metadata) *State {
	return &State{
		users:           make(map[common.Address]*UserAccount),
		owner:           owner,
		fee:             new(uint256.Int).Set(fee),
		underlyingToken: underlyingToken,
		metadata:        metadata,
		deployTime:      time.Now(),
	}
}

// UserFor returns the record for user, or nil
func (s *State) UserFor(user common.Address) *UserAccount {
	return s.users[user]
}

func (s *State) AddUser(user common.Address, account *UserAccount) {
	s.users[user] = account
}

func (s *State) NumUsers() int {
	return len(s.users)
}

// HasShard reports whether addr is already registered
func (s *State) HasShard(addr string) bool {
	for _, shard := range s.shards {
		if shard.Addr == addr {
			return true
		}
	}
	return false
}

// AddShard records a new shard with zero load, keeping address order
func (s *State) AddShard(addr string) {
	s.shards = append(s.shards, &ShardInfo{Addr: addr})
	sort.Slice(s.shards, func(i, j int) bool { return s.shards[i].Addr < s.shards[j].Addr })
}

// ShardAddrs returns all shard addresses in address order
func (s *State) ShardAddrs() []string {
	addrs := make([]string, len(s.shards))
	for i, shard := range s.shards {
		addrs[i] = shard.Addr
	}
	return addrs
}

func (s *State) NumShards() int {
	return len(s.shards)
}

// PickLeastLoaded returns the shard with the fewest accounts. The shard
// list is ordered by address, so ties resolve to the lexicographically
// smallest address and repeated calls under identical load agree.
func (s *State) PickLeastLoaded() (string, error) {
	if len(s.shards) == 0 {
		return "", protocol.ErrOther("no shard is registered")
	}
	best := s.shards[0]
	for _, shard := range s.shards[1:] {
		if shard.NumAccounts < best.NumAccounts {
			best = shard
		}
	}
	return best.Addr, nil
}

// IncrementLoad bumps a shard's tracked account count
func (s *State) IncrementLoad(addr string) {
	for _, shard := range s.shards {
		if shard.Addr == addr {
			shard.NumAccounts++
			return
		}
	}
}

func (s *State) Owner() common.Address {
	return s.owner
}

func (s *State) Fee() *uint256.Int {
	return new(uint256.Int).Set(s.fee)
}
