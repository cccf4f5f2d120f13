package shard

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// State is the full mutable state of one shard node, owned by its Server
// and passed by reference into every operation. Balances, escrowed value
// and accrued fees are uint256: structurally unsigned, so no code path
// can leave a negative balance.
type State struct {
	node string // this shard's public URL, used in error messages

	balances map[common.Address]*uint256.Int
	escrow   *EscrowTable
	accrued  *uint256.Int
	spenders map[common.Address]map[common.Address]bool

	// topology and administration, mutated only by the manager
	manager         string
	owner           common.Address
	fee             *uint256.Int
	underlyingToken string
	siblings        map[string]bool

	// in-flight cross-shard transfers, keyed by record ID
	pending map[string]*protocol.PendingTransfer
}

// EscrowTable holds value in flight during notify-and-settle transfers.
// A deposit is created by removing value from a sender's balance and is
// destroyed exactly once: credited to the recipient or refunded.
type EscrowTable struct {
	lastID   uint64
	deposits map[uint64]*uint256.Int
}

// Deposit stores an amount and returns its slot ID
func (e *EscrowTable) Deposit(amount *uint256.Int) uint64 {
	id := e.lastID
	e.lastID++
	e.deposits[id] = new(uint256.Int).Set(amount)
	return id
}

// Withdraw removes and returns the deposit for id
func (e *EscrowTable) Withdraw(id uint64) (*uint256.Int, error) {
	amount, ok := e.deposits[id]
	if !ok {
		return nil, protocol.ErrOther("escrow: cannot find deposit id")
	}
	delete(e.deposits, id)
	return amount, nil
}

// Len reports the number of outstanding escrow slots
func (e *EscrowTable) Len() int {
	return len(e.deposits)
}

func NewState(node string, manager string, owner common.Address, underlyingToken string) *State {
	return &State{
		node:            node,
		balances:        make(map[common.Address]*uint256.Int),
		escrow:          &EscrowTable{deposits: make(map[uint64]*uint256.Int)},
		accrued:         uint256.NewInt(0),
		spenders:        make(map[common.Address]map[common.Address]bool),
		manager:         manager,
		underlyingToken: underlyingToken,
		owner:           owner,
		fee:             uint256.NewInt(0),
		siblings:        make(map[string]bool),
		pending:         make(map[string]*protocol.PendingTransfer),
	}
}

// CreateAccount opens an account with zero balance
func (s *State) CreateAccount(account common.Address) error {
	if _, ok := s.balances[account]; ok {
		return protocol.ErrAccountExists()
	}
	s.balances[account] = uint256.NewInt(0)
	return nil
}

// HasAccount reports whether account exists on this shard
func (s *State) HasAccount(account common.Address) bool {
	_, ok := s.balances[account]
	return ok
}

// AssertIsCustomer fails with account-not-found unless account exists here
func (s *State) AssertIsCustomer(account common.Address) error {
	if !s.HasAccount(account) {
		return protocol.ErrAccountNotFound(s.node, account.Hex())
	}
	return nil
}

// BalanceOf returns the account's balance
func (s *State) BalanceOf(account common.Address) (*uint256.Int, error) {
	balance, ok := s.balances[account]
	if !ok {
		return nil, protocol.ErrAccountNotFound(s.node, account.Hex())
	}
	return new(uint256.Int).Set(balance), nil
}

// IncreaseBalance credits an account, creating it if unknown. Credits
// come only through authorized paths (manager, siblings, escrow release),
// so an unknown recipient here means a sibling deferred the existence
// check to us and we honor the credit.
func (s *State) IncreaseBalance(account common.Address, amount *uint256.Int) error {
	balance, ok := s.balances[account]
	if !ok {
		balance = uint256.NewInt(0)
		s.balances[account] = balance
	}
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return protocol.ErrOther("balance overflow")
	}
	return nil
}

// DecreaseBalance debits an account, failing if it would go negative
func (s *State) DecreaseBalance(account common.Address, amount *uint256.Int) error {
	balance, ok := s.balances[account]
	if !ok {
		return protocol.ErrAccountNotFound(s.node, account.Hex())
	}
	if balance.Lt(amount) {
		return protocol.ErrInsufficientBalance()
	}
	balance.Sub(balance, amount)
	return nil
}

// ChargeFee atomically debits the account and accrues the fee. If the
// debit fails the fee ledger is untouched.
func (s *State) ChargeFee(account common.Address, fee *uint256.Int) error {
	if err := s.DecreaseBalance(account, fee); err != nil {
		return err
	}
	s.accrued.Add(s.accrued, fee)
	return nil
}

// Supply is the sum of all local balances plus accrued fees. Fees are
// still supply, just not attributed to a user.
func (s *State) Supply() *uint256.Int {
	total := new(uint256.Int).Set(s.accrued)
	for _, balance := range s.balances {
		total.Add(total, balance)
	}
	return total
}

// AccruedFees returns the fee ledger's balance
func (s *State) AccruedFees() *uint256.Int {
	return new(uint256.Int).Set(s.accrued)
}

// Fee returns the configured transfer fee
func (s *State) Fee() *uint256.Int {
	return new(uint256.Int).Set(s.fee)
}

func (s *State) SetFee(fee *uint256.Int) {
	s.fee = new(uint256.Int).Set(fee)
}

// AddSpender authorizes spender to move funds out of account
func (s *State) AddSpender(account, spender common.Address) {
	set, ok := s.spenders[account]
	if !ok {
		set = make(map[common.Address]bool)
		s.spenders[account] = set
	}
	set[spender] = true
}

func (s *State) RemoveSpender(account, spender common.Address) {
	if set, ok := s.spenders[account]; ok {
		delete(set, spender)
		if len(set) == 0 {
			delete(s.spenders, account)
		}
	}
}

// AssertIsSpender fails unless spender is authorized for account
func (s *State) AssertIsSpender(account, spender common.Address) error {
	if set, ok := s.spenders[account]; ok && set[spender] {
		return nil
	}
	return protocol.ErrUnauthorized()
}

// Sibling directory

func (s *State) AddSibling(shard string) {
	s.siblings[shard] = true
}

func (s *State) RemoveSibling(shard string) {
	delete(s.siblings, shard)
}

func (s *State) IsSibling(shard string) bool {
	return s.siblings[shard]
}

func (s *State) Siblings() []string {
	out := make([]string, 0, len(s.siblings))
	for sibling := range s.siblings {
		out = append(out, sibling)
	}
	return out
}
