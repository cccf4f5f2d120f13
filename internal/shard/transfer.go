package shard

import (
	"context"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// preTransferCheck runs every precondition before any mutation: sender
// must be a known local account, the value must exceed the fee, and the
// sender must cover the full value. When the destination shard is local
// the recipient must also exist; cross-shard transfers defer that check
// to the remote shard.
func (s *Server) preTransferCheck(from, to common.Address, toShard string, value *uint256.Int) error {
	if err := s.state.AssertIsCustomer(from); err != nil {
		return err
	}
	local := s.isLocal(toShard)
	if !local && !s.state.IsSibling(toShard) {
		return protocol.ErrOther("unknown destination shard " + toShard)
	}
	if local {
		if err := s.state.AssertIsCustomer(to); err != nil {
			return err
		}
	}
	if !value.Gt(s.state.Fee()) {
		return protocol.ErrValueTooSmall()
	}
	balance, err := s.state.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Lt(value) {
		return protocol.ErrInsufficientBalance()
	}
	return nil
}

func (s *Server) isLocal(toShard string) bool {
	return toShard == "" || toShard == s.selfURL
}

// executeTransfer runs the cross-shard transfer protocol:
//
//  1. charge the fee from the sender (kept even if the transfer fails)
//  2. debit the sender by value-fee
//  3. same shard: credit the recipient directly
//  4. other shard: call its receive operation; on failure the debited
//     amount is credited back to the sender and the error surfaced
func (s *Server) executeTransfer(ctx context.Context, from, to common.Address, toShard string, value *uint256.Int) error {
	if err := s.preTransferCheck(from, to, toShard, value); err != nil {
		return err
	}
	fee := s.state.Fee()
	if err := s.state.ChargeFee(from, fee); err != nil {
		return err
	}
	send := new(uint256.Int).Sub(value, fee)
	if err := s.state.DecreaseBalance(from, send); err != nil {
		return err
	}

	if s.isLocal(toShard) {
		return s.state.IncreaseBalance(to, send)
	}

	record := s.trackPending(from, to, toShard, send)
	record.State = protocol.TransferAwaitingRemote
	err := s.shards.ReceiveTransfer(ctx, toShard, to, protocol.NatFromUint256(send))
	if err != nil {
		// compensating rollback: the fee stays charged, the rest returns
		record.State = protocol.TransferRolledBack
		if creditErr := s.state.IncreaseBalance(from, send); creditErr != nil {
			return creditErr
		}
		log.Printf("Shard %s: rolled back transfer %s after remote failure: %v", s.selfURL, record.ID, err)
		return err
	}
	record.State = protocol.TransferSettled
	return nil
}

// executeTransferAndCall runs the notify-and-settle variant: after the
// fee charge and debit, the amount sits in an escrow slot while the
// recipient's notify endpoint is invoked (directly, or forwarded to the
// destination shard for same-shard delivery). Escrowed value is released
// to the recipient on success or returned to the sender on failure,
// never both and never neither.
func (s *Server) executeTransferAndCall(ctx context.Context, from, to common.Address, toShard string, value *uint256.Int, notifyURL, data string) (string, error) {
	if err := s.preTransferCheck(from, to, toShard, value); err != nil {
		return "", err
	}
	fee := s.state.Fee()
	if err := s.state.ChargeFee(from, fee); err != nil {
		return "", err
	}
	send := new(uint256.Int).Sub(value, fee)
	if err := s.state.DecreaseBalance(from, send); err != nil {
		return "", err
	}
	escrowID := s.state.escrow.Deposit(send)

	notification := protocol.TransferNotification{
		To:         to,
		From:       from,
		FromShard:  s.selfURL,
		FeeCharged: protocol.NatFromUint256(fee),
		Value:      protocol.NatFromUint256(send),
		Data:       data,
	}

	var (
		result    string
		notifyErr error
		record    *protocol.PendingTransfer
	)
	if s.isLocal(toShard) {
		result, notifyErr = s.notify.Notify(ctx, notifyURL, notification)
	} else {
		record = s.trackPending(from, to, toShard, send)
		record.State = protocol.TransferAwaitingRemote
		result, notifyErr = s.shards.ReceiveTransferAndCall(ctx, toShard, notification, notifyURL)
	}

	funds, err := s.state.escrow.Withdraw(escrowID)
	if err != nil {
		return "", err
	}
	if notifyErr != nil {
		// refund the sender; the fee is not returned
		if record != nil {
			record.State = protocol.TransferRolledBack
		}
		if creditErr := s.state.IncreaseBalance(from, funds); creditErr != nil {
			return "", creditErr
		}
		log.Printf("Shard %s: notification for transfer from %s refused, refunded: %v", s.selfURL, from.Hex(), notifyErr)
		return "", notifyErr
	}
	if record != nil {
		// the destination shard already credited the recipient
		record.State = protocol.TransferSettled
		return result, nil
	}
	return result, s.state.IncreaseBalance(to, funds)
}

func (s *Server) trackPending(from, to common.Address, toShard string, send *uint256.Int) *protocol.PendingTransfer {
	record := &protocol.PendingTransfer{
		ID:      uuid.New().String(),
		From:    from,
		To:      to,
		ToShard: toShard,
		Value:   protocol.NatFromUint256(send),
		State:   protocol.TransferDebited,
	}
	s.state.pending[record.ID] = record
	return record
}
