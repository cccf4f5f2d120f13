package shard

import (
	"context"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/enoki-dex/enoki-wrapped-token/internal/protocol"
)

// wrap and unwrap bridge value to the underlying asset service. These
// are the only operations that change the shard's total supply.

func (s *Server) handleWrap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.WrapRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := req.Amount.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	if err := s.wrap(r.Context(), req.Account, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleUnwrap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req protocol.UnwrapRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := req.Amount.ToUint256()
	if err != nil {
		writeError(w, protocol.ErrOther(err.Error()))
		return
	}
	if err := s.unwrap(r.Context(), req.Account, amount, req.To); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, protocol.StatusResponse{Status: "ok"})
}

// wrap deposits `amount` of the underlying asset from the caller's
// allowance and credits the wrapped balance, net of the underlying
// service's own transfer fee.
func (s *Server) wrap(ctx context.Context, account common.Address, amount *uint256.Int) error {
	tokenURL := s.state.underlyingToken
	meta, err := s.token.Metadata(ctx, tokenURL)
	if err != nil {
		return err
	}
	underlyingFee, err := meta.Fee.ToUint256()
	if err != nil {
		return protocol.ErrOther(err.Error())
	}

	allowanceNat, err := s.token.Allowance(ctx, tokenURL, account, s.selfURL)
	if err != nil {
		return err
	}
	allowance, err := allowanceNat.ToUint256()
	if err != nil {
		return protocol.ErrOther(err.Error())
	}
	if allowance.Lt(amount) || !amount.Gt(underlyingFee) {
		return protocol.ErrInsufficientBalance()
	}

	credit := new(uint256.Int).Sub(amount, underlyingFee)
	if err := s.token.TransferFrom(ctx, tokenURL, account, s.selfURL, protocol.NatFromUint256(credit)); err != nil {
		return protocol.ErrUnderlyingTransfer()
	}
	if err := s.state.IncreaseBalance(account, credit); err != nil {
		return err
	}
	log.Printf("Shard %s: wrapped %s for %s", s.selfURL, credit.Dec(), account.Hex())
	return nil
}

// unwrap burns wrapped balance and withdraws the underlying asset to
// `to`. The local fee is charged up front and kept even if the
// underlying withdrawal fails; only the remainder is refunded.
func (s *Server) unwrap(ctx context.Context, account common.Address, amount *uint256.Int, to common.Address) error {
	fee := s.state.Fee()
	if !amount.Gt(fee) {
		return protocol.ErrInsufficientBalance()
	}

	if err := s.state.DecreaseBalance(account, amount); err != nil {
		return err
	}
	s.state.accrued.Add(s.state.accrued, fee)
	send := new(uint256.Int).Sub(amount, fee)

	refund := func() error { return s.state.IncreaseBalance(account, send) }

	tokenURL := s.state.underlyingToken
	meta, err := s.token.Metadata(ctx, tokenURL)
	if err != nil {
		if refundErr := refund(); refundErr != nil {
			return refundErr
		}
		return err
	}
	underlyingFee, err := meta.Fee.ToUint256()
	if err != nil {
		if refundErr := refund(); refundErr != nil {
			return refundErr
		}
		return protocol.ErrOther(err.Error())
	}
	if !send.Gt(underlyingFee) {
		if refundErr := refund(); refundErr != nil {
			return refundErr
		}
		return protocol.ErrUnderlyingTransfer()
	}

	withdraw := new(uint256.Int).Sub(send, underlyingFee)
	if err := s.token.Transfer(ctx, tokenURL, to, protocol.NatFromUint256(withdraw)); err != nil {
		if refundErr := refund(); refundErr != nil {
			return refundErr
		}
		return protocol.ErrUnderlyingTransfer()
	}
	log.Printf("Shard %s: unwrapped %s from %s to %s", s.selfURL, send.Dec(), account.Hex(), to.Hex())
	return nil
}
