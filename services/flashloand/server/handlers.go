package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"flashliquidity/native/flashloan"
	"flashliquidity/state/ledger"
	"flashliquidity/storage/journal"
)

// Amount accepts a JSON number or a decimal string so clients can send values
// above 2^53 without losing precision. Durations in slots use it too.
type Amount uint64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", flashloan.ErrInvalidAmount, raw)
	}
	*a = Amount(v)
	return nil
}

type stakeRequest struct {
	Kind         solana.PublicKey  `json:"kind"`
	SourceMint   *solana.PublicKey `json:"sourceMint,omitempty"`
	Amount       Amount            `json:"amount"`
	LockDuration Amount            `json:"lockDuration"`
}

type positionRequest struct {
	Kind   solana.PublicKey `json:"kind"`
	Amount Amount           `json:"amount"`
}

type borrowRequest struct {
	Kind         solana.PublicKey `json:"kind"`
	Destination  solana.PublicKey `json:"destination"`
	Amount       Amount           `json:"amount"`
	LoanDuration Amount           `json:"loanDuration"`
}

type loanRequest struct {
	Kind   solana.PublicKey `json:"kind"`
	LoanID uuid.UUID        `json:"loanId"`
	Amount Amount           `json:"amount"`
}

type loanView struct {
	ID   uuid.UUID        `json:"id"`
	Kind solana.PublicKey `json:"kind"`
	*flashloan.Loan
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, flashloan.ErrInvalidAmount) {
			writeError(w, err)
			return false
		}
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

func caller(r *http.Request) solana.PublicKey {
	principal, _ := PrincipalFromContext(r.Context())
	return principal.Identity
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decode(w, r, &req) {
		return
	}
	source := req.Kind
	if req.SourceMint != nil {
		source = *req.SourceMint
	}
	var receipt *flashloan.StakeReceipt
	err := s.execute(r.Context(), "stake", func(tx *ledger.Tx) (err error) {
		receipt, err = s.engine.Stake(r.Context(), tx, caller(r), req.Kind, source, uint64(req.Amount), uint64(req.LockDuration))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleCompound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind solana.PublicKey `json:"kind"`
	}
	if !decode(w, r, &req) {
		return
	}
	var receipt *flashloan.CompoundReceipt
	err := s.execute(r.Context(), "compound", func(tx *ledger.Tx) (err error) {
		receipt, err = s.engine.CompoundRewards(r.Context(), tx, caller(r), req.Kind)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decode(w, r, &req) {
		return
	}
	var staker *flashloan.Staker
	err := s.execute(r.Context(), "unstake", func(tx *ledger.Tx) (err error) {
		staker, err = s.engine.Unstake(r.Context(), tx, caller(r), req.Kind, uint64(req.Amount))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, staker)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !decode(w, r, &req) {
		return
	}
	borrower := caller(r)
	// Same borrower and kind is reentrancy; other kinds are refused by
	// execute as borrow_in_progress.
	if s.engine.BorrowInFlight(borrower, req.Kind) {
		s.metrics.RecordOperation("borrow", flashloan.Code(flashloan.ErrReentrancy), 0)
		writeError(w, flashloan.ErrReentrancy)
		return
	}
	var receipt *flashloan.BorrowReceipt
	err := s.execute(r.Context(), "borrow", func(tx *ledger.Tx) (err error) {
		receipt, err = s.engine.Borrow(r.Context(), tx, borrower, req.Kind, req.Destination, uint64(req.Amount), uint64(req.LoanDuration))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if !decode(w, r, &req) {
		return
	}
	var receipt *flashloan.RepayReceipt
	err := s.execute(r.Context(), "repay", func(tx *ledger.Tx) (err error) {
		receipt, err = s.engine.Repay(r.Context(), tx, caller(r), req.Kind, req.LoanID, uint64(req.Amount))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if !decode(w, r, &req) {
		return
	}
	var receipt *flashloan.LiquidationReceipt
	err := s.execute(r.Context(), "liquidate", func(tx *ledger.Tx) (err error) {
		receipt, err = s.engine.Liquidate(r.Context(), tx, caller(r), req.Kind, req.LoanID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleUpdateGovernance(w http.ResponseWriter, r *http.Request) {
	var params flashloan.Parameters
	if !decode(w, r, &params) {
		return
	}
	var gov *flashloan.Governance
	err := s.execute(r.Context(), "governance", func(tx *ledger.Tx) (err error) {
		gov, err = s.engine.UpdateGovernanceParameters(r.Context(), tx, caller(r), params)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gov)
}

func (s *Server) handleGovernance(w http.ResponseWriter, r *http.Request) {
	var gov *flashloan.Governance
	err := s.ledger.View(func(tx *ledger.Tx) (err error) {
		gov, err = s.engine.Governance(tx)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gov)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	var pool *flashloan.RewardPool
	err := s.ledger.View(func(tx *ledger.Tx) (err error) {
		pool, err = s.engine.RewardPool(tx)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseUint(strings.TrimSpace(r.URL.Query().Get("amount")), 10, 64)
	if err != nil {
		writeError(w, flashloan.ErrInvalidAmount)
		return
	}
	var quote flashloan.FeeQuote
	err = s.ledger.View(func(tx *ledger.Tx) (err error) {
		quote, err = s.engine.QuoteFee(r.Context(), tx, amount)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleStaker(w http.ResponseWriter, r *http.Request) {
	owner, err := solana.PublicKeyFromBase58(chi.URLParam(r, "owner"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid owner")
		return
	}
	kind, err := solana.PublicKeyFromBase58(chi.URLParam(r, "kind"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid kind")
		return
	}
	var staker *flashloan.Staker
	err = s.ledger.View(func(tx *ledger.Tx) (err error) {
		staker, err = s.engine.Staker(tx, owner, kind)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, staker)
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	kind, err := solana.PublicKeyFromBase58(chi.URLParam(r, "kind"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid kind")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid loan id")
		return
	}
	var loan *flashloan.Loan
	err = s.ledger.View(func(tx *ledger.Tx) (err error) {
		loan, err = s.engine.Loan(tx, kind, id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loanView{ID: id, Kind: kind, Loan: loan})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeProblem(w, http.StatusNotImplemented, "history_disabled", "operation journal not configured")
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{
		Type:    strings.TrimSpace(q.Get("type")),
		Subject: strings.TrimSpace(q.Get("subject")),
		Kind:    strings.TrimSpace(q.Get("kind")),
		LoanID:  strings.TrimSpace(q.Get("loan")),
	}
	if raw := q.Get("before"); raw != "" {
		before, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "bad_request", "invalid before cursor")
			return
		}
		filter.BeforeID = uint(before)
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeProblem(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		filter.Limit = limit
	}
	entries, err := s.history.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
