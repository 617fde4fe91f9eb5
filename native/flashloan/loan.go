package flashloan

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"
)

// Borrow opens a loan of amount against the borrower's kind position,
// releases amount minus the flash fee from the vault to destination and then
// invokes the post-borrow callback. A callback error aborts the operation.
func (e *Engine) Borrow(ctx context.Context, h Host, borrower, kind, destination solana.PublicKey, amount, loanDuration uint64) (_ *BorrowReceipt, err error) {
	ctx, span, err := e.begin(ctx, "Borrow", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}
	spanAttrs(span, attribute.String("borrower", borrower.String()), attribute.Int64("amount", int64(amount)))

	release, err := e.enterBorrow(borrower, kind)
	if err != nil {
		return nil, err
	}
	defer release()

	slot := e.clock.Slot()
	now := e.clock.UnixTimestamp()
	if now < 0 {
		return nil, ErrInvalidTimestamp
	}

	id := e.newID()
	loan, _, err := loadLoan(h, kind, id)
	if err != nil {
		return nil, err
	}
	if loan.Active {
		return nil, ErrReentrancy
	}

	gov, err := loadGovernance(h)
	if err != nil {
		return nil, err
	}
	pool, err := loadRewardPool(h)
	if err != nil {
		return nil, err
	}
	q, err := e.quote(ctx, pool, amount, now)
	if err != nil {
		return nil, err
	}

	staker, err := requireStaker(h, borrower, kind)
	if err != nil {
		return nil, err
	}
	limit, err := mulDiv(staker.StakedAmount, gov.MaxBorrowRatioBps, BasisPoints)
	if err != nil {
		return nil, err
	}
	if amount > limit {
		return nil, ErrBorrowExceedsCollateral
	}

	due, err := checkedAdd(slot, loanDuration)
	if err != nil {
		return nil, err
	}
	loan = &Loan{Borrower: borrower, Amount: amount, StartSlot: slot, DueSlot: due, Active: true}
	if pool.ActiveLoanTotal, err = checkedAdd(pool.ActiveLoanTotal, amount); err != nil {
		return nil, err
	}
	if err = increment(&pool.UpdateCounter); err != nil {
		return nil, err
	}

	vault, err := e.vaultAccount(h, kind)
	if err != nil {
		return nil, err
	}
	if err = h.Transfer(vault, destination, kind, q.AmountAfterFee); err != nil {
		return nil, custodyErr(err)
	}
	if pool.AccruedFees, err = checkedAdd(pool.AccruedFees, q.FlashFee); err != nil {
		return nil, err
	}
	if err = h.Put(LoanKey(kind, id), EncodeLoan(loan)); err != nil {
		return nil, err
	}
	if err = storeRewardPool(h, pool); err != nil {
		return nil, err
	}

	if err = e.callback.OnBorrow(ctx, borrower, destination); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallback, err)
	}

	h.Emit(Borrowed{
		LoanID:       id,
		Borrower:     borrower,
		Kind:         kind,
		Destination:  destination,
		Amount:       amount,
		FeeBps:       q.FeeBps,
		FlashFee:     q.FlashFee,
		DueSlot:      due,
		UpdateNumber: pool.UpdateCounter,
	})
	return &BorrowReceipt{
		LoanID:         id,
		FeeBps:         q.FeeBps,
		FlashFee:       q.FlashFee,
		AmountAfterFee: q.AmountAfterFee,
		DueSlot:        due,
	}, nil
}

// Penalty returns principal*overdueSlots*penaltyBps/10000 for a loan repaid
// at slot, or zero when slot is not past the due slot.
func Penalty(loan *Loan, slot, penaltyBps uint64) (uint64, error) {
	if loan == nil || slot <= loan.DueSlot {
		return 0, nil
	}
	overdue, err := checkedSub(slot, loan.DueSlot)
	if err != nil {
		return 0, err
	}
	scaled, err := checkedMul(loan.Amount, overdue)
	if err != nil {
		return 0, err
	}
	return mulDiv(scaled, penaltyBps, BasisPoints)
}

// Repay settles an active loan. payer must supply at least principal plus
// the overdue penalty; the whole supplied amount moves into the vault and any
// surplus is kept by the pool. The loan record is reclaimed.
func (e *Engine) Repay(ctx context.Context, h Host, payer, kind solana.PublicKey, id LoanID, amount uint64) (_ *RepayReceipt, err error) {
	_, span, err := e.begin(ctx, "Repay", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}
	spanAttrs(span, attribute.String("loan", id.String()))

	loan, err := requireLoan(h, kind, id)
	if err != nil {
		return nil, err
	}
	if !loan.Active {
		return nil, ErrLoanNotActive
	}
	gov, err := loadGovernance(h)
	if err != nil {
		return nil, err
	}
	penalty, err := Penalty(loan, e.clock.Slot(), gov.LiquidationPenaltyBps)
	if err != nil {
		return nil, err
	}
	required, err := checkedAdd(loan.Amount, penalty)
	if err != nil {
		return nil, err
	}
	if amount < required {
		return nil, ErrRepaymentInsufficient
	}

	pool, err := loadRewardPool(h)
	if err != nil {
		return nil, err
	}
	vault, err := e.vaultAccount(h, kind)
	if err != nil {
		return nil, err
	}
	if err = h.Transfer(payer, vault, kind, amount); err != nil {
		return nil, custodyErr(err)
	}
	if pool.ActiveLoanTotal, err = checkedSub(pool.ActiveLoanTotal, loan.Amount); err != nil {
		return nil, err
	}
	if penalty > 0 {
		if pool.AccruedFees, err = checkedAdd(pool.AccruedFees, penalty); err != nil {
			return nil, err
		}
	}
	if err = increment(&pool.UpdateCounter); err != nil {
		return nil, err
	}
	if err = h.Delete(LoanKey(kind, id)); err != nil {
		return nil, err
	}
	if err = storeRewardPool(h, pool); err != nil {
		return nil, err
	}
	h.Emit(Repaid{
		LoanID:       id,
		Borrower:     loan.Borrower,
		Kind:         kind,
		Principal:    loan.Amount,
		Penalty:      penalty,
		Paid:         amount,
		UpdateNumber: pool.UpdateCounter,
	})
	return &RepayReceipt{Principal: loan.Amount, Penalty: penalty, Paid: amount}, nil
}

// Liquidate closes a loan that is past its due slot plus the grace period,
// paying principal*penaltyBps/10000 from the vault to the liquidator. The
// penalty is also added to accrued fees. The loan record is retained as
// inactive.
func (e *Engine) Liquidate(ctx context.Context, h Host, liquidator, kind solana.PublicKey, id LoanID) (_ *LiquidationReceipt, err error) {
	_, span, err := e.begin(ctx, "Liquidate", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}
	spanAttrs(span, attribute.String("loan", id.String()))

	loan, err := requireLoan(h, kind, id)
	if err != nil {
		return nil, err
	}
	gov, err := loadGovernance(h)
	if err != nil {
		return nil, err
	}
	deadline, err := checkedAdd(loan.DueSlot, gov.LiquidationGraceSlots)
	if err != nil {
		return nil, err
	}
	if e.clock.Slot() <= deadline {
		return nil, ErrLoanNotOverdue
	}
	if !loan.Active {
		return nil, ErrLoanNotActive
	}
	penalty, err := mulDiv(loan.Amount, gov.LiquidationPenaltyBps, BasisPoints)
	if err != nil {
		return nil, err
	}

	pool, err := loadRewardPool(h)
	if err != nil {
		return nil, err
	}
	vault, err := e.vaultAccount(h, kind)
	if err != nil {
		return nil, err
	}
	if err = h.Transfer(vault, liquidator, kind, penalty); err != nil {
		return nil, custodyErr(err)
	}
	loan.Active = false
	if pool.ActiveLoanTotal, err = checkedSub(pool.ActiveLoanTotal, loan.Amount); err != nil {
		return nil, err
	}
	if pool.AccruedFees, err = checkedAdd(pool.AccruedFees, penalty); err != nil {
		return nil, err
	}
	if err = increment(&pool.UpdateCounter); err != nil {
		return nil, err
	}
	if err = h.Put(LoanKey(kind, id), EncodeLoan(loan)); err != nil {
		return nil, err
	}
	if err = storeRewardPool(h, pool); err != nil {
		return nil, err
	}
	h.Emit(Liquidated{
		LoanID:            id,
		Borrower:          loan.Borrower,
		Liquidator:        liquidator,
		Kind:              kind,
		Principal:         loan.Amount,
		PenaltyCollateral: penalty,
		UpdateNumber:      pool.UpdateCounter,
	})
	return &LiquidationReceipt{Principal: loan.Amount, PenaltyCollateral: penalty}, nil
}
