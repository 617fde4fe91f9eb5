package flashloan

import (
	"errors"

	nativecommon "flashliquidity/native/common"
)

var (
	ErrInvalidCollateralKind   = errors.New("flashloan: offered token is not the declared collateral kind")
	ErrUnsupportedCollateral   = errors.New("flashloan: collateral kind not supported")
	ErrBorrowExceedsCollateral = errors.New("flashloan: borrow amount exceeds collateral limit")
	ErrStakingLocked           = errors.New("flashloan: stake is still locked")
	ErrInsufficientStaked      = errors.New("flashloan: insufficient staked amount")
	ErrReentrancy              = errors.New("flashloan: reentrancy detected")
	ErrBorrowInProgress        = errors.New("flashloan: caller has a borrow in progress")
	ErrLoanNotActive           = errors.New("flashloan: loan is not active")
	ErrLoanNotOverdue          = errors.New("flashloan: loan is not overdue")
	ErrOraclePriceUnavailable  = errors.New("flashloan: oracle price unavailable or stale")
	ErrInvalidTimestamp        = errors.New("flashloan: negative wall-clock timestamp")
	ErrRepaymentInsufficient   = errors.New("flashloan: repayment below principal plus penalty")
	ErrArithmeticOverflow      = errors.New("flashloan: arithmetic overflow")
	ErrArithmeticUnderflow     = errors.New("flashloan: arithmetic underflow")
	ErrDivisionByZero          = errors.New("flashloan: division by zero")
	ErrUnauthorized            = errors.New("flashloan: caller is not the governance admin")
	ErrNotInitialised          = errors.New("flashloan: protocol not initialised")
	ErrAlreadyInitialised      = errors.New("flashloan: protocol already initialised")
	ErrStakerNotFound          = errors.New("flashloan: staker not found")
	ErrLoanNotFound            = errors.New("flashloan: loan not found")
	ErrVaultNotFound           = errors.New("flashloan: vault not found")
	ErrTooManyCollaterals      = errors.New("flashloan: too many supported collaterals")
	ErrInvalidAmount           = errors.New("flashloan: invalid amount")
	ErrInvalidRecord           = errors.New("flashloan: malformed record")
	ErrCustody                 = errors.New("flashloan: custody transfer failed")
	ErrCallback                = errors.New("flashloan: borrow callback failed")

	errNilEngine = errors.New("flashloan: engine not configured")
	errNilHost   = errors.New("flashloan: host not configured")
	errNilClock  = errors.New("flashloan: clock not configured")
	errNilOracle = errors.New("flashloan: oracle not configured")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCollateralKind, "invalid_collateral_kind"},
	{ErrUnsupportedCollateral, "unsupported_collateral"},
	{ErrBorrowExceedsCollateral, "borrow_exceeds_collateral"},
	{ErrStakingLocked, "staking_locked"},
	{ErrInsufficientStaked, "insufficient_staked"},
	{ErrReentrancy, "reentrancy"},
	{ErrBorrowInProgress, "borrow_in_progress"},
	{ErrLoanNotActive, "loan_not_active"},
	{ErrLoanNotOverdue, "loan_not_overdue"},
	{ErrOraclePriceUnavailable, "oracle_unavailable"},
	{ErrInvalidTimestamp, "invalid_timestamp"},
	{ErrRepaymentInsufficient, "repayment_insufficient"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrArithmeticUnderflow, "arithmetic_underflow"},
	{ErrDivisionByZero, "division_by_zero"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNotInitialised, "not_initialised"},
	{ErrAlreadyInitialised, "already_initialised"},
	{ErrStakerNotFound, "staker_not_found"},
	{ErrLoanNotFound, "loan_not_found"},
	{ErrVaultNotFound, "vault_not_found"},
	{ErrTooManyCollaterals, "too_many_collaterals"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrCustody, "custody_failed"},
	{ErrCallback, "callback_failed"},
	{nativecommon.ErrModulePaused, "module_paused"},
}

// Code maps an engine error to a stable machine-readable reason. Errors not
// produced by the engine map to "internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
