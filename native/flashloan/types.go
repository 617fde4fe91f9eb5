package flashloan

import (
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

const (
	// BasisPoints is the denominator of every bps-valued parameter.
	BasisPoints = 10_000
	// MaxSupportedCollaterals bounds the governance collateral list.
	MaxSupportedCollaterals = 10
	// OracleMaxAgeSeconds is the freshness bound applied to oracle reads
	// during borrow.
	OracleMaxAgeSeconds = 60
	// UnitsPerToken is the base-unit denomination of one whole collateral
	// token.
	UnitsPerToken = 1_000_000_000
	// DefaultBoostThreshold is the total staked figure below which new stakes
	// receive the early-adopter boost.
	DefaultBoostThreshold = 10_000 * UnitsPerToken

	boostNumerator   = 150
	boostDenominator = 100
)

// LoanID identifies a single borrow.
type LoanID = uuid.UUID

// Parameters are the tunables rewritten wholesale by a governance update.
type Parameters struct {
	// FlashLoanFeeBps is retained for compatibility; dynamic pricing ignores it.
	FlashLoanFeeBps         uint64 `json:"flashLoanFeeBps" toml:"flash_loan_fee_bps"`
	LiquidationPenaltyBps   uint64 `json:"liquidationPenaltyBps" toml:"liquidation_penalty_bps"`
	LiquidationGraceSlots   uint64 `json:"liquidationGraceSlots" toml:"liquidation_grace_slots"`
	CompoundRateNumerator   uint64 `json:"compoundRateNumerator" toml:"compound_rate_numerator"`
	CompoundRateDenominator uint64 `json:"compoundRateDenominator" toml:"compound_rate_denominator"`
	MaxBorrowRatioBps       uint64 `json:"maxBorrowRatioBps" toml:"max_borrow_ratio_bps"`
}

// Governance holds protocol-wide configuration.
type Governance struct {
	Admin solana.PublicKey `json:"admin"`
	Parameters
	SupportedCollaterals []solana.PublicKey `json:"supportedCollaterals"`
}

// Supports reports whether kind is an approved collateral kind.
func (g *Governance) Supports(kind solana.PublicKey) bool {
	if g == nil {
		return false
	}
	for _, k := range g.SupportedCollaterals {
		if k.Equals(kind) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the governance record.
func (g *Governance) Clone() *Governance {
	if g == nil {
		return nil
	}
	clone := *g
	clone.SupportedCollaterals = append([]solana.PublicKey(nil), g.SupportedCollaterals...)
	return &clone
}

// RewardPool is the global aggregate shared by every collateral kind.
type RewardPool struct {
	TotalStaked     uint64 `json:"totalStaked"`
	AccruedFees     uint64 `json:"accruedFees"`
	ActiveLoanTotal uint64 `json:"activeLoanTotal"`
	UpdateCounter   uint64 `json:"updateCounter"`
}

// Staker tracks one owner's position in one collateral kind.
type Staker struct {
	StakedAmount     uint64           `json:"stakedAmount"`
	CollateralKind   solana.PublicKey `json:"collateralKind"`
	LastCompoundSlot uint64           `json:"lastCompoundSlot"`
	LockEndSlot      uint64           `json:"lockEndSlot"`
}

// Loan is one outstanding borrow.
type Loan struct {
	Borrower  solana.PublicKey `json:"borrower"`
	Amount    uint64           `json:"amount"`
	StartSlot uint64           `json:"startSlot"`
	DueSlot   uint64           `json:"dueSlot"`
	Active    bool             `json:"active"`
}

// Vault records the derivation bump of the custody authority for one kind.
type Vault struct {
	Bump uint8 `json:"bump"`
}

// StakeReceipt summarises a committed stake.
type StakeReceipt struct {
	Credit  uint64 `json:"credit"`
	Boosted bool   `json:"boosted"`
	Staker  Staker `json:"staker"`
}

// CompoundReceipt summarises a compounding pass.
type CompoundReceipt struct {
	Additional   uint64 `json:"additional"`
	SlotsElapsed uint64 `json:"slotsElapsed"`
	Staker       Staker `json:"staker"`
}

// BorrowReceipt summarises a committed borrow.
type BorrowReceipt struct {
	LoanID         LoanID `json:"loanId"`
	FeeBps         uint64 `json:"feeBps"`
	FlashFee       uint64 `json:"flashFee"`
	AmountAfterFee uint64 `json:"amountAfterFee"`
	DueSlot        uint64 `json:"dueSlot"`
}

// RepayReceipt summarises a committed repayment.
type RepayReceipt struct {
	Principal uint64 `json:"principal"`
	Penalty   uint64 `json:"penalty"`
	Paid      uint64 `json:"paid"`
}

// LiquidationReceipt summarises a committed liquidation.
type LiquidationReceipt struct {
	Principal         uint64 `json:"principal"`
	PenaltyCollateral uint64 `json:"penaltyCollateral"`
}
