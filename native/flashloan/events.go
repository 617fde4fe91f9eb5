package flashloan

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
)

const (
	// TypeStaked is emitted when collateral is staked.
	TypeStaked = "flashloan.staked"
	// TypeCompounded is emitted when rewards are compounded into a position.
	TypeCompounded = "flashloan.compounded"
	// TypeUnstaked is emitted when collateral leaves the vault.
	TypeUnstaked = "flashloan.unstaked"
	// TypeBorrowed is emitted when a loan is opened.
	TypeBorrowed = "flashloan.borrowed"
	// TypeRepaid is emitted when a loan is repaid and reclaimed.
	TypeRepaid = "flashloan.repaid"
	// TypeLiquidated is emitted when an overdue loan is liquidated.
	TypeLiquidated = "flashloan.liquidated"
	// TypeGovernanceUpdated is emitted when the admin rewrites parameters.
	TypeGovernanceUpdated = "flashloan.governanceUpdated"
	// TypeBootstrapped is emitted once when the protocol is initialised.
	TypeBootstrapped = "flashloan.bootstrapped"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// Staked captures a committed stake.
type Staked struct {
	Owner        solana.PublicKey
	Kind         solana.PublicKey
	Amount       uint64
	Credit       uint64
	LockEndSlot  uint64
	UpdateNumber uint64
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Attributes exposes the payload as flat strings.
func (e Staked) Attributes() map[string]string {
	return map[string]string{
		"owner":       e.Owner.String(),
		"kind":        e.Kind.String(),
		"amount":      u64(e.Amount),
		"credit":      u64(e.Credit),
		"lockEndSlot": u64(e.LockEndSlot),
		"update":      u64(e.UpdateNumber),
	}
}

// Compounded captures a compounding pass.
type Compounded struct {
	Owner        solana.PublicKey
	Kind         solana.PublicKey
	Additional   uint64
	UpdateNumber uint64
}

// EventType satisfies the Event interface.
func (Compounded) EventType() string { return TypeCompounded }

// Attributes exposes the payload as flat strings.
func (e Compounded) Attributes() map[string]string {
	return map[string]string{
		"owner":      e.Owner.String(),
		"kind":       e.Kind.String(),
		"additional": u64(e.Additional),
		"update":     u64(e.UpdateNumber),
	}
}

// Unstaked captures a withdrawal.
type Unstaked struct {
	Owner        solana.PublicKey
	Kind         solana.PublicKey
	Amount       uint64
	UpdateNumber uint64
}

// EventType satisfies the Event interface.
func (Unstaked) EventType() string { return TypeUnstaked }

// Attributes exposes the payload as flat strings.
func (e Unstaked) Attributes() map[string]string {
	return map[string]string{
		"owner":  e.Owner.String(),
		"kind":   e.Kind.String(),
		"amount": u64(e.Amount),
		"update": u64(e.UpdateNumber),
	}
}

// Borrowed captures an opened loan.
type Borrowed struct {
	LoanID       LoanID
	Borrower     solana.PublicKey
	Kind         solana.PublicKey
	Destination  solana.PublicKey
	Amount       uint64
	FeeBps       uint64
	FlashFee     uint64
	DueSlot      uint64
	UpdateNumber uint64
}

// EventType satisfies the Event interface.
func (Borrowed) EventType() string { return TypeBorrowed }

// Attributes exposes the payload as flat strings.
func (e Borrowed) Attributes() map[string]string {
	return map[string]string{
		"loanId":      e.LoanID.String(),
		"borrower":    e.Borrower.String(),
		"kind":        e.Kind.String(),
		"destination": e.Destination.String(),
		"amount":      u64(e.Amount),
		"feeBps":      u64(e.FeeBps),
		"flashFee":    u64(e.FlashFee),
		"dueSlot":     u64(e.DueSlot),
		"update":      u64(e.UpdateNumber),
	}
}

// Repaid captures a repayment.
type Repaid struct {
	LoanID       LoanID
	Borrower     solana.PublicKey
	Kind         solana.PublicKey
	Principal    uint64
	Penalty      uint64
	Paid         uint64
	UpdateNumber uint64
}

// EventType satisfies the Event interface.
func (Repaid) EventType() string { return TypeRepaid }

// Attributes exposes the payload as flat strings.
func (e Repaid) Attributes() map[string]string {
	return map[string]string{
		"loanId":    e.LoanID.String(),
		"borrower":  e.Borrower.String(),
		"kind":      e.Kind.String(),
		"principal": u64(e.Principal),
		"penalty":   u64(e.Penalty),
		"paid":      u64(e.Paid),
		"update":    u64(e.UpdateNumber),
	}
}

// Liquidated captures a liquidation.
type Liquidated struct {
	LoanID            LoanID
	Borrower          solana.PublicKey
	Liquidator        solana.PublicKey
	Kind              solana.PublicKey
	Principal         uint64
	PenaltyCollateral uint64
	UpdateNumber      uint64
}

// EventType satisfies the Event interface.
func (Liquidated) EventType() string { return TypeLiquidated }

// Attributes exposes the payload as flat strings.
func (e Liquidated) Attributes() map[string]string {
	return map[string]string{
		"loanId":            e.LoanID.String(),
		"borrower":          e.Borrower.String(),
		"liquidator":        e.Liquidator.String(),
		"kind":              e.Kind.String(),
		"principal":         u64(e.Principal),
		"penaltyCollateral": u64(e.PenaltyCollateral),
		"update":            u64(e.UpdateNumber),
	}
}

// GovernanceUpdated captures a parameter rewrite.
type GovernanceUpdated struct {
	Admin  solana.PublicKey
	Params Parameters
}

// EventType satisfies the Event interface.
func (GovernanceUpdated) EventType() string { return TypeGovernanceUpdated }

// Attributes exposes the payload as flat strings.
func (e GovernanceUpdated) Attributes() map[string]string {
	return map[string]string{
		"admin":                   e.Admin.String(),
		"flashLoanFeeBps":         u64(e.Params.FlashLoanFeeBps),
		"liquidationPenaltyBps":   u64(e.Params.LiquidationPenaltyBps),
		"liquidationGraceSlots":   u64(e.Params.LiquidationGraceSlots),
		"compoundRateNumerator":   u64(e.Params.CompoundRateNumerator),
		"compoundRateDenominator": u64(e.Params.CompoundRateDenominator),
		"maxBorrowRatioBps":       u64(e.Params.MaxBorrowRatioBps),
	}
}

// Bootstrapped captures protocol initialisation.
type Bootstrapped struct {
	Admin       solana.PublicKey
	Collaterals int
}

// EventType satisfies the Event interface.
func (Bootstrapped) EventType() string { return TypeBootstrapped }

// Attributes exposes the payload as flat strings.
func (e Bootstrapped) Attributes() map[string]string {
	return map[string]string{
		"admin":       e.Admin.String(),
		"collaterals": strconv.Itoa(e.Collaterals),
	}
}
