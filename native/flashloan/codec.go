package flashloan

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Fixed record sizes in bytes.
const (
	GovernanceSize = 32 + 6*8 + 4 + MaxSupportedCollaterals*32
	RewardPoolSize = 4 * 8
	StakerSize     = 8 + 32 + 2*8
	LoanSize       = 32 + 3*8 + 1
	VaultSize      = 1
)

var le = binary.LittleEndian

// EncodeGovernance serialises the record into its fixed-width layout.
func EncodeGovernance(g *Governance) ([]byte, error) {
	if g == nil {
		return nil, ErrInvalidRecord
	}
	if len(g.SupportedCollaterals) > MaxSupportedCollaterals {
		return nil, ErrTooManyCollaterals
	}
	buf := make([]byte, GovernanceSize)
	copy(buf[0:32], g.Admin[:])
	off := 32
	for _, v := range []uint64{
		g.FlashLoanFeeBps,
		g.LiquidationPenaltyBps,
		g.LiquidationGraceSlots,
		g.CompoundRateNumerator,
		g.CompoundRateDenominator,
		g.MaxBorrowRatioBps,
	} {
		le.PutUint64(buf[off:], v)
		off += 8
	}
	le.PutUint32(buf[off:], uint32(len(g.SupportedCollaterals)))
	off += 4
	for _, kind := range g.SupportedCollaterals {
		copy(buf[off:off+32], kind[:])
		off += 32
	}
	return buf, nil
}

// DecodeGovernance parses a governance record.
func DecodeGovernance(buf []byte) (*Governance, error) {
	if len(buf) != GovernanceSize {
		return nil, fmt.Errorf("%w: governance is %d bytes", ErrInvalidRecord, len(buf))
	}
	g := &Governance{Admin: solana.PublicKeyFromBytes(buf[0:32])}
	off := 32
	fields := []*uint64{
		&g.FlashLoanFeeBps,
		&g.LiquidationPenaltyBps,
		&g.LiquidationGraceSlots,
		&g.CompoundRateNumerator,
		&g.CompoundRateDenominator,
		&g.MaxBorrowRatioBps,
	}
	for _, f := range fields {
		*f = le.Uint64(buf[off:])
		off += 8
	}
	count := le.Uint32(buf[off:])
	off += 4
	if count > MaxSupportedCollaterals {
		return nil, fmt.Errorf("%w: %d collaterals", ErrInvalidRecord, count)
	}
	g.SupportedCollaterals = make([]solana.PublicKey, 0, count)
	for i := uint32(0); i < count; i++ {
		g.SupportedCollaterals = append(g.SupportedCollaterals, solana.PublicKeyFromBytes(buf[off:off+32]))
		off += 32
	}
	return g, nil
}

// EncodeRewardPool serialises the pool aggregate.
func EncodeRewardPool(p *RewardPool) []byte {
	buf := make([]byte, RewardPoolSize)
	le.PutUint64(buf[0:], p.TotalStaked)
	le.PutUint64(buf[8:], p.AccruedFees)
	le.PutUint64(buf[16:], p.ActiveLoanTotal)
	le.PutUint64(buf[24:], p.UpdateCounter)
	return buf
}

// DecodeRewardPool parses the pool aggregate.
func DecodeRewardPool(buf []byte) (*RewardPool, error) {
	if len(buf) != RewardPoolSize {
		return nil, fmt.Errorf("%w: reward pool is %d bytes", ErrInvalidRecord, len(buf))
	}
	return &RewardPool{
		TotalStaked:     le.Uint64(buf[0:]),
		AccruedFees:     le.Uint64(buf[8:]),
		ActiveLoanTotal: le.Uint64(buf[16:]),
		UpdateCounter:   le.Uint64(buf[24:]),
	}, nil
}

// EncodeStaker serialises a staker position.
func EncodeStaker(s *Staker) []byte {
	buf := make([]byte, StakerSize)
	le.PutUint64(buf[0:], s.StakedAmount)
	copy(buf[8:40], s.CollateralKind[:])
	le.PutUint64(buf[40:], s.LastCompoundSlot)
	le.PutUint64(buf[48:], s.LockEndSlot)
	return buf
}

// DecodeStaker parses a staker position.
func DecodeStaker(buf []byte) (*Staker, error) {
	if len(buf) != StakerSize {
		return nil, fmt.Errorf("%w: staker is %d bytes", ErrInvalidRecord, len(buf))
	}
	return &Staker{
		StakedAmount:     le.Uint64(buf[0:]),
		CollateralKind:   solana.PublicKeyFromBytes(buf[8:40]),
		LastCompoundSlot: le.Uint64(buf[40:]),
		LockEndSlot:      le.Uint64(buf[48:]),
	}, nil
}

// EncodeLoan serialises a loan.
func EncodeLoan(l *Loan) []byte {
	buf := make([]byte, LoanSize)
	copy(buf[0:32], l.Borrower[:])
	le.PutUint64(buf[32:], l.Amount)
	le.PutUint64(buf[40:], l.StartSlot)
	le.PutUint64(buf[48:], l.DueSlot)
	if l.Active {
		buf[56] = 1
	}
	return buf
}

// DecodeLoan parses a loan.
func DecodeLoan(buf []byte) (*Loan, error) {
	if len(buf) != LoanSize {
		return nil, fmt.Errorf("%w: loan is %d bytes", ErrInvalidRecord, len(buf))
	}
	if buf[56] > 1 {
		return nil, fmt.Errorf("%w: loan active flag %d", ErrInvalidRecord, buf[56])
	}
	return &Loan{
		Borrower:  solana.PublicKeyFromBytes(buf[0:32]),
		Amount:    le.Uint64(buf[32:]),
		StartSlot: le.Uint64(buf[40:]),
		DueSlot:   le.Uint64(buf[48:]),
		Active:    buf[56] == 1,
	}, nil
}

// EncodeVault serialises a vault descriptor.
func EncodeVault(v *Vault) []byte {
	return []byte{v.Bump}
}

// DecodeVault parses a vault descriptor.
func DecodeVault(buf []byte) (*Vault, error) {
	if len(buf) != VaultSize {
		return nil, fmt.Errorf("%w: vault is %d bytes", ErrInvalidRecord, len(buf))
	}
	return &Vault{Bump: buf[0]}, nil
}
