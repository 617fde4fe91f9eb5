package flashloan

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"
)

// Stake moves amount of kind from owner into the vault, mints the same raw
// amount of claim tokens to owner and credits the (possibly boosted) ledger
// amount to the owner's position. sourceMint is the mint of the account the
// owner is paying from and must equal kind.
func (e *Engine) Stake(ctx context.Context, h Host, owner, kind, sourceMint solana.PublicKey, amount, lockDuration uint64) (_ *StakeReceipt, err error) {
	_, span, err := e.begin(ctx, "Stake", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}
	spanAttrs(span, attribute.String("owner", owner.String()), attribute.Int64("amount", int64(amount)))

	if !sourceMint.Equals(kind) {
		return nil, ErrInvalidCollateralKind
	}
	gov, err := loadGovernance(h)
	if err != nil {
		return nil, err
	}
	if !gov.Supports(kind) {
		return nil, ErrUnsupportedCollateral
	}
	pool, err := loadRewardPool(h)
	if err != nil {
		return nil, err
	}
	vault, err := e.vaultAccount(h, kind)
	if err != nil {
		return nil, err
	}
	claimMint, err := ClaimMintAddress(e.cfg.ProgramID, kind)
	if err != nil {
		return nil, err
	}
	slot := e.clock.Slot()

	credit := amount
	boosted := pool.TotalStaked < e.cfg.BoostThreshold
	if boosted {
		if credit, err = mulDiv(amount, boostNumerator, boostDenominator); err != nil {
			return nil, err
		}
	}

	staker, _, err := loadStaker(h, owner, kind)
	if err != nil {
		return nil, err
	}
	if staker.StakedAmount, err = checkedAdd(staker.StakedAmount, credit); err != nil {
		return nil, err
	}
	staker.CollateralKind = kind
	staker.LastCompoundSlot = slot
	if staker.LockEndSlot, err = checkedAdd(slot, lockDuration); err != nil {
		return nil, err
	}
	if pool.TotalStaked, err = checkedAdd(pool.TotalStaked, credit); err != nil {
		return nil, err
	}
	if err = increment(&pool.UpdateCounter); err != nil {
		return nil, err
	}

	if err = h.Transfer(owner, vault, kind, amount); err != nil {
		return nil, custodyErr(err)
	}
	if err = h.Mint(claimMint, owner, amount); err != nil {
		return nil, custodyErr(err)
	}
	if err = storeStaker(h, owner, staker); err != nil {
		return nil, err
	}
	if err = storeRewardPool(h, pool); err != nil {
		return nil, err
	}
	h.Emit(Staked{
		Owner:        owner,
		Kind:         kind,
		Amount:       amount,
		Credit:       credit,
		LockEndSlot:  staker.LockEndSlot,
		UpdateNumber: pool.UpdateCounter,
	})
	return &StakeReceipt{Credit: credit, Boosted: boosted, Staker: *staker}, nil
}

// CompoundRewards grows the owner's position by
// staked*numerator*elapsedSlots/denominator. Only ledger figures change; no
// tokens are minted or moved.
func (e *Engine) CompoundRewards(ctx context.Context, h Host, owner, kind solana.PublicKey) (_ *CompoundReceipt, err error) {
	_, span, err := e.begin(ctx, "CompoundRewards", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}

	gov, err := loadGovernance(h)
	if err != nil {
		return nil, err
	}
	pool, err := loadRewardPool(h)
	if err != nil {
		return nil, err
	}
	staker, err := requireStaker(h, owner, kind)
	if err != nil {
		return nil, err
	}
	slot := e.clock.Slot()
	elapsed, err := checkedSub(slot, staker.LastCompoundSlot)
	if err != nil {
		return nil, err
	}
	additional, err := checkedMul(staker.StakedAmount, gov.CompoundRateNumerator)
	if err != nil {
		return nil, err
	}
	if additional, err = mulDiv(additional, elapsed, gov.CompoundRateDenominator); err != nil {
		return nil, err
	}
	if staker.StakedAmount, err = checkedAdd(staker.StakedAmount, additional); err != nil {
		return nil, err
	}
	staker.LastCompoundSlot = slot
	if pool.TotalStaked, err = checkedAdd(pool.TotalStaked, additional); err != nil {
		return nil, err
	}
	if err = increment(&pool.UpdateCounter); err != nil {
		return nil, err
	}
	if err = storeStaker(h, owner, staker); err != nil {
		return nil, err
	}
	if err = storeRewardPool(h, pool); err != nil {
		return nil, err
	}
	h.Emit(Compounded{Owner: owner, Kind: kind, Additional: additional, UpdateNumber: pool.UpdateCounter})
	return &CompoundReceipt{Additional: additional, SlotsElapsed: elapsed, Staker: *staker}, nil
}

// Unstake releases amount of kind from the vault back to owner once the lock
// has expired. Claim tokens are not burned.
func (e *Engine) Unstake(ctx context.Context, h Host, owner, kind solana.PublicKey, amount uint64) (_ *Staker, err error) {
	_, span, err := e.begin(ctx, "Unstake", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}

	staker, err := requireStaker(h, owner, kind)
	if err != nil {
		return nil, err
	}
	if e.clock.Slot() < staker.LockEndSlot {
		return nil, ErrStakingLocked
	}
	if staker.StakedAmount < amount {
		return nil, ErrInsufficientStaked
	}
	pool, err := loadRewardPool(h)
	if err != nil {
		return nil, err
	}
	vault, err := e.vaultAccount(h, kind)
	if err != nil {
		return nil, err
	}
	if staker.StakedAmount, err = checkedSub(staker.StakedAmount, amount); err != nil {
		return nil, err
	}
	if pool.TotalStaked, err = checkedSub(pool.TotalStaked, amount); err != nil {
		return nil, err
	}
	if err = increment(&pool.UpdateCounter); err != nil {
		return nil, err
	}
	if err = h.Transfer(vault, owner, kind, amount); err != nil {
		return nil, custodyErr(err)
	}
	if err = storeStaker(h, owner, staker); err != nil {
		return nil, err
	}
	if err = storeRewardPool(h, pool); err != nil {
		return nil, err
	}
	h.Emit(Unstaked{Owner: owner, Kind: kind, Amount: amount, UpdateNumber: pool.UpdateCounter})
	return staker, nil
}
