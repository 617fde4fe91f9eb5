package flashloan

import (
	"context"
	"fmt"

	"flashliquidity/native/oracle"
)

// Utilization tiers in percent and their base fees in bps.
const (
	lowUtilizationPct  = 20
	highUtilizationPct = 80

	lowTierFeeBps  = 15
	midTierFeeBps  = 20
	highTierFeeBps = 50
)

// Utilization returns (activeLoanTotal+amount)*100/totalStaked.
func Utilization(activeLoanTotal, amount, totalStaked uint64) (uint64, error) {
	outstanding, err := checkedAdd(activeLoanTotal, amount)
	if err != nil {
		return 0, err
	}
	return mulDiv(outstanding, 100, totalStaked)
}

// BaseFeeBps maps a utilization percentage onto the tiered fee schedule.
func BaseFeeBps(utilization uint64) uint64 {
	switch {
	case utilization < lowUtilizationPct:
		return lowTierFeeBps
	case utilization < highUtilizationPct:
		return midTierFeeBps
	default:
		return highTierFeeBps
	}
}

// RescaleFeeBps applies the oracle adjustment base*100/price. Non-positive
// prices leave the base fee untouched. The raw integer price is used without
// exponent normalisation.
func RescaleFeeBps(base uint64, price int64) (uint64, error) {
	if price <= 0 {
		return base, nil
	}
	return mulDiv(base, 100, uint64(price))
}

// FlashFee splits amount into the fee at feeBps and the remainder released to
// the borrower.
func FlashFee(amount, feeBps uint64) (fee, afterFee uint64, err error) {
	fee, err = mulDiv(amount, feeBps, BasisPoints)
	if err != nil {
		return 0, 0, err
	}
	afterFee, err = checkedSub(amount, fee)
	if err != nil {
		return 0, 0, err
	}
	return fee, afterFee, nil
}

// FeeQuote captures each pricing step for a prospective borrow.
type FeeQuote struct {
	Amount         uint64       `json:"amount"`
	Utilization    uint64       `json:"utilization"`
	BaseFeeBps     uint64       `json:"baseFeeBps"`
	FeeBps         uint64       `json:"feeBps"`
	FlashFee       uint64       `json:"flashFee"`
	AmountAfterFee uint64       `json:"amountAfterFee"`
	Price          oracle.Price `json:"price"`
}

func (e *Engine) quote(ctx context.Context, pool *RewardPool, amount uint64, now int64) (FeeQuote, error) {
	q := FeeQuote{Amount: amount}
	util, err := Utilization(pool.ActiveLoanTotal, amount, pool.TotalStaked)
	if err != nil {
		return q, err
	}
	q.Utilization = util
	q.BaseFeeBps = BaseFeeBps(util)

	if e.oracle == nil {
		return q, fmt.Errorf("%w: %v", ErrOraclePriceUnavailable, errNilOracle)
	}
	price, err := e.oracle.PriceNoOlderThan(ctx, OracleMaxAgeSeconds, now)
	if err != nil {
		return q, fmt.Errorf("%w: %v", ErrOraclePriceUnavailable, err)
	}
	q.Price = price
	q.FeeBps, err = RescaleFeeBps(q.BaseFeeBps, price.Price)
	if err != nil {
		return q, err
	}
	q.FlashFee, q.AmountAfterFee, err = FlashFee(amount, q.FeeBps)
	if err != nil {
		return q, err
	}
	return q, nil
}

// QuoteFee previews the pricing of a borrow of amount without mutating
// state.
func (e *Engine) QuoteFee(ctx context.Context, st State, amount uint64) (FeeQuote, error) {
	if e == nil {
		return FeeQuote{}, errNilEngine
	}
	if st == nil {
		return FeeQuote{}, errNilHost
	}
	if e.clock == nil {
		return FeeQuote{}, errNilClock
	}
	now := e.clock.UnixTimestamp()
	if now < 0 {
		return FeeQuote{}, ErrInvalidTimestamp
	}
	pool, err := loadRewardPool(st)
	if err != nil {
		return FeeQuote{}, err
	}
	return e.quote(ctx, pool, amount, now)
}
