package flashloan

import "github.com/holiman/uint256"

// Every step is checked against the uint64 range so results match what a
// u64 ledger would accept.

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return sum.Uint64(), nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticUnderflow
	}
	return a - b, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !product.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return product.Uint64(), nil
}

func checkedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// mulDiv computes a*b/c with the product checked before division.
func mulDiv(a, b, c uint64) (uint64, error) {
	product, err := checkedMul(a, b)
	if err != nil {
		return 0, err
	}
	return checkedDiv(product, c)
}

func increment(counter *uint64) error {
	next, err := checkedAdd(*counter, 1)
	if err != nil {
		return err
	}
	*counter = next
	return nil
}
