package genesis

import (
	"context"
	"errors"
	"fmt"

	"flashliquidity/native/flashloan"
	"flashliquidity/state/ledger"
)

// Apply bootstraps the protocol and credits the genesis allocations in one
// ledger transaction. It reports false without error when the ledger was
// already initialised.
func Apply(ctx context.Context, l *ledger.Ledger, engine *flashloan.Engine, spec *Spec) (bool, error) {
	if spec == nil {
		return false, errors.New("genesis spec must not be nil")
	}
	if l == nil || engine == nil {
		return false, errors.New("genesis: ledger and engine must be provided")
	}
	err := l.Update(ctx, func(tx *ledger.Tx) error {
		if err := engine.Bootstrap(ctx, tx, spec.Genesis()); err != nil {
			return err
		}
		for _, a := range spec.allocations {
			if err := tx.Mint(a.mint, a.account, a.amount); err != nil {
				return fmt.Errorf("allocate %d of %s to %s: %w", a.amount, a.mint, a.account, err)
			}
		}
		return nil
	})
	if errors.Is(err, flashloan.ErrAlreadyInitialised) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
