package flashloan

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// Genesis describes the initial protocol state.
type Genesis struct {
	Admin       solana.PublicKey
	Parameters  Parameters
	Collaterals []solana.PublicKey
}

// Bootstrap creates the governance record, an empty reward pool and one vault
// descriptor per supported collateral kind. It may run only once.
func (e *Engine) Bootstrap(ctx context.Context, h Host, g Genesis) (err error) {
	if e == nil {
		return errNilEngine
	}
	if h == nil {
		return errNilHost
	}
	_, span := e.tracer.Start(ctx, moduleName+".Bootstrap")
	defer func() { finish(span, err) }()

	if _, err = loadGovernance(h); err == nil {
		return ErrAlreadyInitialised
	} else if !errors.Is(err, ErrNotInitialised) {
		return err
	}
	if len(g.Collaterals) > MaxSupportedCollaterals {
		return ErrTooManyCollaterals
	}
	gov := &Governance{
		Admin:                g.Admin,
		Parameters:           g.Parameters,
		SupportedCollaterals: append([]solana.PublicKey(nil), g.Collaterals...),
	}
	if err = storeGovernance(h, gov); err != nil {
		return err
	}
	if err = storeRewardPool(h, &RewardPool{}); err != nil {
		return err
	}
	for _, kind := range gov.SupportedCollaterals {
		_, bump, derr := VaultAddress(e.cfg.ProgramID, kind)
		if derr != nil {
			return derr
		}
		if err = h.Put(VaultKey(kind), EncodeVault(&Vault{Bump: bump})); err != nil {
			return err
		}
	}
	h.Emit(Bootstrapped{Admin: gov.Admin, Collaterals: len(gov.SupportedCollaterals)})
	return nil
}

// UpdateGovernanceParameters overwrites all six tunables. Only the governance
// admin may call it; values are not range checked.
func (e *Engine) UpdateGovernanceParameters(ctx context.Context, h Host, caller solana.PublicKey, params Parameters) (_ *Governance, err error) {
	_, span, err := e.begin(ctx, "UpdateGovernanceParameters", h)
	defer func() { finish(span, err) }()
	if err != nil {
		return nil, err
	}
	gov, err := loadGovernance(h)
	if err != nil {
		return nil, err
	}
	if !gov.Admin.Equals(caller) {
		return nil, ErrUnauthorized
	}
	gov.Parameters = params
	if err = storeGovernance(h, gov); err != nil {
		return nil, err
	}
	h.Emit(GovernanceUpdated{Admin: caller, Params: params})
	return gov, nil
}
