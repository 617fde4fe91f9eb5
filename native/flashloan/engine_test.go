package flashloan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"

	"flashliquidity/core/events"
	nativecommon "flashliquidity/native/common"
	"flashliquidity/native/oracle"
	"flashliquidity/storage"
)

type balanceKey struct {
	account solana.PublicKey
	mint    solana.PublicKey
}

type fakeBank struct {
	balances map[balanceKey]uint64
}

func (b *fakeBank) Transfer(from, to, mint solana.PublicKey, amount uint64) error {
	src := balanceKey{from, mint}
	if b.balances[src] < amount {
		return fmt.Errorf("insufficient funds: %s holds %d", from, b.balances[src])
	}
	b.balances[src] -= amount
	b.balances[balanceKey{to, mint}] += amount
	return nil
}

func (b *fakeBank) Mint(mint, to solana.PublicKey, amount uint64) error {
	b.balances[balanceKey{to, mint}] += amount
	return nil
}

func (b *fakeBank) credit(account, mint solana.PublicKey, amount uint64) {
	b.balances[balanceKey{account, mint}] += amount
}

func (b *fakeBank) balance(account, mint solana.PublicKey) uint64 {
	return b.balances[balanceKey{account, mint}]
}

type testHost struct {
	*storage.MemDB
	*fakeBank
	events.Buffer
}

func newTestHost() *testHost {
	return &testHost{
		MemDB:    storage.NewMemDB(),
		fakeBank: &fakeBank{balances: make(map[balanceKey]uint64)},
	}
}

type fixedClock struct {
	slot uint64
	unix int64
}

func (c *fixedClock) Slot() uint64         { return c.slot }
func (c *fixedClock) UnixTimestamp() int64 { return c.unix }

func testKey(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = b
	return k
}

var testParams = Parameters{
	FlashLoanFeeBps:         9,
	LiquidationPenaltyBps:   500,
	LiquidationGraceSlots:   10,
	CompoundRateNumerator:   1,
	CompoundRateDenominator: 1000,
	MaxBorrowRatioBps:       8000,
}

type fixture struct {
	engine *Engine
	host   *testHost
	clock  *fixedClock
	oracle *oracle.ManualOracle
	admin  solana.PublicKey
	kind   solana.PublicKey
	vault  solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	programID := testKey(0xF1)
	f := &fixture{
		engine: NewEngine(Config{ProgramID: programID, BoostThreshold: 10_000}),
		host:   newTestHost(),
		clock:  &fixedClock{slot: 100, unix: 1_700_000_000},
		oracle: oracle.NewManualOracle(),
		admin:  testKey(0xA1),
		kind:   testKey(0xC1),
	}
	f.oracle.Set(100, 0, f.clock.unix)
	f.engine.SetClock(f.clock)
	f.engine.SetOracle(f.oracle)
	vault, _, err := VaultAddress(programID, f.kind)
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	f.vault = vault
	genesis := Genesis{Admin: f.admin, Parameters: testParams, Collaterals: []solana.PublicKey{f.kind}}
	if err := f.engine.Bootstrap(context.Background(), f.host, genesis); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	f.host.Reset()
	return f
}

// seedPosition records a staked position without going through Stake so the
// pool total can be set to exact values.
func (f *fixture) seedPosition(t *testing.T, owner solana.PublicKey, staked uint64) {
	t.Helper()
	pool, err := loadRewardPool(f.host)
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	pool.TotalStaked += staked
	if err := storeRewardPool(f.host, pool); err != nil {
		t.Fatalf("store pool: %v", err)
	}
	staker := &Staker{StakedAmount: staked, CollateralKind: f.kind, LastCompoundSlot: f.clock.slot, LockEndSlot: f.clock.slot}
	if err := storeStaker(f.host, owner, staker); err != nil {
		t.Fatalf("store staker: %v", err)
	}
	f.host.credit(f.vault, f.kind, staked)
}

func (f *fixture) pool(t *testing.T) *RewardPool {
	t.Helper()
	pool, err := f.engine.RewardPool(f.host)
	if err != nil {
		t.Fatalf("reward pool: %v", err)
	}
	return pool
}

func TestBootstrapRunsOnce(t *testing.T) {
	f := newFixture(t)
	gov, err := f.engine.Governance(f.host)
	if err != nil {
		t.Fatalf("governance: %v", err)
	}
	if !gov.Admin.Equals(f.admin) || gov.Parameters != testParams || !gov.Supports(f.kind) {
		t.Fatalf("unexpected governance %+v", gov)
	}
	if _, err := loadVault(f.host, f.kind); err != nil {
		t.Fatalf("vault descriptor missing: %v", err)
	}
	err = f.engine.Bootstrap(context.Background(), f.host, Genesis{Admin: f.admin})
	if !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
}

func TestBootstrapRejectsTooManyCollaterals(t *testing.T) {
	engine := NewEngine(Config{ProgramID: testKey(0xF1)})
	kinds := make([]solana.PublicKey, MaxSupportedCollaterals+1)
	for i := range kinds {
		kinds[i] = testKey(byte(i + 1))
	}
	err := engine.Bootstrap(context.Background(), newTestHost(), Genesis{Collaterals: kinds})
	if !errors.Is(err, ErrTooManyCollaterals) {
		t.Fatalf("expected ErrTooManyCollaterals, got %v", err)
	}
}

func TestOperationsRequireBootstrap(t *testing.T) {
	engine := NewEngine(Config{ProgramID: testKey(0xF1)})
	engine.SetClock(&fixedClock{slot: 1})
	kind := testKey(0xC1)
	_, err := engine.Stake(context.Background(), newTestHost(), testKey(1), kind, kind, 10, 0)
	if !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(nativecommon.NewPauseSet(moduleName))
	owner := testKey(0x01)
	f.host.credit(owner, f.kind, 1_000)

	if _, err := f.engine.Stake(context.Background(), f.host, owner, f.kind, f.kind, 1_000, 0); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if got := f.host.balance(owner, f.kind); got != 1_000 {
		t.Fatalf("expected balance untouched, got %d", got)
	}
	if len(f.host.Events()) != 0 {
		t.Fatalf("expected no events while paused")
	}
}

func TestUpdateGovernanceRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	next := Parameters{
		FlashLoanFeeBps:         1,
		LiquidationPenaltyBps:   2,
		LiquidationGraceSlots:   3,
		CompoundRateNumerator:   4,
		CompoundRateDenominator: 0,
		MaxBorrowRatioBps:       20_000,
	}
	if _, err := f.engine.UpdateGovernanceParameters(context.Background(), f.host, testKey(0x09), next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	gov, err := f.engine.UpdateGovernanceParameters(context.Background(), f.host, f.admin, next)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if gov.Parameters != next {
		t.Fatalf("expected parameters overwritten unchecked, got %+v", gov.Parameters)
	}
	stored, err := f.engine.Governance(f.host)
	if err != nil {
		t.Fatalf("governance: %v", err)
	}
	if stored.Parameters != next || !stored.Supports(f.kind) {
		t.Fatalf("expected stored parameters to match, got %+v", stored)
	}
	evs := f.host.Events()
	if len(evs) != 1 || evs[0].EventType() != TypeGovernanceUpdated {
		t.Fatalf("expected a single governance event, got %v", evs)
	}
}

func TestCodeMapsSentinels(t *testing.T) {
	cases := map[error]string{
		ErrStakingLocked:                         "staking_locked",
		fmt.Errorf("wrapped: %w", ErrReentrancy): "reentrancy",
		nativecommon.ErrModulePaused:             "module_paused",
		ErrBorrowInProgress:                      "borrow_in_progress",
		errors.New("boom"):                       "internal",
	}
	for err, want := range cases {
		if got := Code(err); got != want {
			t.Fatalf("Code(%v) = %q, want %q", err, got, want)
		}
	}
	if Code(nil) != "" {
		t.Fatalf("expected empty code for nil")
	}
}
