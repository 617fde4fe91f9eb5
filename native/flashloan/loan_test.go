package flashloan

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBorrowChargesTieredFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	borrower := testKey(0x01)
	f.seedPosition(t, borrower, 10_000)

	receipt, err := f.engine.Borrow(ctx, f.host, borrower, f.kind, borrower, 1_000, 20)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if receipt.FeeBps != 15 || receipt.FlashFee != 1 || receipt.AmountAfterFee != 999 || receipt.DueSlot != 120 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.host.balance(borrower, f.kind); got != 999 {
		t.Fatalf("expected borrower to receive 999, got %d", got)
	}
	pool := f.pool(t)
	if pool.ActiveLoanTotal != 1_000 || pool.AccruedFees != 1 || pool.UpdateCounter != 1 {
		t.Fatalf("unexpected pool %+v", pool)
	}
	loan, err := f.engine.Loan(f.host, f.kind, receipt.LoanID)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	want := Loan{Borrower: borrower, Amount: 1_000, StartSlot: 100, DueSlot: 120, Active: true}
	if *loan != want {
		t.Fatalf("expected %+v, got %+v", want, *loan)
	}
	evs := f.host.Events()
	if len(evs) != 1 || evs[0].EventType() != TypeBorrowed {
		t.Fatalf("expected one borrow event, got %v", evs)
	}
}

func TestBorrowFeeFollowsOraclePrice(t *testing.T) {
	f := newFixture(t)
	borrower := testKey(0x01)
	f.seedPosition(t, borrower, 10_000)
	f.oracle.Set(300, -2, f.clock.unix)

	receipt, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 1_000, 20)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// 15 * 100 / 300 = 5 bps, 1000 * 5 / 10000 truncates to zero.
	if receipt.FeeBps != 5 || receipt.FlashFee != 0 || receipt.AmountAfterFee != 1_000 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestBorrowHighUtilizationTier(t *testing.T) {
	f := newFixture(t)
	borrower := testKey(0x01)
	f.seedPosition(t, borrower, 10_000)
	receipt, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 8_000, 20)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// utilization 80 lands in the top tier: 8000 * 50 / 10000 = 40.
	if receipt.FeeBps != 50 || receipt.FlashFee != 40 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestBorrowRejections(t *testing.T) {
	borrower := testKey(0x01)
	cases := []struct {
		name   string
		setup  func(f *fixture)
		amount uint64
		want   error
	}{
		{
			name:   "negative timestamp",
			setup:  func(f *fixture) { f.clock.unix = -1 },
			amount: 100,
			want:   ErrInvalidTimestamp,
		},
		{
			name:   "stale oracle",
			setup:  func(f *fixture) { f.oracle.Set(100, 0, f.clock.unix-OracleMaxAgeSeconds-1) },
			amount: 100,
			want:   ErrOraclePriceUnavailable,
		},
		{
			name:   "missing oracle price",
			setup:  func(f *fixture) { f.oracle.Clear() },
			amount: 100,
			want:   ErrOraclePriceUnavailable,
		},
		{
			name:   "exceeds collateral",
			amount: 8_001,
			want:   ErrBorrowExceedsCollateral,
		},
		{
			name: "empty vault",
			setup: func(f *fixture) {
				_ = f.host.Transfer(f.vault, testKey(0x77), f.kind, 10_000)
			},
			amount: 100,
			want:   ErrCustody,
		},
		{
			name: "callback failure",
			setup: func(f *fixture) {
				f.engine.SetCallback(CallbackFunc(func(context.Context, solana.PublicKey, solana.PublicKey) error {
					return errors.New("arbitrage failed")
				}))
			},
			amount: 100,
			want:   ErrCallback,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedPosition(t, borrower, 10_000)
			if tc.setup != nil {
				tc.setup(f)
			}
			_, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, tc.amount, 20)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBorrowWithoutStakeDividesByZero(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Borrow(context.Background(), f.host, testKey(0x01), f.kind, testKey(0x01), 100, 20)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestBorrowRequiresStakerRecord(t *testing.T) {
	f := newFixture(t)
	f.seedPosition(t, testKey(0x01), 10_000)
	_, err := f.engine.Borrow(context.Background(), f.host, testKey(0x02), f.kind, testKey(0x02), 100, 20)
	if !errors.Is(err, ErrStakerNotFound) {
		t.Fatalf("expected ErrStakerNotFound, got %v", err)
	}
}

func TestBorrowRejectsNestedBorrowFromCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	borrower := testKey(0x01)
	f.seedPosition(t, borrower, 10_000)

	var nestedErr error
	var inFlight, busy, otherBusy bool
	f.engine.SetCallback(CallbackFunc(func(ctx context.Context, b, dest solana.PublicKey) error {
		inFlight = f.engine.BorrowInFlight(b, f.kind)
		busy = f.engine.BorrowerBusy(b)
		otherBusy = f.engine.BorrowerBusy(testKey(0x02))
		_, nestedErr = f.engine.Borrow(ctx, f.host, b, f.kind, dest, 10, 5)
		return nil
	}))

	if _, err := f.engine.Borrow(ctx, f.host, borrower, f.kind, borrower, 1_000, 20); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	require.True(t, inFlight)
	require.True(t, busy)
	require.False(t, otherBusy)
	require.ErrorIs(t, nestedErr, ErrReentrancy)
	require.False(t, f.engine.BorrowInFlight(borrower, f.kind))
	require.False(t, f.engine.BorrowerBusy(borrower))
	require.Equal(t, uint64(1_000), f.pool(t).ActiveLoanTotal)
}

func TestBorrowRejectsActiveLoanRecord(t *testing.T) {
	f := newFixture(t)
	borrower := testKey(0x01)
	f.seedPosition(t, borrower, 10_000)
	fixed := uuid.MustParse("6f1c2b4e-8f4d-4c1e-9a55-0d6a1f1f6a01")
	f.engine.SetIDGenerator(func() LoanID { return fixed })

	if _, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 100, 20); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 100, 20); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("expected ErrReentrancy, got %v", err)
	}
}

func TestBorrowerMayHoldSeveralLoans(t *testing.T) {
	f := newFixture(t)
	borrower := testKey(0x01)
	f.seedPosition(t, borrower, 10_000)
	first, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 1_000, 20)
	require.NoError(t, err)
	second, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 1_000, 20)
	require.NoError(t, err)
	require.NotEqual(t, first.LoanID, second.LoanID)
	require.Equal(t, uint64(2_000), f.pool(t).ActiveLoanTotal)
}

func openLoan(t *testing.T, f *fixture, borrower solana.PublicKey) LoanID {
	t.Helper()
	f.seedPosition(t, borrower, 10_000)
	receipt, err := f.engine.Borrow(context.Background(), f.host, borrower, f.kind, borrower, 1_000, 20)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return receipt.LoanID
}

func TestRepayOnDueSlotHasNoPenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	borrower := testKey(0x01)
	id := openLoan(t, f, borrower)
	f.host.credit(borrower, f.kind, 1)
	f.clock.slot = 120

	if _, err := f.engine.Repay(ctx, f.host, borrower, f.kind, id, 999); !errors.Is(err, ErrRepaymentInsufficient) {
		t.Fatalf("expected ErrRepaymentInsufficient, got %v", err)
	}
	receipt, err := f.engine.Repay(ctx, f.host, borrower, f.kind, id, 1_000)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if receipt.Penalty != 0 || receipt.Paid != 1_000 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	pool := f.pool(t)
	if pool.ActiveLoanTotal != 0 || pool.AccruedFees != 1 || pool.UpdateCounter != 2 {
		t.Fatalf("unexpected pool %+v", pool)
	}
	if _, err := f.engine.Loan(f.host, f.kind, id); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected repaid loan to be reclaimed, got %v", err)
	}
	if _, err := f.engine.Repay(ctx, f.host, borrower, f.kind, id, 1_000); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected second repay to fail, got %v", err)
	}
}

func TestRepayOverdueChargesLinearPenalty(t *testing.T) {
	for _, k := range []uint64{1, 3, 7} {
		f := newFixture(t)
		borrower := testKey(0x01)
		id := openLoan(t, f, borrower)
		f.host.credit(borrower, f.kind, 5_000)
		f.clock.slot = 120 + k

		want := 1_000 * k * testParams.LiquidationPenaltyBps / BasisPoints
		_, err := f.engine.Repay(context.Background(), f.host, borrower, f.kind, id, 1_000+want-1)
		if !errors.Is(err, ErrRepaymentInsufficient) {
			t.Fatalf("k=%d: expected ErrRepaymentInsufficient, got %v", k, err)
		}
		vaultBefore := f.host.balance(f.vault, f.kind)
		receipt, err := f.engine.Repay(context.Background(), f.host, borrower, f.kind, id, 1_000+want+25)
		if err != nil {
			t.Fatalf("k=%d: repay: %v", k, err)
		}
		if receipt.Penalty != want {
			t.Fatalf("k=%d: expected penalty %d, got %d", k, want, receipt.Penalty)
		}
		if got := f.host.balance(f.vault, f.kind) - vaultBefore; got != 1_000+want+25 {
			t.Fatalf("k=%d: expected whole payment in vault, got %d", k, got)
		}
		if pool := f.pool(t); pool.AccruedFees != 1+want || pool.ActiveLoanTotal != 0 {
			t.Fatalf("k=%d: unexpected pool %+v", k, pool)
		}
	}
}

func TestPenaltyHelper(t *testing.T) {
	loan := &Loan{Amount: 1_000, DueSlot: 120}
	for slot, want := range map[uint64]uint64{100: 0, 120: 0, 121: 50, 130: 500} {
		got, err := Penalty(loan, slot, 500)
		if err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
		if got != want {
			t.Fatalf("slot %d: expected %d, got %d", slot, want, got)
		}
	}
}

func TestLiquidateHonoursGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	borrower := testKey(0x01)
	liquidator := testKey(0x0F)
	id := openLoan(t, f, borrower)

	for _, slot := range []uint64{100, 120, 125, 130} {
		f.clock.slot = slot
		if _, err := f.engine.Liquidate(ctx, f.host, liquidator, f.kind, id); !errors.Is(err, ErrLoanNotOverdue) {
			t.Fatalf("slot %d: expected ErrLoanNotOverdue, got %v", slot, err)
		}
	}

	f.clock.slot = 131
	receipt, err := f.engine.Liquidate(ctx, f.host, liquidator, f.kind, id)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if receipt.PenaltyCollateral != 50 || receipt.Principal != 1_000 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.host.balance(liquidator, f.kind); got != 50 {
		t.Fatalf("expected liquidator to receive 50, got %d", got)
	}
	pool := f.pool(t)
	if pool.ActiveLoanTotal != 0 || pool.AccruedFees != 51 || pool.UpdateCounter != 2 {
		t.Fatalf("unexpected pool %+v", pool)
	}
	loan, err := f.engine.Loan(f.host, f.kind, id)
	if err != nil {
		t.Fatalf("expected liquidated loan to be retained: %v", err)
	}
	if loan.Active {
		t.Fatalf("expected loan inactive after liquidation")
	}
	if _, err := f.engine.Liquidate(ctx, f.host, liquidator, f.kind, id); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive, got %v", err)
	}
	if _, err := f.engine.Repay(ctx, f.host, borrower, f.kind, id, 10_000); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected repay of liquidated loan to fail, got %v", err)
	}
}
