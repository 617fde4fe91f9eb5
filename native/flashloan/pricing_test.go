package flashloan

import (
	"context"
	"errors"
	"testing"
)

func TestBaseFeeTiers(t *testing.T) {
	cases := []struct {
		utilization uint64
		want        uint64
	}{
		{0, 15},
		{18, 15},
		{19, 15},
		{20, 20},
		{79, 20},
		{80, 50},
		{100, 50},
		{250, 50},
	}
	for _, tc := range cases {
		if got := BaseFeeBps(tc.utilization); got != tc.want {
			t.Fatalf("BaseFeeBps(%d) = %d, want %d", tc.utilization, got, tc.want)
		}
	}
}

func TestUtilization(t *testing.T) {
	util, err := Utilization(0, 1_000, 10_000)
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if util != 10 {
		t.Fatalf("expected 10, got %d", util)
	}
	if _, err := Utilization(0, 1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	if _, err := Utilization(^uint64(0), 1, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestRescaleFeeBps(t *testing.T) {
	cases := []struct {
		base  uint64
		price int64
		want  uint64
	}{
		{15, 100, 15},
		{15, 300, 5},
		{20, 1, 2_000},
		{50, 0, 50},
		{50, -7, 50},
		{15, 6_140_993_501, 0},
	}
	for _, tc := range cases {
		got, err := RescaleFeeBps(tc.base, tc.price)
		if err != nil {
			t.Fatalf("rescale(%d, %d): %v", tc.base, tc.price, err)
		}
		if got != tc.want {
			t.Fatalf("rescale(%d, %d) = %d, want %d", tc.base, tc.price, got, tc.want)
		}
	}
}

func TestFlashFeeTruncates(t *testing.T) {
	fee, after, err := FlashFee(1_000, 15)
	if err != nil {
		t.Fatalf("flash fee: %v", err)
	}
	if fee != 1 || after != 999 {
		t.Fatalf("expected fee 1 and 999 released, got %d and %d", fee, after)
	}
	if _, _, err := FlashFee(1_000, 20_000); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected ErrArithmeticUnderflow when fee exceeds amount, got %v", err)
	}
}

func TestQuoteFeeDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.seedPosition(t, testKey(0x01), 10_000)
	q, err := f.engine.QuoteFee(context.Background(), f.host, 1_000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Utilization != 10 || q.BaseFeeBps != 15 || q.FeeBps != 15 || q.FlashFee != 1 || q.AmountAfterFee != 999 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if pool := f.pool(t); pool.ActiveLoanTotal != 0 || pool.UpdateCounter != 0 {
		t.Fatalf("quote mutated pool: %+v", pool)
	}
}
