package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSlotClockAdvances(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	fake := clockwork.NewFakeClockAt(genesis)
	sc, err := NewSlotClock(fake, genesis, DefaultSlotDuration)
	if err != nil {
		t.Fatalf("new slot clock: %v", err)
	}
	if sc.Slot() != 0 {
		t.Fatalf("expected slot 0 at genesis, got %d", sc.Slot())
	}
	fake.Advance(time.Second)
	if sc.Slot() != 2 {
		t.Fatalf("expected slot 2 after one second, got %d", sc.Slot())
	}
	if sc.UnixTimestamp() != 1_700_000_001 {
		t.Fatalf("unexpected unix timestamp %d", sc.UnixTimestamp())
	}
}

func TestSlotClockBeforeGenesis(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	fake := clockwork.NewFakeClockAt(genesis.Add(-time.Minute))
	sc, err := NewSlotClock(fake, genesis, time.Second)
	if err != nil {
		t.Fatalf("new slot clock: %v", err)
	}
	if sc.Slot() != 0 {
		t.Fatalf("expected clamp to zero, got %d", sc.Slot())
	}
}

func TestSlotClockRejectsZeroDuration(t *testing.T) {
	if _, err := NewSlotClock(nil, time.Now(), 0); err == nil {
		t.Fatalf("expected error for zero slot duration")
	}
}
