package clock

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultSlotDuration matches the cadence of the settlement chain the
// protocol mirrors.
const DefaultSlotDuration = 400 * time.Millisecond

var errInvalidSlotDuration = errors.New("clock: slot duration must be positive")

// SlotClock derives logical slots from wall-clock time elapsed since genesis.
// Slots before genesis clamp to zero.
type SlotClock struct {
	clock    clockwork.Clock
	genesis  time.Time
	duration time.Duration
}

// NewSlotClock constructs a slot clock. A nil clock selects the real clock.
func NewSlotClock(c clockwork.Clock, genesis time.Time, slotDuration time.Duration) (*SlotClock, error) {
	if slotDuration <= 0 {
		return nil, errInvalidSlotDuration
	}
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &SlotClock{clock: c, genesis: genesis, duration: slotDuration}, nil
}

// Slot returns the number of whole slots elapsed since genesis.
func (s *SlotClock) Slot() uint64 {
	elapsed := s.clock.Since(s.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / s.duration)
}

// UnixTimestamp returns the current wall-clock time in unix seconds.
func (s *SlotClock) UnixTimestamp() int64 {
	return s.clock.Now().Unix()
}

// Genesis returns the time of slot zero.
func (s *SlotClock) Genesis() time.Time { return s.genesis }
