package oracle

import (
	"context"
	"fmt"
	"sync"
)

// ManualOracle provides an in-memory price source used for tests and manual
// overrides during incident response.
type ManualOracle struct {
	mu    sync.RWMutex
	price *Price
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{}
}

// Set records the supplied price published at publishTime.
func (m *ManualOracle) Set(price int64, expo int32, publishTime int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.price = &Price{Price: price, Expo: expo, PublishTime: publishTime, Source: "manual"}
	m.mu.Unlock()
}

// Clear removes the stored price so subsequent reads fail.
func (m *ManualOracle) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.price = nil
	m.mu.Unlock()
}

// Latest implements Source.
func (m *ManualOracle) Latest(context.Context) (Price, error) {
	if m == nil {
		return Price{}, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.price == nil {
		return Price{}, ErrPriceUnavailable
	}
	return *m.price, nil
}

// PriceNoOlderThan implements PriceOracle.
func (m *ManualOracle) PriceNoOlderThan(ctx context.Context, maxAge uint64, now int64) (Price, error) {
	return Static{Source: m}.PriceNoOlderThan(ctx, maxAge, now)
}
