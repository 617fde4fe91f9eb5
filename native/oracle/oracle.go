package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrPriceUnavailable indicates that no oracle could produce a price.
	ErrPriceUnavailable = errors.New("oracle: price unavailable")
	// ErrStalePrice indicates that the freshest available price is older than
	// the caller's freshness bound.
	ErrStalePrice = errors.New("oracle: price is stale")
)

// Price mirrors a price-feed reading: an integer mantissa with a decimal
// exponent, a confidence interval, and the unix second it was published.
type Price struct {
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime int64
	Source      string
}

// FreshAt reports whether the price is no older than maxAge seconds at now.
// Publish times ahead of now count as fresh.
func (p Price) FreshAt(maxAge uint64, now int64) bool {
	if p.PublishTime >= now {
		return true
	}
	return uint64(now-p.PublishTime) <= maxAge
}

// Source yields the latest price reading known to an upstream feed.
type Source interface {
	Latest(ctx context.Context) (Price, error)
}

// PriceOracle returns a price no older than maxAge seconds relative to now.
type PriceOracle interface {
	PriceNoOlderThan(ctx context.Context, maxAge uint64, now int64) (Price, error)
}

// Aggregator consults a list of registered sources in priority order until a
// fresh price is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
}

// NewAggregator constructs an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{sources: make(map[string]Source)}
}

// Register adds or replaces a source under the supplied identifier. Sources
// are consulted in registration order.
func (a *Aggregator) Register(name string, src Source) {
	if a == nil || src == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.sources[key]; !exists {
		a.priority = append(a.priority, key)
	}
	a.sources[key] = src
}

// PriceNoOlderThan implements PriceOracle.
func (a *Aggregator) PriceNoOlderThan(ctx context.Context, maxAge uint64, now int64) (Price, error) {
	if a == nil {
		return Price{}, ErrPriceUnavailable
	}
	a.mu.RLock()
	priority := append([]string(nil), a.priority...)
	a.mu.RUnlock()

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		src := a.sources[name]
		a.mu.RUnlock()
		if src == nil {
			continue
		}
		price, err := src.Latest(ctx)
		if err != nil {
			lastErr = fmt.Errorf("oracle %s: %w", name, err)
			continue
		}
		if !price.FreshAt(maxAge, now) {
			lastErr = ErrStalePrice
			continue
		}
		if price.Source == "" {
			price.Source = name
		}
		return price, nil
	}
	if lastErr == nil {
		lastErr = ErrPriceUnavailable
	}
	return Price{}, lastErr
}

// Static adapts a single Source into a PriceOracle.
type Static struct {
	Source Source
}

// PriceNoOlderThan implements PriceOracle.
func (s Static) PriceNoOlderThan(ctx context.Context, maxAge uint64, now int64) (Price, error) {
	if s.Source == nil {
		return Price{}, ErrPriceUnavailable
	}
	price, err := s.Source.Latest(ctx)
	if err != nil {
		return Price{}, err
	}
	if !price.FreshAt(maxAge, now) {
		return Price{}, ErrStalePrice
	}
	return price, nil
}
