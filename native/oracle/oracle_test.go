package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type sourceFunc func(ctx context.Context) (Price, error)

func (f sourceFunc) Latest(ctx context.Context) (Price, error) { return f(ctx) }

func TestPriceFreshness(t *testing.T) {
	p := Price{Price: 100, PublishTime: 1_000}
	cases := []struct {
		now   int64
		fresh bool
	}{
		{now: 1_000, fresh: true},
		{now: 1_060, fresh: true},
		{now: 1_061, fresh: false},
		{now: 900, fresh: true},
	}
	for _, tc := range cases {
		if got := p.FreshAt(60, tc.now); got != tc.fresh {
			t.Fatalf("now=%d: expected fresh=%v, got %v", tc.now, tc.fresh, got)
		}
	}
}

func TestManualOracleStaleAndMissing(t *testing.T) {
	manual := NewManualOracle()
	if _, err := manual.PriceNoOlderThan(context.Background(), 60, 1_000); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	manual.Set(42, -2, 900)
	if _, err := manual.PriceNoOlderThan(context.Background(), 60, 1_000); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
	price, err := manual.PriceNoOlderThan(context.Background(), 60, 950)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Price != 42 || price.Expo != -2 || price.Source != "manual" {
		t.Fatalf("unexpected price %+v", price)
	}
	manual.Clear()
	if _, err := manual.Latest(context.Background()); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected cleared oracle to fail, got %v", err)
	}
}

func TestAggregatorPriorityFallback(t *testing.T) {
	manual := NewManualOracle()
	manual.Set(7, 0, 1_000)
	agg := NewAggregator()
	agg.Register("primary", sourceFunc(func(context.Context) (Price, error) {
		return Price{}, fmt.Errorf("primary down")
	}))
	agg.Register("stale", sourceFunc(func(context.Context) (Price, error) {
		return Price{Price: 99, PublishTime: 0}, nil
	}))
	agg.Register("manual", manual)

	price, err := agg.PriceNoOlderThan(context.Background(), 60, 1_010)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Price != 7 || price.Source != "manual" {
		t.Fatalf("expected manual fallback, got %+v", price)
	}
}

func TestAggregatorEmpty(t *testing.T) {
	if _, err := NewAggregator().PriceNoOlderThan(context.Background(), 60, 0); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestHermesOracle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids[]"); got != "abcd" {
			t.Errorf("expected feed id abcd, got %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"parsed": []map[string]any{{
				"id": "abcd",
				"price": map[string]any{
					"price":        "6140993501",
					"conf":         "3142",
					"expo":         -8,
					"publish_time": 1_700_000_000,
				},
			}},
		})
	}))
	defer server.Close()

	o := NewHermesOracle(server.Client(), server.URL, "0xABCD")
	price, err := o.PriceNoOlderThan(context.Background(), 60, 1_700_000_030)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Price != 6140993501 || price.Conf != 3142 || price.Expo != -8 {
		t.Fatalf("unexpected price %+v", price)
	}
	if _, err := o.PriceNoOlderThan(context.Background(), 60, 1_700_000_100); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale error, got %v", err)
	}
}

func TestHermesOracleStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "feed not found", http.StatusNotFound)
	}))
	defer server.Close()
	o := NewHermesOracle(server.Client(), server.URL, "abcd")
	if _, err := o.Latest(context.Background()); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}
