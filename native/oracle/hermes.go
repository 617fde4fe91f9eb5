package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultHermesEndpoint = "https://hermes.pyth.network"

// HermesOracle fetches the latest reading for one price feed from a Pyth
// Hermes endpoint.
type HermesOracle struct {
	client   HTTPDoer
	endpoint string
	feedID   string
}

// NewHermesOracle constructs a Hermes adapter. When the client is nil
// http.DefaultClient is used.
func NewHermesOracle(client HTTPDoer, endpoint, feedID string) *HermesOracle {
	ep := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if ep == "" {
		ep = defaultHermesEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HermesOracle{
		client:   client,
		endpoint: ep,
		feedID:   strings.TrimPrefix(strings.ToLower(strings.TrimSpace(feedID)), "0x"),
	}
}

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

// Latest implements Source.
func (o *HermesOracle) Latest(ctx context.Context) (Price, error) {
	if o == nil {
		return Price{}, fmt.Errorf("hermes oracle not configured")
	}
	if o.feedID == "" {
		return Price{}, fmt.Errorf("hermes oracle: feed id required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/v2/updates/price/latest", nil)
	if err != nil {
		return Price{}, err
	}
	values := url.Values{}
	values.Add("ids[]", o.feedID)
	values.Set("parsed", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return Price{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Price{}, fmt.Errorf("hermes oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Price{}, fmt.Errorf("hermes oracle: decode: %w", err)
	}
	for _, entry := range payload.Parsed {
		if !strings.EqualFold(strings.TrimPrefix(entry.ID, "0x"), o.feedID) {
			continue
		}
		value, err := strconv.ParseInt(strings.TrimSpace(entry.Price.Price), 10, 64)
		if err != nil {
			return Price{}, fmt.Errorf("hermes oracle: invalid price %q", entry.Price.Price)
		}
		var conf uint64
		if c := strings.TrimSpace(entry.Price.Conf); c != "" {
			conf, err = strconv.ParseUint(c, 10, 64)
			if err != nil {
				return Price{}, fmt.Errorf("hermes oracle: invalid conf %q", entry.Price.Conf)
			}
		}
		return Price{
			Price:       value,
			Conf:        conf,
			Expo:        entry.Price.Expo,
			PublishTime: entry.Price.PublishTime,
			Source:      "hermes",
		}, nil
	}
	return Price{}, fmt.Errorf("hermes oracle: feed %s missing from response: %w", o.feedID, ErrPriceUnavailable)
}

// PriceNoOlderThan implements PriceOracle.
func (o *HermesOracle) PriceNoOlderThan(ctx context.Context, maxAge uint64, now int64) (Price, error) {
	return Static{Source: o}.PriceNoOlderThan(ctx, maxAge, now)
}
