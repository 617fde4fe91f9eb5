package callback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of "timestamp.body".
	SignatureHeader = "X-Flashloan-Signature"
	// TimestampHeader carries the unix time the request was signed.
	TimestampHeader = "X-Flashloan-Timestamp"
)

// Payload is the body posted after a borrow releases funds.
type Payload struct {
	Borrower    solana.PublicKey `json:"borrower"`
	Destination solana.PublicKey `json:"destination"`
}

// Webhook notifies an external program that borrowed funds are available. A
// non-2xx response aborts the borrow.
type Webhook struct {
	url    string
	secret []byte
	client *http.Client
	clock  clockwork.Clock
}

// New constructs a webhook callback. A nil client gets an instrumented client
// with the given timeout.
func New(url, secret string, timeout time.Duration, client *http.Client) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("callback: url required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("callback: secret required")
	}
	if client == nil {
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Webhook{url: url, secret: []byte(secret), client: client, clock: clockwork.NewRealClock()}, nil
}

// SetClock overrides the signing clock.
func (w *Webhook) SetClock(c clockwork.Clock) {
	if c != nil {
		w.clock = c
	}
}

// OnBorrow posts the borrower and destination to the webhook.
func (w *Webhook) OnBorrow(ctx context.Context, borrower, destination solana.PublicKey) error {
	body, err := json.Marshal(Payload{Borrower: borrower, Destination: destination})
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(w.clock.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, ts)
	req.Header.Set(SignatureHeader, Sign(w.secret, ts, body))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the signature receivers should compare against SignatureHeader.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret []byte, timestamp string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(Sign(secret, timestamp, body))
	if err != nil {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
