// Package pricingapi calls the price-update routes of a running API server.
// Requests are rate limited on the client side and retried on 429 and
// transient 5xx; UpdatePrice converges, so a retry after a lost response is safe.
package pricingapi

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"hotel_pricing/internal/adapters/observability"
	"hotel_pricing/internal/domain"
)

const (
	maxAttempts  = 4
	maxRetryWait = 30 * time.Second
)

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("pricing API base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// result mirrors the server's price-change response.
type result struct {
	OldPrice     float64 `json:"oldPrice"`
	NewPrice     float64 `json:"newPrice"`
	UpdatedCount int     `json:"updatedCount"`
}

// APIError is a non-retryable problem+json response, or the last retryable one.
type APIError struct {
	Status       int      `json:"status"`
	Kind         string   `json:"kind"`
	Detail       string   `json:"detail"`
	UpdatedCount *int     `json:"updatedCount"`
	Pending      []string `json:"pending"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("pricing api %d %s: %s", e.Status, e.Kind, e.Detail)
	}
	return fmt.Sprintf("pricing api %d: %s", e.Status, e.Detail)
}

// Is lets callers match on domain sentinels, e.g. errors.Is(err, domain.ErrNotFound).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*domain.Error)
	return ok && string(t.Kind) == e.Kind
}

func pricePath(ref domain.EntityRef) (endpoint, path string, err error) {
	id := url.PathEscape(ref.ID)
	switch ref.Kind {
	case domain.KindMenuItem:
		return "menu_item_price", "/v1/menu-items/" + id + "/price", nil
	case domain.KindRoomRate:
		return "room_rate_price", "/v1/hotels/" + id + "/room-price", nil
	}
	return "", "", domain.InvalidArgument(fmt.Sprintf("unknown entity kind %q", ref.Kind))
}

// UpdatePrice applies one price through PUT and decodes the change summary.
// It satisfies domain.PriceUpdater, like the in-process PricingService.
func (c *Client) UpdatePrice(ctx context.Context, ref domain.EntityRef, price float64) (domain.PriceChange, error) {
	endpoint, path, err := pricePath(ref)
	if err != nil {
		return domain.PriceChange{}, err
	}
	body, err := json.Marshal(map[string]float64{"price": price})
	if err != nil {
		return domain.PriceChange{}, err
	}
	var out result
	if err := c.do(ctx, http.MethodPut, endpoint, c.base+path, body, &out); err != nil {
		return domain.PriceChange{}, err
	}
	return domain.PriceChange{
		Ref:          ref,
		OldPrice:     decimal.NewFromFloat(out.OldPrice),
		NewPrice:     decimal.NewFromFloat(out.NewPrice),
		UpdatedCount: out.UpdatedCount,
	}, nil
}

// do sends one request with client-side rate limiting and retries,
// decoding a 2xx body into out.
func (c *Client) do(ctx context.Context, method, endpoint, u string, body []byte, out any) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		// every attempt, retries included, spends a limiter token
		if err := c.rl.Wait(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "hotel-repricer/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("pricing_api", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("pricing_api", endpoint, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err

		case retryable(resp.StatusCode):
			wait := retryAfter(resp)
			lastErr = readProblem(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			if wait > maxRetryWait {
				wait = maxRetryWait
			}
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			return readProblem(resp)
		}
	}
	return lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// readProblem decodes a problem+json body and closes it.
func readProblem(resp *http.Response) error {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	e := &APIError{}
	if err := json.Unmarshal(b, e); err != nil || e.Detail == "" && e.Kind == "" {
		e.Detail = strings.TrimSpace(string(b))
	}
	e.Status = resp.StatusCode
	return e
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
