package pricingapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	httpserver "hotel_pricing/internal/adapters/http_server"
	"hotel_pricing/internal/adapters/pricingapi"
	"hotel_pricing/internal/app"
	"hotel_pricing/internal/domain"
	"hotel_pricing/internal/storage/memory"
)

func TestClient_UpdatePrice_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/menu-items/idli/price" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(503)
		default:
			var body map[string]float64
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]any{"oldPrice": 100.0, "newPrice": body["price"], "updatedCount": 2})
		}
	}))
	defer ts.Close()

	cl, err := pricingapi.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := cl.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindMenuItem, ID: "idli"}, 120)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !got.NewPrice.Equal(decimal.NewFromInt(120)) || got.UpdatedCount != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 calls due to retries, got %d", hits)
	}
}

func TestClient_UpdatePrice_ProblemIsNotRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"type":"about:blank","title":"Not Found","status":404,"kind":"NotFound","detail":"room_rate:X not found"}`)
	}))
	defer ts.Close()

	cl, _ := pricingapi.New(ts.URL, "", 100)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := cl.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: "X"}, 10)
	var apiErr *pricingapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 || apiErr.Kind != "NotFound" {
		t.Fatalf("expected NotFound APIError, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected errors.Is NotFound")
	}
	if hits != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", hits)
	}
}

func TestClient_UpdatePrice_RetriesWaitForTheLimiter(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	// one request per second; the first retry is due after ~300ms of backoff,
	// so its limiter wait would overrun the deadline
	cl, _ := pricingapi.New(ts.URL, "", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()

	_, err := cl.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindMenuItem, ID: "idli"}, 10)
	var apiErr *pricingapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected the last 503, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected the limiter to hold back retries, got %d calls", n)
	}
}

func TestClient_UpdatePrice_UnknownKind(t *testing.T) {
	cl, _ := pricingapi.New("http://127.0.0.1:1", "", 100)
	_, err := cl.UpdatePrice(context.Background(), domain.EntityRef{Kind: "spa", ID: "x"}, 10)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestNew_RequiresBase(t *testing.T) {
	if _, err := pricingapi.New("  ", "", 1); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}

// Round trip against the real router backed by the memory store.
func TestClient_AgainstServer(t *testing.T) {
	store := memory.New()
	s := httpserver.New(5 * time.Second)
	s.MountHandlers(&httpserver.Handlers{
		Q: app.NewQueryService(store, nil, time.Minute),
		C: app.NewCommandService(store, nil),
		P: app.NewPricingService(store, nil, app.BestEffort),
	})
	ts := httptest.NewServer(s.Mux())
	defer ts.Close()

	ctx := context.Background()
	if err := store.CreateEntity(ctx, domain.PricedEntity{
		Kind: domain.KindRoomRate, ID: "H", Name: "Hotel H",
		UnitPrice: decimal.NewFromInt(10000), Category: "Goa",
	}); err != nil {
		t.Fatal(err)
	}

	cl, _ := pricingapi.New(ts.URL+"/", "", 100)
	got, err := cl.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: "H"}, 12000)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.OldPrice.IntPart() != 10000 || got.NewPrice.IntPart() != 12000 || got.UpdatedCount != 0 {
		t.Fatalf("unexpected result: %+v", got)
	}

	_, err = cl.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: "H"}, -1)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
