package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hotel_pricing/internal/app"
	"hotel_pricing/internal/domain"
	"hotel_pricing/internal/storage/memory"
)

var (
	idli  = domain.EntityRef{Kind: domain.KindMenuItem, ID: "idli"}
	hotel = domain.EntityRef{Kind: domain.KindRoomRate, ID: "H"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	store  domain.Store
	cmds   *app.CommandService
	suite  domain.RoomType
	stay3  domain.StayBooking // 3 nights in a suite
	stay1  domain.StayBooking // 1 night in a suite
	order2 domain.FoodOrder   // 2 x idli
	order5 domain.FoodOrder   // 5 x idli
}

// seed builds the two reference scenarios on store: idli at 100 with orders of
// 2 and 5, and hotel H at 10000 with suite (x1.5) bookings of 3 and 1 nights.
func seed(t *testing.T, store domain.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: store, cmds: app.NewCommandService(store, nil)}

	_, err := f.cmds.CreateEntity(ctx, domain.PricedEntity{Kind: domain.KindMenuItem, ID: "idli", Name: "Idli", UnitPrice: dec("100"), Category: "Breakfast", DietType: "Veg"})
	require.NoError(t, err)
	_, err = f.cmds.CreateEntity(ctx, domain.PricedEntity{Kind: domain.KindRoomRate, ID: "H", Name: "Hotel H", UnitPrice: dec("10000"), Category: "Goa"})
	require.NoError(t, err)
	f.suite, err = f.cmds.CreateRoomType(ctx, domain.RoomType{Name: "Suite", MaxCapacity: 2, PriceMultiplier: dec("1.5")})
	require.NoError(t, err)
	for _, n := range []string{"101", "102"} {
		_, err = f.cmds.CreateRoom(ctx, domain.Room{HotelID: "H", RoomNumber: n, RoomTypeID: f.suite.ID})
		require.NoError(t, err)
	}

	f.stay3, err = f.cmds.PlaceBooking(ctx, domain.BookingRequest{HotelID: "H", RoomNumber: "101", CheckIn: day(1), CheckOut: day(4)})
	require.NoError(t, err)
	f.stay1, err = f.cmds.PlaceBooking(ctx, domain.BookingRequest{HotelID: "H", RoomNumber: "102", CheckIn: day(1), CheckOut: day(2)})
	require.NoError(t, err)
	f.order2, err = f.cmds.PlaceOrder(ctx, domain.OrderRequest{BookingID: f.stay3.ID, Items: []domain.OrderItem{{MenuItemID: "idli", Quantity: 2}}})
	require.NoError(t, err)
	f.order5, err = f.cmds.PlaceOrder(ctx, domain.OrderRequest{BookingID: f.stay1.ID, Items: []domain.OrderItem{{MenuItemID: "idli", Quantity: 5}}})
	require.NoError(t, err)
	return f
}

// totals returns dependent totals keyed by record id.
func totals(t *testing.T, store domain.Store, ref domain.EntityRef) map[string]string {
	t.Helper()
	deps, err := store.ListDependents(context.Background(), ref)
	require.NoError(t, err)
	out := make(map[string]string, len(deps))
	for _, d := range deps {
		out[d.ID] = d.DerivedTotal.StringFixed(2)
	}
	return out
}

func priceOf(t *testing.T, store domain.Store, ref domain.EntityRef) string {
	t.Helper()
	e, err := store.GetEntity(context.Background(), ref)
	require.NoError(t, err)
	return e.UnitPrice.StringFixed(2)
}

// ---- failing store: one dependent write is rejected ----

var errDiskFull = errors.New("disk full")

type failingStore struct {
	*memory.Store
	failOn string
}

func (s *failingStore) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failOn: s.failOn}, nil
}

type failingTx struct {
	domain.Tx
	failOn string
}

func (t *failingTx) SetDerivedTotal(ctx context.Context, rec domain.DerivedRecord, total decimal.Decimal) error {
	if rec.ID == t.failOn {
		return errDiskFull
	}
	return t.Tx.SetDerivedTotal(ctx, rec, total)
}

// ---- fake cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.PricedEntity:
		*d = v.(domain.PricedEntity)
	case *[]domain.DerivedRecord:
		*d = v.([]domain.DerivedRecord)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *fakeCache) deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dels...)
}
