//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel_pricing/internal/app"
	"hotel_pricing/internal/domain"
	mysqlrepo "hotel_pricing/internal/storage/mysql"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	ents, err := os.ReadDir(dir)
	require.NoError(t, err, "read migrations dir %s", dir)
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	require.NotEmpty(t, files, "no .sql files in %s", dir)
	sort.Strings(files)

	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = db.Exec(string(b))
		require.NoError(t, err, "exec %s", f)
	}
}

// startMySQL runs an isolated MySQL container and returns a migrated handle.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=hotel",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "run mysql")
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/hotel?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	pool.MaxWait = 2 * time.Minute
	require.NoError(t, pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}), "connect mysql")
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

func TestRepo_MySQL_PricePropagation(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	cmds := app.NewCommandService(repo, nil)
	pricing := app.NewPricingService(repo, nil, app.BestEffort)

	_, err := cmds.CreateEntity(ctx, domain.PricedEntity{Kind: domain.KindMenuItem, ID: "idli", Name: "Idli", UnitPrice: dec("100"), Category: "Breakfast", DietType: "Veg"})
	require.NoError(t, err)
	_, err = cmds.CreateEntity(ctx, domain.PricedEntity{Kind: domain.KindRoomRate, ID: "H", Name: "Hotel H", UnitPrice: dec("10000"), Category: "Goa"})
	require.NoError(t, err)
	suite, err := cmds.CreateRoomType(ctx, domain.RoomType{Name: "Suite", MaxCapacity: 2, PriceMultiplier: dec("1.5")})
	require.NoError(t, err)
	require.NotZero(t, suite.ID)
	for _, n := range []string{"101", "102"} {
		_, err = cmds.CreateRoom(ctx, domain.Room{HotelID: "H", RoomNumber: n, RoomTypeID: suite.ID})
		require.NoError(t, err)
	}

	b1, err := cmds.PlaceBooking(ctx, domain.BookingRequest{HotelID: "H", RoomNumber: "101", CheckIn: day(1), CheckOut: day(4)})
	require.NoError(t, err)
	assert.Equal(t, "45000.00", b1.GrandTotal.StringFixed(2))
	b2, err := cmds.PlaceBooking(ctx, domain.BookingRequest{HotelID: "H", RoomNumber: "102", CheckIn: day(1), CheckOut: day(2)})
	require.NoError(t, err)

	_, err = cmds.PlaceBooking(ctx, domain.BookingRequest{HotelID: "H", RoomNumber: "101", CheckIn: day(5), CheckOut: day(6)})
	assert.ErrorIs(t, err, domain.ErrConflict, "occupied room must be rejected")

	o1, err := cmds.PlaceOrder(ctx, domain.OrderRequest{BookingID: b1.ID, Items: []domain.OrderItem{{MenuItemID: "idli", Quantity: 2}}})
	require.NoError(t, err)
	_, err = cmds.PlaceOrder(ctx, domain.OrderRequest{BookingID: b2.ID, Items: []domain.OrderItem{{MenuItemID: "idli", Quantity: 5}}})
	require.NoError(t, err)
	_, err = cmds.PlaceOrder(ctx, domain.OrderRequest{BookingID: b1.ID, Items: []domain.OrderItem{{MenuItemID: "idli", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrConflict, "second order on a booking must be rejected")

	// menu item: 100 -> 120
	change, err := pricing.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindMenuItem, ID: "idli"}, 120)
	require.NoError(t, err)
	assert.Equal(t, 2, change.UpdatedCount)
	assert.True(t, change.OldPrice.Equal(dec("100")))

	deps, err := repo.ListDependents(ctx, domain.EntityRef{Kind: domain.KindMenuItem, ID: "idli"})
	require.NoError(t, err)
	var totals []string
	for _, d := range deps {
		totals = append(totals, d.DerivedTotal.StringFixed(2))
	}
	sort.Strings(totals)
	assert.Equal(t, []string{"240.00", "600.00"}, totals)

	got, err := repo.GetOrder(ctx, o1.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "240.00", got.Total().StringFixed(2))

	// room rate: 10000 -> 12000 at x1.5 for 3 nights
	change, err = pricing.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: "H"}, 12000)
	require.NoError(t, err)
	assert.Equal(t, 2, change.UpdatedCount)

	stay, err := repo.GetBooking(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, "54000.00", stay.GrandTotal.StringFixed(2))
	assert.Equal(t, "Hotel H", stay.HotelName)
	assert.Equal(t, "Suite", stay.RoomTypeName)
	assert.Equal(t, 3, stay.Nights)

	// repeating the same price rewrites nothing new
	change, err = pricing.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: "H"}, 12000)
	require.NoError(t, err)
	assert.Equal(t, 2, change.UpdatedCount)
	stay, err = repo.GetBooking(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, "54000.00", stay.GrandTotal.StringFixed(2))
}

func TestRepo_MySQL_NotFoundAndConflict(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	_, err := repo.GetEntity(ctx, domain.EntityRef{Kind: domain.KindMenuItem, ID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	e := domain.PricedEntity{Kind: domain.KindMenuItem, ID: "dosa", Name: "Dosa", UnitPrice: dec("80"), Category: "Breakfast", DietType: "Veg"}
	require.NoError(t, repo.CreateEntity(ctx, e))
	assert.ErrorIs(t, repo.CreateEntity(ctx, e), domain.ErrConflict)

	err = repo.CreateRoom(ctx, domain.Room{HotelID: "nowhere", RoomNumber: "1", RoomTypeID: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pricing := app.NewPricingService(repo, nil, app.Atomic)
	_, err = pricing.UpdatePrice(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: "ghost"}, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// A second transaction reading the entity FOR UPDATE waits until the first commits.
func TestRepo_MySQL_EntityRowLockSerialisesWriters(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	ref := domain.EntityRef{Kind: domain.KindMenuItem, ID: "vada"}
	require.NoError(t, repo.CreateEntity(ctx, domain.PricedEntity{Kind: ref.Kind, ID: ref.ID, Name: "Vada", UnitPrice: dec("50"), Category: "Breakfast", DietType: "Veg"}))

	first, err := repo.Begin(ctx)
	require.NoError(t, err)
	_, err = first.Get(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, first.SetPrice(ctx, ref, dec("60")))

	seen := make(chan decimal.Decimal, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, err := repo.Begin(ctx)
		if err != nil {
			return
		}
		defer func() { _ = second.Rollback() }()
		e, err := second.Get(ctx, ref)
		if err != nil {
			return
		}
		seen <- e.UnitPrice
	}()

	select {
	case <-seen:
		t.Fatal("second transaction read the row while it was locked")
	case <-time.After(300 * time.Millisecond):
	}
	require.NoError(t, first.Commit())
	wg.Wait()

	select {
	case p := <-seen:
		assert.Equal(t, "60", p.String())
	default:
		t.Fatal("second transaction never completed")
	}
}

func TestRepo_MySQL_RollbackDiscardsWrites(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	ref := domain.EntityRef{Kind: domain.KindRoomRate, ID: "R"}
	require.NoError(t, repo.CreateEntity(ctx, domain.PricedEntity{Kind: ref.Kind, ID: ref.ID, Name: "Resort", UnitPrice: dec("500"), Category: "Ooty"}))

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Get(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, tx.SetPrice(ctx, ref, dec("900")))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "second rollback is a no-op")

	e, err := repo.GetEntity(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "500", e.UnitPrice.String())

	var de *domain.Error
	_, err = repo.GetBooking(ctx, "missing")
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.KindNotFound, de.Kind)
}
