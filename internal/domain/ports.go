package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// CatalogStore holds authoritative prices. Inside a Tx, Get also takes
// the entity's single-writer lock until Commit or Rollback.
type CatalogStore interface {
	Get(ctx context.Context, ref EntityRef) (PricedEntity, error)
	SetPrice(ctx context.Context, ref EntityRef, price decimal.Decimal) error
}

// DependentIndex enumerates and rewrites records derived from an entity's price.
type DependentIndex interface {
	FindAllReferencing(ctx context.Context, ref EntityRef) ([]DerivedRecord, error)
	SetDerivedTotal(ctx context.Context, rec DerivedRecord, total decimal.Decimal) error
}

// Tx is one read-modify-write scope. Exactly one of Commit or Rollback
// must be called; Rollback after Commit is a no-op.
type Tx interface {
	CatalogStore
	DependentIndex

	// Placement writes.
	GetRoom(ctx context.Context, hotelID, roomNumber string) (Room, RoomType, error)
	SetRoomStatus(ctx context.Context, hotelID, roomNumber string, status RoomStatus) error
	InsertBooking(ctx context.Context, b StayBooking) error
	GetBooking(ctx context.Context, id string) (StayBooking, error)
	InsertOrder(ctx context.Context, o FoodOrder) error

	Commit() error
	Rollback() error
}

type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// Catalog entry creation
	CreateEntity(ctx context.Context, e PricedEntity) error
	CreateRoomType(ctx context.Context, rt RoomType) (RoomType, error)
	CreateRoom(ctx context.Context, r Room) error

	// Read paths
	GetEntity(ctx context.Context, ref EntityRef) (PricedEntity, error)
	ListDependents(ctx context.Context, ref EntityRef) ([]DerivedRecord, error)
	GetBooking(ctx context.Context, id string) (StayBooking, error)
	GetOrder(ctx context.Context, id string) (FoodOrder, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// PriceUpdater runs one propagation. Implemented in-process by the pricing
// service and remotely by the pricing API client.
type PriceUpdater interface {
	UpdatePrice(ctx context.Context, ref EntityRef, newPrice float64) (PriceChange, error)
}
