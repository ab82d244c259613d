package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind tags the two derived-record variants.
type RecordKind string

const (
	RecordOrderLine   RecordKind = "order_line"
	RecordStayBooking RecordKind = "stay_booking"
)

// DependentKind is the record variant priced from entities of kind k.
func DependentKind(k EntityKind) RecordKind {
	if k == KindRoomRate {
		return RecordStayBooking
	}
	return RecordOrderLine
}

// DerivedRecord caches a total computed from a priced entity.
// Quantity is frozen at creation (item count for order lines, nights for stays).
// Multiplier is 1 for order lines and the room type's multiplier for stays.
type DerivedRecord struct {
	Kind         RecordKind
	ID           string
	EntityID     string
	Quantity     int
	Multiplier   decimal.Decimal
	DerivedTotal decimal.Decimal
}

// Recompute returns the total this record should carry at unitPrice.
func (r DerivedRecord) Recompute(unitPrice decimal.Decimal) decimal.Decimal {
	m := r.Multiplier
	if m.IsZero() {
		m = decimal.NewFromInt(1)
	}
	return LineTotal(unitPrice, m, r.Quantity)
}

// MaxAmount is the largest price or total the catalog and record columns hold.
var MaxAmount = decimal.RequireFromString("99999999.99")

// LineTotal is price × multiplier × quantity rounded to cents.
func LineTotal(price, multiplier decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(multiplier).Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// PriceChange summarises one propagation run.
type PriceChange struct {
	Ref          EntityRef
	OldPrice     decimal.Decimal
	NewPrice     decimal.Decimal
	UpdatedCount int
}

// StayBooking is a room reservation priced from a hotel's room rate.
type StayBooking struct {
	ID           string
	HotelID      string
	RoomNumber   string
	CheckIn      time.Time
	CheckOut     time.Time
	Nights       int
	GrandTotal   decimal.Decimal
	BookedAt     time.Time
	HotelName    string
	RoomTypeName string
}

type OrderStatus string

// OrderPending is the status every new order starts in.
const OrderPending OrderStatus = "Pending"

// FoodOrder groups order lines placed against one booking.
type FoodOrder struct {
	ID        string
	BookingID string
	Status    OrderStatus
	OrderedAt time.Time
	Lines     []OrderLine
}

func (o FoodOrder) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.Subtotal)
	}
	return sum
}

type OrderLine struct {
	ID         string
	OrderID    string
	MenuItemID string
	Quantity   int
	Subtotal   decimal.Decimal
}

// Placement requests.

type BookingRequest struct {
	HotelID    string
	RoomNumber string
	CheckIn    time.Time
	CheckOut   time.Time
}

type OrderItem struct {
	MenuItemID string
	Quantity   int
}

type OrderRequest struct {
	BookingID string
	Items     []OrderItem
}
