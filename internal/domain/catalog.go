package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EntityKind names a priced catalog table.
type EntityKind string

const (
	KindMenuItem EntityKind = "menu_item"
	KindRoomRate EntityKind = "room_rate"
)

func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "menu_item", "menu-item", "menuitem", "food", "food_item":
		return KindMenuItem, nil
	case "room_rate", "room-rate", "roomrate", "hotel", "room":
		return KindRoomRate, nil
	}
	return "", InvalidArgument(fmt.Sprintf("unknown entity kind %q", s))
}

// EntityRef identifies one priced entity.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

func (r EntityRef) String() string { return string(r.Kind) + ":" + r.ID }

// Less orders refs so multi-entity lock acquisition is deterministic.
func (r EntityRef) Less(o EntityRef) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.ID < o.ID
}

// PricedEntity is a catalog row whose price can be changed by a manager.
// For KindMenuItem, Category is the meal (Breakfast, Lunch, ...) and DietType is set.
// For KindRoomRate, UnitPrice is the base price per night and Category is the hotel location.
type PricedEntity struct {
	Kind      EntityKind
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Category  string
	DietType  string
}

func (e PricedEntity) Ref() EntityRef { return EntityRef{Kind: e.Kind, ID: e.ID} }

var (
	MenuCategories = []string{"Breakfast", "Lunch", "Dinner", "Beverages"}
	DietTypes      = []string{"Veg", "Non-Veg", "General"}
)

// Validate checks the fixed field set for the entity's kind.
func (e PricedEntity) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return InvalidArgument("id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return InvalidArgument("name is required")
	}
	if e.UnitPrice.IsNegative() {
		return InvalidArgument("price must be >= 0")
	}
	if e.UnitPrice.GreaterThan(MaxAmount) {
		return InvalidArgument("price must be <= " + MaxAmount.StringFixed(2))
	}
	switch e.Kind {
	case KindMenuItem:
		if !oneOf(e.Category, MenuCategories) {
			return InvalidArgument("category must be one of " + strings.Join(MenuCategories, ", "))
		}
		if !oneOf(e.DietType, DietTypes) {
			return InvalidArgument("type must be one of " + strings.Join(DietTypes, ", "))
		}
	case KindRoomRate:
		if strings.TrimSpace(e.Category) == "" {
			return InvalidArgument("location is required")
		}
	default:
		return InvalidArgument(fmt.Sprintf("unknown entity kind %q", e.Kind))
	}
	return nil
}

// RoomType carries the multiplier applied on top of a hotel's nightly rate.
type RoomType struct {
	ID              int64
	Name            string
	MaxCapacity     int
	PriceMultiplier decimal.Decimal
}

var (
	minMultiplier = decimal.RequireFromString("0.01")
	maxMultiplier = decimal.RequireFromString("99.99")
)

func (rt RoomType) Validate() error {
	if strings.TrimSpace(rt.Name) == "" {
		return InvalidArgument("name is required")
	}
	if rt.MaxCapacity < 1 {
		return InvalidArgument("maxCapacity must be >= 1")
	}
	if rt.PriceMultiplier.LessThan(minMultiplier) {
		return InvalidArgument("priceMultiplier must be >= 0.01")
	}
	if rt.PriceMultiplier.GreaterThan(maxMultiplier) {
		return InvalidArgument("priceMultiplier must be <= 99.99")
	}
	return nil
}

type RoomStatus string

const (
	RoomVacant   RoomStatus = "Vacant"
	RoomOccupied RoomStatus = "Occupied"
	RoomCleaning RoomStatus = "Cleaning"
)

type Room struct {
	HotelID    string
	RoomNumber string
	RoomTypeID int64
	Status     RoomStatus
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
