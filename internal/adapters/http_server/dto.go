package httpserver

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hotel_pricing/internal/domain"
)

const dateLayout = "2006-01-02"

// ---- requests ----

type createMenuItemReq struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Category string   `json:"category"`
	Type     string   `json:"type"`
}

type createHotelReq struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Location          string   `json:"location"`
	BasePricePerNight *float64 `json:"basePricePerNight"`
}

// priceReq keeps the raw values so a string or null price is rejected
// instead of silently decoding to zero.
type priceReq struct {
	Price             json.RawMessage `json:"price"`
	BasePricePerNight json.RawMessage `json:"basePricePerNight"`
}

func (p priceReq) value() (float64, error) {
	raw := p.Price
	if len(raw) == 0 {
		raw = p.BasePricePerNight
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] == '"' {
		return 0, domain.InvalidArgument("price must be a number")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, domain.InvalidArgument("price must be a number")
	}
	return f, nil
}

type createRoomTypeReq struct {
	Name            string   `json:"name"`
	MaxCapacity     int      `json:"maxCapacity"`
	PriceMultiplier *float64 `json:"priceMultiplier"`
}

type createRoomReq struct {
	RoomNumber string `json:"roomNumber"`
	RoomTypeID int64  `json:"roomTypeId"`
	Status     string `json:"status"`
}

type bookingReq struct {
	HotelID    string `json:"hotelId"`
	RoomNumber string `json:"roomNumber"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
}

func (b bookingReq) toDomain() (domain.BookingRequest, error) {
	in, err := parseDate("checkIn", b.CheckIn)
	if err != nil {
		return domain.BookingRequest{}, err
	}
	out, err := parseDate("checkOut", b.CheckOut)
	if err != nil {
		return domain.BookingRequest{}, err
	}
	return domain.BookingRequest{HotelID: b.HotelID, RoomNumber: b.RoomNumber, CheckIn: in, CheckOut: out}, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, domain.InvalidArgument(field + " must be a date (YYYY-MM-DD)")
}

type orderReq struct {
	BookingID string `json:"bookingId"`
	Items     []struct {
		MenuItemID string `json:"menuItemId"`
		Quantity   int    `json:"quantity"`
	} `json:"items"`
}

func (o orderReq) toDomain() domain.OrderRequest {
	out := domain.OrderRequest{BookingID: o.BookingID}
	for _, it := range o.Items {
		out.Items = append(out.Items, domain.OrderItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	return out
}

func priceDecimal(p *float64, field string) (decimal.Decimal, error) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return decimal.Zero, domain.InvalidArgument(field + " must be a number")
	}
	return decimal.NewFromFloat(*p), nil
}

// ---- responses ----

func money(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

type entityView struct {
	Kind              string   `json:"kind"`
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Price             float64  `json:"price"`
	Category          string   `json:"category,omitempty"`
	Type              string   `json:"type,omitempty"`
	Location          string   `json:"location,omitempty"`
	BasePricePerNight *float64 `json:"basePricePerNight,omitempty"`
}

func toEntityView(e domain.PricedEntity) entityView {
	v := entityView{Kind: string(e.Kind), ID: e.ID, Name: e.Name, Price: money(e.UnitPrice)}
	switch e.Kind {
	case domain.KindMenuItem:
		v.Category, v.Type = e.Category, e.DietType
	case domain.KindRoomRate:
		p := v.Price
		v.Location, v.BasePricePerNight = e.Category, &p
	}
	return v
}

type priceChangeView struct {
	Kind         string  `json:"kind"`
	ID           string  `json:"id"`
	OldPrice     float64 `json:"oldPrice"`
	NewPrice     float64 `json:"newPrice"`
	UpdatedCount int     `json:"updatedCount"`
}

func toPriceChangeView(c domain.PriceChange) priceChangeView {
	return priceChangeView{
		Kind:         string(c.Ref.Kind),
		ID:           c.Ref.ID,
		OldPrice:     money(c.OldPrice),
		NewPrice:     money(c.NewPrice),
		UpdatedCount: c.UpdatedCount,
	}
}

type dependentView struct {
	Kind       string  `json:"kind"`
	ID         string  `json:"id"`
	EntityID   string  `json:"entityId"`
	Quantity   int     `json:"quantity"`
	Multiplier float64 `json:"multiplier"`
	Total      float64 `json:"total"`
}

type dependentsView struct {
	Kind  string          `json:"kind"`
	ID    string          `json:"id"`
	Items []dependentView `json:"items"`
}

func toDependentsView(ref domain.EntityRef, recs []domain.DerivedRecord) dependentsView {
	out := dependentsView{Kind: string(ref.Kind), ID: ref.ID, Items: make([]dependentView, 0, len(recs))}
	for _, r := range recs {
		out.Items = append(out.Items, dependentView{
			Kind:       string(r.Kind),
			ID:         r.ID,
			EntityID:   r.EntityID,
			Quantity:   r.Quantity,
			Multiplier: r.Multiplier.InexactFloat64(),
			Total:      money(r.DerivedTotal),
		})
	}
	return out
}

type roomTypeView struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	MaxCapacity     int     `json:"maxCapacity"`
	PriceMultiplier float64 `json:"priceMultiplier"`
}

type roomView struct {
	HotelID    string `json:"hotelId"`
	RoomNumber string `json:"roomNumber"`
	RoomTypeID int64  `json:"roomTypeId"`
	Status     string `json:"status"`
}

type bookingView struct {
	ID          string    `json:"id"`
	HotelID     string    `json:"hotelId"`
	HotelName   string    `json:"hotelName,omitempty"`
	RoomNumber  string    `json:"roomNumber"`
	RoomType    string    `json:"roomType,omitempty"`
	CheckIn     string    `json:"checkIn"`
	CheckOut    string    `json:"checkOut"`
	TotalNights int       `json:"totalNights"`
	GrandTotal  float64   `json:"grandTotal"`
	BookedAt    time.Time `json:"bookedAt"`
}

func toBookingView(b domain.StayBooking) bookingView {
	return bookingView{
		ID:          b.ID,
		HotelID:     b.HotelID,
		HotelName:   b.HotelName,
		RoomNumber:  b.RoomNumber,
		RoomType:    b.RoomTypeName,
		CheckIn:     b.CheckIn.Format(dateLayout),
		CheckOut:    b.CheckOut.Format(dateLayout),
		TotalNights: b.Nights,
		GrandTotal:  money(b.GrandTotal),
		BookedAt:    b.BookedAt,
	}
}

type orderLineView struct {
	ID         string  `json:"id"`
	MenuItemID string  `json:"menuItemId"`
	Quantity   int     `json:"quantity"`
	Subtotal   float64 `json:"subtotal"`
}

type orderView struct {
	ID        string          `json:"id"`
	BookingID string          `json:"bookingId"`
	Status    string          `json:"status"`
	OrderedAt time.Time       `json:"orderedAt"`
	Items     []orderLineView `json:"items"`
	Total     float64         `json:"total"`
}

func toOrderView(o domain.FoodOrder) orderView {
	v := orderView{
		ID:        o.ID,
		BookingID: o.BookingID,
		Status:    string(o.Status),
		OrderedAt: o.OrderedAt,
		Items:     make([]orderLineView, 0, len(o.Lines)),
		Total:     money(o.Total()),
	}
	for _, l := range o.Lines {
		v.Items = append(v.Items, orderLineView{ID: l.ID, MenuItemID: l.MenuItemID, Quantity: l.Quantity, Subtotal: money(l.Subtotal)})
	}
	return v
}
