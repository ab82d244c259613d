package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotel_pricing/internal/domain"
)

// CommandService creates catalog entries and places bookings and orders.
// Placements lock the entities they price against, the same lock
// PricingService.UpdatePrice holds, so the two never interleave.
type CommandService struct {
	store domain.Store
	cache domain.Cache
	now   func() time.Time
}

func NewCommandService(s domain.Store, c domain.Cache) *CommandService {
	return &CommandService{store: s, cache: c, now: func() time.Time { return time.Now().UTC() }}
}

/********** catalog entry creation **********/

func (s *CommandService) CreateEntity(ctx context.Context, e domain.PricedEntity) (domain.PricedEntity, error) {
	e.UnitPrice = e.UnitPrice.Round(2)
	if err := e.Validate(); err != nil {
		return domain.PricedEntity{}, err
	}
	if err := s.store.CreateEntity(ctx, e); err != nil {
		return domain.PricedEntity{}, err
	}
	log.Info().Str("kind", string(e.Kind)).Str("entity_id", e.ID).Str("price", e.UnitPrice.StringFixed(2)).Msg("catalog entry created")
	return e, nil
}

func (s *CommandService) CreateRoomType(ctx context.Context, rt domain.RoomType) (domain.RoomType, error) {
	if rt.PriceMultiplier.IsZero() {
		rt.PriceMultiplier = decimal.NewFromInt(1)
	}
	if err := rt.Validate(); err != nil {
		return domain.RoomType{}, err
	}
	return s.store.CreateRoomType(ctx, rt)
}

func (s *CommandService) CreateRoom(ctx context.Context, r domain.Room) (domain.Room, error) {
	if strings.TrimSpace(r.RoomNumber) == "" {
		return domain.Room{}, domain.InvalidArgument("roomNumber is required")
	}
	if r.Status == "" {
		r.Status = domain.RoomVacant
	}
	if err := s.store.CreateRoom(ctx, r); err != nil {
		return domain.Room{}, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, dependentsKey(domain.EntityRef{Kind: domain.KindRoomRate, ID: r.HotelID}))
	}
	return r, nil
}

/********** placement **********/

// Nights counts started 24h periods between check-in and check-out.
func Nights(checkIn, checkOut time.Time) int {
	return int(math.Ceil(checkOut.Sub(checkIn).Hours() / 24))
}

func (s *CommandService) PlaceBooking(ctx context.Context, req domain.BookingRequest) (b domain.StayBooking, err error) {
	if req.HotelID == "" || req.RoomNumber == "" {
		return b, domain.InvalidArgument("hotelId and roomNumber are required")
	}
	if !req.CheckOut.After(req.CheckIn) {
		return b, domain.InvalidArgument("check-out date must be after check-in date")
	}
	nights := Nights(req.CheckIn, req.CheckOut)
	if nights < 1 {
		return b, domain.InvalidArgument("stay must be at least one night")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return b, domain.Unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	hotel, err := tx.Get(ctx, domain.EntityRef{Kind: domain.KindRoomRate, ID: req.HotelID})
	if err != nil {
		return b, err
	}
	room, rt, err := tx.GetRoom(ctx, req.HotelID, req.RoomNumber)
	if err != nil {
		return b, err
	}
	if room.Status != domain.RoomVacant {
		return b, domain.Conflict("room not available")
	}

	b = domain.StayBooking{
		ID:           uuid.NewString(),
		HotelID:      req.HotelID,
		RoomNumber:   req.RoomNumber,
		CheckIn:      req.CheckIn,
		CheckOut:     req.CheckOut,
		Nights:       nights,
		GrandTotal:   domain.LineTotal(hotel.UnitPrice, rt.PriceMultiplier, nights),
		BookedAt:     s.now(),
		HotelName:    hotel.Name,
		RoomTypeName: rt.Name,
	}
	if b.GrandTotal.GreaterThan(domain.MaxAmount) {
		err = domain.InvalidArgument("booking total " + b.GrandTotal.StringFixed(2) + " exceeds " + domain.MaxAmount.StringFixed(2))
		return domain.StayBooking{}, err
	}
	if err = tx.InsertBooking(ctx, b); err != nil {
		return domain.StayBooking{}, err
	}
	if err = tx.SetRoomStatus(ctx, req.HotelID, req.RoomNumber, domain.RoomOccupied); err != nil {
		return domain.StayBooking{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.StayBooking{}, domain.Unavailable("commit", err)
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, dependentsKey(hotel.Ref()))
	}
	log.Info().Str("booking_id", b.ID).Str("hotel_id", b.HotelID).Int("nights", nights).
		Str("grand_total", b.GrandTotal.StringFixed(2)).Msg("booking placed")
	return b, nil
}

func (s *CommandService) PlaceOrder(ctx context.Context, req domain.OrderRequest) (o domain.FoodOrder, err error) {
	if req.BookingID == "" {
		return o, domain.InvalidArgument("bookingId is required")
	}
	if len(req.Items) == 0 {
		return o, domain.InvalidArgument("at least one item is required")
	}
	// merge duplicate items so each menu item yields one line
	qty := make(map[string]int, len(req.Items))
	for _, it := range req.Items {
		if it.MenuItemID == "" {
			return o, domain.InvalidArgument("menuItemId is required")
		}
		if it.Quantity < 1 {
			return o, domain.InvalidArgument(fmt.Sprintf("quantity for %s must be >= 1", it.MenuItemID))
		}
		qty[it.MenuItemID] += it.Quantity
	}
	refs := make([]domain.EntityRef, 0, len(qty))
	for id := range qty {
		refs = append(refs, domain.EntityRef{Kind: domain.KindMenuItem, ID: id})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return o, domain.Unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.GetBooking(ctx, req.BookingID); err != nil {
		return o, err
	}

	o = domain.FoodOrder{
		ID:        uuid.NewString(),
		BookingID: req.BookingID,
		Status:    domain.OrderPending,
		OrderedAt: s.now(),
	}
	for _, ref := range refs {
		item, gerr := tx.Get(ctx, ref)
		if gerr != nil {
			err = gerr
			return domain.FoodOrder{}, err
		}
		o.Lines = append(o.Lines, domain.OrderLine{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			MenuItemID: ref.ID,
			Quantity:   qty[ref.ID],
			Subtotal:   domain.LineTotal(item.UnitPrice, decimal.NewFromInt(1), qty[ref.ID]),
		})
	}
	for _, l := range o.Lines {
		if l.Subtotal.GreaterThan(domain.MaxAmount) {
			err = domain.InvalidArgument("subtotal for " + l.MenuItemID + " exceeds " + domain.MaxAmount.StringFixed(2))
			return domain.FoodOrder{}, err
		}
	}
	if err = tx.InsertOrder(ctx, o); err != nil {
		return domain.FoodOrder{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.FoodOrder{}, domain.Unavailable("commit", err)
	}

	if s.cache != nil {
		for _, ref := range refs {
			_ = s.cache.Del(ctx, dependentsKey(ref))
		}
	}
	log.Info().Str("order_id", o.ID).Str("booking_id", o.BookingID).Int("lines", len(o.Lines)).
		Str("total", o.Total().StringFixed(2)).Msg("order placed")
	return o, nil
}
