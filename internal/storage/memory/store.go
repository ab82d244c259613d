// Package memory is a process-local domain.Store. Each priced entity has a
// weighted semaphore of size one that a Tx holds from its first Get until
// Commit or Rollback. Tx writes are staged and become visible to store reads
// only on Commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"hotel_pricing/internal/domain"
)

type roomKey struct{ hotel, number string }

type Store struct {
	mu        sync.RWMutex
	entities  map[domain.EntityRef]domain.PricedEntity
	roomTypes map[int64]domain.RoomType
	nextRT    int64
	rooms     map[roomKey]domain.Room
	bookings  map[string]domain.StayBooking
	orders    map[string]domain.FoodOrder // Lines kept in lines
	byBooking map[string]string           // booking id -> order id
	lines     map[string]domain.OrderLine

	locksMu sync.Mutex
	locks   map[domain.EntityRef]*semaphore.Weighted
}

func New() *Store {
	return &Store{
		entities:  make(map[domain.EntityRef]domain.PricedEntity),
		roomTypes: make(map[int64]domain.RoomType),
		rooms:     make(map[roomKey]domain.Room),
		bookings:  make(map[string]domain.StayBooking),
		orders:    make(map[string]domain.FoodOrder),
		byBooking: make(map[string]string),
		lines:     make(map[string]domain.OrderLine),
		locks:     make(map[domain.EntityRef]*semaphore.Weighted),
	}
}

func (s *Store) lockFor(ref domain.EntityRef) *semaphore.Weighted {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[ref]
	if !ok {
		l = semaphore.NewWeighted(1)
		s.locks[ref] = l
	}
	return l
}

func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("begin", err)
	}
	return newTx(s), nil
}

// ---- catalog entry creation ----

func (s *Store) CreateEntity(ctx context.Context, e domain.PricedEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.Ref()]; ok {
		return domain.Conflict(e.Ref().String() + " already exists")
	}
	s.entities[e.Ref()] = e
	return nil
}

func (s *Store) CreateRoomType(ctx context.Context, rt domain.RoomType) (domain.RoomType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roomTypes {
		if existing.Name == rt.Name {
			return domain.RoomType{}, domain.Conflict("room type " + rt.Name + " already exists")
		}
	}
	s.nextRT++
	rt.ID = s.nextRT
	s.roomTypes[rt.ID] = rt
	return rt, nil
}

func (s *Store) CreateRoom(ctx context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[domain.EntityRef{Kind: domain.KindRoomRate, ID: r.HotelID}]; !ok {
		return domain.NotFound("hotel not found")
	}
	if _, ok := s.roomTypes[r.RoomTypeID]; !ok {
		return domain.NotFound("room type not found")
	}
	k := roomKey{r.HotelID, r.RoomNumber}
	if _, ok := s.rooms[k]; ok {
		return domain.Conflict("room " + r.RoomNumber + " already exists")
	}
	if r.Status == "" {
		r.Status = domain.RoomVacant
	}
	s.rooms[k] = r
	return nil
}

// ---- read paths ----

func (s *Store) GetEntity(ctx context.Context, ref domain.EntityRef) (domain.PricedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[ref]
	if !ok {
		return domain.PricedEntity{}, domain.NotFound(ref.String() + " not found")
	}
	return e, nil
}

func (s *Store) ListDependents(ctx context.Context, ref domain.EntityRef) ([]domain.DerivedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dependentsLocked(ref), nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.StayBooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingLocked(id)
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.FoodOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.FoodOrder{}, domain.NotFound("order not found")
	}
	o.Lines = nil
	for _, l := range s.lines {
		if l.OrderID == id {
			o.Lines = append(o.Lines, l)
		}
	}
	sort.Slice(o.Lines, func(i, j int) bool { return o.Lines[i].MenuItemID < o.Lines[j].MenuItemID })
	return o, nil
}

func (s *Store) bookingLocked(id string) (domain.StayBooking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return domain.StayBooking{}, domain.NotFound("booking not found")
	}
	return s.decorateLocked(b), nil
}

// decorateLocked fills the display names a booking row does not store.
func (s *Store) decorateLocked(b domain.StayBooking) domain.StayBooking {
	if h, ok := s.entities[domain.EntityRef{Kind: domain.KindRoomRate, ID: b.HotelID}]; ok {
		b.HotelName = h.Name
	}
	if r, ok := s.rooms[roomKey{b.HotelID, b.RoomNumber}]; ok {
		b.RoomTypeName = s.roomTypes[r.RoomTypeID].Name
	}
	return b
}

func (s *Store) dependentsLocked(ref domain.EntityRef) []domain.DerivedRecord {
	var out []domain.DerivedRecord
	switch ref.Kind {
	case domain.KindMenuItem:
		for _, l := range s.lines {
			if l.MenuItemID != ref.ID {
				continue
			}
			out = append(out, domain.DerivedRecord{
				Kind:         domain.RecordOrderLine,
				ID:           l.ID,
				EntityID:     l.MenuItemID,
				Quantity:     l.Quantity,
				Multiplier:   decimal.NewFromInt(1),
				DerivedTotal: l.Subtotal,
			})
		}
	case domain.KindRoomRate:
		for _, b := range s.bookings {
			if b.HotelID != ref.ID {
				continue
			}
			mult := decimal.NewFromInt(1)
			if r, ok := s.rooms[roomKey{b.HotelID, b.RoomNumber}]; ok {
				if rt, ok := s.roomTypes[r.RoomTypeID]; ok {
					mult = rt.PriceMultiplier
				}
			}
			out = append(out, domain.DerivedRecord{
				Kind:         domain.RecordStayBooking,
				ID:           b.ID,
				EntityID:     b.HotelID,
				Quantity:     b.Nights,
				Multiplier:   mult,
				DerivedTotal: b.GrandTotal,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
