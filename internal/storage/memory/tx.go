package memory

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"hotel_pricing/internal/domain"
)

// tx stages every write and applies them all under the store lock on Commit.
// Reads through the tx see its own staged writes; store reads never do.
type tx struct {
	s    *Store
	held map[domain.EntityRef]*semaphore.Weighted
	done bool

	prices      map[domain.EntityRef]decimal.Decimal
	subtotals   map[string]decimal.Decimal // order line id
	grandTotals map[string]decimal.Decimal // booking id
	roomStatus  map[roomKey]domain.RoomStatus
	bookings    []domain.StayBooking
	orders      []domain.FoodOrder
}

func newTx(s *Store) *tx {
	return &tx{
		s:           s,
		held:        make(map[domain.EntityRef]*semaphore.Weighted),
		prices:      make(map[domain.EntityRef]decimal.Decimal),
		subtotals:   make(map[string]decimal.Decimal),
		grandTotals: make(map[string]decimal.Decimal),
		roomStatus:  make(map[roomKey]domain.RoomStatus),
	}
}

func (t *tx) acquire(ctx context.Context, ref domain.EntityRef) error {
	if _, ok := t.held[ref]; ok {
		return nil
	}
	l := t.s.lockFor(ref)
	if err := l.Acquire(ctx, 1); err != nil {
		return domain.Unavailable("lock "+ref.String(), err)
	}
	t.held[ref] = l
	return nil
}

func (t *tx) Get(ctx context.Context, ref domain.EntityRef) (domain.PricedEntity, error) {
	if err := t.acquire(ctx, ref); err != nil {
		return domain.PricedEntity{}, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.entityLocked(ref)
}

func (t *tx) entityLocked(ref domain.EntityRef) (domain.PricedEntity, error) {
	e, ok := t.s.entities[ref]
	if !ok {
		return domain.PricedEntity{}, domain.NotFound(ref.String() + " not found")
	}
	if p, ok := t.prices[ref]; ok {
		e.UnitPrice = p
	}
	return e, nil
}

func (t *tx) SetPrice(ctx context.Context, ref domain.EntityRef, price decimal.Decimal) error {
	t.s.mu.RLock()
	_, ok := t.s.entities[ref]
	t.s.mu.RUnlock()
	if !ok {
		return domain.NotFound(ref.String() + " not found")
	}
	t.prices[ref] = price
	return nil
}

func (t *tx) FindAllReferencing(ctx context.Context, ref domain.EntityRef) ([]domain.DerivedRecord, error) {
	t.s.mu.RLock()
	out := t.s.dependentsLocked(ref)
	t.s.mu.RUnlock()

	for i, rec := range out {
		switch rec.Kind {
		case domain.RecordOrderLine:
			if v, ok := t.subtotals[rec.ID]; ok {
				out[i].DerivedTotal = v
			}
		case domain.RecordStayBooking:
			if v, ok := t.grandTotals[rec.ID]; ok {
				out[i].DerivedTotal = v
			}
		}
	}
	return out, nil
}

func (t *tx) SetDerivedTotal(ctx context.Context, rec domain.DerivedRecord, total decimal.Decimal) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	switch rec.Kind {
	case domain.RecordOrderLine:
		if _, ok := t.s.lines[rec.ID]; !ok {
			return domain.NotFound("order line " + rec.ID + " not found")
		}
		t.subtotals[rec.ID] = total
	case domain.RecordStayBooking:
		if _, ok := t.s.bookings[rec.ID]; !ok {
			return domain.NotFound("booking " + rec.ID + " not found")
		}
		t.grandTotals[rec.ID] = total
	default:
		return domain.InvalidArgument("unknown record kind " + string(rec.Kind))
	}
	return nil
}

func (t *tx) GetRoom(ctx context.Context, hotelID, roomNumber string) (domain.Room, domain.RoomType, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	k := roomKey{hotelID, roomNumber}
	r, ok := t.s.rooms[k]
	if !ok {
		return domain.Room{}, domain.RoomType{}, domain.NotFound("room not found")
	}
	if st, ok := t.roomStatus[k]; ok {
		r.Status = st
	}
	return r, t.s.roomTypes[r.RoomTypeID], nil
}

func (t *tx) SetRoomStatus(ctx context.Context, hotelID, roomNumber string, status domain.RoomStatus) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	k := roomKey{hotelID, roomNumber}
	if _, ok := t.s.rooms[k]; !ok {
		return domain.NotFound("room not found")
	}
	t.roomStatus[k] = status
	return nil
}

func (t *tx) stagedBooking(id string) (domain.StayBooking, bool) {
	for _, b := range t.bookings {
		if b.ID == id {
			return b, true
		}
	}
	return domain.StayBooking{}, false
}

func (t *tx) InsertBooking(ctx context.Context, b domain.StayBooking) error {
	t.s.mu.RLock()
	_, exists := t.s.bookings[b.ID]
	t.s.mu.RUnlock()
	if _, staged := t.stagedBooking(b.ID); exists || staged {
		return domain.Conflict("booking " + b.ID + " already exists")
	}
	b.HotelName, b.RoomTypeName = "", ""
	t.bookings = append(t.bookings, b)
	return nil
}

func (t *tx) GetBooking(ctx context.Context, id string) (domain.StayBooking, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if b, ok := t.stagedBooking(id); ok {
		return t.s.decorateLocked(b), nil
	}
	b, err := t.s.bookingLocked(id)
	if err != nil {
		return b, err
	}
	if v, ok := t.grandTotals[id]; ok {
		b.GrandTotal = v
	}
	return b, nil
}

func (t *tx) InsertOrder(ctx context.Context, o domain.FoodOrder) error {
	t.s.mu.RLock()
	_, exists := t.s.byBooking[o.BookingID]
	t.s.mu.RUnlock()
	for _, staged := range t.orders {
		if staged.BookingID == o.BookingID {
			exists = true
		}
	}
	if exists {
		return domain.Conflict("order already exists for this booking")
	}
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	t.orders = append(t.orders, o)
	return nil
}

// Commit rechecks insert uniqueness under the store lock, then applies the
// staged writes in one step. A failed recheck applies nothing.
func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range t.bookings {
		if _, ok := s.bookings[b.ID]; ok {
			return domain.Conflict("booking " + b.ID + " already exists")
		}
	}
	for _, o := range t.orders {
		if _, ok := s.byBooking[o.BookingID]; ok {
			return domain.Conflict("order already exists for this booking")
		}
	}

	for ref, p := range t.prices {
		e := s.entities[ref]
		e.UnitPrice = p
		s.entities[ref] = e
	}
	for k, st := range t.roomStatus {
		r := s.rooms[k]
		r.Status = st
		s.rooms[k] = r
	}
	for _, b := range t.bookings {
		s.bookings[b.ID] = b
	}
	for _, o := range t.orders {
		lines := o.Lines
		o.Lines = nil
		s.orders[o.ID] = o
		s.byBooking[o.BookingID] = o.ID
		for _, l := range lines {
			s.lines[l.ID] = l
		}
	}
	for id, v := range t.subtotals {
		l := s.lines[id]
		l.Subtotal = v
		s.lines[id] = l
	}
	for id, v := range t.grandTotals {
		b := s.bookings[id]
		b.GrandTotal = v
		s.bookings[id] = b
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.release()
	return nil
}

func (t *tx) release() {
	for ref, l := range t.held {
		l.Release(1)
		delete(t.held, ref)
	}
	t.prices, t.subtotals, t.grandTotals, t.roomStatus = nil, nil, nil, nil
	t.bookings, t.orders = nil, nil
}
