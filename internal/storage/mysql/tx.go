package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"hotel_pricing/internal/domain"
)

// Tx wraps one InnoDB transaction. Get locks the entity row until the
// transaction ends, so concurrent propagation runs on one entity queue up.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Get(ctx context.Context, ref domain.EntityRef) (domain.PricedEntity, error) {
	return getEntity(ctx, t.tx, ref, true)
}

func (t *Tx) SetPrice(ctx context.Context, ref domain.EntityRef, price decimal.Decimal) error {
	ks, err := sqlFor(ref.Kind)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, ks.setPrice, price, ref.ID); err != nil {
		return mapErr("set price "+ref.String(), err)
	}
	return nil
}

func (t *Tx) FindAllReferencing(ctx context.Context, ref domain.EntityRef) ([]domain.DerivedRecord, error) {
	return listDependents(ctx, t.tx, ref)
}

// SetDerivedTotal does not check rows affected: MySQL reports zero for an
// UPDATE that leaves the value unchanged, which is the idempotent case.
func (t *Tx) SetDerivedTotal(ctx context.Context, rec domain.DerivedRecord, total decimal.Decimal) error {
	q, ok := setDerivedSQL[rec.Kind]
	if !ok {
		return domain.InvalidArgument("unknown record kind " + string(rec.Kind))
	}
	if _, err := t.tx.ExecContext(ctx, q, total, rec.ID); err != nil {
		return mapErr("set total "+rec.ID, err)
	}
	return nil
}

func (t *Tx) GetRoom(ctx context.Context, hotelID, roomNumber string) (domain.Room, domain.RoomType, error) {
	var r domain.Room
	var rt domain.RoomType
	var status string
	err := t.tx.QueryRowContext(ctx, getRoomSQL, hotelID, roomNumber).Scan(
		&r.HotelID, &r.RoomNumber, &r.RoomTypeID, &status,
		&rt.ID, &rt.Name, &rt.MaxCapacity, &rt.PriceMultiplier,
	)
	if err != nil {
		return domain.Room{}, domain.RoomType{}, mapErr("room "+roomNumber, err)
	}
	r.Status = domain.RoomStatus(status)
	return r, rt, nil
}

func (t *Tx) SetRoomStatus(ctx context.Context, hotelID, roomNumber string, status domain.RoomStatus) error {
	res, err := t.tx.ExecContext(ctx, setRoomStatusSQL, string(status), hotelID, roomNumber)
	if err != nil {
		return mapErr("room status "+roomNumber, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// zero rows is either a missing room or an unchanged status
		if _, _, err := t.GetRoom(ctx, hotelID, roomNumber); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) InsertBooking(ctx context.Context, b domain.StayBooking) error {
	_, err := t.tx.ExecContext(ctx, insertBookingSQL,
		b.ID, b.HotelID, b.RoomNumber, b.CheckIn, b.CheckOut, b.Nights, b.GrandTotal, b.BookedAt)
	return mapErr("insert booking", err)
}

func (t *Tx) GetBooking(ctx context.Context, id string) (domain.StayBooking, error) {
	return getBooking(ctx, t.tx, id)
}

func (t *Tx) InsertOrder(ctx context.Context, o domain.FoodOrder) error {
	if _, err := t.tx.ExecContext(ctx, insertOrderSQL, o.ID, o.BookingID, string(o.Status), o.OrderedAt); err != nil {
		if err = mapErr("insert order", err); errors.Is(err, domain.ErrConflict) {
			return domain.Conflict("order already exists for this booking")
		}
		return err
	}
	return mapErr("insert order lines", insertLines(ctx, t.tx, o.Lines))
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return domain.Unavailable("commit", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return domain.Unavailable("rollback", err)
	}
	return nil
}
