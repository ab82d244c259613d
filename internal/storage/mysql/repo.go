// Package mysql is the authoritative domain.Store. Prices live in one column
// per entity; a transaction takes the entity row with SELECT ... FOR UPDATE,
// which serialises propagation runs and placements on the same entity.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"

	"hotel_pricing/internal/domain"
)

const (
	errDupEntry     = 1062
	errNoReferenced = 1452
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(dest ...any) error }

type kindSQL struct {
	get, setPrice, dependents string
}

var byKind = map[domain.EntityKind]kindSQL{
	domain.KindMenuItem: {get: getMenuItemSQL, setPrice: setMenuItemPriceSQL, dependents: orderLinesByMenuItemSQL},
	domain.KindRoomRate: {get: getHotelSQL, setPrice: setHotelPriceSQL, dependents: bookingsByHotelSQL},
}

var setDerivedSQL = map[domain.RecordKind]string{
	domain.RecordOrderLine:   setOrderLineSubtotalSQL,
	domain.RecordStayBooking: setBookingTotalSQL,
}

func sqlFor(k domain.EntityKind) (kindSQL, error) {
	q, ok := byKind[k]
	if !ok {
		return kindSQL{}, domain.InvalidArgument(fmt.Sprintf("unknown entity kind %q", k))
	}
	return q, nil
}

// mapErr translates driver errors into domain kinds.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(op + ": not found")
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return domain.Conflict(op + ": already exists")
		case errNoReferenced:
			return domain.NotFound(op + ": referenced row missing")
		}
	}
	return domain.Unavailable(op, err)
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Begin(ctx context.Context) (domain.Tx, error) {
	t, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Unavailable("begin", err)
	}
	return &Tx{tx: t}, nil
}

// ---- catalog entry creation ----

func (r *Repo) CreateEntity(ctx context.Context, e domain.PricedEntity) error {
	var err error
	switch e.Kind {
	case domain.KindMenuItem:
		_, err = r.db.ExecContext(ctx, insertMenuItemSQL, e.ID, e.Name, e.Category, e.DietType, e.UnitPrice)
	case domain.KindRoomRate:
		_, err = r.db.ExecContext(ctx, insertHotelSQL, e.ID, e.Name, e.Category, e.UnitPrice)
	default:
		return domain.InvalidArgument(fmt.Sprintf("unknown entity kind %q", e.Kind))
	}
	return mapErr("create "+e.Ref().String(), err)
}

func (r *Repo) CreateRoomType(ctx context.Context, rt domain.RoomType) (domain.RoomType, error) {
	res, err := r.db.ExecContext(ctx, insertRoomTypeSQL, rt.Name, rt.MaxCapacity, rt.PriceMultiplier)
	if err != nil {
		return domain.RoomType{}, mapErr("create room type "+rt.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.RoomType{}, domain.Unavailable("room type id", err)
	}
	rt.ID = id
	return rt, nil
}

func (r *Repo) CreateRoom(ctx context.Context, room domain.Room) error {
	if room.Status == "" {
		room.Status = domain.RoomVacant
	}
	_, err := r.db.ExecContext(ctx, insertRoomSQL, room.HotelID, room.RoomNumber, room.RoomTypeID, string(room.Status))
	return mapErr("create room "+room.RoomNumber, err)
}

// ---- read paths ----

func (r *Repo) GetEntity(ctx context.Context, ref domain.EntityRef) (domain.PricedEntity, error) {
	return getEntity(ctx, r.db, ref, false)
}

func (r *Repo) ListDependents(ctx context.Context, ref domain.EntityRef) ([]domain.DerivedRecord, error) {
	return listDependents(ctx, r.db, ref)
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.StayBooking, error) {
	return getBooking(ctx, r.db, id)
}

func (r *Repo) GetOrder(ctx context.Context, id string) (domain.FoodOrder, error) {
	var o domain.FoodOrder
	var status string
	if err := r.db.QueryRowContext(ctx, getOrderSQL, id).Scan(&o.ID, &o.BookingID, &status, &o.OrderedAt); err != nil {
		return domain.FoodOrder{}, mapErr("order "+id, err)
	}
	o.Status = domain.OrderStatus(status)

	rows, err := r.db.QueryContext(ctx, getOrderLinesSQL, id)
	if err != nil {
		return domain.FoodOrder{}, mapErr("order lines "+id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.MenuItemID, &l.Quantity, &l.Subtotal); err != nil {
			return domain.FoodOrder{}, mapErr("scan order line", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return domain.FoodOrder{}, mapErr("order lines "+id, err)
	}
	return o, nil
}

// ---- shared helpers ----

func getEntity(ctx context.Context, q querier, ref domain.EntityRef, lock bool) (domain.PricedEntity, error) {
	ks, err := sqlFor(ref.Kind)
	if err != nil {
		return domain.PricedEntity{}, err
	}
	query := ks.get
	if lock {
		query += forUpdate
	}
	e := domain.PricedEntity{Kind: ref.Kind}
	if err := q.QueryRowContext(ctx, query, ref.ID).Scan(&e.ID, &e.Name, &e.UnitPrice, &e.Category, &e.DietType); err != nil {
		return domain.PricedEntity{}, mapErr(ref.String(), err)
	}
	return e, nil
}

func listDependents(ctx context.Context, q querier, ref domain.EntityRef) ([]domain.DerivedRecord, error) {
	ks, err := sqlFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, ks.dependents, ref.ID)
	if err != nil {
		return nil, mapErr("dependents of "+ref.String(), err)
	}
	defer rows.Close()

	kind := domain.DependentKind(ref.Kind)
	var out []domain.DerivedRecord
	for rows.Next() {
		d := domain.DerivedRecord{Kind: kind}
		if err := rows.Scan(&d.ID, &d.EntityID, &d.Quantity, &d.Multiplier, &d.DerivedTotal); err != nil {
			return nil, mapErr("scan dependent", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("dependents of "+ref.String(), err)
	}
	return out, nil
}

func getBooking(ctx context.Context, q querier, id string) (domain.StayBooking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, getBookingSQL, id))
	if err != nil {
		return domain.StayBooking{}, mapErr("booking "+id, err)
	}
	return b, nil
}

func scanBooking(s scanner) (domain.StayBooking, error) {
	var b domain.StayBooking
	err := s.Scan(
		&b.ID, &b.HotelID, &b.RoomNumber, &b.CheckIn, &b.CheckOut,
		&b.Nights, &b.GrandTotal, &b.BookedAt,
		&b.HotelName, &b.RoomTypeName,
	)
	return b, err
}

// insertLines writes all lines of an order in one statement.
func insertLines(ctx context.Context, q querier, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	values := make([]string, 0, len(lines))
	args := make([]any, 0, len(lines)*5)
	for _, l := range lines {
		values = append(values, "(?,?,?,?,?)")
		args = append(args, l.ID, l.OrderID, l.MenuItemID, l.Quantity, l.Subtotal)
	}
	_, err := q.ExecContext(ctx, insertOrderLinesPrefix+strings.Join(values, ","), args...)
	return err
}
