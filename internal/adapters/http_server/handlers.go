package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"hotel_pricing/internal/app"
	"hotel_pricing/internal/domain"
)

const maxBody = 1 << 20

type Handlers struct {
	Q *app.QueryService
	C *app.CommandService
	P *app.PricingService

	// PriceLimiter throttles the two price-update routes; nil disables it.
	PriceLimiter *rate.Limiter
}

type problem struct {
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Status       int      `json:"status"`
	Detail       string   `json:"detail,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	UpdatedCount *int     `json:"updatedCount,omitempty"`
	Pending      []string `json:"pending,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/menu-items", h.createMenuItem)
		r.Get("/menu-items/{id}", h.getEntity(domain.KindMenuItem))
		r.Get("/menu-items/{id}/dependents", h.listDependents(domain.KindMenuItem))

		r.Post("/hotels", h.createHotel)
		r.Get("/hotels/{id}", h.getEntity(domain.KindRoomRate))
		r.Get("/hotels/{id}/dependents", h.listDependents(domain.KindRoomRate))
		r.Post("/hotels/{id}/rooms", h.createRoom)

		r.Group(func(r chi.Router) {
			r.Use(Throttle(h.PriceLimiter))
			r.Put("/menu-items/{id}/price", h.updatePrice(domain.KindMenuItem))
			r.Put("/hotels/{id}/room-price", h.updatePrice(domain.KindRoomRate))
		})

		r.Post("/room-types", h.createRoomType)

		r.Post("/bookings", h.placeBooking)
		r.Get("/bookings/{id}", h.getBooking)
		r.Post("/orders", h.placeOrder)
		r.Get("/orders/{id}", h.getOrder)
	})
}

// ---- response helpers ----

func statusFor(k domain.ErrorKind) int {
	switch k {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps a domain error onto problem+json.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	p := problem{Type: "about:blank", Title: http.StatusText(status), Status: status, Kind: string(kind)}

	var de *domain.Error
	if errors.As(err, &de) {
		p.Detail = de.Message
		if de.Kind == domain.KindDependentWriteFailure {
			n := de.UpdatedCount
			p.UpdatedCount, p.Pending = &n, de.Pending
		}
	}
	if status >= 500 {
		// storage details stay in the logs
		log.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
		if kind == domain.KindStorageUnavailable {
			p.Detail = "storage unavailable"
		}
	}
	writeProblem(w, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(dst)
	if err != nil {
		writeError(w, domain.InvalidArgument("malformed JSON body"))
		return false
	}
	return true
}

// ---- catalog ----

func (h *Handlers) createMenuItem(w http.ResponseWriter, r *http.Request) {
	var req createMenuItemReq
	if !decode(w, r, &req) {
		return
	}
	price, err := priceDecimal(req.Price, "price")
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := h.C.CreateEntity(r.Context(), domain.PricedEntity{
		Kind: domain.KindMenuItem, ID: req.ID, Name: req.Name,
		UnitPrice: price, Category: req.Category, DietType: req.Type,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntityView(e))
}

func (h *Handlers) createHotel(w http.ResponseWriter, r *http.Request) {
	var req createHotelReq
	if !decode(w, r, &req) {
		return
	}
	price, err := priceDecimal(req.BasePricePerNight, "basePricePerNight")
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := h.C.CreateEntity(r.Context(), domain.PricedEntity{
		Kind: domain.KindRoomRate, ID: req.ID, Name: req.Name,
		UnitPrice: price, Category: req.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntityView(e))
}

func (h *Handlers) getEntity(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := h.Q.GetEntity(r.Context(), domain.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")})
		if err != nil {
			writeError(w, err)
			return
		}
		writeCached(w, r, toEntityView(e))
	}
}

func (h *Handlers) listDependents(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}
		recs, err := h.Q.ListDependents(r.Context(), ref)
		if err != nil {
			writeError(w, err)
			return
		}
		writeCached(w, r, toDependentsView(ref, recs))
	}
}

func (h *Handlers) updatePrice(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceReq
		if !decode(w, r, &req) {
			return
		}
		price, err := req.value()
		if err != nil {
			writeError(w, err)
			return
		}
		change, err := h.P.UpdatePrice(r.Context(), domain.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}, price)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPriceChangeView(change))
	}
}

func (h *Handlers) createRoomType(w http.ResponseWriter, r *http.Request) {
	var req createRoomTypeReq
	if !decode(w, r, &req) {
		return
	}
	rt := domain.RoomType{Name: req.Name, MaxCapacity: req.MaxCapacity}
	if req.PriceMultiplier != nil {
		rt.PriceMultiplier = decimal.NewFromFloat(*req.PriceMultiplier)
		if rt.PriceMultiplier.IsZero() {
			writeError(w, domain.InvalidArgument("priceMultiplier must be >= 0.01"))
			return
		}
	}
	rt, err := h.C.CreateRoomType(r.Context(), rt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomTypeView{
		ID: rt.ID, Name: rt.Name, MaxCapacity: rt.MaxCapacity,
		PriceMultiplier: rt.PriceMultiplier.InexactFloat64(),
	})
}

func (h *Handlers) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	if !decode(w, r, &req) {
		return
	}
	room, err := h.C.CreateRoom(r.Context(), domain.Room{
		HotelID:    chi.URLParam(r, "id"),
		RoomNumber: req.RoomNumber,
		RoomTypeID: req.RoomTypeID,
		Status:     domain.RoomStatus(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomView{
		HotelID: room.HotelID, RoomNumber: room.RoomNumber,
		RoomTypeID: room.RoomTypeID, Status: string(room.Status),
	})
}

// ---- placement ----

func (h *Handlers) placeBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingReq
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.C.PlaceBooking(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingView(b))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Q.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingView(b))
}

func (h *Handlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orderReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.C.PlaceOrder(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(o))
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Q.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}
