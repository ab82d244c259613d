package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotel_pricing/internal/adapters/observability"
	"hotel_pricing/internal/domain"
)

// PropagationMode decides what happens when a dependent write fails mid-run.
type PropagationMode string

const (
	// BestEffort keeps the new price and every record already rewritten.
	BestEffort PropagationMode = "best_effort"
	// Atomic rolls the whole run back, price included.
	Atomic PropagationMode = "atomic"
)

func ParsePropagationMode(s string) (PropagationMode, error) {
	switch PropagationMode(s) {
	case BestEffort, "":
		return BestEffort, nil
	case Atomic:
		return Atomic, nil
	}
	return "", fmt.Errorf("unknown propagation mode %q", s)
}

type PricingService struct {
	store domain.Store
	cache domain.Cache
	mode  PropagationMode
}

func NewPricingService(s domain.Store, c domain.Cache, mode PropagationMode) *PricingService {
	if mode == "" {
		mode = BestEffort
	}
	return &PricingService{store: s, cache: c, mode: mode}
}

func (s *PricingService) Mode() PropagationMode { return s.mode }

// UpdatePrice sets a new unit price on ref and rewrites every record derived from it.
// The entity stays locked from the first read until commit, so placements
// against the same entity wait for the run to finish.
func (s *PricingService) UpdatePrice(ctx context.Context, ref domain.EntityRef, newPrice float64) (domain.PriceChange, error) {
	if math.IsNaN(newPrice) || math.IsInf(newPrice, 0) || newPrice <= 0 {
		return domain.PriceChange{}, domain.InvalidArgument("price must be a finite number greater than 0")
	}
	if ref.Kind != domain.KindMenuItem && ref.Kind != domain.KindRoomRate {
		return domain.PriceChange{}, domain.InvalidArgument(fmt.Sprintf("unknown entity kind %q", ref.Kind))
	}
	price := decimal.NewFromFloat(newPrice).Round(2)
	if !price.IsPositive() {
		return domain.PriceChange{}, domain.InvalidArgument("price rounds to zero")
	}
	if price.GreaterThan(domain.MaxAmount) {
		return domain.PriceChange{}, domain.InvalidArgument("price must be <= " + domain.MaxAmount.StringFixed(2))
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("kind", string(ref.Kind)).Str("entity_id", ref.ID).Logger()

	change, err := s.propagate(ctx, ref, price)
	var de *domain.Error
	partial := errors.As(err, &de) && de.Kind == domain.KindDependentWriteFailure
	updated := change.UpdatedCount
	if partial {
		updated = de.UpdatedCount
	}
	observability.ObservePropagation(string(ref.Kind), outcome(err), updated, time.Since(start))
	if err != nil {
		if partial {
			logger.Error().Err(err).
				Int("updated", de.UpdatedCount).
				Int("pending", len(de.Pending)).
				Str("mode", string(s.mode)).
				Msg("price propagation incomplete")
		}
		if mayHaveWritten(err) {
			s.invalidate(ctx, ref)
		}
		return domain.PriceChange{}, err
	}

	s.invalidate(ctx, ref)
	logger.Info().
		Str("old_price", change.OldPrice.StringFixed(2)).
		Str("new_price", change.NewPrice.StringFixed(2)).
		Int("updated", change.UpdatedCount).
		Dur("duration", time.Since(start)).
		Msg("price propagated")
	return change, nil
}

func (s *PricingService) propagate(ctx context.Context, ref domain.EntityRef, price decimal.Decimal) (out domain.PriceChange, err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return out, domain.Unavailable("begin", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = tx.Rollback()
		}
	}()

	e, err := tx.Get(ctx, ref)
	if err != nil {
		return out, err
	}
	out = domain.PriceChange{Ref: ref, OldPrice: e.UnitPrice, NewPrice: price}

	deps, err := tx.FindAllReferencing(ctx, ref)
	if err != nil {
		return domain.PriceChange{}, domain.Unavailable("find dependents", err)
	}
	// every new total must fit before anything is written
	totals := make([]decimal.Decimal, len(deps))
	for i, rec := range deps {
		totals[i] = rec.Recompute(price)
		if totals[i].GreaterThan(domain.MaxAmount) {
			return domain.PriceChange{}, domain.InvalidArgument(fmt.Sprintf(
				"price %s would take %s %s to %s, above %s",
				price.StringFixed(2), rec.Kind, rec.ID, totals[i].StringFixed(2), domain.MaxAmount.StringFixed(2)))
		}
	}

	if err := tx.SetPrice(ctx, ref, price); err != nil {
		return domain.PriceChange{}, domain.Unavailable("set price", err)
	}

	for i, rec := range deps {
		if werr := tx.SetDerivedTotal(ctx, rec, totals[i]); werr != nil {
			return s.dependentFailure(tx, &closed, deps, i, werr)
		}
		out.UpdatedCount++
	}

	if err := tx.Commit(); err != nil {
		return domain.PriceChange{}, domain.Unavailable("commit", err)
	}
	closed = true
	return out, nil
}

// dependentFailure applies the configured policy after deps[failed] could not be written.
func (s *PricingService) dependentFailure(tx domain.Tx, closed *bool, deps []domain.DerivedRecord, failed int, cause error) (domain.PriceChange, error) {
	derr := &domain.Error{
		Kind:         domain.KindDependentWriteFailure,
		Message:      fmt.Sprintf("failed to update %s %s", deps[failed].Kind, deps[failed].ID),
		Err:          cause,
		UpdatedCount: failed,
		Pending:      ids(deps[failed:]),
	}
	if s.mode == Atomic {
		if err := tx.Rollback(); err != nil {
			return domain.PriceChange{}, domain.Unavailable("rollback", err)
		}
		*closed = true
		derr.Message += "; rolled back"
		derr.UpdatedCount = 0
		derr.Pending = ids(deps)
		return domain.PriceChange{}, derr
	}
	if err := tx.Commit(); err != nil {
		return domain.PriceChange{}, domain.Unavailable("commit", err)
	}
	*closed = true
	return domain.PriceChange{}, derr
}

func (s *PricingService) invalidate(ctx context.Context, ref domain.EntityRef) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, entityKey(ref))
	_ = s.cache.Del(ctx, dependentsKey(ref))
}

// mayHaveWritten is false for failures raised before the first write.
func mayHaveWritten(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument, domain.KindNotFound:
		return false
	}
	return true
}

func ids(recs []domain.DerivedRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}
