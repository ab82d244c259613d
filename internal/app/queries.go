package app

import (
	"context"
	"fmt"
	"time"

	"hotel_pricing/internal/domain"
)

// Cache keys. Propagation and placement evict these; nothing else writes prices.
func entityKey(ref domain.EntityRef) string {
	return fmt.Sprintf("entity:%s:%s", ref.Kind, ref.ID)
}

func dependentsKey(ref domain.EntityRef) string {
	return fmt.Sprintf("dependents:%s:%s", ref.Kind, ref.ID)
}

type QueryService struct {
	store    domain.Store
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(s domain.Store, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetEntity(ctx context.Context, ref domain.EntityRef) (domain.PricedEntity, error) {
	key := entityKey(ref)
	var e domain.PricedEntity
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &e); ok {
			return e, nil
		}
	}
	e, err := s.store.GetEntity(ctx, ref)
	if err != nil {
		return domain.PricedEntity{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, e, int(s.cacheTTL.Seconds()))
	}
	return e, nil
}

// ListDependents returns the records priced from ref. An unknown ref is NotFound,
// an entity without dependents yields an empty slice.
func (s *QueryService) ListDependents(ctx context.Context, ref domain.EntityRef) ([]domain.DerivedRecord, error) {
	key := dependentsKey(ref)
	var out []domain.DerivedRecord
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	if _, err := s.GetEntity(ctx, ref); err != nil {
		return nil, err
	}
	out, err := s.store.ListDependents(ctx, ref)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.DerivedRecord{}
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

func (s *QueryService) GetBooking(ctx context.Context, id string) (domain.StayBooking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *QueryService) GetOrder(ctx context.Context, id string) (domain.FoodOrder, error) {
	return s.store.GetOrder(ctx, id)
}
