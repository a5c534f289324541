package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"subkeeper/internal/config"
	"subkeeper/internal/logger"
	"subkeeper/internal/metrics"
)

type KeyKind string

const (
	KindSubscriptionList   KeyKind = "subscription_list"
	KindActiveSubscription KeyKind = "active_subscription"
	KindPlanDetail         KeyKind = "plan_detail"
	KindPlanList           KeyKind = "plan_list"
)

const (
	catalogGeneration  = "gen:catalog"
	defaultLoadTimeout = 30 * time.Second
)

// Key addresses one logical cache entry. The physical key also carries the
// entry's generation and the catalog generation, see Service.resolve.
type Key struct {
	Kind KeyKind
	ID   uuid.UUID
}

func SubscriptionListKey(subscriberID uuid.UUID) Key {
	return Key{Kind: KindSubscriptionList, ID: subscriberID}
}

func ActiveSubscriptionKey(subscriberID uuid.UUID) Key {
	return Key{Kind: KindActiveSubscription, ID: subscriberID}
}

func PlanDetailKey(planID uuid.UUID) Key {
	return Key{Kind: KindPlanDetail, ID: planID}
}

func PlanListKey() Key {
	return Key{Kind: KindPlanList}
}

func (k Key) String() string {
	if k.ID == uuid.Nil {
		return string(k.Kind)
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}

// TTLs holds the lifetime of each key kind.
type TTLs struct {
	SubscriptionList   time.Duration
	ActiveSubscription time.Duration
	PlanDetail         time.Duration
	PlanList           time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		SubscriptionList:   300 * time.Second,
		ActiveSubscription: 600 * time.Second,
		PlanDetail:         900 * time.Second,
		PlanList:           900 * time.Second,
	}
}

func TTLsFromConfig(cfg config.CacheConfig) TTLs {
	return TTLs{
		SubscriptionList:   cfg.SubscriptionListTTL(),
		ActiveSubscription: cfg.ActiveSubscriptionTTL(),
		PlanDetail:         cfg.PlanDetailTTL(),
		PlanList:           cfg.PlanListTTL(),
	}
}

func (t TTLs) For(kind KeyKind) time.Duration {
	switch kind {
	case KindSubscriptionList:
		return t.SubscriptionList
	case KindActiveSubscription:
		return t.ActiveSubscription
	case KindPlanDetail:
		return t.PlanDetail
	default:
		return t.PlanList
	}
}

// Service is the cache layer in front of the subscription and catalog reads.
//
// Every logical key maps to a physical key stamped with two counters: the
// key's own generation and the catalog generation. Invalidation bumps a
// counter instead of racing readers on a delete, so a fill computed from
// data read before a write lands on a key nobody resolves afterwards.
type Service struct {
	store   Store
	prefix  string
	ttls    TTLs
	logger  *slog.Logger
	metrics *metrics.Collector
	group   singleflight.Group

	loadTimeout time.Duration
}

type Option func(*Service)

func WithPrefix(prefix string) Option {
	return func(s *Service) { s.prefix = prefix }
}

func WithTTLs(ttls TTLs) Option {
	return func(s *Service) { s.ttls = ttls }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLoadTimeout bounds a load shared by concurrent misses.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		prefix: "subkeeper",
		ttls:   DefaultTTLs(),
		logger: logger.Discard(),

		loadTimeout: defaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) TTLs() TTLs { return s.ttls }

func (s *Service) generationKey(k Key) string {
	return fmt.Sprintf("%s:gen:%s", s.prefix, k)
}

func (s *Service) catalogKey() string {
	return fmt.Sprintf("%s:%s", s.prefix, catalogGeneration)
}

// resolve returns the physical key for k at the current generations.
func (s *Service) resolve(ctx context.Context, k Key) (string, error) {
	gens, err := s.store.Counters(ctx, s.generationKey(k), s.catalogKey())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:v%d:c%d", s.prefix, k, gens[0], gens[1]), nil
}

// Get decodes the live entry for k into dest and reports whether there was one.
func (s *Service) Get(ctx context.Context, k Key, dest any) (bool, error) {
	physical, err := s.resolve(ctx, k)
	if err != nil {
		return false, err
	}
	return s.getPhysical(ctx, physical, dest)
}

// Set stores value under k, replacing whatever was there. A zero ttl uses the kind's TTL.
func (s *Service) Set(ctx context.Context, k Key, value any, ttl time.Duration) error {
	physical, err := s.resolve(ctx, k)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.ttls.For(k.Kind)
	}
	return s.setPhysical(ctx, physical, value, ttl)
}

// Invalidate makes every given key miss for all subsequent readers.
func (s *Service) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}

	superseded := make([]string, 0, len(keys))
	counters := make([]string, 0, len(keys))
	for _, k := range keys {
		if physical, err := s.resolve(ctx, k); err == nil {
			superseded = append(superseded, physical)
		}
		counters = append(counters, s.generationKey(k))
	}

	if err := s.store.Incr(ctx, counters...); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}

	// The superseded entries are unreachable already; deleting them only frees space.
	if err := s.store.Delete(ctx, superseded...); err != nil {
		s.logger.WarnContext(ctx, "failed to delete superseded cache entries", logger.Error(err))
	}
	return nil
}

// InvalidateUser drops both of a subscriber's entries.
func (s *Service) InvalidateUser(ctx context.Context, subscriberID uuid.UUID) error {
	return s.Invalidate(ctx, SubscriptionListKey(subscriberID), ActiveSubscriptionKey(subscriberID))
}

// InvalidatePlan drops the plan's detail entry and the plan list. Subscription
// views embed plan data, so the catalog generation moves as well.
func (s *Service) InvalidatePlan(ctx context.Context, planID uuid.UUID) error {
	if err := s.Invalidate(ctx, PlanDetailKey(planID), PlanListKey()); err != nil {
		return err
	}
	return s.InvalidateCatalog(ctx)
}

// InvalidateCatalog drops every entry at once.
func (s *Service) InvalidateCatalog(ctx context.Context) error {
	if err := s.store.Incr(ctx, s.catalogKey()); err != nil {
		return fmt.Errorf("failed to bump catalog generation: %w", err)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) getPhysical(ctx context.Context, physical string, dest any) (bool, error) {
	data, err := s.store.Get(ctx, physical)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A value we cannot decode is treated as absent and overwritten by the next fill.
		s.logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", physical), logger.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Service) setPhysical(ctx context.Context, physical string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return s.store.Set(ctx, physical, data, ttl)
}

// Refresh reloads k unconditionally. Like GetOrLoad it resolves the key before
// loading, so an invalidation that lands mid-load still wins.
func Refresh[T any](ctx context.Context, s *Service, k Key, load func(context.Context) (T, error)) (T, error) {
	var zero T
	physical, err := s.resolve(ctx, k)
	if err != nil {
		return zero, err
	}
	v, err := load(ctx)
	if err != nil {
		return zero, err
	}
	if err := s.setPhysical(ctx, physical, v, s.ttls.For(k.Kind)); err != nil {
		return zero, err
	}
	return v, nil
}

// GetOrLoad serves k from the cache, or calls load and fills k with its result.
// Concurrent misses on the same physical key share one load. Loader errors are
// returned as-is and never cached. A failing cache backend is logged and
// bypassed, so reads keep working against the store.
func GetOrLoad[T any](ctx context.Context, s *Service, k Key, load func(context.Context) (T, error)) (T, error) {
	physical, err := s.resolve(ctx, k)
	if err != nil {
		s.logger.WarnContext(ctx, "cache unavailable, reading through", slog.String("key", k.String()), logger.Error(err))
		s.metrics.RecordCacheLookup(string(k.Kind), false)
		return load(ctx)
	}

	var cached T
	hit, err := s.getPhysical(ctx, physical, &cached)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", slog.String("key", physical), logger.Error(err))
	}
	s.metrics.RecordCacheLookup(string(k.Kind), hit)
	if hit {
		return cached, nil
	}

	// The shared load must not die with whichever caller started it, so it runs
	// detached under its own timeout while each caller still honors its own ctx.
	results := s.group.DoChan(physical, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := s.setPhysical(loadCtx, physical, loaded, s.ttls.For(k.Kind)); err != nil {
			s.logger.WarnContext(ctx, "cache fill failed", slog.String("key", physical), logger.Error(err))
		}
		return loaded, nil
	})

	var zero T
	select {
	case res := <-results:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
