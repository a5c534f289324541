package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"subkeeper/internal/caching"
	"subkeeper/internal/common"
	"subkeeper/internal/logger"
	"subkeeper/internal/metrics"
	"subkeeper/internal/models"
	"subkeeper/internal/repositories"
)

// SubscriptionService runs the subscription lifecycle. Every transition holds
// the subscriber lock for its whole transaction and invalidates the
// subscriber's cache entries before it returns.
type SubscriptionService interface {
	Create(ctx context.Context, subscriberID, planID uuid.UUID) (*models.SubscriptionView, error)
	ChangePlan(ctx context.Context, subscriberID, subscriptionID, newPlanID uuid.UUID) (*models.SubscriptionView, error)
	Deactivate(ctx context.Context, subscriberID, subscriptionID uuid.UUID, reason string) (*models.SubscriptionView, error)
	GetActive(ctx context.Context, subscriberID uuid.UUID) (*models.SubscriptionView, error)
	List(ctx context.Context, subscriberID uuid.UUID, page, pageSize int) (*models.Page[*models.SubscriptionView], error)
	HasFeature(ctx context.Context, subscriberID uuid.UUID, featureName string) (bool, error)
}

type subscriptionService struct {
	subscriptions repositories.SubscriptionRepository
	plans         repositories.PlanRepository
	cache         *caching.Service
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *metrics.Collector
}

type SubscriptionServiceOption func(*subscriptionService)

func WithClock(clock clockwork.Clock) SubscriptionServiceOption {
	return func(s *subscriptionService) { s.clock = clock }
}

func WithLogger(l *slog.Logger) SubscriptionServiceOption {
	return func(s *subscriptionService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collector) SubscriptionServiceOption {
	return func(s *subscriptionService) { s.metrics = m }
}

func NewSubscriptionService(
	subscriptions repositories.SubscriptionRepository,
	plans repositories.PlanRepository,
	cache *caching.Service,
	opts ...SubscriptionServiceOption,
) SubscriptionService {
	s := &subscriptionService{
		subscriptions: subscriptions,
		plans:         plans,
		cache:         cache,
		clock:         clockwork.NewRealClock(),
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now is truncated to what Postgres stores, so cached and stored rows agree.
func (s *subscriptionService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *subscriptionService) Create(ctx context.Context, subscriberID, planID uuid.UUID) (*models.SubscriptionView, error) {
	plan, err := s.targetPlan(ctx, planID)
	if err != nil {
		return nil, s.fail(ctx, models.EventCreate, subscriberID, err)
	}

	var created, superseded *models.Subscription
	err = s.subscriptions.RunInTx(ctx, func(ctx context.Context, tx repositories.SubscriptionTx) error {
		current, err := tx.LockActiveSubscription(ctx, subscriberID)
		if err != nil {
			return err
		}

		now := s.now()
		if current != nil {
			current.Deactivate(now, "")
			if err := tx.Update(ctx, current); err != nil {
				return err
			}
			superseded = current
		}

		created = models.NewSubscription(subscriberID, plan.ID, now)
		return tx.Insert(ctx, created)
	})
	if err != nil {
		return nil, s.fail(ctx, models.EventCreate, subscriberID, err)
	}

	attrs := []any{
		logger.SubscriberID(subscriberID),
		slog.String("subscription_id", created.ID.String()),
		slog.String("plan_id", plan.ID.String()),
	}
	if superseded != nil {
		attrs = append(attrs, slog.String("superseded_id", superseded.ID.String()))
	}
	return s.committed(ctx, models.EventCreate, subscriberID, &models.SubscriptionRecord{Subscription: created, Plan: plan}, attrs...)
}

func (s *subscriptionService) ChangePlan(ctx context.Context, subscriberID, subscriptionID, newPlanID uuid.UUID) (*models.SubscriptionView, error) {
	plan, err := s.targetPlan(ctx, newPlanID)
	if err != nil {
		return nil, s.fail(ctx, models.EventChangePlan, subscriberID, err)
	}

	var changed *models.Subscription
	var previousPlan uuid.UUID
	err = s.subscriptions.RunInTx(ctx, func(ctx context.Context, tx repositories.SubscriptionTx) error {
		if _, err := tx.LockActiveSubscription(ctx, subscriberID); err != nil {
			return err
		}
		sub, err := tx.GetSubscription(ctx, subscriberID, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.CanFire(models.EventChangePlan) {
			return common.NewError(common.KindInvalidState, "subscription is not active")
		}
		if sub.PlanID == plan.ID {
			return common.NewError(common.KindInvalidPlan, "already subscribed to this plan")
		}

		previousPlan = sub.PlanID
		sub.ChangePlan(plan.ID, s.now())
		if err := tx.Update(ctx, sub); err != nil {
			return err
		}
		changed = sub
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, models.EventChangePlan, subscriberID, err)
	}

	return s.committed(ctx, models.EventChangePlan, subscriberID, &models.SubscriptionRecord{Subscription: changed, Plan: plan},
		logger.SubscriberID(subscriberID),
		slog.String("subscription_id", changed.ID.String()),
		slog.String("from_plan_id", previousPlan.String()),
		slog.String("to_plan_id", plan.ID.String()),
	)
}

func (s *subscriptionService) Deactivate(ctx context.Context, subscriberID, subscriptionID uuid.UUID, reason string) (*models.SubscriptionView, error) {
	var ended *models.Subscription
	err := s.subscriptions.RunInTx(ctx, func(ctx context.Context, tx repositories.SubscriptionTx) error {
		if _, err := tx.LockActiveSubscription(ctx, subscriberID); err != nil {
			return err
		}
		sub, err := tx.GetSubscription(ctx, subscriberID, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.CanFire(models.EventDeactivate) {
			return common.NewError(common.KindInvalidState, "subscription is already inactive")
		}

		sub.Deactivate(s.now(), reason)
		if err := tx.Update(ctx, sub); err != nil {
			return err
		}
		ended = sub
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, models.EventDeactivate, subscriberID, err)
	}

	// A missing plan does not undo a committed deactivation; the view simply omits it.
	plan, err := s.plans.FindPlan(ctx, ended.PlanID)
	if err != nil {
		s.logger.WarnContext(ctx, "plan lookup after deactivation failed", logger.Error(err))
		plan = nil
	}
	return s.committed(ctx, models.EventDeactivate, subscriberID, &models.SubscriptionRecord{Subscription: ended, Plan: plan},
		logger.SubscriberID(subscriberID),
		slog.String("subscription_id", ended.ID.String()),
		slog.Bool("with_reason", strings.TrimSpace(reason) != ""),
	)
}

func (s *subscriptionService) GetActive(ctx context.Context, subscriberID uuid.UUID) (*models.SubscriptionView, error) {
	rec, err := s.activeRecord(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	return AssembleSubscription(rec, s.now()), nil
}

func (s *subscriptionService) List(ctx context.Context, subscriberID uuid.UUID, page, pageSize int) (*models.Page[*models.SubscriptionView], error) {
	recs, err := caching.GetOrLoad(ctx, s.cache, caching.SubscriptionListKey(subscriberID), func(ctx context.Context) ([]*models.SubscriptionRecord, error) {
		subs, err := s.subscriptions.ListBySubscriber(ctx, subscriberID)
		if err != nil {
			return nil, err
		}
		return s.withPlans(ctx, subs)
	})
	if err != nil {
		return nil, err
	}
	return paginate(assembleSubscriptions(recs, s.now()), page, pageSize), nil
}

func (s *subscriptionService) HasFeature(ctx context.Context, subscriberID uuid.UUID, featureName string) (bool, error) {
	rec, err := s.activeRecord(ctx, subscriberID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Plan != nil && rec.Plan.HasFeature(featureName), nil
}

func (s *subscriptionService) activeRecord(ctx context.Context, subscriberID uuid.UUID) (*models.SubscriptionRecord, error) {
	rec, err := caching.GetOrLoad(ctx, s.cache, caching.ActiveSubscriptionKey(subscriberID), func(ctx context.Context) (*models.SubscriptionRecord, error) {
		sub, err := s.subscriptions.GetActive(ctx, subscriberID)
		if err != nil {
			return nil, err
		}
		plan, err := s.plans.FindPlan(ctx, sub.PlanID)
		if err != nil {
			return nil, common.WrapError(common.KindInternal, "subscription references a missing plan", err)
		}
		return &models.SubscriptionRecord{Subscription: sub, Plan: plan}, nil
	})
	if errors.Is(err, common.ErrInvariantViolation) {
		s.reportViolation(ctx, subscriberID, err)
	}
	return rec, err
}

func (s *subscriptionService) withPlans(ctx context.Context, subs []*models.Subscription) ([]*models.SubscriptionRecord, error) {
	ids := make([]uuid.UUID, 0, len(subs))
	seen := make(map[uuid.UUID]struct{}, len(subs))
	for _, sub := range subs {
		if _, ok := seen[sub.PlanID]; !ok {
			seen[sub.PlanID] = struct{}{}
			ids = append(ids, sub.PlanID)
		}
	}

	plans, err := s.plans.FindPlansByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	recs := make([]*models.SubscriptionRecord, 0, len(subs))
	for _, sub := range subs {
		plan, ok := plans[sub.PlanID]
		if !ok {
			return nil, common.Errorf(common.KindInternal, "subscription %s references missing plan %s", sub.ID, sub.PlanID)
		}
		recs = append(recs, &models.SubscriptionRecord{Subscription: sub, Plan: plan})
	}
	return recs, nil
}

// targetPlan loads the plan a create or change-plan points at. Only active plans qualify.
func (s *subscriptionService) targetPlan(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	plan, err := s.plans.FindPlan(ctx, planID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewError(common.KindInvalidPlan, "plan does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, common.NewError(common.KindInvalidPlan, "plan is not active")
	}
	return plan, nil
}

// committed finishes a transition that has already been written: it
// invalidates the subscriber's entries, records the outcome and renders the view.
func (s *subscriptionService) committed(ctx context.Context, event models.SubscriptionEvent, subscriberID uuid.UUID, rec *models.SubscriptionRecord, attrs ...any) (*models.SubscriptionView, error) {
	if err := s.cache.InvalidateUser(ctx, subscriberID); err != nil {
		s.logger.ErrorContext(ctx, "cache invalidation failed after commit",
			slog.String("event", string(event)), logger.SubscriberID(subscriberID), logger.Error(err))
		s.metrics.RecordTransition(string(event), "invalidation_failed")
		return nil, common.WrapError(common.KindInternal, "subscription saved but cache invalidation failed", err)
	}

	s.metrics.RecordTransition(string(event), "ok")
	s.logger.InfoContext(ctx, "subscription "+string(event), attrs...)
	return AssembleSubscription(rec, s.now()), nil
}

func (s *subscriptionService) fail(ctx context.Context, event models.SubscriptionEvent, subscriberID uuid.UUID, err error) error {
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		err = common.WrapError(common.KindInternal, "subscription "+string(event)+" failed", err)
	}

	kind := common.KindOf(err)
	s.metrics.RecordTransition(string(event), strings.ToLower(string(kind)))

	switch kind {
	case common.KindInvariantViolation:
		s.reportViolation(ctx, subscriberID, err)
	case common.KindInternal:
		s.logger.ErrorContext(ctx, "subscription transition failed",
			slog.String("event", string(event)), logger.SubscriberID(subscriberID), logger.Error(err))
	default:
		s.logger.DebugContext(ctx, "subscription transition rejected",
			slog.String("event", string(event)), slog.String("kind", string(kind)), logger.Error(err))
	}
	return err
}

// reportViolation never repairs anything; it only makes the breach loud.
func (s *subscriptionService) reportViolation(ctx context.Context, subscriberID uuid.UUID, err error) {
	s.metrics.RecordInvariantViolation()
	s.logger.ErrorContext(ctx, "subscription invariant violated",
		logger.SubscriberID(subscriberID), logger.Error(err))
}
