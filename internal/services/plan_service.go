package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"subkeeper/internal/caching"
	"subkeeper/internal/common"
	"subkeeper/internal/logger"
	"subkeeper/internal/models"
	"subkeeper/internal/repositories"
)

// PlanService serves the plan catalog through the cache.
type PlanService interface {
	GetPlan(ctx context.Context, planID uuid.UUID) (*models.PlanView, error)
	ListPlans(ctx context.Context, page, pageSize int) (*models.Page[*models.PlanView], error)
	// WarmPlanList reloads the plan list entry and returns how many plans it holds.
	WarmPlanList(ctx context.Context) (int, error)
	InvalidatePlan(ctx context.Context, planID uuid.UUID) error
	InvalidateCatalog(ctx context.Context) error
}

type planService struct {
	plans  repositories.PlanRepository
	cache  *caching.Service
	logger *slog.Logger
}

func NewPlanService(plans repositories.PlanRepository, cache *caching.Service, log *slog.Logger) PlanService {
	if log == nil {
		log = logger.Discard()
	}
	return &planService{plans: plans, cache: cache, logger: log}
}

func (s *planService) GetPlan(ctx context.Context, planID uuid.UUID) (*models.PlanView, error) {
	plan, err := caching.GetOrLoad(ctx, s.cache, caching.PlanDetailKey(planID), func(ctx context.Context) (*models.Plan, error) {
		plan, err := s.plans.FindPlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		// Retired plans are not browsable.
		if !plan.IsActive {
			return nil, common.NewError(common.KindNotFound, "plan not found")
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return AssemblePlan(plan), nil
}

func (s *planService) ListPlans(ctx context.Context, page, pageSize int) (*models.Page[*models.PlanView], error) {
	plans, err := caching.GetOrLoad(ctx, s.cache, caching.PlanListKey(), s.plans.ListActivePlans)
	if err != nil {
		return nil, err
	}
	return paginate(assemblePlans(plans), page, pageSize), nil
}

func (s *planService) WarmPlanList(ctx context.Context) (int, error) {
	plans, err := caching.Refresh(ctx, s.cache, caching.PlanListKey(), s.plans.ListActivePlans)
	if err != nil {
		return 0, err
	}
	return len(plans), nil
}

func (s *planService) InvalidatePlan(ctx context.Context, planID uuid.UUID) error {
	if err := s.cache.InvalidatePlan(ctx, planID); err != nil {
		s.logger.ErrorContext(ctx, "plan invalidation failed", slog.String("plan_id", planID.String()), logger.Error(err))
		return common.WrapError(common.KindInternal, "plan cache invalidation failed", err)
	}
	s.logger.InfoContext(ctx, "plan invalidated", slog.String("plan_id", planID.String()))
	return nil
}

func (s *planService) InvalidateCatalog(ctx context.Context) error {
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.ErrorContext(ctx, "catalog invalidation failed", logger.Error(err))
		return common.WrapError(common.KindInternal, "catalog cache invalidation failed", err)
	}
	s.logger.InfoContext(ctx, "catalog invalidated")
	return nil
}
