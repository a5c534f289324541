package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subkeeper/internal/caching"
	"subkeeper/internal/common"
	"subkeeper/internal/models"
	"subkeeper/internal/repositories"
)

func newPlanFixture(t *testing.T) (PlanService, *repositories.MemoryPlanRepo, *clockwork.FakeClock, *models.Plan) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	pro := &models.Plan{
		ID: uuid.New(), Name: "Pro", Price: decimal.RequireFromString("12.50"), IsActive: true,
		Features: []models.Feature{
			{ID: uuid.New(), Name: "sso", Description: "Single sign-on", IsActive: true},
			{ID: uuid.New(), Name: "audit", Description: "Audit log", IsActive: true},
		},
	}
	repo := repositories.NewMemoryPlanRepo(
		pro,
		&models.Plan{ID: uuid.New(), Name: "Basic", IsActive: true},
		&models.Plan{ID: uuid.New(), Name: "Archived", IsActive: false},
	)
	cache := caching.NewService(caching.NewMemoryStore(clock, 100))
	return NewPlanService(repo, cache, nil), repo, clock, pro
}

func TestPlanService_GetPlan(t *testing.T) {
	ctx := context.Background()
	service, _, _, pro := newPlanFixture(t)

	view, err := service.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", view.Name)
	assert.Equal(t, 2, view.FeatureCount)
	require.Len(t, view.Features, 2)
	assert.Equal(t, "sso", view.Features[0].Name)
	assert.Equal(t, "audit", view.Features[1].Name)
	assert.True(t, view.Price.Equal(decimal.RequireFromString("12.5")))

	_, err = service.GetPlan(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPlanService_GetPlanHidesInactive(t *testing.T) {
	ctx := context.Background()
	service, repo, _, _ := newPlanFixture(t)

	archived := &models.Plan{ID: uuid.New(), Name: "Gone", IsActive: false}
	repo.Put(archived)

	_, err := service.GetPlan(ctx, archived.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPlanService_ListPlansSortedAndPaged(t *testing.T) {
	ctx := context.Background()
	service, _, _, _ := newPlanFixture(t)

	page, err := service.ListPlans(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Basic", page.Results[0].Name)

	page, err = service.ListPlans(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Pro", page.Results[0].Name)
}

func TestPlanService_CatalogChangesNeedInvalidation(t *testing.T) {
	ctx := context.Background()
	service, repo, clock, pro := newPlanFixture(t)

	_, err := service.GetPlan(ctx, pro.ID)
	require.NoError(t, err)

	renamed := pro.Clone()
	renamed.Name = "Pro Plus"
	repo.Put(renamed)

	view, err := service.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", view.Name, "cached until invalidated or expired")

	require.NoError(t, service.InvalidatePlan(ctx, pro.ID))
	view, err = service.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro Plus", view.Name)

	renamed.Name = "Pro Max"
	repo.Put(renamed)
	clock.Advance(901 * time.Second)
	view, err = service.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro Max", view.Name, "plan detail lives 900s")
}

func TestPlanService_InvalidateCatalog(t *testing.T) {
	ctx := context.Background()
	service, repo, _, _ := newPlanFixture(t)

	page, err := service.ListPlans(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)

	repo.Put(&models.Plan{ID: uuid.New(), Name: "Enterprise", IsActive: true})
	require.NoError(t, service.InvalidateCatalog(ctx))

	page, err = service.ListPlans(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
}

func TestPlanService_WarmPlanList(t *testing.T) {
	ctx := context.Background()
	plans := new(MockPlanRepository)
	list := []*models.Plan{{ID: uuid.New(), Name: "Basic", IsActive: true, Features: []models.Feature{}}}
	plans.On("ListActivePlans", mock.Anything).Return(list, nil).Once()

	service := NewPlanService(plans, caching.NewService(caching.NewMemoryStore(nil, 10)), nil)

	n, err := service.WarmPlanList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Served from the warmed entry; the repository is not asked again.
	page, err := service.ListPlans(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	plans.AssertExpectations(t)
}

func TestAssembleSubscription(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	plan := &models.Plan{ID: uuid.New(), Name: "Pro", Features: []models.Feature{{Name: "sso", IsActive: true}}}
	sub := models.NewSubscription(uuid.New(), plan.ID, start)
	rec := &models.SubscriptionRecord{Subscription: sub, Plan: plan}

	view := AssembleSubscription(rec, start.Add(36*time.Hour))
	assert.Equal(t, 1, view.DurationDays)
	assert.Equal(t, 1, view.Plan.FeatureCount)
	assert.Nil(t, view.EndDate)

	sub.Deactivate(start.Add(10*24*time.Hour), "")
	view = AssembleSubscription(rec, start.Add(400*24*time.Hour))
	assert.Equal(t, 10, view.DurationDays)
	require.NotNil(t, view.EndDate)

	assert.Nil(t, AssembleSubscription(nil, start))
}
