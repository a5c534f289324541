package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subkeeper/internal/common"
	"subkeeper/internal/models"
)

// PlanRepository is the read side of the plan catalog. Plans come back with
// their active features in display order.
type PlanRepository interface {
	// FindPlan returns the plan whether or not it is active.
	FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	// FindPlansByIDs skips ids that do not exist.
	FindPlansByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Plan, error)
	// ListActivePlans orders plans by name.
	ListActivePlans(ctx context.Context) ([]*models.Plan, error)
}

type planRepo struct {
	db DBTX
}

func NewPlanRepo(db DBTX) PlanRepository {
	return &planRepo{db: db}
}

func (r *planRepo) FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plans, err := r.FindPlansByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	plan, ok := plans[id]
	if !ok {
		return nil, common.NewError(common.KindNotFound, "plan not found")
	}
	return plan, nil
}

func (r *planRepo) FindPlansByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Plan, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.Plan{}, nil
	}

	query := `
		SELECT id, name, description, price::text, is_active, created_at
		FROM plans
		WHERE id = ANY($1)
	`
	plans, err := r.queryPlans(ctx, query, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	return byID, nil
}

func (r *planRepo) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	query := `
		SELECT id, name, description, price::text, is_active, created_at
		FROM plans
		WHERE is_active
		ORDER BY name, id
	`
	return r.queryPlans(ctx, query)
}

// queryPlans runs a plan query and attaches each plan's features with one extra round trip.
func (r *planRepo) queryPlans(ctx context.Context, query string, args ...any) ([]*models.Plan, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "")
	}
	defer rows.Close()

	var (
		plans []*models.Plan
		ids   []uuid.UUID
	)
	for rows.Next() {
		p := &models.Plan{Features: []models.Feature{}}
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, translateError(err, "")
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, common.WrapError(common.KindInternal, "invalid plan price", err)
		}
		plans = append(plans, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "")
	}
	rows.Close()

	if len(plans) == 0 {
		return plans, nil
	}
	features, err := r.activeFeatures(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if fs, ok := features[p.ID]; ok {
			p.Features = fs
		}
	}
	return plans, nil
}

func (r *planRepo) activeFeatures(ctx context.Context, planIDs []uuid.UUID) (map[uuid.UUID][]models.Feature, error) {
	query := `
		SELECT pf.plan_id, f.id, f.name, f.description, f.is_active
		FROM plan_features pf
		JOIN features f ON f.id = pf.feature_id
		WHERE pf.plan_id = ANY($1) AND f.is_active
		ORDER BY pf.plan_id, pf.position
	`
	rows, err := r.db.Query(ctx, query, planIDs)
	if err != nil {
		return nil, translateError(err, "")
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.Feature, len(planIDs))
	for rows.Next() {
		var planID uuid.UUID
		var f models.Feature
		if err := rows.Scan(&planID, &f.ID, &f.Name, &f.Description, &f.IsActive); err != nil {
			return nil, translateError(err, "")
		}
		out[planID] = append(out[planID], f)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "")
	}
	return out, nil
}
