package repositories

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subkeeper/internal/common"
	"subkeeper/internal/models"
)

// MemoryPlanRepo is an in-process catalog, seeded with Put or from a TOML file.
type MemoryPlanRepo struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]*models.Plan
}

func NewMemoryPlanRepo(plans ...*models.Plan) *MemoryPlanRepo {
	r := &MemoryPlanRepo{plans: make(map[uuid.UUID]*models.Plan)}
	for _, p := range plans {
		r.Put(p)
	}
	return r
}

// Put adds or replaces a plan.
func (r *MemoryPlanRepo) Put(p *models.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = p.Clone()
}

func (r *MemoryPlanRepo) FindPlan(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, common.NewError(common.KindNotFound, "plan not found")
	}
	return withActiveFeatures(p), nil
}

func (r *MemoryPlanRepo) FindPlansByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uuid.UUID]*models.Plan, len(ids))
	for _, id := range ids {
		if p, ok := r.plans[id]; ok {
			out[id] = withActiveFeatures(p)
		}
	}
	return out, nil
}

func (r *MemoryPlanRepo) ListActivePlans(context.Context) ([]*models.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, withActiveFeatures(p))
		}
	}
	slices.SortFunc(out, func(a, b *models.Plan) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func withActiveFeatures(p *models.Plan) *models.Plan {
	c := p.Clone()
	c.Features = slices.DeleteFunc(c.Features, func(f models.Feature) bool { return !f.IsActive })
	if c.Features == nil {
		c.Features = []models.Feature{}
	}
	return c
}

type catalogFile struct {
	Plans []catalogPlan `toml:"plans"`
}

type catalogPlan struct {
	ID          string           `toml:"id"`
	Name        string           `toml:"name"`
	Description string           `toml:"description"`
	Price       string           `toml:"price"`
	Active      *bool            `toml:"active"`
	Features    []catalogFeature `toml:"features"`
}

type catalogFeature struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Active      *bool  `toml:"active"`
}

// LoadCatalogFile reads [[plans]] tables from a TOML file into the repo.
// Active defaults to true; feature order in the file is the display order.
func (r *MemoryPlanRepo) LoadCatalogFile(path string, now time.Time) (int, error) {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return 0, fmt.Errorf("failed to read catalog file: %w", err)
	}

	for i, raw := range file.Plans {
		id, err := uuid.Parse(raw.ID)
		if err != nil {
			return i, fmt.Errorf("plan %d: invalid id: %w", i, err)
		}
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return i, fmt.Errorf("plan %s: invalid price: %w", raw.Name, err)
		}
		if price.IsNegative() {
			return i, fmt.Errorf("plan %s: price must not be negative", raw.Name)
		}

		plan := &models.Plan{
			ID:          id,
			Name:        raw.Name,
			Description: raw.Description,
			Price:       price,
			IsActive:    raw.Active == nil || *raw.Active,
			CreatedAt:   now,
			Features:    make([]models.Feature, 0, len(raw.Features)),
		}
		for _, f := range raw.Features {
			fid, err := uuid.Parse(f.ID)
			if err != nil {
				return i, fmt.Errorf("plan %s: feature %q: invalid id: %w", raw.Name, f.Name, err)
			}
			plan.Features = append(plan.Features, models.Feature{
				ID:          fid,
				Name:        f.Name,
				Description: f.Description,
				IsActive:    f.Active == nil || *f.Active,
			})
		}
		r.Put(plan)
	}
	return len(file.Plans), nil
}
