package services

import (
	"time"

	"subkeeper/internal/models"
)

// AssemblePlan renders a plan with its features in display order.
func AssemblePlan(p *models.Plan) *models.PlanView {
	if p == nil {
		return nil
	}
	features := make([]models.FeatureView, 0, len(p.Features))
	for _, f := range p.Features {
		features = append(features, models.FeatureView{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			IsActive:    f.IsActive,
		})
	}
	return &models.PlanView{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price,
		Features:     features,
		FeatureCount: len(features),
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
	}
}

// AssembleSubscription renders the subscription -> plan -> features view.
// duration_days is computed against now, so cached and fresh records render the same.
func AssembleSubscription(rec *models.SubscriptionRecord, now time.Time) *models.SubscriptionView {
	if rec == nil || rec.Subscription == nil {
		return nil
	}
	s := rec.Subscription
	view := &models.SubscriptionView{
		ID:           s.ID,
		SubscriberID: s.SubscriberID,
		Plan:         AssemblePlan(rec.Plan),
		StartDate:    s.StartDate,
		IsActive:     s.IsActive,
		DurationDays: s.DurationDays(now),
		Notes:        s.Notes,
		CreatedAt:    s.CreatedAt,
	}
	if s.EndDate != nil {
		end := *s.EndDate
		view.EndDate = &end
	}
	return view
}

func assembleSubscriptions(recs []*models.SubscriptionRecord, now time.Time) []*models.SubscriptionView {
	out := make([]*models.SubscriptionView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, AssembleSubscription(rec, now))
	}
	return out
}

func assemblePlans(plans []*models.Plan) []*models.PlanView {
	out := make([]*models.PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, AssemblePlan(p))
	}
	return out
}

// paginate slices one 1-based page out of an ordered result.
func paginate[T any](items []T, page, pageSize int) *models.Page[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = max(len(items), 1)
	}
	// Pages past the end are empty; comparing page counts first keeps the offset from overflowing.
	start := len(items)
	if page-1 <= len(items)/pageSize {
		start = min((page-1)*pageSize, len(items))
	}
	end := start + min(pageSize, len(items)-start)
	return &models.Page[T]{
		Count:    len(items),
		Page:     page,
		PageSize: pageSize,
		Results:  items[start:end],
	}
}
