package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeatureView is the client-facing rendering of a Feature.
type FeatureView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
}

// PlanView embeds the plan's ordered features and their count.
type PlanView struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Features     []FeatureView   `json:"features"`
	FeatureCount int             `json:"feature_count"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SubscriptionView is the nested subscription -> plan -> features rendering.
type SubscriptionView struct {
	ID           uuid.UUID  `json:"id"`
	SubscriberID uuid.UUID  `json:"subscriber_id"`
	Plan         *PlanView  `json:"plan"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	IsActive     bool       `json:"is_active"`
	DurationDays int        `json:"duration_days"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Page is one page of a larger, already ordered result.
type Page[T any] struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  []T `json:"results"`
}
