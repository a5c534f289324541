package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Feature struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
}

// Plan is a catalog entry. Features keep their display order.
type Plan struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	Features    []Feature       `json:"features"`
}

// FeatureCount is derived from the feature set and never stored.
func (p *Plan) FeatureCount() int {
	return len(p.Features)
}

// HasFeature reports whether the plan carries an active feature with the given name.
func (p *Plan) HasFeature(name string) bool {
	name = strings.TrimSpace(name)
	return slices.ContainsFunc(p.Features, func(f Feature) bool {
		return f.IsActive && f.Name == name
	})
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Features = slices.Clone(p.Features)
	return &c
}
