package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState string

const (
	StateActive   SubscriptionState = "active"
	StateInactive SubscriptionState = "inactive"
)

// SubscriptionEvent names a transition on a subscription.
type SubscriptionEvent string

const (
	EventCreate     SubscriptionEvent = "create"
	EventChangePlan SubscriptionEvent = "change_plan"
	EventDeactivate SubscriptionEvent = "deactivate"
)

type transitionKey struct {
	From  SubscriptionState
	Event SubscriptionEvent
}

// Inactive is terminal: nothing leaves it.
var subscriptionTransitions = map[transitionKey]SubscriptionState{
	{StateActive, EventChangePlan}: StateActive,
	{StateActive, EventDeactivate}: StateInactive,
}

// NextState returns the state reached by firing event from state.
func NextState(from SubscriptionState, event SubscriptionEvent) (SubscriptionState, bool) {
	to, ok := subscriptionTransitions[transitionKey{from, event}]
	return to, ok
}

type Subscription struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	SubscriberID uuid.UUID  `json:"subscriber_id" db:"subscriber_id"`
	PlanID       uuid.UUID  `json:"plan_id" db:"plan_id"`
	StartDate    time.Time  `json:"start_date" db:"start_date"`
	EndDate      *time.Time `json:"end_date" db:"end_date"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	Notes        string     `json:"notes" db:"notes"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// NewSubscription returns an active subscription starting at now.
func NewSubscription(subscriberID, planID uuid.UUID, now time.Time) *Subscription {
	return &Subscription{
		ID:           uuid.New(),
		SubscriberID: subscriberID,
		PlanID:       planID,
		StartDate:    now,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Subscription) State() SubscriptionState {
	if s.IsActive {
		return StateActive
	}
	return StateInactive
}

// CanFire reports whether event is a legal transition from the current state.
func (s *Subscription) CanFire(event SubscriptionEvent) bool {
	_, ok := NextState(s.State(), event)
	return ok
}

// Deactivate ends the subscription at now. The reason, if any, is appended to Notes.
// Callers check CanFire(EventDeactivate) first.
func (s *Subscription) Deactivate(now time.Time, reason string) {
	end := now
	s.IsActive = false
	s.EndDate = &end
	s.UpdatedAt = now
	if reason = strings.TrimSpace(reason); reason != "" {
		s.Notes = strings.TrimSpace(s.Notes + "\n" + reason)
	}
}

// ChangePlan points the subscription at planID, leaving every other field untouched except UpdatedAt.
func (s *Subscription) ChangePlan(planID uuid.UUID, now time.Time) {
	s.PlanID = planID
	s.UpdatedAt = now
}

// DurationDays is the number of whole days between StartDate and EndDate, or now while active.
func (s *Subscription) DurationDays(now time.Time) int {
	end := now
	if s.EndDate != nil {
		end = *s.EndDate
	}
	d := end.Sub(s.StartDate)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Clone returns a copy that shares no pointers with s.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndDate != nil {
		end := *s.EndDate
		c.EndDate = &end
	}
	return &c
}

// SubscriptionRecord is a subscription together with the plan it references,
// the unit the cache stores and the assembler renders.
type SubscriptionRecord struct {
	Subscription *Subscription `json:"subscription"`
	Plan         *Plan         `json:"plan"`
}
