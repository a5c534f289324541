package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"subkeeper/internal/common"
	"subkeeper/internal/metrics"
	"subkeeper/internal/models"
)

// SubscriptionRepository stores subscriptions. Every write happens inside
// RunInTx, after the subscriber lock has been taken.
type SubscriptionRepository interface {
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx SubscriptionTx) error) error

	GetActive(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error)
	GetByID(ctx context.Context, subscriberID, id uuid.UUID) (*models.Subscription, error)
	// ListBySubscriber returns every subscription of the subscriber, newest start first.
	ListBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]*models.Subscription, error)
	FindInvariantViolations(ctx context.Context) ([]InvariantViolation, error)
}

// SubscriptionTx is the transactional view handed to RunInTx callbacks.
type SubscriptionTx interface {
	// LockActiveSubscription takes the subscriber-scoped lock for the rest of
	// the transaction and returns the active subscription, or nil if there is none.
	LockActiveSubscription(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error)
	GetSubscription(ctx context.Context, subscriberID, id uuid.UUID) (*models.Subscription, error)
	Insert(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
}

// InvariantViolation names a subscriber holding more than one active subscription.
type InvariantViolation struct {
	SubscriberID    uuid.UUID
	SubscriptionIDs []uuid.UUID
}

const subscriptionColumns = `id, subscriber_id, plan_id, start_date, end_date, is_active, notes, created_at, updated_at`

type subscriptionRepo struct {
	db          DBTX
	lockTimeout time.Duration
	metrics     *metrics.Collector
}

func NewSubscriptionRepo(db DBTX, lockTimeout time.Duration, m *metrics.Collector) SubscriptionRepository {
	return &subscriptionRepo{db: db, lockTimeout: lockTimeout, metrics: m}
}

func (r *subscriptionRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx SubscriptionTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return translateError(err, "")
	}

	// A failed Commit ends the transaction on its own, so only the paths that
	// never reach it roll back. Panics included.
	committing := false
	defer func() {
		if !committing {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(ctx, &subscriptionTx{tx: tx, lockTimeout: r.lockTimeout, metrics: r.metrics}); err != nil {
		return err
	}

	committing = true
	if err := tx.Commit(ctx); err != nil {
		return translateError(err, "")
	}
	return nil
}

func (r *subscriptionRepo) GetActive(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE subscriber_id = $1 AND is_active
	`
	rows, err := r.db.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, translateError(err, "")
	}
	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, err
	}
	return singleActive(subscriberID, subs)
}

func (r *subscriptionRepo) GetByID(ctx context.Context, subscriberID, id uuid.UUID) (*models.Subscription, error) {
	return getSubscription(ctx, r.db, subscriberID, id)
}

func (r *subscriptionRepo) ListBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE subscriber_id = $1
		ORDER BY start_date DESC, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, translateError(err, "")
	}
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) FindInvariantViolations(ctx context.Context) ([]InvariantViolation, error) {
	query := `
		SELECT subscriber_id, array_agg(id ORDER BY start_date)
		FROM subscriptions
		WHERE is_active
		GROUP BY subscriber_id
		HAVING count(*) > 1
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, translateError(err, "")
	}
	defer rows.Close()

	var violations []InvariantViolation
	for rows.Next() {
		var v InvariantViolation
		if err := rows.Scan(&v.SubscriberID, &v.SubscriptionIDs); err != nil {
			return nil, translateError(err, "")
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "")
	}
	return violations, nil
}

type subscriptionTx struct {
	tx          pgx.Tx
	lockTimeout time.Duration
	metrics     *metrics.Collector
}

func (t *subscriptionTx) LockActiveSubscription(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	timeout := fmt.Sprintf("%dms", t.lockTimeout.Milliseconds())
	if _, err := t.tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return nil, translateError(err, "")
	}

	started := time.Now()
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(subscriberID.String()))
	t.metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return nil, translateError(err, "")
	}

	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE subscriber_id = $1 AND is_active
		FOR UPDATE
	`
	rows, err := t.tx.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, translateError(err, "")
	}
	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, err
	}

	active, err := singleActive(subscriberID, subs)
	if common.KindOf(err) == common.KindNotFound {
		return nil, nil
	}
	return active, err
}

func (t *subscriptionTx) GetSubscription(ctx context.Context, subscriberID, id uuid.UUID) (*models.Subscription, error) {
	return getSubscription(ctx, t.tx, subscriberID, id)
}

func (t *subscriptionTx) Insert(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, subscriber_id, plan_id, start_date, end_date, is_active, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := t.tx.Exec(ctx, query, s.ID, s.SubscriberID, s.PlanID, s.StartDate, s.EndDate, s.IsActive, s.Notes, s.CreatedAt, s.UpdatedAt)
	return translateError(err, "")
}

func (t *subscriptionTx) Update(ctx context.Context, s *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $1, end_date = $2, is_active = $3, notes = $4, updated_at = $5
		WHERE subscriber_id = $6 AND id = $7
	`
	tag, err := t.tx.Exec(ctx, query, s.PlanID, s.EndDate, s.IsActive, s.Notes, s.UpdatedAt, s.SubscriberID, s.ID)
	if err != nil {
		return translateError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return common.NewError(common.KindNotFound, "subscription not found")
	}
	return nil
}

func getSubscription(ctx context.Context, q querier, subscriberID, id uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE subscriber_id = $1 AND id = $2
	`
	s, err := scanSubscription(q.QueryRow(ctx, query, subscriberID, id))
	if err != nil {
		return nil, translateError(err, "subscription not found")
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.SubscriberID, &s.PlanID, &s.StartDate, &s.EndDate, &s.IsActive, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*models.Subscription, error) {
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, translateError(err, "")
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "")
	}
	return subs, nil
}

// singleActive fails loudly when the one-active-subscription rule is broken.
func singleActive(subscriberID uuid.UUID, subs []*models.Subscription) (*models.Subscription, error) {
	switch len(subs) {
	case 0:
		return nil, common.NewError(common.KindNotFound, "no active subscription")
	case 1:
		return subs[0], nil
	default:
		return nil, common.Errorf(common.KindInvariantViolation,
			"subscriber %s has %d active subscriptions", subscriberID, len(subs))
	}
}
