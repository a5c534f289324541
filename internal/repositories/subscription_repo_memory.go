package repositories

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"subkeeper/internal/common"
	"subkeeper/internal/metrics"
	"subkeeper/internal/models"
)

// memorySubscriptionRepo keeps subscriptions in process. Each subscriber has a
// one-slot semaphore standing in for the advisory lock; writes are buffered
// per transaction and applied together on commit.
type memorySubscriptionRepo struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*models.Subscription

	locksMu sync.Mutex
	locks   map[uuid.UUID]*subscriberLock

	lockTimeout time.Duration
	metrics     *metrics.Collector
}

func NewMemorySubscriptionRepo(lockTimeout time.Duration, m *metrics.Collector) SubscriptionRepository {
	return &memorySubscriptionRepo{
		subscriptions: make(map[uuid.UUID]*models.Subscription),
		locks:         make(map[uuid.UUID]*subscriberLock),
		lockTimeout:   lockTimeout,
		metrics:       m,
	}
}

func (r *memorySubscriptionRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx SubscriptionTx) error) error {
	tx := &memorySubscriptionTx{repo: r, held: make(map[uuid.UUID]chan struct{})}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.commit(tx.writes)
}

func (r *memorySubscriptionRepo) GetActive(_ context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return singleActive(subscriberID, r.activeLocked(subscriberID))
}

func (r *memorySubscriptionRepo) GetByID(_ context.Context, subscriberID, id uuid.UUID) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(subscriberID, id)
}

func (r *memorySubscriptionRepo) ListBySubscriber(_ context.Context, subscriberID uuid.UUID) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Subscription
	for _, s := range r.subscriptions {
		if s.SubscriberID == subscriberID {
			out = append(out, s.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Subscription) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *memorySubscriptionRepo) FindInvariantViolations(context.Context) ([]InvariantViolation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[uuid.UUID][]uuid.UUID)
	for _, s := range r.subscriptions {
		if s.IsActive {
			active[s.SubscriberID] = append(active[s.SubscriberID], s.ID)
		}
	}

	var out []InvariantViolation
	for subscriberID, ids := range active {
		if len(ids) > 1 {
			out = append(out, InvariantViolation{SubscriberID: subscriberID, SubscriptionIDs: ids})
		}
	}
	return out, nil
}

func (r *memorySubscriptionRepo) activeLocked(subscriberID uuid.UUID) []*models.Subscription {
	var out []*models.Subscription
	for _, s := range r.subscriptions {
		if s.SubscriberID == subscriberID && s.IsActive {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (r *memorySubscriptionRepo) getLocked(subscriberID, id uuid.UUID) (*models.Subscription, error) {
	s, ok := r.subscriptions[id]
	if !ok || s.SubscriberID != subscriberID {
		return nil, common.NewError(common.KindNotFound, "subscription not found")
	}
	return s.Clone(), nil
}

// commit applies writes atomically, enforcing the same constraints as the
// database schema.
func (r *memorySubscriptionRepo) commit(writes []*models.Subscription) error {
	if len(writes) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[uuid.UUID]*models.Subscription, len(writes))
	touched := make(map[uuid.UUID]struct{})
	for _, w := range writes {
		if w.IsActive != (w.EndDate == nil) {
			return common.Errorf(common.KindInvariantViolation, "subscription %s: active flag disagrees with end date", w.ID)
		}
		next[w.ID] = w
		touched[w.SubscriberID] = struct{}{}
	}

	for subscriberID := range touched {
		active := 0
		for id, s := range r.subscriptions {
			if w, ok := next[id]; ok {
				s = w
			}
			if s.SubscriberID == subscriberID && s.IsActive {
				active++
			}
		}
		for id, w := range next {
			if _, exists := r.subscriptions[id]; !exists && w.SubscriberID == subscriberID && w.IsActive {
				active++
			}
		}
		if active > 1 {
			return common.Errorf(common.KindInvariantViolation, "subscriber %s would hold %d active subscriptions", subscriberID, active)
		}
	}

	for id, w := range next {
		r.subscriptions[id] = w
	}
	return nil
}

// subscriberLock is dropped from the map once nobody holds or waits for it,
// so the map only grows with concurrently active subscribers.
type subscriberLock struct {
	sem  chan struct{}
	refs int
}

func (r *memorySubscriptionRepo) acquireLockRef(subscriberID uuid.UUID) chan struct{} {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[subscriberID]
	if !ok {
		l = &subscriberLock{sem: make(chan struct{}, 1)}
		r.locks[subscriberID] = l
	}
	l.refs++
	return l.sem
}

func (r *memorySubscriptionRepo) dropLockRef(subscriberID uuid.UUID) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[subscriberID]
	if !ok {
		return
	}
	if l.refs--; l.refs <= 0 {
		delete(r.locks, subscriberID)
	}
}

func (r *memorySubscriptionRepo) lockCount() int {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	return len(r.locks)
}

type memorySubscriptionTx struct {
	repo   *memorySubscriptionRepo
	held   map[uuid.UUID]chan struct{}
	writes []*models.Subscription
}

func (t *memorySubscriptionTx) LockActiveSubscription(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	if _, ok := t.held[subscriberID]; !ok {
		sem := t.repo.acquireLockRef(subscriberID)
		timer := time.NewTimer(t.repo.lockTimeout)
		defer timer.Stop()

		started := time.Now()
		select {
		case sem <- struct{}{}:
			t.repo.metrics.ObserveLockWait(time.Since(started))
			t.held[subscriberID] = sem
		case <-timer.C:
			t.repo.metrics.ObserveLockWait(time.Since(started))
			t.repo.dropLockRef(subscriberID)
			return nil, common.NewError(common.KindConcurrencyTimeout, "timed out waiting for the subscriber lock")
		case <-ctx.Done():
			t.repo.dropLockRef(subscriberID)
			return nil, common.WrapError(common.KindConcurrencyTimeout, "gave up waiting for the subscriber lock", ctx.Err())
		}
	}

	var active []*models.Subscription
	for _, s := range t.view(subscriberID) {
		if s.IsActive {
			active = append(active, s)
		}
	}
	s, err := singleActive(subscriberID, active)
	if common.KindOf(err) == common.KindNotFound {
		return nil, nil
	}
	return s, err
}

func (t *memorySubscriptionTx) GetSubscription(_ context.Context, subscriberID, id uuid.UUID) (*models.Subscription, error) {
	for _, s := range t.view(subscriberID) {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, common.NewError(common.KindNotFound, "subscription not found")
}

func (t *memorySubscriptionTx) Insert(_ context.Context, s *models.Subscription) error {
	for _, w := range t.writes {
		if w.ID == s.ID {
			return common.Errorf(common.KindInvariantViolation, "subscription %s already exists", s.ID)
		}
	}
	t.repo.mu.RLock()
	_, exists := t.repo.subscriptions[s.ID]
	t.repo.mu.RUnlock()
	if exists {
		return common.Errorf(common.KindInvariantViolation, "subscription %s already exists", s.ID)
	}

	t.writes = append(t.writes, s.Clone())
	return nil
}

func (t *memorySubscriptionTx) Update(ctx context.Context, s *models.Subscription) error {
	if _, err := t.GetSubscription(ctx, s.SubscriberID, s.ID); err != nil {
		return err
	}
	for i, w := range t.writes {
		if w.ID == s.ID {
			t.writes[i] = s.Clone()
			return nil
		}
	}
	t.writes = append(t.writes, s.Clone())
	return nil
}

// view is the subscriber's rows as this transaction sees them.
func (t *memorySubscriptionTx) view(subscriberID uuid.UUID) []*models.Subscription {
	t.repo.mu.RLock()
	rows := make(map[uuid.UUID]*models.Subscription)
	for id, s := range t.repo.subscriptions {
		if s.SubscriberID == subscriberID {
			rows[id] = s.Clone()
		}
	}
	t.repo.mu.RUnlock()

	for _, w := range t.writes {
		if w.SubscriberID == subscriberID {
			rows[w.ID] = w.Clone()
		}
	}

	out := make([]*models.Subscription, 0, len(rows))
	for _, s := range rows {
		out = append(out, s)
	}
	return out
}

func (t *memorySubscriptionTx) release() {
	for subscriberID, sem := range t.held {
		<-sem
		t.repo.dropLockRef(subscriberID)
	}
}
