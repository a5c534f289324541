package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subkeeper/internal/common"
	"subkeeper/internal/models"
)

func TestMemorySubscriptionRepo_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(time.Second, nil)
	subscriberID, planID := uuid.New(), uuid.New()
	now := time.Now()

	sub := models.NewSubscription(subscriberID, planID, now)
	err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
		current, err := tx.LockActiveSubscription(ctx, subscriberID)
		require.NoError(t, err)
		assert.Nil(t, current)
		return tx.Insert(ctx, sub)
	})
	require.NoError(t, err)

	active, err := repo.GetActive(ctx, subscriberID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, active.ID)

	byID, err := repo.GetByID(ctx, subscriberID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, planID, byID.PlanID)

	_, err = repo.GetByID(ctx, uuid.New(), sub.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "other subscribers cannot see the row")
}

func TestMemorySubscriptionRepo_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(time.Second, nil)
	subscriberID := uuid.New()

	err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
		require.NoError(t, tx.Insert(ctx, models.NewSubscription(subscriberID, uuid.New(), time.Now())))
		return common.NewError(common.KindInvalidPlan, "nope")
	})
	assert.ErrorIs(t, err, common.ErrInvalidPlan)

	subs, err := repo.ListBySubscriber(ctx, subscriberID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestMemorySubscriptionRepo_RejectsSecondActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(time.Second, nil)
	subscriberID := uuid.New()

	insert := func() error {
		return repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
			return tx.Insert(ctx, models.NewSubscription(subscriberID, uuid.New(), time.Now()))
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), common.ErrInvariantViolation)

	violations, err := repo.FindInvariantViolations(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestMemorySubscriptionRepo_RejectsActiveWithEndDate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(time.Second, nil)

	sub := models.NewSubscription(uuid.New(), uuid.New(), time.Now())
	end := time.Now()
	sub.EndDate = &end

	err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
		return tx.Insert(ctx, sub)
	})
	assert.ErrorIs(t, err, common.ErrInvariantViolation)
}

func TestMemorySubscriptionRepo_LockTimeout(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(50*time.Millisecond, nil)
	subscriberID := uuid.New()

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
			_, err := tx.LockActiveSubscription(ctx, subscriberID)
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
		_, err := tx.LockActiveSubscription(ctx, subscriberID)
		return err
	})
	// The waiter gave up; only the holder still references the lock.
	assert.Equal(t, 1, repo.(*memorySubscriptionRepo).lockCount())
	close(done)
	assert.ErrorIs(t, err, common.ErrConcurrencyTimeout)

	// Other subscribers are never blocked.
	err = repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
		_, err := tx.LockActiveSubscription(ctx, uuid.New())
		return err
	})
	assert.NoError(t, err)
}

func TestMemorySubscriptionRepo_LockReleasedAfterTx(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(50*time.Millisecond, nil)
	subscriberID := uuid.New()

	for range 3 {
		err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
			_, err := tx.LockActiveSubscription(ctx, subscriberID)
			return err
		})
		require.NoError(t, err)
	}
}

func TestMemorySubscriptionRepo_LocksAreDroppedWhenIdle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(time.Second, nil)

	for range 50 {
		err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
			_, err := tx.LockActiveSubscription(ctx, uuid.New())
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, repo.(*memorySubscriptionRepo).lockCount())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	subscriberID := uuid.New()
	hold := make(chan struct{})
	held := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
			_, err := tx.LockActiveSubscription(ctx, subscriberID)
			close(held)
			<-hold
			return err
		})
	}()
	<-held

	err := repo.RunInTx(cancelled, func(ctx context.Context, tx SubscriptionTx) error {
		_, err := tx.LockActiveSubscription(ctx, subscriberID)
		return err
	})
	assert.ErrorIs(t, err, common.ErrConcurrencyTimeout)

	close(hold)
	<-finished
	assert.Equal(t, 0, repo.(*memorySubscriptionRepo).lockCount())
}

func TestMemorySubscriptionRepo_ConcurrentSupersede(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepo(5*time.Second, nil)
	subscriberID := uuid.New()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.RunInTx(ctx, func(ctx context.Context, tx SubscriptionTx) error {
				current, err := tx.LockActiveSubscription(ctx, subscriberID)
				if err != nil {
					return err
				}
				now := time.Now()
				if current != nil {
					current.Deactivate(now, "")
					if err := tx.Update(ctx, current); err != nil {
						return err
					}
				}
				return tx.Insert(ctx, models.NewSubscription(subscriberID, uuid.New(), now))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, repo.(*memorySubscriptionRepo).lockCount())

	subs, err := repo.ListBySubscriber(ctx, subscriberID)
	require.NoError(t, err)
	assert.Len(t, subs, 20)

	active := 0
	for _, s := range subs {
		if s.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestMemoryPlanRepo(t *testing.T) {
	ctx := context.Background()
	basic := &models.Plan{ID: uuid.New(), Name: "Basic", IsActive: true, Features: []models.Feature{
		{ID: uuid.New(), Name: "reports", IsActive: true},
		{ID: uuid.New(), Name: "legacy", IsActive: false},
		{ID: uuid.New(), Name: "export", IsActive: true},
	}}
	pro := &models.Plan{ID: uuid.New(), Name: "Advanced", IsActive: true}
	retired := &models.Plan{ID: uuid.New(), Name: "Old", IsActive: false}
	repo := NewMemoryPlanRepo(basic, pro, retired)

	plan, err := repo.FindPlan(ctx, basic.ID)
	require.NoError(t, err)
	require.Len(t, plan.Features, 2)
	assert.Equal(t, "reports", plan.Features[0].Name)
	assert.Equal(t, "export", plan.Features[1].Name)
	assert.Equal(t, 2, plan.FeatureCount())

	plan, err = repo.FindPlan(ctx, retired.ID)
	require.NoError(t, err)
	assert.False(t, plan.IsActive)

	_, err = repo.FindPlan(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	plans, err := repo.ListActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Advanced", plans[0].Name)
	assert.Equal(t, "Basic", plans[1].Name)

	byID, err := repo.FindPlansByIDs(ctx, []uuid.UUID{basic.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
	assert.Contains(t, byID, basic.ID)
}
