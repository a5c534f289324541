package background

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subkeeper/internal/caching"
	"subkeeper/internal/logger"
	"subkeeper/internal/metrics"
	"subkeeper/internal/repositories"
)

type MockViolationFinder struct {
	mock.Mock
}

func (m *MockViolationFinder) FindInvariantViolations(ctx context.Context) ([]repositories.InvariantViolation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.InvariantViolation), args.Error(1)
}

type MockCatalogWarmer struct {
	mock.Mock
}

func (m *MockCatalogWarmer) WarmPlanList(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

var testIntervals = Intervals{
	CachePurge:     time.Minute,
	InvariantAudit: 10 * time.Minute,
	CatalogWarm:    5 * time.Minute,
}

func TestNewJobScheduler_RegistersJobsWithDependencies(t *testing.T) {
	js, err := NewJobScheduler(testIntervals, Dependencies{
		Cache:   caching.NewMemoryStore(nil, 10),
		Auditor: new(MockViolationFinder),
	})
	require.NoError(t, err)
	defer js.Stop()

	assert.Equal(t, []string{JobCachePurge, JobInvariantAudit}, js.JobNames())
}

func TestNewJobScheduler_SkipsDisabledIntervals(t *testing.T) {
	js, err := NewJobScheduler(Intervals{CachePurge: 0, InvariantAudit: time.Minute}, Dependencies{
		Cache:   caching.NewMemoryStore(nil, 10),
		Auditor: new(MockViolationFinder),
	})
	require.NoError(t, err)
	defer js.Stop()

	assert.Equal(t, []string{JobInvariantAudit}, js.JobNames())
}

func TestPurgeCache(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := caching.NewMemoryStore(clock, 10)
	require.NoError(t, store.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("b"), time.Hour))
	clock.Advance(2 * time.Second)

	js, err := NewJobScheduler(testIntervals, Dependencies{Cache: store}, WithClock(clock))
	require.NoError(t, err)
	defer js.Stop()

	require.NoError(t, js.PurgeCache(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestAuditInvariants_LogsAndCountsEachViolation(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
	collector := metrics.New()

	subscriber := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	finder := new(MockViolationFinder)
	finder.On("FindInvariantViolations", mock.Anything).Return([]repositories.InvariantViolation{
		{SubscriberID: subscriber, SubscriptionIDs: ids},
	}, nil).Once()

	js, err := NewJobScheduler(testIntervals, Dependencies{Auditor: finder}, WithLogger(log), WithMetrics(collector))
	require.NoError(t, err)
	defer js.Stop()
	buf.Reset()

	require.NoError(t, js.AuditInvariants(ctx))
	finder.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.InvariantViolations))

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, subscriber.String(), line["subscriber_id"])
	assert.ElementsMatch(t, []any{ids[0].String(), ids[1].String()}, line["subscription_ids"])
}

func TestAuditInvariants_PropagatesStoreError(t *testing.T) {
	finder := new(MockViolationFinder)
	finder.On("FindInvariantViolations", mock.Anything).Return(nil, errors.New("db down"))

	js, err := NewJobScheduler(testIntervals, Dependencies{Auditor: finder})
	require.NoError(t, err)
	defer js.Stop()

	assert.EqualError(t, js.AuditInvariants(context.Background()), "db down")
}

func TestWarmCatalog_RunsAtStart(t *testing.T) {
	warmer := new(MockCatalogWarmer)
	warmed := make(chan struct{}, 1)
	warmer.On("WarmPlanList", mock.Anything).Return(3, nil).Run(func(mock.Arguments) {
		select {
		case warmed <- struct{}{}:
		default:
		}
	})

	js, err := NewJobScheduler(Intervals{CatalogWarm: time.Hour}, Dependencies{Catalog: warmer})
	require.NoError(t, err)
	js.Start()
	defer js.Stop()

	select {
	case <-warmed:
	case <-time.After(5 * time.Second):
		t.Fatal("plan list was not warmed at start")
	}
}
