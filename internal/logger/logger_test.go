package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subkeeper/internal/common"
	"subkeeper/internal/logger"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_InjectsContextValues(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))

	subscriberID := uuid.New()
	ctx := common.WithSubscriberID(context.Background(), subscriberID)
	ctx = context.WithValue(ctx, common.RequestIDKey, "req-1")

	log.InfoContext(ctx, "subscription created")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "subscription created", entry["msg"])
	assert.Equal(t, subscriberID.String(), entry["subscriber_id"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestNew_OmitsMissingContextValues(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf))

	log.InfoContext(context.Background(), "plain")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "subscriber_id")
	assert.NotContains(t, entry, "request_id")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevelName("warn"))

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestWithLevelName_UnknownKeepsDefault(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevelName("loud"))

	log.Debug("dropped")
	assert.Zero(t, buf.Len())
	log.Info("kept")
	assert.NotZero(t, buf.Len())
}

func TestWithEnvironment(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithEnvironment("production", "subkeeper"))

	log.Debug("dropped")
	assert.Zero(t, buf.Len())

	log.Info("started")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "subkeeper", entry["service"])
	assert.Equal(t, "production", entry["env"])
}

func TestWithAttrAndGroup(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithAttr(slog.String("component", "cache")))

	ctx := context.WithValue(context.Background(), common.RequestIDKey, "req-2")
	log.WithGroup("job").InfoContext(ctx, "ran", slog.Int("count", 3))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "cache", entry["component"])
	job, ok := entry["job"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, job["count"])
	assert.Equal(t, "req-2", job["request_id"])
}

func TestError(t *testing.T) {
	assert.Equal(t, "error", logger.Error(assert.AnError).Key)
	assert.Equal(t, assert.AnError.Error(), logger.Error(assert.AnError).Value.String())
	assert.Equal(t, "", logger.Error(nil).Value.String())
}
