package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/missatech/breach-analytics/domain/entity"
)

func testReport() *entity.ExecutiveReport {
	return &entity.ExecutiveReport{
		ID:            uuid.New(),
		RunID:         uuid.New(),
		IncidentCount: 100,
	}
}

func TestMemoryReportCache_StoreAndFetch(t *testing.T) {
	cache := NewMemoryReportCache(4)
	ctx := context.Background()

	first := testReport()
	second := testReport()
	require.NoError(t, cache.StoreReport(ctx, first))
	require.NoError(t, cache.StoreReport(ctx, second))

	latest, err := cache.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)

	got, err := cache.ReportByRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestMemoryReportCache_MissBeforeFirstStore(t *testing.T) {
	cache := NewMemoryReportCache(4)

	_, err := cache.LatestReport(context.Background())
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = cache.ReportByRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryReportCache_EvictsOldestRun(t *testing.T) {
	cache := NewMemoryReportCache(2)
	ctx := context.Background()

	first := testReport()
	second := testReport()
	third := testReport()
	require.NoError(t, cache.StoreReport(ctx, first))
	require.NoError(t, cache.StoreReport(ctx, second))
	require.NoError(t, cache.StoreReport(ctx, third))

	_, err := cache.ReportByRun(ctx, first.RunID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = cache.ReportByRun(ctx, second.RunID)
	assert.NoError(t, err)
	_, err = cache.ReportByRun(ctx, third.RunID)
	assert.NoError(t, err)
}

func TestRedisConfig_Validate(t *testing.T) {
	cfg := DefaultRedisConfig()
	require.NoError(t, cfg.Validate())

	cfg.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultRedisConfig()
	cfg.TTL = 0
	assert.Error(t, cfg.Validate())
}
