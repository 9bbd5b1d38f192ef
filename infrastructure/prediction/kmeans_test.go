package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/missatech/breach-analytics/domain/entity"
	"github.com/missatech/breach-analytics/infrastructure/repository"
)

func TestClustererConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*ClustererConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*ClustererConfig) {}},
		{name: "zero k", mutate: func(c *ClustererConfig) { c.K = 0 }, wantErr: true},
		{name: "zero restarts", mutate: func(c *ClustererConfig) { c.Restarts = 0 }, wantErr: true},
		{name: "zero iterations", mutate: func(c *ClustererConfig) { c.MaxIterations = 0 }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultClustererConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIncidentClusterer_SegmentsFullRegister(t *testing.T) {
	clusterer, err := NewIncidentClusterer(DefaultClustererConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	snap := entity.NewSnapshot(repository.SampleRegister())
	analysis, err := clusterer.Cluster(snap)
	require.NoError(t, err)

	assert.Equal(t, 4, analysis.K)
	require.Len(t, analysis.Assignments, snap.Len())

	// Every incident carries exactly one label, and all four segments of a
	// spread-out register end up populated.
	seen := make(map[string]bool, snap.Len())
	counts := make(map[int]int)
	for _, a := range analysis.Assignments {
		assert.False(t, seen[a.IncidentID], "incident %s labeled twice", a.IncidentID)
		seen[a.IncidentID] = true
		require.GreaterOrEqual(t, a.Cluster, 0)
		require.Less(t, a.Cluster, 4)
		assert.GreaterOrEqual(t, a.Distance, 0.0)
		counts[a.Cluster]++
	}
	assert.Len(t, counts, 4)

	require.Len(t, analysis.Profiles, 4)
	var sizeSum int
	for label, p := range analysis.Profiles {
		assert.Equal(t, label, p.Label)
		assert.Equal(t, counts[label], p.Size)
		assert.Len(t, p.Centroid, 5)
		assert.Greater(t, p.AvgCost, 0.0)
		sizeSum += p.Size
	}
	assert.Equal(t, snap.Len(), sizeSum)

	assert.Greater(t, analysis.Inertia, 0.0)
	assert.Greater(t, analysis.Silhouette, -1.0)
	assert.Less(t, analysis.Silhouette, 1.0)
}

func TestIncidentClusterer_Deterministic(t *testing.T) {
	snap := entity.NewSnapshot(repository.SampleRegister())

	run := func() *entity.ClusterAnalysis {
		clusterer, err := NewIncidentClusterer(DefaultClustererConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		analysis, err := clusterer.Cluster(snap)
		require.NoError(t, err)
		return analysis
	}

	assert.Equal(t, run(), run(), "same seed and data must reproduce the segmentation exactly")
}

func TestIncidentClusterer_InsufficientData(t *testing.T) {
	clusterer, err := NewIncidentClusterer(DefaultClustererConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = clusterer.Cluster(entity.NewSnapshot(repository.SampleRegister()[:3]))
	var insufficient *entity.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 4, insufficient.Need)
	assert.Equal(t, 3, insufficient.Got)
}

func TestIncidentClusterer_SingleSegment(t *testing.T) {
	cfg := DefaultClustererConfig()
	cfg.K = 1
	clusterer, err := NewIncidentClusterer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	analysis, err := clusterer.Cluster(entity.NewSnapshot(repository.SampleRegister()[:10]))
	require.NoError(t, err)

	for _, a := range analysis.Assignments {
		assert.Equal(t, 0, a.Cluster)
	}
	require.Len(t, analysis.Profiles, 1)
	assert.Equal(t, 10, analysis.Profiles[0].Size)
	assert.Equal(t, 0.0, analysis.Silhouette)
}

func TestIncidentClusterer_IdenticalPointsLeaveSegmentsEmpty(t *testing.T) {
	base := repository.SampleRegister()[0]
	incidents := make([]entity.Incident, 4)
	for i := range incidents {
		inc := base
		inc.ID = string(rune('a' + i))
		incidents[i] = inc
	}

	cfg := DefaultClustererConfig()
	cfg.K = 3
	clusterer, err := NewIncidentClusterer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	analysis, err := clusterer.Cluster(entity.NewSnapshot(incidents))
	require.NoError(t, err)

	// Coincident points collapse onto one centroid; the other segments stay
	// in the profile list with size zero.
	require.Len(t, analysis.Profiles, 3)
	var populated, total int
	for _, p := range analysis.Profiles {
		if p.Size > 0 {
			populated++
		}
		total += p.Size
	}
	assert.Equal(t, 1, populated)
	assert.Equal(t, 4, total)
	assert.Equal(t, 0.0, analysis.Silhouette)
	assert.Equal(t, 0.0, analysis.Inertia)
}
