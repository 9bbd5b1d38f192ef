package prediction

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/missatech/breach-analytics/domain/entity"
)

// ClustererConfig controls incident clustering.
type ClustererConfig struct {
	K             int   `mapstructure:"k"`
	Seed          int64 `mapstructure:"seed"`
	Restarts      int   `mapstructure:"restarts"`
	MaxIterations int   `mapstructure:"max_iterations"`
}

// DefaultClustererConfig returns the standard clustering shape: four
// segments, ten seeded restarts keeping the lowest-inertia run, and a
// generous iteration cap Lloyd's algorithm rarely reaches.
func DefaultClustererConfig() ClustererConfig {
	return ClustererConfig{
		K:             4,
		Seed:          42,
		Restarts:      10,
		MaxIterations: 300,
	}
}

// Validate checks the configuration bounds.
func (c ClustererConfig) Validate() error {
	if c.K < 1 {
		return entity.NewValidationError("k", "cluster count must be at least 1")
	}
	if c.Restarts < 1 {
		return entity.NewValidationError("restarts", "restart count must be at least 1")
	}
	if c.MaxIterations < 1 {
		return entity.NewValidationError("max_iterations", "iteration cap must be at least 1")
	}
	return nil
}

// IncidentClusterer partitions incidents into behavioral segments with
// k-means over five standardized features (sensitivity, exposure, cost,
// detection delay, response delay). Centroid seeding uses the k-means++
// scheme; every restart derives its rng from the configured seed, so the
// chosen segmentation is reproducible.
type IncidentClusterer struct {
	cfg    ClustererConfig
	logger *zap.Logger
}

// NewIncidentClusterer creates a clusterer.
func NewIncidentClusterer(cfg ClustererConfig, logger *zap.Logger) (*IncidentClusterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentClusterer{cfg: cfg, logger: logger.Named("clusterer")}, nil
}

// Config returns the clustering configuration.
func (c *IncidentClusterer) Config() ClustererConfig { return c.cfg }

// Cluster assigns every incident in the snapshot to exactly one of k
// segments and profiles each segment. Fewer incidents than k fail with
// InsufficientDataError. A segment left empty by convergence keeps its
// label with size zero.
func (c *IncidentClusterer) Cluster(snap *entity.Snapshot) (*entity.ClusterAnalysis, error) {
	n := snap.Len()
	if n < c.cfg.K {
		return nil, entity.NewInsufficientDataError("incident clustering", c.cfg.K, n)
	}
	start := time.Now()

	incidents := snap.Incidents()
	raw := make([][]float64, n)
	for i, inc := range incidents {
		raw[i] = clusterFeatures(inc)
	}
	scaler := fitStandardizer(raw)
	points := scaler.transformAll(raw)

	best := c.bestRun(points)

	analysis := &entity.ClusterAnalysis{
		K:           c.cfg.K,
		Assignments: make([]entity.ClusterAssignment, n),
		Inertia:     best.inertia,
		Silhouette:  silhouette(points, best.labels, c.cfg.K),
	}
	for i, inc := range incidents {
		analysis.Assignments[i] = entity.ClusterAssignment{
			IncidentID: inc.ID,
			Cluster:    best.labels[i],
			Distance:   math.Sqrt(best.distancesSq[i]),
		}
	}
	analysis.Profiles = c.profiles(incidents, best)

	c.logger.Info("incidents clustered",
		zap.Int("incidents", n),
		zap.Int("k", c.cfg.K),
		zap.Int64("seed", c.cfg.Seed),
		zap.Float64("inertia", analysis.Inertia),
		zap.Float64("silhouette", analysis.Silhouette),
		zap.Duration("elapsed", time.Since(start)))

	return analysis, nil
}

type clusterRun struct {
	labels      []int
	centroids   [][]float64
	distancesSq []float64
	inertia     float64
}

// bestRun performs the configured number of seeded k-means runs and keeps
// the one with the lowest inertia. Ties keep the earliest restart.
func (c *IncidentClusterer) bestRun(points [][]float64) clusterRun {
	var best clusterRun
	for r := 0; r < c.cfg.Restarts; r++ {
		rng := rand.New(rand.NewSource(c.cfg.Seed + int64(r)))
		run := c.lloyd(points, rng)
		if r == 0 || run.inertia < best.inertia {
			best = run
		}
	}
	return best
}

func (c *IncidentClusterer) lloyd(points [][]float64, rng *rand.Rand) clusterRun {
	k := c.cfg.K
	dims := len(points[0])
	centroids := c.seedCentroids(points, rng)
	labels := make([]int, len(points))
	distSq := make([]float64, len(points))

	assign := func() bool {
		changed := false
		for i, p := range points {
			bestLabel, bestDist := 0, math.Inf(1)
			for j, centroid := range centroids {
				if d := squaredDistance(p, centroid); d < bestDist {
					bestLabel, bestDist = j, d
				}
			}
			if labels[i] != bestLabel {
				labels[i] = bestLabel
				changed = true
			}
			distSq[i] = bestDist
		}
		return changed
	}

	assign()
	for iter := 0; iter < c.cfg.MaxIterations; iter++ {
		sums := make([][]float64, k)
		counts := make([]int, k)
		for j := range sums {
			sums[j] = make([]float64, dims)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for j := range centroids {
			// An empty segment keeps its previous centroid.
			if counts[j] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[j]), sums[j])
			centroids[j] = sums[j]
		}

		// Labels always reflect the centroids we return: the loop exits
		// only after a reassignment pass.
		if !assign() {
			break
		}
	}

	var inertia float64
	for _, d := range distSq {
		inertia += d
	}
	return clusterRun{labels: labels, centroids: centroids, distancesSq: distSq, inertia: inertia}
}

// seedCentroids picks initial centroids with the k-means++ scheme: the
// first uniformly, each next with probability proportional to squared
// distance from the nearest chosen centroid.
func (c *IncidentClusterer) seedCentroids(points [][]float64, rng *rand.Rand) [][]float64 {
	k := c.cfg.K
	centroids := make([][]float64, 0, k)
	first := append([]float64(nil), points[rng.Intn(len(points))]...)
	centroids = append(centroids, first)

	distSq := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			nearest := math.Inf(1)
			for _, centroid := range centroids {
				if d := squaredDistance(p, centroid); d < nearest {
					nearest = d
				}
			}
			distSq[i] = nearest
			total += nearest
		}

		var next int
		if total == 0 {
			// Every remaining point coincides with a centroid.
			next = rng.Intn(len(points))
		} else {
			target := rng.Float64() * total
			cumulative := 0.0
			next = len(points) - 1
			for i, d := range distSq {
				cumulative += d
				if cumulative >= target {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), points[next]...))
	}
	return centroids
}

func (c *IncidentClusterer) profiles(incidents []entity.Incident, run clusterRun) []entity.ClusterProfile {
	k := c.cfg.K
	profiles := make([]entity.ClusterProfile, k)
	sums := make([][5]float64, k)
	counts := make([]int, k)

	for i, inc := range incidents {
		label := run.labels[i]
		counts[label]++
		sums[label][0] += float64(inc.SensitivityLevel)
		sums[label][1] += float64(inc.RecordsExposed)
		sums[label][2] += inc.Cost
		sums[label][3] += inc.DetectionTimeDays
		sums[label][4] += inc.ResponseTimeDays
	}

	for j := 0; j < k; j++ {
		profiles[j] = entity.ClusterProfile{
			Label:    j,
			Size:     counts[j],
			Centroid: append([]float64(nil), run.centroids[j]...),
		}
		if counts[j] == 0 {
			continue
		}
		n := float64(counts[j])
		profiles[j].AvgSensitivity = sums[j][0] / n
		profiles[j].AvgRecords = sums[j][1] / n
		profiles[j].AvgCost = sums[j][2] / n
		profiles[j].AvgDetectionDays = sums[j][3] / n
		profiles[j].AvgResponseDays = sums[j][4] / n
	}
	return profiles
}

// silhouette computes the mean silhouette coefficient over all points.
// Points in singleton segments score zero; fewer than two populated
// segments score zero overall.
func silhouette(points [][]float64, labels []int, k int) float64 {
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}
	populated := 0
	for _, c := range counts {
		if c > 0 {
			populated++
		}
	}
	if populated < 2 {
		return 0
	}

	var total float64
	for i, p := range points {
		own := labels[i]
		if counts[own] <= 1 {
			continue
		}

		sums := make([]float64, k)
		for j, q := range points {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(squaredDistance(p, q))
		}

		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for l := 0; l < k; l++ {
			if l == own || counts[l] == 0 {
				continue
			}
			if mean := sums[l] / float64(counts[l]); mean < b {
				b = mean
			}
		}

		if max := math.Max(a, b); max > 0 {
			total += (b - a) / max
		}
	}
	return total / float64(len(points))
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
