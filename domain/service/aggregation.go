package service

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// Dimension identifies a grouping axis for cost aggregation.
type Dimension string

const (
	DimensionSystem     Dimension = "system"
	DimensionRegion     Dimension = "region"
	DimensionAttackType Dimension = "attack_type"
)

// ParseDimension maps a wire-level dimension name to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case DimensionSystem, DimensionRegion, DimensionAttackType:
		return Dimension(s), nil
	default:
		return "", entity.NewValidationError("dimension", fmt.Sprintf("unknown dimension %q", s))
	}
}

// CostAggregator groups incidents along one or more dimensions and computes
// cost, exposure, and timing aggregates. All operations are pure functions
// of the snapshot they receive.
type CostAggregator struct {
	logger *zap.Logger
}

// NewCostAggregator creates a cost aggregator.
func NewCostAggregator(logger *zap.Logger) *CostAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostAggregator{logger: logger.Named("aggregation")}
}

type groupAccumulator struct {
	key        string
	costs      []float64
	detections []float64
	responses  []float64
	records    int64
}

// CostByDimension returns one aggregate per distinct value combination of
// the given dimensions, ordered by descending total cost with ties broken
// by ascending group key. An empty snapshot yields an empty result, not an
// error.
func (a *CostAggregator) CostByDimension(snap *entity.Snapshot, dims ...Dimension) ([]entity.AggregateGroup, error) {
	if len(dims) == 0 {
		return nil, entity.NewValidationError("dimension", "at least one grouping dimension is required")
	}
	for _, d := range dims {
		if _, err := ParseDimension(string(d)); err != nil {
			return nil, err
		}
	}

	accs := make(map[string]*groupAccumulator)
	for _, inc := range snap.Incidents() {
		key := groupKey(inc, dims)
		acc, ok := accs[key]
		if !ok {
			acc = &groupAccumulator{key: key}
			accs[key] = acc
		}
		acc.costs = append(acc.costs, inc.Cost)
		acc.detections = append(acc.detections, inc.DetectionTimeDays)
		acc.responses = append(acc.responses, inc.ResponseTimeDays)
		acc.records += inc.RecordsExposed
	}

	groups := make([]entity.AggregateGroup, 0, len(accs))
	for _, acc := range accs {
		n := len(acc.costs)
		total := stableSum(acc.costs)
		groups = append(groups, entity.AggregateGroup{
			Key:              acc.key,
			IncidentCount:    n,
			TotalCost:        total,
			AvgCost:          total / float64(n),
			TotalRecords:     acc.records,
			AvgDetectionDays: stableMean(acc.detections),
			AvgResponseDays:  stableMean(acc.responses),
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].TotalCost != groups[j].TotalCost {
			return groups[i].TotalCost > groups[j].TotalCost
		}
		return groups[i].Key < groups[j].Key
	})

	a.logger.Debug("cost aggregation computed",
		zap.Strings("dimensions", dimensionNames(dims)),
		zap.Int("incidents", snap.Len()),
		zap.Int("groups", len(groups)))

	return groups, nil
}

// TopCostliestIncidents returns the n costliest incidents in descending
// cost order, ties broken by ascending incident ID. n larger than the
// snapshot returns every incident.
func (a *CostAggregator) TopCostliestIncidents(snap *entity.Snapshot, n int) ([]entity.Incident, error) {
	if n < 0 {
		return nil, entity.NewValidationError("n", "top incident count cannot be negative")
	}
	sorted := sortedByCostDesc(snap.Incidents())
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// DetectionBySystem summarizes detection and response timing per business
// system, ordered by descending mean detection delay with ties broken by
// ascending system name.
func (a *CostAggregator) DetectionBySystem(snap *entity.Snapshot) ([]entity.SystemDetectionStats, error) {
	type timing struct {
		detections []float64
		responses  []float64
	}
	bySystem := make(map[string]*timing)
	for _, inc := range snap.Incidents() {
		t, ok := bySystem[inc.System]
		if !ok {
			t = &timing{}
			bySystem[inc.System] = t
		}
		t.detections = append(t.detections, inc.DetectionTimeDays)
		t.responses = append(t.responses, inc.ResponseTimeDays)
	}

	stats := make([]entity.SystemDetectionStats, 0, len(bySystem))
	for system, t := range bySystem {
		minDet, maxDet := t.detections[0], t.detections[0]
		for _, d := range t.detections[1:] {
			if d < minDet {
				minDet = d
			}
			if d > maxDet {
				maxDet = d
			}
		}
		stats = append(stats, entity.SystemDetectionStats{
			System:           system,
			IncidentCount:    len(t.detections),
			AvgDetectionDays: stableMean(t.detections),
			AvgResponseDays:  stableMean(t.responses),
			MinDetectionDays: minDet,
			MaxDetectionDays: maxDet,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].AvgDetectionDays != stats[j].AvgDetectionDays {
			return stats[i].AvgDetectionDays > stats[j].AvgDetectionDays
		}
		return stats[i].System < stats[j].System
	})
	return stats, nil
}

// AttackVectorAnalysis profiles each attack type by frequency, cost, and
// timing, including its share of the grand total cost. Ordered by
// descending total cost with ties broken by ascending attack type.
func (a *CostAggregator) AttackVectorAnalysis(snap *entity.Snapshot) ([]entity.AttackVectorStats, error) {
	type vector struct {
		costs      []float64
		records    []float64
		detections []float64
		responses  []float64
	}
	byAttack := make(map[string]*vector)
	var allCosts []float64
	for _, inc := range snap.Incidents() {
		v, ok := byAttack[inc.AttackType]
		if !ok {
			v = &vector{}
			byAttack[inc.AttackType] = v
		}
		v.costs = append(v.costs, inc.Cost)
		v.records = append(v.records, float64(inc.RecordsExposed))
		v.detections = append(v.detections, inc.DetectionTimeDays)
		v.responses = append(v.responses, inc.ResponseTimeDays)
		allCosts = append(allCosts, inc.Cost)
	}
	grandTotal := stableSum(allCosts)

	stats := make([]entity.AttackVectorStats, 0, len(byAttack))
	for attack, v := range byAttack {
		total := stableSum(v.costs)
		share := 0.0
		if grandTotal > 0 {
			share = total / grandTotal
		}
		stats = append(stats, entity.AttackVectorStats{
			AttackType:       attack,
			Frequency:        len(v.costs),
			TotalCost:        total,
			AvgCost:          total / float64(len(v.costs)),
			AvgRecords:       stableMean(v.records),
			AvgDetectionDays: stableMean(v.detections),
			AvgResponseDays:  stableMean(v.responses),
			CostShare:        share,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].TotalCost != stats[j].TotalCost {
			return stats[i].TotalCost > stats[j].TotalCost
		}
		return stats[i].AttackType < stats[j].AttackType
	})
	return stats, nil
}

// SensitivityImpact summarizes breach impact per data sensitivity level,
// ordered by descending level. Only levels present in the snapshot appear.
func (a *CostAggregator) SensitivityImpact(snap *entity.Snapshot) ([]entity.SensitivityImpact, error) {
	type impact struct {
		perRecord     []float64
		totals        []float64
		notifications int
	}
	byLevel := make(map[int]*impact)
	for _, inc := range snap.Incidents() {
		im, ok := byLevel[inc.SensitivityLevel]
		if !ok {
			im = &impact{}
			byLevel[inc.SensitivityLevel] = im
		}
		im.perRecord = append(im.perRecord, inc.CostPerRecord)
		im.totals = append(im.totals, inc.Cost)
		if inc.NotificationRequired {
			im.notifications++
		}
	}

	impacts := make([]entity.SensitivityImpact, 0, len(byLevel))
	for level, im := range byLevel {
		impacts = append(impacts, entity.SensitivityImpact{
			SensitivityLevel:      level,
			IncidentCount:         len(im.totals),
			AvgCostPerRecord:      stableMean(im.perRecord),
			AvgTotalCost:          stableMean(im.totals),
			NotificationsRequired: im.notifications,
		})
	}

	sort.Slice(impacts, func(i, j int) bool {
		return impacts[i].SensitivityLevel > impacts[j].SensitivityLevel
	})
	return impacts, nil
}

// paretoThreshold is the cumulative cost share that defines the critical
// incident set.
const paretoThreshold = 0.80

// Pareto computes the cost concentration curve over incidents sorted by
// descending cost. The cumulative share sequence is non-decreasing and its
// final element is exactly 1.
func (a *CostAggregator) Pareto(snap *entity.Snapshot) (*entity.ParetoAnalysis, error) {
	if snap.Len() == 0 {
		return nil, entity.NewInsufficientDataError("pareto", 1, 0)
	}

	sorted := sortedByCostDesc(snap.Incidents())
	costs := make([]float64, len(sorted))
	for i, inc := range sorted {
		costs[i] = inc.Cost
	}
	total := stableSum(costs)

	analysis := &entity.ParetoAnalysis{
		TotalCost:       total,
		CumulativeShare: make([]float64, len(sorted)),
	}

	cumulative := 0.0
	criticalIdx := -1
	for i, c := range costs {
		cumulative += c
		share := 1.0
		if total > 0 {
			share = cumulative / total
		}
		analysis.CumulativeShare[i] = share
		if criticalIdx < 0 && share >= paretoThreshold {
			criticalIdx = i
			analysis.CriticalCostCovered = cumulative
		}
	}
	// Pin the endpoint so accumulated rounding never leaves the curve
	// short of 100%.
	analysis.CumulativeShare[len(costs)-1] = 1.0

	if criticalIdx < 0 {
		criticalIdx = len(costs) - 1
		analysis.CriticalCostCovered = total
	}
	analysis.CriticalIncidentCount = criticalIdx + 1
	analysis.CriticalIncidentFraction = float64(criticalIdx+1) / float64(len(costs))

	return analysis, nil
}

// Overview computes the headline figures for the executive summary.
func (a *CostAggregator) Overview(snap *entity.Snapshot) (*entity.DatasetOverview, error) {
	if snap.Len() == 0 {
		return nil, entity.NewInsufficientDataError("overview", 1, 0)
	}

	var (
		costs      []float64
		detections []float64
		responses  []float64
	)
	overview := &entity.DatasetOverview{TotalIncidents: snap.Len()}
	attackCounts := make(map[string]int)
	for _, inc := range snap.Incidents() {
		costs = append(costs, inc.Cost)
		detections = append(detections, inc.DetectionTimeDays)
		responses = append(responses, inc.ResponseTimeDays)
		overview.TotalRecordsExposed += inc.RecordsExposed
		if inc.SensitivityLevel >= 4 {
			overview.HighSensitivityIncidents++
		}
		if inc.NotificationRequired {
			overview.NotificationsRequired++
		}
		attackCounts[inc.AttackType]++
	}
	overview.TotalCost = stableSum(costs)
	overview.AvgCostPerIncident = overview.TotalCost / float64(snap.Len())
	overview.AvgDetectionDays = stableMean(detections)
	overview.AvgResponseDays = stableMean(responses)

	if top, err := a.CostByDimension(snap, DimensionSystem); err == nil && len(top) > 0 {
		overview.CostliestSystem = top[0].Key
	}
	if top, err := a.CostByDimension(snap, DimensionRegion); err == nil && len(top) > 0 {
		overview.CostliestRegion = top[0].Key
	}
	if top, err := a.CostByDimension(snap, DimensionAttackType); err == nil && len(top) > 0 {
		overview.CostliestAttackType = top[0].Key
	}

	for attack, count := range attackCounts {
		best := overview.MostFrequentAttackType
		if best == "" || count > attackCounts[best] || (count == attackCounts[best] && attack < best) {
			overview.MostFrequentAttackType = attack
		}
	}

	return overview, nil
}

func groupKey(inc entity.Incident, dims []Dimension) string {
	key := ""
	for i, d := range dims {
		if i > 0 {
			key += "/"
		}
		switch d {
		case DimensionSystem:
			key += inc.System
		case DimensionRegion:
			key += inc.Region
		case DimensionAttackType:
			key += inc.AttackType
		}
	}
	return key
}

func dimensionNames(dims []Dimension) []string {
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	return names
}

// sortedByCostDesc returns a copy of incidents ordered by descending cost,
// ties broken by ascending ID for determinism.
func sortedByCostDesc(incidents []entity.Incident) []entity.Incident {
	sorted := make([]entity.Incident, len(incidents))
	copy(sorted, incidents)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Cost != sorted[j].Cost {
			return sorted[i].Cost > sorted[j].Cost
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
