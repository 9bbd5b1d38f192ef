package prediction

import "github.com/missatech/breach-analytics/domain/entity"

// Cost predictor feature layout: encoded categoricals first, then the
// numeric fields. Training and inference share this order; a vector of any
// other shape is rejected before it reaches the trees.
const (
	featSystem = iota
	featRegion
	featAttackType
	featSensitivity
	featRecords
	featDetection
	featResponse

	numCostFeatures
)

var costFeatureNames = [numCostFeatures]string{
	"system",
	"region",
	"attack_type",
	"sensitivity_level",
	"records_exposed",
	"detection_delay_days",
	"response_time_days",
}

// CostFeatureNames returns the predictor's feature names in vector order.
func CostFeatureNames() []string {
	names := make([]string, numCostFeatures)
	copy(names, costFeatureNames[:])
	return names
}

func numericCostFeatures(inc entity.Incident, vec []float64) {
	vec[featSensitivity] = float64(inc.SensitivityLevel)
	vec[featRecords] = float64(inc.RecordsExposed)
	vec[featDetection] = inc.DetectionTimeDays
	vec[featResponse] = inc.ResponseTimeDays
}

// Clusterer feature layout: the five standardized behavioral signals.
const (
	clusterFeatSensitivity = iota
	clusterFeatRecords
	clusterFeatCost
	clusterFeatDetection
	clusterFeatResponse

	numClusterFeatures
)

var clusterFeatureNames = [numClusterFeatures]string{
	"sensitivity_level",
	"records_exposed",
	"cost",
	"detection_delay_days",
	"response_time_days",
}

// ClusterFeatureNames returns the clusterer's feature names in vector order.
func ClusterFeatureNames() []string {
	names := make([]string, numClusterFeatures)
	copy(names, clusterFeatureNames[:])
	return names
}

func clusterFeatures(inc entity.Incident) []float64 {
	return []float64{
		float64(inc.SensitivityLevel),
		float64(inc.RecordsExposed),
		inc.Cost,
		inc.DetectionTimeDays,
		inc.ResponseTimeDays,
	}
}
