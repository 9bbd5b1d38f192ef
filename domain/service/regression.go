package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/missatech/breach-analytics/domain/entity"
)

// Regressor names as they appear in fit output.
const (
	RegressorDetectionDelay = "detection_delay_days"
	RegressorResponseDelay  = "response_time_days"
	RegressorRecordsExposed = "records_exposed"
)

// CorrelationAnalyzer computes Pearson correlations between incident cost
// and its candidate drivers.
type CorrelationAnalyzer struct {
	logger *zap.Logger
}

// NewCorrelationAnalyzer creates a correlation analyzer.
func NewCorrelationAnalyzer(logger *zap.Logger) *CorrelationAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrelationAnalyzer{logger: logger.Named("correlation")}
}

// Correlations returns the Pearson coefficient for each tracked variable
// pair, in a fixed order. A pair where either side has zero variance is
// reported with Defined=false and a zero coefficient instead of NaN.
// Fails with InsufficientDataError for fewer than two incidents.
func (c *CorrelationAnalyzer) Correlations(snap *entity.Snapshot) ([]entity.Correlation, error) {
	if snap.Len() < 2 {
		return nil, entity.NewInsufficientDataError("correlation analysis", 2, snap.Len())
	}

	incidents := snap.Incidents()
	n := len(incidents)
	cost := make([]float64, n)
	detection := make([]float64, n)
	response := make([]float64, n)
	records := make([]float64, n)
	sensitivity := make([]float64, n)
	for i, inc := range incidents {
		cost[i] = inc.Cost
		detection[i] = inc.DetectionTimeDays
		response[i] = inc.ResponseTimeDays
		records[i] = float64(inc.RecordsExposed)
		sensitivity[i] = float64(inc.SensitivityLevel)
	}

	pairs := []struct {
		name string
		x, y []float64
	}{
		{"detection_vs_cost", detection, cost},
		{"response_vs_cost", response, cost},
		{"records_vs_cost", records, cost},
		{"sensitivity_vs_cost", sensitivity, cost},
		{"detection_vs_records", detection, records},
	}

	correlations := make([]entity.Correlation, 0, len(pairs))
	for _, p := range pairs {
		coeff := stat.Correlation(p.x, p.y, nil)
		defined := !math.IsNaN(coeff)
		if !defined {
			coeff = 0
		}
		correlations = append(correlations, entity.Correlation{
			Pair:        p.name,
			Coefficient: coeff,
			Defined:     defined,
		})
	}
	return correlations, nil
}

// DelayCostRegressor fits an ordinary least squares model of incident cost
// on detection delay, response delay, and records exposed. The fitted
// detection coefficient is the marginal dollar cost per day of detection
// delay consumed by the delay-impact simulator.
type DelayCostRegressor struct {
	logger *zap.Logger
}

// NewDelayCostRegressor creates a delay-cost regressor.
func NewDelayCostRegressor(logger *zap.Logger) *DelayCostRegressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelayCostRegressor{logger: logger.Named("delay_cost_regressor")}
}

// Fit performs the least squares fit over the full snapshot. Regressors
// with zero variance are dropped from the design matrix before fitting and
// reported with Dropped=true; the fit itself must always succeed on enough
// data. Alongside the model it reports the naive whole-dataset rates
// (total cost per total detection day and per total response day).
func (r *DelayCostRegressor) Fit(snap *entity.Snapshot) (*entity.DelayCostFit, error) {
	if snap.Len() < 2 {
		return nil, entity.NewInsufficientDataError("delay-cost regression", 2, snap.Len())
	}

	incidents := snap.Incidents()
	n := len(incidents)
	y := make([]float64, n)
	columns := map[string][]float64{
		RegressorDetectionDelay: make([]float64, n),
		RegressorResponseDelay:  make([]float64, n),
		RegressorRecordsExposed: make([]float64, n),
	}
	for i, inc := range incidents {
		y[i] = inc.Cost
		columns[RegressorDetectionDelay][i] = inc.DetectionTimeDays
		columns[RegressorResponseDelay][i] = inc.ResponseTimeDays
		columns[RegressorRecordsExposed][i] = float64(inc.RecordsExposed)
	}

	order := []string{RegressorDetectionDelay, RegressorResponseDelay, RegressorRecordsExposed}
	surviving := make([]string, 0, len(order))
	for _, name := range order {
		if stat.Variance(columns[name], nil) > 0 {
			surviving = append(surviving, name)
		}
	}

	if n < len(surviving)+1 {
		return nil, entity.NewInsufficientDataError("delay-cost regression", len(surviving)+1, n)
	}

	fit := &entity.DelayCostFit{SampleCount: n}

	var beta []float64
	var intercept float64
	if len(surviving) == 0 {
		// Every regressor is constant: the best least squares model is
		// the mean cost.
		intercept = stat.Mean(y, nil)
	} else {
		design := mat.NewDense(n, len(surviving)+1, nil)
		for i := 0; i < n; i++ {
			design.Set(i, 0, 1)
			for j, name := range surviving {
				design.Set(i, j+1, columns[name][i])
			}
		}
		response := mat.NewVecDense(n, y)

		var solution mat.VecDense
		if err := solution.SolveVec(design, response); err != nil {
			if _, ok := err.(mat.Condition); !ok {
				return nil, fmt.Errorf("least squares solve failed: %w", err)
			}
			r.logger.Warn("delay-cost design matrix is ill-conditioned",
				zap.Int("samples", n),
				zap.Int("regressors", len(surviving)))
		}
		intercept = solution.AtVec(0)
		beta = make([]float64, len(surviving))
		for j := range surviving {
			beta[j] = solution.AtVec(j + 1)
		}
	}

	fit.Intercept = intercept
	for _, name := range order {
		coeff := entity.RegressionCoefficient{Name: name, Dropped: true}
		for j, kept := range surviving {
			if kept == name {
				coeff.Value = beta[j]
				coeff.Dropped = false
				break
			}
		}
		fit.Coefficients = append(fit.Coefficients, coeff)
	}
	if det, ok := fit.Coefficient(RegressorDetectionDelay); ok && !det.Dropped {
		fit.MarginalCostPerDay = det.Value
	}

	fit.RSquared = rSquared(y, func(i int) float64 {
		pred := intercept
		for j, name := range surviving {
			pred += beta[j] * columns[name][i]
		}
		return pred
	})

	totalCost := stableSum(y)
	if totalDetection := stableSum(columns[RegressorDetectionDelay]); totalDetection > 0 {
		fit.SimpleCostPerDetectionDay = totalCost / totalDetection
	}
	if totalResponse := stableSum(columns[RegressorResponseDelay]); totalResponse > 0 {
		fit.SimpleCostPerResponseDay = totalCost / totalResponse
	}

	r.logger.Debug("delay-cost model fitted",
		zap.Int("samples", n),
		zap.Int("regressors", len(surviving)),
		zap.Float64("r_squared", fit.RSquared),
		zap.Float64("marginal_cost_per_day", fit.MarginalCostPerDay))

	return fit, nil
}

// PredictCost evaluates the fitted model for one incident's delay and
// exposure values. Dropped regressors contribute nothing.
func PredictCost(fit *entity.DelayCostFit, detectionDays, responseDays float64, recordsExposed int64) float64 {
	pred := fit.Intercept
	values := map[string]float64{
		RegressorDetectionDelay: detectionDays,
		RegressorResponseDelay:  responseDays,
		RegressorRecordsExposed: float64(recordsExposed),
	}
	for _, c := range fit.Coefficients {
		if !c.Dropped {
			pred += c.Value * values[c.Name]
		}
	}
	return pred
}

// rSquared computes the coefficient of determination of predictions
// against observed values. A zero-variance response reports 0.
func rSquared(observed []float64, predict func(i int) float64) float64 {
	mean := stat.Mean(observed, nil)
	var ssRes, ssTot float64
	for i, obs := range observed {
		res := obs - predict(i)
		ssRes += res * res
		dev := obs - mean
		ssTot += dev * dev
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
