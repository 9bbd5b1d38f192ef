package prediction

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/missatech/breach-analytics/domain/entity"
)

// minTrainingIncidents is the smallest snapshot the forest will train on.
// Below this the holdout split is too thin to say anything about model
// quality.
const minTrainingIncidents = 10

// ForestConfig controls training of the cost forest.
type ForestConfig struct {
	Trees           int     `mapstructure:"trees"`
	Seed            int64   `mapstructure:"seed"`
	MaxDepth        int     `mapstructure:"max_depth"`
	MinLeaf         int     `mapstructure:"min_leaf"`
	MaxFeatures     int     `mapstructure:"max_features"`
	HoldoutFraction float64 `mapstructure:"holdout_fraction"`
	Parallelism     int     `mapstructure:"parallelism"`
}

// DefaultForestConfig returns the standard training shape: one hundred
// trees, a fixed seed, every feature considered at each split, and a 20%
// holdout.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		Seed:            42,
		HoldoutFraction: 0.2,
	}
}

// Validate checks the configuration bounds.
func (c ForestConfig) Validate() error {
	if c.Trees < 1 {
		return entity.NewValidationError("trees", "tree count must be at least 1")
	}
	if c.HoldoutFraction <= 0 || c.HoldoutFraction >= 1 {
		return entity.NewValidationError("holdout_fraction", "holdout fraction must be in (0, 1)")
	}
	if c.MaxDepth < 0 || c.MinLeaf < 0 || c.MaxFeatures < 0 || c.Parallelism < 0 {
		return entity.NewValidationError("forest", "depth, leaf, feature, and parallelism settings cannot be negative")
	}
	return nil
}

// CostForest is an ensemble-of-trees regressor predicting total breach cost
// from incident features. Training is deterministic for a given seed: the
// split, the bootstrap draws, and the per-split feature draws all derive
// from it, and tree fits run concurrently without affecting the result.
type CostForest struct {
	cfg    ForestConfig
	logger *zap.Logger

	encoders []*categoryEncoder
	scaler   *standardizer
	trees    []*treeNode
	eval     *entity.PredictorEvaluation
}

// NewCostForest creates an untrained cost forest.
func NewCostForest(cfg ForestConfig, logger *zap.Logger) (*CostForest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostForest{cfg: cfg, logger: logger.Named("cost_forest")}, nil
}

// Config returns the training configuration.
func (f *CostForest) Config() ForestConfig { return f.cfg }

// Trained reports whether the forest has been fitted.
func (f *CostForest) Trained() bool { return len(f.trees) > 0 }

// Train fits the forest on the snapshot and evaluates it on a held-out
// fraction. Category encoders are learned from the full snapshot; the
// standardizer is learned from the training split only.
func (f *CostForest) Train(ctx context.Context, snap *entity.Snapshot) error {
	n := snap.Len()
	if n < minTrainingIncidents {
		return entity.NewInsufficientDataError("cost predictor training", minTrainingIncidents, n)
	}
	start := time.Now()

	incidents := snap.Incidents()
	systems := make([]string, n)
	regions := make([]string, n)
	attacks := make([]string, n)
	for i, inc := range incidents {
		systems[i] = inc.System
		regions[i] = inc.Region
		attacks[i] = inc.AttackType
	}
	encoders := []*categoryEncoder{
		newCategoryEncoder(costFeatureNames[featSystem], systems),
		newCategoryEncoder(costFeatureNames[featRegion], regions),
		newCategoryEncoder(costFeatureNames[featAttackType], attacks),
	}

	rows := make([][]float64, n)
	targets := make([]float64, n)
	for i, inc := range incidents {
		vec := make([]float64, numCostFeatures)
		vec[featSystem], _ = encoders[0].encode(inc.System)
		vec[featRegion], _ = encoders[1].encode(inc.Region)
		vec[featAttackType], _ = encoders[2].encode(inc.AttackType)
		numericCostFeatures(inc, vec)
		rows[i] = vec
		targets[i] = inc.Cost
	}

	splitRNG := rand.New(rand.NewSource(f.cfg.Seed))
	perm := splitRNG.Perm(n)
	holdoutN := int(math.Ceil(float64(n) * f.cfg.HoldoutFraction))
	if holdoutN < 1 {
		holdoutN = 1
	}
	if holdoutN > n-1 {
		holdoutN = n - 1
	}
	holdoutIdx := perm[:holdoutN]
	trainIdx := perm[holdoutN:]

	trainRows := make([][]float64, len(trainIdx))
	trainTargets := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainRows[i] = rows[idx]
		trainTargets[i] = targets[idx]
	}
	scaler := fitStandardizer(trainRows)
	scaledTrain := scaler.transformAll(trainRows)

	trees := make([]*treeNode, f.cfg.Trees)
	importances := make([][]float64, f.cfg.Trees)

	workers := f.cfg.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < f.cfg.Trees; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each tree owns its rng, so fit order and scheduling cannot
			// leak into the model.
			rng := rand.New(rand.NewSource(f.cfg.Seed + 1 + int64(i)))
			builder := newTreeBuilder(scaledTrain, trainTargets, rng, f.cfg.MaxDepth, f.cfg.MinLeaf, f.cfg.MaxFeatures)
			trees[i] = builder.fit()
			importances[i] = builder.importance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("tree fitting aborted: %w", err)
	}

	f.encoders = encoders
	f.scaler = scaler
	f.trees = trees
	f.eval = f.evaluate(rows, targets, holdoutIdx, len(trainIdx), mergeImportances(importances))

	f.logger.Info("cost forest trained",
		zap.Int("incidents", n),
		zap.Int("trees", f.cfg.Trees),
		zap.Int64("seed", f.cfg.Seed),
		zap.Int("train", f.eval.TrainCount),
		zap.Int("holdout", f.eval.HoldoutCount),
		zap.Float64("rmse", f.eval.RMSE),
		zap.Float64("r_squared", f.eval.RSquared),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

// Predict estimates the cost of a hypothetical incident. Unseen categories
// fail with UnknownCategoryError.
func (f *CostForest) Predict(input entity.PredictionInput) (float64, error) {
	if !f.Trained() {
		return 0, entity.NewBusinessLogicError("cost prediction", "model is not trained")
	}
	if err := input.Validate(); err != nil {
		return 0, err
	}

	vec := make([]float64, numCostFeatures)
	var err error
	if vec[featSystem], err = f.encoders[0].encode(input.System); err != nil {
		return 0, err
	}
	if vec[featRegion], err = f.encoders[1].encode(input.Region); err != nil {
		return 0, err
	}
	if vec[featAttackType], err = f.encoders[2].encode(input.AttackType); err != nil {
		return 0, err
	}
	vec[featSensitivity] = float64(input.SensitivityLevel)
	vec[featRecords] = float64(input.RecordsExposed)
	vec[featDetection] = input.DetectionTimeDays
	vec[featResponse] = input.ResponseTimeDays

	return f.PredictFeatures(vec)
}

// PredictFeatures scores a raw feature vector laid out per
// CostFeatureNames. The vector shape is validated before any tree runs.
func (f *CostForest) PredictFeatures(vec []float64) (float64, error) {
	if !f.Trained() {
		return 0, entity.NewBusinessLogicError("cost prediction", "model is not trained")
	}
	if len(vec) != numCostFeatures {
		return 0, entity.NewFeatureShapeError(numCostFeatures, len(vec))
	}

	scaled := f.scaler.transform(vec)
	var sum float64
	for _, tree := range f.trees {
		sum += tree.predict(scaled)
	}
	return sum / float64(len(f.trees)), nil
}

// Evaluation returns the holdout evaluation of the last training run, or
// nil when the forest is untrained.
func (f *CostForest) Evaluation() *entity.PredictorEvaluation { return f.eval }

// Score returns the holdout coefficient of determination.
func (f *CostForest) Score() (float64, error) {
	if f.eval == nil {
		return 0, entity.NewBusinessLogicError("cost predictor score", "model is not trained")
	}
	return f.eval.RSquared, nil
}

// FeatureImportance returns the normalized importance of every feature,
// highest first.
func (f *CostForest) FeatureImportance() []entity.FeatureWeight {
	if f.eval == nil {
		return nil
	}
	out := make([]entity.FeatureWeight, len(f.eval.FeatureImportance))
	copy(out, f.eval.FeatureImportance)
	return out
}

func (f *CostForest) evaluate(rows [][]float64, targets []float64, holdoutIdx []int, trainCount int, importance []float64) *entity.PredictorEvaluation {
	var ssRes float64
	observed := make([]float64, len(holdoutIdx))
	for i, idx := range holdoutIdx {
		observed[i] = targets[idx]
	}
	var meanObserved float64
	for _, o := range observed {
		meanObserved += o
	}
	meanObserved /= float64(len(observed))

	var ssTot float64
	for i, idx := range holdoutIdx {
		pred, _ := f.PredictFeatures(rows[idx])
		res := observed[i] - pred
		ssRes += res * res
		dev := observed[i] - meanObserved
		ssTot += dev * dev
	}

	eval := &entity.PredictorEvaluation{
		RMSE:         math.Sqrt(ssRes / float64(len(holdoutIdx))),
		TrainCount:   trainCount,
		HoldoutCount: len(holdoutIdx),
	}
	if ssTot > 0 {
		eval.RSquared = 1 - ssRes/ssTot
	}

	var total float64
	for _, imp := range importance {
		total += imp
	}
	weights := make([]entity.FeatureWeight, numCostFeatures)
	for j := range weights {
		w := 0.0
		if total > 0 {
			w = importance[j] / total
		}
		weights[j] = entity.FeatureWeight{Feature: costFeatureNames[j], Weight: w}
	}
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].Weight != weights[j].Weight {
			return weights[i].Weight > weights[j].Weight
		}
		return weights[i].Feature < weights[j].Feature
	})
	eval.FeatureImportance = weights

	return eval
}

func mergeImportances(perTree [][]float64) []float64 {
	if len(perTree) == 0 {
		return nil
	}
	merged := make([]float64, len(perTree[0]))
	for _, imp := range perTree {
		for j, v := range imp {
			merged[j] += v
		}
	}
	return merged
}

// forestPayload is the serialized form of a trained forest.
type forestPayload struct {
	Config   ForestConfig                `msgpack:"config"`
	Encoders []*categoryEncoder          `msgpack:"encoders"`
	Scaler   *standardizer               `msgpack:"scaler"`
	Trees    []*treeNode                 `msgpack:"trees"`
	Eval     *entity.PredictorEvaluation `msgpack:"eval"`
}

// MarshalBinary serializes the trained forest.
func (f *CostForest) MarshalBinary() ([]byte, error) {
	if !f.Trained() {
		return nil, entity.NewBusinessLogicError("cost forest serialization", "model is not trained")
	}
	return msgpack.Marshal(forestPayload{
		Config:   f.cfg,
		Encoders: f.encoders,
		Scaler:   f.scaler,
		Trees:    f.trees,
		Eval:     f.eval,
	})
}

// UnmarshalBinary restores a trained forest serialized by MarshalBinary.
func (f *CostForest) UnmarshalBinary(data []byte) error {
	var payload forestPayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode cost forest payload: %w", err)
	}
	if len(payload.Trees) == 0 || payload.Scaler == nil || len(payload.Encoders) != 3 {
		return entity.NewBusinessLogicError("cost forest deserialization", "payload is missing trained state")
	}
	for _, enc := range payload.Encoders {
		enc.rebuildIndex()
	}
	f.cfg = payload.Config
	f.encoders = payload.Encoders
	f.scaler = payload.Scaler
	f.trees = payload.Trees
	f.eval = payload.Eval
	return nil
}
