package prediction

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/missatech/breach-analytics/domain/entity"
)

// categoryEncoder maps categorical values to ordinal codes learned once from
// training data. Codes are assigned by sorted value order, so the encoding
// depends only on the set of observed categories, never on row order.
// Exported fields survive serialization; the lookup index is rebuilt on load.
type categoryEncoder struct {
	Feature string   `msgpack:"feature"`
	Classes []string `msgpack:"classes"`

	index map[string]int `msgpack:"-"`
}

func newCategoryEncoder(feature string, values []string) *categoryEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)

	enc := &categoryEncoder{Feature: feature, Classes: classes}
	enc.rebuildIndex()
	return enc
}

func (e *categoryEncoder) rebuildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// encode returns the ordinal code for value. A category never seen during
// training fails with UnknownCategoryError instead of being coerced.
func (e *categoryEncoder) encode(value string) (float64, error) {
	code, ok := e.index[value]
	if !ok {
		return 0, entity.NewUnknownCategoryError(e.Feature, value)
	}
	return float64(code), nil
}

// standardizer rescales feature columns to zero mean and unit variance.
// Zero-variance columns keep scale 1 so they pin at zero instead of
// dividing by zero.
type standardizer struct {
	Means  []float64 `msgpack:"means"`
	Scales []float64 `msgpack:"scales"`
}

// fitStandardizer learns per-column statistics from rows. For the cost
// predictor this runs over the training split only; holdout rows are
// transformed with training statistics so evaluation never leaks.
func fitStandardizer(rows [][]float64) *standardizer {
	if len(rows) == 0 {
		return &standardizer{}
	}
	cols := len(rows[0])
	s := &standardizer{
		Means:  make([]float64, cols),
		Scales: make([]float64, cols),
	}
	column := make([]float64, len(rows))
	for j := 0; j < cols; j++ {
		for i, row := range rows {
			column[i] = row[j]
		}
		s.Means[j] = stat.Mean(column, nil)
		scale := stat.PopStdDev(column, nil)
		if scale == 0 {
			scale = 1
		}
		s.Scales[j] = scale
	}
	return s
}

// transform returns a standardized copy of vec.
func (s *standardizer) transform(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for j, v := range vec {
		out[j] = (v - s.Means[j]) / s.Scales[j]
	}
	return out
}

func (s *standardizer) transformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.transform(row)
	}
	return out
}
