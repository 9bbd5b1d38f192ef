package service

import "sort"

// stableSum adds values in ascending value order so the same multiset
// always produces a bit-identical total regardless of input ordering.
// Float addition is not associative; aggregates must not depend on the
// order a source happened to deliver rows in.
func stableSum(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return sum
}

// stableMean is the order-independent mean of values; 0 for an empty input.
func stableMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stableSum(values) / float64(len(values))
}
