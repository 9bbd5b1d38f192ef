package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableSum_OrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	values := make([]float64, 1000)
	for i := range values {
		values[i] = rng.ExpFloat64() * 1e6
	}

	base := stableSum(values)
	for _, seed := range []int64{1, 2, 3} {
		permuted := make([]float64, len(values))
		copy(permuted, values)
		shuffle := rand.New(rand.NewSource(seed))
		shuffle.Shuffle(len(permuted), func(i, j int) {
			permuted[i], permuted[j] = permuted[j], permuted[i]
		})
		assert.Equal(t, base, stableSum(permuted), "seed %d", seed)
	}
}

func TestStableSum_Empty(t *testing.T) {
	assert.Equal(t, 0.0, stableSum(nil))
	assert.Equal(t, 0.0, stableSum([]float64{}))
}

func TestStableSum_DoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	stableSum(values)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestStableMean(t *testing.T) {
	assert.Equal(t, 0.0, stableMean(nil))
	assert.InDelta(t, 2.0, stableMean([]float64{1, 2, 3}), 1e-12)
}
