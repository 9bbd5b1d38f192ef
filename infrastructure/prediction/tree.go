package prediction

import (
	"math/rand"
	"sort"
)

// treeNode is one node of a fitted regression tree. Interior nodes route
// vectors on feature < threshold; leaves carry the mean target of the
// training samples that reached them.
type treeNode struct {
	Feature   int       `msgpack:"feature"`
	Threshold float64   `msgpack:"threshold"`
	Value     float64   `msgpack:"value"`
	Left      *treeNode `msgpack:"left,omitempty"`
	Right     *treeNode `msgpack:"right,omitempty"`
}

func (n *treeNode) leaf() bool { return n.Left == nil }

func (n *treeNode) predict(vec []float64) float64 {
	node := n
	for !node.leaf() {
		if vec[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// treeBuilder grows one variance-reduction regression tree over a bootstrap
// sample. All randomness flows through the builder's own rng, so trees fit
// concurrently still come out identical for a given seed.
type treeBuilder struct {
	rows        [][]float64
	targets     []float64
	rng         *rand.Rand
	maxDepth    int
	minLeaf     int
	minSplit    int
	maxFeatures int

	// importance accumulates the total squared error removed by splits,
	// per feature.
	importance []float64
}

func newTreeBuilder(rows [][]float64, targets []float64, rng *rand.Rand, maxDepth, minLeaf, maxFeatures int) *treeBuilder {
	if minLeaf < 1 {
		minLeaf = 1
	}
	return &treeBuilder{
		rows:        rows,
		targets:     targets,
		rng:         rng,
		maxDepth:    maxDepth,
		minLeaf:     minLeaf,
		minSplit:    2 * minLeaf,
		maxFeatures: maxFeatures,
		importance:  make([]float64, len(rows[0])),
	}
}

func (b *treeBuilder) fit() *treeNode {
	indices := make([]int, len(b.rows))
	for i := range indices {
		indices[i] = b.rng.Intn(len(b.rows))
	}
	return b.grow(indices, 0)
}

func (b *treeBuilder) grow(indices []int, depth int) *treeNode {
	mean, sse := b.meanAndSSE(indices)
	node := &treeNode{Value: mean}

	if len(indices) < b.minSplit || sse <= 0 {
		return node
	}
	if b.maxDepth > 0 && depth >= b.maxDepth {
		return node
	}

	feature, threshold, gain := b.bestSplit(indices, sse)
	if gain <= 0 {
		return node
	}

	var left, right []int
	for _, idx := range indices {
		if b.rows[idx][feature] < threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}

	b.importance[feature] += gain
	node.Feature = feature
	node.Threshold = threshold
	node.Left = b.grow(left, depth+1)
	node.Right = b.grow(right, depth+1)
	return node
}

// bestSplit scans candidate features for the threshold with the largest
// squared-error reduction. Features are visited in ascending index order so
// equal gains resolve the same way on every run.
func (b *treeBuilder) bestSplit(indices []int, parentSSE float64) (feature int, threshold, gain float64) {
	p := len(b.rows[0])
	candidates := b.candidateFeatures(p)

	type pair struct {
		value  float64
		target float64
	}
	pairs := make([]pair, len(indices))

	feature = -1
	for _, j := range candidates {
		for i, idx := range indices {
			pairs[i] = pair{value: b.rows[idx][j], target: b.targets[idx]}
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].value < pairs[c].value })

		var leftSum, leftSumSq float64
		totalSum, totalSumSq := 0.0, 0.0
		for _, pr := range pairs {
			totalSum += pr.target
			totalSumSq += pr.target * pr.target
		}

		n := len(pairs)
		for i := 0; i < n-1; i++ {
			leftSum += pairs[i].target
			leftSumSq += pairs[i].target * pairs[i].target

			// Only boundaries between distinct values are valid cuts.
			if pairs[i].value == pairs[i+1].value {
				continue
			}
			leftN := i + 1
			rightN := n - leftN
			if leftN < b.minLeaf || rightN < b.minLeaf {
				continue
			}

			leftSSE := sse(leftSum, leftSumSq, leftN)
			rightSSE := sse(totalSum-leftSum, totalSumSq-leftSumSq, rightN)
			g := parentSSE - leftSSE - rightSSE
			if g > gain {
				gain = g
				feature = j
				threshold = (pairs[i].value + pairs[i+1].value) / 2
			}
		}
	}
	if feature < 0 {
		return 0, 0, 0
	}
	return feature, threshold, gain
}

// candidateFeatures returns the feature subset to consider at a split:
// every feature when maxFeatures is unset, otherwise a random draw without
// replacement, returned in ascending order.
func (b *treeBuilder) candidateFeatures(p int) []int {
	if b.maxFeatures <= 0 || b.maxFeatures >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := b.rng.Perm(p)[:b.maxFeatures]
	sort.Ints(perm)
	return perm
}

func (b *treeBuilder) meanAndSSE(indices []int) (float64, float64) {
	var sum, sumSq float64
	for _, idx := range indices {
		t := b.targets[idx]
		sum += t
		sumSq += t * t
	}
	n := len(indices)
	return sum / float64(n), sse(sum, sumSq, n)
}

// sse computes sum((t - mean)^2) from running sums, floored at zero
// against cancellation error.
func sse(sum, sumSq float64, n int) float64 {
	v := sumSq - sum*sum/float64(n)
	if v < 0 {
		return 0
	}
	return v
}
