package model

import (
	"math"
	"math/rand/v2"
	"sort"
)

const criterionSquaredError = "squared_error"

// Tree is a fitted binary decision tree stored as a flat node list with the
// root at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is a split when Feature >= 0, otherwise a leaf holding Value.
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

func (t *Tree) Eval(row []float64) float64 {
	n := 0
	for {
		node := t.Nodes[n]
		if node.Feature < 0 {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
}

func (t *Tree) Depth() int {
	var walk func(n int) int
	walk = func(n int) int {
		node := t.Nodes[n]
		if node.Feature < 0 {
			return 0
		}
		return 1 + max(walk(node.Left), walk(node.Right))
	}
	return walk(0)
}

type growConfig struct {
	criterion   string
	maxDepth    int
	minSplit    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	// leafValue overrides the weighted mean leaf value when set.
	leafValue func(idx []int) float64
}

type nodeStats struct {
	w, s, s2 float64
}

func (st *nodeStats) add(w, y float64) {
	st.w += w
	st.s += w * y
	st.s2 += w * y * y
}

func (st nodeStats) sub(o nodeStats) nodeStats {
	return nodeStats{w: st.w - o.w, s: st.s - o.s, s2: st.s2 - o.s2}
}

type grower struct {
	x     [][]float64
	y     []float64
	w     []float64
	cfg   growConfig
	nodes []TreeNode
}

// growTree fits a CART tree to the rows in idx. Labels are 0/1 for the
// classification criteria and arbitrary for squared error.
func growTree(x [][]float64, y, w []float64, idx []int, cfg growConfig) Tree {
	g := &grower{x: x, y: y, w: w, cfg: cfg}
	g.grow(idx, 0)
	return Tree{Nodes: g.nodes}
}

func (g *grower) stats(idx []int) nodeStats {
	var st nodeStats
	for _, i := range idx {
		st.add(g.w[i], g.y[i])
	}
	return st
}

func (g *grower) impurity(st nodeStats) float64 {
	if st.w <= 0 {
		return 0
	}
	mean := st.s / st.w
	switch g.cfg.criterion {
	case criterionSquaredError:
		return math.Max(0, st.s2/st.w-mean*mean)
	case CriterionEntropy, CriterionLogLoss:
		return entropy(mean)
	default:
		return 1 - mean*mean - (1-mean)*(1-mean)
	}
}

func entropy(p float64) float64 {
	var h float64
	if p > 0 {
		h -= p * math.Log2(p)
	}
	if p < 1 {
		h -= (1 - p) * math.Log2(1-p)
	}
	return h
}

func (g *grower) grow(idx []int, depth int) int {
	id := len(g.nodes)
	st := g.stats(idx)
	value := 0.0
	if g.cfg.leafValue != nil {
		value = g.cfg.leafValue(idx)
	} else if st.w > 0 {
		value = st.s / st.w
	}
	g.nodes = append(g.nodes, TreeNode{Feature: -1, Value: value})

	if g.cfg.maxDepth > 0 && depth >= g.cfg.maxDepth {
		return id
	}
	if len(idx) < g.cfg.minSplit || len(idx) < 2*g.cfg.minLeaf || g.impurity(st) <= 1e-12 {
		return id
	}
	feature, threshold, ok := g.bestSplit(idx, st)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if g.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[id].Feature = feature
	g.nodes[id].Threshold = threshold
	g.nodes[id].Left = l
	g.nodes[id].Right = r
	return id
}

func (g *grower) candidateFeatures() []int {
	n := len(g.x[0])
	if g.cfg.rng == nil || g.cfg.maxFeatures <= 0 || g.cfg.maxFeatures >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return g.cfg.rng.Perm(n)[:g.cfg.maxFeatures]
}

// bestSplit scans every candidate feature for the threshold minimising the
// weighted child impurity. The first best split found wins.
func (g *grower) bestSplit(idx []int, total nodeStats) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestScore := math.Inf(1)
	sorted := make([]int, len(idx))

	for _, f := range g.candidateFeatures() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return g.x[sorted[a]][f] < g.x[sorted[b]][f] })

		var left nodeStats
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			left.add(g.w[i], g.y[i])
			a, b := g.x[i][f], g.x[sorted[k+1]][f]
			if a == b {
				continue
			}
			nLeft := k + 1
			if nLeft < g.cfg.minLeaf || len(sorted)-nLeft < g.cfg.minLeaf {
				continue
			}
			right := total.sub(left)
			score := left.w*g.impurity(left) + right.w*g.impurity(right)
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = a + (b-a)/2
				if bestThreshold >= b {
					bestThreshold = a
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// newRand returns a generator seeded from seed and a per-use stream id so
// estimators sharing a seed do not share a sequence.
func newRand(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), stream))
}
