package ensemble

import (
	"math"
)

// Node is one node of a regression tree. Leaves have Left == Right == -1.
type Node struct {
	Feature     int
	Threshold   float64
	Left        int
	Right       int
	DefaultLeft bool // direction of missing values
	Value       float64
	NSamples    int
	Improvement float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a binary regression tree stored as a flat node slice; the root is
// Nodes[0].
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for one sample. Values <= Threshold go left and NaN
// follows DefaultLeft.
func (t *Tree) Predict(features []float64) float64 {
	id := 0
	for {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return node.Value
		}
		v := features[node.Feature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				id = node.Left
			} else {
				id = node.Right
			}
		case v <= node.Threshold:
			id = node.Left
		default:
			id = node.Right
		}
	}
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(id int) int
	walk = func(id int) int {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// ===========================================================================
//
//	CART builder
//
// ===========================================================================

// treeParams are the growth limits of a single tree.
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

// treeBuilder fits a least-squares regression tree to the pseudo-residuals.
// Split quality uses Friedman's improvement score.
type treeBuilder struct {
	cols     [][]float64 // column-major features
	target   []float64   // pseudo-residuals
	params   treeParams
	tree     *Tree
	leaves   map[int][]int // leaf node id -> sample indices
	features int
}

// nodeSamples holds the samples of a node once per feature, sorted by that
// feature's value with missing values last. all keeps them in index order.
type nodeSamples struct {
	all    []int
	sorted [][]int
}

type splitInfo struct {
	feature     int
	threshold   float64
	defaultLeft bool
	improvement float64
}

func newTreeBuilder(cols [][]float64, target []float64, params treeParams) *treeBuilder {
	return &treeBuilder{
		cols:     cols,
		target:   target,
		params:   params,
		tree:     &Tree{},
		leaves:   make(map[int][]int),
		features: len(cols),
	}
}

// build grows the tree from root samples whose per-feature orders are given.
func (b *treeBuilder) build(root nodeSamples) *Tree {
	b.buildNode(root, 0)
	return b.tree
}

func (b *treeBuilder) buildNode(s nodeSamples, depth int) int {
	id := len(b.tree.Nodes)
	n := len(s.all)
	b.tree.Nodes = append(b.tree.Nodes, Node{Left: -1, Right: -1, NSamples: n, Value: b.mean(s.all)})

	if depth >= b.params.maxDepth || n < b.params.minSamplesSplit || n < 2*b.params.minSamplesLeaf || b.pure(s.all) {
		b.leaves[id] = s.all
		return id
	}

	best := splitInfo{feature: -1}
	for j := 0; j < b.features; j++ {
		if cand, ok := b.bestSplit(j, s.sorted[j]); ok && cand.improvement > best.improvement {
			best = cand
		}
	}
	if best.feature < 0 {
		b.leaves[id] = s.all
		return id
	}

	left, right := b.partition(s, best)
	node := &b.tree.Nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.DefaultLeft = best.defaultLeft
	node.Improvement = best.improvement

	l := b.buildNode(left, depth+1)
	r := b.buildNode(right, depth+1)
	b.tree.Nodes[id].Left = l
	b.tree.Nodes[id].Right = r
	return id
}

func (b *treeBuilder) mean(idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += b.target[i]
	}
	return sum / float64(len(idx))
}

// pure reports whether the residual variance of the node is negligible.
func (b *treeBuilder) pure(idx []int) bool {
	mean := b.mean(idx)
	ss := 0.0
	for _, i := range idx {
		d := b.target[i] - mean
		ss += d * d
	}
	return ss/float64(len(idx)) <= epsilon
}

const epsilon = 2.220446049250313e-16

// bestSplit scans the feature-sorted samples of a node. Missing values are
// tried on both sides; without missing values they default to the larger
// child.
func (b *treeBuilder) bestSplit(feature int, order []int) (splitInfo, bool) {
	col := b.cols[feature]
	n := len(order)

	nonMissing := n
	for nonMissing > 0 && math.IsNaN(col[order[nonMissing-1]]) {
		nonMissing--
	}
	missSum := 0.0
	for _, i := range order[nonMissing:] {
		missSum += b.target[i]
	}
	missCount := n - nonMissing

	total := missSum
	for _, i := range order[:nonMissing] {
		total += b.target[i]
	}

	best := splitInfo{feature: feature}
	found := false
	leftSum := 0.0
	minLeaf := b.params.minSamplesLeaf
	for k := 0; k < nonMissing-1; k++ {
		leftSum += b.target[order[k]]
		v, next := col[order[k]], col[order[k+1]]
		if v == next {
			continue
		}
		nl := k + 1

		// missing values to the right
		if nl >= minLeaf && n-nl >= minLeaf {
			imp := friedman(leftSum, float64(nl), total-leftSum, float64(n-nl))
			if imp > best.improvement {
				best.improvement = imp
				best.threshold = v/2 + next/2
				best.defaultLeft = missCount == 0 && nl >= n-nl
				found = true
			}
		}
		// missing values to the left
		if missCount > 0 && nl+missCount >= minLeaf && n-nl-missCount >= minLeaf {
			ls := leftSum + missSum
			imp := friedman(ls, float64(nl+missCount), total-ls, float64(n-nl-missCount))
			if imp > best.improvement {
				best.improvement = imp
				best.threshold = v/2 + next/2
				best.defaultLeft = true
				found = true
			}
		}
	}

	// every present value left, missing values right
	if missCount >= minLeaf && nonMissing >= minLeaf {
		ls := total - missSum
		imp := friedman(ls, float64(nonMissing), missSum, float64(missCount))
		if imp > best.improvement {
			best.improvement = imp
			best.threshold = math.Inf(1)
			best.defaultLeft = false
			found = true
		}
	}
	return best, found
}

// friedman is the improvement score of the friedman_mse criterion.
func friedman(sumL, nL, sumR, nR float64) float64 {
	diff := sumL/nL - sumR/nR
	return nL * nR / (nL + nR) * diff * diff
}

// partition splits every per-feature order of s, keeping the orders stable.
func (b *treeBuilder) partition(s nodeSamples, split splitInfo) (nodeSamples, nodeSamples) {
	col := b.cols[split.feature]
	goesLeft := func(i int) bool {
		v := col[i]
		if math.IsNaN(v) {
			return split.defaultLeft
		}
		return v <= split.threshold
	}

	var left, right nodeSamples
	left.all, right.all = splitStable(s.all, goesLeft)
	left.sorted = make([][]int, len(s.sorted))
	right.sorted = make([][]int, len(s.sorted))
	for j, order := range s.sorted {
		left.sorted[j], right.sorted[j] = splitStable(order, goesLeft)
	}
	return left, right
}

func splitStable(idx []int, left func(int) bool) ([]int, []int) {
	l := make([]int, 0, len(idx))
	r := make([]int, 0, len(idx))
	for _, i := range idx {
		if left(i) {
			l = append(l, i)
		} else {
			r = append(r, i)
		}
	}
	return l, r
}
