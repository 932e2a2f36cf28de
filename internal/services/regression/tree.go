package regression

import (
	"math/rand"
	"sort"
)

// TreeOptions bound the growth of a single regression tree.
type TreeOptions struct {
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int // 0 means all features at every split
}

// Node is a flattened tree node; leaves carry Value, splits send x[Feature] <= Threshold left.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) Predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

type treeBuilder struct {
	X     [][]float64
	y     []float64
	opts  TreeOptions
	rng   *rand.Rand
	gain  []float64
	nodes []Node
}

// fitTree grows a CART regression tree on rows idx and accumulates split gains per feature into gain.
func fitTree(X [][]float64, y []float64, idx []int, opts TreeOptions, rng *rand.Rand, gain []float64) Tree {
	if opts.MinLeaf < 1 {
		opts.MinLeaf = 1
	}
	b := &treeBuilder{X: X, y: y, opts: opts, rng: rng, gain: gain}
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	b.nodes = append(b.nodes, Node{Leaf: true, Value: sum / float64(len(idx))})

	if depth >= b.opts.MaxDepth || len(idx) < 2*b.opts.MinLeaf {
		return id
	}
	feature, threshold, gain, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.gain[feature] += gain
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) candidates() []int {
	p := len(b.X[0])
	if b.opts.MaxFeatures <= 0 || b.opts.MaxFeatures >= p || b.rng == nil {
		all := make([]int, p)
		for j := range all {
			all[j] = j
		}
		return all
	}
	perm := b.rng.Perm(p)[:b.opts.MaxFeatures]
	sort.Ints(perm)
	return perm
}

// bestSplit maximizes the reduction in squared error; ties keep the first feature found.
func (b *treeBuilder) bestSplit(idx []int, total float64) (feature int, threshold, gain float64, ok bool) {
	n := float64(len(idx))
	base := total * total / n
	order := make([]int, len(idx))
	for _, f := range b.candidates() {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		leftSum := 0.0
		for k := 1; k < len(order); k++ {
			leftSum += b.y[order[k-1]]
			if k < b.opts.MinLeaf || len(order)-k < b.opts.MinLeaf {
				continue
			}
			lo, hi := b.X[order[k-1]][f], b.X[order[k]][f]
			if lo == hi {
				continue
			}
			ln, rn := float64(k), n-float64(k)
			rightSum := total - leftSum
			g := leftSum*leftSum/ln + rightSum*rightSum/rn - base
			if g > gain+1e-12 {
				feature, threshold, gain, ok = f, lo+(hi-lo)/2, g, true
			}
		}
	}
	return feature, threshold, gain, ok
}

// sampleRows returns up to limit row indices spread evenly over [0, n), in ascending order.
func sampleRows(n, limit int) []int {
	if limit <= 0 || n <= limit {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, limit)
	step := float64(n) / float64(limit)
	for i := range out {
		out[i] = int(float64(i) * step)
	}
	return out
}
