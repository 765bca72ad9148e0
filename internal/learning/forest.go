package learning

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ForestKind is the model_kind recorded for Forest models.
const ForestKind = "RandomForestRegressor"

// ForestConfig holds the ensemble hyperparameters.
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	// Workers bounds parallel tree construction; <= 0 means one per CPU.
	Workers int
}

// DefaultForestConfig is the fixed configuration used for price models.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

// Node is one node of a regression tree stored in a flat slice. Leaves have
// Left == -1 and carry the mean target of their samples in Value.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a CART regression tree.
type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees. Each tree is grown on a
// bootstrap sample drawn with its own seed (Seed + tree index), so a fit is
// reproducible regardless of how trees are scheduled across goroutines.
type Forest struct {
	Config    ForestConfig
	NFeatures int
	Trees     []Tree
}

// NewForest returns an unfitted forest.
func NewForest(cfg ForestConfig) *Forest {
	return &Forest{Config: cfg}
}

// Kind implements Regressor.
func (f *Forest) Kind() string {
	return ForestKind
}

// Fit implements Regressor.
func (f *Forest) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: empty training set", ErrNoData)
	}
	if len(X) != len(y) {
		return fmt.Errorf("%d rows but %d targets", len(X), len(y))
	}
	nFeatures := len(X[0])
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}
	if f.Config.Trees <= 0 {
		return fmt.Errorf("invalid tree count %d", f.Config.Trees)
	}

	trees := make([]Tree, f.Config.Trees)
	g, ctx := errgroup.WithContext(ctx)
	workers := f.Config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)

	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.Config.Seed + int64(i)))
			sample := make([]int, len(X))
			for j := range sample {
				sample[j] = rng.Intn(len(X))
			}
			b := &treeBuilder{X: X, y: y, cfg: f.Config, nFeatures: nFeatures}
			b.grow(sample, 0)
			trees[i] = Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.NFeatures = nFeatures
	f.Trees = trees
	return nil
}

// Predict implements Regressor. The estimate is the mean over all trees.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, fmt.Errorf("%w: forest has no trees", ErrModelNotTrained)
	}
	if len(x) != f.NFeatures {
		return 0, fmt.Errorf("%w: got %d features, model expects %d", ErrInference, len(x), f.NFeatures)
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

type treeBuilder struct {
	X         [][]float64
	y         []float64
	cfg       ForestConfig
	nFeatures int
	nodes     []Node
}

type split struct {
	feature   int
	threshold float64
	score     float64
	nLeft     int
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	mean := sum / float64(len(idx))

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: mean})

	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit || len(idx) < 2*b.cfg.MinSamplesLeaf {
		return self
	}

	best, ok := b.bestSplit(idx, sum)
	if !ok {
		return self
	}

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, len(idx)-best.nLeft)
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r, Value: mean}
	return self
}

// bestSplit finds the threshold that minimises the summed squared error of the
// two children, i.e. maximises sumL²/nL + sumR²/nR.
func (b *treeBuilder) bestSplit(idx []int, total float64) (split, bool) {
	n := len(idx)
	minLeaf := b.cfg.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	parent := total * total / float64(n)
	best := split{score: parent}
	found := false

	order := make([]int, n)
	for f := 0; f < b.nFeatures; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[order[k]]
			nl := k + 1
			nr := n - nl
			if nl < minLeaf {
				continue
			}
			if nr < minLeaf {
				break
			}
			cur, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if cur == next {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > best.score+1e-12*math.Abs(best.score) {
				best = split{feature: f, threshold: cur + (next-cur)/2, score: score, nLeft: nl}
				found = true
			}
		}
	}
	return best, found
}
