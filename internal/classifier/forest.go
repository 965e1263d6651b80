package classifier

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTrees is the number of trees grown per forest.
	DefaultTrees = 100
	// DefaultSeed makes training reproducible for a given corpus.
	DefaultSeed = 42
)

type treeNode struct {
	leaf      bool
	class     int
	feature   int
	threshold float64
	left      int
	right     int
}

// tree is a fully grown CART classification tree stored as a flat node list.
type tree struct {
	nodes []treeNode
}

func (t *tree) predict(x []float64) int {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.class
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// treeBuilder grows one tree on a bootstrap sample.
type treeBuilder struct {
	x           [][]float64
	y           []int
	classes     int
	maxFeatures int
	rng         *rand.Rand
	nodes       []treeNode
}

func (b *treeBuilder) grow(idx []int) int {
	counts := make([]int, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	self := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{leaf: true, class: argmax(counts)})
	if isPure(counts) {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left)
	r := b.grow(right)
	b.nodes[self] = treeNode{feature: feature, threshold: threshold, left: l, right: r}
	return self
}

type sampleValue struct {
	v     float64
	class int
}

// bestSplit searches features in random order and stops once maxFeatures
// non-constant features have been evaluated. Constant features do not count,
// so a split is found whenever any feature varies within the node.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := len(idx)
	best := math.Inf(1)
	pairs := make([]sampleValue, n)
	leftCounts := make([]int, b.classes)
	rightCounts := make([]int, b.classes)

	visited := 0
	for _, f := range b.rng.Perm(len(b.x[0])) {
		if visited >= b.maxFeatures {
			break
		}
		for k, i := range idx {
			pairs[k] = sampleValue{v: b.x[i][f], class: b.y[i]}
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].v < pairs[c].v })
		if pairs[0].v == pairs[n-1].v {
			continue
		}
		visited++

		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = 0
		}
		for _, p := range pairs {
			rightCounts[p.class]++
		}
		for k := 0; k < n-1; k++ {
			leftCounts[pairs[k].class]++
			rightCounts[pairs[k].class]--
			if pairs[k].v == pairs[k+1].v {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			impurity := (nl*gini(leftCounts, nl) + nr*gini(rightCounts, nr)) / float64(n)
			if impurity < best {
				best = impurity
				feature = f
				threshold = pairs[k].v + (pairs[k+1].v-pairs[k].v)/2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func gini(counts []int, total float64) float64 {
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / total
		sum += p * p
	}
	return 1 - sum
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// argmax returns the index of the largest count, lowest index on ties.
func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

// forest is a bagged ensemble of CART trees voting by majority.
type forest struct {
	trees   []*tree
	classes int
}

func maxFeaturesFor(features int) int {
	m := int(math.Sqrt(float64(features)))
	if m < 1 {
		m = 1
	}
	return m
}

// growForest trains nTrees trees on bootstrap samples of (x, y). Per-tree seeds
// are drawn up front from seed so the result does not depend on scheduling.
func growForest(ctx context.Context, x [][]float64, y []int, classes, nTrees int, seed int64) (*forest, error) {
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, nTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	f := &forest{trees: make([]*tree, nTrees), classes: classes}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < nTrees; t++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[t]))
			sample := make([]int, len(x))
			for i := range sample {
				sample[i] = rng.Intn(len(x))
			}
			b := &treeBuilder{
				x:           x,
				y:           y,
				classes:     classes,
				maxFeatures: maxFeaturesFor(len(x[0])),
				rng:         rng,
			}
			b.grow(sample)
			f.trees[t] = &tree{nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *forest) predict(x []float64) int {
	votes := make([]int, f.classes)
	for _, t := range f.trees {
		votes[t.predict(x)]++
	}
	return argmax(votes)
}
