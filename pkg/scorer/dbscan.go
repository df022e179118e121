package scorer

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

const (
	// Noise is the cluster label of points not density-reachable from any core point.
	Noise = -1

	// gridDims caps how many dimensions the grid index partitions on.
	gridDims       = 3
	coreChunkSize  = 1024
	ctxCheckStride = 256
)

type cellKey [gridDims]int64

// gridIndex buckets points into cells of side eps over a few projected
// dimensions. Any point within eps lies in one of the 3^k adjacent cells, so
// candidates only need an exact distance check.
type gridIndex struct {
	points  [][]float64
	dims    []int
	eps     float64
	eps2    float64
	cells   map[cellKey][]int
	offsets []cellKey
}

func newGridIndex(points [][]float64, eps float64) *gridIndex {
	g := &gridIndex{
		points: points,
		eps:    eps,
		eps2:   eps * eps,
		cells:  make(map[cellKey][]int),
	}

	if len(points) > 0 {
		for d := 0; d < len(points[0]) && len(g.dims) < gridDims; d++ {
			if !constantDim(points, d) {
				g.dims = append(g.dims, d)
			}
		}
	}

	for i, p := range points {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}

	g.offsets = []cellKey{{}}
	for d := range g.dims {
		next := make([]cellKey, 0, len(g.offsets)*3)
		for _, o := range g.offsets {
			for _, step := range []int64{-1, 0, 1} {
				n := o
				n[d] = step
				next = append(next, n)
			}
		}
		g.offsets = next
	}

	return g
}

func constantDim(points [][]float64, d int) bool {
	first := points[0][d]
	for _, p := range points[1:] {
		if p[d] != first {
			return false
		}
	}
	return true
}

func (g *gridIndex) key(p []float64) cellKey {
	var k cellKey
	for i, d := range g.dims {
		k[i] = int64(math.Floor(p[d] / g.eps))
	}
	return k
}

// visit calls fn for every point within eps of point i, including i itself,
// until fn returns false.
func (g *gridIndex) visit(i int, fn func(j int) bool) {
	p := g.points[i]
	base := g.key(p)
	for _, o := range g.offsets {
		k := base
		for d := range g.dims {
			k[d] += o[d]
		}
		for _, j := range g.cells[k] {
			if within(p, g.points[j], g.eps2) && !fn(j) {
				return
			}
		}
	}
}

// count returns the number of neighbors of i, stopping early at limit.
func (g *gridIndex) count(i, limit int) int {
	n := 0
	g.visit(i, func(int) bool {
		n++
		return n < limit
	})
	return n
}

func within(a, b []float64, eps2 float64) bool {
	var sum float64
	for d := range a {
		diff := a[d] - b[d]
		sum += diff * diff
		if sum > eps2 {
			return false
		}
	}
	return true
}

// DBSCAN clusters the points using Euclidean distance. A point is core when at
// least minSamples points, itself included, lie within eps. Clusters are
// numbered in order of their first core point; border points join the first
// cluster that reaches them. Returns the labels and the number of clusters.
func DBSCAN(ctx context.Context, points [][]float64, eps float64, minSamples, workers int) ([]int, int, error) {
	if eps <= 0 || math.IsNaN(eps) || math.IsInf(eps, 0) {
		return nil, 0, fmt.Errorf("%w: eps must be a positive number, got %v", ErrInput, eps)
	}
	if minSamples < 1 {
		return nil, 0, fmt.Errorf("%w: min samples must be at least 1, got %d", ErrInput, minSamples)
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = Noise
	}
	if len(points) == 0 {
		return labels, 0, nil
	}

	idx := newGridIndex(points, eps)

	core, err := corePoints(ctx, idx, minSamples, workers)
	if err != nil {
		return nil, 0, err
	}

	cluster := 0
	stack := make([]int, 0)
	for i := range points {
		if labels[i] != Noise || !core[i] {
			continue
		}
		if i%ctxCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}

		// points are labeled when pushed so each one enters the stack at most once
		labels[i] = cluster
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !core[p] {
				continue
			}
			idx.visit(p, func(j int) bool {
				if labels[j] == Noise {
					labels[j] = cluster
					stack = append(stack, j)
				}
				return true
			})
		}
		cluster++
	}

	return labels, cluster, nil
}

// corePoints flags the core points, fanning the neighbor counting out over workers.
func corePoints(ctx context.Context, idx *gridIndex, minSamples, workers int) ([]bool, error) {
	if workers < 1 {
		workers = 1
	}

	n := len(idx.points)
	core := make([]bool, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < n; start += coreChunkSize {
		if gctx.Err() != nil {
			break
		}
		end := min(start+coreChunkSize, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%ctxCheckStride == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				core[i] = idx.count(i, minSamples) >= minSamples
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("counting neighbors: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return core, nil
}
