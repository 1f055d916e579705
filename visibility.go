package lightbake

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

// VisibilitySample is one occlusion test between two sample points.
type VisibilitySample struct {
	From, To mgl64.Vec3
	Occluded bool
	Distance float64
}

// PairVisibility summarizes the tests between the sample sets of lights A
// and B (indices into the unified light slice, A < B).
type PairVisibility struct {
	A, B     int
	Distance float64
	Samples  int
	Visible  int
	Fraction float64
	// Nearest is the shortest unoccluded sample distance, +Inf when every
	// sample was blocked.
	Nearest float64
}

func (pv *PairVisibility) add(s VisibilitySample) {
	pv.Samples++
	if s.Occluded {
		return
	}
	pv.Visible++
	pv.Nearest = math.Min(pv.Nearest, s.Distance)
}

type lightPair struct{ a, b int32 }

func pairOf(i, j int32) lightPair {
	if j < i {
		i, j = j, i
	}
	return lightPair{i, j}
}

func comparePairs(x, y lightPair) int {
	if x.a != y.a {
		return int(x.a - y.a)
	}
	return int(x.b - y.b)
}

// candidatePairs returns every pair whose activation is at most scale,
// that is every pair closer than scale*min(r_i, r_j) for effective radii r,
// sorted. The grid holds each light's reach box so a point query finds all
// lights whose reach covers the position. Reaches spanning more than a few
// cells are kept aside and checked against every light.
func candidatePairs(lights []UnifiedLight, scale, cellSize float64) []lightPair {
	reach := make([]float64, len(lights))
	for i := range lights {
		reach[i] = scale * lights[i].EffectiveRadius
	}
	if cellSize <= 0 {
		cellSize = medianPositive(reach)
	}
	grid := NewSpatialHashGrid(cellSize)
	var wide []int32
	for i := range lights {
		switch {
		case reach[i] <= 0:
		case reach[i] > maxGridSpan*grid.CellSize():
			wide = append(wide, int32(i))
		default:
			grid.Insert(int32(i), SphereAABB(lights[i].Position, reach[i]*(1+reachSlack)))
		}
	}

	within := func(i, j int32) bool {
		return activation(lights, pairOf(i, j)) <= scale
	}
	var pairs []lightPair
	for i := range lights {
		for _, j := range grid.QueryPoint(lights[i].Position) {
			if int(j) != i && within(int32(i), j) {
				pairs = append(pairs, pairOf(int32(i), j))
			}
		}
	}
	// Any pair with a narrow member was found from the other light's
	// position; only wide-wide pairs remain.
	for x, i := range wide {
		for _, j := range wide[x+1:] {
			if within(i, j) {
				pairs = append(pairs, pairOf(i, j))
			}
		}
	}
	slices.SortFunc(pairs, comparePairs)
	return slices.Compact(pairs)
}

// reachSlack widens grid boxes so rounding in d/r never drops a pair.
const reachSlack = 1e-9

const maxGridSpan = 2

// medianPositive picks a grid cell size from the light reaches. Huge reaches
// would otherwise cover millions of tiny cells.
func medianPositive(vals []float64) float64 {
	pos := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return 1
	}
	slices.Sort(pos)
	return max(pos[len(pos)/2], 1)
}

// surfaceSamples collects {position} plus the accessor's surface points
// for every light.
func (e *Engine) surfaceSamples(ctx context.Context, lights []UnifiedLight, entities []LightEntity) ([][]mgl64.Vec3, error) {
	out := make([][]mgl64.Vec3, len(lights))
	prog := newStageProgress(e.progress, StageVisible, len(lights))
	err := parallelBatches(ctx, e.workers, e.cfg.BatchSize, len(lights), func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			u := &lights[i]
			pts, err := e.geo.SampleSurface(entities[u.Source])
			if err != nil {
				return &ClusteringError{Kind: GeometryQueryFailed, Stage: StageVisible, LightID: u.ID, Err: err}
			}
			s := make([]mgl64.Vec3, 0, len(pts)+1)
			s = append(s, u.Position)
			for _, p := range pts {
				if !finiteVec(p) {
					return &ClusteringError{Kind: GeometryQueryFailed, Stage: StageVisible, LightID: u.ID,
						Err: errors.New("surface sample is not finite")}
				}
				s = append(s, p)
			}
			out[i] = s
		}
		prog.add(hi - lo)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// testPairs runs the occlusion tests for pairs on the worker pool. Results
// land in the slot of their pair so the output order never depends on
// scheduling.
func (e *Engine) testPairs(ctx context.Context, stage string, pairs []lightPair, lights []UnifiedLight, samples [][]mgl64.Vec3) ([]PairVisibility, error) {
	out := make([]PairVisibility, len(pairs))
	prog := newStageProgress(e.progress, stage, len(pairs))
	err := parallelBatches(ctx, e.workers, e.cfg.BatchSize, len(pairs), func(ctx context.Context, lo, hi int) error {
		for k := lo; k < hi; k++ {
			pv, err := e.testPair(stage, pairs[k], lights, samples)
			if err != nil {
				return err
			}
			out[k] = pv
		}
		prog.add(hi - lo)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) testPair(stage string, p lightPair, lights []UnifiedLight, samples [][]mgl64.Vec3) (PairVisibility, error) {
	la, lb := &lights[p.a], &lights[p.b]
	pv := PairVisibility{
		A:        int(p.a),
		B:        int(p.b),
		Distance: la.Position.Sub(lb.Position).Len(),
		Nearest:  math.Inf(1),
	}
	for _, from := range samples[p.a] {
		for _, to := range samples[p.b] {
			s := VisibilitySample{From: from, To: to, Distance: from.Sub(to).Len()}
			occ, err := e.geo.TestOccluded(from, to)
			if err != nil {
				return pv, &ClusteringError{Kind: GeometryQueryFailed, Stage: stage, LightID: la.ID, OtherID: lb.ID, Err: err}
			}
			s.Occluded = occ
			pv.add(s)
		}
	}
	if pv.Samples > 0 {
		pv.Fraction = float64(pv.Visible) / float64(pv.Samples)
	}
	return pv, nil
}
