package lightbake

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// clusterNamespace seeds the name-based UUIDs of cluster keys.
var clusterNamespace = uuid.MustParse("6f0c7d4e-2b0a-5c39-9a51-1e3b8f6d2c40")

// Cluster is a group of mutually visible lights sharing one LUT row.
type Cluster struct {
	Index     int
	Key       uuid.UUID
	Members   []string // light ids, sorted
	MemberIdx []int    // indices into the unified light slice, same order as Members
	Centroid  mgl64.Vec3
	Radius    float64

	// SampleExtent is the distance covered by Samples; sample k lies at
	// SampleExtent*k/(len(Samples)-1) from the centroid.
	SampleExtent float64
	Samples      []float64

	// MinVisibleFraction is the lowest pairwise visibility between members,
	// 1 for singletons.
	MinVisibleFraction float64

	// Power is the summed radiant power of the members.
	Power float64
}

// SampleDistance returns the distance from the centroid of sample k.
func (c *Cluster) SampleDistance(k int) float64 {
	n := len(c.Samples)
	if n < 2 {
		return 0
	}
	return c.SampleExtent * float64(k) / float64(n-1)
}

// Size is the number of member lights.
func (c *Cluster) Size() int { return len(c.Members) }

// visibilityTable holds the fraction of every tested pair. It is written by
// the merge phase only.
type visibilityTable map[lightPair]float64

func (t visibilityTable) record(results []PairVisibility) {
	for _, r := range results {
		t[pairOf(int32(r.A), int32(r.B))] = r.Fraction
	}
}

// cluster partitions lights into clusters and samples their curves. Either
// every cluster is returned or an error; nothing partial.
func (e *Engine) cluster(ctx context.Context, lights []UnifiedLight, entities []LightEntity) ([]Cluster, error) {
	if len(lights) == 0 {
		return []Cluster{}, nil
	}

	e.prof.BeginScope(StageCandidate)
	pairs := candidatePairs(lights, e.cfg.ClusteringRadiusScale, e.cfg.GridCellSize)
	e.prof.EndScope(StageCandidate)
	e.prof.SetCount("pairs", len(pairs))
	e.log.Debugf("%s: %d candidate pairs among %d lights", StageCandidate, len(pairs), len(lights))

	e.prof.BeginScope(StageVisible)
	samples, err := e.surfaceSamples(ctx, lights, entities)
	if err != nil {
		e.prof.EndScope(StageVisible)
		return nil, e.abort(ctx, err)
	}
	results, err := e.testPairs(ctx, StageVisible, pairs, lights, samples)
	e.prof.EndScope(StageVisible)
	if err != nil {
		return nil, e.abort(ctx, err)
	}

	e.prof.BeginScope(StageMerge)
	vis := make(visibilityTable, len(results))
	vis.record(results)
	uf := newUnionFind(len(lights))
	var edges []lightPair
	for _, r := range results {
		if r.Fraction >= e.cfg.MinVisibleFraction {
			p := pairOf(int32(r.A), int32(r.B))
			uf.union(p.a, p.b)
			edges = append(edges, p)
		}
	}
	components := uf.components()
	e.prof.EndScope(StageMerge)
	e.prof.SetCount("eligible", len(edges))

	e.prof.BeginScope(StageClosure)
	var missing []lightPair
	for _, comp := range components {
		for x, i := range comp {
			for _, j := range comp[x+1:] {
				if _, ok := vis[lightPair{i, j}]; !ok {
					missing = append(missing, lightPair{i, j})
				}
			}
		}
	}
	extra, err := e.testPairs(ctx, StageClosure, missing, lights, samples)
	if err != nil {
		e.prof.EndScope(StageClosure)
		return nil, e.abort(ctx, err)
	}
	vis.record(extra)

	groups := e.growGroups(edges, lights, vis)
	perComponent := make(map[int32]int, len(components))
	for _, g := range groups {
		perComponent[uf.find(g[0])]++
	}
	splits := 0
	for _, n := range perComponent {
		if n > 1 {
			splits++
		}
	}
	e.prof.EndScope(StageClosure)
	e.prof.SetCount("splits", splits)
	if splits > 0 {
		e.log.Debugf("%s: split %d components that were not mutually visible", StageClosure, splits)
	}

	clusters := finalizeClusters(groups, lights, vis)
	e.prof.SetCount("clusters", len(clusters))

	e.prof.BeginScope(StageSample)
	err = e.sampleClusters(ctx, clusters, lights)
	e.prof.EndScope(StageSample)
	if err != nil {
		return nil, e.abort(ctx, err)
	}
	return clusters, nil
}

// abort maps a worker pool failure to the error returned by the run.
func (e *Engine) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	return err
}

func (e *Engine) eligible(vis visibilityTable, i, j int32) bool {
	f, ok := vis[pairOf(i, j)]
	return ok && f >= e.cfg.MinVisibleFraction
}

// activation is the radius scale from which p becomes a candidate pair. It
// does not depend on the configured scale, so a larger scale only appends
// pairs to the end of the activation order.
func activation(lights []UnifiedLight, p lightPair) float64 {
	a, b := &lights[p.a], &lights[p.b]
	d := a.Position.Sub(b.Position).Len()
	r := min(a.EffectiveRadius, b.EffectiveRadius)
	if r <= 0 {
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return d / r
}

// compareIDs orders pairs by their light ids, lower id first.
func compareIDs(lights []UnifiedLight, x, y lightPair) int {
	xa, xb := lights[x.a].ID, lights[x.b].ID
	if xb < xa {
		xa, xb = xb, xa
	}
	ya, yb := lights[y.a].ID, lights[y.b].ID
	if yb < ya {
		ya, yb = yb, ya
	}
	if r := strings.Compare(xa, ya); r != 0 {
		return r
	}
	return strings.Compare(xb, yb)
}

type mergeGroup struct {
	members []int32
	sum     mgl64.Vec3
}

func (g *mergeGroup) centroid() mgl64.Vec3 {
	return g.sum.Mul(1 / float64(len(g.members)))
}

// growGroups merges lights along the eligible edges in activation order. Two
// groups merge only when every pair across them is eligible, so each group
// stays mutually visible. Edges of equal activation go first to the groups
// whose centroids are closest, then by id pair. vis must hold every pair
// inside a connected component.
func (e *Engine) growGroups(edges []lightPair, lights []UnifiedLight, vis visibilityTable) [][]int32 {
	act := make(map[lightPair]float64, len(edges))
	for _, p := range edges {
		act[p] = activation(lights, p)
	}
	slices.SortFunc(edges, func(x, y lightPair) int {
		if r := cmp.Compare(act[x], act[y]); r != 0 {
			return r
		}
		return compareIDs(lights, x, y)
	})

	owner := make([]int32, len(lights))
	groups := make([]*mergeGroup, len(lights))
	for i := range lights {
		owner[i] = int32(i)
		groups[i] = &mergeGroup{members: []int32{int32(i)}, sum: lights[i].Position}
	}
	mergeable := func(ga, gb int32) bool {
		for _, i := range groups[ga].members {
			for _, j := range groups[gb].members {
				if !e.eligible(vis, i, j) {
					return false
				}
			}
		}
		return true
	}

	for lo := 0; lo < len(edges); {
		hi := lo + 1
		for hi < len(edges) && act[edges[hi]] == act[edges[lo]] {
			hi++
		}
		run := slices.Clone(edges[lo:hi])
		lo = hi

		for len(run) > 0 {
			best := -1
			bestDist := math.Inf(1)
			for k := 0; k < len(run); k++ {
				ga, gb := owner[run[k].a], owner[run[k].b]
				// groups only grow, so a pair that cannot merge now never will
				if ga == gb || !mergeable(ga, gb) {
					run = slices.Delete(run, k, k+1)
					k--
					continue
				}
				if d := groups[ga].centroid().Sub(groups[gb].centroid()).Len(); d < bestDist {
					best, bestDist = k, d
				}
			}
			if best < 0 {
				break
			}
			ga, gb := owner[run[best].a], owner[run[best].b]
			if gb < ga {
				ga, gb = gb, ga
			}
			for _, m := range groups[gb].members {
				owner[m] = ga
			}
			groups[ga].members = append(groups[ga].members, groups[gb].members...)
			groups[ga].sum = groups[ga].sum.Add(groups[gb].sum)
			groups[gb] = nil
			run = slices.Delete(run, best, best+1)
		}
	}

	var out [][]int32
	for _, g := range groups {
		if g != nil {
			out = append(out, g.members)
		}
	}
	return out
}

// finalizeClusters sorts members, computes centroid and radius and assigns
// indices in centroid order.
func finalizeClusters(groups [][]int32, lights []UnifiedLight, vis visibilityTable) []Cluster {
	clusters := make([]Cluster, len(groups))
	for gi, g := range groups {
		idx := slices.Clone(g)
		slices.SortFunc(idx, func(a, b int32) int { return strings.Compare(lights[a].ID, lights[b].ID) })

		c := Cluster{
			Members:            make([]string, len(idx)),
			MemberIdx:          make([]int, len(idx)),
			MinVisibleFraction: 1,
		}
		var sum mgl64.Vec3
		for k, i := range idx {
			c.Members[k] = lights[i].ID
			c.MemberIdx[k] = int(i)
			sum = sum.Add(lights[i].Position)
			c.Power += lights[i].RadiantPower()
		}
		c.Centroid = sum.Mul(1 / float64(len(idx)))
		for x, i := range idx {
			c.Radius = max(c.Radius, lights[i].Position.Sub(c.Centroid).Len())
			for _, j := range idx[x+1:] {
				if f, ok := vis[pairOf(i, j)]; ok {
					c.MinVisibleFraction = min(c.MinVisibleFraction, f)
				}
			}
		}
		c.Key = uuid.NewSHA1(clusterNamespace, []byte(strings.Join(c.Members, "\x00")))
		clusters[gi] = c
	}

	slices.SortFunc(clusters, func(a, b Cluster) int {
		for k := 0; k < 3; k++ {
			if r := cmp.Compare(a.Centroid[k], b.Centroid[k]); r != 0 {
				return r
			}
		}
		return strings.Compare(a.Members[0], b.Members[0])
	})
	for i := range clusters {
		clusters[i].Index = i
	}
	return clusters
}

// sampleClusters fills every cluster's LUT row. Clusters are independent,
// each worker writes only the clusters of its own batch.
func (e *Engine) sampleClusters(ctx context.Context, clusters []Cluster, lights []UnifiedLight) error {
	n := e.cfg.LUTSampleCount
	prog := newStageProgress(e.progress, StageSample, len(clusters))
	return parallelBatches(ctx, e.workers, 1, len(clusters), func(ctx context.Context, lo, hi int) error {
		for ci := lo; ci < hi; ci++ {
			sampleCluster(&clusters[ci], lights, n)
		}
		prog.add(hi - lo)
		return nil
	})
}

// sampleCluster evaluates the summed falloff of the members at n distances
// from the centroid. Each member is seen through its own falloff at its true
// distance sqrt(d^2+|o|^2) and weighted by its emission toward the centroid.
func sampleCluster(c *Cluster, lights []UnifiedLight, n int) {
	extent := c.Radius
	for _, i := range c.MemberIdx {
		extent = max(extent, c.Radius+lights[i].EffectiveRadius)
	}
	c.SampleExtent = extent

	type term struct {
		weight float64
		off2   float64
	}
	terms := make([]term, len(c.MemberIdx))
	for k, i := range c.MemberIdx {
		u := &lights[i]
		off := u.Position.Sub(c.Centroid)
		l := off.Len()
		w := 1.0
		if l > 1e-9 {
			w = u.Directional(off.Mul(-1 / l))
		}
		terms[k] = term{weight: w, off2: l * l}
	}

	c.Samples = make([]float64, n)
	for k := range c.Samples {
		d := c.SampleDistance(k)
		var sum float64
		for m, i := range c.MemberIdx {
			if terms[m].weight == 0 {
				continue
			}
			sum += terms[m].weight * lights[i].Falloff(math.Sqrt(d*d+terms[m].off2))
		}
		c.Samples[k] = sum
	}
}
