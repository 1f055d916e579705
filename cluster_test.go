package lightbake

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wallAccessor blocks every segment crossing one of the planes x = wall.
type wallAccessor struct{ walls []float64 }

func (w wallAccessor) TestOccluded(a, b mgl64.Vec3) (bool, error) {
	for _, x := range w.walls {
		if (a.X()-x)*(b.X()-x) < 0 {
			return true, nil
		}
	}
	return false, nil
}

func (wallAccessor) SampleSurface(e LightEntity) ([]mgl64.Vec3, error) {
	return EmitterSamplePoints(e), nil
}

// blockedPairs blocks the segments between the listed point pairs.
type blockedPairs struct {
	OpenSpace
	pairs [][2]mgl64.Vec3
}

func (b blockedPairs) TestOccluded(x, y mgl64.Vec3) (bool, error) {
	for _, p := range b.pairs {
		if (x == p[0] && y == p[1]) || (x == p[1] && y == p[0]) {
			return true, nil
		}
	}
	return false, nil
}

type failingAccessor struct {
	OpenSpace
	occludeErr error
	sampleErr  error
}

func (f failingAccessor) TestOccluded(a, b mgl64.Vec3) (bool, error) {
	return false, f.occludeErr
}

func (f failingAccessor) SampleSurface(e LightEntity) ([]mgl64.Vec3, error) {
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	return nil, nil
}

// cancelingAccessor cancels the run on its first occlusion query.
type cancelingAccessor struct {
	OpenSpace
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelingAccessor) TestOccluded(a, b mgl64.Vec3) (bool, error) {
	c.once.Do(c.cancel)
	return false, nil
}

func newTestEngine(t *testing.T, geo GeometryAccessor, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngineBuilder().UseConfig(cfg).UseGeometry(geo).Build()
	require.NoError(t, err)
	return e
}

func run(t *testing.T, e *Engine, entities []LightEntity) *RunResult {
	t.Helper()
	res, err := e.Run(context.Background(), entities, ModeAnalyzeOnly)
	require.NoError(t, err)
	return res
}

func randomScene(seed int64, n int) []LightEntity {
	rng := rand.New(rand.NewSource(seed))
	out := make([]LightEntity, n)
	for i := range out {
		e := pointLight(
			string(rune('A'+i%26))+string(rune('a'+i/26)),
			mgl64.Vec3{rng.Float64() * 400, rng.Float64() * 400, rng.Float64() * 400},
			50+rng.Float64()*450,
		)
		switch i % 3 {
		case 1:
			e.Shape = LightShapeSpot
			e.Direction = mgl64.Vec3{rng.Float64() - 0.5, rng.Float64() - 0.5, -1}
			e.InnerCone, e.OuterCone, e.SpotExponent = 30, 60, 2
		case 2:
			e.Shape = LightShapeArea
			e.Direction = mgl64.Vec3{0, 0, -1}
			e.Width, e.Height = 8+rng.Float64()*32, 8+rng.Float64()*32
		}
		out[i] = e
	}
	return out
}

func memberSets(clusters []Cluster) map[string]int {
	owner := make(map[string]int)
	for _, c := range clusters {
		for _, id := range c.Members {
			owner[id] = c.Index
		}
	}
	return owner
}

func TestClusterEmptyInput(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	res, err := e.Run(context.Background(), nil, ModeUpdateAssets)
	require.NoError(t, err)
	assert.Empty(t, res.Clusters)
	assert.Empty(t, res.Diagnostics)
	require.NotNil(t, res.Bake)
	assert.Empty(t, res.Bake.Rows)
}

func TestSingletonMatchesInverseSquare(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	res := run(t, e, []LightEntity{pointLight("lamp", mgl64.Vec3{10, 20, 30}, 1000)})

	require.Len(t, res.Clusters, 1)
	c := res.Clusters[0]
	assert.Equal(t, []string{"lamp"}, c.Members)
	assert.Equal(t, mgl64.Vec3{10, 20, 30}, c.Centroid)
	assert.Zero(t, c.Radius)
	require.Len(t, c.Samples, DefaultLUTSampleCount)

	r := res.Lights[0].EffectiveRadius
	assert.InDelta(t, math.Sqrt(1000/DefaultNegligibilityThreshold), r, 1e-3)
	assert.Equal(t, r, c.SampleExtent)
	for k, s := range c.Samples {
		d := c.SampleDistance(k)
		assert.InEpsilon(t, 1000/(d*d+DefaultFalloffEpsilon), s, 1e-12, "sample %d", k)
	}
	assert.InDelta(t, DefaultNegligibilityThreshold, c.Samples[len(c.Samples)-1], 1e-9)
}

func TestWallKeepsLightsApart(t *testing.T) {
	lights := []LightEntity{
		pointLight("west", mgl64.Vec3{0, 0, 0}, 1000),
		pointLight("east", mgl64.Vec3{50, 0, 0}, 1000),
	}

	walled := run(t, newTestEngine(t, wallAccessor{walls: []float64{25}}, nil), lights)
	require.Len(t, walled.Clusters, 2)
	assert.Equal(t, []string{"west"}, walled.Clusters[0].Members)
	assert.Equal(t, []string{"east"}, walled.Clusters[1].Members)

	open := run(t, newTestEngine(t, nil, nil), lights)
	require.Len(t, open.Clusters, 1)
	assert.Equal(t, []string{"east", "west"}, open.Clusters[0].Members)
	assert.Equal(t, mgl64.Vec3{25, 0, 0}, open.Clusters[0].Centroid)
	assert.Equal(t, 25.0, open.Clusters[0].Radius)
	// two isotropic lights of intensity 1000
	assert.InDelta(t, 2*4*math.Pi*1000, open.Clusters[0].Power, 1e-6)
	assert.InDelta(t, 4*math.Pi*1000, walled.Clusters[0].Power, 1e-6)
}

func TestClusterDeterministicAcrossWorkers(t *testing.T) {
	scene := randomScene(42, 90)
	geo := wallAccessor{walls: []float64{100, 200, 300}}

	serial := run(t, newTestEngine(t, geo, func(c *Config) { c.Workers, c.BatchSize = 1, 1 }), scene)
	parallel := run(t, newTestEngine(t, geo, func(c *Config) { c.Workers, c.BatchSize = 8, 7 }), scene)
	again := run(t, newTestEngine(t, geo, func(c *Config) { c.Workers, c.BatchSize = 3, 64 }), scene)

	require.NotEmpty(t, serial.Clusters)
	assert.Equal(t, serial.Clusters, parallel.Clusters)
	assert.Equal(t, serial.Clusters, again.Clusters)
	assert.Equal(t, serial.ClusterScores, parallel.ClusterScores)
}

func TestClusterPartitionAndVisibility(t *testing.T) {
	scene := randomScene(7, 75)
	geo := wallAccessor{walls: []float64{130, 260}}
	e := newTestEngine(t, geo, nil)
	res := run(t, e, scene)

	seen := make(map[string]int)
	for i, c := range res.Clusters {
		assert.Equal(t, i, c.Index)
		assert.IsIncreasing(t, c.Members)
		for _, id := range c.Members {
			seen[id]++
		}
	}
	require.Len(t, seen, len(res.Lights))
	for _, u := range res.Lights {
		assert.Equal(t, 1, seen[u.ID], u.ID)
	}

	samples, err := e.surfaceSamples(context.Background(), res.Lights, scene)
	require.NoError(t, err)
	for _, c := range res.Clusters {
		for x, i := range c.MemberIdx {
			for _, j := range c.MemberIdx[x+1:] {
				pv, err := e.testPair(StageVisible, pairOf(int32(i), int32(j)), res.Lights, samples)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, pv.Fraction, e.cfg.MinVisibleFraction,
					"%s and %s share cluster %d", res.Lights[i].ID, res.Lights[j].ID, c.Index)
			}
		}
	}
}

func TestClusterOrderedByCentroid(t *testing.T) {
	res := run(t, newTestEngine(t, wallAccessor{walls: []float64{100, 200, 300}}, nil), randomScene(3, 40))
	for i := 1; i < len(res.Clusters); i++ {
		a, b := res.Clusters[i-1].Centroid, res.Clusters[i].Centroid
		assert.True(t, a.X() < b.X() || a.X() == b.X() && (a.Y() < b.Y() || a.Y() == b.Y() && a.Z() <= b.Z()))
	}
}

func TestSplitTieGoesToLowerID(t *testing.T) {
	a, b := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{20, 0, 0}
	geo := blockedPairs{pairs: [][2]mgl64.Vec3{{a, b}}}

	tests := []struct {
		name string
		c    mgl64.Vec3
		want [][]string
	}{
		{"equidistant", mgl64.Vec3{10, 0, 0}, [][]string{{"a", "c"}, {"b"}}},
		{"nearer a", mgl64.Vec3{8, 0, 0}, [][]string{{"a", "c"}, {"b"}}},
		{"nearer b", mgl64.Vec3{12, 0, 0}, [][]string{{"a"}, {"b", "c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, newTestEngine(t, geo, nil), []LightEntity{
				pointLight("a", a, 1000),
				pointLight("b", b, 1000),
				pointLight("c", tt.c, 1000),
			})
			var got [][]string
			for _, c := range res.Clusters {
				got = append(got, c.Members)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClosureTestsPairsOutsideReach(t *testing.T) {
	// reach is 15 units: a-c and c-b are candidates, a-b is not
	a, b, c := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{20, 0, 0}, mgl64.Vec3{10, 0, 0}
	lights := []LightEntity{pointLight("a", a, 2.25), pointLight("b", b, 2.25), pointLight("c", c, 2.25)}

	open := run(t, newTestEngine(t, nil, nil), lights)
	require.Len(t, open.Clusters, 1)
	assert.Equal(t, []string{"a", "b", "c"}, open.Clusters[0].Members)

	split := run(t, newTestEngine(t, blockedPairs{pairs: [][2]mgl64.Vec3{{a, b}}}, nil), lights)
	require.Len(t, split.Clusters, 2)
	assert.Equal(t, []string{"a", "c"}, split.Clusters[0].Members)
	assert.Equal(t, []string{"b"}, split.Clusters[1].Members)
}

func TestClusteringMonotoneInRadiusScale(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var scene []LightEntity
	for i := 0; i < 60; i++ {
		scene = append(scene, pointLight(
			string(rune('A'+i%26))+string(rune('a'+i/26)),
			mgl64.Vec3{rng.Float64() * 600, rng.Float64() * 600, rng.Float64() * 600},
			1+rng.Float64()*99,
		))
	}
	var blocked blockedPairs
	for i := 0; i < len(scene); i++ {
		for j := i + 1; j < len(scene); j++ {
			if (i+j)%3 == 0 {
				blocked.pairs = append(blocked.pairs, [2]mgl64.Vec3{scene[i].Position, scene[j].Position})
			}
		}
	}

	for name, geo := range map[string]GeometryAccessor{
		"open":    OpenSpace{},
		"blocked": blocked,
		"walls":   wallAccessor{walls: []float64{150, 300, 450}},
	} {
		t.Run(name, func(t *testing.T) {
			var prev map[string]int
			prevSize := map[string]int{}
			for _, scale := range []float64{0, 0.5, 1, 2, 4} {
				res := run(t, newTestEngine(t, geo, func(c *Config) { c.ClusteringRadiusScale = scale }), scene)
				owner := memberSets(res.Clusters)
				size := map[string]int{}
				for _, c := range res.Clusters {
					for _, id := range c.Members {
						size[id] = c.Size()
					}
				}
				if prev != nil {
					// lights sharing a cluster keep sharing one at a larger scale
					for id, ci := range prev {
						for other, cj := range prev {
							if ci == cj {
								assert.Equal(t, owner[id], owner[other], "scale %g: %s and %s separated", scale, id, other)
							}
						}
						assert.GreaterOrEqual(t, size[id], prevSize[id], "scale %g: %s", scale, id)
					}
				}
				prev, prevSize = owner, size
			}
		})
	}
}

func TestWiderReachKeepsEarlierMerge(t *testing.T) {
	a, b, c := mgl64.Vec3{-20, 0, 0}, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{5, 0, 0}
	geo := blockedPairs{pairs: [][2]mgl64.Vec3{{a, c}}}
	lights := []LightEntity{pointLight("a", a, 1), pointLight("b", b, 1), pointLight("c", c, 1)}

	// reach is about 10 units at scale 1: only b-c is a candidate. At scale 3
	// a-b is one too, but a cannot join while a-c is blocked.
	for _, scale := range []float64{1, 3} {
		res := run(t, newTestEngine(t, geo, func(c *Config) { c.ClusteringRadiusScale = scale }), lights)
		var got [][]string
		for _, c := range res.Clusters {
			got = append(got, c.Members)
		}
		assert.Equal(t, [][]string{{"a"}, {"b", "c"}}, got, "scale %g", scale)
	}
}

func TestClusterAbortsOnGeometryFailure(t *testing.T) {
	lights := []LightEntity{
		pointLight("a", mgl64.Vec3{0, 0, 0}, 1000),
		pointLight("b", mgl64.Vec3{10, 0, 0}, 1000),
	}
	boom := errors.New("bad brush")

	res, err := newTestEngine(t, failingAccessor{occludeErr: boom}, nil).Run(context.Background(), lights, ModeUpdateAssets)
	assert.Nil(t, res)
	var ce *ClusteringError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, GeometryQueryFailed, ce.Kind)
	assert.Equal(t, StageVisible, ce.Stage)
	assert.Equal(t, "a", ce.LightID)
	assert.Equal(t, "b", ce.OtherID)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, &ClusteringError{Kind: GeometryQueryFailed})

	res, err = newTestEngine(t, failingAccessor{sampleErr: boom}, nil).Run(context.Background(), lights, ModeAnalyzeOnly)
	assert.Nil(t, res)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, GeometryQueryFailed, ce.Kind)
}

func TestClusterCancellation(t *testing.T) {
	scene := randomScene(5, 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newTestEngine(t, nil, nil).Run(ctx, scene, ModeAnalyzeOnly)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCanceled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	geo := &cancelingAccessor{cancel: cancel}
	res, err = newTestEngine(t, geo, func(c *Config) { c.BatchSize = 1 }).Run(ctx, scene, ModeUpdateAssets)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleClusterSumsMembers(t *testing.T) {
	cfg := DefaultConfig()
	var lights []UnifiedLight
	for i, x := range []float64{-5, 5} {
		u, err := Unify(pointLight(string(rune('a'+i)), mgl64.Vec3{x, 0, 0}, 100), i, cfg)
		require.Nil(t, err)
		lights = append(lights, u)
	}
	c := Cluster{MemberIdx: []int{0, 1}, Radius: 5}
	sampleCluster(&c, lights, 16)

	assert.Equal(t, 5+lights[0].EffectiveRadius, c.SampleExtent)
	for k, s := range c.Samples {
		d := c.SampleDistance(k)
		assert.InEpsilon(t, 2*lights[0].Falloff(math.Sqrt(d*d+25)), s, 1e-12)
	}
	assert.IsNonIncreasing(t, c.Samples)
}

func TestSampleClusterWeightsSpotDirection(t *testing.T) {
	cfg := DefaultConfig()
	spot := pointLight("s", mgl64.Vec3{0, 0, 10}, 100)
	spot.Shape = LightShapeSpot
	spot.InnerCone, spot.OuterCone = 20, 40

	down, up := spot, spot
	down.Direction = mgl64.Vec3{0, 0, -1}
	up.Direction = mgl64.Vec3{0, 0, 1}
	ud, err := Unify(down, 0, cfg)
	require.Nil(t, err)
	uu, err := Unify(up, 0, cfg)
	require.Nil(t, err)

	// centroid below the lamp: the downward spot reaches it, the upward one does not
	c := Cluster{MemberIdx: []int{0}, Centroid: mgl64.Vec3{0, 0, 0}, Radius: 10}
	sampleCluster(&c, []UnifiedLight{ud}, 8)
	assert.Greater(t, c.Samples[0], 0.0)

	c = Cluster{MemberIdx: []int{0}, Centroid: mgl64.Vec3{0, 0, 0}, Radius: 10}
	sampleCluster(&c, []UnifiedLight{uu}, 8)
	for _, s := range c.Samples {
		assert.Zero(t, s)
	}
}
