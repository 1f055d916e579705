package lightbake

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointLight(id string, pos mgl64.Vec3, brightness float64) LightEntity {
	return LightEntity{
		ID:          id,
		Shape:       LightShapePoint,
		Position:    pos,
		Color:       [3]float64{1, 1, 1},
		Brightness:  brightness,
		Attenuation: Attenuation{Quadratic: 1},
	}
}

func TestUnifyQuadraticPointLight(t *testing.T) {
	cfg := DefaultConfig()
	u, err := Unify(pointLight("lamp", mgl64.Vec3{}, 1000), 0, cfg)
	require.Nil(t, err)

	assert.Equal(t, 1000.0, u.Intensity)
	assert.Equal(t, 2.0, u.FalloffExponent)
	assert.Equal(t, cfg.FalloffEpsilon, u.Epsilon)
	assert.InDelta(t, math.Sqrt(1000/cfg.NegligibilityThreshold-cfg.FalloffEpsilon), u.EffectiveRadius, 1e-6)
	assert.False(t, u.RadiusClamped)
	// the curve is at the negligibility threshold at the effective radius
	assert.InDelta(t, cfg.NegligibilityThreshold*cfg.PeakOutput, u.Falloff(u.EffectiveRadius), 1e-9)
	assert.InDelta(t, 4*math.Pi, u.SolidAngle, 1e-12)
}

func TestUnifyMatchesLegacyAtReferenceDistance(t *testing.T) {
	cfg := DefaultConfig()
	for _, att := range []Attenuation{
		{Constant: 1},
		{Linear: 1},
		{Constant: 0.5, Linear: 0.01, Quadratic: 0.0001},
	} {
		e := pointLight("l", mgl64.Vec3{}, 300)
		e.Attenuation = att
		u, err := Unify(e, 0, cfg)
		require.Nil(t, err)
		legacy := e.Brightness * att.At(cfg.ReferenceDistance)
		assert.InEpsilon(t, legacy, u.Falloff(cfg.ReferenceDistance), 1e-6, "%+v", att)
	}
}

func TestUnifyInvalidAttenuation(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[string]func(e *LightEntity){
		"all zero":        func(e *LightEntity) { e.Attenuation = Attenuation{} },
		"all negative":    func(e *LightEntity) { e.Attenuation = Attenuation{-1, -1, -1} },
		"negative at d":   func(e *LightEntity) { e.Attenuation = Attenuation{Constant: 1, Linear: -1} },
		"nan":             func(e *LightEntity) { e.Attenuation.Linear = math.NaN() },
		"zero brightness": func(e *LightEntity) { e.Brightness = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := pointLight("bad", mgl64.Vec3{}, 100)
			mutate(&e)
			_, err := Unify(e, 3, cfg)
			require.NotNil(t, err)
			assert.Equal(t, InvalidAttenuation, err.Kind)
			assert.Equal(t, "bad", err.LightID)
			assert.Equal(t, 3, err.Index)
			assert.True(t, errors.Is(err, &ConversionError{Kind: InvalidAttenuation}))
		})
	}
}

func TestUnifyDegenerateGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AreaEpsilon = 0

	area := pointLight("panel", mgl64.Vec3{}, 100)
	area.Shape = LightShapeArea
	area.Direction = mgl64.Vec3{0, 0, -1}
	_, err := Unify(area, 0, cfg)
	require.NotNil(t, err)
	assert.Equal(t, DegenerateGeometry, err.Kind)

	area.Width, area.Height = -1, 2
	_, err = Unify(area, 0, DefaultConfig())
	require.NotNil(t, err)
	assert.Equal(t, DegenerateGeometry, err.Kind)

	spot := pointLight("spot", mgl64.Vec3{}, 100)
	spot.Shape = LightShapeSpot
	spot.OuterCone = 45
	_, err = Unify(spot, 0, cfg)
	require.NotNil(t, err, "spot without direction")
	assert.Equal(t, DegenerateGeometry, err.Kind)

	nan := pointLight("nan", mgl64.Vec3{math.Inf(1), 0, 0}, 100)
	_, err = Unify(nan, 0, cfg)
	require.NotNil(t, err)
	assert.Equal(t, DegenerateGeometry, err.Kind)
}

func TestUnifyAreaConvergesToPoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AreaEpsilon = 0
	point, err := Unify(pointLight("p", mgl64.Vec3{}, 500), 0, cfg)
	require.Nil(t, err)

	prev := math.Inf(1)
	for _, size := range []float64{10, 1, 1e-2, 1e-4, 1e-6} {
		e := pointLight("a", mgl64.Vec3{}, 500)
		e.Shape = LightShapeArea
		e.Direction = mgl64.Vec3{0, 0, 1}
		e.Width, e.Height = size, size
		u, err := Unify(e, 0, cfg)
		require.Nil(t, err)

		diff := math.Abs(u.Falloff(0.5)-point.Falloff(0.5)) / point.Falloff(0.5)
		assert.Less(t, diff, prev)
		prev = diff
		assert.Equal(t, point.Intensity, u.Intensity)

		// on the emitter axis the cosine lobe is 1, so the full
		// contribution converges too
		onAxis := mgl64.Vec3{0, 0, 0.5}
		assert.InDelta(t, u.Falloff(0.5), u.Contribution(onAxis), 1e-12*u.Falloff(0.5))
		if size <= 1e-6 {
			assert.InDelta(t, point.Contribution(onAxis), u.Contribution(onAxis), 1e-6*point.Contribution(onAxis))
		}
	}
	assert.Less(t, prev, 1e-6)

	// Behind a one-sided emitter nothing arrives: continuity covers the
	// radial term, the emission lobe stays that of an area light.
	e := pointLight("a", mgl64.Vec3{}, 500)
	e.Shape = LightShapeArea
	e.Direction = mgl64.Vec3{0, 0, 1}
	e.Width, e.Height = 1e-6, 1e-6
	u, err := Unify(e, 0, cfg)
	require.Nil(t, err)
	assert.Zero(t, u.Contribution(mgl64.Vec3{0, 0, -0.5}))
	assert.Equal(t, 2*math.Pi, u.SolidAngle)
}

func TestUnifySpotCones(t *testing.T) {
	e := pointLight("spot", mgl64.Vec3{}, 100)
	e.Shape = LightShapeSpot
	e.Direction = mgl64.Vec3{0, 0, -2}
	e.InnerCone, e.OuterCone = 90, 60 // inner wider than outer is clamped
	e.SpotExponent = 1

	u, err := Unify(e, 0, DefaultConfig())
	require.Nil(t, err)
	assert.Equal(t, mgl64.Vec3{0, 0, -1}, u.Direction)
	assert.Equal(t, u.OuterCos, u.InnerCos)
	assert.InDelta(t, math.Cos(math.Pi/6), u.OuterCos, 1e-12)
	assert.InDelta(t, 2*math.Pi*(1-math.Cos(math.Pi/6)), u.SolidAngle, 1e-12)

	assert.Equal(t, 1.0, u.Directional(mgl64.Vec3{0, 0, -1}))
	assert.Equal(t, 0.0, u.Directional(mgl64.Vec3{1, 0, 0}))
	assert.Equal(t, 0.0, u.Directional(mgl64.Vec3{0, 0, 1}))
}

func TestUnifyAllDropsAndReports(t *testing.T) {
	entities := []LightEntity{
		pointLight("a", mgl64.Vec3{}, 100),
		pointLight("b", mgl64.Vec3{1, 0, 0}, 0),
		pointLight("a", mgl64.Vec3{2, 0, 0}, 100),
		pointLight("c", mgl64.Vec3{3, 0, 0}, 100),
	}
	res := UnifyAll(entities, DefaultConfig())

	require.Len(t, res.Lights, 2)
	assert.Equal(t, "a", res.Lights[0].ID)
	assert.Equal(t, "c", res.Lights[1].ID)
	assert.Equal(t, 3, res.Lights[1].Source)

	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, 1, res.Diagnostics.Count(InvalidAttenuation))
	assert.Equal(t, 1, res.Diagnostics.Count(DuplicateIdentifier))
	err := res.Diagnostics.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
}

func TestUnifyRadiusClamp(t *testing.T) {
	cfg := DefaultConfig()
	dim, err := Unify(pointLight("dim", mgl64.Vec3{}, 1e-5), 0, cfg)
	require.Nil(t, err)
	assert.True(t, dim.RadiusClamped)
	assert.Equal(t, cfg.MinEffectiveRadius, dim.EffectiveRadius)

	huge, err := Unify(pointLight("sun", mgl64.Vec3{}, 1e12), 0, cfg)
	require.Nil(t, err)
	assert.True(t, huge.RadiusClamped)
	assert.Equal(t, cfg.MaxEffectiveRadius, huge.EffectiveRadius)
}
