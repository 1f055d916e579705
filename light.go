package lightbake

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type LightShape uint32

const (
	LightShapePoint LightShape = 0
	LightShapeSpot  LightShape = 1
	LightShapeArea  LightShape = 2
)

func (s LightShape) String() string {
	switch s {
	case LightShapePoint:
		return "point"
	case LightShapeSpot:
		return "spot"
	case LightShapeArea:
		return "area"
	default:
		return "unknown"
	}
}

// Attenuation is the legacy constant/linear/quadratic falloff triple.
type Attenuation struct {
	Constant  float64 `yaml:"constant"`
	Linear    float64 `yaml:"linear"`
	Quadratic float64 `yaml:"quadratic"`
}

// Denominator returns c + l*d + q*d^2.
func (a Attenuation) Denominator(d float64) float64 {
	return a.Constant + a.Linear*d + a.Quadratic*d*d
}

// At returns the legacy attenuation factor at distance d. A non-positive
// denominator yields +Inf so callers can reject the curve instead of dividing by zero.
func (a Attenuation) At(d float64) float64 {
	den := a.Denominator(d)
	if den <= 0 {
		return math.Inf(1)
	}
	return 1 / den
}

// LightEntity is a light as parsed from the level description. The core
// only reads it.
type LightEntity struct {
	ID            string
	Shape         LightShape
	Position      mgl64.Vec3
	Direction     mgl64.Vec3 // spot axis or area normal
	Color         [3]float64 // linear RGB in [0,1]
	Brightness    float64
	Attenuation   Attenuation
	Width         float64 // area only
	Height        float64 // area only
	InnerCone     float64 // full angle in degrees (spot)
	OuterCone     float64 // full angle in degrees (spot)
	SpotExponent  float64
	Bidirectional bool // area lights emitting from both faces
	InitiallyDark bool // switched off at level start
	Named         bool // addressable by level logic
}

// UnifiedLight is the physically based descriptor derived from one
// LightEntity. It is never mutated after unification.
type UnifiedLight struct {
	ID              string
	Source          int // index into the input entity slice
	Shape           LightShape
	Position        mgl64.Vec3
	Direction       mgl64.Vec3
	Color           [3]float64
	Intensity       float64 // I in I/(d^2+eps)
	EffectiveRadius float64
	FalloffExponent float64
	Epsilon         float64 // near-field term, includes the area contribution
	AreaTerm        float64 // emitter width*height, 0 for point and spot
	SolidAngle      float64
	InnerCos        float64 // cos of the inner half-angle (spot)
	OuterCos        float64 // cos of the outer half-angle (spot)
	SpotExponent    float64
	Bidirectional   bool
	RadiusClamped   bool
	InitiallyDark   bool
	Named           bool
}

// Falloff returns the radial term I/(d^2+eps).
func (u *UnifiedLight) Falloff(d float64) float64 {
	dp := d * d
	if u.FalloffExponent != 2 {
		dp = math.Pow(d, u.FalloffExponent)
	}
	return u.Intensity / (dp + u.Epsilon)
}

// Directional returns the angular weight of emission along dir (unit vector
// pointing away from the light).
func (u *UnifiedLight) Directional(dir mgl64.Vec3) float64 {
	switch u.Shape {
	case LightShapeSpot:
		cosT := u.Direction.Dot(dir)
		span := u.InnerCos - u.OuterCos
		var f float64
		if span <= 1e-9 {
			if cosT >= u.OuterCos {
				f = 1
			}
		} else {
			f = clamp01((cosT - u.OuterCos) / span)
		}
		if f == 0 {
			return 0
		}
		if u.SpotExponent > 0 && u.SpotExponent != 1 {
			f = math.Pow(f, u.SpotExponent)
		}
		return f
	case LightShapeArea:
		c := u.Direction.Dot(dir)
		if u.Bidirectional {
			return math.Abs(c)
		}
		if c < 0 {
			return 0
		}
		return c
	default:
		return 1
	}
}

// Contribution evaluates the light at a world position.
func (u *UnifiedLight) Contribution(p mgl64.Vec3) float64 {
	off := p.Sub(u.Position)
	d := off.Len()
	if d < 1e-9 {
		return u.Falloff(0)
	}
	return u.Directional(off.Mul(1/d)) * u.Falloff(d)
}

// RadiantPower is the intensity integrated over the emission solid angle.
func (u *UnifiedLight) RadiantPower() float64 {
	return u.Intensity * u.SolidAngle
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finiteVec(v mgl64.Vec3) bool {
	return isFinite(v[0]) && isFinite(v[1]) && isFinite(v[2])
}

func isFinite(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) }
