package lightbake

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// UnifyResult carries the converted lights together with the recoverable
// diagnostics for the lights that were dropped.
type UnifyResult struct {
	Lights      []UnifiedLight
	Diagnostics Diagnostics
}

// UnifyAll converts every entity. Lights that cannot be represented are
// dropped and reported; the order of the surviving lights follows the input.
func UnifyAll(entities []LightEntity, cfg Config) UnifyResult {
	res := UnifyResult{Lights: make([]UnifiedLight, 0, len(entities))}
	seen := make(map[string]int, len(entities))
	for i := range entities {
		e := &entities[i]
		if first, dup := seen[e.ID]; dup {
			res.Diagnostics = append(res.Diagnostics, &ConversionError{
				Kind:    DuplicateIdentifier,
				LightID: e.ID,
				Index:   i,
				Reason:  fmt.Sprintf("identifier already used by light #%d", first),
			})
			continue
		}
		u, err := Unify(*e, i, cfg)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, err)
			continue
		}
		seen[e.ID] = i
		res.Lights = append(res.Lights, u)
	}
	return res
}

// Unify maps one legacy light onto the I/(d^2+eps) model.
//
// The intensity is fitted so both curves agree at cfg.ReferenceDistance,
// which leaves a pure quadratic light (0,0,1) with I equal to its brightness.
// Area emitters add w*h/pi to eps (the on-axis disk term), so a zero-area
// light reduces exactly to the point formula.
func Unify(e LightEntity, index int, cfg Config) (UnifiedLight, *ConversionError) {
	fail := func(kind ConversionErrorKind, format string, args ...any) (UnifiedLight, *ConversionError) {
		return UnifiedLight{}, &ConversionError{Kind: kind, LightID: e.ID, Index: index, Reason: fmt.Sprintf(format, args...)}
	}

	if !finiteVec(e.Position) {
		return fail(DegenerateGeometry, "non-finite position %v", e.Position)
	}

	att := e.Attenuation
	if !isFinite(att.Constant) || !isFinite(att.Linear) || !isFinite(att.Quadratic) {
		return fail(InvalidAttenuation, "non-finite coefficients %+v", att)
	}
	if att.Constant <= 0 && att.Linear <= 0 && att.Quadratic <= 0 {
		return fail(InvalidAttenuation, "all coefficients are zero or negative %+v", att)
	}
	dRef := cfg.ReferenceDistance
	den := att.Denominator(dRef)
	if !(den > 0) {
		return fail(InvalidAttenuation, "curve is not positive at %g units (denominator %g)", dRef, den)
	}
	if !isFinite(e.Brightness) || e.Brightness <= 0 {
		return fail(InvalidAttenuation, "light emits no energy (brightness %g)", e.Brightness)
	}

	u := UnifiedLight{
		ID:              e.ID,
		Source:          index,
		Shape:           e.Shape,
		Position:        e.Position,
		Color:           e.Color,
		Intensity:       e.Brightness * dRef * dRef / den,
		FalloffExponent: 2,
		Bidirectional:   e.Bidirectional,
		InitiallyDark:   e.InitiallyDark,
		Named:           e.Named,
	}
	if !isFinite(u.Intensity) {
		return fail(InvalidAttenuation, "fitted intensity overflows")
	}

	switch e.Shape {
	case LightShapePoint:
		u.SolidAngle = 4 * math.Pi
	case LightShapeSpot:
		dir, ok := unitDirection(e.Direction)
		if !ok {
			return fail(DegenerateGeometry, "spot light has no usable direction %v", e.Direction)
		}
		outer, inner := e.OuterCone, e.InnerCone
		if !isFinite(outer) || !isFinite(inner) || outer <= 0 || outer > 360 {
			return fail(DegenerateGeometry, "cone angles out of range (inner %g, outer %g)", inner, outer)
		}
		if !isFinite(e.SpotExponent) {
			return fail(DegenerateGeometry, "non-finite spot exponent")
		}
		if inner > outer {
			inner = outer
		}
		if inner < 0 {
			inner = 0
		}
		u.Direction = dir
		u.OuterCos = math.Cos(outer * math.Pi / 360)
		u.InnerCos = math.Cos(inner * math.Pi / 360)
		u.SpotExponent = e.SpotExponent
		u.SolidAngle = 2 * math.Pi * (1 - u.OuterCos)
	case LightShapeArea:
		dir, ok := unitDirection(e.Direction)
		if !ok {
			return fail(DegenerateGeometry, "area light has no usable normal %v", e.Direction)
		}
		w, h := e.Width, e.Height
		if !isFinite(w) || !isFinite(h) || w < 0 || h < 0 {
			return fail(DegenerateGeometry, "invalid emitter size %gx%g", w, h)
		}
		w = math.Max(w, cfg.AreaEpsilon)
		h = math.Max(h, cfg.AreaEpsilon)
		if w < MinAreaDimension || h < MinAreaDimension {
			return fail(DegenerateGeometry, "emitter size %gx%g and epsilon %g are below %g", e.Width, e.Height, cfg.AreaEpsilon, MinAreaDimension)
		}
		u.Direction = dir
		u.AreaTerm = w * h
		u.SolidAngle = 2 * math.Pi
		if e.Bidirectional {
			u.SolidAngle = 4 * math.Pi
		}
	default:
		return fail(DegenerateGeometry, "unknown shape %d", e.Shape)
	}

	u.Epsilon = cfg.FalloffEpsilon + u.AreaTerm/math.Pi
	u.EffectiveRadius, u.RadiusClamped = effectiveRadius(u.Intensity, u.Epsilon, cfg)
	return u, nil
}

// effectiveRadius solves I/(r^2+eps) = threshold*peak for r and clamps it
// to the configured bounds.
func effectiveRadius(intensity, eps float64, cfg Config) (float64, bool) {
	v := intensity/(cfg.NegligibilityThreshold*cfg.PeakOutput) - eps
	r := 0.0
	if v > 0 {
		r = math.Sqrt(v)
	}
	switch {
	case r < cfg.MinEffectiveRadius:
		return cfg.MinEffectiveRadius, true
	case r > cfg.MaxEffectiveRadius:
		return cfg.MaxEffectiveRadius, true
	}
	return r, false
}

func unitDirection(v mgl64.Vec3) (mgl64.Vec3, bool) {
	l := v.Len()
	if !isFinite(l) || l < 1e-9 {
		return v, false
	}
	return v.Mul(1 / l), true
}
