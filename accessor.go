package lightbake

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// GeometryAccessor answers read-only queries against static level geometry.
// Implementations must be safe for concurrent use; the engine calls them
// from every worker.
type GeometryAccessor interface {
	// TestOccluded reports whether geometry blocks the segment a-b.
	TestOccluded(a, b mgl64.Vec3) (bool, error)
	// SampleSurface returns extra sample points on the light's emitter, in
	// addition to its position.
	SampleSurface(e LightEntity) ([]mgl64.Vec3, error)
}

// OpenSpace is a GeometryAccessor with no geometry at all.
type OpenSpace struct{}

func (OpenSpace) TestOccluded(a, b mgl64.Vec3) (bool, error) { return false, nil }

func (OpenSpace) SampleSurface(e LightEntity) ([]mgl64.Vec3, error) {
	return EmitterSamplePoints(e), nil
}

const (
	emitterInset    = 0.9 // keep corner samples off the emitter edge
	spotProbeOffset = 1.0
)

// EmitterSamplePoints returns the default surface samples for a light:
// nothing for points, a probe one unit down the axis for spots, and the four
// inset corners of the rectangle for area lights.
func EmitterSamplePoints(e LightEntity) []mgl64.Vec3 {
	switch e.Shape {
	case LightShapeSpot:
		dir, ok := unitDirection(e.Direction)
		if !ok {
			return nil
		}
		return []mgl64.Vec3{e.Position.Add(dir.Mul(spotProbeOffset))}
	case LightShapeArea:
		fwd, ok := unitDirection(e.Direction)
		if !ok {
			return nil
		}
		right, up := EmitterBasis(fwd)
		hw := math.Max(e.Width, 0) * 0.5 * emitterInset
		hh := math.Max(e.Height, 0) * 0.5 * emitterInset
		if hw == 0 && hh == 0 {
			return nil
		}
		r, u := right.Mul(hw), up.Mul(hh)
		return []mgl64.Vec3{
			e.Position.Sub(r).Sub(u),
			e.Position.Add(r).Sub(u),
			e.Position.Sub(r).Add(u),
			e.Position.Add(r).Add(u),
		}
	default:
		return nil
	}
}

// EmitterBasis builds the right/up vectors of an emitter facing fwd. The
// world up axis is swapped for X when fwd is nearly vertical.
func EmitterBasis(fwd mgl64.Vec3) (right, up mgl64.Vec3) {
	upBase := mgl64.Vec3{0, 0, 1}
	if math.Abs(fwd.Z()) > 0.99 {
		upBase = mgl64.Vec3{1, 0, 0}
	}
	right = fwd.Cross(upBase).Normalize()
	up = right.Cross(fwd).Normalize()
	return right, up
}
