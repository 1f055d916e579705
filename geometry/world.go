package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gekko3d/lightbake"
)

const (
	surfaceEpsilon = 0.001
	// SurfaceOffset lifts emitter samples off the face they are mounted on.
	SurfaceOffset = 0.1
)

var ErrNonFiniteQuery = errors.New("geometry: query point is not finite")

// World is the immutable brush set of a level. All methods are safe for
// concurrent use.
type World struct {
	brushes []Brush
	bvh     *BVH
}

var _ lightbake.GeometryAccessor = (*World)(nil)

// NewWorld validates the brushes and indexes them.
func NewWorld(brushes []Brush) (*World, error) {
	boxes := make([]lightbake.AABB, len(brushes))
	var errs []error
	for i := range brushes {
		if err := brushes[i].validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		boxes[i] = brushes[i].Bounds
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("malformed geometry: %w", errors.Join(errs...))
	}
	return &World{brushes: brushes, bvh: BuildBVH(boxes)}, nil
}

func (w *World) Brushes() []Brush { return w.brushes }

// TestOccluded reports whether a solid brush blocks the segment a-b.
// Segments starting inside a brush are occluded; a segment starting on a
// face and leaving the brush is not.
func (w *World) TestOccluded(a, b mgl64.Vec3) (bool, error) {
	if !finite(a) || !finite(b) {
		return false, ErrNonFiniteQuery
	}
	diff := b.Sub(a)
	dist := diff.Len()
	if dist < surfaceEpsilon {
		return false, nil
	}
	dir := diff.Mul(1 / dist)

	occluded := false
	w.bvh.visit(a, dir, dist, func(item int32) bool {
		br := &w.brushes[item]
		if br.Passable {
			return true
		}
		if _, _, ok := clipBrush(a, dir, dist, br); ok {
			occluded = true
			return false
		}
		return true
	})
	return occluded, nil
}

// Hit is the nearest surface along a ray.
type Hit struct {
	T       float64
	Point   mgl64.Vec3
	Normal  mgl64.Vec3
	BrushID int
}

// TraceClosest returns the nearest brush face along origin+t*dir for t up
// to maxDist. Passable brushes count as surfaces here. A ray starting just
// behind a face reports that face at t=0.
func (w *World) TraceClosest(origin, dir mgl64.Vec3, maxDist float64) (Hit, bool, error) {
	if !finite(origin) || !finite(dir) || math.IsNaN(maxDist) {
		return Hit{}, false, ErrNonFiniteQuery
	}
	l := dir.Len()
	if l < 1e-12 {
		return Hit{}, false, errors.New("geometry: zero trace direction")
	}
	dir = dir.Mul(1 / l)

	var best Hit
	found := false
	closest := maxDist
	w.bvh.visit(origin, dir, maxDist, func(item int32) bool {
		br := &w.brushes[item]
		tNear, plane, ok := clipBrush(origin, dir, closest, br)
		if !ok || tNear <= -0.1 {
			return true
		}
		t := math.Max(tNear, 0)
		normal := dir.Mul(-1) // started inside
		if plane >= 0 {
			normal = br.Planes[plane].Normal
		}
		closest = t
		best = Hit{T: t, Point: origin.Add(dir.Mul(t)), Normal: normal, BrushID: br.ID}
		found = true
		return true
	})
	return best, found, nil
}

// clipBrush clips the ray against the brush's half-spaces. It returns the
// entry distance and the entry plane index (-1 when the ray starts inside).
func clipBrush(origin, dir mgl64.Vec3, maxT float64, br *Brush) (float64, int, bool) {
	tNear, tFar := -math.MaxFloat64, maxT
	enter := -1
	for i, p := range br.Planes {
		numer := -p.Distance(origin)
		denom := p.Normal.Dot(dir)
		if math.Abs(denom) < 1e-9 {
			if numer < 0 {
				return 0, -1, false
			}
			continue
		}
		t := numer / denom
		if denom < 0 {
			if t > tNear {
				tNear, enter = t, i
			}
		} else if t < tFar {
			tFar = t
		}
		if tNear > tFar || tFar < 0 {
			return 0, -1, false
		}
	}
	if tNear < tFar-surfaceEpsilon && tFar > surfaceEpsilon && tNear < maxT {
		if enter < 0 {
			return 0, -1, true
		}
		return tNear, enter, true
	}
	return 0, -1, false
}

// SampleSurface returns the emitter samples of a light. Area samples are
// lifted off the mounting face; a spot probe stops short of any surface in
// front of the lamp.
func (w *World) SampleSurface(e lightbake.LightEntity) ([]mgl64.Vec3, error) {
	pts := lightbake.EmitterSamplePoints(e)
	switch e.Shape {
	case lightbake.LightShapeArea:
		n := e.Direction.Normalize()
		for i := range pts {
			pts[i] = pts[i].Add(n.Mul(SurfaceOffset))
		}
	case lightbake.LightShapeSpot:
		if len(pts) == 0 {
			break
		}
		off := pts[0].Sub(e.Position)
		hit, ok, err := w.TraceClosest(e.Position, off, off.Len())
		if err != nil {
			return nil, fmt.Errorf("light %q: %w", e.ID, err)
		}
		if ok {
			pts[0] = e.Position.Add(off.Normalize().Mul(math.Max(hit.T-SurfaceOffset, 0)))
		}
	}
	for _, p := range pts {
		if !finite(p) {
			return nil, fmt.Errorf("light %q: %w", e.ID, ErrNonFiniteQuery)
		}
	}
	return pts, nil
}
