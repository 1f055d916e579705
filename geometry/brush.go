// Package geometry holds the static level geometry the clustering engine
// queries: convex brushes indexed by a BVH.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gekko3d/lightbake"
)

// Plane is n·p + Dist = 0 with Normal pointing out of the brush. Points in
// front of the plane (n·p + Dist > 0) are outside.
type Plane struct {
	Normal mgl64.Vec3
	Dist   float64
}

func (p Plane) Distance(pt mgl64.Vec3) float64 {
	return p.Normal.Dot(pt) + p.Dist
}

// PlaneFromPoints builds the plane through three points listed in
// clockwise order when seen from outside the brush.
func PlaneFromPoints(p1, p2, p3 mgl64.Vec3) (Plane, error) {
	n := p3.Sub(p1).Cross(p2.Sub(p1))
	l := n.Len()
	if !(l > 1e-12) {
		return Plane{}, errors.New("plane points are collinear")
	}
	n = n.Mul(1 / l)
	return Plane{Normal: n, Dist: -n.Dot(p1)}, nil
}

// Brush is a convex solid bounded by planes. Passable brushes (glass, tool
// volumes) are kept for nearest-surface queries but never occlude.
type Brush struct {
	ID       int
	Planes   []Plane
	Bounds   lightbake.AABB
	Passable bool
}

// NewBoxBrush returns an axis-aligned box.
func NewBoxBrush(id int, lo, hi mgl64.Vec3) Brush {
	return Brush{
		ID: id,
		Planes: []Plane{
			{Normal: mgl64.Vec3{1, 0, 0}, Dist: -hi.X()},
			{Normal: mgl64.Vec3{-1, 0, 0}, Dist: lo.X()},
			{Normal: mgl64.Vec3{0, 1, 0}, Dist: -hi.Y()},
			{Normal: mgl64.Vec3{0, -1, 0}, Dist: lo.Y()},
			{Normal: mgl64.Vec3{0, 0, 1}, Dist: -hi.Z()},
			{Normal: mgl64.Vec3{0, 0, -1}, Dist: lo.Z()},
		},
		Bounds: lightbake.AABB{Min: lo, Max: hi},
	}
}

// NewBrushFromPoints builds a brush from one point triple per face. The
// bounds are taken from the points, which sit on the brush corners in
// editor output.
func NewBrushFromPoints(id int, faces [][3]mgl64.Vec3) (Brush, error) {
	b := Brush{ID: id, Planes: make([]Plane, 0, len(faces))}
	inf := math.Inf(1)
	b.Bounds = lightbake.AABB{Min: mgl64.Vec3{inf, inf, inf}, Max: mgl64.Vec3{-inf, -inf, -inf}}
	for i, f := range faces {
		p, err := PlaneFromPoints(f[0], f[1], f[2])
		if err != nil {
			return Brush{}, fmt.Errorf("brush %d face %d: %w", id, i, err)
		}
		b.Planes = append(b.Planes, p)
		for _, pt := range f {
			b.Bounds = b.Bounds.Extend(pt)
		}
	}
	return b, nil
}

// Contains reports whether pt lies inside or on the brush.
func (b *Brush) Contains(pt mgl64.Vec3) bool {
	for _, p := range b.Planes {
		if p.Distance(pt) > 0 {
			return false
		}
	}
	return true
}

func (b *Brush) validate() error {
	if len(b.Planes) < 4 {
		return fmt.Errorf("brush %d: %d planes, a closed convex solid needs at least 4", b.ID, len(b.Planes))
	}
	for i, p := range b.Planes {
		if !finite(p.Normal) || math.IsNaN(p.Dist) || math.IsInf(p.Dist, 0) {
			return fmt.Errorf("brush %d plane %d: non-finite", b.ID, i)
		}
		if math.Abs(p.Normal.Len()-1) > 1e-6 {
			return fmt.Errorf("brush %d plane %d: normal is not unit length", b.ID, i)
		}
	}
	if !finite(b.Bounds.Min) || !finite(b.Bounds.Max) {
		return fmt.Errorf("brush %d: non-finite bounds", b.ID)
	}
	for k := 0; k < 3; k++ {
		if b.Bounds.Min[k] > b.Bounds.Max[k] {
			return fmt.Errorf("brush %d: inverted bounds", b.ID)
		}
	}
	return nil
}

func finite(v mgl64.Vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
