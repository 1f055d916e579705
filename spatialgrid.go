package lightbake

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Extend grows the box to include p.
func (b AABB) Extend(p mgl64.Vec3) AABB {
	for k := 0; k < 3; k++ {
		b.Min[k] = math.Min(b.Min[k], p[k])
		b.Max[k] = math.Max(b.Max[k], p[k])
	}
	return b
}

func (b AABB) Union(o AABB) AABB {
	return b.Extend(o.Min).Extend(o.Max)
}

func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func SphereAABB(center mgl64.Vec3, radius float64) AABB {
	r := mgl64.Vec3{radius, radius, radius}
	return AABB{Min: center.Sub(r), Max: center.Add(r)}
}

// SpatialHashGrid buckets light indices by cell. Buckets hold indices into
// the caller's light slice rather than pointers, so the grid can be read
// concurrently once built.
type SpatialHashGrid struct {
	cellSize float64
	cells    map[uint64][]int32
}

func NewSpatialHashGrid(cellSize float64) *SpatialHashGrid {
	if !(cellSize > 0) {
		cellSize = 1
	}
	return &SpatialHashGrid{
		cellSize: cellSize,
		cells:    make(map[uint64][]int32),
	}
}

func (grid *SpatialHashGrid) CellSize() float64 { return grid.cellSize }

func (grid *SpatialHashGrid) Insert(id int32, aabb AABB) {
	minX, maxX := grid.getCellIndex(aabb.Min.X()), grid.getCellIndex(aabb.Max.X())
	minY, maxY := grid.getCellIndex(aabb.Min.Y()), grid.getCellIndex(aabb.Max.Y())
	minZ, maxZ := grid.getCellIndex(aabb.Min.Z()), grid.getCellIndex(aabb.Max.Z())

	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				key := grid.hashKey(x, y, z)
				grid.cells[key] = append(grid.cells[key], id)
			}
		}
	}
}

// QueryAABB returns the ids whose inserted boxes share a cell with aabb,
// sorted ascending. Hash collisions can add extra ids; callers filter exactly.
func (grid *SpatialHashGrid) QueryAABB(aabb AABB) []int32 {
	minX, maxX := grid.getCellIndex(aabb.Min.X()), grid.getCellIndex(aabb.Max.X())
	minY, maxY := grid.getCellIndex(aabb.Min.Y()), grid.getCellIndex(aabb.Max.Y())
	minZ, maxZ := grid.getCellIndex(aabb.Min.Z()), grid.getCellIndex(aabb.Max.Z())

	unique := make(map[int32]struct{})
	var results []int32

	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				key := grid.hashKey(x, y, z)
				for _, id := range grid.cells[key] {
					if _, ok := unique[id]; !ok {
						unique[id] = struct{}{}
						results = append(results, id)
					}
				}
			}
		}
	}
	slices.Sort(results)
	return results
}

func (grid *SpatialHashGrid) QueryPoint(p mgl64.Vec3) []int32 {
	return grid.QueryAABB(AABB{Min: p, Max: p})
}

func (grid *SpatialHashGrid) getCellIndex(pos float64) int {
	return int(math.Floor(pos / grid.cellSize))
}

// Simple hash function for 3D coordinates
func (grid *SpatialHashGrid) hashKey(x, y, z int) uint64 {
	// large primes for mixing
	const p1 = 73856093
	const p2 = 19349663
	const p3 = 83492791
	return uint64(x*p1 ^ y*p2 ^ z*p3)
}
