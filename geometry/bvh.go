package geometry

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gekko3d/lightbake"
)

// Node is one BVH node. Children and leaf ranges are indices into the
// owning BVH's slices; -1 marks an absent child.
type Node struct {
	Min       mgl64.Vec3
	Max       mgl64.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) IsLeaf() bool { return n.LeafCount > 0 }

// BVH is a bounding volume hierarchy stored as a flat node arena.
type BVH struct {
	Nodes []Node
	// Items lists primitive indices; leaves reference ranges of it.
	Items []int32
}

const maxLeafItems = 4

type buildItem struct {
	bounds   lightbake.AABB
	centroid mgl64.Vec3
	index    int32
}

// BuildBVH builds a median-split hierarchy over the boxes. Node 0 is the
// root; an empty input gives an empty BVH.
func BuildBVH(boxes []lightbake.AABB) *BVH {
	b := &BVH{}
	if len(boxes) == 0 {
		return b
	}
	items := make([]buildItem, len(boxes))
	for i, box := range boxes {
		items[i] = buildItem{bounds: box, centroid: box.Center(), index: int32(i)}
	}
	b.Nodes = make([]Node, 0, 2*len(boxes))
	b.Items = make([]int32, 0, len(boxes))
	b.build(items)
	return b
}

func (b *BVH) build(items []buildItem) int32 {
	idx := int32(len(b.Nodes))
	b.Nodes = append(b.Nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	bounds := items[0].bounds
	for _, it := range items[1:] {
		bounds = bounds.Union(it.bounds)
	}
	b.Nodes[idx].Min = bounds.Min
	b.Nodes[idx].Max = bounds.Max

	if len(items) <= maxLeafItems {
		b.Nodes[idx].LeafFirst = int32(len(b.Items))
		b.Nodes[idx].LeafCount = int32(len(items))
		for _, it := range items {
			b.Items = append(b.Items, it.index)
		}
		return idx
	}

	extent := bounds.Max.Sub(bounds.Min)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	slices.SortStableFunc(items, func(x, y buildItem) int {
		switch {
		case x.centroid[axis] < y.centroid[axis]:
			return -1
		case x.centroid[axis] > y.centroid[axis]:
			return 1
		}
		return int(x.index - y.index)
	})

	mid := len(items) / 2
	left := b.build(items[:mid])
	right := b.build(items[mid:])
	b.Nodes[idx].Left = left
	b.Nodes[idx].Right = right
	return idx
}

// segmentHitsBox clips origin+t*dir, t in [0,maxT], against the box grown
// by pad on every side.
func segmentHitsBox(origin, dir mgl64.Vec3, maxT float64, lo, hi mgl64.Vec3, pad float64) bool {
	tmin, tmax := 0.0, maxT
	for k := 0; k < 3; k++ {
		if math.Abs(dir[k]) < 1e-9 {
			if origin[k] < lo[k]-pad || origin[k] > hi[k]+pad {
				return false
			}
			continue
		}
		inv := 1 / dir[k]
		t1 := (lo[k] - pad - origin[k]) * inv
		t2 := (hi[k] + pad - origin[k]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}

// visit walks every leaf item whose node box meets the segment. fn returns
// false to stop the walk.
func (b *BVH) visit(origin, dir mgl64.Vec3, maxT float64, fn func(item int32) bool) {
	if len(b.Nodes) == 0 {
		return
	}
	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		n := &b.Nodes[stack[sp]]
		if !segmentHitsBox(origin, dir, maxT, n.Min, n.Max, surfaceEpsilon) {
			continue
		}
		if n.IsLeaf() {
			for _, it := range b.Items[n.LeafFirst : n.LeafFirst+n.LeafCount] {
				if !fn(it) {
					return
				}
			}
			continue
		}
		stack[sp] = n.Right
		sp++
		stack[sp] = n.Left
		sp++
	}
}
