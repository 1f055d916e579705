package lightbake

// unionFind is a disjoint-set forest over dense indices. It is only ever
// used from the single-threaded merge phase.
type unionFind struct {
	parent []int32
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int32, n), rank: make([]uint8, n)}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
	}
	return uf
}

func (uf *unionFind) find(x int32) int32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union joins the sets of a and b; on equal rank the smaller root wins.
func (uf *unionFind) union(a, b int32) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		ra, rb = rb, ra
	case uf.rank[ra] == uf.rank[rb]:
		if rb < ra {
			ra, rb = rb, ra
		}
		uf.rank[ra]++
	}
	uf.parent[rb] = ra
	return true
}

// components returns the sets in order of their smallest member, each with
// ascending members.
func (uf *unionFind) components() [][]int32 {
	byRoot := make(map[int32]int, len(uf.parent))
	var out [][]int32
	for i := range uf.parent {
		r := uf.find(int32(i))
		ci, ok := byRoot[r]
		if !ok {
			ci = len(out)
			byRoot[r] = ci
			out = append(out, nil)
		}
		out[ci] = append(out[ci], int32(i))
	}
	return out
}
