package matching

import "sort"

// disjointSet is a union-find over node labels with path compression and
// union by rank.
type disjointSet struct {
	parent map[string]string
	rank   map[string]int
}

func newDisjointSet(capacity int) *disjointSet {
	return &disjointSet{
		parent: make(map[string]string, capacity),
		rank:   make(map[string]int, capacity),
	}
}

func (d *disjointSet) add(x string) {
	if _, ok := d.parent[x]; !ok {
		d.parent[x] = x
	}
}

func (d *disjointSet) find(x string) string {
	root := x
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for x != root {
		next := d.parent[x]
		d.parent[x] = root
		x = next
	}
	return root
}

func (d *disjointSet) union(a, b string) {
	d.add(a)
	d.add(b)
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}
}

// components returns every set with sorted members, ordered by each set's
// smallest member.
func (d *disjointSet) components() [][]string {
	byRoot := make(map[string][]string)
	for x := range d.parent {
		r := d.find(x)
		byRoot[r] = append(byRoot[r], x)
	}
	out := make([][]string, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
