package geometry

// Connection is an unordered pair of adjacent landmark indices
type Connection struct {
	A, B int
}

// Loop is an ordered cycle of landmark indices outlining one feature region.
// Consecutive entries are adjacent, and so are the last and first.
type Loop []int

// Edges converts raw index pairs into connections
func Edges(pairs [][2]int) []Connection {
	conns := make([]Connection, 0, len(pairs))
	for _, p := range pairs {
		conns = append(conns, Connection{A: p[0], B: p[1]})
	}
	return conns
}

// adjacency is a symmetric neighbour map that remembers insertion order,
// so walks over the same topology always produce the same loop.
type adjacency struct {
	order     []int
	neighbors map[int][]int
}

func newAdjacency(connections []Connection) *adjacency {
	adj := &adjacency{neighbors: make(map[int][]int)}
	for _, c := range connections {
		adj.link(c.A, c.B)
		adj.link(c.B, c.A)
	}
	return adj
}

func (a *adjacency) link(from, to int) {
	list, ok := a.neighbors[from]
	if !ok {
		a.order = append(a.order, from)
	}
	for _, n := range list {
		if n == to {
			return
		}
	}
	a.neighbors[from] = append(list, to)
}

func (a *adjacency) size() int {
	return len(a.order)
}

func (a *adjacency) has(from, to int) bool {
	for _, n := range a.neighbors[from] {
		if n == to {
			return true
		}
	}
	return false
}

// BuildLoop walks the connection graph of a near-simple cycle and returns it as an
// ordered loop. An empty connection list yields an empty loop.
//
// The walk is greedy: from each node it takes the first neighbour that is not the
// node it came from. It stops when it gets back to the start, when it reaches a node
// already in the loop, or when the loop grows past the node count plus two. The last
// two cases only happen on malformed topology and return the partial walk.
func BuildLoop(connections []Connection) Loop {
	adj := newAdjacency(connections)
	if adj.size() == 0 {
		return Loop{}
	}

	start := adj.order[0]
	loop := Loop{start}
	seen := map[int]bool{start: true}
	previous, current := start, start
	hasPrevious := false

	for {
		neighbors := adj.neighbors[current]
		if len(neighbors) == 0 {
			break
		}
		next := neighbors[0]
		for _, n := range neighbors {
			if !hasPrevious || n != previous {
				next = n
				break
			}
		}
		if next == start || seen[next] {
			break
		}
		loop = append(loop, next)
		seen[next] = true
		previous, current, hasPrevious = current, next, true
		if len(loop) > adj.size()+2 {
			break
		}
	}

	return loop
}

// Closed reports whether every consecutive pair of the loop, including the closing
// last-to-first pair, is one of the given connections
func (l Loop) Closed(connections []Connection) bool {
	if len(l) < 3 {
		return false
	}
	adj := newAdjacency(connections)
	for i := range l {
		if !adj.has(l[i], l[(i+1)%len(l)]) {
			return false
		}
	}
	return true
}
