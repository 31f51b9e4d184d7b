package uom

import (
	"sort"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// Graph is an immutable view of the unit registry. Outgoing edges are kept
// sorted by target code, which fixes the order paths are discovered in.
type Graph struct {
	units map[string]Unit
	edges map[string]map[string]float64
	out   map[string][]Conversion
}

// PathResult is the outcome of a transitive search. Found is false when no
// path exists; Factor is meaningless in that case.
type PathResult struct {
	Factor float64
	Found  bool
}

// Visited is the set of units on the current search path.
type Visited map[string]struct{}

// NewGraph indexes units and conversions. Codes are normalised.
func NewGraph(units []Unit, conversions []Conversion) *Graph {
	g := &Graph{
		units: make(map[string]Unit, len(units)),
		edges: make(map[string]map[string]float64),
		out:   make(map[string][]Conversion),
	}
	for _, u := range units {
		u.Code = NormalizeCode(u.Code)
		g.units[u.Code] = u
	}
	for _, c := range conversions {
		c.From, c.To = NormalizeCode(c.From), NormalizeCode(c.To)
		if g.edges[c.From] == nil {
			g.edges[c.From] = make(map[string]float64)
		}
		if _, dup := g.edges[c.From][c.To]; dup {
			continue
		}
		g.edges[c.From][c.To] = c.Factor
		g.out[c.From] = append(g.out[c.From], c)
	}
	for from := range g.out {
		edges := g.out[from]
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	}
	return g
}

// NewGraphFromSnapshot builds a graph from a registry snapshot.
func NewGraphFromSnapshot(s Snapshot) *Graph {
	return NewGraph(s.Units, s.Conversions)
}

// Unit looks up a unit by code.
func (g *Graph) Unit(code string) (Unit, bool) {
	u, ok := g.units[NormalizeCode(code)]
	return u, ok
}

// Edge returns the factor of the direct edge from→to.
func (g *Graph) Edge(from, to string) (float64, bool) {
	f, ok := g.edges[NormalizeCode(from)][NormalizeCode(to)]
	return f, ok
}

// Resolve converts one received unit into base units using at most one edge.
// An override factor > 0 wins without consulting the graph. An empty
// received code means the base unit.
func (g *Graph) Resolve(baseCode, receivedCode string, overrideFactor float64) (Unit, float64, error) {
	base, ok := g.Unit(baseCode)
	if !ok {
		return Unit{}, 0, shared.Validation(CodeBaseUOMNotFound, "base unit "+NormalizeCode(baseCode)+" not found")
	}
	if NormalizeCode(receivedCode) == "" {
		receivedCode = base.Code
	}
	received, ok := g.Unit(receivedCode)
	if !ok {
		return Unit{}, 0, shared.Validation(CodeReceivedUOMNotFound, "received unit "+NormalizeCode(receivedCode)+" not found")
	}
	if overrideFactor > 0 {
		return received, overrideFactor, nil
	}
	if received.Code == base.Code {
		return received, 1, nil
	}
	if received.Dimension != base.Dimension {
		return Unit{}, 0, shared.Validation(CodeDimensionMismatch,
			"cannot convert "+string(received.Dimension)+" unit "+received.Code+" into "+string(base.Dimension)+" unit "+base.Code)
	}
	if f, ok := g.Edge(received.Code, base.Code); ok && f > 0 {
		return received, f, nil
	}
	if f, ok := g.Edge(base.Code, received.Code); ok && f > 0 {
		return received, 1 / f, nil
	}
	return Unit{}, 0, shared.Validation(CodeConversionNotFound, "no conversion from "+received.Code+" to "+base.Code)
}

// FactorBetween searches depth-first for a chain of edges from→to and
// returns the product of their factors. The first path found wins; it is
// not necessarily the shortest. Units already in visited are never entered
// again, which bounds the search on cyclic graphs. visited is restored to
// its original content before returning.
func (g *Graph) FactorBetween(from, to string, visited Visited) PathResult {
	from, to = NormalizeCode(from), NormalizeCode(to)
	if from == to {
		return PathResult{Factor: 1, Found: true}
	}
	if visited == nil {
		visited = Visited{}
	}
	if _, seen := visited[from]; seen {
		return PathResult{}
	}
	if f, ok := g.edges[from][to]; ok {
		return PathResult{Factor: f, Found: true}
	}
	visited[from] = struct{}{}
	defer delete(visited, from)
	for _, edge := range g.out[from] {
		sub := g.FactorBetween(edge.To, to, visited)
		if sub.Found {
			return PathResult{Factor: edge.Factor * sub.Factor, Found: true}
		}
	}
	return PathResult{}
}

// Convert resolves the factor turning one received unit into base units.
// It tries Resolve first and falls back to a transitive search in either
// direction when no single edge connects the units. A missing path is
// always reported as UOM_CONVERSION_NOT_FOUND.
func (g *Graph) Convert(baseCode, receivedCode string, overrideFactor float64) (Unit, float64, error) {
	unit, factor, err := g.Resolve(baseCode, receivedCode, overrideFactor)
	if err == nil || !shared.IsCode(err, CodeConversionNotFound) {
		return unit, factor, err
	}
	base, _ := g.Unit(baseCode)
	if NormalizeCode(receivedCode) == "" {
		receivedCode = base.Code
	}
	received, _ := g.Unit(receivedCode)
	if r := g.FactorBetween(received.Code, base.Code, nil); r.Found && r.Factor > 0 {
		return received, r.Factor, nil
	}
	if r := g.FactorBetween(base.Code, received.Code, nil); r.Found && r.Factor > 0 {
		return received, 1 / r.Factor, nil
	}
	return Unit{}, 0, err
}
