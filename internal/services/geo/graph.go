package geo

import (
	"errors"
	"fmt"

	"github.com/mcoot/georally/internal/model"
)

// Country is an immutable node of the adjacency graph
type Country struct {
	Name       string   `json:"name"`
	Neighbours []string `json:"neighbours"`
	Coastal    bool     `json:"-"`
}

type node struct {
	country   Country
	neighbour map[string]struct{}
}

// Graph is the static country adjacency graph with coastal membership.
// It is never mutated after construction and is safe for concurrent use.
type Graph struct {
	nodes map[string]*node
	names []string
}

// New builds a Graph from country records and the set of coastal country names.
// Borders are made symmetric. Neighbour order follows the order in which
// each border is first seen.
func New(countries []Country, coastal []string) (*Graph, error) {
	if len(countries) == 0 {
		return nil, errors.New("dataset has no countries")
	}

	g := &Graph{
		nodes: make(map[string]*node, len(countries)),
		names: make([]string, 0, len(countries)),
	}

	for _, c := range countries {
		if c.Name == "" {
			return nil, fmt.Errorf("country with empty name")
		}
		if _, dup := g.nodes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate country %q", c.Name)
		}
		g.nodes[c.Name] = &node{
			country:   Country{Name: c.Name},
			neighbour: make(map[string]struct{}),
		}
		g.names = append(g.names, c.Name)
	}

	for _, c := range countries {
		for _, n := range c.Neighbours {
			if _, ok := g.nodes[n]; !ok {
				return nil, fmt.Errorf("%q borders %q: %w", c.Name, n, model.ErrUnknownCountry)
			}
			if n == c.Name {
				continue
			}
			g.link(c.Name, n)
			g.link(n, c.Name)
		}
	}

	for _, name := range coastal {
		n, ok := g.nodes[name]
		if !ok {
			return nil, fmt.Errorf("coastal entry %q: %w", name, model.ErrUnknownCountry)
		}
		n.country.Coastal = true
	}

	return g, nil
}

func (g *Graph) link(from, to string) {
	n := g.nodes[from]
	if _, ok := n.neighbour[to]; ok {
		return
	}
	n.neighbour[to] = struct{}{}
	n.country.Neighbours = append(n.country.Neighbours, to)
}

// Len returns the number of countries
func (g *Graph) Len() int {
	return len(g.names)
}

// Names returns all country names in load order
func (g *Graph) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Has reports whether the country is known
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Country returns a copy of the named country
func (g *Graph) Country(name string) (Country, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return Country{}, false
	}
	c := n.country
	c.Neighbours = append([]string(nil), n.country.Neighbours...)
	return c, true
}

// NeighboursOf returns the land neighbours of a country, or nil if it is unknown
func (g *Graph) NeighboursOf(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), n.country.Neighbours...)
}

// IsCoastal reports whether a country has a coastline. Unknown countries are not coastal.
func (g *Graph) IsCoastal(name string) bool {
	n, ok := g.nodes[name]
	return ok && n.country.Coastal
}

// AreNeighbours reports whether two countries share a land border
func (g *Graph) AreNeighbours(a, b string) bool {
	n, ok := g.nodes[a]
	if !ok {
		return false
	}
	_, ok = n.neighbour[b]
	return ok
}

// CanReachByLand reports whether b can be reached from a over land borders.
// Every country is visited at most once.
func (g *Graph) CanReachByLand(a, b string) bool {
	if !g.Has(a) || !g.Has(b) {
		return false
	}
	if a == b {
		return true
	}

	visited := map[string]bool{a: true}
	stack := []string{a}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.nodes[current].country.Neighbours {
			if next == b {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// ShortestPath returns a minimum-hop land route from a to b, both ends included.
// Ties are broken by neighbour list order. It returns nil when no route exists.
func (g *Graph) ShortestPath(a, b string) []string {
	if !g.Has(a) || !g.Has(b) {
		return nil
	}
	if a == b {
		return []string{a}
	}

	prev := map[string]string{a: ""}
	queue := []string{a}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.nodes[current].country.Neighbours {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = current
			if next == b {
				return buildPath(prev, a, b)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func buildPath(prev map[string]string, a, b string) []string {
	var reversed []string
	for at := b; at != a; at = prev[at] {
		reversed = append(reversed, at)
	}
	reversed = append(reversed, a)

	path := make([]string, len(reversed))
	for i, name := range reversed {
		path[len(reversed)-1-i] = name
	}
	return path
}
