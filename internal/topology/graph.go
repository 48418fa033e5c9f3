package topology

import (
	"fmt"
	"slices"
	"sort"

	"github.com/eleven-am/perimeter/internal/domain"
)

// Graph is an ordered set of resources with explicit dependency edges.
type Graph struct {
	Project string

	order []string
	nodes map[string]*Resource
}

func NewGraph(project string) *Graph {
	return &Graph{Project: project, nodes: make(map[string]*Resource)}
}

func (g *Graph) Add(r Resource) error {
	if r.Name == "" {
		return fmt.Errorf("add resource of kind %s: empty name", r.Kind)
	}
	if _, exists := g.nodes[r.Name]; exists {
		return fmt.Errorf("add resource %q: already declared", r.Name)
	}
	r.DependsOn = slices.Clone(r.DependsOn)
	g.nodes[r.Name] = &r
	g.order = append(g.order, r.Name)
	return nil
}

func (g *Graph) Get(name string) (*Resource, bool) {
	r, ok := g.nodes[name]
	return r, ok
}

// Resources returns every resource in declaration order.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

func (g *Graph) Len() int {
	return len(g.order)
}

// Ident is the tag/name identity of a resource in this graph's project.
func (g *Graph) Ident(name string) domain.Ident {
	return domain.Ident{Project: g.Project, Name: name}
}

// Validate checks that every dependency and spec reference names a declared
// resource, that references are declared as dependencies, and that there are
// no cycles.
func (g *Graph) Validate() error {
	for _, name := range g.order {
		r := g.nodes[name]
		for _, dep := range r.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return &domain.DependencyError{Resource: name, Missing: dep}
			}
		}
		if r.Spec == nil {
			continue
		}
		for _, ref := range r.Spec.Refs() {
			if _, ok := g.nodes[ref]; !ok {
				return &domain.DependencyError{Resource: name, Missing: ref}
			}
			if !slices.Contains(r.DependsOn, ref) {
				return fmt.Errorf("resource %q references %q without depending on it", name, ref)
			}
		}
	}
	_, err := g.Levels()
	return err
}

// Levels groups resources so that each level depends only on earlier ones.
// Within a level resources keep declaration order.
func (g *Graph) Levels() ([][]*Resource, error) {
	indegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string)
	for _, name := range g.order {
		r := g.nodes[name]
		seen := make(map[string]bool)
		for _, dep := range r.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &domain.DependencyError{Resource: name, Missing: dep}
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	position := make(map[string]int, len(g.order))
	for i, name := range g.order {
		position[name] = i
	}

	var current []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			current = append(current, name)
		}
	}

	var levels [][]*Resource
	placed := 0
	for len(current) > 0 {
		level := make([]*Resource, 0, len(current))
		var next []string
		for _, name := range current {
			level = append(level, g.nodes[name])
			for _, d := range dependents[name] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		placed += len(current)
		levels = append(levels, level)
		sort.Slice(next, func(i, j int) bool { return position[next[i]] < position[next[j]] })
		current = next
	}

	if placed != len(g.order) {
		var stuck []string
		for _, name := range g.order {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, fmt.Errorf("dependency cycle among %v", stuck)
	}
	return levels, nil
}

// Reverse returns the levels in teardown order.
func (g *Graph) Reverse() ([][]*Resource, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	slices.Reverse(levels)
	return levels, nil
}
