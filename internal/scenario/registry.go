package scenario

import (
	"container/heap"
	"slices"
	"strings"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
)

// Registry holds every known scenario in registration order.
type Registry struct {
	defs   []Definition
	byName map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds def. Names must be unique file stems.
func (r *Registry) Register(def Definition) error {
	if def == nil {
		return apperrors.New(apperrors.CodeConfigurationInvalid, "scenario is required")
	}
	name := def.Name()
	if !ValidName(name) {
		return apperrors.WithMetadata(apperrors.CodeConfigurationInvalid,
			"scenario name is not a valid file name", map[string]string{"scenario": name})
	}
	if _, ok := r.byName[name]; ok {
		return apperrors.WithMetadata(apperrors.CodeConfigurationInvalid,
			"scenario is already registered", map[string]string{"scenario": name})
	}
	r.byName[name] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

// All returns the registered scenarios in registration order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Resolve returns the scenario registered under name.
func (r *Registry) Resolve(name string) (Definition, error) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeConfigurationInvalid,
			"unknown scenario", map[string]string{"scenario": name})
	}
	return r.defs[idx], nil
}

// PrerequisiteOf returns the registered prerequisite of def, or nil when def
// has none. References made with Ref resolve by name.
func (r *Registry) PrerequisiteOf(def Definition) (Definition, error) {
	prerequisite := def.Prerequisite()
	if prerequisite == nil {
		return nil, nil
	}
	idx, ok := r.byName[prerequisite.Name()]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeConfigurationInvalid,
			"unknown prerequisite", map[string]string{
				"scenario":     def.Name(),
				"prerequisite": prerequisite.Name(),
			})
	}
	return r.defs[idx], nil
}

// Plan validates every prerequisite and returns the scenarios ordered so each
// one follows its prerequisite. Scenarios that are free to run keep their
// registration order.
func (r *Registry) Plan() ([]Definition, error) {
	parent := make([]int, len(r.defs))
	children := make([][]int, len(r.defs))
	for i, def := range r.defs {
		parent[i] = -1
		prerequisite, err := r.PrerequisiteOf(def)
		if err != nil {
			return nil, err
		}
		if prerequisite == nil {
			continue
		}
		p := r.byName[prerequisite.Name()]
		parent[i] = p
		children[p] = append(children[p], i)
	}
	if cycle := r.findCycle(parent); cycle != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeConfigurationInvalid,
			"scenario prerequisites form a cycle", map[string]string{"cycle": strings.Join(cycle, " -> ")})
	}

	ready := &indexHeap{}
	for i := range r.defs {
		if parent[i] == -1 {
			heap.Push(ready, i)
		}
	}
	order := make([]Definition, 0, len(r.defs))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, r.defs[i])
		for _, child := range children[i] {
			heap.Push(ready, child)
		}
	}
	return order, nil
}

// Select returns the planned scenarios restricted to names, keeping the
// planned order. No names selects every scenario.
func (r *Registry) Select(names []string) ([]Definition, error) {
	plan, err := r.Plan()
	if err != nil || len(names) == 0 {
		return plan, err
	}
	for _, name := range names {
		if _, err := r.Resolve(name); err != nil {
			return nil, err
		}
	}
	return slices.DeleteFunc(plan, func(def Definition) bool {
		return !slices.Contains(names, def.Name())
	}), nil
}

// findCycle follows each prerequisite chain and returns the first loop found,
// closed with its starting name, or nil.
func (r *Registry) findCycle(parent []int) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(parent))
	for start := range parent {
		if state[start] != unvisited {
			continue
		}
		var path []int
		node := start
		for node != -1 && state[node] == unvisited {
			state[node] = visiting
			path = append(path, node)
			node = parent[node]
		}
		if node != -1 && state[node] == visiting {
			var names []string
			from := 0
			for path[from] != node {
				from++
			}
			for _, idx := range path[from:] {
				names = append(names, r.defs[idx].Name())
			}
			return append(names, r.defs[node].Name())
		}
		for _, idx := range path {
			state[idx] = done
		}
	}
	return nil
}

// ValidName reports whether name can be used as a snapshot file stem.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 128 {
		return false
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case (c == '_' || c == '-' || c == '.') && i > 0:
		default:
			return false
		}
	}
	return true
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
