// Package dag provides the directed acyclic task graph for recipe
// runs: preprocessing tasks feed diagnostic-script tasks, and script
// ancestor references add further ordering. It supports cycle
// detection, topological sorting, and parallel execution levels.
package dag

import (
	"fmt"
	"sort"
)

// Node is one task in the graph.
type Node struct {
	// ID uniquely identifies the task within a run.
	ID string
	// Data holds the task payload.
	Data any
}

// Graph is a directed acyclic graph of tasks.
type Graph struct {
	nodes    map[string]*Node
	children map[string][]string // prerequisite -> dependents
	parents  map[string][]string // dependent -> prerequisites
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a task, replacing the payload if the id already exists.
func (g *Graph) AddNode(id string, data any) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.children[id] = nil
	g.parents[id] = nil
}

// AddEdge records that dependent requires prerequisite to finish
// first.
func (g *Graph) AddEdge(prerequisite, dependent string) error {
	if _, ok := g.nodes[prerequisite]; !ok {
		return fmt.Errorf("unknown task %q", prerequisite)
	}
	if _, ok := g.nodes[dependent]; !ok {
		return fmt.Errorf("unknown task %q", dependent)
	}
	if prerequisite == dependent {
		return fmt.Errorf("task %q depends on itself", dependent)
	}
	if !contains(g.children[prerequisite], dependent) {
		g.children[prerequisite] = append(g.children[prerequisite], dependent)
	}
	if !contains(g.parents[dependent], prerequisite) {
		g.parents[dependent] = append(g.parents[dependent], prerequisite)
	}
	return nil
}

// Node returns the task with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns a task's prerequisites.
func (g *Graph) Parents(id string) []string { return g.parents[id] }

// Children returns the tasks that depend on id.
func (g *Graph) Children(id string) []string { return g.children[id] }

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all tasks sorted by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cycle returns a cyclic path if the graph contains one, nil
// otherwise.
func (g *Graph) Cycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, child := range g.children[id] {
			if !visited[child] {
				cameFrom[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = cameFrom[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	ids := sortedIDs(g.nodes)
	for _, id := range ids {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

// TopoSort returns the tasks in dependency order, prerequisites before
// dependents.
func (g *Graph) TopoSort() ([]*Node, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, fmt.Errorf("task cycle: %v", cycle)
	}

	visited := make(map[string]bool)
	var order []*Node
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parent := range g.parents[id] {
			visit(parent)
		}
		order = append(order, g.nodes[id])
	}

	for _, id := range sortedIDs(g.nodes) {
		visit(id)
	}
	return order, nil
}

// Levels groups task ids by execution level: level N tasks may run in
// parallel once every level below N finished.
func (g *Graph) Levels() ([][]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, fmt.Errorf("task cycle: %v", cycle)
	}
	if len(g.nodes) == 0 {
		return nil, nil
	}

	level := make(map[string]int, len(g.nodes))
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		l := 0
		for _, parent := range g.parents[id] {
			if pl := levelOf(parent) + 1; pl > l {
				l = pl
			}
		}
		level[id] = l
		return l
	}

	max := 0
	for id := range g.nodes {
		if l := levelOf(id); l > max {
			max = l
		}
	}

	levels := make([][]string, max+1)
	for id, l := range level {
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Roots returns the tasks without prerequisites.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

func sortedIDs(nodes map[string]*Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
