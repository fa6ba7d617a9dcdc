// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/errs"
)

// Default capacity guards, following a MaxNodes/MaxEdges
// builder-option pattern.
const (
	DefaultMaxNodes = 5000
	DefaultMaxEdges = 20000
)

// Options configures a Graph. Functional options (With*) set individual
// fields over DefaultOptions.
type Options struct {
	MaxNodes int
	MaxEdges int
}

// DefaultOptions returns sensible capacity guards for a session-scoped graph.
func DefaultOptions() Options {
	return Options{MaxNodes: DefaultMaxNodes, MaxEdges: DefaultMaxEdges}
}

// Option is a functional option for configuring a Graph.
type Option func(*Options)

// WithMaxNodes overrides the node capacity guard.
func WithMaxNodes(n int) Option {
	return func(o *Options) { o.MaxNodes = n }
}

// WithMaxEdges overrides the edge capacity guard.
func WithMaxEdges(n int) Option {
	return func(o *Options) { o.MaxEdges = n }
}

// Graph is the session-scoped dependency DAG
//
// Thread Safety: Graph is not safe for concurrent use; callers serialize
// access (the Session Manager's single-worker-per-session model is the
// only caller that mutates a given Graph).
type Graph struct {
	opts Options

	nodes map[string]*Node
	order []string // insertion order, for deterministic iteration
	edges []Edge

	masterByGroup map[string]string
}

// New constructs an empty Graph with the given options applied over the
// defaults.
func New(options ...Option) *Graph {
	opts := DefaultOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Graph{
		opts:          opts,
		nodes:         make(map[string]*Node),
		masterByGroup: make(map[string]string),
	}
}

// AddNode creates a node of the given kind and returns its id.
func (g *Graph) AddNode(kind NodeKind, groupID string) (string, error) {
	if len(g.nodes) >= g.opts.MaxNodes {
		return "", errs.New(errs.CodeCapacityExceeded, fmt.Sprintf("graph node capacity (%d) exceeded", g.opts.MaxNodes))
	}
	if kind == KindMasterRequest {
		if existing, ok := g.masterByGroup[groupID]; ok {
			return "", errs.New(errs.CodeMalformedArchive, fmt.Sprintf("group %q already has master node %q", groupID, existing))
		}
	}

	id := uuid.NewString()
	n := &Node{
		ID:             id,
		Kind:           kind,
		State:          StateNew,
		GroupID:        groupID,
		InputVariables: make(map[string]string),
	}
	g.nodes[id] = n
	g.order = append(g.order, id)

	if kind == KindMasterRequest {
		g.masterByGroup[groupID] = id
	}
	return id, nil
}

// UpdateNode applies fn to the node with the given id, if it exists.
func (g *Graph) UpdateNode(id string, fn func(*Node)) error {
	n, ok := g.nodes[id]
	if !ok {
		return errs.New(errs.CodeNodeNotFound, fmt.Sprintf("node %q not found", id))
	}
	fn(n)
	return nil
}

// GetNode returns the node with the given id, or nil if absent.
func (g *Graph) GetNode(id string) *Node {
	return g.nodes[id]
}

// NodeCount returns the total number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// AllNodes returns every node in insertion order.
func (g *Graph) AllNodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodesByGroup returns every node belonging to groupID, in insertion order.
func (g *Graph) NodesByGroup(groupID string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.GroupID == groupID {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns every edge in the graph, in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeGroup returns the group id of the given node, if it exists.
func (g *Graph) NodeGroup(id string) (string, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return n.GroupID, true
}

// AddEdge provisionally applies a from→to edge, then checks for cycles.
// On a cycle, the edge is rolled back and a circular-dependency error is
// returned
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return errs.New(errs.CodeNodeNotFound, fmt.Sprintf("node %q not found", from))
	}
	if _, ok := g.nodes[to]; !ok {
		return errs.New(errs.CodeNodeNotFound, fmt.Sprintf("node %q not found", to))
	}
	if len(g.edges) >= g.opts.MaxEdges {
		return errs.New(errs.CodeCapacityExceeded, fmt.Sprintf("graph edge capacity (%d) exceeded", g.opts.MaxEdges))
	}

	g.edges = append(g.edges, Edge{From: from, To: to})
	if cycles := g.DetectCycles(); len(cycles) > 0 {
		g.edges = g.edges[:len(g.edges)-1]
		return errs.New(errs.CodeCircularDependencies, fmt.Sprintf("adding edge %s->%s would introduce a cycle: %s", from, to, strings.Join(cycles[0], " -> ")))
	}
	return nil
}

// Successors returns the ids every node that id has an edge to.
func (g *Graph) Successors(id string) []string {
	var out []string
	for _, e := range g.edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

// Predecessors returns the ids of every node with an edge to id.
func (g *Graph) Predecessors(id string) []string {
	var out []string
	for _, e := range g.edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	return out
}

// color tags a node's DFS visitation state for cycle detection.
type color int

const (
	white color = iota
	gray
	black
)

// DetectCycles runs a tri-color depth-first traversal and reconstructs
// each cycle found from the active recursion stack. Returns nil if the
// graph is acyclic.
func (g *Graph) DetectCycles() [][]string {
	colors := make(map[string]color, len(g.order))
	for _, id := range g.order {
		colors[id] = white
	}

	var cycles [][]string
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = gray
		stack = append(stack, id)

		for _, next := range g.Successors(id) {
			switch colors[next] {
			case white:
				visit(next)
			case gray:
				cycles = append(cycles, reconstructCycle(stack, next))
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	for _, id := range g.order {
		if colors[id] == white {
			visit(id)
		}
	}
	return cycles
}

func reconstructCycle(stack []string, backTo string) []string {
	for i, id := range stack {
		if id == backTo {
			cycle := append([]string{}, stack[i:]...)
			return append(cycle, backTo)
		}
	}
	return []string{backTo}
}

// TopologicalSort returns node ids in dependency order: a node always
// appears after every node it has an edge to (its producers).
func (g *Graph) TopologicalSort() ([]string, error) {
	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return nil, errs.New(errs.CodeCircularDependencies, fmt.Sprintf("cannot sort: cycle %s", strings.Join(cycles[0], " -> ")))
	}

	visited := make(map[string]bool, len(g.order))
	var out []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, producer := range g.Successors(id) {
			visit(producer)
		}
		out = append(out, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return out, nil
}

// IsComplete reports whether every node has empty dynamic parts and no
// node is in the not-found kind.
func (g *Graph) IsComplete() bool {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind == KindNotFound {
			return false
		}
		if len(n.DynamicParts) > 0 {
			return false
		}
	}
	return true
}

// UnresolvedNode pairs a node id with its still-unresolved parts.
type UnresolvedNode struct {
	ID    string
	Parts []string
}

// UnresolvedNodes lists every node that still has non-empty dynamic parts.
func (g *Graph) UnresolvedNodes() []UnresolvedNode {
	var out []UnresolvedNode
	for _, id := range g.order {
		n := g.nodes[id]
		if len(n.DynamicParts) > 0 {
			out = append(out, UnresolvedNode{ID: id, Parts: append([]string{}, n.DynamicParts...)})
		}
	}
	return out
}

// requestKey is the tuple find-node-by-request matches on.
type requestKey struct {
	method     string
	scheme     string
	host       string
	path       string
	queryKeys  string // sorted, comma-joined
}

func keyOf(rec *archive.Record) (requestKey, error) {
	u, err := url.Parse(rec.URL)
	if err != nil {
		return requestKey{}, err
	}
	keys := make([]string, 0, len(u.Query()))
	for k := range u.Query() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return requestKey{
		method:    strings.ToUpper(rec.Method),
		scheme:    u.Scheme,
		host:      u.Host,
		path:      u.Path,
		queryKeys: strings.Join(keys, ","),
	}, nil
}

// FindNodeByRequest matches req against existing request/master-request
// nodes on (method, scheme, host, path, sorted query-key set); ties are
// broken by query-value overlap, then header overlap.
func (g *Graph) FindNodeByRequest(req *archive.Record) (string, bool) {
	target, err := keyOf(req)
	if err != nil {
		return "", false
	}

	var candidates []*Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Request == nil {
			continue
		}
		k, err := keyOf(n.Request)
		if err != nil || k != target {
			continue
		}
		candidates = append(candidates, n)
	}

	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0].ID, true
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		oi := queryValueOverlap(req, candidates[i].Request)
		oj := queryValueOverlap(req, candidates[j].Request)
		if oi != oj {
			return oi > oj
		}
		return headerOverlap(req, candidates[i].Request) > headerOverlap(req, candidates[j].Request)
	})
	return candidates[0].ID, true
}

func queryValueOverlap(a, b *archive.Record) int {
	qa, qb := a.Query(), b.Query()
	count := 0
	for k, va := range qa {
		for _, v := range va {
			for _, vb := range qb[k] {
				if v == vb {
					count++
				}
			}
		}
	}
	return count
}

func headerOverlap(a, b *archive.Record) int {
	count := 0
	for _, pair := range a.Headers.Pairs() {
		if v, ok := b.Headers.Get(pair.Name); ok && v == pair.Value {
			count++
		}
	}
	return count
}
