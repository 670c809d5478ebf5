package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"logcore/internal/record"
	"logcore/pkg/errors"
)

type node struct {
	stage      Stage
	downstream []string
}

// Graph is a DAG of named stages, built once per configuration swap.
// Stage names must be unique; duplicates and cycles fail construction
// rather than at run time (spec §4.E).
type Graph struct {
	mu     sync.RWMutex
	nodes  map[string]*node
	order  []string // insertion order, for deterministic iteration
	roots  []string
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddStage registers a stage as a graph node. Returns a ConfigError if
// the name is already taken.
func (g *Graph) AddStage(s Stage) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[s.Name()]; exists {
		return errors.ConfigError("duplicate stage name").WithIdentifier(s.Name())
	}
	g.nodes[s.Name()] = &node{stage: s}
	g.order = append(g.order, s.Name())
	return nil
}

// Connect adds an edge from -> to: a record handed to "from" and
// accepted continues to "to". Multiple calls from the same "from"
// build fan-out (the default splitter behaviour): every registered
// downstream receives the record, in the order Connect was called.
func (g *Graph) Connect(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fn, ok := g.nodes[from]
	if !ok {
		return errors.ConfigError("unknown stage").WithIdentifier(from)
	}
	if _, ok := g.nodes[to]; !ok {
		return errors.ConfigError("unknown stage").WithIdentifier(to)
	}
	fn.downstream = append(fn.downstream, to)

	if g.hasCycleLocked() {
		fn.downstream = fn.downstream[:len(fn.downstream)-1]
		return errors.ConfigError("connecting stages would introduce a cycle").WithIdentifier(from + "->" + to)
	}
	return nil
}

func (g *Graph) hasCycleLocked() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		for _, d := range g.nodes[name].downstream {
			switch color[d] {
			case gray:
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}
		color[name] = black
		return false
	}
	for name := range g.nodes {
		if color[name] == white {
			if visit(name) {
				return true
			}
		}
	}
	return false
}

// topoOrder returns stage names in topological order (roots first).
func (g *Graph) topoOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		indegree[name] = 0
	}
	for _, n := range g.nodes {
		for _, d := range n.downstream {
			indegree[d]++
		}
	}
	var queue []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var out []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		out = append(out, name)
		var next []string
		for _, d := range g.nodes[name].downstream {
			indegree[d]--
			if indegree[d] == 0 {
				next = append(next, d)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}
	return out
}

// Initialize walks the DAG in reverse-topological order (leaves
// first): by the time a stage's OnInitialize runs, every stage
// downstream of it is already Attached. An error aborts the whole
// pipeline and unwinds already-initialized stages in reverse order.
func (g *Graph) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	order := g.topoOrder()
	reverse := make([]string, len(order))
	for i, name := range order {
		reverse[len(order)-1-i] = name
	}

	initialized := make([]string, 0, len(reverse))
	for _, name := range reverse {
		n := g.nodes[name]
		n.stage.state().Store(int32(Initializing))
		if err := n.stage.OnInitialize(ctx); err != nil {
			n.stage.state().Store(int32(Detached))
			for i := len(initialized) - 1; i >= 0; i-- {
				g.shutdownOne(ctx, initialized[i])
			}
			return fmt.Errorf("initializing stage %q: %w", name, err)
		}
		n.stage.state().Store(int32(Attached))
		initialized = append(initialized, name)
	}
	return nil
}

// Shutdown walks the DAG in topological order (roots first), draining
// producers before their downstream stages tear down.
func (g *Graph) Shutdown(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, name := range g.topoOrder() {
		g.shutdownOne(ctx, name)
	}
}

func (g *Graph) shutdownOne(ctx context.Context, name string) {
	n, ok := g.nodes[name]
	if !ok {
		return
	}
	n.stage.state().Store(int32(ShuttingDown))
	_ = n.stage.OnShutdown(ctx) // onShutdown must not throw; nothing to surface
	n.stage.state().Store(int32(Detached))
}

// Dispatch hands rec to the named stage. Every call to Dispatch
// consumes exactly one reference to rec — the caller transfers
// ownership in, and Dispatch releases it before returning, after any
// fan-out it triggers has taken its own references. A sync stage
// processes rec inline and, if it returns true, immediately fans the
// record out to every downstream stage; an async stage enqueues it
// (retaining its own reference for the queue) and fans out on enqueue
// success, without waiting for processAsync to run — spec §4.G
// defines delivery as enqueue success, not processing completion.
func (g *Graph) Dispatch(stageName string, rec *record.Record) error {
	defer rec.Release()

	g.mu.RLock()
	n, ok := g.nodes[stageName]
	g.mu.RUnlock()
	if !ok {
		return errors.ConfigError("unknown stage").WithIdentifier(stageName)
	}

	accepted := true
	switch s := n.stage.(type) {
	case SyncProcessor:
		accepted = s.ProcessSync(rec)
	case interface{ Enqueue(*record.Record) bool }:
		accepted = s.Enqueue(rec)
	}
	if !accepted {
		return nil
	}
	return g.fanOut(n, rec)
}

func (g *Graph) fanOut(n *node, rec *record.Record) error {
	if len(n.downstream) == 0 {
		return nil
	}
	g.mu.RLock()
	downstream := append([]string(nil), n.downstream...)
	g.mu.RUnlock()

	for _, name := range downstream {
		rec.Retain()
		if err := g.Dispatch(name, rec); err != nil {
			return err
		}
	}
	return nil
}
