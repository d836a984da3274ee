// Package graph implements the TaskGraph DAG builder, component C: roots
// declared by the caller are compiled into a topologically ordered arena of
// node clones addressed by index, with a synthetic barrier-terminator
// appended as the last compiled node.
package graph

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lxgc/enginecore/internal/errs"
	"github.com/lxgc/enginecore/internal/task"
	"github.com/lxgc/enginecore/pkg/logging"
)

// Graph owns the raw node set the caller builds (via NewNode/AddDependency
// on the returned nodes) and, after Compile, the arena-of-indices compiled
// representation used for execution. Dependencies/dependents in the
// compiled arena are index slices rather than node pointers, per the
// "shared-owner pointer graphs" design note.
type Graph struct {
	Name   string
	Roots  []*task.Node
	logger *logging.Logger
	nextID atomic.Uint64

	// Compiled is the topologically ordered clone list; Compiled[len-1] is
	// always the barrier node once Compile has succeeded.
	Compiled []*task.Node

	dependencyIdx [][]int // dependencyIdx[i] = indices of nodes i depends on
	dependentIdx  [][]int // dependentIdx[i]  = indices of nodes depending on i
	barrierIdx    int
	compiled      bool
}

// New creates an empty graph. logger may be nil (logging.Nop() is used).
func New(name string, logger *logging.Logger) *Graph {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Graph{Name: name, logger: logger.With("graph", name)}
}

// NewNode allocates a fresh node with a graph-unique monotonic id, wrapping
// t. If isRoot, the node is also registered in Roots.
func (g *Graph) NewNode(t task.Task, isRoot bool) *task.Node {
	id := g.nextID.Add(1)
	n := task.NewNode(id, t, isRoot)
	if isRoot {
		g.Roots = append(g.Roots, n)
	}
	return n
}

type color int

const (
	white color = iota
	grey
	black
)

// Compile performs the pure function of roots -> compiled DAG:
//  1. three-colour DFS for topological order and cycle detection;
//  2. BFS-based edge rebuild over id-mapped clones;
//  3. barrier-terminator injection, dependent on every other compiled node.
//
// It returns errs.ErrCycleDetected if a root can reach a node already on
// the current DFS stack.
func (g *Graph) Compile() error {
	colors := make(map[*task.Node]color)
	var order []*task.Node

	var visit func(n *task.Node) error
	visit = func(n *task.Node) error {
		switch colors[n] {
		case black:
			return nil
		case grey:
			return errs.ErrCycleDetected
		}
		colors[n] = grey
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		colors[n] = black
		order = append([]*task.Node{n}, order...)
		return nil
	}

	for _, r := range g.Roots {
		if err := visit(r); err != nil {
			g.logger.Errorf("compile failed for graph %q: %v", g.Name, err)
			return err
		}
	}

	clones := make([]*task.Node, len(order))
	idxOf := make(map[*task.Node]int, len(order))
	for i, orig := range order {
		clones[i] = task.NewNode(orig.ID, orig.Task, orig.IsRoot)
		idxOf[orig] = i
	}

	depIdx := make([][]int, len(order))
	dependentIdx := make([][]int, len(order))

	visited := make(map[*task.Node]bool, len(order))
	queue := append([]*task.Node{}, g.Roots...)
	seenEdge := make(map[[2]int]bool)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		ni := idxOf[n]
		for _, dependent := range n.Dependents {
			di := idxOf[dependent]
			edge := [2]int{ni, di}
			if !seenEdge[edge] {
				seenEdge[edge] = true
				dependentIdx[ni] = append(dependentIdx[ni], di)
				depIdx[di] = append(depIdx[di], ni)
			}
			queue = append(queue, dependent)
		}
	}

	barrierID := g.nextID.Add(1)
	barrierTask := &task.FuncTask{
		TaskName: g.Name + "__barrier_sync_task",
		TaskType: task.CPU,
		Exposed:  false,
		Fn:       func(int, uint64) (bool, error) { return true, nil },
	}
	barrier := task.NewNode(barrierID, barrierTask, false)
	bIdx := len(clones)
	clones = append(clones, barrier)
	depIdx = append(depIdx, make([]int, 0, bIdx))
	dependentIdx = append(dependentIdx, []int{})
	for i := 0; i < bIdx; i++ {
		depIdx[bIdx] = append(depIdx[bIdx], i)
		dependentIdx[i] = append(dependentIdx[i], bIdx)
	}

	g.Compiled = clones
	g.dependencyIdx = depIdx
	g.dependentIdx = dependentIdx
	g.barrierIdx = bIdx
	g.compiled = true
	return nil
}

// IsCompiled reports whether Compile has succeeded at least once since
// construction. A later failed Compile does not clear it.
func (g *Graph) IsCompiled() bool { return g.compiled }

// BarrierIndex returns the index of the synthetic barrier node in Compiled.
func (g *Graph) BarrierIndex() int { return g.barrierIdx }

// Dependencies returns the compiled dependency nodes of Compiled[i].
func (g *Graph) Dependencies(i int) []*task.Node {
	out := make([]*task.Node, len(g.dependencyIdx[i]))
	for j, idx := range g.dependencyIdx[i] {
		out[j] = g.Compiled[idx]
	}
	return out
}

// IsReady reports whether every dependency of Compiled[i] has completed.
func (g *Graph) IsReady(i int) bool {
	for _, idx := range g.dependencyIdx[i] {
		if !g.Compiled[idx].Completed() {
			return false
		}
	}
	return true
}

// IsCompleted returns the barrier node's completed flag: the graph is
// complete iff the barrier is complete.
func (g *Graph) IsCompleted() bool {
	return g.Compiled[g.barrierIdx].Completed()
}

// ResetExecutionStatus clears completed/scheduled on every compiled node,
// allowing the same compiled graph to be resubmitted.
func (g *Graph) ResetExecutionStatus() {
	for _, n := range g.Compiled {
		n.ResetExecutionStatus()
	}
}

// SetUserData broadcasts v to every compiled node.
func (g *Graph) SetUserData(v uint64) {
	for _, n := range g.Compiled {
		n.UserData.Store(v)
	}
}

var taskTypeStyle = map[task.Type]string{
	task.CPU:        `shape=box, fillcolor=lightblue`,
	task.GPUDraw:    `shape=oval, fillcolor=yellow`,
	task.GPUCompute: `shape=hexagon, fillcolor=red`,
	task.GPUCopy:    `shape=diamond, fillcolor=gray`,
	task.Other:      `shape=triangle, fillcolor=white`,
}

// DOT renders the compiled graph as Graphviz source for debugging. Nodes
// whose underlying task reports ExposedInTaskGraph() == false (e.g. the
// barrier) are omitted from both nodes and edges.
func (g *Graph) DOT() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n  node[style=filled];\n", g.Name)

	exposed := make([]bool, len(g.Compiled))
	for i, n := range g.Compiled {
		exposed[i] = n.Task.ExposedInTaskGraph()
		if !exposed[i] {
			continue
		}
		style := taskTypeStyle[n.Task.Type()]
		fmt.Fprintf(&b, "  n%d [label=%q, %s];\n", n.ID, n.Task.Name(), style)
	}
	for i, n := range g.Compiled {
		if !exposed[i] {
			continue
		}
		for _, di := range g.dependentIdx[i] {
			if !exposed[di] {
				continue
			}
			fmt.Fprintf(&b, "  n%d -> n%d;\n", n.ID, g.Compiled[di].ID)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
