package task

import (
	"fmt"
	"sync/atomic"
)

// EnqueueFunc enqueues a node for execution. It is the subset of
// *queue.Queue[*Node] that Node.Schedule needs; declared here to avoid a
// dependency from the task package onto queue's generic instantiation.
type EnqueueFunc func(*Node)

// Node is a DAG node wrapping a Task with atomic completion/scheduling
// state. Node carries only the pre-compile adjacency the caller builds;
// the compiled adjacency is owned by the graph (an arena-of-indices design,
// see DESIGN.md), and compiled clones carry no edges of their own.
type Node struct {
	ID       uint64
	Task     Task
	IsRoot   bool
	UserData atomic.Uint64

	// Dependencies/Dependents are the pre-compile adjacency sets: nodes the
	// caller builds the raw graph out of before TaskGraph.Compile clones it
	// into an arena addressed by index (see graph.Graph). A Dependents
	// entry d means this node must complete before d may launch.
	Dependencies []*Node
	Dependents   []*Node

	completed atomic.Bool
	scheduled atomic.Bool
}

// NewNode constructs a node wrapping task, stamped with the given unique,
// monotonic id.
func NewNode(id uint64, t Task, isRoot bool) *Node {
	return &Node{ID: id, Task: t, IsRoot: isRoot}
}

// AddDependency records that n depends on dep (dep must complete before n
// may launch). It fails if n is a root node: roots forbid inbound edges.
func (n *Node) AddDependency(dep *Node) error {
	if n.IsRoot {
		return fmt.Errorf("task: cannot add dependency to root node %d", n.ID)
	}
	n.Dependencies = append(n.Dependencies, dep)
	dep.Dependents = append(dep.Dependents, n)
	return nil
}

// Completed reports whether the node's last execution attempt completed
// successfully (acquire semantics via atomic.Bool).
func (n *Node) Completed() bool { return n.completed.Load() }

// Scheduled reports whether the node is currently enqueued for this
// execution epoch.
func (n *Node) Scheduled() bool { return n.scheduled.Load() }

// Execute invokes the underlying task wrapped in profiling begin/end
// hooks, then sets Completed = (ok && err == nil) with release semantics.
// It returns the task's own verdict and error so the caller (TaskSink's
// dispatch loop) can distinguish reschedule from fatal failure.
func (n *Node) Execute(workerID int) (bool, error) {
	services := n.Task.ProfilingServices()
	name := n.Task.Name()
	for _, s := range services {
		s.Begin(name)
	}
	ok, err := n.Task.Execute(workerID, n.UserData.Load())
	for _, s := range services {
		s.End(name)
	}
	n.completed.Store(ok && err == nil)
	return ok, err
}

// Schedule CAS-gates scheduled from false to true; on success it enqueues
// the node via enqueue and returns true. This guarantees at-most-once
// enqueue per execution epoch.
func (n *Node) Schedule(enqueue EnqueueFunc) bool {
	if n.scheduled.CompareAndSwap(false, true) {
		enqueue(n)
		return true
	}
	return false
}

// ClearScheduled clears only the scheduled flag, allowing the node to be
// rescheduled while leaving completed untouched.
func (n *Node) ClearScheduled() {
	n.scheduled.Store(false)
}

// ResetExecutionStatus clears both completed and scheduled, allowing the
// owning graph to be resubmitted.
func (n *Node) ResetExecutionStatus() {
	n.completed.Store(false)
	n.scheduled.Store(false)
}

// IsReadyToLaunch reports whether every node in deps has completed
// (acquire load per node).
func IsReadyToLaunch(deps []*Node) bool {
	for _, d := range deps {
		if !d.Completed() {
			return false
		}
	}
	return true
}
