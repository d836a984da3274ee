// Package sink implements the TaskSink worker pool, component D: a fixed
// pool of workers dispatches ready graph nodes off a lock-free queue, with
// a sticky fatal-error watchdog and a Stopped/Running lifecycle.
package sink

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lxgc/enginecore/internal/errs"
	"github.com/lxgc/enginecore/internal/graph"
	"github.com/lxgc/enginecore/internal/queue"
	"github.com/lxgc/enginecore/internal/task"
	"github.com/lxgc/enginecore/pkg/logging"
	"github.com/lxgc/enginecore/pkg/metrics"
)

// DefaultWorkerCount is the default worker pool size.
const DefaultWorkerCount = 8

type state int32

const (
	stateStopped state = iota
	stateRunning
)

// Sink dispatches TaskGraph nodes across a fixed worker pool. The zero
// value is not usable; construct with New.
type Sink struct {
	workerCount int
	q           *queue.Queue[*task.Node]
	logger      *logging.Logger
	metrics     *metrics.SinkMetrics

	state    atomic.Int32
	stopping atomic.Bool
	watchdog atomic.Pointer[errs.TaskFatalError]

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Sink with the given worker count and ring-allocator
// capacity for its internal queue. workerCount <= 0 selects
// DefaultWorkerCount; queueCapacity <= 0 selects queue.DefaultCapacity.
// logger and m may be nil.
func New(workerCount, queueCapacity int, logger *logging.Logger, m *metrics.SinkMetrics) *Sink {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sink{
		workerCount: workerCount,
		q:           queue.New[*task.Node](queueCapacity),
		logger:      logger.With("component", "sink"),
		metrics:     m,
	}
}

// Start transitions Stopped -> Running and spawns the worker pool. It
// returns an error if the sink is already running.
func (s *Sink) Start() error {
	if !s.state.CompareAndSwap(int32(stateStopped), int32(stateRunning)) {
		return fmt.Errorf("sink: already running")
	}
	s.stopping.Store(false)
	s.watchdog.Store(nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	eg, _ := errgroup.WithContext(ctx)
	s.group = eg

	for w := 0; w < s.workerCount; w++ {
		workerID := w
		eg.Go(func() error {
			s.dispatch(workerID)
			return nil
		})
	}
	s.logger.Infof("started with %d workers", s.workerCount)
	return nil
}

// Shutdown signals stop and blocks until every worker has returned. It is
// a no-op if the sink is already stopped.
func (s *Sink) Shutdown() error {
	if !s.state.CompareAndSwap(int32(stateRunning), int32(stateStopped)) {
		return nil
	}
	s.stopping.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.group.Wait()
	s.logger.Infof("stopped")
	return nil
}

// IsRunning reports whether the sink is currently in the Running state.
func (s *Sink) IsRunning() bool {
	return state(s.state.Load()) == stateRunning
}

// Submit broadcasts userData to every node of g, then repeatedly sweeps
// the compiled node list, scheduling every ready, uncompleted node, with a
// yield-then-sleep(1ms) backoff once a sweep finds no work. It returns nil
// once the barrier node completes, or the latched fatal error if the
// watchdog fired.
func (s *Sink) Submit(ctx context.Context, g *graph.Graph, userData uint64) error {
	g.SetUserData(userData)

	yieldCount := 0
	for {
		if fatal := s.watchdog.Load(); fatal != nil {
			return fatal
		}
		if g.IsCompleted() {
			g.ResetExecutionStatus()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progressed := false
		for i, n := range g.Compiled {
			if n.Completed() || n.Scheduled() {
				continue
			}
			if !g.IsReady(i) {
				continue
			}
			if n.Schedule(func(nd *task.Node) { s.q.Enqueue(nd) }) {
				progressed = true
				if s.metrics != nil {
					s.metrics.ObserveScheduled()
				}
			}
		}

		if progressed {
			yieldCount = 0
			continue
		}

		yieldCount++
		if yieldCount < 64 {
			runtime.Gosched()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// dispatch is a single worker's loop: while the watchdog is clear and
// (the queue yields a node or stop has not been signalled), dequeue and
// execute nodes; otherwise yield the OS scheduler.
func (s *Sink) dispatch(workerID int) {
	for {
		if s.watchdog.Load() != nil {
			return
		}

		node, ok := s.q.Dequeue()
		if !ok {
			if s.stopping.Load() {
				return
			}
			runtime.Gosched()
			continue
		}

		ok, err := node.Execute(workerID)
		if !ok {
			node.ResetExecutionStatus()
			if s.metrics != nil {
				s.metrics.ObserveReschedule()
			}
		}
		if err != nil {
			s.watchdog.CompareAndSwap(nil, errs.NewTaskFatal(node.Task.Name(), err.Error()))
			s.logger.Errorf("task %q failed fatally: %v", node.Task.Name(), err)
			if s.metrics != nil {
				s.metrics.ObserveFatal()
			}
			return
		}
		if ok && s.metrics != nil {
			s.metrics.ObserveCompleted()
		}
	}
}

// Close releases the sink's internal queue. The sink must be stopped and
// the queue empty (no pending nodes) before calling Close.
func (s *Sink) Close() {
	s.q.Close()
}
