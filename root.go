package ptask

/*
License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

*/

import (
	"context"
	"sync"
)

// Config configures a Run. A zero Config runs the single-threaded
// reference loop with no thread-context and no cancellation.
type Config struct {
	// Workers selects the execution strategy: 0 or 1 selects the serial
	// reference loop (loop.go); values greater than 1 request the worker
	// pool (pool.go).
	Workers int

	// NewThreadContext, if non-nil, is called once per worker before any
	// task runs on that worker.
	NewThreadContext ContextConstructor
	ThreadCtxBaton   interface{}

	// Cancel, if non-nil, is polled by process and output functions via
	// the CancelFunc passed to them.
	Cancel      CancelFunc
	CancelBaton interface{}
}

// Root owns the three lifetime regions and the single root task. It is constructed fresh by every call to Run.
type Root struct {
	taskRegion    *Region
	processRegion *Region
	resultsRegion *Region
	drainRegion   *Region

	root *Task

	cancel      CancelFunc
	cancelBaton interface{}

	// treeMu guards every tree mutation: linking, unreadying, marking a
	// task processed, and ensureResults with its results-region
	// allocation. Process-region and scratch allocations rely on the
	// Region's own mutex instead. It is taken even in serial
	// mode, where it is always uncontended.
	treeMu   sync.Mutex
	treeCond *sync.Cond
	// inFlight counts tasks picked for processing but not yet marked
	// processed. The serial loop maintains it too, where it never
	// exceeds one.
	inFlight int
}

// Run constructs the three lifetime regions as children of scratch, seeds a
// root task with the given process and output functions/batons, and drives
// execution to completion. It returns the first error encountered in drain
// order — a process error, a cancellation, or an output error — or nil on
// success. All transient state created by Run is released before it
// returns, on both success and error paths.
func Run(
	ctx context.Context,
	cfg Config,
	rootProcess ProcessFunc,
	rootProcessBaton interface{},
	rootOutput OutputFunc,
	rootOutputBaton interface{},
	longLived *Region,
	scratch *Region,
) error {
	root := &Root{
		taskRegion:    scratch.NewChild(),
		processRegion: scratch.NewChild(),
		resultsRegion: scratch.NewChild(),
		drainRegion:   scratch.NewChild(),
		cancel:        cfg.Cancel,
		cancelBaton:   cfg.CancelBaton,
	}
	root.treeCond = sync.NewCond(&root.treeMu)
	defer root.taskRegion.Destroy()
	defer root.processRegion.Destroy()
	defer root.resultsRegion.Destroy()
	defer root.drainRegion.Destroy()

	cb := &callbacks{process: rootProcess, output: rootOutput, outputBaton: rootOutputBaton}
	rootTask := newTask(root, nil, 0, cb, rootProcessBaton, root.processRegion.NewChild())
	rootTask.firstReady = rootTask
	rootTask.frChildIdx = -1
	root.root = rootTask

	workerCount := cfg.Workers
	if workerCount < 0 {
		workerCount = 0
	}

	if workerCount <= 1 {
		threadCtx, err := makeThreadContext(ctx, cfg, longLived, scratch)
		if err != nil {
			return err
		}
		return runSerial(ctx, root, cfg, threadCtx)
	}
	return runPool(ctx, root, cfg, workerCount, longLived, scratch)
}

// isProcessed reads t's processed flag under the tree mutex. Workers set
// the flag while holding treeMu (processTask), so taking it here is what
// publishes a processed task's results record to the draining coordinator.
func (root *Root) isProcessed(t *Task) bool {
	root.treeMu.Lock()
	defer root.treeMu.Unlock()
	return t.processed
}

// makeThreadContext constructs a single worker's thread-context value,
// invoking the constructor exactly once.
func makeThreadContext(ctx context.Context, cfg Config, longLived, scratch *Region) (interface{}, error) {
	if cfg.NewThreadContext == nil {
		return nil, nil
	}
	var tc interface{}
	tcScratch := scratch.NewChild()
	defer tcScratch.Destroy()
	if err := cfg.NewThreadContext(ctx, &tc, cfg.ThreadCtxBaton, longLived, tcScratch); err != nil {
		return nil, processErr(-1, err)
	}
	return tc, nil
}
