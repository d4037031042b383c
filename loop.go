package ptask

import "context"

// runSerial is the single-threaded reference loop: pick the next ready
// task, process it, and drain as far as the tree allows, repeating until
// nothing is left ready. It is also what the worker pool
// (pool.go) reduces to when Config.Workers is 0 or 1.
func runSerial(ctx context.Context, root *Root, cfg Config, threadCtx interface{}) error {
	var current *Task = root.root

	for {
		root.treeMu.Lock()
		next := root.root.firstReady
		if next != nil {
			unready(next)
			root.inFlight++
		}
		root.treeMu.Unlock()
		if next == nil {
			break
		}
		processTask(ctx, root, threadCtx, next)

		var err error
		current, err = drainFrom(ctx, root, current)
		if err != nil {
			return err
		}
	}
	return nil
}

// processTask runs t's process function to completion, stores the result
// (or error) in t's results record, and retires t's process region. It
// never returns an error itself: process errors are stored for the
// drainer to surface in drain order, not reported out of band.
func processTask(ctx context.Context, root *Root, threadCtx interface{}, t *Task) {
	root.treeMu.Lock()
	resultsRegion := t.ensureResults().region
	root.treeMu.Unlock()
	scratch := root.processRegion.NewChild()
	defer scratch.Destroy()

	var out interface{}
	err := t.cb.process(
		ctx, &out, t, threadCtx, t.processBaton,
		root.cancel, root.cancelBaton,
		resultsRegion, scratch,
	)

	root.treeMu.Lock()
	rr := t.results
	if err != nil {
		// An error preempts whatever output the process function may
		// also have recorded; the output is dropped, never emitted.
		rr.err = wrapProcessError(t.SubTaskIndex(), err)
	} else if t.cb.output != nil && out != nil {
		rr.output = out
		rr.hasOutput = true
	}
	if rr.empty() {
		rr.region.Destroy()
		t.results = nil
	}

	t.processRegion.Destroy()
	t.processRegion = nil
	t.processed = true
	root.inFlight--
	root.treeMu.Unlock()

	tracer().Debugf("processed task %s (err=%v)", t.id, err)
}
