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

// runPool extends the serial reference loop with a fixed pool of workers
// that process independently-ready tasks concurrently; this goroutine is
// the coordinator. It alone picks (under root.treeMu), dispatches to
// workers, and drains. Draining stays single-threaded so the global output
// order is preserved regardless of how many workers are configured.
func runPool(ctx context.Context, root *Root, cfg Config, workerCount int, longLived, scratch *Region) error {
	threadCtxs := make([]interface{}, workerCount)
	for i := range threadCtxs {
		tc, err := makeThreadContext(ctx, cfg, longLived, scratch)
		if err != nil {
			return err
		}
		threadCtxs[i] = tc
	}

	work := make(chan *Task)
	var wg sync.WaitGroup
	for _, tc := range threadCtxs {
		wg.Add(1)
		go func(threadCtx interface{}) {
			defer wg.Done()
			for t := range work {
				processTask(ctx, root, threadCtx, t)
				root.treeMu.Lock()
				root.treeCond.Broadcast()
				root.treeMu.Unlock()
			}
		}(tc)
	}
	defer func() {
		close(work)
		wg.Wait()
	}()

	var current *Task = root.root
	for {
		dispatched := dispatchReady(root, work)

		prev := current
		var err error
		current, err = drainFrom(ctx, root, current)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}

		if dispatched > 0 || current != prev {
			// Made progress this round; try again immediately rather
			// than waiting for a worker to report back.
			continue
		}

		// No progress: current is blocked on a task still in flight.
		// Sleep until a worker marks something processed or spawns new
		// ready work. Waking with nothing ready and nothing in flight is
		// fine as long as current itself got processed; the next drain
		// will advance past it.
		root.treeMu.Lock()
		for root.root.firstReady == nil && !current.processed && root.inFlight > 0 {
			root.treeCond.Wait()
		}
		stuck := root.root.firstReady == nil && !current.processed && root.inFlight == 0
		root.treeMu.Unlock()
		if stuck {
			invariantf("pool coordinator: nothing ready, nothing in flight, but the tree is not fully drained")
		}
	}
}

// dispatchReady hands every currently-ready task to a free worker and
// reports how many it dispatched. Picking (reading and unreadying
// first-ready) is serialized through root.treeMu; the channel send itself
// happens outside the lock so a busy worker pool never blocks tree
// mutation elsewhere.
func dispatchReady(root *Root, work chan<- *Task) int {
	n := 0
	for {
		root.treeMu.Lock()
		next := root.root.firstReady
		if next == nil {
			root.treeMu.Unlock()
			return n
		}
		unready(next)
		root.inFlight++
		root.treeMu.Unlock()

		work <- next
		n++
	}
}
