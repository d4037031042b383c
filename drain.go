package ptask

/*
License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

*/

import "context"

// drainFrom implements the output drainer. current is the earliest task
// that might be due for drain; it returns the new earliest task that might
// be due (nil once the whole tree has been processed and drained), or the
// first error encountered, in drain order.
//
// The walk only ever descends via firstChild and only ever moves to a
// parent once that parent's current first child has retired, so it visits
// each task's own output/error exactly once regardless of how many times
// drainFrom is called across the run.
func drainFrom(ctx context.Context, root *Root, current *Task) (*Task, error) {
	scratch := root.drainRegion.NewChild()
	defer scratch.Destroy()

	for current != nil && root.isProcessed(current) {
		scratch.Clear()

		if current.firstChild != nil {
			child := current.firstChild
			// The child may be mid-processing on a worker; its results
			// record pointer is only stable under the tree mutex. The
			// prior-output fields themselves never change after spawn.
			root.treeMu.Lock()
			crr := child.results
			root.treeMu.Unlock()
			if crr != nil && crr.hasPrior && current.cb.output != nil {
				if err := current.cb.output(
					ctx, current, crr.priorOutput, current.cb.outputBaton,
					root.cancel, root.cancelBaton,
					current.results.region, scratch,
				); err != nil {
					return current, wrapOutputError(current.SubTaskIndex(), err)
				}
			}
			current = child
			continue
		}

		if rr := current.results; rr != nil {
			if rr.err != nil {
				err := rr.err
				rr.err = nil
				return current, err.(*Error)
			}
			if rr.hasOutput && current.cb.output != nil {
				out := rr.output
				rr.hasOutput = false
				if err := current.cb.output(
					ctx, current, out, current.cb.outputBaton,
					root.cancel, root.cancelBaton,
					rr.region, scratch,
				); err != nil {
					return current, wrapOutputError(current.SubTaskIndex(), err)
				}
			}
		}

		if current.firstChild != nil {
			// The output function just called above spawned children of
			// its own. Handle them before retiring.
			continue
		}

		// Unlinking must not race a worker scanning the parent's child
		// list while it propagates readiness for a spawn elsewhere.
		parent := current.parent
		root.treeMu.Lock()
		retire(current)
		root.treeMu.Unlock()
		if current.results != nil {
			current.results.region.Destroy()
			current.results = nil
		}
		current = parent
	}
	return current, nil
}
