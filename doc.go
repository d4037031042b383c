/*
Package ptask implements a parallel task execution engine: a dynamically
growing tree of units of work, driven to completion either by a single
cooperative loop or by a small worker pool, with outputs emitted strictly
in the order a sequential pre-order traversal of the tree would produce.

Tasks discover sub-tasks while being processed. Each task may emit output
fragments interleaved with spawning those sub-tasks. The engine presents the
resulting stream of outputs as a single serial sequence — identical to what
a purely sequential depth-first traversal would produce — while still
permitting independent subtrees to be processed concurrently.

Usage

A caller seeds a root task with a process function, an output function, and
batons for both, then hands everything to Run:

	longLived := ptask.NewRootRegion()
	scratch := ptask.NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()

	err := ptask.Run(ctx, ptask.Config{Workers: 0},
		processRoot, nil, emit, nil, longLived, scratch)

The process function may call Spawn, SpawnSimilar, and NewProcessRegion on
the Task it is given to discover further work. The output function is
invoked once per (task, fragment) pair, in tree pre-order, including any
"prior-parent" fragments recorded before a child was spawned.

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.
*/
package ptask

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer returns the package-wide trace sink, selected under the key
// "ptask" as configured by the embedding application.
func tracer() tracing.Trace {
	return tracing.Select("ptask")
}
