package ptask

import "context"

// CancelFunc is a polling predicate checked by process and output
// functions. A non-nil error stops both process and output; the engine
// treats it as fatal and surfaces it unchanged as a KindCancelled error.
type CancelFunc func(baton interface{}) error

// ProcessFunc performs the work of a single task. It may call Spawn,
// SpawnSimilar, and NewProcessRegion on the task it is given to discover
// further sub-tasks. It must leave *output set to nil when it produces
// nothing, and it must not retain scratch beyond the call.
type ProcessFunc func(
	ctx context.Context,
	output *interface{},
	task *Task,
	threadCtx interface{},
	processBaton interface{},
	cancel CancelFunc,
	cancelBaton interface{},
	results *Region,
	scratch *Region,
) error

// OutputFunc consumes a single output fragment produced for a task, in
// drain order. It is invoked at most once per (task, fragment) pair. It may
// itself call Spawn on the task to introduce further children; if it does,
// the drainer processes them before retiring the task.
type OutputFunc func(
	ctx context.Context,
	task *Task,
	output interface{},
	outputBaton interface{},
	cancel CancelFunc,
	cancelBaton interface{},
	results *Region,
	scratch *Region,
) error

// ContextConstructor builds a per-worker thread-context value, called once
// per worker before any task runs on that worker.
type ContextConstructor func(
	ctx context.Context,
	output *interface{},
	baton interface{},
	longLived *Region,
	scratch *Region,
) error

// callbacks groups a process function, an output function, and the output
// function's baton. Instances are shared by reference between a task and
// any "similar" sub-tasks it spawns via SpawnSimilar — never deep-copied.
type callbacks struct {
	process     ProcessFunc
	output      OutputFunc
	outputBaton interface{}
}
