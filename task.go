package ptask

/*
License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

*/

import "github.com/google/uuid"

// resultsRecord is the per-task result container: the output
// produced by the process function, its error, any fragment the parent
// emitted before this task was spawned, and the flag that keeps the task's
// results region alive while a child still reaches into it.
//
// A record is allocated on demand (ensureResults) when a prior-parent
// fragment is recorded on spawn or just before the task is processed. It
// is dropped right after processing if all of its fields are still empty,
// and otherwise destroyed once the drainer has emitted everything that
// reaches into its region.
type resultsRecord struct {
	output      interface{}
	hasOutput   bool
	err         error
	priorOutput interface{}
	hasPrior    bool
	hasPartial  bool // at least one direct child carries prior-parent output
	region      *Region
}

func (rr *resultsRecord) empty() bool {
	return rr == nil || (!rr.hasOutput && rr.err == nil && !rr.hasPrior && !rr.hasPartial)
}

// Task is a vertex in the task tree. It is a pure data carrier: its
// Spawn/SpawnSimilar/NewProcessRegion methods are the only operations
// legal to call on it, and only from within the process function that owns
// it or from its output function while that output is being drained.
type Task struct {
	root *Root
	id   string

	parent      *Task
	firstChild  *Task
	lastChild   *Task
	nextSibling *Task

	// subTaskIdx is the zero-based position of this task among its
	// siblings at creation time. It is never reassigned, even once
	// earlier siblings retire.
	subTaskIdx int
	// nextChildIdx hands out subTaskIdx values to this task's own
	// children; it only ever increases.
	nextChildIdx int

	// firstReady points to the earliest in-order descendant (possibly
	// itself) whose processing has not yet begun; nil once every task in
	// this subtree is in-progress or done.
	firstReady *Task
	// frChildIdx is the sub-task index, among this task's own children, of
	// whichever child's subtree firstReady currently reaches into; -1 when
	// firstReady == this task itself. See tree.go.
	frChildIdx int

	cb           *callbacks
	processBaton interface{}

	// processRegion owns the process baton; nil exactly when the task's
	// process function has returned.
	processRegion *Region

	processed bool

	results *resultsRecord
}

func newTask(root *Root, parent *Task, subTaskIdx int, cb *callbacks, processBaton interface{}, processRegion *Region) *Task {
	t := &Task{
		root:          root,
		id:            uuid.Must(uuid.NewV7()).String(),
		parent:        parent,
		subTaskIdx:    subTaskIdx,
		cb:            cb,
		processBaton:  processBaton,
		processRegion: processRegion,
	}
	// The process baton lives in the process region; releasing the region
	// releases the task's reference to it as well.
	if processRegion != nil {
		processRegion.OnDestroy(func() { t.processBaton = nil })
	}
	return t
}

// ID returns a stable identifier for this task, useful only for tracing and
// diagnostics (dump.go); the engine never keys behavior off of it.
func (t *Task) ID() string { return t.id }

// SubTaskIndex returns this task's sub-task index relative to its parent.
// The root task's index is -1.
func (t *Task) SubTaskIndex() int {
	if t.parent == nil {
		return -1
	}
	return t.subTaskIdx
}

// ensureResults allocates t's results record on first use, as a child of
// the root's results region.
func (t *Task) ensureResults() *resultsRecord {
	if t.results == nil {
		rr := &resultsRecord{region: t.root.resultsRegion.NewChild()}
		// Output and error payloads live in the results region; when it
		// goes (drained and retired, or torn down after an error) the
		// record's references to them go with it.
		rr.region.OnDestroy(func() {
			rr.output = nil
			rr.hasOutput = false
			rr.priorOutput = nil
			rr.err = nil
		})
		t.results = rr
	}
	return t.results
}

// Spawn allocates a new callbacks bundle and a new task node under the
// calling task. partialOutput, if non-nil and the parent has an
// output function, is recorded as the child's prior-parent output and
// marks the parent's results record as carrying partial results.
func (t *Task) Spawn(partialOutput interface{}, process ProcessFunc, processBaton interface{}, output OutputFunc, outputBaton interface{}, processRegion *Region) *Task {
	cb := &callbacks{process: process, output: output, outputBaton: outputBaton}
	return t.spawn(partialOutput, cb, processBaton, processRegion)
}

// SpawnSimilar is identical to Spawn but reuses the calling task's
// callbacks bundle by reference, for tasks fanning out into homogeneous
// children.
func (t *Task) SpawnSimilar(partialOutput interface{}, processBaton interface{}, processRegion *Region) *Task {
	return t.spawn(partialOutput, t.cb, processBaton, processRegion)
}

func (t *Task) spawn(partialOutput interface{}, cb *callbacks, processBaton interface{}, processRegion *Region) *Task {
	t.root.treeMu.Lock()
	defer t.root.treeMu.Unlock()

	idx := t.nextChildIdx
	t.nextChildIdx++
	child := newTask(t.root, t, idx, cb, processBaton, processRegion)

	if partialOutput != nil && t.cb != nil && t.cb.output != nil {
		rr := child.ensureResults()
		rr.priorOutput = partialOutput
		rr.hasPrior = true
		t.ensureResults().hasPartial = true
	}

	linkChild(t, child)
	tracer().Debugf("spawned task %s under %s at index %d", child.id, t.id, idx)
	return child
}

// NewProcessRegion produces a fresh child region of the root's process
// region. The caller passes it back into Spawn/SpawnSimilar as the
// sub-task's process region, after allocating the process baton into it.
func (t *Task) NewProcessRegion() *Region {
	return t.root.processRegion.NewChild()
}
