package ptask

/*
License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

*/

// Tree maintenance: linking a newly spawned task under its parent,
// unreadying a task the instant before it starts processing, and retiring
// a task once it is fully drained. All three operations maintain the
// first-ready pointers incrementally; no part of the tree is ever rescanned
// from scratch.
//
// Ordering along a branch is tracked with a companion index, frChildIdx,
// stored next to each task's firstReady pointer: the sub-task index, among
// that task's own children, of whichever child's subtree the firstReady
// pointer currently reaches into (-1 when firstReady == the task itself).
// This turns "earlier subtree" comparisons into O(1) integer comparisons
// instead of walking the path from the root on every link/unready.

// linkChild appends child to parent's sibling list and propagates
// readiness upward. child must already carry its assigned subTaskIdx.
func linkChild(parent, child *Task) {
	if parent.lastChild == nil {
		parent.firstChild = child
	} else {
		parent.lastChild.nextSibling = child
	}
	parent.lastChild = child

	// A freshly linked task has no children and has not started: it is
	// its own first-ready value.
	child.firstReady = child
	child.frChildIdx = -1

	propagateReady(parent, child)
}

// propagateReady walks upward from anc, offering cur as the candidate
// first-ready value reached through anc's child at index viaIdx (derived
// from cur.subTaskIdx on the first step, and from each ancestor's own
// subTaskIdx thereafter). It stops at the first ancestor whose existing
// first-ready already reaches a strictly earlier child subtree, or at the
// root. An ancestor whose first-ready reaches through the same child as cur
// is updated too: the level below already found cur to be earlier.
func propagateReady(anc *Task, cur *Task) {
	viaIdx := cur.subTaskIdx
	for anc != nil {
		if anc.firstReady != nil && anc.frChildIdx < viaIdx {
			return
		}
		anc.firstReady = cur
		anc.frChildIdx = viaIdx
		if anc.parent == nil {
			return
		}
		viaIdx = anc.subTaskIdx
		anc = anc.parent
	}
}

// unready is called the instant before a task begins processing. The
// task's own first-ready becomes nil; ancestors whose first-ready reached
// into this task are walked upward, each adopting the first non-nil
// first-ready among the task's later siblings (or its own later siblings,
// as the search climbs), until a replacement is found or the root is
// reached with nothing left ready.
func unready(t *Task) {
	t.firstReady = nil
	t.frChildIdx = -1

	// Every ancestor on the path holds t itself as its first-ready value,
	// not the intermediate child it is reached through: readiness
	// propagation installs the ultimate descendant at every level. x only
	// tracks which child branch to resume the sibling search from.
	x := t
	anc := t.parent
	for anc != nil {
		if anc.firstReady != t {
			invariantf("unready: ancestor first-ready does not reference the task being unreadied")
		}
		if repl, idx := firstReadyAmong(anc, x.subTaskIdx+1); repl != nil {
			replaceFirstReadyUpward(anc, repl, idx)
			return
		}
		anc.firstReady = nil
		anc.frChildIdx = -1
		x = anc
		anc = anc.parent
	}
}

// firstReadyAmong scans t's children, in ascending sub-task-index order,
// starting at the first child whose index is >= fromIdx, and returns the
// first one carrying a non-nil first-ready pointer together with that
// child's own index.
func firstReadyAmong(t *Task, fromIdx int) (*Task, int) {
	for c := t.firstChild; c != nil; c = c.nextSibling {
		if c.subTaskIdx < fromIdx {
			continue
		}
		if c.firstReady != nil {
			return c.firstReady, c.subTaskIdx
		}
	}
	return nil, -1
}

// replaceFirstReadyUpward unconditionally installs val as the first-ready
// value of anc and every ancestor above it, reached via viaIdx and then
// each ancestor's own subTaskIdx in turn. Used once unready has found a
// concrete replacement value partway up the tree: every ancestor above
// that point held the stale value through the very same branch and must
// adopt the same replacement, without re-searching siblings.
func replaceFirstReadyUpward(anc *Task, val *Task, viaIdx int) {
	for anc != nil {
		anc.firstReady = val
		anc.frChildIdx = viaIdx
		if anc.parent == nil {
			return
		}
		viaIdx = anc.subTaskIdx
		anc = anc.parent
	}
}

// retire unlinks a fully processed, childless, fully drained task from
// its parent's child list. The drainer only ever retires a task that is
// currently its parent's first child, since drain descends via firstChild
// and only revisits a parent after that child is gone, so unlinking the
// head is always sufficient here.
func retire(t *Task) {
	p := t.parent
	if p == nil {
		return
	}
	if p.firstChild != t {
		invariantf("retire: task being retired is not its parent's first child")
	}
	p.firstChild = t.nextSibling
	if p.lastChild == t {
		p.lastChild = nil
	}
	t.nextSibling = nil
}
