package ptask

import "sync"

// Region is a hierarchical allocator whose descendants are freed together.
// It owns no memory directly (the garbage collector owns that); it gives
// process functions and the engine a single scoped lifetime handle to
// attach cleanup to, in the manner of a child-tracking memory pool.
//
// The engine's three lifetime classes (task region, process region,
// results region) are each represented by a Region tree rooted at the
// scratch region passed into Run.
type Region struct {
	mu       sync.Mutex
	parent   *Region
	children map[*Region]struct{}
	cleanups []func()
	dead     bool
}

// NewRootRegion creates a region with no parent, such as the long-lived
// and scratch regions a caller passes to Run. Run itself creates its
// task/process/results regions with NewChild on the caller's scratch
// region.
func NewRootRegion() *Region {
	return &Region{children: make(map[*Region]struct{})}
}

// NewChild creates a child region of r. Destroying r recursively destroys
// every child region, however deep. Calling NewChild on a destroyed region
// returns a region that is already dead — a defensive no-op rather than a
// panic, since process functions are not expected to track region liveness
// themselves.
func (r *Region) NewChild() *Region {
	child := &Region{parent: r, children: make(map[*Region]struct{})}
	if r == nil {
		return child
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		child.dead = true
		return child
	}
	r.children[child] = struct{}{}
	return child
}

// OnDestroy registers a cleanup function to run when r (or an ancestor) is
// destroyed. Cleanups run in LIFO order, most-recently-registered first.
func (r *Region) OnDestroy(f func()) {
	if r == nil || f == nil {
		return
	}
	r.mu.Lock()
	if r.dead {
		r.mu.Unlock()
		f()
		return
	}
	r.cleanups = append(r.cleanups, f)
	r.mu.Unlock()
}

// Destroy recursively destroys r and all of its descendant regions,
// running registered cleanups along the way. Destroy is idempotent:
// destroying an already-destroyed region, or a nil region, is a no-op.
func (r *Region) Destroy() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.dead {
		r.mu.Unlock()
		return
	}
	r.dead = true
	children := r.children
	r.children = nil
	cleanups := r.cleanups
	r.cleanups = nil
	parent := r.parent
	r.mu.Unlock()

	for child := range children {
		child.Destroy()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	if parent != nil {
		parent.mu.Lock()
		delete(parent.children, r)
		parent.mu.Unlock()
	}
}

// Clear destroys r's subtree and its cleanups, but leaves r itself alive
// and usable for further allocation, equivalent to destroy-then-recreate.
func (r *Region) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	children := r.children
	r.children = make(map[*Region]struct{})
	cleanups := r.cleanups
	r.cleanups = nil
	r.mu.Unlock()

	for child := range children {
		child.Destroy()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// Dead reports whether r has already been destroyed.
func (r *Region) Dead() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dead
}
