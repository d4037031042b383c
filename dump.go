package ptask

import (
	"fmt"
	"io"

	"github.com/xlab/treeprint"
)

// Dump renders the live task tree to w for diagnostics. It is not part of
// the engine's contract — the shape and wording of its output may change
// freely — and it takes no lock: callers should only use it once a run has
// returned, or accept that it may race a still-running pool.
func (root *Root) Dump(w io.Writer) error {
	pt := treeprint.New()
	pt.SetValue(describeTask(root.root))
	dumpChildren(pt, root.root)
	_, err := io.WriteString(w, pt.String())
	return err
}

func dumpChildren(pt treeprint.Tree, t *Task) {
	for c := t.firstChild; c != nil; c = c.nextSibling {
		branch := pt.AddBranch(describeTask(c))
		dumpChildren(branch, c)
	}
}

func describeTask(t *Task) string {
	state := "pending"
	switch {
	case t.processed:
		state = "processed"
	case t.firstReady == t:
		state = "ready"
	}
	return fmt.Sprintf("#%d %s (%s)", t.SubTaskIndex(), t.id[:8], state)
}
