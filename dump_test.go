package ptask

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDumpRendersLiveTree(t *testing.T) {
	r := newTestRoot()
	root := r.root
	c0 := spawnChild(root)
	spawnChild(root)
	spawnChild(c0)

	var sb strings.Builder
	assert.NoError(t, r.Dump(&sb))
	out := sb.String()

	assert.Contains(t, out, "#-1", "root task is labelled with its sentinel index")
	assert.Contains(t, out, "#0")
	assert.Contains(t, out, "#1")
	assert.Equal(t, 4, strings.Count(out, "#"), "one line per live task")
}
