package ptask

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects output fragments in emission order. It is handed to the
// output functions as their output baton.
type recorder struct {
	mu  sync.Mutex
	got []string
}

func (rec *recorder) add(s string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.got = append(rec.got, s)
}

func (rec *recorder) fragments() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.got...)
}

// collect is the output function used throughout the scenario tests: it
// appends every fragment, which the tests expect to be a string, to the
// recorder passed as the output baton.
func collect(_ context.Context, _ *Task, out interface{}, baton interface{},
	_ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
	baton.(*recorder).add(out.(string))
	return nil
}

// produce returns a process function that writes s as its only output and
// spawns nothing.
func produce(s string) ProcessFunc {
	return func(_ context.Context, output *interface{}, _ *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		*output = s
		return nil
	}
}

func runScenario(t *testing.T, cfg Config, rootProcess ProcessFunc, rec *recorder) error {
	t.Helper()
	longLived := NewRootRegion()
	scratch := NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()
	return Run(context.Background(), cfg, rootProcess, nil, collect, rec, longLived, scratch)
}

// A root that writes "A" and spawns nothing invokes the output callback
// exactly once.
func TestScenarioTrivial(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	rec := &recorder{}
	err := runScenario(t, Config{}, produce("A"), rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, rec.fragments())
}

// A single child with no interleaving drains before its parent's own
// output.
func TestScenarioSingleChild(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	rec := &recorder{}
	root := func(_ context.Context, output *interface{}, task *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		task.Spawn(nil, produce("C"), nil, collect, rec, task.NewProcessRegion())
		*output = "R"
		return nil
	}
	err := runScenario(t, Config{}, root, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "R"}, rec.fragments())
}

// Partial outputs recorded before each spawn are interleaved with the
// children's own outputs, in child order.
func TestScenarioInterleavedFragments(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	rec := &recorder{}
	root := func(_ context.Context, output *interface{}, task *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		task.Spawn("p1", produce("c1"), nil, collect, rec, task.NewProcessRegion())
		task.Spawn("p2", produce("c2"), nil, collect, rec, task.NewProcessRegion())
		*output = "r"
		return nil
	}
	err := runScenario(t, Config{}, root, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "c1", "p2", "c2", "r"}, rec.fragments())
}

// An error in the first child preempts every later emission: nothing from
// the second child and nothing from the root's own output.
func TestScenarioErrorInChild(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	boom := errors.New("child failed")
	fail := func(_ context.Context, _ *interface{}, _ *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		return boom
	}

	rec := &recorder{}
	root := func(_ context.Context, output *interface{}, task *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		task.Spawn(nil, fail, nil, collect, rec, task.NewProcessRegion())
		task.Spawn(nil, produce("c2"), nil, collect, rec, task.NewProcessRegion())
		*output = "r"
		return nil
	}
	err := runScenario(t, Config{}, root, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindProcess, pe.Kind)
	assert.Empty(t, rec.fragments())
}

// The cancel predicate trips while the first child is processed; nothing
// polls it while that child's output drains, so "c1" is still emitted. The
// second child's process function observes it and the run ends with a
// cancellation, without processing further output.
func TestScenarioCancelMidTree(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	var tripped bool
	cancel := func(interface{}) error {
		if tripped {
			return errors.New("cancelled by caller")
		}
		return nil
	}

	rec := &recorder{}
	trip := func(ctx context.Context, output *interface{}, task *Task, tc interface{},
		baton interface{}, c CancelFunc, cb interface{}, res *Region, scr *Region) error {
		tripped = true
		*output = "c1"
		return nil
	}
	checkFirst := func(_ context.Context, output *interface{}, _ *Task, _ interface{},
		_ interface{}, c CancelFunc, cb interface{}, _ *Region, _ *Region) error {
		if err := CheckCancel(c, cb); err != nil {
			return err
		}
		*output = "c2"
		return nil
	}

	root := func(_ context.Context, output *interface{}, task *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		task.Spawn(nil, trip, nil, collect, rec, task.NewProcessRegion())
		task.Spawn(nil, checkFirst, nil, collect, rec, task.NewProcessRegion())
		*output = "r"
		return nil
	}
	err := runScenario(t, Config{Cancel: cancel}, root, rec)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, []string{"c1"}, rec.fragments(), "emissions before the trip are permitted, none after")
}

// An output callback may spawn further children; the drainer handles them
// before retiring the task whose output triggered the spawn.
func TestScenarioOutputCallbackSpawns(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	rec := &recorder{}
	var spawned bool
	out := func(ctx context.Context, task *Task, out interface{}, baton interface{},
		c CancelFunc, cb interface{}, res *Region, scr *Region) error {
		baton.(*recorder).add(out.(string))
		if out == "r" && !spawned {
			spawned = true
			task.Spawn(nil, produce("c3"), nil, collect, rec, task.NewProcessRegion())
		}
		return nil
	}

	longLived := NewRootRegion()
	scratch := NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()
	err := Run(context.Background(), Config{}, produce("r"), nil, out, rec, longLived, scratch)
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "c3"}, rec.fragments())
}

// An error from an output function surfaces immediately as KindOutput.
func TestOutputErrorSurfaces(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	boom := errors.New("sink full")
	out := func(_ context.Context, _ *Task, _ interface{}, _ interface{},
		_ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		return boom
	}
	longLived := NewRootRegion()
	scratch := NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()
	err := Run(context.Background(), Config{}, produce("A"), nil, out, nil, longLived, scratch)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindOutput, pe.Kind)
	assert.ErrorIs(t, err, boom)
}

// A process function recording both a primary output and an error has the
// error propagated and the output dropped.
func TestErrorWinsOverOutput(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	boom := errors.New("half done")
	both := func(_ context.Context, output *interface{}, _ *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		*output = "half"
		return boom
	}
	rec := &recorder{}
	err := runScenario(t, Config{}, both, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.fragments())
}

// A task that produces no output, no error, and no partial fragments
// never keeps a results record alive.
func TestNoResultsRecordWithoutResults(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	var captured *Task
	quiet := func(_ context.Context, output *interface{}, task *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		captured = task
		*output = nil
		return nil
	}
	rec := &recorder{}
	require.NoError(t, runScenario(t, Config{}, quiet, rec))
	assert.Empty(t, rec.fragments())
	assert.Nil(t, captured.results, "an all-empty results record must be dropped, not retained")
}

// Every region Run creates under the caller's scratch region is destroyed
// by the time Run returns, on success and on error alike.
func TestRunReleasesAllRegions(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	longLived := NewRootRegion()
	scratch := NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()

	require.NoError(t, Run(context.Background(), Config{}, produce("A"), nil, collect, &recorder{}, longLived, scratch))
	assert.Empty(t, scratch.children, "success path leaks regions under scratch")

	boom := errors.New("boom")
	fail := func(_ context.Context, _ *interface{}, _ *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		return boom
	}
	require.Error(t, Run(context.Background(), Config{}, fail, nil, collect, &recorder{}, longLived, scratch))
	assert.Empty(t, scratch.children, "error path leaks regions under scratch")
}

// A nil output function drops the primary output but still propagates any
// stored error.
func TestNilOutputFunctionDropsOutputKeepsError(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	longLived := NewRootRegion()
	scratch := NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()

	require.NoError(t, Run(context.Background(), Config{}, produce("dropped"), nil, nil, nil, longLived, scratch))

	boom := errors.New("still surfaces")
	both := func(_ context.Context, output *interface{}, _ *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		*output = "dropped"
		return boom
	}
	err := Run(context.Background(), Config{}, both, nil, nil, nil, longLived, scratch)
	assert.ErrorIs(t, err, boom)
}

// The thread-context constructor runs once before the root task in serial
// mode, and its value is handed to every process function.
func TestThreadContextConstruction(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	built := 0
	cfg := Config{
		NewThreadContext: func(_ context.Context, out *interface{}, baton interface{},
			_ *Region, _ *Region) error {
			built++
			*out = baton
			return nil
		},
		ThreadCtxBaton: "per-worker",
	}
	var seen interface{}
	proc := func(_ context.Context, output *interface{}, _ *Task, tc interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		seen = tc
		*output = "A"
		return nil
	}
	rec := &recorder{}
	require.NoError(t, runScenario(t, cfg, proc, rec))
	assert.Equal(t, 1, built)
	assert.Equal(t, "per-worker", seen)
}

// A failing thread-context constructor aborts the run before any task is
// processed.
func TestThreadContextConstructorError(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ptask")
	defer teardown()

	boom := errors.New("no context")
	cfg := Config{
		NewThreadContext: func(_ context.Context, _ *interface{}, _ interface{},
			_ *Region, _ *Region) error {
			return boom
		},
	}
	ran := false
	proc := func(_ context.Context, output *interface{}, _ *Task, _ interface{},
		_ interface{}, _ CancelFunc, _ interface{}, _ *Region, _ *Region) error {
		ran = true
		return nil
	}
	err := runScenario(t, cfg, proc, &recorder{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}
