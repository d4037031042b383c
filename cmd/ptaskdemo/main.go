// Command ptaskdemo walks a directory tree with the ptask engine: every
// directory is one task, every subdirectory a spawned sub-task, and file
// checksums are reported strictly in directory-listing order no matter how
// many workers process the tree. A Bloom filter over the checksums flags
// probable duplicate file contents, confirmed against an exact index before
// being reported.
//
// It stands in for the repository-scanning pipelines the engine is built
// for; the engine itself knows nothing about files.
package main

import (
	"context"
	"crypto/md5"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/npillmayer/schuko/schukonf/testconfig"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/npillmayer/schuko/tracing/trace2go"
	"github.com/xlab/treeprint"

	"github.com/vcscore/ptask"
)

type fileRecord struct {
	path string
	sum  [md5.Size]byte
	size int64
}

// dirBaton is the process baton for one directory task.
type dirBaton struct {
	path string
}

// sink is the output baton shared by every task: it receives []fileRecord
// fragments in drain order and maintains the duplicate index.
type sink struct {
	w       io.Writer
	filter  *bloom.BloomFilter
	byGroup map[[md5.Size]byte][]string
	files   int
	bytes   int64
}

func (s *sink) consume(recs []fileRecord) {
	for _, r := range recs {
		s.files++
		s.bytes += r.size
		fmt.Fprintf(s.w, "%x  %s\n", r.sum, r.path)
		key := r.sum[:]
		if !s.filter.Test(key) {
			// Definitely unseen: no need to consult the exact index.
			s.filter.Add(key)
			s.byGroup[r.sum] = []string{r.path}
			continue
		}
		// Probable re-sight; appending to the exact index settles bloom
		// false positives (a group of one is not a duplicate).
		s.byGroup[r.sum] = append(s.byGroup[r.sum], r.path)
	}
}

// scanDir is the engine's process function. It lists one directory, hashes
// plain files in listing order, and spawns a similar sub-task per
// subdirectory. Files seen since the previous spawn travel as the partial
// output recorded on that spawn, so the drained report interleaves exactly
// like a sequential walk would.
func scanDir(ctx context.Context, output *interface{}, task *ptask.Task, _ interface{},
	baton interface{}, cancel ptask.CancelFunc, cancelBaton interface{},
	_ *ptask.Region, _ *ptask.Region) error {

	if err := ptask.CheckCancel(cancel, cancelBaton); err != nil {
		return err
	}
	dir := baton.(*dirBaton)

	entries, err := os.ReadDir(dir.path)
	if err != nil {
		return err
	}

	var pending []fileRecord
	for _, e := range entries {
		full := filepath.Join(dir.path, e.Name())
		if e.IsDir() {
			var partial interface{}
			if len(pending) > 0 {
				partial = pending
				pending = nil
			}
			region := task.NewProcessRegion()
			task.SpawnSimilar(partial, &dirBaton{path: full}, region)
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		rec, err := hashFile(full)
		if err != nil {
			return err
		}
		pending = append(pending, rec)
	}

	if len(pending) > 0 {
		*output = pending
	}
	return nil
}

func hashFile(path string) (fileRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileRecord{}, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return fileRecord{}, err
	}
	rec := fileRecord{path: path, size: n}
	copy(rec.sum[:], h.Sum(nil))
	return rec, nil
}

func emit(_ context.Context, _ *ptask.Task, out interface{}, baton interface{},
	cancel ptask.CancelFunc, cancelBaton interface{}, _ *ptask.Region, _ *ptask.Region) error {

	if err := ptask.CheckCancel(cancel, cancelBaton); err != nil {
		return err
	}
	baton.(*sink).consume(out.([]fileRecord))
	return nil
}

func cancelOnContext(baton interface{}) error {
	return baton.(context.Context).Err()
}

func reportDuplicates(w io.Writer, s *sink) {
	var dupes [][md5.Size]byte
	for sum, paths := range s.byGroup {
		if len(paths) > 1 {
			dupes = append(dupes, sum)
		}
	}
	sort.Slice(dupes, func(i, j int) bool {
		return s.byGroup[dupes[i]][0] < s.byGroup[dupes[j]][0]
	})

	report := treeprint.New()
	report.SetValue(fmt.Sprintf("%d files, %d bytes, %d duplicate groups", s.files, s.bytes, len(dupes)))
	for _, sum := range dupes {
		group := report.AddBranch(fmt.Sprintf("%x", sum))
		for _, p := range s.byGroup[sum] {
			group.AddNode(p)
		}
	}
	fmt.Fprint(w, report.String())
}

func configureTracing(verbose bool) error {
	tracing.RegisterTraceAdapter("go", gologadapter.GetAdapter(), false)
	conf := &testconfig.Conf{}
	conf.Set("tracing", "go")
	level := "Error"
	if verbose {
		level = "Debug"
	}
	conf.Set("trace.ptask", level)
	if err := trace2go.ConfigureRoot(conf, "trace", trace2go.ReplaceTracers(true)); err != nil {
		return err
	}
	tracing.SetTraceSelector(trace2go.Selector())
	return nil
}

func main() {
	var (
		workers = flag.Int("workers", 1, "Number of parallel workers (<=1 runs serially)")
		verbose = flag.Bool("v", false, "Verbose engine tracing")
	)
	flag.Parse()

	root := "."
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	if err := configureTracing(*verbose); err != nil {
		fmt.Fprintln(os.Stderr, "ptaskdemo:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := &sink{
		w:       os.Stdout,
		filter:  bloom.NewWithEstimates(1_000_000, 0.001),
		byGroup: make(map[[md5.Size]byte][]string),
	}

	longLived := ptask.NewRootRegion()
	scratch := ptask.NewRootRegion()
	defer longLived.Destroy()
	defer scratch.Destroy()

	cfg := ptask.Config{
		Workers:     *workers,
		Cancel:      cancelOnContext,
		CancelBaton: ctx,
	}
	err := ptask.Run(ctx, cfg, scanDir, &dirBaton{path: root}, emit, s, longLived, scratch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ptaskdemo:", err)
		os.Exit(1)
	}
	reportDuplicates(os.Stdout, s)
}
