package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onewhl/kute/internal/logging"
	"github.com/onewhl/kute/internal/mapper"
	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

func TestParseProject(t *testing.T) {
	tests := []struct {
		url    string
		author string
		name   string
		ok     bool
	}{
		{"https://github.com/apache/commons-lang", "apache", "commons-lang", true},
		{"https://github.com/apache/commons-lang.git", "apache", "commons-lang", true},
		{"https://github.com/apache/commons-lang/", "apache", "commons-lang", true},
		{"https://gitlab.com/group/sub/repo.git", "sub", "repo", true},
		{"https://example.com/repo", "", "repo", true},
		{"https://github.com/", "", "", false},
		{"https://github.com/x/.git", "", "", false},
		{"https://github.com/..", "", "", false},
		{"https://github.com/acme/..", "", "", false},
		{"https://github.com/../widgets", "", "", false},
		{"https://github.com/./widgets", "", "", false},
		{"https://github.com/acme/%2e%2e", "", "", false},
		{"https://github.com/acme/a%5Cb", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			author, name, err := ParseProject(tt.url)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidLocator)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.author, author)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestSubmitKeepsClonesInsideStorage(t *testing.T) {
	work := t.TempDir()
	storage := filepath.Join(work, "repos")
	require.NoError(t, os.MkdirAll(storage, 0755))
	keep := filepath.Join(work, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0644))

	fetcher := &fakeFetcher{t: t}
	methods, err := mapper.NewMethodMapper("")
	require.NoError(t, err)
	exec := NewExecutor(1, 1)
	scanner := NewScanner(exec, fetcher, methods, Options{Storage: storage, Cleanup: true}, logging.Discard(), nil)

	for _, loc := range []Locator{
		{Raw: "https://example.com/..", Remote: true, Name: ".."},
		{Raw: "https://example.com/../work", Remote: true, Author: "..", Name: "work"},
	} {
		_, err := scanner.Submit(context.Background(), loc).Wait()
		assert.ErrorIs(t, err, ErrInvalidLocator, loc.Raw)
	}
	exec.Wait()

	assert.Empty(t, fetcher.fetched)
	assert.FileExists(t, keep)
}

func TestParseLocator(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	loc, err := ParseLocator("  https://github.com/acme/widgets.git ")
	require.NoError(t, err)
	assert.True(t, loc.Remote)
	assert.Equal(t, "acme/widgets", loc.Task())
	assert.Equal(t, "https://github.com/acme/widgets.git", loc.Raw)

	loc, err = ParseLocator(dir)
	require.NoError(t, err)
	assert.False(t, loc.Remote)
	assert.Equal(t, filepath.Base(dir), loc.Task())
	assert.Equal(t, dir, loc.Dir)

	_, err = ParseLocator(file)
	assert.ErrorIs(t, err, ErrNotDirectory)
	_, err = ParseLocator(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNotDirectory)
	_, err = ParseLocator("https://github.com/")
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue[int]()
	go func() {
		for i := 0; i < 100; i++ {
			q.Push(i)
		}
		q.Close()
	}()
	var got []int
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestExecutorBoundsCPU(t *testing.T) {
	exec := NewExecutor(1, 2)
	var running, peak atomic.Int32
	for i := 0; i < 10; i++ {
		exec.CPU(context.Background(), func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}, func(error) {})
	}
	exec.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestExecutorUnbounded(t *testing.T) {
	exec := NewExecutor(0, 0)
	const n = 5
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})
	for i := 0; i < n; i++ {
		exec.IO(context.Background(), func() {
			started.Done()
			<-release
		}, func(error) {})
	}

	all := make(chan struct{})
	go func() {
		started.Wait()
		close(all)
	}()
	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run concurrently")
	}
	close(release)
	exec.Wait()
}

func TestExecutorSinkOrder(t *testing.T) {
	exec := NewExecutor(1, 1)
	var got []int
	for i := 0; i < 50; i++ {
		exec.Sink(func() { got = append(got, i) })
	}
	exec.Wait()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

// writeProject lays out a single-module project with one production class
// and one JUnit 5 test class, both named after name.
func writeProject(t *testing.T, dir, name string) {
	t.Helper()
	class := strings.ToUpper(name[:1]) + name[1:]
	files := map[string]string{
		"src/main/java/io/test/" + class + ".java": fmt.Sprintf(`package io.test;

public class %[1]s {
    public int run(int a) { return a; }
}
`, class),
		"src/test/java/io/test/" + class + "Test.java": fmt.Sprintf(`package io.test;

import org.junit.jupiter.api.Test;

class %[1]sTest {
    @Test
    void testRun() {
        new %[1]s().run(1);
    }

    @Test
    void testAgain() {
        new %[1]s().run(2);
    }
}
`, class),
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// fakeFetcher writes a project instead of cloning. Fetches sleep for a random
// time so projects finish out of order; URLs listed in fail return an error
// after leaving a partial checkout behind.
type fakeFetcher struct {
	t    *testing.T
	fail map[string]bool

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string, progress io.Writer) (string, error) {
	time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	fmt.Fprintf(progress, "Counting objects: 100%%\n")

	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	require.NoError(f.t, os.MkdirAll(dest, 0755))
	if f.fail[url] {
		require.NoError(f.t, os.WriteFile(filepath.Join(dest, "partial"), nil, 0644))
		return "", errors.New("connection reset")
	}
	writeProject(f.t, dest, filepath.Base(dest))
	return "cafebabe", nil
}

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]*model.TestMethodInfo
}

func (w *recordingWriter) WriteTestMethods(methods []*model.TestMethodInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, methods)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) projects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, b := range w.batches {
		out = append(out, b[0].Class.Project.Name)
	}
	return out
}

func newTestRunner(t *testing.T, fetcher *fakeFetcher, storage string, cleanup bool, w *recordingWriter) *Runner {
	t.Helper()
	methods, err := mapper.NewMethodMapper(mapper.StrategyLastCall)
	require.NoError(t, err)
	exec := NewExecutor(4, 4)
	scanner := NewScanner(exec, fetcher, methods, Options{
		Storage:    storage,
		Cleanup:    cleanup,
		PathFilter: true,
	}, logging.Discard(), nil)
	return NewRunner(scanner, w, logging.Discard())
}

func TestRunnerPreservesInputOrder(t *testing.T) {
	const n = 8
	var lines, want []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("p%d", i)
		lines = append(lines, "https://example.com/org/"+name+".git")
		want = append(want, name)
	}

	storage := t.TempDir()
	w := &recordingWriter{}
	runner := newTestRunner(t, &fakeFetcher{t: t}, storage, true, w)
	sum, err := runner.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)

	assert.Equal(t, want, w.projects())
	assert.Equal(t, Summary{Submitted: n, Succeeded: n, Written: 2 * n}, sum)

	first := w.batches[0]
	require.Len(t, first, 2)
	assert.Equal(t, "testRun", first[0].Name)
	assert.Equal(t, "testAgain", first[1].Name)
	require.NotNil(t, first[0].SourceMethod)
	assert.Equal(t, "run", first[0].SourceMethod.Name)
	assert.Equal(t, "P0", first[0].Class.SourceClass.Name)
	assert.Equal(t, "cafebabe", first[0].Class.Project.Revision)
	assert.Equal(t, "https://example.com/org/p0.git", first[0].Class.Project.Path)

	entries, err := os.ReadDir(filepath.Join(storage, "org"))
	require.NoError(t, err)
	assert.Empty(t, entries, "working copies are removed after processing")
}

func TestRunnerPartialFailure(t *testing.T) {
	lines := []string{
		"https://example.com/org/a0",
		"# comment",
		"",
		"https://example.com/org/a1",
		"https://example.com/org/a2",
		"not-a-directory-" + t.Name(),
		"https://example.com/org/a3",
	}
	storage := t.TempDir()
	fetcher := &fakeFetcher{t: t, fail: map[string]bool{"https://example.com/org/a1": true}}
	w := &recordingWriter{}
	runner := newTestRunner(t, fetcher, storage, false, w)

	sum, err := runner.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "a2", "a3"}, w.projects())
	assert.Equal(t, Summary{Submitted: 4, Skipped: 1, Succeeded: 3, Failed: 1, Written: 6}, sum)
	assert.Len(t, fetcher.fetched, 4)

	assert.NoDirExists(t, filepath.Join(storage, "org", "a1"), "partial clone is removed")
	assert.DirExists(t, filepath.Join(storage, "org", "a0"), "kept without cleanup")
}

func TestRunnerLocalProject(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "local")
	writeProject(t, dir, "local")

	w := &recordingWriter{}
	runner := newTestRunner(t, &fakeFetcher{t: t}, t.TempDir(), true, w)
	sum, err := runner.Run(context.Background(), strings.NewReader(dir+"\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)

	require.Len(t, w.batches, 1)
	project := w.batches[0][0].Class.Project
	assert.Equal(t, "local", project.Name)
	assert.Equal(t, model.BuildOther, project.BuildSystem)
	assert.Len(t, project.Revision, 64, "digest of the sources")
	assert.DirExists(t, dir, "local projects are never removed")
}

type failingWriter struct{}

func (failingWriter) WriteTestMethods([]*model.TestMethodInfo) error { return errors.New("disk full") }
func (failingWriter) Close() error { return nil }

func TestRunnerReportsWriteErrors(t *testing.T) {
	methods, err := mapper.NewMethodMapper("")
	require.NoError(t, err)
	scanner := NewScanner(NewExecutor(1, 1), &fakeFetcher{t: t}, methods, Options{Storage: t.TempDir()}, logging.Discard(), nil)
	runner := NewRunner(scanner, failingWriter{}, logging.Discard())

	sum, err := runner.Run(context.Background(), strings.NewReader("https://example.com/org/w0\n"))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, sum.Succeeded)
	assert.Zero(t, sum.Written)
}

func TestProcessSplitsNestedModules(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "settings.gradle"), []byte(`include 'app', 'app:sub'`), 0644))
	writeProject(t, filepath.Join(root, "app"), "outer")
	writeProject(t, filepath.Join(root, "app", "sub"), "inner")

	methods, err := mapper.NewMethodMapper("")
	require.NoError(t, err)
	scanner := NewScanner(NewExecutor(1, 1), nil, methods, Options{PathFilter: true}, logging.Discard(), nil)
	recs, err := scanner.Process(context.Background(), Locator{Raw: root, Name: "nested", Dir: root}, root, "rev", nil)
	require.NoError(t, err)

	byModule := map[string][]string{}
	for _, r := range recs {
		byModule[r.Class.Module.Name] = append(byModule[r.Class.Module.Name], r.Class.Name)
	}
	assert.Equal(t, map[string][]string{
		"app":     {"OuterTest", "OuterTest"},
		"app/sub": {"InnerTest", "InnerTest"},
	}, byModule)
}

// countingFrontEnd records the peak number of concurrent ParseClasses calls.
type countingFrontEnd struct {
	parse.FrontEnd
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (c countingFrontEnd) ParseClasses(ctx context.Context, path string, content []byte) ([]parse.ClassMeta, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return c.FrontEnd.ParseClasses(ctx, path, content)
}

func TestBoundedCPUPoolBoundsParsing(t *testing.T) {
	var dirs []string
	for _, project := range []string{"left", "right"} {
		dir := filepath.Join(t.TempDir(), project)
		for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
			writeProject(t, dir, name)
		}
		dirs = append(dirs, dir)
	}

	methods, err := mapper.NewMethodMapper("")
	require.NoError(t, err)
	exec := NewExecutor(1, 1)
	scanner := NewScanner(exec, nil, methods, Options{}, logging.Discard(), nil)
	var inFlight, peak atomic.Int32
	scanner.frontEnd = func(lang model.Lang) parse.FrontEnd {
		return countingFrontEnd{FrontEnd: parse.For(lang), inFlight: &inFlight, peak: &peak}
	}

	var written atomic.Int32
	for _, dir := range dirs {
		exec.CPU(context.Background(), func() {
			recs, err := scanner.Process(context.Background(), Locator{Raw: dir, Name: filepath.Base(dir), Dir: dir}, dir, "rev", nil)
			assert.NoError(t, err)
			written.Add(int32(len(recs)))
		}, func(err error) { t.Error(err) })
	}
	exec.Wait()

	assert.Equal(t, int32(16), written.Load())
	assert.Equal(t, int32(1), peak.Load())
}

func TestParseWorkers(t *testing.T) {
	tests := []struct {
		name    string
		cpu     int
		workers int
		want    int
	}{
		{"bounded pool", 2, 0, 1},
		{"unbounded pool", 0, 0, 0},
		{"explicit", 2, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner(NewExecutor(1, tt.cpu), nil, nil, Options{ParseWorkers: tt.workers}, logging.Discard(), nil)
			assert.Equal(t, tt.want, s.parseWorkers())
		})
	}
}
