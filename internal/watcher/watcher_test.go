package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.NotNil(t, watcher.logger)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	dir := t.TempDir()
	assert.NoError(t, watcher.AddPath(dir))
	assert.Error(t, watcher.AddPath(filepath.Join(dir, "missing")))

	file := filepath.Join(dir, "index.tsx")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, watcher.AddPath(file), "files are not watch roots")
}

func TestFileWatcherAddRecursive(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	root := t.TempDir()
	for _, dir := range []string{"routes/blog", "routes/(_islands)", "routes/node_modules/pkg", "routes/.git"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	require.NoError(t, watcher.AddRecursive(filepath.Join(root, "routes")))
	assert.NoError(t, watcher.AddRecursive(filepath.Join(root, "islands")), "missing roots are skipped")

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "routes"),
		filepath.Join(root, "routes", "(_islands)"),
		filepath.Join(root, "routes", "blog"),
	}, watcher.WatchList())
}

// collect starts w and returns a function that waits for the first batch
// whose events satisfy match.
func collect(t *testing.T, w *FileWatcher) func(match func([]ChangeEvent) bool) []ChangeEvent {
	t.Helper()

	var mu sync.Mutex
	var batches [][]ChangeEvent
	w.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		batches = append(batches, events)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))

	return func(match func([]ChangeEvent) bool) []ChangeEvent {
		var found []ChangeEvent
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, b := range batches {
				if match(b) {
					found = b
					return true
				}
			}
			return false
		}, 3*time.Second, 20*time.Millisecond)
		return found
	}
}

func hasPath(path string) func([]ChangeEvent) bool {
	return func(events []ChangeEvent) bool {
		for _, e := range events {
			if e.Path == path {
				return true
			}
		}
		return false
	}
}

func TestFileWatcherFiltersAndDebounces(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	dir := t.TempDir()
	require.NoError(t, watcher.AddPath(dir))
	watcher.AddFilter(SourceFilter)
	watcher.AddFilter(NoTestFilter)

	wait := collect(t, watcher)

	ignored := []string{"notes.md", "index.test.tsx"}
	for _, name := range ignored {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	page := filepath.Join(dir, "index.tsx")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(page, []byte{byte(i)}, 0o644))
	}

	batch := wait(hasPath(page))
	count := 0
	for _, e := range batch {
		assert.NotContains(t, ignored, filepath.Base(e.Path))
		if e.Path == page {
			count++
		}
	}
	assert.Equal(t, 1, count, "events for one path are deduplicated")
}

func TestFileWatcherNewDirectory(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	dir := t.TempDir()
	require.NoError(t, watcher.AddPath(dir))
	watcher.AddFilter(SourceFilter)

	wait := collect(t, watcher)

	sub := filepath.Join(dir, "blog")
	require.NoError(t, os.Mkdir(sub, 0o755))
	wait(hasPath(sub))

	require.Eventually(t, func() bool {
		for _, p := range watcher.WatchList() {
			if p == sub {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	post := filepath.Join(sub, "[slug].tsx")
	require.NoError(t, os.WriteFile(post, []byte("x"), 0o644))
	wait(hasPath(post))
}

func TestFileWatcherStopIsIdempotent(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestDebouncerFlush(t *testing.T) {
	d := &Debouncer{
		delay:  time.Hour,
		output: make(chan []ChangeEvent, 1),
	}

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "b.tsx"})
	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "a.tsx"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "b.tsx"})
	d.timer.Stop()
	d.flush()

	events := <-d.output
	require.Len(t, events, 2)
	assert.Equal(t, "a.tsx", events[0].Path)
	assert.Equal(t, "b.tsx", events[1].Path)
	assert.Equal(t, EventTypeModified, events[1].Type, "latest event wins")

	d.flush()
	assert.Empty(t, d.output, "empty flush sends nothing")
}

func TestDebouncerRetriesWhenOutputFull(t *testing.T) {
	d := &Debouncer{
		delay:  10 * time.Millisecond,
		output: make(chan []ChangeEvent, 1),
	}
	d.output <- []ChangeEvent{{Type: EventTypeModified, Path: "old.tsx"}}

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "b.tsx"})
	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "a.tsx"})

	require.Eventually(t, func() bool {
		d.mutex.Lock()
		defer d.mutex.Unlock()
		return len(d.pending) == 2
	}, time.Second, 5*time.Millisecond)

	first := <-d.output
	assert.Equal(t, "old.tsx", first[0].Path)

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.tsx", events[0].Path)
		assert.Equal(t, "b.tsx", events[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("batch was dropped while output was full")
	}
}

func TestDebouncerStoppedDoesNotFlush(t *testing.T) {
	d := &Debouncer{
		delay:  time.Hour,
		output: make(chan []ChangeEvent, 1),
	}
	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "a.tsx"})
	d.timer.Stop()

	d.mutex.Lock()
	d.stopped = true
	d.mutex.Unlock()

	d.flush()
	assert.Empty(t, d.output)
}

func TestSourceFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"routes/index.tsx", true},
		{"routes/api/joke.ts", true},
		{"islands/Counter.jsx", true},
		{"islands/legacy.js", true},
		{"static/styles.css", false},
		{"README.md", false},
		{"routes", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, SourceFilter(tc.path))
		})
	}
}

func TestNoTestFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"routes/index.tsx", true},
		{"routes/index.test.tsx", false},
		{"islands/Counter.test.ts", false},
		{"islands/Counter.tsx", true},
		{"routes/my-page.test.tsx", false},
		{"routes/index_test.ts", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoTestFilter(tc.path))
		})
	}
}

func TestNoGitFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"routes/index.tsx", true},
		{".git/config", false},
		{"routes/.git/HEAD", false},
		{"routes/.github/x.ts", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoGitFilter(tc.path))
		})
	}
}

func TestNoNodeModulesFilter(t *testing.T) {
	assert.True(t, NoNodeModulesFilter("islands/Counter.tsx"))
	assert.False(t, NoNodeModulesFilter("node_modules/preact/index.js"))
	assert.False(t, NoNodeModulesFilter("routes/node_modules/x.ts"))
}
