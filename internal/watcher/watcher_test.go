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

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func start(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return cancel
}

func TestWatcher_existingFilesAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("refunds"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{1, 2}, 0600))

	rec := &recorder{}
	start(t, New(dir, rec.handle, WithExtensions(".txt"), WithDebounce(20*time.Millisecond)))

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{filepath.Join(dir, "faq.txt")}, rec.seen())
}

func TestWatcher_debouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, New(dir, rec.handle, WithDebounce(150*time.Millisecond)))
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "notes.md")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("draft"), 0600))
		time.Sleep(20 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return len(rec.seen()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []string{path}, rec.seen())
}

func TestWatcher_recursiveNewDirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, New(dir, rec.handle, WithRecursive(true), WithDebounce(20*time.Millisecond)))
	time.Sleep(50 * time.Millisecond)

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(sub, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("q3"), 0600))

	assert.Eventually(t, func() bool {
		for _, p := range rec.seen() {
			if p == path {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_createsMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox")
	start(t, New(root, (&recorder{}).handle))
	assert.Eventually(t, func() bool {
		info, err := os.Stat(root)
		return err == nil && info.IsDir()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_removedBeforeSettling(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, New(dir, rec.handle, WithDebounce(300*time.Millisecond)))
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "tmp.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))
	time.Sleep(500 * time.Millisecond)
	assert.Empty(t, rec.seen())
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}
