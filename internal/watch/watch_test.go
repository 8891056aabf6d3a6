package watch

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cortex/internal/extract"
	"cortex/internal/logging"
)

func TestDebounceQueueBurstCoalesces(t *testing.T) {
	q := NewDebounceQueue()
	base := time.Now()

	q.Mark("a.go", base)
	q.Mark("a.go", base.Add(100*time.Millisecond))
	q.Mark("a.go", base.Add(200*time.Millisecond))

	// Still inside the quiet window of the last mark.
	if due := q.DrainDue(base.Add(400*time.Millisecond), 500*time.Millisecond); len(due) != 0 {
		t.Fatalf("drained %v before window elapsed", due)
	}

	due := q.DrainDue(base.Add(800*time.Millisecond), 500*time.Millisecond)
	if !reflect.DeepEqual(due, []string{"a.go"}) {
		t.Fatalf("due = %v, want [a.go]", due)
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after drain: %d", q.Len())
	}
}

func TestDebounceQueuePathsIndependent(t *testing.T) {
	q := NewDebounceQueue()
	base := time.Now()

	q.Mark("a.go", base)
	q.Mark("b.go", base.Add(400*time.Millisecond))

	due := q.DrainDue(base.Add(500*time.Millisecond), 500*time.Millisecond)
	if !reflect.DeepEqual(due, []string{"a.go"}) {
		t.Fatalf("due = %v, want only a.go", due)
	}
	if q.Len() != 1 {
		t.Errorf("b.go should still be pending")
	}
}

func TestDebounceQueueSortedOutput(t *testing.T) {
	q := NewDebounceQueue()
	base := time.Now()

	for _, p := range []string{"z.go", "a.go", "m/x.go", "b.py"} {
		q.Mark(p, base)
	}

	due := q.DrainDue(base.Add(time.Second), 500*time.Millisecond)
	want := []string{"a.go", "b.py", "m/x.go", "z.go"}
	if !reflect.DeepEqual(due, want) {
		t.Fatalf("due = %v, want %v", due, want)
	}
}

func newTestWatcher(t *testing.T, root string, handler Handler) *Watcher {
	t.Helper()
	ignore := []string{".git/**", ".cortex/**", "node_modules/**", "*.tmp"}
	w, err := New(root, 500, 1<<20, ignore, extract.DefaultLanguages(), logging.Nop(), handler)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestIgnored(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), nil)

	cases := []struct {
		rel  string
		want bool
	}{
		{".git/config", true},
		{".cortex/meta.sqlite", true},
		{"node_modules/pkg/index.js", true},
		{"build.tmp", true},
		{"internal/server/server.go", false},
		{"src/app.ts", false},
	}
	for _, tc := range cases {
		if got := w.Ignored(tc.rel); got != tc.want {
			t.Errorf("Ignored(%q) = %v, want %v", tc.rel, got, tc.want)
		}
	}
}

func TestSeedMarksEligibleFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("main.go", "package main\n")
	mustWrite("lib/util.py", "def f():\n    pass\n")
	mustWrite("README.md", "# readme\n")
	mustWrite(".cortex/config.toml", "version = 1\n")

	w := newTestWatcher(t, root, nil)
	now := time.Now()
	if err := w.Seed(now); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	due := w.changes.DrainDue(now, w.debounce)
	want := []string{"lib/util.py", "main.go"}
	if !reflect.DeepEqual(due, want) {
		t.Fatalf("seeded = %v, want %v", due, want)
	}
}

func TestDrainSplitsChangedAndRemoved(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "kept.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotChanged, gotRemoved []string
	w := newTestWatcher(t, root, func(changed, removed []string) {
		gotChanged = changed
		gotRemoved = removed
	})

	now := time.Now()
	w.changes.Mark("kept.go", now.Add(-time.Second))
	w.changes.Mark("gone.go", now.Add(-time.Second))
	w.removes.Mark("deleted.go", now.Add(-time.Second))

	w.drain(now)

	if !reflect.DeepEqual(gotChanged, []string{"kept.go"}) {
		t.Errorf("changed = %v, want [kept.go]", gotChanged)
	}
	// gone.go was marked changed but no longer exists on disk.
	if !reflect.DeepEqual(gotRemoved, []string{"deleted.go", "gone.go"}) {
		t.Errorf("removed = %v, want [deleted.go gone.go]", gotRemoved)
	}
}

func TestDrainRecreateWinsOverRemove(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotChanged, gotRemoved []string
	called := false
	w := newTestWatcher(t, root, func(changed, removed []string) {
		called = true
		gotChanged = changed
		gotRemoved = removed
	})

	now := time.Now()
	w.removes.Mark("a.go", now.Add(-time.Second))
	w.changes.Mark("a.go", now.Add(-time.Second))

	w.drain(now)

	if !called {
		t.Fatal("handler not called")
	}
	if !reflect.DeepEqual(gotChanged, []string{"a.go"}) {
		t.Errorf("changed = %v, want [a.go]", gotChanged)
	}
	if len(gotRemoved) != 0 {
		t.Errorf("removed = %v, want empty", gotRemoved)
	}
}

func TestDrainEmptyDoesNotCallHandler(t *testing.T) {
	called := false
	w := newTestWatcher(t, t.TempDir(), func(changed, removed []string) { called = true })

	w.drain(time.Now())
	if called {
		t.Error("handler called with no pending work")
	}
}

func TestSeedSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, 200)
	for i := range big {
		big[i] = 'x'
	}
	if err := os.WriteFile(filepath.Join(root, "big.go"), big, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "small.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, 500, 64, nil, extract.DefaultLanguages(), logging.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	now := time.Now()
	if err := w.Seed(now); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	due := w.changes.DrainDue(now, w.debounce)
	if !reflect.DeepEqual(due, []string{"small.go"}) {
		t.Fatalf("seeded = %v, want only small.go", due)
	}
}

func TestOversizedCeilingDisabledByZero(t *testing.T) {
	w, err := New(t.TempDir(), 500, 0, nil, extract.DefaultLanguages(), logging.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	if w.oversized("huge.go", 1<<40) {
		t.Error("zero ceiling must not skip any file")
	}
}
