package watch

import (
	"sort"
	"sync"
	"time"
)

// DebounceQueue coalesces repeated marks on the same path. A path
// becomes due once a quiet window has passed since its last mark, so a
// burst of writes to one file drains as a single entry.
type DebounceQueue struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewDebounceQueue creates an empty queue.
func NewDebounceQueue() *DebounceQueue {
	return &DebounceQueue{last: make(map[string]time.Time)}
}

// Mark records activity on a path, resetting its quiet window.
func (q *DebounceQueue) Mark(path string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.last[path] = now
}

// DrainDue removes and returns the paths whose last mark is at least
// window old, sorted for deterministic processing order.
func (q *DebounceQueue) DrainDue(now time.Time, window time.Duration) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []string
	for path, marked := range q.last {
		if now.Sub(marked) >= window {
			due = append(due, path)
			delete(q.last, path)
		}
	}
	sort.Strings(due)
	return due
}

// Len returns the number of paths still waiting out their window.
func (q *DebounceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.last)
}
