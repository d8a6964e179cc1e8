package model

import (
	"sync"
	"time"
)

// ItemKind says how a manifest entry is analyzed
type ItemKind string

const (
	KindText ItemKind = "text" // Raw text, classified as-is
	KindURL  ItemKind = "url"  // Reference, extracted before classification
)

// ItemStatus is the lifecycle state of a batch item
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// IsTerminal reports whether no further transition can leave this status
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RunState is the lifecycle state of a whole run
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunFinished  RunState = "finished"
	RunCancelled RunState = "cancelled"
)

// BatchItem is one manifest entry and its outcome
type BatchItem struct {
	Input        string     `json:"input"`
	Kind         ItemKind   `json:"kind"`
	Status       ItemStatus `json:"status"`
	Result       *Verdict   `json:"result,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	SourceTitle  string     `json:"source_title,omitempty"` // URL items only
	Warning      string     `json:"warning,omitempty"`      // Non-fatal, e.g. persistence failure
}

// BatchRun holds the ordered items of one run together with its progress.
//
// Only the orchestrator mutates a run. Other goroutines (HTTP handlers,
// observers) read it through Snapshot, Items and the counters, which take
// the read lock and hand out copies.
type BatchRun struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time

	mu       sync.RWMutex
	items    []BatchItem
	progress int
	state    RunState
}

// NewBatchRun creates an idle run over items. Total is fixed here.
func NewBatchRun(id, ownerID string, items []BatchItem) *BatchRun {
	owned := make([]BatchItem, len(items))
	copy(owned, items)
	return &BatchRun{
		ID:        id,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
		items:     owned,
		state:     RunIdle,
	}
}

// Total returns the number of items in the run
func (r *BatchRun) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Progress returns how many items have been fully processed
func (r *BatchRun) Progress() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// State returns the run state
func (r *BatchRun) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Item returns a copy of the item at index i
func (r *BatchRun) Item(i int) BatchItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[i]
}

// Items returns a copy of all items in manifest order
func (r *BatchRun) Items() []BatchItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BatchItem, len(r.items))
	copy(out, r.items)
	return out
}

// SetState moves the run to state
func (r *BatchRun) SetState(state RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// UpdateItem applies fn to the item at index i under the write lock
func (r *BatchRun) UpdateItem(i int, fn func(item *BatchItem)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.items[i])
}

// Advance increments the progress counter and returns the new value.
// It never moves past Total.
func (r *BatchRun) Advance() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress < len(r.items) {
		r.progress++
	}
	return r.progress
}

// Counts returns the number of completed and failed items
func (r *BatchRun) Counts() (completed, failed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, item := range r.items {
		switch item.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return completed, failed
}

// RunSnapshot is a consistent, serializable view of a run
type RunSnapshot struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id,omitempty"`
	State     RunState    `json:"state"`
	Progress  int         `json:"progress"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	CreatedAt time.Time   `json:"created_at"`
	Items     []BatchItem `json:"items"`
}

// Snapshot returns a copy of the run taken under a single read lock
func (r *BatchRun) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RunSnapshot{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		State:     r.state,
		Progress:  r.progress,
		Total:     len(r.items),
		CreatedAt: r.CreatedAt,
		Items:     make([]BatchItem, len(r.items)),
	}
	copy(snap.Items, r.items)
	for _, item := range r.items {
		switch item.Status {
		case StatusCompleted:
			snap.Completed++
		case StatusFailed:
			snap.Failed++
		}
	}
	return snap
}

// RunSummary is the persisted record of a finished or cancelled run
type RunSummary struct {
	RunID         string    `json:"run_id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	State         RunState  `json:"state"`
	Total         int       `json:"total"`
	Processed     int       `json:"processed"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	PersistFailed int       `json:"persist_failed"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}
