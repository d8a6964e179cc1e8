// Package notify carries run progress from the orchestrator to observers.
package notify

import "github.com/ppiankov/veritas/internal/model"

// EventType names a progress event
type EventType string

const (
	EventItemStarted  EventType = "item_started"  // Item moved to processing
	EventProgress     EventType = "progress"      // Item reached a terminal status
	EventRunComplete  EventType = "run_complete"  // Every item processed
	EventRunCancelled EventType = "run_cancelled" // Stopped before the last item
)

// IsTerminal reports whether this is the last event of a run
func (t EventType) IsTerminal() bool {
	return t == EventRunComplete || t == EventRunCancelled
}

// Event is one progress notification. Index is the 0-based item position
// for item events and -1 for run events.
type Event struct {
	RunID     string           `json:"run_id"`
	Type      EventType        `json:"type"`
	Index     int              `json:"index"`
	Status    model.ItemStatus `json:"status,omitempty"`
	Progress  int              `json:"progress"`
	Total     int              `json:"total"`
	Completed int              `json:"completed,omitempty"`
	Failed    int              `json:"failed,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// Fraction returns progress/total, or 1 for an empty run
func (e Event) Fraction() float64 {
	if e.Total == 0 {
		return 1
	}
	return float64(e.Progress) / float64(e.Total)
}

// Publisher accepts events from the orchestrator
type Publisher interface {
	Publish(ev Event)
}

// Discard drops every event
type Discard struct{}

// Publish does nothing
func (Discard) Publish(Event) {}
