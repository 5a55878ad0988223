package router

import (
	"sync/atomic"
	"time"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Event is one entry in the per-task status stream consumed by dashboards
// and the CLI.
type Event struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`
	// Status is the task's router status at emit time.
	Status models.TaskStatus `json:"status"`
	// Mode is the execution mode in effect, if decided.
	Mode models.ExecutionMode `json:"mode,omitempty"`
	// CurrentPhase is the full-loop phase in flight, if any.
	CurrentPhase string `json:"current_phase,omitempty"`
	// RoundIndex is the audit cycle in flight, if any.
	RoundIndex int `json:"round_index,omitempty"`
	// CostSoFar is the cumulative spend charged for the task.
	CostSoFar float64 `json:"cost_so_far"`
	// Detail carries a short human-readable note.
	Detail string `json:"detail,omitempty"`
	// Time is when the event was emitted.
	Time time.Time `json:"time"`
}

// eventBus fans task events out to one buffered channel. Emits never block
// the routing path; events beyond the buffer are dropped and counted.
type eventBus struct {
	ch      chan Event
	dropped atomic.Uint64
}

func newEventBus(buffer int) *eventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &eventBus{ch: make(chan Event, buffer)}
}

func (b *eventBus) emit(ev Event) {
	ev.Time = time.Now().UTC()
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Events returns the stream channel.
func (b *eventBus) Events() <-chan Event {
	return b.ch
}

// Dropped returns how many events were discarded because no consumer kept up.
func (b *eventBus) Dropped() uint64 {
	return b.dropped.Load()
}
