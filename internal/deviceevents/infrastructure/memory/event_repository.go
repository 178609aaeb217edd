package memory

import (
	"context"
	"sync"

	events "carebot-cloud/internal/deviceevents/domain"
)

// EventRepository keeps the event log in process memory.
type EventRepository struct {
	mu     sync.Mutex
	nextID int64
	events []events.Event
}

// NewEventRepository constructs an empty log.
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Append(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the log.
func (r *EventRepository) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}
