package session

import "github.com/mcoot/arenaengine/internal/model"

// DefaultEventLogSize is the number of events a session retains
const DefaultEventLogSize = 64

// EventLog is a fixed-capacity ring buffer; once full, new events overwrite the oldest.
type EventLog struct {
	buf  []model.Event
	next int
	full bool
}

// NewEventLog creates an event log holding at most capacity events
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogSize
	}
	return &EventLog{buf: make([]model.Event, capacity)}
}

// Append records an event
func (l *EventLog) Append(events ...model.Event) {
	for _, e := range events {
		l.buf[l.next] = e
		l.next = (l.next + 1) % len(l.buf)
		if l.next == 0 {
			l.full = true
		}
	}
}

// Len returns the number of retained events
func (l *EventLog) Len() int {
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Events returns the retained events, oldest first
func (l *EventLog) Events() []model.Event {
	if !l.full {
		return append([]model.Event(nil), l.buf[:l.next]...)
	}
	out := make([]model.Event, 0, len(l.buf))
	out = append(out, l.buf[l.next:]...)
	return append(out, l.buf[:l.next]...)
}
