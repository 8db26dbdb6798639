// Package events carries change notifications from the row model to its
// consumers. Delivery is synchronous, on the caller's goroutine, in
// subscription order.
package events

import (
	"fmt"
	"sync"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Type names a notification.
type Type string

const (
	RowDataChanged  Type = "rowDataChanged"
	ModelUpdated    Type = "modelUpdated"
	RowPinned       Type = "rowPinned"
	GroupingChanged Type = "groupingChanged"
	DragEnded       Type = "dragEnded"
)

// Scope tells consumers how much to redraw.
type Scope int

const (
	// Full means anything may have changed.
	Full Scope = iota
	// Incremental means only the listed rows changed.
	Incremental
)

func (s Scope) String() string {
	if s == Incremental {
		return "incremental"
	}
	return "full"
}

// Event is one notification.
type Event struct {
	Type  Type
	Scope Scope

	// RowIDs lists the affected rows for incremental events.
	RowIDs []string
	// Side is set for RowPinned.
	Side model.Side
	// Added, Updated and Removed count the rows a transaction touched.
	Added, Updated, Removed int
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s, %d rows)", e.Type, e.Scope, len(e.RowIDs))
}

// Handler receives events.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu       sync.Mutex
	next     int
	handlers []subscription
}

type subscription struct {
	id int
	fn Handler
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.handlers {
			if s.id == id {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every current subscriber. Handlers may subscribe or
// unsubscribe while being called; changes apply to the next event.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.handlers))
	copy(subs, b.handlers)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
