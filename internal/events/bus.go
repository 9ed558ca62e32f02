// Package events is a publish/subscribe bus for conversation activity.
// The workflow engine publishes interrupts, decisions and completed
// turns; the WebSocket approval channel and the terminal chat subscribe.
// Publish on a nil *Bus is a no-op, so components need no guard checks.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceWorkflow identifies events from the conversation engine.
	SourceWorkflow = "workflow"
	// SourceAgent identifies events from the model turn runner.
	SourceAgent = "agent"
	// SourceStore identifies committed order changes.
	SourceStore = "store"
)

// Kind constants describe the type of event within a source.
const (
	// KindInterrupt signals a thread paused before a gated action.
	// Data: thread_id, tool_call_id, tool, arguments, node.
	KindInterrupt = "interrupt"
	// KindDecision signals a resume decision was applied.
	// Data: thread_id, tool_call_id, decision.
	KindDecision = "decision"
	// KindTurnComplete signals the end of processing for a user message.
	// Data: thread_id, steps, paused.
	KindTurnComplete = "turn_complete"

	// KindLLMResponse signals completion of a model call.
	// Data: thread_id, model, tokens_in, tokens_out, tool_calls.
	KindLLMResponse = "llm_response"
	// KindToolDone signals completion of a tool execution.
	// Data: thread_id, tool, ok, duration_ms.
	KindToolDone = "tool_done"

	// KindOrderCommitted signals an order was created, updated or
	// cancelled. Data: thread_id, order_id, customer_id, action.
	KindOrderCommitted = "order_committed"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// ThreadID returns the thread the event belongs to, or "".
func (e Event) ThreadID() string {
	id, _ := e.Data["thread_id"].(string)
	return id
}

// Filter narrows a subscription. Zero values match everything.
type Filter struct {
	ThreadID string
	Kinds    []string
}

func (f Filter) match(e Event) bool {
	if f.ThreadID != "" && e.ThreadID() != f.ThreadID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

// Subscription receives matching events on C until it is removed with
// [Bus.Unsubscribe], which closes C.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	filter  Filter
	dropped atomic.Uint64
}

// Dropped reports how many matching events were discarded because C
// was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Bus fans events out to subscriptions. Publishing never blocks: a
// subscriber that falls behind loses events and its Dropped count grows.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish delivers e to every matching subscription. No-op on a nil bus.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.filter.match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Emit stamps and publishes an event. Safe on a nil receiver.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe registers a subscription with a buffer of bufSize events.
func (b *Bus) Subscribe(f Filter, bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	s := &Subscription{C: ch, ch: ch, filter: f}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Repeated calls are
// no-ops.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
