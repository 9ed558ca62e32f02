// Package checkpoint persists per-thread conversation state so an
// interrupted exchange can be resumed after an arbitrary delay. A
// checkpoint is written after every node transition; the newest one for
// a thread is the thread's current state.
package checkpoint

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/store"
)

// ErrNotFound is returned when a thread has no checkpoint yet.
var ErrNotFound = errors.New("checkpoint not found")

// Node names a state-machine node.
type Node string

// Nodes of the conversation state machine.
const (
	NodeAssistant        Node = "assistant"
	NodeSafeTool         Node = "safe_tool"
	NodeSensitiveTool    Node = "sensitive_tool"
	NodeOrderPreparation Node = "order_preparation"
	NodeEnd              Node = "end"
)

// Gated reports whether the machine must pause before entering n.
func (n Node) Gated() bool {
	return n == NodeSensitiveTool || n == NodeOrderPreparation
}

// State is everything needed to resume a thread.
type State struct {
	ThreadID   string        `json:"thread_id"`
	CustomerID int64         `json:"customer_id"`
	Messages   []llm.Message `json:"messages"`

	// VerifiedProduct is the catalog item resolved during an order
	// sub-dialog, if one is in progress.
	VerifiedProduct *store.Product `json:"verified_product,omitempty"`
	// VerifiedQuantity is the quantity the customer last asked for on
	// the verified product; zero means none was named.
	VerifiedQuantity int `json:"verified_quantity,omitempty"`

	// Pending holds proposed tool calls not yet answered. Only the head
	// is ever executed.
	Pending []llm.ToolCall `json:"pending,omitempty"`

	// Next is the node the machine will enter on the next step. When it
	// is gated and Paused is set, the thread waits for a decision.
	Next   Node `json:"next"`
	Paused bool `json:"paused,omitempty"`

	// Approved is the tool call id the user approved, consumed by the
	// gated node.
	Approved string `json:"approved,omitempty"`
	// ArgsEdited means the approver replaced the head call's arguments.
	ArgsEdited bool `json:"args_edited,omitempty"`

	// Resolved lists tool call ids that already have a result.
	Resolved []string `json:"resolved,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns an empty state for a new thread.
func NewState(threadID string, customerID int64) *State {
	now := time.Now().UTC()
	return &State{
		ThreadID:   threadID,
		CustomerID: customerID,
		Next:       NodeEnd,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// PendingCall returns the head of the pending queue.
func (s *State) PendingCall() (llm.ToolCall, bool) {
	if len(s.Pending) == 0 {
		return llm.ToolCall{}, false
	}
	return s.Pending[0], true
}

// IsResolved reports whether id already has a tool result.
func (s *State) IsResolved(id string) bool {
	return slices.Contains(s.Resolved, id)
}

// Checkpoint is one saved snapshot of a thread.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Node      Node      `json:"node"` // node that just completed, or the gate a paused thread waits at
	CreatedAt time.Time `json:"created_at"`

	State *State `json:"state,omitempty"`

	ByteSize     int64 `json:"byte_size"` // compressed
	MessageCount int   `json:"message_count"`
}

// Saver stores checkpoints keyed by thread id.
type Saver interface {
	// Put records state as the newest checkpoint of its thread.
	Put(ctx context.Context, node Node, state *State) (*Checkpoint, error)
	// Latest returns the newest checkpoint with its state, or ErrNotFound.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// List returns checkpoint metadata for a thread, newest first.
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	Close() error
}
