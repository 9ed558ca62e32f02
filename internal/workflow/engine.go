// Package workflow is the conversation state machine. A user message
// enters the assistant node; proposed tool calls are routed to a safe
// tool, a sensitive tool or order preparation. The machine pauses before
// the latter two until a ResumeSignal approves or denies the call, and
// checkpoints the thread after every node.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nugget/shopkeep/internal/agent"
	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/ordering"
	"github.com/nugget/shopkeep/internal/prompts"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/tools"
)

// DefaultMaxSteps bounds assistant steps per user message.
const DefaultMaxSteps = 8

// Tool results written by the engine itself.
const (
	skippedResult = `{"status":"skipped","message":"skipped: one action at a time"}`
	deniedResult  = `{"status":"denied","message":"denied by user"}`
	// interruptedResult answers an approved call whose outcome was never
	// checkpointed. The action may or may not have taken effect.
	interruptedResult = `{"status":"unknown","message":"approved action was interrupted; check its effect before retrying"}`
)

var (
	// ErrEmptyMessage rejects a blank user message.
	ErrEmptyMessage = errors.New("empty message")
	// ErrAwaitingDecision is returned when a message arrives for a
	// thread paused before a gated action.
	ErrAwaitingDecision = errors.New("thread is waiting for an approval decision")
	// ErrNotPaused is returned when a decision arrives for a thread that
	// is not waiting for one.
	ErrNotPaused = errors.New("thread is not waiting for a decision")
	// ErrToolCallMismatch is wrapped by *MismatchError.
	ErrToolCallMismatch = errors.New("tool call id does not match the pending call")
	// ErrBadDecision rejects a decision other than approve or deny.
	ErrBadDecision = errors.New("decision must be approve or deny")
)

// MismatchError reports a decision for a call other than the pending one.
type MismatchError struct {
	Pending string
	Got     string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("decision for tool call %q but %q is pending", e.Got, e.Pending)
}

func (e *MismatchError) Unwrap() error { return ErrToolCallMismatch }

// Stepper produces the next assistant message. *agent.Runner satisfies it.
type Stepper interface {
	Step(ctx context.Context, turn agent.Turn) (llm.Message, error)
}

// ToolRunner validates and executes tools. *tools.Registry satisfies it.
type ToolRunner interface {
	Validate(name string, args map[string]any) error
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// Preparer is the order preparation node. *ordering.Resolver satisfies it.
type Preparer interface {
	Prepare(ctx context.Context, req ordering.Request) *ordering.Outcome
}

// Deps are the engine's collaborators.
type Deps struct {
	Assistant Stepper
	Tools     ToolRunner
	Policy    *tools.Policy
	Orders    Preparer
	Saver     checkpoint.Saver
	Bus       *events.Bus // optional
	MaxSteps  int
}

// Engine drives conversation threads. Each thread runs one turn at a
// time; different threads run concurrently.
type Engine struct {
	assistant Stepper
	tools     ToolRunner
	policy    *tools.Policy
	orders    Preparer
	saver     checkpoint.Saver
	bus       *events.Bus
	maxSteps  int
	logger    *slog.Logger

	mu      sync.Mutex
	threads map[string]*threadLock
}

// threadLock is dropped from Engine.threads when nobody holds or waits
// for it.
type threadLock struct {
	sync.Mutex
	refs int
}

// New creates an engine.
func New(d Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if d.MaxSteps <= 0 {
		d.MaxSteps = DefaultMaxSteps
	}
	if d.Policy == nil {
		d.Policy = tools.DefaultPolicy()
	}
	return &Engine{
		assistant: d.Assistant,
		tools:     d.Tools,
		policy:    d.Policy,
		orders:    d.Orders,
		saver:     d.Saver,
		bus:       d.Bus,
		maxSteps:  d.MaxSteps,
		logger:    logger.With("component", "workflow"),
		threads:   make(map[string]*threadLock),
	}
}

// lock serialises work on one thread.
func (e *Engine) lock(threadID string) func() {
	e.mu.Lock()
	l, ok := e.threads[threadID]
	if !ok {
		l = &threadLock{}
		e.threads[threadID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(e.threads, threadID)
		}
		e.mu.Unlock()
	}
}

// Message is a user message for a thread. CustomerID is zero for an
// anonymous customer; a non-zero value replaces the thread's customer.
// ImageID refers to a picture uploaded to the thread.
type Message struct {
	ThreadID   string
	CustomerID int64
	Text       string
	ImageID    string
}

// Interrupt describes a thread paused before a gated action.
type Interrupt struct {
	ThreadID        string          `json:"thread_id"`
	Node            checkpoint.Node `json:"node"`
	ToolCall        llm.ToolCall    `json:"tool_call"`
	VerifiedProduct *store.Product  `json:"verified_product,omitempty"`
}

// Result is the outcome of HandleMessage or Resume.
type Result struct {
	ThreadID string
	// Reply is the assistant text produced by this call.
	Reply string
	// Interrupt is set when the thread paused.
	Interrupt *Interrupt
	Steps     int
	State     *checkpoint.State
}

// InterruptOf returns the interrupt a state is paused at, or nil.
func InterruptOf(st *checkpoint.State) *Interrupt {
	if st == nil || !st.Paused {
		return nil
	}
	call, ok := st.PendingCall()
	if !ok {
		return nil
	}
	return &Interrupt{
		ThreadID:        st.ThreadID,
		Node:            st.Next,
		ToolCall:        call,
		VerifiedProduct: st.VerifiedProduct,
	}
}

// HandleMessage appends a user message to its thread and runs the
// machine until it ends or pauses. An empty ThreadID starts a new thread.
func (e *Engine) HandleMessage(ctx context.Context, m Message) (*Result, error) {
	if strings.TrimSpace(m.Text) == "" && m.ImageID == "" {
		return nil, ErrEmptyMessage
	}
	if m.ThreadID == "" {
		m.ThreadID = uuid.NewString()
	}
	unlock := e.lock(m.ThreadID)
	defer unlock()

	st, err := e.load(ctx, m.ThreadID, m.CustomerID)
	if err != nil {
		return nil, err
	}
	if st.Paused {
		return nil, fmt.Errorf("thread %s: %w", m.ThreadID, ErrAwaitingDecision)
	}
	if m.CustomerID > 0 {
		st.CustomerID = m.CustomerID
	}
	if st.Approved != "" {
		e.logger.Warn("approved call has no recorded outcome",
			"thread_id", st.ThreadID, "tool_call_id", st.Approved)
		e.answer(st, st.Approved, interruptedResult)
		st.Pending = nil
		st.Approved = ""
		st.ArgsEdited = false
	}

	content := m.Text
	if m.ImageID != "" {
		content = strings.TrimSpace(content + "\n" + prompts.ImageAttached(m.ImageID))
	}
	st.Messages = append(st.Messages, llm.Message{Role: "user", Content: content})
	mark := len(st.Messages) - 1
	st.Next = checkpoint.NodeAssistant

	if st.VerifiedProduct != nil {
		switch intent := ordering.ClassifyOrderReply(m.Text, st.VerifiedProduct); intent {
		case ordering.IntentChangeQuantity:
			reply, qty, _ := ordering.ApplyQuantityChange(st.VerifiedProduct, m.Text)
			st.VerifiedQuantity = qty
			st.Messages = append(st.Messages, llm.Message{Role: "assistant", Content: reply})
			st.Next = checkpoint.NodeEnd
			if err := e.put(ctx, checkpoint.NodeAssistant, st); err != nil {
				return nil, err
			}
		case ordering.IntentCancel:
			e.logger.Info("order dialog abandoned", "thread_id", st.ThreadID, "product_id", st.VerifiedProduct.ID)
			st.VerifiedProduct = nil
			st.VerifiedQuantity = 0
		case ordering.IntentConfirm:
			call := confirmCall(st.VerifiedProduct, st.VerifiedQuantity, m.Text)
			st.Messages = append(st.Messages, llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{call}})
			st.Pending = []llm.ToolCall{call}
			st.Next = checkpoint.NodeOrderPreparation
			e.logger.Debug("confirmation turned into create_order", "thread_id", st.ThreadID, "tool_call_id", call.ID)
		}
	}

	return e.run(ctx, st, mark)
}

// confirmCall is the create_order call a confirmation stands for. A
// quantity in the message wins over the one agreed earlier.
func confirmCall(p *store.Product, agreed int, msg string) llm.ToolCall {
	qty := max(agreed, 1)
	if n, ok := ordering.Quantity(msg); ok {
		qty = n
	}
	return llm.ToolCall{
		ID: "call_" + uuid.NewString(),
		Function: llm.ToolFunction{
			Name: tools.CreateOrder,
			Arguments: map[string]any{
				"product_id":   float64(p.ID),
				"product_name": p.Name,
				"quantity":     float64(qty),
			},
		},
	}
}

// Decision is the human answer to an interrupt.
type Decision string

// Decisions.
const (
	Approve Decision = "approve"
	Deny    Decision = "deny"
)

// ResumeSignal answers the interrupt of a paused thread. EditedArgs,
// when set on an approval, replace the pending call's arguments.
type ResumeSignal struct {
	ThreadID   string         `json:"thread_id"`
	Decision   Decision       `json:"decision"`
	ToolCallID string         `json:"tool_call_id"`
	EditedArgs map[string]any `json:"edited_args,omitempty"`
}

// Resume applies a decision to a paused thread and runs the machine on.
// A decision for the wrong call is rejected without changing anything;
// denying a call that is already answered returns the current state.
func (e *Engine) Resume(ctx context.Context, sig ResumeSignal) (*Result, error) {
	if sig.Decision != Approve && sig.Decision != Deny {
		return nil, fmt.Errorf("%w: %q", ErrBadDecision, sig.Decision)
	}
	unlock := e.lock(sig.ThreadID)
	defer unlock()

	cp, err := e.saver.Latest(ctx, sig.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", sig.ThreadID, err)
	}
	st := cp.State
	mark := len(st.Messages)

	call, pending := st.PendingCall()
	if !st.Paused || !pending || call.ID != sig.ToolCallID {
		if sig.Decision == Deny && st.IsResolved(sig.ToolCallID) {
			e.logger.Debug("repeated denial ignored", "thread_id", st.ThreadID, "tool_call_id", sig.ToolCallID)
			return e.result(st, mark, 0), nil
		}
		if !st.Paused || !pending {
			return nil, fmt.Errorf("thread %s: %w", sig.ThreadID, ErrNotPaused)
		}
		return nil, &MismatchError{Pending: call.ID, Got: sig.ToolCallID}
	}

	gate := st.Next
	switch sig.Decision {
	case Deny:
		e.answer(st, call.ID, deniedResult)
		st.Pending = nil
		st.Paused = false
		st.Approved = ""
		st.ArgsEdited = false
		st.Next = checkpoint.NodeAssistant
		if err := e.put(ctx, gate, st); err != nil {
			return nil, err
		}
	case Approve:
		if sig.EditedArgs != nil {
			if err := e.tools.Validate(call.Function.Name, sig.EditedArgs); err != nil {
				return nil, err
			}
			call.Function.Arguments = sig.EditedArgs
			st.Pending[0] = call
			st.ArgsEdited = true
		}
		st.Approved = call.ID
		st.Paused = false
		// Once this is saved the call can no longer be approved again,
		// even if the gated node fails to checkpoint its outcome.
		if err := e.put(ctx, gate, st); err != nil {
			return nil, err
		}
	}

	e.logger.Info("decision applied",
		"thread_id", st.ThreadID,
		"tool_call_id", call.ID,
		"tool", call.Function.Name,
		"decision", sig.Decision,
		"edited", sig.EditedArgs != nil,
	)
	e.bus.Emit(events.SourceWorkflow, events.KindDecision, map[string]any{
		"thread_id":    st.ThreadID,
		"tool_call_id": call.ID,
		"decision":     string(sig.Decision),
	})

	return e.run(ctx, st, mark)
}

// BindCustomer sets the customer of a thread, creating it if needed.
func (e *Engine) BindCustomer(ctx context.Context, threadID string, customerID int64) error {
	unlock := e.lock(threadID)
	defer unlock()

	st, err := e.load(ctx, threadID, customerID)
	if err != nil {
		return err
	}
	st.CustomerID = customerID
	return e.put(ctx, checkpoint.NodeEnd, st)
}

// Thread returns the current state of a thread.
func (e *Engine) Thread(ctx context.Context, threadID string) (*checkpoint.State, error) {
	cp, err := e.saver.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", threadID, err)
	}
	return cp.State, nil
}

// Checkpoints lists a thread's saved snapshots, newest first.
func (e *Engine) Checkpoints(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	return e.saver.List(ctx, threadID, limit)
}

func (e *Engine) load(ctx context.Context, threadID string, customerID int64) (*checkpoint.State, error) {
	cp, err := e.saver.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		e.logger.Info("new thread", "thread_id", threadID, "customer_id", customerID)
		return checkpoint.NewState(threadID, customerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return cp.State, nil
}

func (e *Engine) put(ctx context.Context, node checkpoint.Node, st *checkpoint.State) error {
	if _, err := e.saver.Put(ctx, node, st); err != nil {
		return fmt.Errorf("checkpoint %s after %s: %w", st.ThreadID, node, err)
	}
	return nil
}

// result collects the assistant text added since mark.
func (e *Engine) result(st *checkpoint.State, mark, steps int) *Result {
	var parts []string
	for _, m := range st.Messages[min(mark, len(st.Messages)):] {
		if m.Role == "assistant" && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return &Result{
		ThreadID:  st.ThreadID,
		Reply:     strings.Join(parts, "\n\n"),
		Interrupt: InterruptOf(st),
		Steps:     steps,
		State:     st,
	}
}
