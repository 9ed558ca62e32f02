// Package agent runs one assistant step: it builds the system prompt,
// calls the model with the tool catalog and returns the assistant
// message, normalising whatever tool calls the model proposed.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/prompts"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/tools"
	"github.com/nugget/shopkeep/internal/usage"
)

// maxReprompts bounds how often an empty reply is retried.
const maxReprompts = 2

// ToolLister supplies the tool definitions bound to every model call.
type ToolLister interface {
	List() []map[string]any
}

// UsageRecorder stores token usage. *usage.Store satisfies it.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// ConversationLog audits assistant turns. *store.Store satisfies it.
type ConversationLog interface {
	SaveConversation(ctx context.Context, rec store.ConversationRecord) error
}

// Runner is the assistant node.
type Runner struct {
	llm       llm.Client
	tools     ToolLister
	model     string
	window    int
	providers map[string]string
	usage     UsageRecorder
	audit     ConversationLog
	bus       *events.Bus
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHistoryWindow sets how many recent exchanges the system prompt carries.
func WithHistoryWindow(n int) Option {
	return func(r *Runner) { r.window = n }
}

// WithProviders maps model names to provider names for usage records.
func WithProviders(m map[string]string) Option {
	return func(r *Runner) { r.providers = m }
}

// WithUsage records token usage of every model call.
func WithUsage(u UsageRecorder) Option {
	return func(r *Runner) { r.usage = u }
}

// WithAudit saves every turn of a logged-in customer.
func WithAudit(a ConversationLog) Option {
	return func(r *Runner) { r.audit = a }
}

// WithEvents publishes a KindLLMResponse event per model call.
func WithEvents(b *events.Bus) Option {
	return func(r *Runner) { r.bus = b }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner that asks model for each step.
func NewRunner(client llm.Client, tl ToolLister, model string, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		llm:    client,
		tools:  tl,
		model:  model,
		window: 5,
		now:    time.Now,
		logger: logger.With("component", "agent"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Turn is the input to one step.
type Turn struct {
	ThreadID string
	// CustomerID is zero for an anonymous session.
	CustomerID int64
	// Messages is the thread so far, without a system prompt.
	Messages []llm.Message
}

// Step asks the model for the next assistant message. The returned
// message always has content or at least one tool call; every tool call
// has an id and non-nil arguments.
func (r *Runner) Step(ctx context.Context, turn Turn) (llm.Message, error) {
	customer := ""
	if turn.CustomerID > 0 {
		customer = strconv.FormatInt(turn.CustomerID, 10)
	}
	system := prompts.SystemPrompt(customer, r.now(), RecentExchanges(turn.Messages, r.window))

	msgs := make([]llm.Message, 0, len(turn.Messages)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: system})
	msgs = append(msgs, turn.Messages...)
	toolDefs := r.tools.List()

	purpose := "turn"
	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := r.llm.Chat(ctx, r.model, msgs, toolDefs)
		if err != nil {
			return llm.Message{}, fmt.Errorf("chat with %s: %w", r.model, err)
		}
		r.observe(ctx, turn, resp, purpose, time.Since(start))

		msg := resp.Message
		msg.Role = "assistant"
		msg.ToolCalls = r.normalizeCalls(turn.ThreadID, msg.ToolCalls)

		if strings.TrimSpace(msg.Content) != "" || len(msg.ToolCalls) > 0 {
			r.save(ctx, turn, msg)
			return msg, nil
		}
		if attempt >= maxReprompts {
			r.logger.Warn("model stayed silent, using fallback reply",
				"thread_id", turn.ThreadID, "attempts", attempt+1)
			msg.Content = prompts.EmptyResponseFallback
			r.save(ctx, turn, msg)
			return msg, nil
		}

		r.logger.Warn("empty model reply, re-prompting", "thread_id", turn.ThreadID, "attempt", attempt+1)
		msgs = append(msgs, llm.Message{Role: "user", Content: prompts.EmptyResponseNudge})
		purpose = "reprompt"
	}
}

// normalizeCalls gives every call an id and an argument object.
// Malformed arguments become {} and are logged as a format problem.
func (r *Runner) normalizeCalls(threadID string, calls []llm.ToolCall) []llm.ToolCall {
	for i := range calls {
		c := &calls[i]
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		if c.Function.Arguments == nil {
			if c.Function.ArgumentsError != "" {
				r.logger.Warn("malformed tool arguments replaced with {}",
					"thread_id", threadID,
					"tool", c.Function.Name,
					"kind", tools.KindFormat,
					"error", c.Function.ArgumentsError,
				)
			}
			c.Function.Arguments = map[string]any{}
		}
	}
	return calls
}

func (r *Runner) observe(ctx context.Context, turn Turn, resp *llm.ChatResponse, purpose string, elapsed time.Duration) {
	r.logger.Debug("model replied",
		"thread_id", turn.ThreadID,
		"model", resp.Model,
		"tokens_in", resp.InputTokens,
		"tokens_out", resp.OutputTokens,
		"tool_calls", len(resp.Message.ToolCalls),
		"elapsed", elapsed,
	)

	r.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
		"thread_id":  turn.ThreadID,
		"model":      r.model,
		"tokens_in":  resp.InputTokens,
		"tokens_out": resp.OutputTokens,
		"tool_calls": len(resp.Message.ToolCalls),
	})

	if r.usage == nil {
		return
	}
	if err := r.usage.Record(ctx, usage.Record{
		Timestamp:    r.now(),
		ThreadID:     turn.ThreadID,
		CustomerID:   turn.CustomerID,
		Model:        r.model,
		Provider:     r.providers[r.model],
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Purpose:      purpose,
	}); err != nil {
		r.logger.Warn("failed to record usage", "thread_id", turn.ThreadID, "error", err)
	}
}

type auditedCall struct {
	Name string `json:"name"`
	Args string `json:"args"`
	ID   string `json:"id"`
}

// save audits the turn for logged-in customers. Failures are logged only.
func (r *Runner) save(ctx context.Context, turn Turn, msg llm.Message) {
	if r.audit == nil || turn.CustomerID <= 0 {
		return
	}
	userMsg := lastUserMessage(turn.Messages)
	if userMsg == "" {
		return
	}

	reply := msg.Content
	if reply == "" {
		reply = "Tool call executed"
	}
	var callsJSON string
	if len(msg.ToolCalls) > 0 {
		calls := make([]auditedCall, 0, len(msg.ToolCalls))
		for _, c := range msg.ToolCalls {
			args, _ := json.Marshal(c.Function.Arguments)
			calls = append(calls, auditedCall{Name: c.Function.Name, Args: string(args), ID: c.ID})
		}
		b, _ := json.Marshal(calls)
		callsJSON = string(b)
	}

	if err := r.audit.SaveConversation(ctx, store.ConversationRecord{
		CustomerID:  turn.CustomerID,
		UserMessage: userMsg,
		BotResponse: reply,
		ToolCalls:   callsJSON,
		Timestamp:   r.now(),
	}); err != nil {
		r.logger.Error("failed to save conversation", "thread_id", turn.ThreadID, "customer_id", turn.CustomerID, "error", err)
	}
}

func lastUserMessage(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}
