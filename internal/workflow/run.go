package workflow

import (
	"context"
	"time"

	"github.com/nugget/shopkeep/internal/agent"
	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/ordering"
	"github.com/nugget/shopkeep/internal/prompts"
	"github.com/nugget/shopkeep/internal/tools"
)

// Route picks the node for the head of the pending queue. It is pure.
// Unknown tools go to the safe node, where the registry answers
// not_found without running anything.
func Route(st *checkpoint.State, policy *tools.Policy) checkpoint.Node {
	call, ok := st.PendingCall()
	if !ok {
		return checkpoint.NodeEnd
	}
	if call.Function.Name == tools.CreateOrder {
		return checkpoint.NodeOrderPreparation
	}
	class, known := policy.Class(call.Function.Name)
	if known && class == tools.Sensitive {
		return checkpoint.NodeSensitiveTool
	}
	return checkpoint.NodeSafeTool
}

// run steps the machine from st.Next until it ends or pauses.
func (e *Engine) run(ctx context.Context, st *checkpoint.State, mark int) (*Result, error) {
	steps := 0
	for {
		switch st.Next {
		case checkpoint.NodeEnd:
			e.bus.Emit(events.SourceWorkflow, events.KindTurnComplete, map[string]any{
				"thread_id": st.ThreadID,
				"steps":     steps,
				"paused":    false,
			})
			return e.result(st, mark, steps), nil

		case checkpoint.NodeAssistant:
			if steps >= e.maxSteps {
				e.logger.Warn("step limit reached, ending turn", "thread_id", st.ThreadID, "max_steps", e.maxSteps)
				st.Messages = append(st.Messages, llm.Message{Role: "assistant", Content: prompts.MaxStepsApology})
				st.Next = checkpoint.NodeEnd
				if err := e.put(ctx, checkpoint.NodeAssistant, st); err != nil {
					return nil, err
				}
				continue
			}
			steps++
			e.assist(ctx, st)
			if err := e.put(ctx, checkpoint.NodeAssistant, st); err != nil {
				return nil, err
			}

		case checkpoint.NodeSafeTool:
			call, ok := st.PendingCall()
			if ok {
				e.execute(ctx, st, call)
			}
			st.Next = checkpoint.NodeAssistant
			if err := e.put(ctx, checkpoint.NodeSafeTool, st); err != nil {
				return nil, err
			}

		case checkpoint.NodeSensitiveTool, checkpoint.NodeOrderPreparation:
			node := st.Next
			call, ok := st.PendingCall()
			if !ok {
				st.Next = checkpoint.NodeAssistant
				continue
			}
			if st.Approved != call.ID {
				return e.pause(ctx, st, node, call, mark, steps)
			}
			st.Approved = ""

			if node == checkpoint.NodeSensitiveTool {
				e.execute(ctx, st, call)
				st.Next = checkpoint.NodeAssistant
			} else {
				e.prepare(ctx, st, call)
				st.Next = checkpoint.NodeEnd
			}
			st.ArgsEdited = false
			if err := e.put(ctx, node, st); err != nil {
				return nil, err
			}

		default:
			e.logger.Error("unknown node, ending turn", "thread_id", st.ThreadID, "node", st.Next)
			st.Next = checkpoint.NodeEnd
		}
	}
}

// assist runs the assistant node and routes its proposal. Calls after
// the first are answered as skipped.
func (e *Engine) assist(ctx context.Context, st *checkpoint.State) {
	msg, err := e.assistant.Step(ctx, agent.Turn{
		ThreadID:   st.ThreadID,
		CustomerID: st.CustomerID,
		Messages:   st.Messages,
	})
	if err != nil {
		e.logger.Error("assistant step failed", "thread_id", st.ThreadID, "error", err)
		msg = llm.Message{Role: "assistant", Content: prompts.TransientApology}
	}
	st.Messages = append(st.Messages, msg)

	st.Pending = nil
	if len(msg.ToolCalls) > 0 {
		for _, c := range msg.ToolCalls[1:] {
			e.answer(st, c.ID, skippedResult)
		}
		st.Pending = []llm.ToolCall{msg.ToolCalls[0]}
	}
	st.Next = Route(st, e.policy)
}

func (e *Engine) pause(ctx context.Context, st *checkpoint.State, node checkpoint.Node, call llm.ToolCall, mark, steps int) (*Result, error) {
	st.Paused = true
	if err := e.put(ctx, node, st); err != nil {
		return nil, err
	}
	e.logger.Info("paused for approval",
		"thread_id", st.ThreadID,
		"node", node,
		"tool", call.Function.Name,
		"tool_call_id", call.ID,
	)
	e.bus.Emit(events.SourceWorkflow, events.KindInterrupt, map[string]any{
		"thread_id":    st.ThreadID,
		"tool_call_id": call.ID,
		"tool":         call.Function.Name,
		"arguments":    call.Function.Arguments,
		"node":         string(node),
	})
	e.bus.Emit(events.SourceWorkflow, events.KindTurnComplete, map[string]any{
		"thread_id": st.ThreadID,
		"steps":     steps,
		"paused":    true,
	})
	return e.result(st, mark, steps), nil
}

// toolContext carries the thread's ambient ids to a tool. Login and
// registration rebind the thread's customer through the binder.
func (e *Engine) toolContext(ctx context.Context, st *checkpoint.State, callID string) context.Context {
	ctx = tools.WithThreadID(ctx, st.ThreadID)
	ctx = tools.WithToolCallID(ctx, callID)
	if st.CustomerID > 0 {
		ctx = tools.WithCustomerID(ctx, st.CustomerID)
	}
	return tools.WithCustomerBinder(ctx, func(id int64) {
		e.logger.Info("thread customer bound", "thread_id", st.ThreadID, "customer_id", id)
		st.CustomerID = id
	})
}

// execute runs the head call and answers it. Failures become error
// results for the model.
func (e *Engine) execute(ctx context.Context, st *checkpoint.State, call llm.ToolCall) {
	start := time.Now()
	out, err := e.tools.Execute(e.toolContext(ctx, st, call.ID), call.Function.Name, call.Function.Arguments)
	e.answer(st, call.ID, out)
	st.Pending = st.Pending[1:]

	e.bus.Emit(events.SourceWorkflow, events.KindToolDone, map[string]any{
		"thread_id":   st.ThreadID,
		"tool":        call.Function.Name,
		"ok":          err == nil,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		return
	}
	switch call.Function.Name {
	case tools.UpdateOrder, tools.CancelOrder:
		orderID, _ := tools.IntArg(call.Function.Arguments, "order_id")
		e.bus.Emit(events.SourceStore, events.KindOrderCommitted, map[string]any{
			"thread_id":   st.ThreadID,
			"order_id":    orderID,
			"customer_id": st.CustomerID,
			"action":      call.Function.Name,
		})
	}
}

// prepare runs the order preparation node. Its reply ends the turn.
func (e *Engine) prepare(ctx context.Context, st *checkpoint.State, call llm.ToolCall) {
	out := e.orders.Prepare(e.toolContext(ctx, st, call.ID), ordering.Request{
		Call:            call,
		Verified:        st.VerifiedProduct,
		LastUserMessage: lastUserMessage(st.Messages),
		ArgsEdited:      st.ArgsEdited,
	})
	e.answer(st, call.ID, out.ToolResult)
	st.Messages = append(st.Messages, llm.Message{Role: "assistant", Content: out.Reply})
	if out.Verified == nil || st.VerifiedProduct == nil || out.Verified.ID != st.VerifiedProduct.ID || out.Order != nil {
		st.VerifiedQuantity = 0
	}
	st.VerifiedProduct = out.Verified
	st.Pending = nil

	if out.Order != nil {
		e.bus.Emit(events.SourceStore, events.KindOrderCommitted, map[string]any{
			"thread_id":   st.ThreadID,
			"order_id":    out.Order.OrderID,
			"customer_id": out.Order.CustomerID,
			"action":      tools.CreateOrder,
		})
	}
}

// answer appends the tool result for id and marks it resolved.
func (e *Engine) answer(st *checkpoint.State, id, content string) {
	st.Messages = append(st.Messages, llm.Message{Role: "tool", Content: content, ToolCallID: id})
	st.Resolved = append(st.Resolved, id)
}

func lastUserMessage(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}
