package tools

import "context"

type contextKey string

const (
	threadIDKey   contextKey = "thread_id"
	customerIDKey contextKey = "customer_id"
	toolCallIDKey contextKey = "tool_call_id"
	binderKey     contextKey = "customer_binder"
)

// WithThreadID adds the conversation thread id to the context.
func WithThreadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, threadIDKey, id)
}

// ThreadIDFromContext returns the thread id, or "" if not set.
func ThreadIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(threadIDKey).(string)
	return id
}

// WithCustomerID records the authenticated customer. Tools read the
// customer only from here, never from model arguments.
func WithCustomerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, customerIDKey, id)
}

// CustomerIDFromContext returns the authenticated customer id. ok is
// false for an anonymous session.
func CustomerIDFromContext(ctx context.Context) (id int64, ok bool) {
	id, ok = ctx.Value(customerIDKey).(int64)
	return id, ok && id > 0
}

// WithToolCallID adds the id of the tool call being executed.
func WithToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, id)
}

// ToolCallIDFromContext returns the current tool call id, or "".
func ToolCallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(toolCallIDKey).(string)
	return id
}

// WithCustomerBinder installs fn to be called when a tool authenticates
// a customer (login or registration), so the session adopts the id.
func WithCustomerBinder(ctx context.Context, fn func(customerID int64)) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, binderKey, fn)
}

// BindCustomer hands id to the session's binder. It reports whether a
// binder was installed.
func BindCustomer(ctx context.Context, id int64) bool {
	fn, ok := ctx.Value(binderKey).(func(int64))
	if !ok {
		return false
	}
	fn(id)
	return true
}
