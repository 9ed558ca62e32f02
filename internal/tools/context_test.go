package tools

import (
	"context"
	"testing"
)

func TestThreadIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty when unset", context.Background(), ""},
		{"round trip", WithThreadID(context.Background(), "thread-123"), "thread-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThreadIDFromContext(tt.ctx); got != tt.want {
				t.Errorf("ThreadIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCustomerIDFromContext(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		wantID int64
		wantOK bool
	}{
		{"anonymous when unset", context.Background(), 0, false},
		{"round trip", WithCustomerID(context.Background(), 42), 42, true},
		{"zero is anonymous", WithCustomerID(context.Background(), 0), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := CustomerIDFromContext(tt.ctx)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("CustomerIDFromContext() = %d, %v; want %d, %v", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestBindCustomer(t *testing.T) {
	if BindCustomer(context.Background(), 5) {
		t.Error("BindCustomer without a binder should report false")
	}

	var bound int64
	ctx := WithCustomerBinder(context.Background(), func(id int64) { bound = id })
	if !BindCustomer(ctx, 9) {
		t.Fatal("BindCustomer should report true with a binder")
	}
	if bound != 9 {
		t.Errorf("bound = %d, want 9", bound)
	}

	if WithCustomerBinder(ctx, nil) != ctx {
		t.Error("nil binder should return the context unchanged")
	}
}

func TestContextKeysIndependent(t *testing.T) {
	ctx := context.Background()
	ctx = WithThreadID(ctx, "thread-1")
	ctx = WithCustomerID(ctx, 3)
	ctx = WithToolCallID(ctx, "call-1")

	if got := ThreadIDFromContext(ctx); got != "thread-1" {
		t.Errorf("ThreadIDFromContext() = %q, want %q", got, "thread-1")
	}
	if got, _ := CustomerIDFromContext(ctx); got != 3 {
		t.Errorf("CustomerIDFromContext() = %d, want 3", got)
	}
	if got := ToolCallIDFromContext(ctx); got != "call-1" {
		t.Errorf("ToolCallIDFromContext() = %q, want %q", got, "call-1")
	}
}
