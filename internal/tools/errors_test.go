package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nugget/shopkeep/internal/imagesearch"
	"github.com/nugget/shopkeep/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed passes through", newError(KindConflict, nil, "x"), KindConflict},
		{"wrapped typed", fmt.Errorf("outer: %w", newError(KindFormat, nil, "y")), KindFormat},
		{"store not found", fmt.Errorf("order 9: %w", store.ErrNotFound), KindNotFound},
		{"insufficient stock", fmt.Errorf("create order: %w", store.ErrInsufficientStock), KindConflict},
		{"not cancellable", store.ErrNotCancellable, KindConflict},
		{"duplicate", store.ErrDuplicate, KindConflict},
		{"invalid line", store.ErrInvalidLine, KindValidation},
		{"nothing to update", store.ErrNothingToUpdate, KindValidation},
		{"bad credentials", store.ErrBadCredentials, KindValidation},
		{"image timeout", fmt.Errorf("%w: deadline", imagesearch.ErrUnavailable), KindTransient},
		{"image garbage", imagesearch.ErrBadResponse, KindFormat},
		{"unknown tool", &ErrToolUnavailable{ToolName: "launch_rocket"}, KindNotFound},
		{"anything else", errors.New("connection reset"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err).Kind; got != tt.want {
				t.Errorf("Classify(%v).Kind = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := newError(KindValidation, ErrLoginRequired, "please log in")
	if !errors.Is(err, ErrLoginRequired) {
		t.Error("errors.Is should see the cause")
	}
	var te *Error
	if !errors.As(fmt.Errorf("wrap: %w", err), &te) || te.Kind != KindValidation {
		t.Errorf("errors.As = %+v", te)
	}
}

func TestErrorResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
		wantMsg  string
	}{
		{"conflict keeps detail", newError(KindConflict, nil, "not enough stock"), "conflict", "not enough stock"},
		{"transient is generic", errors.New("dial tcp: refused"), "transient", transientMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			if err := json.Unmarshal([]byte(ErrorResult(tt.err)), &got); err != nil {
				t.Fatal(err)
			}
			if got["status"] != "error" || got["kind"] != tt.wantKind || got["message"] != tt.wantMsg {
				t.Errorf("ErrorResult = %v", got)
			}
		})
	}
}

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	want := `tool "web_search" is not available`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
