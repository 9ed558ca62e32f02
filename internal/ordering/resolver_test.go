package ordering

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/prompts"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestResolver seeds "Áo thun" (id 1, 150000, stock 10) and
// "Túi vải" (id 2, 90000, stock 3).
func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite", ":memory:", discardLogger())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, p := range []store.Product{
		{Name: "Áo thun", Category: "Thời trang", Price: 150000, Quantity: 10, Description: "Cotton 100%"},
		{Name: "Túi vải", Category: "Phụ kiện", Price: 90000, Quantity: 3},
	} {
		if _, err := st.AddProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	reg := tools.NewRegistry(discardLogger())
	if err := tools.RegisterShopTools(reg, tools.Deps{Catalog: st, Orders: st, Customers: st, Logger: discardLogger()}); err != nil {
		t.Fatal(err)
	}
	return NewResolver(st, reg, discardLogger()), st
}

func createCall(args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: "call-1", Function: llm.ToolFunction{Name: tools.CreateOrder, Arguments: args}}
}

func stockOf(t *testing.T, st *store.Store, id int64) int {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return p.Quantity
}

func TestPrepare_Verify(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := tools.WithCustomerID(context.Background(), 7)

	out := r.Prepare(ctx, Request{Call: createCall(map[string]any{"product_name": "áo thun", "quantity": float64(1)})})
	if out.Verified == nil || out.Verified.ID != 1 {
		t.Fatalf("Verified = %+v, want product 1", out.Verified)
	}
	if out.Order != nil {
		t.Error("verification must not place an order")
	}
	if !strings.Contains(out.Reply, "Áo thun") || !strings.Contains(out.Reply, "150.000đ") {
		t.Errorf("Reply = %q", out.Reply)
	}
	if got := stockOf(t, st, 1); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}

	out = r.Prepare(ctx, Request{Call: createCall(map[string]any{"product_name": "máy bay"})})
	if out.Verified != nil || out.Reply != prompts.ProductNotFound("máy bay") {
		t.Errorf("not found outcome = %+v", out)
	}
}

func TestPrepare_Commit(t *testing.T) {
	aoThun := &store.Product{ID: 1, Name: "Áo thun", Price: 150000}

	tests := []struct {
		name         string
		customer     int64
		req          Request
		wantReply    string
		wantOrder    bool
		wantTotal    float64
		wantVerified bool
		wantStock    int
	}{
		{
			name:      "confirm with quantity",
			customer:  7,
			req:       Request{Call: createCall(map[string]any{"product_name": "áo thun"}), Verified: aoThun, LastUserMessage: "xác nhận, số lượng 2"},
			wantOrder: true,
			wantTotal: 300000,
			wantStock: 8,
		},
		{
			name:      "call quantity when message has none",
			customer:  7,
			req:       Request{Call: createCall(map[string]any{"quantity": float64(3)}), Verified: aoThun, LastUserMessage: "ok"},
			wantOrder: true,
			wantTotal: 450000,
			wantStock: 7,
		},
		{
			name:      "edited arguments win",
			customer:  7,
			req:       Request{Call: createCall(map[string]any{"quantity": float64(4)}), Verified: aoThun, LastUserMessage: "xác nhận, số lượng 2", ArgsEdited: true},
			wantOrder: true,
			wantTotal: 600000,
			wantStock: 6,
		},
		{
			name:         "anonymous keeps product",
			customer:     0,
			req:          Request{Call: createCall(map[string]any{}), Verified: aoThun, LastUserMessage: "xác nhận"},
			wantReply:    prompts.LoginRequired,
			wantVerified: true,
			wantStock:    10,
		},
		{
			name:         "shortfall keeps product",
			customer:     7,
			req:          Request{Call: createCall(map[string]any{}), Verified: aoThun, LastUserMessage: "xác nhận, số lượng 20"},
			wantReply:    prompts.OutOfStock("Áo thun"),
			wantVerified: true,
			wantStock:    10,
		},
		{
			name:      "missing id clears product",
			customer:  7,
			req:       Request{Call: createCall(map[string]any{}), Verified: &store.Product{Name: "Áo thun"}, LastUserMessage: "xác nhận"},
			wantReply: prompts.MissingProductIdentity,
			wantStock: 10,
		},
		{
			name:      "vanished product clears it",
			customer:  7,
			req:       Request{Call: createCall(map[string]any{}), Verified: &store.Product{ID: 99, Name: "Áo thun cũ"}, LastUserMessage: "xác nhận"},
			wantReply: prompts.MissingProductIdentity,
			wantStock: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st := newTestResolver(t)
			ctx := context.Background()
			if tt.customer > 0 {
				ctx = tools.WithCustomerID(ctx, tt.customer)
			}

			out := r.Prepare(ctx, tt.req)

			if tt.wantOrder {
				if out.Order == nil {
					t.Fatalf("no order placed: %q", out.Reply)
				}
				if out.Order.TotalAmount != tt.wantTotal {
					t.Errorf("total = %v, want %v", out.Order.TotalAmount, tt.wantTotal)
				}
			} else {
				if out.Order != nil {
					t.Fatalf("unexpected order %+v", out.Order)
				}
				if out.Reply != tt.wantReply {
					t.Errorf("Reply = %q, want %q", out.Reply, tt.wantReply)
				}
			}
			if (out.Verified != nil) != tt.wantVerified {
				t.Errorf("Verified = %+v, want kept=%v", out.Verified, tt.wantVerified)
			}
			if got := stockOf(t, st, 1); got != tt.wantStock {
				t.Errorf("stock = %d, want %d", got, tt.wantStock)
			}
			if out.ToolResult == "" {
				t.Error("create_order call left unanswered")
			}
		})
	}
}

func TestPrepare_DifferentProductVerifiesAgain(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := tools.WithCustomerID(context.Background(), 7)

	out := r.Prepare(ctx, Request{
		Call:            createCall(map[string]any{"product_name": "túi vải"}),
		Verified:        &store.Product{ID: 1, Name: "Áo thun", Price: 150000},
		LastUserMessage: "mua túi vải",
	})
	if out.Order != nil {
		t.Fatal("a new product must be verified before it is ordered")
	}
	if out.Verified == nil || out.Verified.ID != 2 {
		t.Errorf("Verified = %+v, want product 2", out.Verified)
	}
	if got := stockOf(t, st, 2); got != 3 {
		t.Errorf("stock = %d, want 3", got)
	}
}

func TestApplyQuantityChange(t *testing.T) {
	p := &store.Product{ID: 1, Name: "Áo thun", Price: 150000}

	reply, qty, ok := ApplyQuantityChange(p, "thay đổi số lượng thành 3")
	if !ok || qty != 3 || reply != prompts.QuantityChanged("Áo thun", 150000, 3) {
		t.Errorf("ApplyQuantityChange = %q, %d, %v", reply, qty, ok)
	}
	if _, qty, ok := ApplyQuantityChange(p, "đổi số lượng đi"); !ok || qty != 1 {
		t.Errorf("change without a number: qty = %d, ok = %v, want 1", qty, ok)
	}
	if _, _, ok := ApplyQuantityChange(nil, "thay đổi số lượng thành 3"); ok {
		t.Error("no verified product should report false")
	}
}
