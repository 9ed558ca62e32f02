package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/prompts"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/tools"
	"github.com/nugget/shopkeep/internal/vntext"
)

// Catalog finds the product a customer means.
type Catalog interface {
	Search(ctx context.Context, params store.SearchParams) (*store.SearchResult, error)
	GetProduct(ctx context.Context, id int64) (*store.Product, error)
}

// ToolCaller runs a registered tool. *tools.Registry satisfies it.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// Resolver is the two-step order dialog: verify the product, then commit
// it once the customer confirms.
type Resolver struct {
	catalog Catalog
	tools   ToolCaller
	logger  *slog.Logger
}

// NewResolver returns a resolver that searches catalog and commits
// through the create_order tool.
func NewResolver(catalog Catalog, tc ToolCaller, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, tools: tc, logger: logger.With("component", "ordering")}
}

// Request is one approved create_order call and its surroundings.
type Request struct {
	Call llm.ToolCall
	// Verified is the product confirmed earlier in the thread, if any.
	Verified *store.Product
	// LastUserMessage is scanned for a "số lượng N" phrase.
	LastUserMessage string
	// ArgsEdited means the approver changed the call's arguments, so
	// the call's quantity wins over the message.
	ArgsEdited bool
}

// Outcome is what the step produced.
type Outcome struct {
	// Reply is shown to the customer and ends the turn.
	Reply string
	// Verified replaces the thread's verified product; nil clears it.
	Verified *store.Product
	// ToolResult answers the create_order call.
	ToolResult string
	// Order is set when an order was committed.
	Order *tools.OrderResult
}

// Prepare runs step A (verify) when no product is verified for this
// call, or step B (commit) otherwise. Failures are reported in the
// outcome; Prepare never mutates anything except through create_order.
func (r *Resolver) Prepare(ctx context.Context, req Request) *Outcome {
	args := req.Call.Function.Arguments
	verified := req.Verified
	if verified != nil && !sameProduct(verified, args) {
		r.logger.Info("order request names a different product, verifying again",
			"verified", verified.Name, "requested", tools.StringArg(args, "product_name"))
		verified = nil
	}
	if verified == nil {
		return r.verify(ctx, args)
	}
	return r.commit(ctx, req, verified)
}

// sameProduct reports whether a create_order call still refers to the
// verified product. Calls that name nothing refer to it.
func sameProduct(p *store.Product, args map[string]any) bool {
	if id, ok := tools.IntArg(args, "product_id"); ok && id > 0 {
		return id == p.ID
	}
	name := tools.StringArg(args, "product_name")
	if name == "" {
		return true
	}
	return vntext.Contains(p.Name, name) || vntext.Contains(name, p.Name)
}

func (r *Resolver) verify(ctx context.Context, args map[string]any) *Outcome {
	name := tools.StringArg(args, "product_name")

	var found *store.Product
	if id, ok := tools.IntArg(args, "product_id"); ok && id > 0 {
		p, err := r.catalog.GetProduct(ctx, id)
		switch {
		case err == nil && p.Quantity > 0:
			found = p
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return r.failed(err, nil)
		}
	}
	if found == nil && name != "" {
		res, err := r.catalog.Search(ctx, store.SearchParams{Query: name, Limit: 1})
		if err != nil {
			return r.failed(err, nil)
		}
		if len(res.Products) > 0 {
			found = &res.Products[0]
		}
	}

	if found == nil {
		r.logger.Info("order product not found", "query", name)
		return &Outcome{
			Reply:      prompts.ProductNotFound(name),
			ToolResult: resultJSON(map[string]any{"status": "not_found", "query": name}),
		}
	}

	r.logger.Info("order product verified", "product_id", found.ID, "name", found.Name)
	return &Outcome{
		Reply:    prompts.ProductFound(found.Name, found.Price, found.Description, found.ImageURL),
		Verified: found,
		ToolResult: resultJSON(map[string]any{
			"status":  "awaiting_confirmation",
			"product": found,
		}),
	}
}

func (r *Resolver) commit(ctx context.Context, req Request, p *store.Product) *Outcome {
	if p.ID <= 0 {
		r.logger.Warn("verified product has no id", "name", p.Name)
		return &Outcome{
			Reply:      prompts.MissingProductIdentity,
			ToolResult: tools.ErrorResult(&tools.Error{Kind: tools.KindNotFound, Message: "product id missing"}),
		}
	}

	qty := r.quantity(req)
	res, err := r.tools.Call(ctx, tools.CreateOrder, map[string]any{
		"products": []any{
			map[string]any{"product_id": float64(p.ID), "quantity": float64(qty)},
		},
	})
	if err != nil {
		return r.failed(err, p)
	}

	order, ok := res.(*tools.OrderResult)
	if !ok {
		r.logger.Error("create_order returned an unexpected result", "type", fmt.Sprintf("%T", res))
		return r.failed(errors.New("unexpected create_order result"), p)
	}
	r.logger.Info("order committed",
		"order_id", order.OrderID,
		"product_id", p.ID,
		"quantity", qty,
		"total", order.TotalAmount,
	)
	return &Outcome{
		Reply:      prompts.OrderPlaced(order.OrderID, p.Name, qty, order.TotalAmount),
		ToolResult: resultJSON(order),
		Order:      order,
	}
}

// quantity picks edited arguments first, then the customer's own words,
// then the proposed call, then one.
func (r *Resolver) quantity(req Request) int {
	args := req.Call.Function.Arguments
	if req.ArgsEdited {
		if n, ok := tools.IntArg(args, "quantity"); ok && n > 0 {
			return int(n)
		}
	}
	if n, ok := Quantity(req.LastUserMessage); ok {
		return n
	}
	if n, ok := tools.IntArg(args, "quantity"); ok && n > 0 {
		return int(n)
	}
	return 1
}

// failed turns an error into a customer message. keep is the verified
// product to retain; missing-product failures drop it.
func (r *Resolver) failed(err error, keep *store.Product) *Outcome {
	te := tools.Classify(err)
	out := &Outcome{Verified: keep, ToolResult: tools.ErrorResult(te)}

	switch {
	case errors.Is(err, tools.ErrLoginRequired):
		out.Reply = prompts.LoginRequired
	case te.Kind == tools.KindNotFound:
		out.Reply = prompts.MissingProductIdentity
		out.Verified = nil
	case te.Kind == tools.KindConflict && keep != nil:
		out.Reply = prompts.OutOfStock(keep.Name)
	default:
		out.Reply = prompts.OrderFailed(te.Message)
	}

	r.logger.Warn("order preparation failed", "kind", te.Kind, "error", err)
	return out
}

// ApplyQuantityChange answers "thay đổi số lượng thành N" for a verified
// product without committing anything. It returns the reply and the
// quantity the next confirmation stands for.
func ApplyQuantityChange(p *store.Product, msg string) (string, int, bool) {
	if p == nil {
		return "", 0, false
	}
	n, ok := NewQuantity(msg)
	if !ok {
		n = 1
	}
	return prompts.QuantityChanged(p.Name, p.Price, n), n, true
}

func resultJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return tools.ErrorResult(err)
	}
	return string(b)
}
