package store

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestStockConservation checks that for any sequence of order creations
// and cancellations, stock on hand plus units held by live orders equals
// the starting stock, and stock never goes negative.
func TestStockConservation(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	// Positive op: order that many units. Non-positive op: cancel the
	// |op|-th oldest live order, if there is one.
	properties.Property("stock plus live order units is constant", prop.ForAll(
		func(ops []int) bool {
			s, err := Open(context.Background(), "sqlite", ":memory:", discardLogger())
			if err != nil {
				t.Logf("open: %v", err)
				return false
			}
			defer s.Close()
			ctx := context.Background()

			const initial = 10
			if _, err := s.AddProduct(ctx, Product{Name: "Áo thun", Category: "Thời trang", Price: 150000, Quantity: initial}); err != nil {
				t.Logf("seed: %v", err)
				return false
			}

			type live struct {
				id  int64
				qty int
			}
			var orders []live

			for _, op := range ops {
				if op > 0 {
					o, err := s.CreateOrder(ctx, 1, []LineRequest{{ProductID: 1, Quantity: op}})
					if err == nil {
						orders = append(orders, live{o.ID, op})
					}
					continue
				}
				idx := -op
				if idx >= len(orders) {
					continue
				}
				if err := s.CancelOrder(ctx, orders[idx].id, 1); err != nil {
					t.Logf("cancel: %v", err)
					return false
				}
				orders = append(orders[:idx], orders[idx+1:]...)
			}

			p, err := s.GetProduct(ctx, 1)
			if err != nil {
				return false
			}
			held := 0
			for _, o := range orders {
				held += o.qty
			}
			return p.Quantity >= 0 && p.Quantity+held == initial
		},
		gen.SliceOfN(12, gen.IntRange(-3, 6)),
	))

	properties.TestingRun(t)
}
