package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/shopkeep/internal/vntext"
)

// CreateOrder places a Pending order for customerID. For every line the
// product is resolved by id or by case-insensitive name, its stock is
// checked and decremented, and a line is recorded at the current price.
// Any failure rolls the whole order back.
func (s *Store) CreateOrder(ctx context.Context, customerID int64, lines []LineRequest) (*Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("create order: %w: no products", ErrInvalidLine)
	}

	order := &Order{
		CustomerID: customerID,
		Date:       time.Now().UTC(),
		Status:     StatusPending,
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, s.rebind(
			`INSERT INTO orders (customer_id, order_date, status) VALUES (?, ?, ?) RETURNING order_id`),
			customerID, order.Date.Format(timeLayout), string(order.Status),
		).Scan(&order.ID); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		applied, err := s.applyLines(ctx, tx, order.ID, lines)
		if err != nil {
			return err
		}
		order.Lines = applied
		return nil
	})
	if err != nil {
		s.logger.Warn("create order rolled back", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		"order_id", order.ID,
		"customer_id", customerID,
		"lines", len(order.Lines),
		"total", order.Total(),
	)
	return order, nil
}

// UpdateOrder replaces the lines of an order the customer owns. The old
// lines' stock is restored before the new lines are applied; the status
// becomes Updated. Cancelled orders cannot be updated.
func (s *Store) UpdateOrder(ctx context.Context, orderID, customerID int64, lines []LineRequest) (*Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("update order %d: %w: no products", orderID, ErrInvalidLine)
	}

	var order *Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, err := s.ownedOrderStatus(ctx, tx, orderID, customerID)
		if err != nil {
			return err
		}
		if status == StatusCancelled {
			return fmt.Errorf("order %d: %w", orderID, ErrOrderCancelled)
		}

		if err := s.releaseLines(ctx, tx, orderID); err != nil {
			return err
		}

		applied, err := s.applyLines(ctx, tx, orderID, lines)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE orders SET status = ?, order_date = ? WHERE order_id = ?`),
			string(StatusUpdated), now.Format(timeLayout), orderID); err != nil {
			return fmt.Errorf("update order header: %w", err)
		}

		order = &Order{
			ID:         orderID,
			CustomerID: customerID,
			Date:       now,
			Status:     StatusUpdated,
			Lines:      applied,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", orderID, err)
	}

	s.logger.Info("order updated", "order_id", orderID, "customer_id", customerID, "total", order.Total())
	return order, nil
}

// CancelOrder cancels a Pending order the customer owns and restores
// its stock. Lines are kept for the record.
func (s *Store) CancelOrder(ctx context.Context, orderID, customerID int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, err := s.ownedOrderStatus(ctx, tx, orderID, customerID)
		if err != nil {
			return err
		}
		if status != StatusPending {
			return fmt.Errorf("order %d is %s: %w", orderID, status, ErrNotCancellable)
		}

		lines, err := s.orderLines(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if err := s.restoreStock(ctx, tx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE orders SET status = ? WHERE order_id = ?`),
			string(StatusCancelled), orderID); err != nil {
			return fmt.Errorf("cancel order header: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}

	s.logger.Info("order cancelled", "order_id", orderID, "customer_id", customerID)
	return nil
}

// GetOrder returns one of the customer's orders with its lines.
func (s *Store) GetOrder(ctx context.Context, orderID, customerID int64) (*Order, error) {
	var (
		order Order
		date  string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT order_id, customer_id, order_date, status FROM orders WHERE order_id = ? AND customer_id = ?`),
		orderID, customerID,
	).Scan(&order.ID, &order.CustomerID, &date, &order.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	order.Date = parseTime(date)

	if order.Lines, err = s.orderLines(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns the customer's orders, newest first.
func (s *Store) ListOrders(ctx context.Context, customerID int64) ([]OrderSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT o.order_id, o.order_date, o.status,
			COUNT(od.order_detail_id),
			COALESCE(SUM(od.quantity * od.unit_price), 0)
		FROM orders o
		LEFT JOIN order_details od ON o.order_id = od.order_id
		WHERE o.customer_id = ?
		GROUP BY o.order_id, o.order_date, o.status
		ORDER BY o.order_date DESC, o.order_id DESC`), customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	summaries := []OrderSummary{}
	for rows.Next() {
		var (
			sum  OrderSummary
			date string
		)
		if err := rows.Scan(&sum.ID, &date, &sum.Status, &sum.ItemCount, &sum.Total); err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		sum.Date = parseTime(date)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *Store) ownedOrderStatus(ctx context.Context, q queryer, orderID, customerID int64) (OrderStatus, error) {
	var status OrderStatus
	err := q.QueryRowContext(ctx, s.rebind(
		`SELECT status FROM orders WHERE order_id = ? AND customer_id = ?`),
		orderID, customerID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("order %d for customer %d: %w", orderID, customerID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup order %d: %w", orderID, err)
	}
	return status, nil
}

// applyLines resolves, stock-checks, decrements and records each line.
func (s *Store) applyLines(ctx context.Context, tx *sql.Tx, orderID int64, lines []LineRequest) ([]OrderLine, error) {
	applied := make([]OrderLine, 0, len(lines))
	for _, req := range lines {
		if req.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity %d for %s", ErrInvalidLine, req.Quantity, describeLine(req))
		}

		p, err := s.resolveProduct(ctx, tx, req)
		if err != nil {
			return nil, err
		}

		if err := s.decrementStock(ctx, tx, p.ID, p.Name, req.Quantity); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO order_details (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`),
			orderID, p.ID, req.Quantity, p.Price); err != nil {
			return nil, fmt.Errorf("insert order line for %s: %w", p.Name, err)
		}

		applied = append(applied, OrderLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    req.Quantity,
			UnitPrice:   p.Price,
		})
	}
	return applied, nil
}

// releaseLines returns an order's reserved stock and deletes its lines.
func (s *Store) releaseLines(ctx context.Context, tx *sql.Tx, orderID int64) error {
	lines, err := s.orderLines(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := s.restoreStock(ctx, tx, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM order_details WHERE order_id = ?`), orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	return nil
}

type lineProduct struct {
	ID    int64
	Name  string
	Price float64
}

func (s *Store) resolveProduct(ctx context.Context, q queryer, req LineRequest) (lineProduct, error) {
	var (
		p   lineProduct
		row *sql.Row
	)
	switch {
	case req.ProductID > 0:
		row = q.QueryRowContext(ctx, s.rebind(
			`SELECT product_id, product_name, price FROM products WHERE product_id = ?`), req.ProductID)
	case strings.TrimSpace(req.ProductName) != "":
		row = q.QueryRowContext(ctx, s.rebind(
			`SELECT product_id, product_name, price FROM products WHERE name_key = ? ORDER BY product_id LIMIT 1`),
			vntext.Fold(req.ProductName))
	default:
		return p, fmt.Errorf("%w: missing product name or id", ErrInvalidLine)
	}

	err := row.Scan(&p.ID, &p.Name, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("product %s: %w", describeLine(req), ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("lookup product %s: %w", describeLine(req), err)
	}
	return p, nil
}

func (s *Store) orderLines(ctx context.Context, q queryer, orderID int64) ([]OrderLine, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT od.product_id, p.product_name, od.quantity, od.unit_price
		FROM order_details od JOIN products p ON od.product_id = p.product_id
		WHERE od.order_id = ?
		ORDER BY od.order_detail_id`), orderID)
	if err != nil {
		return nil, fmt.Errorf("order lines for %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func describeLine(req LineRequest) string {
	if req.ProductID > 0 {
		return fmt.Sprintf("#%d", req.ProductID)
	}
	return fmt.Sprintf("%q", req.ProductName)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
