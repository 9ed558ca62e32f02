package store

import (
	"errors"
	"time"
)

// Sentinel errors. Callers match with errors.Is; messages carry detail.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotCancellable    = errors.New("order cannot be cancelled")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrDuplicate         = errors.New("already registered")
	ErrInvalidLine       = errors.New("invalid order line")
	ErrBadCredentials    = errors.New("incorrect password")
	ErrNothingToUpdate   = errors.New("no information provided to update")
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses.
const (
	StatusPending   OrderStatus = "Pending"
	StatusUpdated   OrderStatus = "Updated"
	StatusCancelled OrderStatus = "Cancelled"
)

// timeLayout is fixed-width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Product is a catalog item.
type Product struct {
	ID                int64   `json:"product_id"`
	Name              string  `json:"name"`
	CategoryID        int64   `json:"-"`
	Category          string  `json:"category"`
	Description       string  `json:"description"`
	Price             float64 `json:"price"`
	Quantity          int     `json:"stock"`
	ImageURL          string  `json:"image_url,omitempty"`
	URL               string  `json:"url,omitempty"`
	UsageInstructions string  `json:"usage_instructions,omitempty"`
}

// SearchParams filters a catalog search. Zero prices mean no bound.
type SearchParams struct {
	Query    string
	Category string
	MinPrice float64
	MaxPrice float64
	Limit    int
}

// CategoryCount is the number of in-stock products in a category.
type CategoryCount struct {
	Name         string `json:"name"`
	ProductCount int    `json:"product_count"`
}

// PriceRange summarises in-stock prices.
type PriceRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

// SearchMetadata accompanies every search result.
type SearchMetadata struct {
	TotalResults int             `json:"total_results"`
	Categories   []CategoryCount `json:"categories"`
	PriceRange   PriceRange      `json:"price_range"`
	Query        string          `json:"query,omitempty"`
}

// SearchResult is the ranked, truncated match list plus metadata.
type SearchResult struct {
	Products []Product      `json:"products"`
	Metadata SearchMetadata `json:"metadata"`
}

// LineRequest asks for quantity units of a product named either by id
// or by name. ProductID wins when both are set.
type LineRequest struct {
	ProductID   int64  `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
}

// OrderLine is a committed line with the price captured at purchase.
type OrderLine struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Order is an order header with its lines.
type Order struct {
	ID         int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	Date       time.Time   `json:"order_date"`
	Status     OrderStatus `json:"status"`
	Lines      []OrderLine `json:"products"`
}

// Total is the sum of quantity times unit price over all lines.
func (o *Order) Total() float64 {
	var total float64
	for _, l := range o.Lines {
		total += float64(l.Quantity) * l.UnitPrice
	}
	return total
}

// OrderSummary is one row of a customer's order history.
type OrderSummary struct {
	ID        int64       `json:"order_id"`
	Date      time.Time   `json:"order_date"`
	Status    OrderStatus `json:"status"`
	ItemCount int         `json:"item_count"`
	Total     float64     `json:"total_amount"`
}

// Customer is an account. PasswordHash is a bcrypt hash.
type Customer struct {
	ID           int64  `json:"customer_id"`
	Username     string `json:"name"`
	PasswordHash string `json:"-"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
}

// Registration is the input to RegisterCustomer.
type Registration struct {
	Username string
	Password string
	Email    string
	Phone    string
	Address  string
}

// CustomerUpdate carries the fields to change. Empty strings are left alone.
type CustomerUpdate struct {
	FullName string
	Address  string
	Phone    string
}

// ConversationRecord is one audited assistant turn.
type ConversationRecord struct {
	CustomerID  int64
	UserMessage string
	BotResponse string
	ToolCalls   string // JSON
	Timestamp   time.Time
}
