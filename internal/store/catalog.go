package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nugget/shopkeep/internal/vntext"
)

// DefaultSearchLimit is used when SearchParams.Limit is not positive.
const DefaultSearchLimit = 2

// Ranking tiers, best first.
const (
	tierExactName = iota
	tierNameSubstring
	tierDescription
	tierWord
)

const productColumns = `p.product_id, p.product_name, p.category_id, c.category_name,
	p.description, p.price, p.quantity, p.image_url, p.url, p.usage_instructions`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Category,
		&p.Description, &p.Price, &p.Quantity, &p.ImageURL, &p.URL, &p.UsageInstructions)
	return p, err
}

// EnsureCategory returns the id of the named category, creating it if needed.
func (s *Store) EnsureCategory(ctx context.Context, name string) (int64, error) {
	return s.ensureCategory(ctx, s.db, name)
}

func (s *Store) ensureCategory(ctx context.Context, q queryer, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "other"
	}
	if _, err := q.ExecContext(ctx, s.rebind(
		`INSERT INTO categories (category_name) VALUES (?) ON CONFLICT (category_name) DO NOTHING`), name); err != nil {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}
	var id int64
	if err := q.QueryRowContext(ctx, s.rebind(
		`SELECT category_id FROM categories WHERE category_name = ?`), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup category %q: %w", name, err)
	}
	return id, nil
}

// AddProduct inserts a product, creating its category by name when
// CategoryID is zero. Returns the new product id.
func (s *Store) AddProduct(ctx context.Context, p Product) (int64, error) {
	if strings.TrimSpace(p.Name) == "" {
		return 0, fmt.Errorf("add product: empty name")
	}
	if p.Quantity < 0 {
		return 0, fmt.Errorf("add product %q: negative quantity", p.Name)
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		categoryID := p.CategoryID
		if categoryID == 0 {
			var err error
			if categoryID, err = s.ensureCategory(ctx, tx, p.Category); err != nil {
				return err
			}
		}
		return tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO products (product_name, name_key, category_id, description, price,
				quantity, image_url, url, usage_instructions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING product_id`),
			p.Name, vntext.Fold(p.Name), categoryID, p.Description, p.Price,
			p.Quantity, p.ImageURL, p.URL, p.UsageInstructions,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("add product %q: %w", p.Name, err)
	}
	return id, nil
}

// GetProduct returns a product by id.
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+productColumns+`
		FROM products p JOIN categories c ON p.category_id = c.category_id
		WHERE p.product_id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

// DecrementStock removes qty units of a product in its own transaction.
// It fails with ErrInsufficientStock rather than going negative.
func (s *Store) DecrementStock(ctx context.Context, id int64, qty int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.decrementStock(ctx, tx, id, "", qty)
	})
}

// decrementStock is a conditional update so the stock check and the
// decrement are one statement under the transaction's row lock.
func (s *Store) decrementStock(ctx context.Context, q queryer, id int64, name string, qty int) error {
	res, err := q.ExecContext(ctx, s.rebind(
		`UPDATE products SET quantity = quantity - ? WHERE product_id = ? AND quantity >= ?`),
		qty, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock for product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock for product %d: %w", id, err)
	}
	if n == 0 {
		if name == "" {
			name = fmt.Sprintf("product %d", id)
		}
		return fmt.Errorf("%w for %s (requested %d)", ErrInsufficientStock, name, qty)
	}
	return nil
}

func (s *Store) restoreStock(ctx context.Context, q queryer, id int64, qty int) error {
	if _, err := q.ExecContext(ctx, s.rebind(
		`UPDATE products SET quantity = quantity + ? WHERE product_id = ?`), qty, id); err != nil {
		return fmt.Errorf("restore stock for product %d: %w", id, err)
	}
	return nil
}

// Search returns in-stock products matching params, ranked: exact name,
// then name substring, then description substring, then word or
// category-only matches. Ties sort by name. Matching folds case with
// Unicode rules.
func (s *Store) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	candidates, err := s.inStockProducts(ctx, params.MinPrice, params.MaxPrice)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		p    Product
		tier int
		key  string
	}

	fq := vntext.Fold(params.Query)
	words := significantWords(fq)
	category := vntext.Fold(params.Category)

	var matches []ranked
	for _, p := range candidates {
		if category != "" && vntext.Fold(p.Category) != category {
			continue
		}
		tier, ok := rankProduct(p, fq, words)
		if !ok {
			continue
		}
		matches = append(matches, ranked{p: p, tier: tier, key: vntext.Fold(p.Name)})
	}

	coll := vntext.NewCollator()
	slices.SortStableFunc(matches, func(a, b ranked) int {
		return cmp.Or(
			cmp.Compare(a.tier, b.tier),
			coll.CompareString(a.key, b.key),
			cmp.Compare(a.p.ID, b.p.ID),
		)
	})

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	result := &SearchResult{Products: make([]Product, 0, len(matches))}
	for _, m := range matches {
		result.Products = append(result.Products, m.p)
	}

	meta, err := s.searchMetadata(ctx)
	if err != nil {
		return nil, err
	}
	meta.TotalResults = len(result.Products)
	meta.Query = params.Query
	result.Metadata = meta

	s.logger.Debug("catalog search",
		"query", params.Query,
		"category", params.Category,
		"results", len(result.Products),
	)
	return result, nil
}

func (s *Store) inStockProducts(ctx context.Context, minPrice, maxPrice float64) ([]Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products p JOIN categories c ON p.category_id = c.category_id
		WHERE p.quantity > 0`
	var args []any
	if minPrice > 0 {
		query += ` AND p.price >= ?`
		args = append(args, minPrice)
	}
	if maxPrice > 0 {
		query += ` AND p.price <= ?`
		args = append(args, maxPrice)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

// rankProduct places p in a tier for the folded query fq. An empty
// query matches everything in the lowest tier.
func rankProduct(p Product, fq string, words []string) (int, bool) {
	if fq == "" {
		return tierWord, true
	}
	name := vntext.Fold(p.Name)
	switch {
	case name == fq:
		return tierExactName, true
	case strings.Contains(name, fq):
		return tierNameSubstring, true
	case strings.Contains(vntext.Fold(p.Description), fq):
		return tierDescription, true
	}
	for _, w := range words {
		if strings.Contains(name, w) {
			return tierWord, true
		}
	}
	return 0, false
}

// significantWords splits a folded query into words longer than two
// characters; short words like "áo" only count as part of the phrase.
func significantWords(fq string) []string {
	var words []string
	for _, w := range strings.Fields(fq) {
		if utf8.RuneCountInString(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

func (s *Store) searchMetadata(ctx context.Context) (SearchMetadata, error) {
	var meta SearchMetadata

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.category_name, COUNT(*)
		FROM products p JOIN categories c ON p.category_id = c.category_id
		WHERE p.quantity > 0
		GROUP BY c.category_name
		ORDER BY c.category_name`)
	if err != nil {
		return meta, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Name, &cc.ProductCount); err != nil {
			return meta, fmt.Errorf("scan category count: %w", err)
		}
		meta.Categories = append(meta.Categories, cc)
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("category counts: %w", err)
	}

	var minP, maxP, avgP sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT MIN(price), MAX(price), AVG(price) FROM products WHERE quantity > 0`,
	).Scan(&minP, &maxP, &avgP); err != nil {
		return meta, fmt.Errorf("price range: %w", err)
	}
	meta.PriceRange = PriceRange{
		Min:     minP.Float64,
		Max:     maxP.Float64,
		Average: math.Round(avgP.Float64*100) / 100,
	}
	return meta, nil
}
