package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens an in-memory store on the pure-Go driver.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:", discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedCatalog loads the fixture catalog. Ids are assigned in order,
// so "Áo thun" is product 1.
func seedCatalog(t *testing.T, s *Store) {
	t.Helper()
	products := []Product{
		{Name: "Áo thun", Category: "Thời trang", Price: 150000, Quantity: 10, Description: "Áo thun cotton thoáng mát"},
		{Name: "Áo sơ mi trắng", Category: "Thời trang", Price: 250000, Quantity: 5, Description: "Sơ mi công sở"},
		{Name: "Quần jean", Category: "Thời trang", Price: 350000, Quantity: 0, Description: "Quần jean xanh"},
		{Name: "Túi vải", Category: "Phụ kiện", Price: 90000, Quantity: 3, Description: "Túi đựng áo thun và đồ dùng"},
		{Name: "Áo thun trẻ em", Category: "Thời trang", Price: 120000, Quantity: 7, Description: "Áo cho bé"},
	}
	for i, p := range products {
		id, err := s.AddProduct(context.Background(), p)
		if err != nil {
			t.Fatalf("AddProduct(%s): %v", p.Name, err)
		}
		if id != int64(i+1) {
			t.Fatalf("AddProduct(%s) id = %d, want %d", p.Name, id, i+1)
		}
	}
}

func stockOf(t *testing.T, s *Store, id int64) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProduct(%d): %v", id, err)
	}
	return p.Quantity
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x", discardLogger()); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpen_MattnDriver(t *testing.T) {
	path := t.TempDir() + "/shop.db"
	s, err := Open(context.Background(), "sqlite3", path, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// Schema creation is idempotent.
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := New(nil, Postgres, discardLogger())
	got := pg.rebind(`UPDATE products SET quantity = quantity - ? WHERE product_id = ? AND quantity >= ?`)
	want := `UPDATE products SET quantity = quantity - $1 WHERE product_id = $2 AND quantity >= $3`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := New(nil, SQLite, discardLogger())
	if q := `SELECT ?`; lite.rebind(q) != q {
		t.Error("sqlite rebind should be a no-op")
	}
}
