package imagesearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nugget/shopkeep/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string, timeout time.Duration) *Client {
	c := New(config.ImageSearchConfig{URL: url}, discardLogger())
	c.httpClient.Timeout = timeout
	return c
}

func TestSearch_ParsesProducts(t *testing.T) {
	var gotField, gotFile, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "no image", http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotField, gotFile, gotBody = "image", hdr.Filename, string(b)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"product_name":"Túi cói","category":"Phụ kiện","description":"Túi đan tay","price":"4.880.000đ","link_url":"https://shop.example/tui","image_url":"https://img.example/tui.jpg"},
			{"category":"Nhà cửa","price":"liên hệ"},
			{"product_name":"Nón lá","price":"120,50"}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	products, err := c.Search(context.Background(), "photo.JPG", strings.NewReader("fake-jpeg"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotField != "image" || gotFile != "photo.JPG" || gotBody != "fake-jpeg" {
		t.Errorf("upload = %s/%s/%q", gotField, gotFile, gotBody)
	}
	if len(products) != 3 {
		t.Fatalf("got %d products, want 3", len(products))
	}

	tests := []struct {
		i        int
		name     string
		category string
		price    float64
	}{
		{0, "Túi cói", "Phụ kiện", 4880000},
		{1, "Sản phẩm không tên", "Nhà cửa", 0},
		{2, "Nón lá", "unknown", 120.5},
	}
	for _, tt := range tests {
		p := products[tt.i]
		if p.ProductName != tt.name || p.Category != tt.category || p.Price != tt.price {
			t.Errorf("product %d = %+v, want %s/%s/%v", tt.i, p, tt.name, tt.category, tt.price)
		}
	}
	if products[0].LinkURL != "https://shop.example/tui" {
		t.Errorf("link_url = %q", products[0].LinkURL)
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    error
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: ErrUnavailable,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "<html>ngrok error</html>")
			},
			want: ErrBadResponse,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			timeout: 50 * time.Millisecond,
			want:    ErrUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			timeout := tt.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			c := newTestClient(srv.URL, timeout)
			_, err := c.Search(context.Background(), "a.png", strings.NewReader("x"))
			if !errors.Is(err, tt.want) {
				t.Errorf("Search error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSearch_UnsupportedFormat(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", time.Second)
	_, err := c.Search(context.Background(), "notes.txt", strings.NewReader("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSupported(t *testing.T) {
	tests := map[string]bool{
		"a.jpg": true, "b.JPEG": true, "c.png": true, "d.bmp": true,
		"e.webp": true, "f.gif": false, "noext": false,
	}
	for name, want := range tests {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}
