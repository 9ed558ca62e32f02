// Package imagesearch is a client for the remote image-similarity
// service: an image goes up as a multipart upload and a ranked list of
// look-alike products comes back.
package imagesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/nugget/shopkeep/internal/config"
	"github.com/nugget/shopkeep/internal/httpkit"
	"github.com/nugget/shopkeep/internal/vntext"
)

// Errors returned by Search. Both are wrapped with detail.
var (
	// ErrUnavailable covers timeouts, connection failures and non-200
	// answers. Retrying later may succeed.
	ErrUnavailable = errors.New("image search unavailable")
	// ErrBadResponse means the service answered with something that is
	// not a JSON product list.
	ErrBadResponse = errors.New("image search returned an unreadable response")
	// ErrUnsupportedFormat rejects files the service cannot read.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// SupportedExtensions lists the image types the service accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// Product is one similar item returned by the service.
type Product struct {
	ProductName string  `json:"product_name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	LinkURL     string  `json:"link_url"`
	ImageURL    string  `json:"image_url"`
}

// wireProduct is the service's shape; price arrives as display text.
type wireProduct struct {
	ProductName *string `json:"product_name"`
	Category    *string `json:"category"`
	Description string  `json:"description"`
	Price       any     `json:"price"`
	LinkURL     string  `json:"link_url"`
	ImageURL    string  `json:"image_url"`
}

// Client talks to the image search service.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a client for cfg.URL with the configured timeout and
// outbound rate limit.
func New(cfg config.ImageSearchConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url: cfg.URL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout()),
			httpkit.WithRateLimit(cfg.Rate, cfg.Burst),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Supported reports whether filename has an accepted image extension.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Search uploads image (named filename) and returns similar products.
func (c *Client) Search(ctx context.Context, filename string, image io.Reader) ([]Product, error) {
	if !Supported(filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json; charset=utf-8")

	c.logger.Info("sending image to search service", "file", filepath.Base(filename), "url", c.url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := httpkit.ReadErrorBody(resp.Body, 500)
		c.logger.Error("image search request failed", "status", resp.StatusCode, "body", detail)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	var raw []wireProduct
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	products := make([]Product, 0, len(raw))
	for _, w := range raw {
		products = append(products, c.convert(w))
	}
	c.logger.Debug("image search complete", "products", len(products))
	return products, nil
}

func (c *Client) convert(w wireProduct) Product {
	p := Product{
		ProductName: "Sản phẩm không tên",
		Category:    "unknown",
		Description: w.Description,
		LinkURL:     w.LinkURL,
		ImageURL:    w.ImageURL,
	}
	if w.ProductName != nil {
		p.ProductName = *w.ProductName
	}
	if w.Category != nil {
		p.Category = *w.Category
	}

	switch v := w.Price.(type) {
	case float64:
		p.Price = v
	case string:
		price, err := vntext.ParsePrice(v)
		if err != nil {
			c.logger.Warn("unparseable price from image search, using 0",
				"product", p.ProductName, "price", v, "error", err)
		}
		p.Price = price
	default:
		c.logger.Warn("missing price from image search, using 0", "product", p.ProductName)
	}
	return p
}
