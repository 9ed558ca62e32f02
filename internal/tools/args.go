package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/nugget/shopkeep/internal/store"
)

// StringArg returns args[key] as trimmed text; numbers are formatted.
func StringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// IntArg accepts numbers and numeric strings; models send both.
func IntArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

// lineArgs reads the order lines from a "products" array, falling back
// to a single product_id/product_name plus quantity.
func lineArgs(args map[string]any) []store.LineRequest {
	if items, ok := args["products"].([]any); ok && len(items) > 0 {
		lines := make([]store.LineRequest, 0, len(items))
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			lines = append(lines, lineFrom(m))
		}
		return lines
	}
	if _, hasID := args["product_id"]; hasID || StringArg(args, "product_name") != "" {
		return []store.LineRequest{lineFrom(args)}
	}
	return nil
}

func lineFrom(m map[string]any) store.LineRequest {
	l := store.LineRequest{ProductName: StringArg(m, "product_name"), Quantity: 1}
	if id, ok := IntArg(m, "product_id"); ok {
		l.ProductID = id
	}
	if q, ok := IntArg(m, "quantity"); ok {
		l.Quantity = int(q)
	}
	return l
}

// Schema fragments shared by the order tools.
var (
	lineSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_id":   map[string]any{"type": []string{"integer", "string"}, "description": "Mã sản phẩm"},
			"product_name": map[string]any{"type": "string", "description": "Tên sản phẩm"},
			"quantity":     map[string]any{"type": []string{"integer", "string"}, "description": "Số lượng"},
		},
	}
	linesSchema = map[string]any{
		"type":        "array",
		"items":       lineSchema,
		"minItems":    1,
		"description": "Danh sách sản phẩm và số lượng",
	}
	orderIDSchema = map[string]any{"type": []string{"integer", "string"}, "description": "Mã đơn hàng"}
)
