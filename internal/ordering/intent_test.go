package ordering

import (
	"testing"

	"github.com/nugget/shopkeep/internal/store"
)

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		msg  string
		want Intent
	}{
		{"Xác nhận, số lượng 2", IntentConfirm},
		{"đồng ý", IntentConfirm},
		{"ok", IntentConfirm},
		{"Mua luôn", IntentConfirm},
		{"đặt hàng giúp mình", IntentConfirm},
		{"thôi, không cần nữa", IntentCancel},
		{"Tôi không mua nữa", IntentCancel},
		{"hủy đơn", IntentCancel},
		{"Thay đổi số lượng thành 3", IntentChangeQuantity},
		{"áo này màu gì?", IntentNone},
		{"facebook", IntentNone},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyReply(tt.msg); got != tt.want {
				t.Errorf("ClassifyReply(%q) = %s, want %s", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassifyOrderReply(t *testing.T) {
	aoThun := &store.Product{ID: 1, Name: "Áo thun"}
	tests := []struct {
		msg     string
		product *store.Product
		want    Intent
	}{
		{"xác nhận", aoThun, IntentConfirm},
		{"Xác nhận, số lượng 2", aoThun, IntentConfirm},
		{"Mua luôn", aoThun, IntentConfirm},
		{"ok, mua áo thun nhé", aoThun, IntentConfirm},
		{"đặt hàng cho em 3 cái", aoThun, IntentConfirm},
		{"mua túi vải", aoThun, IntentNone},
		{"xác nhận mua áo thun và túi vải", aoThun, IntentNone},
		{"mua túi vải", nil, IntentConfirm},
		{"thôi, không mua nữa", aoThun, IntentCancel},
		{"thay đổi số lượng thành 3", aoThun, IntentChangeQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyOrderReply(tt.msg, tt.product); got != tt.want {
				t.Errorf("ClassifyOrderReply(%q) = %s, want %s", tt.msg, got, tt.want)
			}
		})
	}
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		msg    string
		want   int
		wantOK bool
	}{
		{"xác nhận, số lượng 2", 2, true},
		{"Số lượng: 12 cái", 12, true},
		{"số lượng là mười", 0, false},
		{"xác nhận", 0, false},
		{"số lượng 0", 0, false},
	}
	for _, tt := range tests {
		got, ok := Quantity(tt.msg)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Quantity(%q) = %d, %v; want %d, %v", tt.msg, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewQuantity(t *testing.T) {
	tests := []struct {
		msg    string
		want   int
		wantOK bool
	}{
		{"thay đổi số lượng thành 3", 3, true},
		{"Thay đổi số lượng THÀNH   5", 5, true},
		{"thay đổi số lượng", 0, false},
	}
	for _, tt := range tests {
		got, ok := NewQuantity(tt.msg)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NewQuantity(%q) = %d, %v; want %d, %v", tt.msg, got, ok, tt.want, tt.wantOK)
		}
	}
}
