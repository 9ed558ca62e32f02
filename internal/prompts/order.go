package prompts

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var vnd = message.NewPrinter(language.Vietnamese)

// Money formats an amount in dong with Vietnamese digit grouping.
func Money(v float64) string {
	return vnd.Sprintf("%.0fđ", v)
}

// ProductFound asks the customer to confirm a verified product.
func ProductFound(name string, price float64, description, imageURL string) string {
	if description == "" {
		description = "Không có mô tả"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 **Sản phẩm được tìm thấy:**\n\n")
	fmt.Fprintf(&b, "• **Tên:** %s\n", name)
	fmt.Fprintf(&b, "• **Giá:** %s\n", Money(price))
	fmt.Fprintf(&b, "• **Mô tả:** %s\n\n", description)
	b.WriteString("Đây có phải là sản phẩm bạn muốn đặt không?\n\n")
	b.WriteString("Nếu đúng, hãy trả lời \"xác nhận\" kèm số lượng (ví dụ: \"xác nhận, số lượng 2\"), ")
	b.WriteString("hoặc \"thay đổi số lượng thành N\" để xem lại tổng tiền.")
	if imageURL != "" {
		fmt.Fprintf(&b, "\n\n![%s](%s)", name, imageURL)
	}
	return b.String()
}

// ProductNotFound asks for a better description of the product.
func ProductNotFound(query string) string {
	return fmt.Sprintf("❓ **Sản phẩm không tìm thấy**\n\n"+
		"Xin lỗi, tôi không tìm thấy sản phẩm \"*%s*\" trong hệ thống của chúng tôi.\n\n"+
		"Bạn có thể:\n• Kiểm tra lại tên sản phẩm\n• Cung cấp thêm chi tiết về sản phẩm\n• Mô tả sản phẩm bằng từ khóa khác", query)
}

// QuantityChanged restates the order with a new quantity.
func QuantityChanged(name string, unitPrice float64, quantity int) string {
	return fmt.Sprintf("🔄 **Đã cập nhật số lượng**\n\n"+
		"• Sản phẩm: %s\n• Đơn giá: %s\n• Số lượng mới: %d\n• **Tổng cộng mới: %s**\n\n"+
		"Bạn có muốn xác nhận đặt hàng không?",
		name, Money(unitPrice), quantity, Money(unitPrice*float64(quantity)))
}

// OrderPlaced confirms a committed order.
func OrderPlaced(orderID int64, name string, quantity int, total float64) string {
	return fmt.Sprintf("✅ **Đặt hàng thành công!**\n\n"+
		"Đơn hàng của bạn đã được tạo:\n• Mã đơn hàng: %d\n• Sản phẩm: %s\n• Số lượng: %d\n• Tổng thanh toán: %s\n\n"+
		"Cảm ơn bạn đã mua sắm cùng chúng tôi! Đơn hàng sẽ được xử lý và giao đến bạn trong thời gian sớm nhất.",
		orderID, name, quantity, Money(total))
}

// LoginRequired asks an anonymous customer to log in before ordering.
const LoginRequired = "⚠️ **Thiếu thông tin đặt hàng**\n\nĐể hoàn tất đơn hàng, bạn cần đăng nhập trước.\n\n" +
	"Vui lòng đăng nhập hoặc đăng ký tài khoản để tiếp tục. Sản phẩm bạn chọn vẫn được giữ lại."

// MissingProductIdentity reports a verified product without an id.
const MissingProductIdentity = "❌ **Không thể tạo đơn hàng**\n\nKhông xác định được mã sản phẩm. Vui lòng tìm lại sản phẩm bạn muốn mua."

// OrderFailed reports a failed commit that can be retried by confirming again.
func OrderFailed(reason string) string {
	return fmt.Sprintf("❌ **Không thể tạo đơn hàng**\n\nCó lỗi xảy ra: %s\n\n"+
		"Sản phẩm bạn chọn vẫn được giữ lại, bạn có thể xác nhận lại để thử lần nữa.", reason)
}

// OutOfStock reports a stock shortfall on commit.
func OutOfStock(name string) string {
	return fmt.Sprintf("❌ **Không đủ hàng**\n\nSản phẩm %s không còn đủ số lượng bạn yêu cầu. "+
		"Bạn có thể giảm số lượng (\"thay đổi số lượng thành N\") rồi xác nhận lại.", name)
}

// OrderAbandoned acknowledges a cancelled order sub-dialog.
const OrderAbandoned = "Đã hủy yêu cầu đặt hàng. Bạn cần tôi giúp gì thêm không?"
