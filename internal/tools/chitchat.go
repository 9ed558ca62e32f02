package tools

import (
	"context"

	"github.com/nugget/shopkeep/internal/vntext"
)

// chitchatReplies are checked in order; the first topic with a keyword
// contained in the message wins. Goodbye comes before greeting so
// "chào tạm biệt" is not answered as a hello.
var chitchatReplies = []struct {
	keywords []string
	reply    string
}{
	{
		keywords: []string{"tạm biệt", "bye", "goodbye"},
		reply:    "Tạm biệt và cảm ơn bạn đã ghé thăm! Hẹn gặp lại bạn sớm.",
	},
	{
		keywords: []string{"xin chào", "hello", "chào", "hi"},
		reply:    "Xin chào! Rất vui được gặp bạn. Tôi có thể giúp bạn tìm sản phẩm, đặt hàng hoặc trả lời thắc mắc. Bạn cần hỗ trợ gì hôm nay?",
	},
	{
		keywords: []string{"bạn là ai", "giới thiệu", "who are you"},
		reply:    "Tôi là trợ lý ảo của cửa hàng đồ thủ công mỹ nghệ. Tôi giúp bạn tìm sản phẩm, đặt hàng, kiểm tra đơn hàng và giải đáp thắc mắc.",
	},
	{
		keywords: []string{"thời tiết", "weather", "trời"},
		reply:    "Tôi không thể kiểm tra thời tiết, nhưng có thể giúp bạn tìm sản phẩm hợp với mọi thời tiết. Bạn có muốn xem đồ thời trang không?",
	},
	{
		keywords: []string{"cảm ơn", "thank"},
		reply:    "Không có gì! Nếu cần thêm thông tin về sản phẩm hoặc muốn đặt hàng, cứ hỏi tôi nhé.",
	},
	{
		keywords: []string{"cửa hàng", "shop", "store", "bán gì"},
		reply:    "Cửa hàng chuyên đồ thủ công mỹ nghệ: thời trang, đồ dùng nhà cửa, đồ chơi và phụ kiện. Bạn muốn xem sản phẩm nào?",
	},
}

const (
	chitchatEmpty   = "Xin chào! Tôi là trợ lý ảo của cửa hàng. Tôi có thể giúp bạn tìm kiếm sản phẩm, tạo đơn hàng và trả lời các câu hỏi."
	chitchatDefault = "Tôi chuyên hỗ trợ về sản phẩm của cửa hàng. Bạn muốn tìm hiểu sản phẩm nào, hay cần hỗ trợ đặt hàng?"
)

func (s *shopTools) chitchat(_ context.Context, args map[string]any) (any, error) {
	return map[string]string{"response": chitchatReply(StringArg(args, "message"))}, nil
}

func chitchatReply(message string) string {
	if message == "" {
		return chitchatEmpty
	}
	for _, topic := range chitchatReplies {
		for _, kw := range topic.keywords {
			if vntext.HasKeyword(message, kw) {
				return topic.reply
			}
		}
	}
	return chitchatDefault
}
