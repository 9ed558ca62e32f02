package prompts

import "fmt"

// EmptyResponseNudge is sent as a user message when the model answers
// with neither content nor a tool call.
const EmptyResponseNudge = "Respond with a real output."

// EmptyResponseFallback is shown when the model stays silent after
// being nudged.
const EmptyResponseFallback = "Xin lỗi, tôi chưa thể trả lời yêu cầu này. Bạn vui lòng thử lại nhé."

// MaxStepsApology ends a turn that ran too many assistant steps.
const MaxStepsApology = "Xin lỗi, yêu cầu này cần quá nhiều bước xử lý. Bạn có thể nói rõ hơn hoặc chia nhỏ yêu cầu được không?"

// TransientApology is shown when the model itself cannot be reached.
const TransientApology = "Hệ thống đang gặp sự cố tạm thời, vui lòng thử lại sau."

// ImageAttached marks a user message that came with an uploaded picture.
func ImageAttached(imageID string) string {
	return fmt.Sprintf("[image_id: %s]", imageID)
}
