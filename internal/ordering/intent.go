// Package ordering turns a free-text create_order request into a verified
// catalog item, confirms it with the customer and commits the order.
package ordering

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/vntext"
)

// Intent is what a customer reply means for an order in progress.
type Intent int

// Intents, in the order they are checked.
const (
	IntentNone Intent = iota
	IntentChangeQuantity
	IntentCancel
	IntentConfirm
)

func (i Intent) String() string {
	switch i {
	case IntentChangeQuantity:
		return "change_quantity"
	case IntentCancel:
		return "cancel"
	case IntentConfirm:
		return "confirm"
	default:
		return "none"
	}
}

// intentKeywords is checked top to bottom. Cancel precedes confirm so
// "không mua" is not read as "mua".
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentChangeQuantity, []string{"thay đổi số lượng", "đổi số lượng"}},
	{IntentCancel, []string{"không mua", "hủy", "huỷ", "thôi"}},
	{IntentConfirm, []string{"xác nhận", "đồng ý", "đặt hàng", "mua", "ok"}},
}

// ClassifyReply returns the intent of a customer message.
func ClassifyReply(msg string) Intent {
	for _, row := range intentKeywords {
		for _, kw := range row.keywords {
			if vntext.HasKeyword(msg, kw) {
				return row.intent
			}
		}
	}
	return IntentNone
}

// ClassifyOrderReply is ClassifyReply for a thread with p verified. A
// confirmation that also names something other than p, such as "mua túi
// vải" while "Áo thun" is verified, is IntentNone: the customer is asking
// for a different product.
func ClassifyOrderReply(msg string, p *store.Product) Intent {
	intent := ClassifyReply(msg)
	if intent == IntentConfirm && p != nil && !confirmsOnly(msg, p.Name) {
		return IntentNone
	}
	return intent
}

// fillerWords can accompany a confirmation without naming a product.
var fillerWords = map[string]bool{
	"em": true, "anh": true, "chị": true, "mình": true, "tôi": true, "tớ": true,
	"bạn": true, "shop": true, "ơi": true, "cho": true, "giúp": true, "hộ": true,
	"nhé": true, "nha": true, "nhá": true, "nhe": true, "ạ": true, "à": true,
	"vâng": true, "dạ": true, "có": true, "được": true, "rồi": true, "luôn": true,
	"đi": true, "với": true, "là": true, "thì": true, "và": true,
	"sản": true, "phẩm": true, "món": true, "cái": true, "chiếc": true,
	"này": true, "đó": true, "ấy": true, "đấy": true,
}

// confirmsOnly reports whether msg holds nothing but confirmation
// keywords, a quantity, filler and words of productName.
func confirmsOnly(msg, productName string) bool {
	text := quantityRe.ReplaceAllString(vntext.Fold(msg), " ")
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	words = dropPhrases(words, confirmPhrases())

	name := map[string]bool{}
	for _, w := range strings.Fields(vntext.Fold(productName)) {
		name[w] = true
	}
	for _, w := range words {
		if fillerWords[w] || name[w] || isNumber(w) {
			continue
		}
		return false
	}
	return true
}

func confirmPhrases() [][]string {
	var out [][]string
	for _, row := range intentKeywords {
		if row.intent != IntentConfirm {
			continue
		}
		for _, kw := range row.keywords {
			out = append(out, strings.Fields(vntext.Fold(kw)))
		}
	}
	return out
}

// dropPhrases removes every occurrence of each word sequence.
func dropPhrases(words []string, phrases [][]string) []string {
	out := words[:0:0]
	for i := 0; i < len(words); {
		matched := 0
		for _, p := range phrases {
			if len(p) > matched && hasPrefixWords(words[i:], p) {
				matched = len(p)
			}
		}
		if matched > 0 {
			i += matched
			continue
		}
		out = append(out, words[i])
		i++
	}
	return out
}

func hasPrefixWords(words, prefix []string) bool {
	if len(prefix) > len(words) {
		return false
	}
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}

func isNumber(w string) bool {
	_, err := strconv.Atoi(w)
	return err == nil
}

var (
	quantityRe    = regexp.MustCompile(`số lượng.*?(\d+)`)
	newQuantityRe = regexp.MustCompile(`thành\s+(\d+)`)
)

// Quantity extracts N from a "số lượng N" phrase.
func Quantity(msg string) (int, bool) {
	return firstNumber(quantityRe, msg)
}

// NewQuantity extracts N from "thay đổi số lượng thành N".
func NewQuantity(msg string) (int, bool) {
	return firstNumber(newQuantityRe, msg)
}

func firstNumber(re *regexp.Regexp, msg string) (int, bool) {
	m := re.FindStringSubmatch(vntext.Fold(msg))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
