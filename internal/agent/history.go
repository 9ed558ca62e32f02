package agent

import (
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/prompts"
)

// RecentExchanges returns up to n user/assistant exchanges that precede
// the latest user message, oldest first. Tool traffic and tool-call-only
// assistant messages are left out. The window is recomputed from the
// thread on every step and never stored.
func RecentExchanges(msgs []llm.Message, n int) []prompts.Exchange {
	if n <= 0 {
		return nil
	}
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			last = i
			break
		}
	}
	if last <= 0 {
		return nil
	}

	var out []prompts.Exchange
	for _, m := range msgs[:last] {
		switch m.Role {
		case "user":
			out = append(out, prompts.Exchange{User: m.Content})
		case "assistant":
			if m.Content == "" || len(out) == 0 {
				continue
			}
			ex := &out[len(out)-1]
			if ex.Assistant != "" {
				ex.Assistant += "\n"
			}
			ex.Assistant += m.Content
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
