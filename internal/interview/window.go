package interview

import (
	"unicode/utf8"

	"interview-coach/internal/store"

	"github.com/cloudwego/eino/schema"
)

// 每条消息在 chat 格式中的固定开销 (角色标记等)
const perMessageTokens = 4

// BuildWindow 由系统提示词和已保存的消息构造发送给模型的上下文：
// [system] + 历史消息按保存顺序排列。历史中第一条是开场消息，最后一条是本轮的用户输入。
// 不会调整顺序、去重或丢弃消息。
func BuildWindow(systemPrompt string, history []store.Message) []*schema.Message {
	window := make([]*schema.Message, 0, len(history)+1)
	window = append(window, schema.SystemMessage(systemPrompt))
	for _, m := range history {
		window = append(window, toSchemaMessage(m))
	}
	return window
}

func toSchemaMessage(m store.Message) *schema.Message {
	if m.Role == store.RoleAssistant {
		return schema.AssistantMessage(m.Content, nil)
	}
	return schema.UserMessage(m.Content)
}

// EstimateTokens 粗略估算 token 数，按 4 个字符 1 个 token 计算
func EstimateTokens(systemPrompt string, history []store.Message) int {
	total := utf8.RuneCountInString(systemPrompt)/4 + perMessageTokens
	for _, m := range history {
		total += utf8.RuneCountInString(m.Content)/4 + perMessageTokens
	}
	return total
}

// TruncateHistory 在估算 token 超过 budget 时从最早的轮次开始整轮丢弃。
// 开场消息和最后一条消息 (本轮用户输入) 始终保留。budget<=0 表示不截断。
// 返回截断后的历史和被丢弃的消息条数。
func TruncateHistory(systemPrompt string, history []store.Message, budget int) ([]store.Message, int) {
	if budget <= 0 || len(history) < 3 || EstimateTokens(systemPrompt, history) <= budget {
		return history, 0
	}

	head := 0
	if history[0].Kind == store.KindFraming {
		head = 1
	}
	last := history[len(history)-1]
	middle := history[head : len(history)-1]
	units := splitTurns(middle)

	dropped := 0
	for len(units) > 0 {
		candidate := assemble(history[:head], units, last)
		if EstimateTokens(systemPrompt, candidate) <= budget {
			return candidate, dropped
		}
		dropped += len(units[0])
		units = units[1:]
	}
	return assemble(history[:head], nil, last), dropped
}

// splitTurns 把消息分成轮次：每个轮次以用户消息开头，包含其后的助手回复。
// 开头没有用户消息的助手回复 (对开场消息的回复) 单独成为一轮。
func splitTurns(msgs []store.Message) [][]store.Message {
	var units [][]store.Message
	for i, m := range msgs {
		if i == 0 || m.Role == store.RoleUser {
			units = append(units, []store.Message{m})
			continue
		}
		units[len(units)-1] = append(units[len(units)-1], m)
	}
	return units
}

func assemble(head []store.Message, units [][]store.Message, last store.Message) []store.Message {
	out := make([]store.Message, 0, len(head)+len(units)*2+1)
	out = append(out, head...)
	for _, u := range units {
		out = append(out, u...)
	}
	return append(out, last)
}
