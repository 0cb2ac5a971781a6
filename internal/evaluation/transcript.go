package evaluation

import (
	"strings"

	"interview-coach/internal/store"
)

// SessionHistory 一个会话及其按时间排列的消息
type SessionHistory struct {
	Session  store.Session
	Messages []store.Message
}

// RenderTranscript 把多个会话渲染为纯文本，相同输入总是得到相同输出。
//
//	Session <name> (ID: <id>)
//	context: <开场内容>
//	assistant: ...
//	user: ...
//
// 会话之间用空行分隔。
func RenderTranscript(histories []SessionHistory) string {
	var b strings.Builder
	for i, h := range histories {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Session ")
		b.WriteString(h.Session.Name)
		b.WriteString(" (ID: ")
		b.WriteString(h.Session.ID)
		b.WriteString(")")
		for _, m := range h.Messages {
			b.WriteByte('\n')
			b.WriteString(roleLabel(m))
			b.WriteString(": ")
			b.WriteString(m.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

func roleLabel(m store.Message) string {
	if m.Kind == store.KindFraming {
		return "context"
	}
	return string(m.Role)
}
