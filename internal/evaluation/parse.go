package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"interview-coach/internal/apperr"
)

// ParseReport 把模型输出解析为报告。known 是该用户的会话 ID 到名称的映射。
// 解析或校验失败时返回 *apperr.SchemaValidationError，不会返回部分结果。
func ParseReport(raw string, known map[string]string) (*EvaluationReport, error) {
	fail := func(reason string, err error) error {
		return &apperr.SchemaValidationError{Reason: reason, Raw: raw, Err: err}
	}

	text := strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")
	text = stripCodeFence(text)
	jsonStr := extractJSONObject(text)
	if jsonStr == "" {
		return nil, fail("输出中没有 JSON 对象", nil)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var out modelReport
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		// 模型常在字符串里输出未转义的双引号，修复后再试一次
		if retryErr := json.Unmarshal([]byte(sanitizeJSON(jsonStr)), &out); retryErr != nil {
			return nil, fail("JSON 解析失败", err)
		}
	}

	report, err := validate(&out, known)
	if err != nil {
		return nil, fail(err.Error(), nil)
	}
	return report, nil
}

func validate(out *modelReport, known map[string]string) (*EvaluationReport, error) {
	switch {
	case out.Sessions == nil:
		return nil, fmt.Errorf("缺少字段 sessions")
	case out.Overall == nil:
		return nil, fmt.Errorf("缺少字段 overall")
	case out.Summary == nil:
		return nil, fmt.Errorf("缺少字段 summary")
	case out.Summary.Strengths == nil || out.Summary.AreasOfImprovement == nil:
		return nil, fmt.Errorf("summary 缺少 strengths 或 areas_of_improvement")
	}

	seen := make(map[string]bool, len(*out.Sessions))
	sessions := make([]SessionScores, 0, len(*out.Sessions))
	for i, s := range *out.Sessions {
		id := strings.TrimSpace(s.SessionID)
		name, ok := known[id]
		switch {
		case id == "":
			return nil, fmt.Errorf("sessions[%d] 缺少 session_id", i)
		case !ok:
			return nil, fmt.Errorf("sessions[%d] 的 session_id %q 不属于该用户", i, id)
		case seen[id]:
			return nil, fmt.Errorf("sessions[%d] 的 session_id %q 重复", i, id)
		}
		seen[id] = true

		scores, err := checkScores(fmt.Sprintf("sessions[%d].scores", i), s.Scores)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, SessionScores{SessionID: id, SessionName: name, Scores: scores})
	}

	return &EvaluationReport{
		Sessions: sessions,
		// overall 由本地按会话分数重新计算，不采用模型给出的平均值
		Overall: averageScores(sessions),
		Summary: Summary{
			Strengths:          strings.TrimSpace(*out.Summary.Strengths),
			AreasOfImprovement: strings.TrimSpace(*out.Summary.AreasOfImprovement),
		},
	}, nil
}

func checkScores(path string, s *modelScores) (Scores, error) {
	if s == nil {
		return Scores{}, fmt.Errorf("缺少字段 %s", path)
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{"Clarity_of_Thought", s.ClarityOfThought},
		{"Relevance", s.Relevance},
		{"Depth_of_Knowledge", s.DepthOfKnowledge},
		{"Engagement", s.Engagement},
	}
	for _, f := range fields {
		if f.v == nil {
			return Scores{}, fmt.Errorf("缺少字段 %s.%s", path, f.name)
		}
		if *f.v < MinScore || *f.v > MaxScore {
			return Scores{}, fmt.Errorf("%s.%s=%v 超出 [%d,%d]", path, f.name, *f.v, MinScore, MaxScore)
		}
	}
	return Scores{
		ClarityOfThought: *s.ClarityOfThought,
		Relevance:        *s.Relevance,
		DepthOfKnowledge: *s.DepthOfKnowledge,
		Engagement:       *s.Engagement,
	}, nil
}

// stripCodeFence 去掉 ```json ... ``` 包裹
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// extractJSONObject 返回第一个完整的 JSON 对象，跳过字符串中的花括号
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	level := 0
	inStr, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 把字符串内部未转义的双引号改写为 \"。
// 一个 " 后面的第一个非空白字符是 : , ] } 之一时才视为字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString("\\\"")
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}
	return b.String()
}
