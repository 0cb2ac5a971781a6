// Package evaluation 汇总用户的全部面试会话，请模型按固定 JSON 结构打分并严格校验结果。
package evaluation

import (
	"time"

	"github.com/shopspring/decimal"
)

// 分数范围
const (
	MinScore = 0
	MaxScore = 10
)

// Scores 四个维度的分数
type Scores struct {
	ClarityOfThought float64 `json:"Clarity_of_Thought"`
	Relevance        float64 `json:"Relevance"`
	DepthOfKnowledge float64 `json:"Depth_of_Knowledge"`
	Engagement       float64 `json:"Engagement"`
}

// SessionScores 单个会话的评分
type SessionScores struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	Scores      Scores `json:"scores"`
}

// Summary 综合评价
type Summary struct {
	Strengths          string `json:"strengths"`
	AreasOfImprovement string `json:"areas_of_improvement"`
}

// EvaluationReport 表现报告，每次请求重新生成，不持久化
type EvaluationReport struct {
	UserID      string          `json:"user_id"`
	Sessions    []SessionScores `json:"sessions"`
	Overall     Scores          `json:"overall"`
	Summary     Summary         `json:"summary"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// averageScores 按维度求平均并保留两位小数，没有会话时全为 0
func averageScores(sessions []SessionScores) Scores {
	if len(sessions) == 0 {
		return Scores{}
	}
	var clarity, relevance, depth, engagement decimal.Decimal
	for _, s := range sessions {
		clarity = clarity.Add(decimal.NewFromFloat(s.Scores.ClarityOfThought))
		relevance = relevance.Add(decimal.NewFromFloat(s.Scores.Relevance))
		depth = depth.Add(decimal.NewFromFloat(s.Scores.DepthOfKnowledge))
		engagement = engagement.Add(decimal.NewFromFloat(s.Scores.Engagement))
	}
	n := decimal.NewFromInt(int64(len(sessions)))
	avg := func(sum decimal.Decimal) float64 {
		return sum.DivRound(n, 2).InexactFloat64()
	}
	return Scores{
		ClarityOfThought: avg(clarity),
		Relevance:        avg(relevance),
		DepthOfKnowledge: avg(depth),
		Engagement:       avg(engagement),
	}
}
