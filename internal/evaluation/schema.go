package evaluation

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// 以下类型描述模型必须返回的 JSON。字段用指针以区分缺失和零值。

type modelScores struct {
	ClarityOfThought *float64 `json:"Clarity_of_Thought" jsonschema:"minimum=0,maximum=10,description=How clearly the candidate expresses ideas"`
	Relevance        *float64 `json:"Relevance" jsonschema:"minimum=0,maximum=10,description=How well answers align with the questions"`
	DepthOfKnowledge *float64 `json:"Depth_of_Knowledge" jsonschema:"minimum=0,maximum=10,description=Depth and accuracy of the information provided"`
	Engagement       *float64 `json:"Engagement" jsonschema:"minimum=0,maximum=10,description=How engaged and responsive the candidate is"`
}

type modelSession struct {
	SessionID   string       `json:"session_id" jsonschema:"description=Session ID exactly as given in the chat history"`
	SessionName string       `json:"session_name"`
	Scores      *modelScores `json:"scores"`
}

type modelSummary struct {
	Strengths          *string `json:"strengths" jsonschema:"description=Key strengths"`
	AreasOfImprovement *string `json:"areas_of_improvement" jsonschema:"description=Key areas for improvement"`
}

type modelReport struct {
	Sessions *[]modelSession `json:"sessions"`
	Overall  *modelScores    `json:"overall"`
	Summary  *modelSummary   `json:"summary"`
}

var (
	schemaOnce sync.Once
	schemaText string
)

// OutputSchema 模型输出结构的 JSON Schema，嵌入到评估提示词中
func OutputSchema() string {
	schemaOnce.Do(func() {
		r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true, AllowAdditionalProperties: true}
		s := r.Reflect(&modelReport{})
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			// 结构体是静态的，反射失败属于编程错误
			panic("生成评估输出 schema 失败: " + err.Error())
		}
		schemaText = string(data)
	})
	return schemaText
}
