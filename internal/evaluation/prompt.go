package evaluation

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

const evaluatorPrompt = `You are a professional job interviewer specializing in conducting structured and conversational interviews.
Analyze the conversation history provided by the user to evaluate the candidate's performance in the interview.

Focus on evaluating the candidate's performance in the following areas for each session:
1. Clarity of Thought: How clearly the candidate expresses their ideas.
2. Relevance: How well the candidate's responses align with the questions asked.
3. Depth of Knowledge: The depth and accuracy of the information provided by the candidate.
4. Engagement: How engaged and responsive the candidate is throughout the conversation.

Every score is a number between %d and %d. Lines starting with "context:" hold the job description and resume, not an answer.
Use each session_id exactly as it appears in the "Session <name> (ID: <id>)" header.

Return only a JSON object (no other text, no markdown) that conforms to this JSON Schema:
%s`

// BuildPrompt 评估请求的消息：系统提示词附带输出 schema，用户消息为会话记录
func BuildPrompt(transcript string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(evaluatorPrompt, MinScore, MaxScore, OutputSchema())),
		schema.UserMessage("Chat History:\n" + transcript),
	}
}
