package interview

import (
	"fmt"
	"strings"
)

// DefaultDurationMinutes 提示词中建议的面试时长
const DefaultDurationMinutes = 5

const systemPromptTemplate = `You are a professional job interviewer specializing in conducting structured and conversational interviews.
Use the provided job description and candidate's resume to tailor your questions.
Ask one question at a time and wait for the candidate's response before proceeding.
Use the candidate's answers to inform your next question.
Maintain a friendly and professional tone throughout the interview.
Conclude the interview after approximately %d minutes and provide constructive feedback on the candidate's strengths and areas for improvement.
Begin the interview by giving the summary of the resume and job description first and then ask the candidate to introduce themselves.`

const closingInstruction = `The candidate has just given their final answer. Do not ask any further questions. Conclude the interview now with constructive feedback on the candidate's strengths and areas for improvement.`

// SystemPrompt 面试官系统提示词。concluding 为 true 时要求模型在本轮结束面试。
func SystemPrompt(durationMinutes int, concluding bool) string {
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	p := fmt.Sprintf(systemPromptTemplate, durationMinutes)
	if concluding {
		p += "\n" + closingInstruction
	}
	return p
}

// FramingContent 开场消息，保存为会话的第一条消息，回放时无需再提供岗位描述和简历
func FramingContent(jobDescription, resume string) string {
	return "Job Description: " + strings.TrimSpace(jobDescription) + "\n\nCandidate's Resume: " + strings.TrimSpace(resume)
}
