// Package types HTTP 接口的请求和响应结构
package types

import "interview-coach/internal/store"

// StartInterviewRequest 用文本形式的简历开始面试
type StartInterviewRequest struct {
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id,omitempty"`
	SessionName    string `json:"session_name,omitempty"`
	JobDescription string `json:"job_description"`
	ResumeText     string `json:"resume_text"`
}

// ContinueInterviewRequest 候选人的回答
type ContinueInterviewRequest struct {
	Message string `json:"message"`
}

type CreateSessionRequest struct {
	UserID      string `json:"user_id"`
	SessionName string `json:"session_name"`
}

type RenameSessionRequest struct {
	SessionName string `json:"session_name"`
}

// TurnResponse 一轮对话的响应。Degraded 为 true 时 Reply 是兜底文本，Error 说明原因。
type TurnResponse struct {
	SessionID  string `json:"session_id"`
	Reply      string `json:"reply"`
	Degraded   bool   `json:"degraded"`
	Turn       int    `json:"turn"`
	Concluding bool   `json:"concluding"`
	Error      string `json:"error,omitempty"`
	// ResumeObject 简历原件的归档位置，未启用对象存储时为空
	ResumeObject string `json:"resume_object,omitempty"`
}

type SessionListResponse struct {
	UserID   string          `json:"user_id"`
	Sessions []store.Session `json:"sessions"`
}

type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []store.Message `json:"messages"`
}

// ErrorResponse 统一的错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	// Raw 模型的原始输出，仅在 error_type=schema_validation 时返回
	Raw string `json:"raw,omitempty"`
}
