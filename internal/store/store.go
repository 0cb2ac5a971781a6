// Package store 持久化面试会话和对话消息。
// 消息按写入顺序保存，写入后不可修改，是重建面试上下文的唯一来源。
package store

import (
	"context"
	"strings"
	"time"
)

// Role 消息发送方
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind 区分面试开场上下文和普通对话轮次
type Kind string

const (
	// KindFraming 开场时写入的岗位描述和简历，每个会话只有一条且位于最前
	KindFraming Kind = "framing"
	// KindTurn 面试中的一问一答
	KindTurn Kind = "turn"
)

// NormalizeRole 兼容历史数据中的发送方写法，例如旧版本把模型回复记为 "Ai"
func NormalizeRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human", "candidate":
		return RoleUser, true
	case "assistant", "ai", "bot", "interviewer":
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Session 面试会话
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"session_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message 会话中的一条消息
type Message struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 会话存储。所有错误都以 apperr 的类别返回，调用方不应吞掉。
type Store interface {
	CreateSession(ctx context.Context, userID, name string) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	RenameSession(ctx context.Context, sessionID, name string) (*Session, error)
	// DeleteSession 在同一事务中删除会话及其全部消息
	DeleteSession(ctx context.Context, sessionID string) error
	// ListSessions 按创建时间倒序
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	AppendMessage(ctx context.Context, sessionID string, role Role, kind Kind, content string) (*Message, error)
	// ListMessages 按写入顺序返回，会话不存在时返回空列表
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
}
