package models

import "time"

// ChatSession 面试会话表
type ChatSession struct {
	SessionID   string    `gorm:"column:session_id;type:char(36);primaryKey"`
	UserID      string    `gorm:"type:varchar(64);not null;index:idx_chat_sessions_user_created,priority:1"`
	SessionName string    `gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `gorm:"not null;index:idx_chat_sessions_user_created,priority:2,sort:desc"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 会话消息表，写入后不再修改。
// ID 自增，作为同一时间戳下的插入顺序。
type ChatMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"type:char(36);not null;index:idx_chat_messages_session_order,priority:1"`
	Role      string    `gorm:"type:varchar(16);not null"` // user / assistant
	Kind      string    `gorm:"type:varchar(16);not null"` // framing / turn
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_messages_session_order,priority:2"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
