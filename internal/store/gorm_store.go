package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
)

// GormStore 基于 GORM 的会话存储，MySQL 与 SQLite 通用
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore 创建存储，表结构由 storage.NewDatabase 迁移
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession 创建会话，ID 使用 UUIDv7 以保持时间有序
func (s *GormStore) CreateSession(ctx context.Context, userID, name string) (*Session, error) {
	const op = "store.CreateSession"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.InvalidInput(op, "user_id 不能为空")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput(op, "session_name 不能为空")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Store(op, fmt.Errorf("生成UUIDv7失败: %w", err))
	}

	now := s.now()
	row := models.ChatSession{
		SessionID:   id.String(),
		UserID:      userID,
		SessionName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, apperr.Store(op, err)
	}
	return toSession(&row), nil
}

// GetSession 查询会话，不存在时返回 ErrSessionNotFound
func (s *GormStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	const op = "store.GetSession"
	row, err := s.findSession(s.db.WithContext(ctx), op, sessionID)
	if err != nil {
		return nil, err
	}
	return toSession(row), nil
}

func (s *GormStore) findSession(db *gorm.DB, op, sessionID string) (*models.ChatSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.InvalidInput(op, "session_id 不能为空")
	}
	var row models.ChatSession
	err := db.Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.SessionNotFound(op, sessionID)
	}
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	return &row, nil
}

// RenameSession 只修改名称和更新时间，创建时间保持不变
func (s *GormStore) RenameSession(ctx context.Context, sessionID, name string) (*Session, error) {
	const op = "store.RenameSession"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput(op, "session_name 不能为空")
	}

	var out *Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.findSession(tx, op, sessionID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.Model(&models.ChatSession{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{"session_name": name, "updated_at": now}).Error; err != nil {
			return apperr.Store(op, err)
		}
		row.SessionName = name
		row.UpdatedAt = now
		out = toSession(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession 删除会话和消息。表之间没有外键约束，所以显式在一个事务里删除。
func (s *GormStore) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "store.DeleteSession"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findSession(tx, op, sessionID); err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error; err != nil {
			return apperr.Store(op, err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ChatSession{}).Error; err != nil {
			return apperr.Store(op, err)
		}
		return nil
	})
}

// ListSessions 返回用户的全部会话，最新的在前
func (s *GormStore) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	const op = "store.ListSessions"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.InvalidInput(op, "user_id 不能为空")
	}

	var rows []models.ChatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("session_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Store(op, err)
	}

	out := make([]Session, 0, len(rows))
	for i := range rows {
		out = append(out, *toSession(&rows[i]))
	}
	return out, nil
}

// AppendMessage 追加一条消息。created_at 不早于会话中最后一条消息，
// 保证按 (created_at, id) 排序的结果与写入顺序一致。
func (s *GormStore) AppendMessage(ctx context.Context, sessionID string, role Role, kind Kind, content string) (*Message, error) {
	const op = "store.AppendMessage"
	if role != RoleUser && role != RoleAssistant {
		return nil, apperr.InvalidInput(op, fmt.Sprintf("未知的消息角色: %q", role))
	}
	if kind != KindFraming && kind != KindTurn {
		return nil, apperr.InvalidInput(op, fmt.Sprintf("未知的消息类型: %q", kind))
	}

	var row models.ChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findSession(tx, op, sessionID); err != nil {
			return err
		}

		createdAt := s.now()
		var last models.ChatMessage
		err := tx.Where("session_id = ?", sessionID).
			Order("created_at DESC").Order("id DESC").
			Limit(1).Find(&last).Error
		if err != nil {
			return apperr.Store(op, err)
		}
		if last.ID != 0 && createdAt.Before(last.CreatedAt) {
			createdAt = last.CreatedAt
		}

		row = models.ChatMessage{
			SessionID: sessionID,
			Role:      string(role),
			Kind:      string(kind),
			Content:   content,
			CreatedAt: createdAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return apperr.Store(op, err)
		}
		if err := tx.Model(&models.ChatSession{}).
			Where("session_id = ?", sessionID).
			Update("updated_at", createdAt).Error; err != nil {
			return apperr.Store(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toMessage(&row), nil
}

// ListMessages 按写入顺序返回会话的全部消息
func (s *GormStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	const op = "store.ListMessages"
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.InvalidInput(op, "session_id 不能为空")
	}

	var rows []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Store(op, err)
	}

	out := make([]Message, 0, len(rows))
	for i := range rows {
		out = append(out, *toMessage(&rows[i]))
	}
	return out, nil
}

func toSession(row *models.ChatSession) *Session {
	return &Session{
		ID:        row.SessionID,
		UserID:    row.UserID,
		Name:      row.SessionName,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toMessage(row *models.ChatMessage) *Message {
	role, ok := NormalizeRole(row.Role)
	if !ok {
		role = Role(row.Role)
	}
	return &Message{
		ID:        row.ID,
		SessionID: row.SessionID,
		Role:      role,
		Kind:      Kind(row.Kind),
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}
}
