package storage

import (
	"encoding/json"
	"errors"

	"github.com/HosamN-ALI/DeepGaza/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("chat session not found in the database")

// DefaultSessionName 新建会话的默认显示名。
const DefaultSessionName = "New Chat"

// SessionStore 提供了 history 表（聊天会话）的所有数据库操作。
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore 创建一个新的 SessionStore 实例。
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create 为指定用户新建一条会话，分配新的 session id 和默认名称。
func (s *SessionStore) Create(username string, transcript []models.Message) (*ChatSession, error) {
	data, err := json.Marshal(transcript)
	if err != nil {
		return nil, err
	}
	session := ChatSession{
		Username:    username,
		SessionID:   uuid.NewString(),
		SessionName: DefaultSessionName,
		SessionData: string(data),
	}
	if err := s.db.Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Get 按 session id 查询会话。注意：不按用户名过滤——删除账户后留下的
// 孤儿会话仍然可以按 id 查到。归属校验由 handler 完成。
func (s *SessionStore) Get(sessionID string) (*ChatSession, error) {
	var session ChatSession
	result := s.db.Where("session_id = ?", sessionID).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

// SaveTranscript 用整段文稿重写会话内容，并刷新 updated_at。
// 每个助手回合结束后调用一次。
func (s *SessionStore) SaveTranscript(sessionID string, transcript []models.Message) error {
	data, err := json.Marshal(transcript)
	if err != nil {
		return err
	}
	result := s.db.Model(&ChatSession{}).Where("session_id = ?", sessionID).
		Update("session_data", string(data))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Rename 修改会话的显示名。
func (s *SessionStore) Rename(sessionID, name string) error {
	result := s.db.Model(&ChatSession{}).Where("session_id = ?", sessionID).
		Update("session_name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete 删除会话。
func (s *SessionStore) Delete(sessionID string) error {
	result := s.db.Where("session_id = ?", sessionID).Delete(&ChatSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListRecent 返回指定用户最近更新的 n 条会话，按 updated_at 倒序。
func (s *SessionStore) ListRecent(username string, n int) ([]*ChatSession, error) {
	var sessions []*ChatSession
	err := s.db.Where("username = ?", username).
		Order("updated_at desc").Limit(n).Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Transcript 反序列化会话文稿。
func (c *ChatSession) Transcript() ([]models.Message, error) {
	if c.SessionData == "" {
		return nil, nil
	}
	var messages []models.Message
	if err := json.Unmarshal([]byte(c.SessionData), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
