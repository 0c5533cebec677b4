package storage

import (
	"time"
)

// User 定义了存储在数据库中的用户账户的结构。
type User struct {
	ID        uint      `gorm:"primarykey"`
	Username  string    `gorm:"type:varchar(255);uniqueIndex;not null"` // 用户名，必须唯一且非空
	Password  string    `gorm:"column:password_hash;not null"`          // bcrypt 哈希后的密码
	IsAdmin   bool      `gorm:"default:false"`                          // 管理员标志
	CreatedAt time.Time // 注册时间
}

// TableName 自定义 User 模型的表名
func (User) TableName() string {
	return "users"
}

// BlacklistEntry 黑名单条目。命中黑名单的用户名无法登录和注册。
type BlacklistEntry struct {
	ID        uint   `gorm:"primarykey"`
	Username  string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Reason    string // 拉黑原因
	CreatedAt time.Time
}

func (BlacklistEntry) TableName() string {
	return "blacklist"
}

// APIKey 定义了一条 API 密钥及其配额账本。
// UsedTokens 在流式响应过程中单调递增，绝不回退。
type APIKey struct {
	ID          uint      `gorm:"primarykey"`
	Key         string    `gorm:"type:varchar(255);uniqueIndex;not null"` // API 密钥字符串
	Username    string    `gorm:"type:varchar(255)"`                      // 密钥归属的用户名
	UsedTokens  int64     `gorm:"default:0"`                              // 已消耗的 usage unit
	TotalTokens int64     `gorm:"default:0"`                              // 配额上限
	IsActive    bool      `gorm:"default:true"`
	CreatedAt   time.Time
}

func (APIKey) TableName() string {
	return "api_keys"
}

// APIConfiguration 上游 API 配置。约定同一时刻至多一条处于激活状态，UI 侧只读。
type APIConfiguration struct {
	ID         uint      `gorm:"primarykey"`
	ConfigName string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	BaseURL    string    `gorm:"type:varchar(512)"`
	APIKey     string    `gorm:"type:varchar(255)"`
	ModelName  string    `gorm:"type:varchar(255);default:'deepseek-reasoner'"`
	IsActive   bool      `gorm:"default:false"`
	CreatedAt  time.Time
}

func (APIConfiguration) TableName() string {
	return "api_configurations"
}

// ChatSession 一条持久化的聊天会话。
// SessionData 是整段文稿 ([]models.Message) 的 JSON 序列化结果，
// 每次助手回复完成后整体重写。
type ChatSession struct {
	ID          uint      `gorm:"primarykey"`
	Username    string    `gorm:"type:varchar(255);index;not null"`
	SessionID   string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	SessionName string    `gorm:"type:varchar(255)"`
	SessionData string    `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ChatSession) TableName() string {
	return "history"
}
