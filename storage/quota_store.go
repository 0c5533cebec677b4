package storage

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrKeyNotFound   = errors.New("API key not found in the database")
	ErrNegativeDelta = errors.New("usage delta must be non-negative")
)

// QuotaStore 维护 api_keys 表中每个密钥的配额账本。
// 注意：这里不做任何上限校验，配额预检由调用方（聊天 handler）在
// 发起请求前完成。并发请求之间没有原子的 check-then-reserve，这是
// 一个已知的正确性缺口。
type QuotaStore struct {
	db *gorm.DB
}

// NewQuotaStore 创建一个新的 QuotaStore 实例。
func NewQuotaStore(db *gorm.DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// CheckQuota 只读查询指定密钥的已用量和配额。
// 密钥不存在时返回 ErrKeyNotFound，由调用方决定如何处理
// （系统默认密钥缺行视为"放行"）。
func (s *QuotaStore) CheckQuota(key string) (used, total int64, err error) {
	var row APIKey
	result := s.db.Select("used_tokens", "total_tokens").Where("`key` = ?", key).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, 0, ErrKeyNotFound
		}
		return 0, 0, result.Error
	}
	return row.UsedTokens, row.TotalTokens, nil
}

// AddUsage 把 delta 累加到密钥的已用量上。delta 必须非负；已用量只增不减。
func (s *QuotaStore) AddUsage(key string, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	if delta == 0 {
		return nil
	}
	result := s.db.Model(&APIKey{}).Where("`key` = ?", key).
		Update("used_tokens", gorm.Expr("used_tokens + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// ListActiveKeys 返回所有激活状态的密钥记录，username 非空时按归属过滤。
// 供管理面板展示使用。
func (s *QuotaStore) ListActiveKeys(username string) ([]*APIKey, error) {
	query := s.db.Where("is_active = ?", true)
	if username != "" {
		query = query.Where("username = ?", username)
	}
	var keys []*APIKey
	if err := query.Order("created_at asc").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// ListConfigurations 返回所有上游 API 配置，供管理面板只读展示。
func (s *QuotaStore) ListConfigurations() ([]*APIConfiguration, error) {
	var configs []*APIConfiguration
	if err := s.db.Order("created_at asc").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}
