package storage

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found in the database")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrBlacklisted        = errors.New("username is blacklisted")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAlreadyBlacklisted = errors.New("username is already blacklisted")
	ErrNotBlacklisted     = errors.New("username is not blacklisted")
)

// UserStore 提供了用户账户、黑名单相关的所有数据库操作。
type UserStore struct {
	db *gorm.DB
}

// NewUserStore 创建一个新的 UserStore 实例。
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// HashPassword 使用 bcrypt 对明文密码做哈希。
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// IsBlacklisted 检查用户名是否在黑名单中。
func (s *UserStore) IsBlacklisted(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&BlacklistEntry{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Authenticate 验证用户名和密码。
// 黑名单优先：被拉黑的用户名即使密码正确也一律拒绝。
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	blacklisted, err := s.IsBlacklisted(username)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, ErrBlacklisted
	}

	var user User
	result := s.db.Where("username = ?", username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, result.Error
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Register 注册新账户。用户名已被占用或在黑名单中时失败。
func (s *UserStore) Register(username, password string) (*User, error) {
	blacklisted, err := s.IsBlacklisted(username)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, ErrBlacklisted
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := User{Username: username, Password: hashed}
	result := s.db.Where(User{Username: username}).Attrs(user).FirstOrCreate(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrUsernameTaken
	}
	return &user, nil
}

// EnsureAdmin 写入（或更新）管理员账户。每次启动时用环境变量中的凭据覆盖。
func (s *UserStore) EnsureAdmin(username, password string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	var user User
	result := s.db.Where(User{Username: username}).
		Attrs(User{Username: username, Password: hashed, IsAdmin: true}).
		FirstOrCreate(&user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 账户已存在，同步密码和管理员标志。
		return s.db.Model(&user).Updates(map[string]interface{}{
			"password_hash": hashed,
			"is_admin":      true,
		}).Error
	}
	return nil
}

// GetByID 通过主键获取用户。
func (s *UserStore) GetByID(id uint) (*User, error) {
	var user User
	result := s.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// ListUsers 返回所有用户账户。
func (s *UserStore) ListUsers() ([]*User, error) {
	var users []*User
	if err := s.db.Order("created_at asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SetAdmin 切换指定用户的管理员标志。
func (s *UserStore) SetAdmin(id uint, isAdmin bool) error {
	result := s.db.Model(&User{}).Where("id = ?", id).Update("is_admin", isAdmin)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser 删除用户账户，并级联删除该用户名下的 API 密钥记录。
// 聊天会话故意不删除：孤儿会话仍可按 session id 查到。
func (s *UserStore) DeleteUser(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var user User
		result := tx.First(&user, id)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return result.Error
		}
		if err := tx.Where("username = ?", user.Username).Delete(&APIKey{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

// AddToBlacklist 将用户名加入黑名单。重复添加报错。
func (s *UserStore) AddToBlacklist(username, reason string) error {
	entry := BlacklistEntry{Username: username, Reason: reason}
	result := s.db.Where(BlacklistEntry{Username: username}).Attrs(entry).FirstOrCreate(&entry)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyBlacklisted
	}
	return nil
}

// RemoveFromBlacklist 将用户名移出黑名单。
func (s *UserStore) RemoveFromBlacklist(username string) error {
	result := s.db.Where("username = ?", username).Delete(&BlacklistEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotBlacklisted
	}
	return nil
}

// ListBlacklist 返回所有黑名单条目。
func (s *UserStore) ListBlacklist() ([]*BlacklistEntry, error) {
	var entries []*BlacklistEntry
	if err := s.db.Order("created_at desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
