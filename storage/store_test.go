package storage

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 在临时目录中打开一个独立的 sqlite 数据库并完成建表。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &BlacklistEntry{}, &APIKey{}, &APIConfiguration{}, &ChatSession{}); err != nil {
		t.Fatalf("建表失败: %v", err)
	}
	return db
}
