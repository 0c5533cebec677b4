package storage

import (
	"fmt"
	"time"

	"github.com/HosamN-ALI/DeepGaza/config"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	DB  *gorm.DB
	Log *logrus.Logger
)

// InitDB 根据应用配置初始化数据库连接，并幂等地建表。
func InitDB(logger *logrus.Logger) (*gorm.DB, error) {
	Log = logger
	var err error
	var dsn string

	dbType := config.AppSettings.DBType
	Log.Infof("正在初始化数据库，类型: %s", dbType)

	// GORM 日志配置
	gormLogLevel := gormlogger.Silent
	if Log.GetLevel() >= logrus.DebugLevel {
		gormLogLevel = gormlogger.Info
	}
	newLogger := gormlogger.New(
		Log, // io writer
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{
		Logger: newLogger,
	}

	switch dbType {
	case "sqlite":
		dsn = config.AppSettings.DBConnectionStringSqlite
		DB, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	case "mysql":
		// 从独立配置项构建 DSN
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			config.AppSettings.MySQLUser,
			config.AppSettings.MySQLPassword,
			config.AppSettings.MySQLHost,
			config.AppSettings.MySQLPort,
			config.AppSettings.MySQLDBName,
		)
		DB, err = gorm.Open(mysql.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", dbType)
	}

	if err != nil {
		Log.Errorf("连接到数据库 %s 失败: %v", dbType, err)
		return nil, err
	}

	Log.Info("数据库连接成功。")

	// 自动迁移数据库模式
	if err := migrateSchema(DB); err != nil {
		return nil, err
	}

	return DB, nil
}

func migrateSchema(db *gorm.DB) error {
	Log.Info("正在执行数据库模式自动迁移...")
	err := db.AutoMigrate(
		&User{},
		&BlacklistEntry{},
		&APIKey{},
		&APIConfiguration{},
		&ChatSession{},
	)
	if err != nil {
		Log.Errorf("数据库模式迁移失败: %v", err)
		return err
	}
	Log.Info("数据库模式迁移完成。")
	return nil
}

// SeedDefaults 写入启动时需要存在的基础数据：管理员账户、默认 API 配置、
// 以及环境变量中密钥对应的配额行。全部操作幂等，可重复执行。
func SeedDefaults(db *gorm.DB, users *UserStore) error {
	cfg := config.AppSettings

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if err := users.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("初始化管理员账户失败: %w", err)
		}
	} else {
		Log.Warn("ADMIN_USERNAME/ADMIN_PASSWORD 未完整配置，跳过管理员账户初始化。")
	}

	// 默认的上游 API 配置，UI 侧只读。
	defaultConfig := APIConfiguration{
		ConfigName: "default",
		BaseURL:    cfg.DeepSeekBaseURL,
		APIKey:     cfg.DeepSeekAPIKey,
		ModelName:  cfg.ModelName,
		IsActive:   true,
	}
	result := db.Where(APIConfiguration{ConfigName: "default"}).FirstOrCreate(&defaultConfig)
	if result.Error != nil {
		return fmt.Errorf("初始化默认 API 配置失败: %w", result.Error)
	}

	// 环境变量中的密钥对应的配额行。密钥只能由系统管理员通过 .env 设置。
	if cfg.DeepSeekAPIKey != "" {
		keyRow := APIKey{
			Key:         cfg.DeepSeekAPIKey,
			Username:    cfg.AdminUsername,
			TotalTokens: config.DefaultKeyTotalUnits,
			IsActive:    true,
		}
		result := db.Where(APIKey{Key: cfg.DeepSeekAPIKey}).FirstOrCreate(&keyRow)
		if result.Error != nil {
			return fmt.Errorf("初始化默认 API 密钥记录失败: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			Log.Infof("已为配置的 API 密钥创建配额记录，初始配额 %d units。", config.DefaultKeyTotalUnits)
		}
	} else {
		Log.Error("严重配置错误: DEEPSEEK_API_KEY 环境变量未设置或为空。聊天功能将不可用。")
	}

	return nil
}
