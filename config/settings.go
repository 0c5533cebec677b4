package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// --- 全局常量 ---
const (
	// 默认配置值
	DefaultPort              = "8000"
	DefaultLogLevel          = "info"
	DefaultGinMode           = "debug"
	DefaultDeepSeekBaseURL   = "https://api.deepseek.com/v1"
	DefaultModelName         = "deepseek-reasoner"
	DefaultMaxTokens         = 32768
	DefaultSearchEndpoint    = "https://google.serper.dev/search"
	DefaultRequestTimeoutSec = 300
	DefaultSearchTimeoutSec  = 10
	DefaultAdminUsername     = "admin"
	DefaultSessionSecretKey  = "deepgaza-insecure-default-session-key"
	DefaultDBType            = "sqlite"
	DefaultDBSqlitePath      = "app.db"
	DefaultMySQLHost         = "127.0.0.1"
	DefaultMySQLPort         = "3306"
	DefaultMySQLDBName       = "deepgaza"
	DefaultMySQLUser         = "root"
	DefaultUploadDir         = "uploads"

	// 默认 API 密钥的初始配额（usage unit 计）。
	DefaultKeyTotalUnits = 1000000
)

// Settings 存储应用配置。进程启动时读取一次，之后不再热加载。
type Settings struct {
	AdminUsername  string // 管理员用户名 (ADMIN_USERNAME)
	AdminPassword  string // 管理员密码 (ADMIN_PASSWORD)，入库前会做 bcrypt 哈希
	DeepSeekAPIKey string // 上游 LLM API 密钥 (DEEPSEEK_API_KEY)
	SearchAPIKey   string // serper.dev 搜索 API 密钥 (SEARCH_API_KEY)

	DeepSeekBaseURL string        // OpenAI 兼容端点的 base URL
	ModelName       string        // 聊天请求使用的模型
	MaxTokens       int           // 上游请求的 max_tokens
	SearchEndpoint  string        // 搜索服务端点
	RequestTimeout  time.Duration // 对上游 LLM 请求的整体超时
	SearchTimeout   time.Duration // 搜索请求超时

	Port             string
	LogLevel         string
	GinMode          string
	SessionSecretKey string
	UploadDir        string

	DBType                   string
	DBConnectionStringSqlite string
	MySQLHost                string
	MySQLPort                string
	MySQLDBName              string
	MySQLUser                string
	MySQLPassword            string
}

var (
	AppSettings Settings
	Log         *logrus.Logger // 由 main.go 注入
)

// Init 从环境变量（或 .env 文件）加载配置。
func Init(logger *logrus.Logger) {
	Log = logger
	_ = godotenv.Load()
	AppSettings = loadConfig()
}

func loadConfig() Settings {
	return Settings{
		AdminUsername:  getStringEnv("ADMIN_USERNAME", DefaultAdminUsername),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		DeepSeekAPIKey: os.Getenv("DEEPSEEK_API_KEY"),
		SearchAPIKey:   os.Getenv("SEARCH_API_KEY"),

		DeepSeekBaseURL: getStringEnv("DEEPSEEK_BASE_URL", DefaultDeepSeekBaseURL),
		ModelName:       getStringEnv("MODEL_NAME", DefaultModelName),
		MaxTokens:       getIntEnv("MAX_TOKENS", DefaultMaxTokens),
		SearchEndpoint:  getStringEnv("SEARCH_ENDPOINT", DefaultSearchEndpoint),
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT_SECONDS", DefaultRequestTimeoutSec),
		SearchTimeout:   getDurationEnv("SEARCH_TIMEOUT_SECONDS", DefaultSearchTimeoutSec),

		Port:             getStringEnv("PORT", DefaultPort),
		LogLevel:         getStringEnv("LOG_LEVEL", DefaultLogLevel),
		GinMode:          getStringEnv("GIN_MODE", DefaultGinMode),
		SessionSecretKey: getStringEnv("SESSION_SECRET_KEY", ""),
		UploadDir:        getStringEnv("UPLOAD_DIR", DefaultUploadDir),

		DBType:                   getStringEnv("DB_TYPE", DefaultDBType),
		DBConnectionStringSqlite: getStringEnv("DB_CONNECTION_STRING_SQLITE", DefaultDBSqlitePath),
		MySQLHost:                getStringEnv("MYSQL_HOST", DefaultMySQLHost),
		MySQLPort:                getStringEnv("MYSQL_PORT", DefaultMySQLPort),
		MySQLDBName:              getStringEnv("MYSQL_DBNAME", DefaultMySQLDBName),
		MySQLUser:                getStringEnv("MYSQL_USER", DefaultMySQLUser),
		MySQLPassword:            os.Getenv("MYSQL_PASSWORD"), // 密码可以为空
	}
}

func getStringEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationEnv(key string, defaultValueInSeconds int) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Duration(defaultValueInSeconds) * time.Second
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return time.Duration(defaultValueInSeconds) * time.Second
	}
	return time.Duration(value) * time.Second
}
