// main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/HosamN-ALI/DeepGaza/chatstream"
	"github.com/HosamN-ALI/DeepGaza/config"
	"github.com/HosamN-ALI/DeepGaza/fileparse"
	"github.com/HosamN-ALI/DeepGaza/handlers"
	"github.com/HosamN-ALI/DeepGaza/middleware"
	"github.com/HosamN-ALI/DeepGaza/search"
	"github.com/HosamN-ALI/DeepGaza/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

func main() {
	// 1. 初始化日志记录器
	log = logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	// 2. 加载应用程序配置
	config.Init(log)
	if level, err := logrus.ParseLevel(config.AppSettings.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("无效的 LOG_LEVEL 配置 '%s', 将使用默认 Info 级别。", config.AppSettings.LogLevel)
	}
	log.Infof("日志级别已设置为: %s", log.GetLevel().String())

	// 关键安全配置检查和警告
	if config.AppSettings.AdminPassword == "" {
		log.Error("严重警告: 管理员密码 (ADMIN_PASSWORD) 未设置或为空! 管理员账户将不会被初始化。")
	}
	if config.AppSettings.DeepSeekAPIKey == "" {
		log.Error("严重配置错误: DEEPSEEK_API_KEY 环境变量未设置或为空。聊天请求将无法到达上游。")
	}
	if config.AppSettings.SessionSecretKey == "" {
		config.AppSettings.SessionSecretKey = config.DefaultSessionSecretKey
		log.Error("Session 密钥为空，已临时设置为默认值。这极不安全，请立即配置 SESSION_SECRET_KEY。")
	} else if config.AppSettings.SessionSecretKey == config.DefaultSessionSecretKey {
		log.Warn("安全警告: Session 密钥 (SESSION_SECRET_KEY) 为默认值，这非常不安全! 请在生产环境中设置一个长且随机的密钥。")
	}

	// 3. 初始化 Session Store
	middleware.Store = sessions.NewCookieStore([]byte(config.AppSettings.SessionSecretKey))
	middleware.Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   middleware.MaxAgeSeconds,
		HttpOnly: true,
		Secure:   false, // 生产环境若为 HTTPS 部署应配置为 true。
		SameSite: http.SameSiteLaxMode,
	}
	log.Info("Session Store 初始化完成。")

	// 4. 初始化数据库与各存储层
	db, err := storage.InitDB(log)
	if err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	users := storage.NewUserStore(db)
	quota := storage.NewQuotaStore(db)
	sessionStore := storage.NewSessionStore(db)
	if err := storage.SeedDefaults(db, users); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}

	// 5. 初始化共享 HTTP 客户端与上游/搜索客户端
	// LLM 请求是长流式连接，超时要放宽；搜索请求短平快，单独一个客户端。
	llmHTTPClient := &http.Client{
		Timeout: config.AppSettings.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	searchHTTPClient := &http.Client{Timeout: config.AppSettings.SearchTimeout}

	chatClient := chatstream.NewClient(
		config.AppSettings.DeepSeekBaseURL,
		config.AppSettings.DeepSeekAPIKey,
		config.AppSettings.ModelName,
		config.AppSettings.MaxTokens,
		llmHTTPClient,
		log,
	)

	var searchClient *search.Client
	if config.AppSettings.SearchAPIKey != "" {
		searchClient = search.NewClient(config.AppSettings.SearchEndpoint, config.AppSettings.SearchAPIKey, searchHTTPClient, log)
		log.Info("搜索客户端已启用。")
	} else {
		log.Warn("SEARCH_API_KEY 未设置，网络搜索功能不可用。")
	}

	// 6. 注入各包的共享依赖
	middleware.Log = log
	handlers.Log = log
	handlers.Users = users
	handlers.Sessions = sessionStore
	handlers.Quota = quota
	handlers.ChatClient = chatClient
	handlers.SearchClient = searchClient
	handlers.Extractor = fileparse.PlainText{}

	if err := os.MkdirAll(config.AppSettings.UploadDir, 0o755); err != nil {
		log.Fatalf("创建上传目录失败: %v", err)
	}

	// 7. 设置 Gin 路由器
	if strings.ToLower(config.AppSettings.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
		log.Info("Gin 运行模式: release")
	} else {
		gin.SetMode(gin.DebugMode)
		log.Info("Gin 运行模式: debug")
	}

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s | %s | %3d | %13v | %15s | %-7s %#v %s\n%s",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
			param.Method,
			param.Path,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	templatesPath := filepath.Join("static", "*.html")
	router.LoadHTMLGlob(templatesPath)
	log.Infof("已从路径 '%s' 加载 HTML 模板。", templatesPath)

	// --- 页面路由 ---
	router.GET("/login", handlers.LoginPageHandler)
	router.GET("/favicon.ico", handlers.FaviconHandler)
	router.GET("/", middleware.RequireUser(), handlers.ChatPageHandler)
	router.GET("/admin", middleware.RequireUser(), middleware.RequireAdmin(), handlers.AdminPageHandler)

	// --- API 路由 (/api) ---
	apiGroup := router.Group("/api")
	{
		// 认证接口本身不需要会话。
		apiGroup.POST("/login", handlers.LoginHandler)
		apiGroup.POST("/register", handlers.RegisterHandler)

		authorized := apiGroup.Group("/")
		authorized.Use(middleware.RequireUser())
		{
			authorized.POST("/logout", handlers.LogoutHandler)
			authorized.POST("/chat", handlers.ChatHandler)
			authorized.POST("/upload", handlers.UploadHandler)

			authorized.GET("/sessions", handlers.ListSessionsHandler)
			authorized.POST("/sessions/new", handlers.NewSessionHandler)
			authorized.GET("/sessions/:id", handlers.GetSessionHandler)
			authorized.PUT("/sessions/:id/name", handlers.RenameSessionHandler)
			authorized.DELETE("/sessions/:id", handlers.DeleteSessionHandler)

			adminAPI := authorized.Group("/admin")
			adminAPI.Use(middleware.RequireAdmin())
			{
				adminAPI.GET("/users", handlers.ListUsersHandler)
				adminAPI.PUT("/users/:id/admin", handlers.SetAdminHandler)
				adminAPI.DELETE("/users/:id", handlers.DeleteUserHandler)

				adminAPI.GET("/blacklist", handlers.ListBlacklistHandler)
				adminAPI.POST("/blacklist", handlers.AddBlacklistHandler)
				adminAPI.DELETE("/blacklist/:username", handlers.RemoveBlacklistHandler)

				adminAPI.GET("/keys", handlers.ListKeysHandler)
				adminAPI.GET("/configs", handlers.ListConfigurationsHandler)
			}
		}
	}
	log.Info("所有应用路由已设置完成。")

	// 8. 启动 HTTP 服务器
	serverAddr := ":" + config.AppSettings.Port
	log.Infof("服务即将启动，监听地址: http://localhost%s (或配置的域名/IP)", serverAddr)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // 流式响应可能持续较长时间。
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务器启动失败: %s\n", err)
		}
	}()
	log.Infof("服务器正在运行中... 按 CTRL+C 关闭。")

	// 9. 优雅关闭
	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	<-quitChannel

	log.Println("收到关闭信号，服务器正在优雅关闭...")
	shutdownCtx, shutdownCancelFunc := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("服务器优雅关闭失败: %v", err)
	}
	log.Println("服务器已成功优雅关闭。")
}
