package middleware

import (
	"net/http"
	"strings"

	"github.com/HosamN-ALI/DeepGaza/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

// Log 由 main.go 注入。
var Log *logrus.Logger

// Store 浏览器会话的 CookieStore，在 main.go 中初始化并配置。
var Store *sessions.CookieStore

const (
	SessionKey    = "deepgaza-session" // Session cookie 在浏览器中存储的名称。
	UsernameKey   = "username"         // session 数据中记录登录用户名的键。
	UserIDKey     = "user_id"          // session 数据中记录用户主键的键。
	IsAdminKey    = "is_admin"         // session 数据中记录管理员标志的键。
	MaxAgeSeconds = 3600 * 24 * 7      // Session cookie 的最大有效期（7 天）。

	// PrincipalKey 认证中间件把解析出的 Principal 放进 gin.Context 的键。
	PrincipalKey = "principal"
)

// Principal 当前请求的已认证身份。角色判断用显式的类型化字段，
// 不再依赖散落的 session 布尔值。
type Principal struct {
	UserID   uint
	Username string
	IsAdmin  bool
}

// PrincipalFromContext 取出认证中间件放入的 Principal。
// 只应在 RequireUser 之后的 handler 中调用。
func PrincipalFromContext(c *gin.Context) Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}

// RequireUser 验证浏览器会话并把 Principal 注入请求上下文。
// 未登录时：页面请求重定向到登录页，API 请求返回 401 JSON。
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := Store.Get(c.Request, SessionKey)
		if err != nil {
			Log.Warnf("RequireUser: 获取 session 失败: %v. 可能原因：store key 更改或 cookie 损坏。", err)
			rejectUnauthenticated(c, "会话无效或已损坏，请重新登录。")
			return
		}

		username, okName := session.Values[UsernameKey].(string)
		if !okName || username == "" {
			rejectUnauthenticated(c, "未授权访问。请先登录。")
			return
		}

		principal := Principal{Username: username}
		if id, ok := session.Values[UserIDKey].(uint); ok {
			principal.UserID = id
		}
		if isAdmin, ok := session.Values[IsAdminKey].(bool); ok {
			principal.IsAdmin = isAdmin
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// RequireAdmin 在 RequireUser 之上追加管理员角色检查。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFromContext(c)
		if !principal.IsAdmin {
			Log.Warnf("RequireAdmin: 非管理员用户 %q 尝试访问 %s。", principal.Username, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "需要管理员权限。", Type: "authorization_error"}})
			return
		}
		c.Next()
	}
}

// rejectUnauthenticated 按请求类型返回重定向或 401。
func rejectUnauthenticated(c *gin.Context, message string) {
	isPage := c.Request.Method == http.MethodGet && !strings.HasPrefix(c.Request.URL.Path, "/api/")
	if isPage {
		c.Redirect(http.StatusFound, "/login?reason=not_logged_in")
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorDetail{
		Message: message, Type: "authentication_error"}})
}
