package handlers

import (
	"net/http"

	"github.com/HosamN-ALI/DeepGaza/middleware"

	"github.com/gin-gonic/gin"
)

// ChatPageHandler 服务于 `/` GET 请求，提供聊天主界面。
// RequireUser 中间件已经完成了认证，能到达这里的请求都携带有效会话。
func ChatPageHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)
	Log.Debugf("ChatPageHandler: 为用户 %s 提供聊天页面 (chat.html)。", principal.Username)
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"Username": principal.Username,
		"IsAdmin":  principal.IsAdmin,
	})
}

// AdminPageHandler 服务于 `/admin` GET 请求，提供管理面板页面。
func AdminPageHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "admin.html", nil)
}

// LoginPageHandler 服务于 `/login` GET 请求，提供登录/注册页面。
func LoginPageHandler(c *gin.Context) {
	// 已登录用户直接回到聊天页，避免重复登录。
	session, err := middleware.Store.Get(c.Request, middleware.SessionKey)
	if err != nil {
		Log.Warnf("LoginPageHandler: 获取 session 失败: %v。可能是 cookie 密钥已更改或 cookie 损坏。", err)
		session.Options.MaxAge = -1
		_ = session.Save(c.Request, c.Writer)
	} else if username, ok := session.Values[middleware.UsernameKey].(string); ok && username != "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	// reason 查询参数驱动登录页上的初始提示。
	reason := c.Query("reason")
	var initialMessage string
	var messageType string
	switch reason {
	case "session_expired":
		initialMessage = "您的会话已过期，请重新登录。"
		messageType = "info"
	case "not_logged_in":
		initialMessage = "请先登录以访问受保护的区域。"
		messageType = "info"
	case "logged_out":
		initialMessage = "您已成功退出登录。"
		messageType = "success"
	case "session_error":
		initialMessage = "会话处理时发生错误，请重新登录。"
		messageType = "error"
	default:
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"InitialMessage": initialMessage,
		"MessageType":    messageType,
	})
}

// FaviconHandler 处理对 `/favicon.ico` 的请求，避免日志里出现无意义的 404。
func FaviconHandler(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
