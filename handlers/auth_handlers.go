package handlers

import (
	"errors"
	"net/http"

	"github.com/HosamN-ALI/DeepGaza/middleware"
	"github.com/HosamN-ALI/DeepGaza/models"
	"github.com/HosamN-ALI/DeepGaza/storage"

	"github.com/gin-gonic/gin"
)

// CredentialsRequest 登录和注册共用的请求体。
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler 处理 `/api/login` POST 请求。
// 黑名单优先于凭据校验：被拉黑的用户名即使密码正确也拒绝登录。
func LoginHandler(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Log.Warnf("LoginHandler: 无效的登录请求体: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
		return
	}

	user, err := Users.Authenticate(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrBlacklisted):
			Log.Warnf("LoginHandler: 黑名单用户 %q 尝试登录。", req.Username)
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "该用户名已被拉黑，无法登录。", Type: "authentication_error", Code: "blacklisted"}})
		case errors.Is(err, storage.ErrInvalidCredentials):
			Log.Warnf("LoginHandler: 用户 %q 登录失败，凭据错误。", req.Username)
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "用户名或密码错误。", Type: "authentication_error"}})
		default:
			Log.Errorf("LoginHandler: 认证查询失败: %v", err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "登录时发生内部错误。", Type: "internal_server_error"}})
		}
		return
	}

	session, _ := middleware.Store.Get(c.Request, middleware.SessionKey)
	session.Values[middleware.UsernameKey] = user.Username
	session.Values[middleware.UserIDKey] = user.ID
	session.Values[middleware.IsAdminKey] = user.IsAdmin
	session.Options.MaxAge = middleware.MaxAgeSeconds
	session.Options.HttpOnly = true
	session.Options.SameSite = http.SameSiteLaxMode

	if err := session.Save(c.Request, c.Writer); err != nil {
		Log.Errorf("LoginHandler: 保存 session 失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "登录时发生内部错误 (无法保存会话)。", Type: "internal_server_error"}})
		return
	}

	Log.Infof("LoginHandler: 用户 %q 登录成功 (admin=%t)。", user.Username, user.IsAdmin)
	c.JSON(http.StatusOK, gin.H{"message": "登录成功", "username": user.Username, "is_admin": user.IsAdmin})
}

// RegisterHandler 处理 `/api/register` POST 请求。
func RegisterHandler(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Log.Warnf("RegisterHandler: 无效的注册请求体: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
		return
	}

	if _, err := Users.Register(req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, storage.ErrBlacklisted):
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "该用户名已被拉黑，无法注册。", Type: "authentication_error", Code: "blacklisted"}})
		case errors.Is(err, storage.ErrUsernameTaken):
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "用户名已存在。", Type: "conflict_error", Code: "username_taken"}})
		default:
			Log.Errorf("RegisterHandler: 注册失败: %v", err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "注册时发生内部错误。", Type: "internal_server_error"}})
		}
		return
	}

	Log.Infof("RegisterHandler: 新用户 %q 注册成功。", req.Username)
	c.JSON(http.StatusOK, gin.H{"message": "注册成功，请登录。"})
}

// LogoutHandler 处理 `/api/logout` POST 请求。
func LogoutHandler(c *gin.Context) {
	session, _ := middleware.Store.Get(c.Request, middleware.SessionKey)
	delete(session.Values, middleware.UsernameKey)
	delete(session.Values, middleware.UserIDKey)
	delete(session.Values, middleware.IsAdminKey)
	session.Options.MaxAge = -1 // 使 cookie 立即过期

	if err := session.Save(c.Request, c.Writer); err != nil {
		Log.Errorf("LogoutHandler: 保存 session (使之过期) 失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "登出时发生内部错误。", Type: "internal_server_error"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "登出成功"})
}
