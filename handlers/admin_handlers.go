package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/HosamN-ALI/DeepGaza/models"
	"github.com/HosamN-ALI/DeepGaza/storage"
	"github.com/HosamN-ALI/DeepGaza/utils"

	"github.com/gin-gonic/gin"
)

// ListUsersHandler 返回全部用户（不含密码散列）。
func ListUsersHandler(c *gin.Context) {
	users, err := Users.ListUsers()
	if err != nil {
		Log.Errorf("ListUsersHandler: 查询用户失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "查询用户失败。", Type: "internal_server_error"}})
		return
	}

	type userView struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin})
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

// SetAdminRequest 调整管理员标志的请求体。
type SetAdminRequest struct {
	IsAdmin *bool `json:"is_admin" binding:"required"`
}

// SetAdminHandler 设置或撤销某用户的管理员标志。
func SetAdminHandler(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "无效的用户 ID。", Type: "invalid_request_error", Param: "id"}})
		return
	}

	var req SetAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
		return
	}

	if err := Users.SetAdmin(uint(userID), *req.IsAdmin); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "用户不存在。", Type: "invalid_request_error", Param: "id"}})
			return
		}
		Log.Errorf("SetAdminHandler: 更新用户 %d 失败: %v", userID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "更新用户失败。", Type: "internal_server_error"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "用户权限已更新。"})
}

// DeleteUserHandler 删除用户及其名下的 API 密钥配额行。
// 聊天会话不级联删除，成为孤儿记录，这是有意的行为。
func DeleteUserHandler(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "无效的用户 ID。", Type: "invalid_request_error", Param: "id"}})
		return
	}

	if err := Users.DeleteUser(uint(userID)); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "用户不存在。", Type: "invalid_request_error", Param: "id"}})
			return
		}
		Log.Errorf("DeleteUserHandler: 删除用户 %d 失败: %v", userID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "删除用户失败。", Type: "internal_server_error"}})
		return
	}
	Log.Infof("DeleteUserHandler: 用户 %d 已删除。", userID)
	c.JSON(http.StatusOK, gin.H{"message": "用户已删除。"})
}

// BlacklistRequest 拉黑/解封接口的请求体。
type BlacklistRequest struct {
	Username string `json:"username" binding:"required"`
	Reason   string `json:"reason"` // 可选的拉黑原因，仅加入黑名单时使用
}

// AddBlacklistHandler 将用户名加入黑名单。被拉黑的用户无法登录或注册。
func AddBlacklistHandler(c *gin.Context) {
	var req BlacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
		return
	}

	if err := Users.AddToBlacklist(req.Username, req.Reason); err != nil {
		if errors.Is(err, storage.ErrAlreadyBlacklisted) {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "该用户已在黑名单中。", Type: "invalid_request_error", Param: "username"}})
			return
		}
		Log.Errorf("AddBlacklistHandler: 拉黑 %s 失败: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "操作失败。", Type: "internal_server_error"}})
		return
	}
	Log.Infof("AddBlacklistHandler: 用户 %s 已加入黑名单。", req.Username)
	c.JSON(http.StatusOK, gin.H{"message": "已加入黑名单。"})
}

// RemoveBlacklistHandler 将用户名移出黑名单。用户名取自路径参数。
func RemoveBlacklistHandler(c *gin.Context) {
	username := c.Param("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "缺少用户名。", Type: "invalid_request_error", Param: "username"}})
		return
	}

	if err := Users.RemoveFromBlacklist(username); err != nil {
		if errors.Is(err, storage.ErrNotBlacklisted) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "该用户不在黑名单中。", Type: "invalid_request_error", Param: "username"}})
			return
		}
		Log.Errorf("RemoveBlacklistHandler: 解封 %s 失败: %v", username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "操作失败。", Type: "internal_server_error"}})
		return
	}
	Log.Infof("RemoveBlacklistHandler: 用户 %s 已移出黑名单。", username)
	c.JSON(http.StatusOK, gin.H{"message": "已移出黑名单。"})
}

// ListBlacklistHandler 返回黑名单全部条目。
func ListBlacklistHandler(c *gin.Context) {
	entries, err := Users.ListBlacklist()
	if err != nil {
		Log.Errorf("ListBlacklistHandler: 查询黑名单失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "查询黑名单失败。", Type: "internal_server_error"}})
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Username)
	}
	c.JSON(http.StatusOK, gin.H{"blacklist": names})
}

// ListKeysHandler 返回系统级 API 密钥的配额使用情况。
// 完整密钥不出站，只回传末四位。
func ListKeysHandler(c *gin.Context) {
	keys, err := Quota.ListActiveKeys("")
	if err != nil {
		Log.Errorf("ListKeysHandler: 查询密钥失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "查询密钥失败。", Type: "internal_server_error"}})
		return
	}

	type keyView struct {
		KeySuffix   string `json:"key_suffix"`
		Username    string `json:"username"`
		UsedTokens  int64  `json:"used_tokens"`
		TotalTokens int64  `json:"total_tokens"`
		IsActive    bool   `json:"is_active"`
	}
	views := make([]keyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, keyView{
			KeySuffix:   utils.SafeSuffix(k.Key),
			Username:    k.Username,
			UsedTokens:  k.UsedTokens,
			TotalTokens: k.TotalTokens,
			IsActive:    k.IsActive,
		})
	}
	c.JSON(http.StatusOK, gin.H{"keys": views})
}

// ListConfigurationsHandler 返回上游 API 配置（只读展示，密钥打码）。
func ListConfigurationsHandler(c *gin.Context) {
	configs, err := Quota.ListConfigurations()
	if err != nil {
		Log.Errorf("ListConfigurationsHandler: 查询配置失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "查询配置失败。", Type: "internal_server_error"}})
		return
	}

	type configView struct {
		ConfigName string `json:"config_name"`
		BaseURL    string `json:"base_url"`
		KeySuffix  string `json:"key_suffix"`
		ModelName  string `json:"model_name"`
		IsActive   bool   `json:"is_active"`
	}
	views := make([]configView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, configView{
			ConfigName: cfg.ConfigName,
			BaseURL:    cfg.BaseURL,
			KeySuffix:  utils.SafeSuffix(cfg.APIKey),
			ModelName:  cfg.ModelName,
			IsActive:   cfg.IsActive,
		})
	}
	c.JSON(http.StatusOK, gin.H{"configurations": views})
}
