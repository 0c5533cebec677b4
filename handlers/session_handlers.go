package handlers

import (
	"errors"
	"net/http"

	"github.com/HosamN-ALI/DeepGaza/middleware"
	"github.com/HosamN-ALI/DeepGaza/models"
	"github.com/HosamN-ALI/DeepGaza/prompt"
	"github.com/HosamN-ALI/DeepGaza/storage"

	"github.com/gin-gonic/gin"
)

const recentSessionLimit = 10

// sessionSummary 列表接口返回的会话摘要，不含文稿本体。
type sessionSummary struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	UpdatedAt   string `json:"updated_at"`
}

// ListSessionsHandler 返回当前用户最近的会话（最多 10 条，按更新时间倒序）。
func ListSessionsHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)

	sessions, err := Sessions.ListRecent(principal.Username, recentSessionLimit)
	if err != nil {
		Log.Errorf("ListSessionsHandler: 查询会话列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "查询会话列表失败。", Type: "internal_server_error"}})
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, sessionSummary{
			SessionID:   s.SessionID,
			SessionName: s.SessionName,
			UpdatedAt:   s.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

// NewSessionRequest 新建会话接口的请求体。
type NewSessionRequest struct {
	SystemRole string `json:"system_role"` // 可选的自定义系统角色
}

// NewSessionHandler 显式新建一条空会话（只含 system 消息）。
// 聊天接口在未指定 session_id 时也会隐式新建，两条路径行为一致。
func NewSessionHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)

	var req NewSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
			return
		}
	}

	systemMessage := models.Message{Role: "system", Content: prompt.SystemRole(req.SystemRole)}
	session, err := Sessions.Create(principal.Username, []models.Message{systemMessage})
	if err != nil {
		Log.Errorf("NewSessionHandler: 新建会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "新建会话失败。", Type: "internal_server_error"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.SessionID, "session_name": session.SessionName})
}

// GetSessionHandler 返回单个会话的完整文稿（system 消息也一并返回，前端自行过滤）。
func GetSessionHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)
	sessionID := c.Param("id")

	session, ok := loadOwnedSession(c, principal, sessionID)
	if !ok {
		return
	}

	transcript, err := session.Transcript()
	if err != nil {
		Log.Errorf("GetSessionHandler: 反序列化文稿失败 (会话 %s): %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "读取会话内容失败。", Type: "internal_server_error"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.SessionID,
		"session_name": session.SessionName,
		"messages":     transcript,
	})
}

// RenameSessionRequest 重命名接口的请求体。
type RenameSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameSessionHandler 修改会话标题。
func RenameSessionHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)
	sessionID := c.Param("id")

	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
		return
	}

	if _, ok := loadOwnedSession(c, principal, sessionID); !ok {
		return
	}

	if err := Sessions.Rename(sessionID, req.Name); err != nil {
		Log.Errorf("RenameSessionHandler: 重命名会话 %s 失败: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "重命名会话失败。", Type: "internal_server_error"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "会话已重命名。"})
}

// DeleteSessionHandler 删除一条会话。
func DeleteSessionHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)
	sessionID := c.Param("id")

	if _, ok := loadOwnedSession(c, principal, sessionID); !ok {
		return
	}

	if err := Sessions.Delete(sessionID); err != nil {
		Log.Errorf("DeleteSessionHandler: 删除会话 %s 失败: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "删除会话失败。", Type: "internal_server_error"}})
		return
	}
	Log.Infof("DeleteSessionHandler: 用户 %s 删除了会话 %s。", principal.Username, sessionID)
	c.JSON(http.StatusOK, gin.H{"message": "会话已删除。"})
}

// loadOwnedSession 载入会话并校验归属。失败时已写好响应，调用方直接 return。
func loadOwnedSession(c *gin.Context, principal middleware.Principal, sessionID string) (*storage.ChatSession, bool) {
	session, err := Sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "会话不存在。", Type: "invalid_request_error", Param: "session_id"}})
		} else {
			Log.Errorf("loadOwnedSession: 查询会话 %s 失败: %v", sessionID, err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "查询会话失败。", Type: "internal_server_error"}})
		}
		return nil, false
	}
	if session.Username != principal.Username {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "无权访问该会话。", Type: "authorization_error"}})
		return nil, false
	}
	return session, true
}
