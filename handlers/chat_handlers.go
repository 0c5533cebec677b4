package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/HosamN-ALI/DeepGaza/chatstream"
	"github.com/HosamN-ALI/DeepGaza/config"
	"github.com/HosamN-ALI/DeepGaza/fileparse"
	"github.com/HosamN-ALI/DeepGaza/middleware"
	"github.com/HosamN-ALI/DeepGaza/models"
	"github.com/HosamN-ALI/DeepGaza/prompt"
	"github.com/HosamN-ALI/DeepGaza/storage"
	"github.com/HosamN-ALI/DeepGaza/utils"

	"github.com/gin-gonic/gin"
)

// ChatRequest `/api/chat` 的请求体。
type ChatRequest struct {
	Message      string `json:"message" binding:"required"` // 用户输入的消息
	SessionID    string `json:"session_id"`                 // 为空时自动新建会话
	EnableSearch bool   `json:"enable_search"`              // 是否附加网络搜索结果
	SystemRole   string `json:"system_role"`                // 可选的自定义系统角色（仅对新会话生效）
}

// ChatHandler 处理 `/api/chat` POST 请求，是整个服务的核心链路：
// 认证门禁 -> 配额预检 -> 提示拼装 -> 上游流式调用 -> 流消费 -> 会话落库。
// 响应以 SSE 增量推送推理和回答两个阶段的内容。
func ChatHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Log.Warnf("ChatHandler: 无效的请求体: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "请求数据无效: " + err.Error(), Type: "invalid_request_error"}})
		return
	}

	// 1. 取得（或新建）会话并载入文稿。
	session, transcript, err := resolveSession(principal, req)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "会话不存在。", Type: "invalid_request_error", Param: "session_id"}})
		} else if errors.Is(err, errSessionForbidden) {
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "无权访问该会话。", Type: "authorization_error"}})
		} else {
			Log.Errorf("ChatHandler: 载入会话失败: %v", err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "载入会话时发生内部错误。", Type: "internal_server_error"}})
		}
		return
	}

	// 2. 可选的网络搜索。失败只记录并继续，不阻断聊天。
	var searchBlock, searchFailure string
	if req.EnableSearch && SearchClient != nil {
		searchCtx, cancel := context.WithTimeout(c.Request.Context(), config.AppSettings.SearchTimeout)
		searchBlock, err = SearchClient.Search(searchCtx, req.Message)
		cancel()
		if err != nil {
			Log.Warnf("ChatHandler: 搜索失败，继续无搜索结果的请求: %v", err)
			searchFailure = err.Error()
			searchBlock = ""
		}
	}

	// 3. 取走该用户待消费的上传文件，与搜索结果、消息一起拼装提示。
	files := takePendingUploads(principal.Username)
	fileBlock := fileparse.FormatContents(files)
	fullContent := prompt.Assemble(searchBlock, fileBlock, req.Message)

	// 4. 配额预检。密钥没有配额行视为放行（系统默认密钥）。
	// 注意这里没有原子的 check-then-reserve，并发请求可能双双通过预检。
	apiKey := config.AppSettings.DeepSeekAPIKey
	estimated := chatstream.UnitCost(fullContent)
	used, total, err := Quota.CheckQuota(apiKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		// 放行。
	case err != nil:
		Log.Errorf("ChatHandler: 配额查询失败: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "配额查询失败。", Type: "internal_server_error"}})
		return
	case chatstream.Exceeds(used, total, estimated):
		Log.Warnf("ChatHandler: 密钥 %s 配额耗尽 (used=%d, total=%d, estimated=%d)。",
			utils.SafeSuffix(apiKey), used, total, estimated)
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "配额已耗尽，请联系管理员。", Type: "quota_exhausted"}})
		return
	}
	// 预检通过后立即把提示本身计入账本。
	if err := Quota.AddUsage(apiKey, estimated); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		Log.Warnf("ChatHandler: 记录提示用量失败: %v", err)
	}

	// 5. 用户消息先入文稿。从这里开始，即使上游失败，
	// 已发送的用户消息也会保留（可能没有对应的助手回复）。
	transcript = append(transcript, models.Message{Role: "user", Content: fullContent})

	// 6. 切换到 SSE 输出。
	c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Flush()

	if searchFailure != "" {
		writeSSEEvent(c, gin.H{"type": "search_error", "message": "搜索失败: " + searchFailure})
	}

	// 7. 上游流式调用。
	stream, err := ChatClient.StreamChat(c.Request.Context(), transcript)
	if err != nil {
		Log.Errorf("ChatHandler: 上游调用失败: %v", err)
		writeSSEEvent(c, gin.H{"type": "error", "message": err.Error()})
		finishSSE(c, session.SessionID)
		// 用户消息保留但没有助手回复。
		if saveErr := Sessions.SaveTranscript(session.SessionID, transcript); saveErr != nil {
			Log.Errorf("ChatHandler: 保存会话失败: %v", saveErr)
		}
		return
	}
	defer stream.Close()

	// 8. 消费流：推理/回答两阶段分开累积，每个 fragment 实时推给浏览器，
	// usage unit 每 10 个 fragment 批量入账。
	consumer := chatstream.NewConsumer(Quota, apiKey, Log)
	consumer.OnFragment = func(f chatstream.Fragment, answering bool) {
		if f.ReasoningDelta != "" {
			writeSSEEvent(c, gin.H{"type": "reasoning", "delta": f.ReasoningDelta})
		}
		if f.AnswerDelta != "" {
			writeSSEEvent(c, gin.H{"type": "answer", "delta": f.AnswerDelta})
		}
	}

	reasoning, answer, err := consumer.Consume(stream)
	if err != nil {
		// 中途失败：已累积文本与未刷写的批次计数丢失，已入账的不回滚。
		Log.Errorf("ChatHandler: 流消费中途失败: %v", err)
		writeSSEEvent(c, gin.H{"type": "error", "message": "上游流中断: " + err.Error()})
		finishSSE(c, session.SessionID)
		if saveErr := Sessions.SaveTranscript(session.SessionID, transcript); saveErr != nil {
			Log.Errorf("ChatHandler: 保存会话失败: %v", saveErr)
		}
		return
	}

	// 9. 助手回复入文稿并整体重写会话。推理内容只展示，不持久化。
	transcript = append(transcript, models.Message{Role: "assistant", Content: answer})
	if err := Sessions.SaveTranscript(session.SessionID, transcript); err != nil {
		Log.Errorf("ChatHandler: 保存会话失败: %v", err)
		writeSSEEvent(c, gin.H{"type": "error", "message": "保存会话失败。"})
	}

	Log.Infof("ChatHandler: 会话 %s 完成一轮对话 (推理 %d 字符, 回答 %d 字符)。",
		session.SessionID, len([]rune(reasoning)), len([]rune(answer)))
	finishSSE(c, session.SessionID)
}

var errSessionForbidden = errors.New("session belongs to another user")

// resolveSession 载入请求指定的会话，或在未指定时新建一条。
// 会话归属校验在这里做：孤儿会话（属主已删除）对其他用户不可写。
func resolveSession(principal middleware.Principal, req ChatRequest) (*storage.ChatSession, []models.Message, error) {
	if req.SessionID == "" {
		systemMessage := models.Message{Role: "system", Content: prompt.SystemRole(req.SystemRole)}
		session, err := Sessions.Create(principal.Username, []models.Message{systemMessage})
		if err != nil {
			return nil, nil, err
		}
		return session, []models.Message{systemMessage}, nil
	}

	session, err := Sessions.Get(req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Username != principal.Username {
		return nil, nil, errSessionForbidden
	}
	transcript, err := session.Transcript()
	if err != nil {
		return nil, nil, fmt.Errorf("反序列化会话文稿失败: %w", err)
	}
	return session, transcript, nil
}

// writeSSEEvent 把一个 JSON 负载作为 SSE data 事件写给客户端并立即刷出。
func writeSSEEvent(c *gin.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		Log.Errorf("writeSSEEvent: 序列化 SSE 负载失败: %v", err)
		return
	}
	if _, err := fmt.Fprintf(c.Writer, "%s%s\n\n", models.SSEDataPrefix, data); err != nil {
		Log.Warnf("writeSSEEvent: 写入客户端失败 (可能已断开): %v", err)
		return
	}
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

// finishSSE 发送终结事件和 [DONE] 哨兵。
func finishSSE(c *gin.Context, sessionID string) {
	writeSSEEvent(c, gin.H{"type": "done", "session_id": sessionID})
	if _, err := fmt.Fprintf(c.Writer, "%s%s\n\n", models.SSEDataPrefix, models.SSEDonePayload); err != nil {
		Log.Warnf("finishSSE: 发送 [DONE] 失败: %v", err)
	}
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}
