package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HosamN-ALI/DeepGaza/chatstream"
	"github.com/HosamN-ALI/DeepGaza/config"
	"github.com/HosamN-ALI/DeepGaza/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// sseEvent 聊天接口推给浏览器的单个事件。
type sseEvent struct {
	Type      string `json:"type"`
	Delta     string `json:"delta"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("解析 SSE 事件失败: %v, line: %q", err, line)
		}
		events = append(events, ev)
	}
	return events
}

// fakeUpstream 一个固定输出两阶段内容的上游。
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"思考中\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"你好\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"世界\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func setupChatTest(t *testing.T, upstreamURL string) (*gin.Engine, []*http.Cookie) {
	t.Helper()
	router := setupTestApp(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	config.AppSettings.DeepSeekAPIKey = "sk-test"
	config.AppSettings.SearchTimeout = 0
	ChatClient = chatstream.NewClient(upstreamURL, "sk-test", "deepseek-reasoner", 4096, http.DefaultClient, log)

	cookies := loginAs(t, router, "alice", "pw", false)
	return router, cookies
}

func TestChatNewSessionStreamsAndPersists(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	w := doJSON(router, "POST", "/api/chat", map[string]any{"message": "打个招呼"}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("聊天请求返回 %d: %s", w.Code, w.Body.String())
	}

	events := parseSSE(t, w.Body.String())
	var reasoning, answer, sessionID string
	for _, ev := range events {
		switch ev.Type {
		case "reasoning":
			reasoning += ev.Delta
		case "answer":
			answer += ev.Delta
		case "done":
			sessionID = ev.SessionID
		}
	}
	if reasoning != "思考中" {
		t.Errorf("推理流 = %q, 期望 思考中", reasoning)
	}
	if answer != "你好世界" {
		t.Errorf("回答流 = %q, 期望 你好世界", answer)
	}
	if sessionID == "" {
		t.Fatal("done 事件应携带 session id")
	}

	// 文稿落库：system + user + assistant，推理内容不持久化。
	session, err := Sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("查询会话失败: %v", err)
	}
	messages, err := session.Transcript()
	if err != nil {
		t.Fatalf("反序列化文稿失败: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("文稿 %d 条消息, 期望 3 (system/user/assistant): %+v", len(messages), messages)
	}
	if messages[0].Role != "system" || messages[1].Role != "user" || messages[2].Role != "assistant" {
		t.Errorf("文稿角色顺序不对: %+v", messages)
	}
	if messages[2].Content != "你好世界" {
		t.Errorf("助手消息 = %q, 期望只保存回答内容", messages[2].Content)
	}
	if strings.Contains(messages[2].Content, "思考中") {
		t.Error("推理内容不应持久化进文稿")
	}
}

func TestChatQuotaAccounting(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	if err := testDB.Create(&storage.APIKey{Key: "sk-test", TotalTokens: 1000}).Error; err != nil {
		t.Fatalf("创建配额行失败: %v", err)
	}

	w := doJSON(router, "POST", "/api/chat", map[string]any{"message": "hi"}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("聊天请求返回 %d: %s", w.Code, w.Body.String())
	}

	// 提示成本 + 流内容成本都应入账。
	used, _, err := Quota.CheckQuota("sk-test")
	if err != nil {
		t.Fatalf("查询配额失败: %v", err)
	}
	// 流内容："思考中"(6) + "你好"(4) + "世界"(4) = 14；提示成本是拼装后
	// 完整提示的 UnitCost，肯定大于 0。
	if used < 14 {
		t.Errorf("已用量 = %d, 期望至少入账流内容的 14 units", used)
	}
}

func TestChatQuotaExhausted(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	if err := testDB.Create(&storage.APIKey{Key: "sk-test", UsedTokens: 1000, TotalTokens: 1000}).Error; err != nil {
		t.Fatalf("创建配额行失败: %v", err)
	}

	w := doJSON(router, "POST", "/api/chat", map[string]any{"message": "hi"}, cookies)
	if w.Code != http.StatusForbidden {
		t.Fatalf("配额耗尽时返回 %d, 期望 403: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析错误响应失败: %v", err)
	}
	if resp.Error.Type != "quota_exhausted" {
		t.Errorf("错误类型 = %q, 期望 quota_exhausted", resp.Error.Type)
	}
}

func TestChatMissingQuotaRowAllows(t *testing.T) {
	// 没有配额行的密钥视为放行。
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	w := doJSON(router, "POST", "/api/chat", map[string]any{"message": "hi"}, cookies)
	if w.Code != http.StatusOK {
		t.Errorf("无配额行时返回 %d, 期望放行: %s", w.Code, w.Body.String())
	}
}

func TestChatContinuesExistingSession(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	first := doJSON(router, "POST", "/api/chat", map[string]any{"message": "第一问"}, cookies)
	if first.Code != http.StatusOK {
		t.Fatalf("首轮聊天失败: %d", first.Code)
	}
	var sessionID string
	for _, ev := range parseSSE(t, first.Body.String()) {
		if ev.Type == "done" {
			sessionID = ev.SessionID
		}
	}

	second := doJSON(router, "POST", "/api/chat",
		map[string]any{"message": "第二问", "session_id": sessionID}, cookies)
	if second.Code != http.StatusOK {
		t.Fatalf("次轮聊天失败: %d: %s", second.Code, second.Body.String())
	}

	session, err := Sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("查询会话失败: %v", err)
	}
	messages, _ := session.Transcript()
	// system + 两轮 (user+assistant)。
	if len(messages) != 5 {
		t.Errorf("两轮对话后文稿 %d 条消息, 期望 5", len(messages))
	}
}

func TestChatUpstreamFailureKeepsUserMessage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	w := doJSON(router, "POST", "/api/chat", map[string]any{"message": "hi"}, cookies)
	// SSE 头已发出，HTTP 状态仍是 200，错误以事件形式送达。
	if w.Code != http.StatusOK {
		t.Fatalf("返回 %d", w.Code)
	}

	var sawError bool
	var sessionID string
	for _, ev := range parseSSE(t, w.Body.String()) {
		if ev.Type == "error" {
			sawError = true
		}
		if ev.Type == "done" {
			sessionID = ev.SessionID
		}
	}
	if !sawError {
		t.Error("上游失败应推送 error 事件")
	}

	// 用户消息保留在文稿里，没有助手回复。
	session, err := Sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("查询会话失败: %v", err)
	}
	messages, _ := session.Transcript()
	if len(messages) != 2 {
		t.Fatalf("文稿 %d 条消息, 期望 system+user 共 2 条: %+v", len(messages), messages)
	}
	if messages[1].Role != "user" {
		t.Errorf("第二条消息角色 = %q, 期望 user", messages[1].Role)
	}
}

func TestChatOtherUsersSessionForbidden(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	router, cookies := setupChatTest(t, upstream.URL)

	other, err := Sessions.Create("mallory", nil)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	w := doJSON(router, "POST", "/api/chat",
		map[string]any{"message": "hi", "session_id": other.SessionID}, cookies)
	if w.Code != http.StatusForbidden {
		t.Errorf("写他人会话返回 %d, 期望 403", w.Code)
	}
}
