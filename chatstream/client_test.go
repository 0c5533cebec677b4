package chatstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HosamN-ALI/DeepGaza/models"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func collectFragments(t *testing.T, stream *Stream) []Fragment {
	t.Helper()
	var fragments []Fragment
	for {
		frag, err := stream.Next()
		if err == io.EOF {
			return fragments
		}
		if err != nil {
			t.Fatalf("Next 返回意外错误: %v", err)
		}
		fragments = append(fragments, frag)
	}
}

func TestStreamChatParsesSSE(t *testing.T) {
	var gotAuth string
	var gotBody models.ChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"思考\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"你好\"}}]}\n\n")
		fmt.Fprint(w, "data: not-valid-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test-key", "deepseek-reasoner", 4096, server.Client(), testLogger())
	stream, err := client.StreamChat(context.Background(), []models.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("StreamChat 失败: %v", err)
	}
	defer stream.Close()

	fragments := collectFragments(t, stream)

	if gotAuth != "Bearer sk-test-key" {
		t.Errorf("Authorization = %q, 期望 Bearer sk-test-key", gotAuth)
	}
	if !gotBody.Stream {
		t.Error("上游请求必须带 stream: true")
	}
	if gotBody.Model != "deepseek-reasoner" {
		t.Errorf("model = %q, 期望 deepseek-reasoner", gotBody.Model)
	}
	if gotBody.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, 期望 4096", gotBody.MaxTokens)
	}

	// 无法解析的行与注释行都跳过，不产生 fragment 也不报错。
	want := []Fragment{
		{ReasoningDelta: "思考"},
		{AnswerDelta: "你好"},
		{AnswerDelta: "!"},
	}
	if len(fragments) != len(want) {
		t.Fatalf("收到 %d 个 fragment, 期望 %d: %+v", len(fragments), len(want), fragments)
	}
	for i, frag := range fragments {
		if frag != want[i] {
			t.Errorf("fragment[%d] = %+v, 期望 %+v", i, frag, want[i])
		}
	}
}

func TestStreamChatEOFWithoutDone(t *testing.T) {
	// 上游直接断开而没有发送 [DONE]：流也应正常结束。
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test-key", "deepseek-reasoner", 4096, server.Client(), testLogger())
	stream, err := client.StreamChat(context.Background(), []models.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("StreamChat 失败: %v", err)
	}
	defer stream.Close()

	fragments := collectFragments(t, stream)
	if len(fragments) != 1 || fragments[0].AnswerDelta != "partial" {
		t.Errorf("fragments = %+v, 期望单个 partial 回答增量", fragments)
	}
	// 结束后的 Next 稳定返回 io.EOF。
	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("流结束后 Next 返回 %v, 期望 io.EOF", err)
	}
}

func TestStreamChatUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid api key"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-bad-key", "deepseek-reasoner", 4096, server.Client(), testLogger())
	if _, err := client.StreamChat(context.Background(), []models.Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("上游返回 401 时 StreamChat 应当失败")
	}
}
