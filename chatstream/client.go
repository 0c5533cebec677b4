package chatstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HosamN-ALI/DeepGaza/models"
	"github.com/HosamN-ALI/DeepGaza/utils"

	"github.com/sirupsen/logrus"
)

// Client 面向 OpenAI 兼容的聊天完成端点的流式客户端。
// 请求总是以 stream: true 发出，响应以 SSE 逐行消费。
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient 创建一个上游 LLM 客户端。httpClient 由 main.go 统一配置
// （超时、连接池），在各组件间共享。
func NewClient(baseURL, apiKey, model string, maxTokens int, httpClient *http.Client, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: httpClient,
		log:        log,
	}
}

// StreamChat 向上游发起一次流式聊天请求，返回可逐个读取 Fragment 的流。
// 失败直接返回错误，不做重试；取消只能依靠 ctx 或上游自行结束。
func (c *Client) StreamChat(ctx context.Context, messages []models.Message) (*Stream, error) {
	payload := models.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: c.maxTokens,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化上游请求失败: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("创建上游请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.log.Infof("向上游发起流式聊天请求: 模型=%s, 消息数=%d, 密钥=%s",
		c.model, len(messages), utils.SafeSuffix(c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求上游聊天服务失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		detail := strings.TrimSpace(string(bodyBytes))
		if detail == "" {
			detail = "响应体为空"
		}
		c.log.Errorf("上游聊天服务返回非 200 状态: %d. Body: %s", resp.StatusCode, detail)
		return nil, fmt.Errorf("上游 API 错误 (状态 %d): %s", resp.StatusCode, detail)
	}

	return &Stream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		log:    c.log,
	}, nil
}

// Stream 一条进行中的 SSE 响应流。实现 FragmentSource。
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	log    *logrus.Logger
	done   bool
}

// Next 读取下一个 Fragment。流结束（收到 [DONE] 或 EOF）时返回 io.EOF。
// 无法解析的数据行跳过不报错，与上游保持宽容。
func (s *Stream) Next() (Fragment, error) {
	if s.done {
		return Fragment{}, io.EOF
	}
	for {
		line, errRead := s.reader.ReadString('\n')
		trimmedLine := strings.TrimSpace(line)

		if strings.HasPrefix(trimmedLine, models.SSEDataPrefix) {
			dataContent := strings.TrimSpace(strings.TrimPrefix(trimmedLine, models.SSEDataPrefix))
			if dataContent == models.SSEDonePayload {
				s.log.Debug("上游流收到显式 [DONE] 信号。")
				s.done = true
				return Fragment{}, io.EOF
			}

			var chunk models.ChatCompletionChunk
			if errJson := json.Unmarshal([]byte(dataContent), &chunk); errJson != nil {
				s.log.Warnf("无法解析上游 data 块 JSON (忽略该行): %v, data: %q", errJson, dataContent)
			} else if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta
				return Fragment{
					ReasoningDelta: utils.DerefString(delta.ReasoningContent, ""),
					AnswerDelta:    utils.DerefString(delta.Content, ""),
				}, nil
			}
		}
		// 注释行、空行或无 choices 的数据块：继续读下一行。

		if errRead != nil {
			if errRead == io.EOF {
				s.done = true
				return Fragment{}, io.EOF
			}
			return Fragment{}, errRead
		}
	}
}

// Close 关闭底层响应体。
func (s *Stream) Close() error {
	return s.body.Close()
}
