// Package search 封装对 serper.dev 搜索服务的出站调用，
// 并把结果格式化为可直接拼进提示的 Markdown 块。
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxResults 只取返回结果的前几条。
const maxResults = 3

// Client serper.dev 搜索客户端。
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient 创建搜索客户端。httpClient 的超时由 main.go 配置（默认 10 秒）。
func NewClient(endpoint, apiKey string, httpClient *http.Client, log *logrus.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: httpClient,
		log:        log,
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl"`
	HL  string `json:"hl"`
	Num int    `json:"num"`
}

type organicHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Organic []organicHit `json:"organic"`
}

// Search 执行一次搜索并返回格式化后的结果块。
// 调用失败直接返回错误，由 handler 决定是否在没有搜索结果的情况下继续。
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	payload := searchRequest{Q: query, GL: "us", HL: "en", Num: 5}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化搜索请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("创建搜索请求失败: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求搜索服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.log.Errorf("搜索服务返回非 200 状态: %d. Body: %s", resp.StatusCode, string(bodyBytes))
		return "", fmt.Errorf("搜索服务错误 (状态 %d)", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("解析搜索响应失败: %w", err)
	}

	c.log.Debugf("搜索 %q 返回 %d 条结果。", query, len(result.Organic))
	return formatResults(result.Organic), nil
}

// formatResults 把前几条结果渲染为 Markdown 列表块。
func formatResults(hits []organicHit) string {
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("• [%s](%s)\n  %s", hit.Title, hit.Link, hit.Snippet))
	}
	return fmt.Sprintf("**Web Search Results**\n%s\n\n", strings.Join(lines, "\n"))
}
