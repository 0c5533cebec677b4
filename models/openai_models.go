// models/openai_models.go
package models

// --- OpenAI 兼容的聊天模型 ---

// Message 表示聊天会话中的单个消息。
// 会话文稿就是按顺序追加的 Message 序列，整体序列化后存入 history 表。
type Message struct {
	Role    string `json:"role"`    // 消息发送者的角色 ("system", "user", "assistant")
	Content string `json:"content"` // 消息的内容
}

// ChatCompletionRequest 表示发往上游聊天完成 API 的请求结构 (遵循 OpenAI 规范)。
type ChatCompletionRequest struct {
	Model     string    `json:"model"`                // 必需：要使用的模型 ID
	Messages  []Message `json:"messages"`             // 必需：消息列表
	Stream    bool      `json:"stream"`               // 本服务总是以流式方式消费上游响应
	MaxTokens int       `json:"max_tokens,omitempty"` // 响应 token 上限
}

// --- OpenAI 兼容的流式响应模型 (Server-Sent Events) ---

// SSEChoiceDelta 表示在 SSE 流中，choices 数组内 delta 对象的内容。
// DeepSeek 的 reasoner 模型会先在 reasoning_content 中输出推理过程，
// 之后在 content 中输出正式回答。
type SSEChoiceDelta struct {
	Content          *string `json:"content,omitempty"`           // 回答内容的增量部分
	ReasoningContent *string `json:"reasoning_content,omitempty"` // 推理内容的增量部分
	Role             *string `json:"role,omitempty"`
}

// SSEChoice 表示在 SSE 流中，choices 数组的单个元素结构。
type SSEChoice struct {
	Delta        SSEChoiceDelta `json:"delta"`
	Index        int            `json:"index"`
	FinishReason *string        `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk 表示 SSE 流中单个事件的数据结构。
type ChatCompletionChunk struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"` // "chat.completion.chunk"
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []SSEChoice `json:"choices"`
}
