package models

// ErrorDetail 错误详情结构，用于在 API 响应中提供统一的错误信息。
// 符合 OpenAI 错误对象的风格。
type ErrorDetail struct {
	Message string `json:"message"`         // 必需：可读的错误描述。
	Type    string `json:"type"`            // 必需：错误类型，例如 "authentication_error", "quota_exhausted"。
	Code    any    `json:"code,omitempty"`  // 可选：机器可读的错误代码。
	Param   string `json:"param,omitempty"` // 可选：导致错误的参数名称。
}

// ErrorResponse 统一的错误响应结构，包装了 ErrorDetail。
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// SSE (Server-Sent Events) 相关常量，用于流式 API 响应。
const (
	SSEDataPrefix  = "data: " // SSE 事件中数据行必须以此字符串开头。
	SSEDonePayload = "[DONE]" // OpenAI 风格的流结束时发送的特殊数据负载。
)
