package utils

// SafeSuffix 安全地获取字符串末尾几位并添加前缀 "..."，
// 用于日志或展示，避免暴露完整的敏感信息（如 API 密钥）。
func SafeSuffix(s string) string {
	const suffixLength = 4
	if len(s) == 0 {
		return "[EMPTY]"
	}
	if len(s) > suffixLength {
		return "..." + s[len(s)-suffixLength:]
	}
	return "..." + s
}

// DerefString 安全地解引用字符串指针，指针为 nil 时返回默认值。
// 用于处理来自 JSON 的可选字符串字段。
func DerefString(s *string, def string) string {
	if s != nil {
		return *s
	}
	return def
}
