// Package prompt 负责把可选的搜索结果、可选的上传文件内容和用户消息
// 拼装成一条发往上游的完整提示，以及构造系统角色消息。
// 纯函数，无副作用。
package prompt

import "strings"

// FilesLabel 文件内容块的标签行。
const FilesLabel = "[Uploaded files content]"

// answerInstructions 所有系统角色共享的回答指令尾部。
const answerInstructions = "please answer the questions asked by the user. " +
	"At the same time, if the user provides search results, please add the corresponding references in the answer. " +
	"If you need to output mathematical formulas in LaTeX format, please write mathematical formulas in Obsidian compatible LaTeX format, " +
	"with the following requirements: 1. Inline formulas are wrapped with a single $, such as $x^2$. " +
	"2. Independent formula blocks are wrapped with two $$, such as: $$\\int_a^b f(x)dx$$."

// defaultRolePreamble 未提供自定义角色时的默认开场。
const defaultRolePreamble = "You are an AI assistant, "

// Assemble 拼装发往上游的提示文本：搜索结果在前（如有），然后是用户消息，
// 最后是带标签的文件内容块（如有），各部分以换行连接。
// 不做任何长度截断——提示过长的问题由上游报错暴露，这是记录在案的缺口。
func Assemble(searchBlock, fileBlock, userMessage string) string {
	parts := make([]string, 0, 3)
	if searchBlock != "" {
		parts = append(parts, searchBlock)
	}
	parts = append(parts, userMessage)
	if fileBlock != "" {
		parts = append(parts, "\n"+FilesLabel+"\n"+fileBlock)
	}
	return strings.Join(parts, "\n")
}

// SystemRole 构造系统角色消息内容。custom 非空时作为角色开场，
// 否则使用默认的 AI 助手角色；回答指令两种情况下都会附加。
func SystemRole(custom string) string {
	custom = strings.TrimSpace(custom)
	if custom != "" {
		return custom + ", " + answerInstructions
	}
	return defaultRolePreamble + answerInstructions
}
