package prompt

import (
	"strings"
	"testing"
)

func TestAssembleMessageOnly(t *testing.T) {
	if got := Assemble("", "", "今天天气如何"); got != "今天天气如何" {
		t.Errorf("仅消息时 Assemble = %q, 期望原样返回", got)
	}
}

func TestAssembleWithSearch(t *testing.T) {
	searchBlock := "**Web Search Results**\n• [t](l)\n  s\n\n"
	got := Assemble(searchBlock, "", "问题")
	if !strings.HasPrefix(got, searchBlock) {
		t.Error("搜索结果块应出现在提示最前面")
	}
	if !strings.HasSuffix(got, "问题") {
		t.Error("用户消息应出现在搜索结果之后")
	}
}

func TestAssembleWithFiles(t *testing.T) {
	fileBlock := "=== notes.txt ===\nhello\n"
	got := Assemble("", fileBlock, "总结一下")
	wantSuffix := "\n\n" + FilesLabel + "\n" + fileBlock
	if !strings.HasSuffix(got, wantSuffix) {
		t.Errorf("文件块应带标签附在消息之后:\n%q", got)
	}
	if !strings.HasPrefix(got, "总结一下") {
		t.Error("无搜索结果时用户消息应在最前面")
	}
}

func TestAssembleAllParts(t *testing.T) {
	got := Assemble("SEARCH", "FILES", "MESSAGE")
	searchIdx := strings.Index(got, "SEARCH")
	messageIdx := strings.Index(got, "MESSAGE")
	filesIdx := strings.Index(got, "FILES")
	if !(searchIdx < messageIdx && messageIdx < filesIdx) {
		t.Errorf("各部分顺序应为 搜索→消息→文件:\n%q", got)
	}
	if !strings.Contains(got, FilesLabel) {
		t.Error("文件块前缺少标签行")
	}
}

func TestSystemRoleDefault(t *testing.T) {
	got := SystemRole("")
	if !strings.HasPrefix(got, "You are an AI assistant, ") {
		t.Errorf("默认系统角色开场不对: %q", got)
	}
	if !strings.Contains(got, "LaTeX") {
		t.Error("系统角色应包含公式格式指令")
	}
}

func TestSystemRoleCustom(t *testing.T) {
	got := SystemRole("  You are a pirate  ")
	if !strings.HasPrefix(got, "You are a pirate, ") {
		t.Errorf("自定义角色应作为开场（去除首尾空白）: %q", got)
	}
	if SystemRole("   ") != SystemRole("") {
		t.Error("纯空白的自定义角色应回退到默认角色")
	}
}
