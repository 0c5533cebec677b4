package handlers

import (
	"sync"

	"github.com/HosamN-ALI/DeepGaza/chatstream"
	"github.com/HosamN-ALI/DeepGaza/fileparse"
	"github.com/HosamN-ALI/DeepGaza/search"
	"github.com/HosamN-ALI/DeepGaza/storage"

	"github.com/sirupsen/logrus"
)

// 包级依赖，在 main.go 中初始化并注入。
// 这种方式简化了在 handler 函数中访问这些共享实例的过程。
var (
	Log          *logrus.Logger        // 全局日志记录器实例。
	Users        *storage.UserStore    // 用户账户与黑名单存储。
	Sessions     *storage.SessionStore // 聊天会话存储。
	Quota        *storage.QuotaStore   // 配额账本。
	ChatClient   *chatstream.Client    // 上游 LLM 流式客户端。
	SearchClient *search.Client        // 搜索客户端；未配置 SEARCH_API_KEY 时为 nil。
	Extractor    fileparse.Extractor   // 上传文件文本提取协作方。
)

// pendingUploads 每个用户待消费的上传文件批次：上传接口写入，
// 下一次聊天请求取走并清空。
var (
	uploadMu       sync.Mutex
	pendingUploads = make(map[string][]fileparse.File)
)

func takePendingUploads(username string) []fileparse.File {
	uploadMu.Lock()
	defer uploadMu.Unlock()
	files := pendingUploads[username]
	delete(pendingUploads, username)
	return files
}

func appendPendingUploads(username string, files []fileparse.File) {
	uploadMu.Lock()
	defer uploadMu.Unlock()
	pendingUploads[username] = append(pendingUploads[username], files...)
}
