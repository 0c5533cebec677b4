// Package fileparse 负责上传文件的接收：大小限制、按内容哈希去重、
// 以及通过外部文本提取器把文档/图片类文件转成纯文本。
package fileparse

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// MaxFileSize 单个上传文件的大小上限。
const MaxFileSize = 10 * 1024 * 1024

var (
	ErrTooLarge         = errors.New("file exceeds size limit")
	ErrDuplicateName    = errors.New("file with the same name already in batch")
	ErrDuplicateContent = errors.New("file with identical content already in batch")
)

// Extractor 外部文本提取协作方：把文档/图片类文件内容转成纯文本。
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}

// extractedTypes 需要经过 Extractor 处理的扩展名，其余按 UTF-8 文本直读。
var extractedTypes = map[string]bool{
	".doc":  true,
	".docx": true,
	".pdf":  true,
	".jpg":  true,
	".png":  true,
}

// File 一个已接收并完成文本提取的上传文件。
type File struct {
	Name    string `json:"name"`
	Content string `json:"-"`
	Size    int64  `json:"size"`
	Hash    string `json:"hash"`
}

// Intake 一个上传批次。同批次内按文件名和内容哈希去重。
// 非并发安全，一个批次只在单个请求处理流程中使用。
type Intake struct {
	extractor Extractor
	files     []File
	names     map[string]bool
	hashes    map[string]bool
	log       *logrus.Logger
}

// NewIntake 创建一个空的上传批次。
func NewIntake(extractor Extractor, log *logrus.Logger) *Intake {
	return &Intake{
		extractor: extractor,
		names:     make(map[string]bool),
		hashes:    make(map[string]bool),
		log:       log,
	}
}

// Add 接收一个上传文件。超限、重名、重复内容或解析失败时返回错误；
// 单个文件失败不影响批次内的其他文件。
func (in *Intake) Add(name string, data []byte) error {
	if int64(len(data)) > MaxFileSize {
		return ErrTooLarge
	}
	if in.names[name] {
		return ErrDuplicateName
	}

	content, err := in.extractText(name, data)
	if err != nil {
		return fmt.Errorf("解析文件 %s 失败: %w", name, err)
	}

	sum := md5.Sum([]byte(content))
	hash := hex.EncodeToString(sum[:])
	if in.hashes[hash] {
		return ErrDuplicateContent
	}

	in.names[name] = true
	in.hashes[hash] = true
	in.files = append(in.files, File{
		Name:    name,
		Content: content,
		Size:    int64(len(data)),
		Hash:    hash,
	})
	if in.log != nil {
		in.log.Debugf("文件 %s (%d bytes) 已加入上传批次。", name, len(data))
	}
	return nil
}

// extractText 根据扩展名决定走外部提取器还是按 UTF-8 文本直读。
func (in *Intake) extractText(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if extractedTypes[ext] {
		if in.extractor == nil {
			return "", errors.New("no text extractor configured for this file type")
		}
		return in.extractor.Extract(name, data)
	}
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8 text")
	}
	return string(data), nil
}

// Files 返回批次内已接收的文件。
func (in *Intake) Files() []File {
	return in.files
}

// FormatContents 把一组文件内容格式化为带分隔标题的文本块。
func FormatContents(files []File) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n", f.Name, f.Content)
	}
	return b.String()
}

// PlainText 仅支持 UTF-8 文本的兜底提取器。
// 真实部署中这里应换成接入 OCR / 文档解析服务的实现。
type PlainText struct{}

func (PlainText) Extract(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("cannot extract text from %s: binary content", name)
	}
	return string(data), nil
}
