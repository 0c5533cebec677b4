package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/HosamN-ALI/DeepGaza/config"
	"github.com/HosamN-ALI/DeepGaza/fileparse"
	"github.com/HosamN-ALI/DeepGaza/middleware"
	"github.com/HosamN-ALI/DeepGaza/models"

	"github.com/gin-gonic/gin"
)

// UploadHandler 接收 multipart 批量上传，抽取文本内容后暂存，
// 等待该用户的下一次聊天请求消费。单个文件失败不影响其余文件。
func UploadHandler(c *gin.Context) {
	principal := middleware.PrincipalFromContext(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "无效的 multipart 表单: " + err.Error(), Type: "invalid_request_error"}})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "未提供任何文件。", Type: "invalid_request_error", Param: "files"}})
		return
	}

	intake := fileparse.NewIntake(Extractor, Log)
	type fileResult struct {
		Name  string `json:"name"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	results := make([]fileResult, 0, len(fileHeaders))

	for _, fh := range fileHeaders {
		data, readErr := readMultipartFile(fh)
		if readErr != nil {
			Log.Warnf("UploadHandler: 读取 %s 失败: %v", fh.Filename, readErr)
			results = append(results, fileResult{Name: fh.Filename, Error: "读取文件失败"})
			continue
		}

		if addErr := intake.Add(fh.Filename, data); addErr != nil {
			results = append(results, fileResult{Name: fh.Filename, Error: intakeErrorMessage(addErr)})
			continue
		}

		// 原始文件落盘留档，失败只记录，不影响本次上传。
		if saveErr := saveRawUpload(principal.Username, fh.Filename, data); saveErr != nil {
			Log.Warnf("UploadHandler: 落盘 %s 失败: %v", fh.Filename, saveErr)
		}
		results = append(results, fileResult{Name: fh.Filename, OK: true})
	}

	accepted := intake.Files()
	if len(accepted) > 0 {
		appendPendingUploads(principal.Username, accepted)
	}
	Log.Infof("UploadHandler: 用户 %s 上传 %d 个文件，接受 %d 个。",
		principal.Username, len(fileHeaders), len(accepted))
	c.JSON(http.StatusOK, gin.H{"accepted": len(accepted), "results": results})
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// 多读一个字节即可判定超限，避免无上限读入内存。
	data, err := io.ReadAll(io.LimitReader(f, fileparse.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func intakeErrorMessage(err error) string {
	switch {
	case errors.Is(err, fileparse.ErrTooLarge):
		return "文件超过 10MB 上限"
	case errors.Is(err, fileparse.ErrDuplicateName):
		return "同名文件已在本批次中"
	case errors.Is(err, fileparse.ErrDuplicateContent):
		return "内容与本批次中的另一文件重复"
	default:
		return err.Error()
	}
}

// saveRawUpload 把原始字节写入上传目录，按用户分子目录。
func saveRawUpload(username, filename string, data []byte) error {
	dir := filepath.Join(config.AppSettings.UploadDir, username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// Base 去掉路径成分，防止目录穿越。
	return os.WriteFile(filepath.Join(dir, filepath.Base(filename)), data, 0o644)
}
