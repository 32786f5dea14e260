// Package shareHandler serves anonymous access to shared files.
package shareHandler

import (
	"context"

	"cloudsync/internal/handler"
	"cloudsync/internal/handler/fileHandler"
	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/service/fileService"
	"cloudsync/pkg/response"

	"github.com/gin-gonic/gin"
)

type SharedFiles interface {
	SharedInfo(ctx context.Context, token string) (*fileInfo.File, error)
	DownloadShared(ctx context.Context, token string) (*fileService.Download, error)
}

type ShareHandler struct {
	files SharedFiles
}

func New(files SharedFiles) *ShareHandler {
	return &ShareHandler{files: files}
}

// Download streams the file behind the token and counts the download.
func (h *ShareHandler) Download(c *gin.Context) {
	d, err := h.files.DownloadShared(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	fileHandler.Stream(c, d)
}

func (h *ShareHandler) Info(c *gin.Context) {
	f, err := h.files.SharedInfo(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "shared file", handler.NewSharedFileDTO(f))
}
