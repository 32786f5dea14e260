package fileHandler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"cloudsync/internal/apperr"
	"cloudsync/internal/handler"
	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/service/fileService"
	"cloudsync/pkg/logger"
	"cloudsync/pkg/middleware"
	"cloudsync/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FileService interface {
	Upload(ctx context.Context, ownerID int64, folderID *int64, in fileService.UploadInput) (*fileInfo.File, error)
	UploadMany(ctx context.Context, ownerID int64, folderID *int64, inputs []fileService.UploadInput) ([]fileService.UploadOutcome, error)
	GetFile(ctx context.Context, ownerID, id int64) (*fileInfo.File, error)
	ListRoot(ctx context.Context, ownerID int64) ([]*fileInfo.File, error)
	ListFolder(ctx context.Context, ownerID, folderID int64) ([]*fileInfo.File, error)
	ListAll(ctx context.Context, ownerID int64) ([]*fileInfo.File, error)
	Search(ctx context.Context, ownerID int64, q string) ([]*fileInfo.File, error)
	Rename(ctx context.Context, ownerID, id int64, newName string) (*fileInfo.File, error)
	Move(ctx context.Context, ownerID, id int64, folderID *int64) (*fileInfo.File, error)
	Delete(ctx context.Context, ownerID, id int64) error
	Stats(ctx context.Context, ownerID int64) (fileInfo.Stats, error)
	Share(ctx context.Context, ownerID, id int64) (*fileInfo.File, error)
	Unshare(ctx context.Context, ownerID, id int64) (*fileInfo.File, error)
	Download(ctx context.Context, ownerID, id int64) (*fileService.Download, error)
	DownloadWithToken(ctx context.Context, fileID int64, token string) (*fileService.Download, error)
}

type FileHandler struct {
	fileService    FileService
	maxUploadBytes int64
}

// NewFileHandler builds the handler; maxUploadBytes caps the body of one upload request.
func NewFileHandler(fileService FileService, maxUploadBytes int64) *FileHandler {
	return &FileHandler{fileService: fileService, maxUploadBytes: maxUploadBytes}
}

// UploadResultDTO reports one file of a multi-file upload.
type UploadResultDTO struct {
	Name    string           `json:"name"`
	Success bool             `json:"success"`
	File    *handler.FileDTO `json:"file"`
	Error   string           `json:"error,omitempty"`
	Status  int              `json:"status"`
}

func (h *FileHandler) Upload(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	form, ok := h.multipartForm(c)
	if !ok {
		return
	}
	defer form.RemoveAll()

	folderID, err := handler.OptionalID(formValue(c, form, "folderId"), "folderId")
	if err != nil {
		response.Error(c, err)
		return
	}
	headers := form.File["file"]
	if len(headers) != 1 {
		response.Error(c, apperr.Validation("exactly one file is required in field 'file'"))
		return
	}

	in, closeBody, err := uploadInput(headers[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeBody()

	f, err := h.fileService.Upload(c.Request.Context(), uid, folderID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "file uploaded", handler.NewFileDTO(f))
}

func (h *FileHandler) UploadMultiple(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	form, ok := h.multipartForm(c)
	if !ok {
		return
	}
	defer form.RemoveAll()

	folderID, err := handler.OptionalID(formValue(c, form, "folderId"), "folderId")
	if err != nil {
		response.Error(c, err)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		response.Error(c, apperr.Validation("no files provided in field 'files'"))
		return
	}

	inputs := make([]fileService.UploadInput, 0, len(headers))
	for _, fh := range headers {
		in, closeBody, err := uploadInput(fh)
		if err != nil {
			response.Error(c, err)
			return
		}
		defer closeBody()
		inputs = append(inputs, in)
	}

	outcomes, err := h.fileService.UploadMany(c.Request.Context(), uid, folderID, inputs)
	if err != nil {
		response.Error(c, err)
		return
	}
	results := make([]UploadResultDTO, 0, len(outcomes))
	uploaded := 0
	for _, o := range outcomes {
		r := UploadResultDTO{Name: o.Name, Status: http.StatusCreated}
		if o.Err != nil {
			r.Error = apperr.Message(o.Err)
			r.Status = response.Status(o.Err)
			if r.Status == http.StatusInternalServerError {
				logger.GetLogger(c.Request.Context()).Error("upload failed", zap.String("name", o.Name), zap.Error(o.Err))
			}
		} else {
			dto := handler.NewFileDTO(o.File)
			r.File = &dto
			r.Success = true
			uploaded++
		}
		results = append(results, r)
	}
	response.OK(c, fmt.Sprintf("%d of %d files uploaded", uploaded, len(outcomes)), results)
}

// multipartForm parses the request body under the upload size cap. It writes the error
// response itself and reports false on failure.
func (h *FileHandler) multipartForm(c *gin.Context) (*multipart.Form, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		response.Error(c, apperr.Validation("invalid multipart request"))
		return nil, false
	}
	return form, true
}

func formValue(c *gin.Context, form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return c.Query(key)
}

// uploadInput opens a multipart file. The returned body is seekable, so the service can
// retry it.
func uploadInput(fh *multipart.FileHeader) (fileService.UploadInput, func(), error) {
	body, err := fh.Open()
	if err != nil {
		return fileService.UploadInput{}, nil, fmt.Errorf("open multipart file: %w", err)
	}
	return fileService.UploadInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        body,
	}, func() { _ = body.Close() }, nil
}

func (h *FileHandler) GetFile(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	f, err := h.fileService.GetFile(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "file details", handler.NewFileDTO(f))
}

func (h *FileHandler) ListAll(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	files, err := h.fileService.ListAll(c.Request.Context(), uid)
	h.respondList(c, files, err)
}

func (h *FileHandler) ListRoot(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	files, err := h.fileService.ListRoot(c.Request.Context(), uid)
	h.respondList(c, files, err)
}

func (h *FileHandler) ListFolder(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	files, err := h.fileService.ListFolder(c.Request.Context(), uid, id)
	h.respondList(c, files, err)
}

func (h *FileHandler) Search(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	files, err := h.fileService.Search(c.Request.Context(), uid, c.Query("q"))
	h.respondList(c, files, err)
}

func (h *FileHandler) respondList(c *gin.Context, files []*fileInfo.File, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fmt.Sprintf("%d files", len(files)), handler.NewFileDTOs(files))
}

func (h *FileHandler) Rename(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	f, err := h.fileService.Rename(c.Request.Context(), uid, id, handler.NameParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "file renamed", handler.NewFileDTO(f))
}

func (h *FileHandler) Move(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	folderID, err := handler.OptionalID(c.Query("folderId"), "folderId")
	if err != nil {
		response.Error(c, err)
		return
	}
	f, err := h.fileService.Move(c.Request.Context(), uid, id, folderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "file moved", handler.NewFileDTO(f))
}

func (h *FileHandler) Delete(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.fileService.Delete(c.Request.Context(), uid, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "file deleted", nil)
}

func (h *FileHandler) Stats(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	st, err := h.fileService.Stats(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "storage statistics", handler.NewStatsDTO(st))
}

func (h *FileHandler) Share(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	f, err := h.fileService.Share(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "file shared", handler.NewFileDTO(f))
}

func (h *FileHandler) Unshare(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	f, err := h.fileService.Unshare(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "file unshared", handler.NewFileDTO(f))
}

// Download streams a file to its owner, or to anyone presenting a share token for it in
// the "token" query parameter.
func (h *FileHandler) Download(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var d *fileService.Download
	switch uid, authed := middleware.UserID(c); {
	case c.Query("token") != "":
		d, err = h.fileService.DownloadWithToken(c.Request.Context(), id, c.Query("token"))
	case authed:
		d, err = h.fileService.Download(c.Request.Context(), uid, id)
	default:
		err = apperr.Unauthorized("authorization token not provided")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	Stream(c, d)
}

// Stream writes an open download as an attachment and closes it.
func Stream(c *gin.Context, d *fileService.Download) {
	defer d.Body.Close()
	c.Header("Content-Disposition", ContentDisposition(d.File.OriginalName))
	c.Header("Content-Length", strconv.FormatInt(d.Size, 10))
	c.Header("Content-Type", d.File.ContentType)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, d.Body); err != nil {
		logger.GetLogger(c.Request.Context()).Warn("download interrupted",
			zap.Int64("file_id", d.File.ID), zap.Error(err))
	}
}

// ContentDisposition renders an attachment header with an ASCII fallback name and the
// exact UTF-8 name.
func ContentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, extValue(name))
}

// extValue percent-encodes every byte outside the RFC 5987 attr-char set.
func extValue(s string) string {
	const attrChars = "!#$&+-.^_`|~"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9',
			strings.IndexByte(attrChars, ch) >= 0:
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}
