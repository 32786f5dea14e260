package fileService

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/model/naming"
	"cloudsync/internal/service/shareToken"
	"cloudsync/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	defaultContentType = "application/octet-stream"
	cleanupTimeout     = 30 * time.Second
)

var (
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_upload_bytes_total",
		Help: "Bytes of committed uploads.",
	})
	quotaRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_quota_rejections_total",
		Help: "Uploads rejected because they did not fit the owner's quota.",
	})
)

type Repository interface {
	FolderOwned(ctx context.Context, ownerID int64, folderID *int64) error
	Reserve(ctx context.Context, res fileInfo.Reservation) error
	Release(ctx context.Context, res fileInfo.Reservation) error
	Commit(ctx context.Context, res fileInfo.Reservation, f *fileInfo.File) (*fileInfo.File, error)
	Get(ctx context.Context, ownerID, id int64) (*fileInfo.File, error)
	ListRoot(ctx context.Context, ownerID int64) ([]*fileInfo.File, error)
	ListFolder(ctx context.Context, ownerID, folderID int64) ([]*fileInfo.File, error)
	ListAll(ctx context.Context, ownerID int64) ([]*fileInfo.File, error)
	Search(ctx context.Context, ownerID int64, q string) ([]*fileInfo.File, error)
	Rename(ctx context.Context, ownerID, id int64, name string) (*fileInfo.File, error)
	Move(ctx context.Context, ownerID, id int64, folderID *int64) (*fileInfo.File, error)
	Delete(ctx context.Context, ownerID, id int64) (*fileInfo.File, error)
	Stats(ctx context.Context, ownerID int64) (fileInfo.Stats, error)
	CountDownload(ctx context.Context, token string) (*fileInfo.File, error)
}

type BlobStore interface {
	UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, int64, error)
	DeleteFile(ctx context.Context, key string) error
}

type Sharer interface {
	Issue(ctx context.Context, ownerID, fileID int64) (*fileInfo.File, error)
	Revoke(ctx context.Context, ownerID, fileID int64) (*fileInfo.File, error)
	Resolve(ctx context.Context, token string) (*fileInfo.File, error)
}

type BlobCollector interface {
	Collect(ctx context.Context, keys []string)
}

type Config struct {
	// UploadRetries is the number of attempts for bodies that can be rewound.
	UploadRetries int           `env:"STORAGE_UPLOAD_RETRIES" env-default:"3"`
	RetryBackoff  time.Duration `env:"STORAGE_RETRY_BACKOFF" env-default:"200ms"`
}

// UploadInput is one file of an upload request. Size must be the exact byte length of
// Body.
type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadOutcome reports one file of a multi-file upload; exactly one of File and Err is
// set.
type UploadOutcome struct {
	Name string
	File *fileInfo.File
	Err  error
}

// Download is an open file body; the caller must close Body.
type Download struct {
	File *fileInfo.File
	Body io.ReadCloser
	Size int64
}

type FileService struct {
	repo      Repository
	blobs     BlobStore
	sharer    Sharer
	collector BlobCollector
	cfg       Config
}

func New(repo Repository, blobs BlobStore, sharer Sharer, collector BlobCollector, cfg Config) *FileService {
	if cfg.UploadRetries <= 0 {
		cfg.UploadRetries = 3
	}
	return &FileService{repo: repo, blobs: blobs, sharer: sharer, collector: collector, cfg: cfg}
}

// Upload stores one file in folderID (nil for the root). Quota is reserved before any
// byte is transferred and turned into usage only when the record is committed.
func (s *FileService) Upload(ctx context.Context, ownerID int64, folderID *int64, in UploadInput) (*fileInfo.File, error) {
	if err := s.repo.FolderOwned(ctx, ownerID, folderID); err != nil {
		return nil, err
	}
	return s.upload(ctx, ownerID, folderID, in)
}

// UploadMany uploads each input independently; one failing file does not fail the rest.
// Only a missing target folder fails the whole call.
func (s *FileService) UploadMany(ctx context.Context, ownerID int64, folderID *int64, inputs []UploadInput) ([]UploadOutcome, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation("no files provided")
	}
	if err := s.repo.FolderOwned(ctx, ownerID, folderID); err != nil {
		return nil, err
	}
	outcomes := make([]UploadOutcome, 0, len(inputs))
	for _, in := range inputs {
		f, err := s.upload(ctx, ownerID, folderID, in)
		outcomes = append(outcomes, UploadOutcome{Name: in.Name, File: f, Err: err})
	}
	return outcomes, nil
}

func (s *FileService) upload(ctx context.Context, ownerID int64, folderID *int64, in UploadInput) (*fileInfo.File, error) {
	name, err := naming.CleanUploadName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.Size < 0 || in.Body == nil {
		return nil, apperr.Validation("file content is required")
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	log := logger.GetLogger(ctx).With(zap.Int64("user_id", ownerID), zap.String("name", name), zap.Int64("size", in.Size))

	res := fileInfo.Reservation{
		ID:         uuid.New(),
		UserID:     ownerID,
		SizeBytes:  in.Size,
		StorageKey: fmt.Sprintf("%d/%s", ownerID, uuid.NewString()),
	}
	if err := s.repo.Reserve(ctx, res); err != nil {
		if errors.Is(err, apperr.ErrQuotaExceeded) {
			quotaRejectionsTotal.Inc()
			log.Info("upload rejected by quota")
		}
		return nil, err
	}

	committed := false
	defer func() {
		if !committed {
			s.abandon(ctx, res)
		}
	}()

	checksum, err := s.store(ctx, res.StorageKey, in, contentType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		log.Warn("blob upload failed", zap.Error(err))
		return nil, apperr.UploadFailed("failed to store file", err)
	}

	f, err := s.repo.Commit(ctx, res, &fileInfo.File{
		FolderID:     folderID,
		OriginalName: name,
		ContentType:  contentType,
		Checksum:     checksum,
	})
	if err != nil {
		return nil, err
	}
	committed = true
	uploadBytesTotal.Add(float64(in.Size))
	log.Info("file uploaded", zap.Int64("file_id", f.ID))
	return f, nil
}

// store streams the body to the blob store and returns its SHA-256. Bodies that can be
// rewound are retried with backoff.
func (s *FileService) store(ctx context.Context, key string, in UploadInput, contentType string) (string, error) {
	attempts := 1
	seeker, seekable := in.Body.(io.Seeker)
	if seekable {
		attempts = s.cfg.UploadRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt-1)):
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return "", fmt.Errorf("rewind upload body: %w", err)
			}
		}

		h := sha256.New()
		body := &countingReader{r: io.TeeReader(in.Body, h)}
		err := s.blobs.UploadFile(ctx, key, body, in.Size, contentType)
		if err == nil {
			if body.n != in.Size || !drained(in.Body) {
				return "", apperr.UploadFailed("file size does not match the declared size", nil)
			}
			return hex.EncodeToString(h.Sum(nil)), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// abandon gives back the reservation of an upload that will not be committed. The blob
// goes first: if it cannot be removed the reservation stays, and the collector later
// expires it together with the blob.
func (s *FileService) abandon(ctx context.Context, res fileInfo.Reservation) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	log := logger.GetLogger(ctx)

	if err := s.blobs.DeleteFile(cleanupCtx, res.StorageKey); err != nil {
		log.Warn("remove partial upload", zap.String("key", res.StorageKey), zap.Error(err))
		return
	}
	if err := s.repo.Release(cleanupCtx, res); err != nil {
		log.Error("release upload reservation", zap.String("reservation_id", res.ID.String()), zap.Error(err))
	}
}

func (s *FileService) GetFile(ctx context.Context, ownerID, id int64) (*fileInfo.File, error) {
	return s.repo.Get(ctx, ownerID, id)
}

func (s *FileService) ListRoot(ctx context.Context, ownerID int64) ([]*fileInfo.File, error) {
	return s.repo.ListRoot(ctx, ownerID)
}

func (s *FileService) ListFolder(ctx context.Context, ownerID, folderID int64) ([]*fileInfo.File, error) {
	return s.repo.ListFolder(ctx, ownerID, folderID)
}

func (s *FileService) ListAll(ctx context.Context, ownerID int64) ([]*fileInfo.File, error) {
	return s.repo.ListAll(ctx, ownerID)
}

func (s *FileService) Search(ctx context.Context, ownerID int64, q string) ([]*fileInfo.File, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("search query must not be empty")
	}
	return s.repo.Search(ctx, ownerID, q)
}

func (s *FileService) Rename(ctx context.Context, ownerID, id int64, newName string) (*fileInfo.File, error) {
	newName, err := naming.Clean(newName)
	if err != nil {
		return nil, err
	}
	return s.repo.Rename(ctx, ownerID, id, newName)
}

// Move puts the file into folderID; nil moves it to the root.
func (s *FileService) Move(ctx context.Context, ownerID, id int64, folderID *int64) (*fileInfo.File, error) {
	return s.repo.Move(ctx, ownerID, id, folderID)
}

func (s *FileService) Delete(ctx context.Context, ownerID, id int64) error {
	f, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		return err
	}
	logger.GetLogger(ctx).Info("file deleted",
		zap.Int64("user_id", ownerID), zap.Int64("file_id", id), zap.Int64("size", f.SizeBytes))

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	s.collector.Collect(cleanupCtx, []string{f.StoredName})
	return nil
}

func (s *FileService) Stats(ctx context.Context, ownerID int64) (fileInfo.Stats, error) {
	return s.repo.Stats(ctx, ownerID)
}

func (s *FileService) Share(ctx context.Context, ownerID, id int64) (*fileInfo.File, error) {
	return s.sharer.Issue(ctx, ownerID, id)
}

func (s *FileService) Unshare(ctx context.Context, ownerID, id int64) (*fileInfo.File, error) {
	return s.sharer.Revoke(ctx, ownerID, id)
}

// SharedInfo describes a shared file without counting a download.
func (s *FileService) SharedInfo(ctx context.Context, token string) (*fileInfo.File, error) {
	return s.sharer.Resolve(ctx, token)
}

func (s *FileService) Download(ctx context.Context, ownerID, id int64) (*Download, error) {
	f, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, f)
}

// DownloadShared opens the file behind token and counts the download.
func (s *FileService) DownloadShared(ctx context.Context, token string) (*Download, error) {
	if !shareToken.WellFormed(token) {
		return nil, apperr.NotFound("shared file not found")
	}
	f, err := s.repo.CountDownload(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, f)
}

// DownloadWithToken serves fileID to an anonymous caller holding a share token. A valid
// token for a different file is Forbidden.
func (s *FileService) DownloadWithToken(ctx context.Context, fileID int64, token string) (*Download, error) {
	f, err := s.sharer.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if f.ID != fileID {
		return nil, apperr.Forbidden("share token does not grant access to this file")
	}
	return s.DownloadShared(ctx, token)
}

func (s *FileService) open(ctx context.Context, f *fileInfo.File) (*Download, error) {
	body, size, err := s.blobs.DownloadFile(ctx, f.StoredName)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			err = fmt.Errorf("open blob of file %d: %w", f.ID, err)
		}
		return nil, err
	}
	return &Download{File: f, Body: body, Size: size}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// drained reports whether r has no bytes left.
func drained(r io.Reader) bool {
	var probe [1]byte
	n, _ := io.ReadFull(r, probe[:])
	return n == 0
}
