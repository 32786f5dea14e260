package fileInfo

import (
	"errors"
	"time"

	"cloudsync/internal/model/user"

	"github.com/google/uuid"
)

// ErrShareTokenTaken is returned when a freshly minted share token collides with an
// existing one.
var ErrShareTokenTaken = errors.New("share token already in use")

type File struct {
	ID       int64
	OwnerID  int64
	FolderID *int64
	// FolderName is filled by queries that join the owning folder.
	FolderName   *string
	OriginalName string
	// StoredName is the blob-store key; it never leaves the server.
	StoredName    string
	ContentType   string
	SizeBytes     int64
	Checksum      string
	IsPublic      bool
	ShareToken    *string
	DownloadCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reservation is quota held for an upload whose bytes are still in flight.
type Reservation struct {
	ID         uuid.UUID
	UserID     int64
	SizeBytes  int64
	StorageKey string
	CreatedAt  time.Time
}

type Stats struct {
	UsedStorage  int64
	MaxStorage   int64
	TotalFiles   int
	TotalFolders int
}

func (s Stats) AvailableStorage() int64 {
	if s.UsedStorage >= s.MaxStorage {
		return 0
	}
	return s.MaxStorage - s.UsedStorage
}

func (s Stats) UsedPercentage() float64 {
	return user.UsedPercentage(s.UsedStorage, s.MaxStorage)
}
