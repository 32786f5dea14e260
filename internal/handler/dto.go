// Package handler holds what the HTTP handlers share: the JSON shapes of the API and
// request parameter parsing.
package handler

import (
	"time"

	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/model/folder"
	"cloudsync/internal/model/user"

	"github.com/dustin/go-humanize"
)

type FileDTO struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	OriginalName  string    `json:"originalName"`
	ContentType   string    `json:"contentType"`
	Size          int64     `json:"size"`
	FormattedSize string    `json:"formattedSize"`
	Checksum      string    `json:"checksum"`
	FolderID      *int64    `json:"folderId"`
	FolderName    *string   `json:"folderName"`
	IsPublic      bool      `json:"isPublic"`
	ShareToken    *string   `json:"shareToken"`
	DownloadCount int64     `json:"downloadCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewFileDTO(f *fileInfo.File) FileDTO {
	return FileDTO{
		ID:            f.ID,
		Name:          f.OriginalName,
		OriginalName:  f.OriginalName,
		ContentType:   f.ContentType,
		Size:          f.SizeBytes,
		FormattedSize: humanize.IBytes(uint64(f.SizeBytes)),
		Checksum:      f.Checksum,
		FolderID:      f.FolderID,
		FolderName:    f.FolderName,
		IsPublic:      f.IsPublic,
		ShareToken:    f.ShareToken,
		DownloadCount: f.DownloadCount,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

func NewFileDTOs(files []*fileInfo.File) []FileDTO {
	out := make([]FileDTO, 0, len(files))
	for _, f := range files {
		out = append(out, NewFileDTO(f))
	}
	return out
}

// SharedFileDTO is what anonymous holders of a share token may see.
type SharedFileDTO struct {
	Name          string    `json:"name"`
	ContentType   string    `json:"contentType"`
	Size          int64     `json:"size"`
	FormattedSize string    `json:"formattedSize"`
	DownloadCount int64     `json:"downloadCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

func NewSharedFileDTO(f *fileInfo.File) SharedFileDTO {
	return SharedFileDTO{
		Name:          f.OriginalName,
		ContentType:   f.ContentType,
		Size:          f.SizeBytes,
		FormattedSize: humanize.IBytes(uint64(f.SizeBytes)),
		DownloadCount: f.DownloadCount,
		CreatedAt:     f.CreatedAt,
	}
}

type CrumbDTO struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

func NewCrumbDTOs(crumbs []folder.Crumb) []CrumbDTO {
	out := make([]CrumbDTO, 0, len(crumbs))
	for _, c := range crumbs {
		out = append(out, CrumbDTO{ID: c.ID, Name: c.Name})
	}
	return out
}

type FolderDTO struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Path           string      `json:"path"`
	ParentID       *int64      `json:"parentId"`
	ParentName     *string     `json:"parentName"`
	FileCount      int         `json:"fileCount"`
	SubfolderCount int         `json:"subfolderCount"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	Subfolders     []FolderDTO `json:"subfolders"`
	Files          []FileDTO   `json:"files"`
	Breadcrumbs    []CrumbDTO  `json:"breadcrumbs,omitempty"`
}

func NewFolderDTO(v *folder.View) FolderDTO {
	return FolderDTO{
		ID:             v.ID,
		Name:           v.Name,
		Path:           v.Path,
		ParentID:       v.ParentID,
		ParentName:     v.ParentName,
		FileCount:      v.FileCount,
		SubfolderCount: v.SubfolderCount,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
		Subfolders:     NewFolderDTOs(v.Subfolders),
		Files:          NewFileDTOs(v.Files),
		Breadcrumbs:    NewCrumbDTOs(v.Breadcrumbs),
	}
}

func NewFolderDTOs(views []*folder.View) []FolderDTO {
	out := make([]FolderDTO, 0, len(views))
	for _, v := range views {
		out = append(out, NewFolderDTO(v))
	}
	return out
}

type DeleteFolderDTO struct {
	DeletedFolders int    `json:"deletedFolders"`
	DeletedFiles   int    `json:"deletedFiles"`
	FreedBytes     int64  `json:"freedBytes"`
	FreedFormatted string `json:"formattedFreedBytes"`
}

func NewDeleteFolderDTO(r *folder.DeleteResult) DeleteFolderDTO {
	return DeleteFolderDTO{
		DeletedFolders: r.Folders,
		DeletedFiles:   r.Files,
		FreedBytes:     r.FreedBytes,
		FreedFormatted: humanize.IBytes(uint64(r.FreedBytes)),
	}
}

type StatsDTO struct {
	UsedStorage               int64   `json:"usedStorage"`
	MaxStorage                int64   `json:"maxStorage"`
	AvailableStorage          int64   `json:"availableStorage"`
	TotalFiles                int     `json:"totalFiles"`
	TotalFolders              int     `json:"totalFolders"`
	UsedPercentage            float64 `json:"usedPercentage"`
	FormattedUsedStorage      string  `json:"formattedUsedStorage"`
	FormattedMaxStorage       string  `json:"formattedMaxStorage"`
	FormattedAvailableStorage string  `json:"formattedAvailableStorage"`
}

func NewStatsDTO(s fileInfo.Stats) StatsDTO {
	return StatsDTO{
		UsedStorage:               s.UsedStorage,
		MaxStorage:                s.MaxStorage,
		AvailableStorage:          s.AvailableStorage(),
		TotalFiles:                s.TotalFiles,
		TotalFolders:              s.TotalFolders,
		UsedPercentage:            s.UsedPercentage(),
		FormattedUsedStorage:      humanize.IBytes(uint64(s.UsedStorage)),
		FormattedMaxStorage:       humanize.IBytes(uint64(s.MaxStorage)),
		FormattedAvailableStorage: humanize.IBytes(uint64(s.AvailableStorage())),
	}
}

type UserDTO struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	MaxStorage     int64     `json:"maxStorage"`
	UsedStorage    int64     `json:"usedStorage"`
	UsedPercentage float64   `json:"usedPercentage"`
	CreatedAt      time.Time `json:"createdAt"`
}

func NewUserDTO(u *user.User) UserDTO {
	return UserDTO{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		MaxStorage:     u.MaxStorageBytes,
		UsedStorage:    u.UsedStorageBytes,
		UsedPercentage: u.UsedPercentage(),
		CreatedAt:      u.CreatedAt,
	}
}
