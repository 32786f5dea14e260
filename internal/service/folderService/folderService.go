package folderService

import (
	"context"
	"fmt"
	"time"

	"cloudsync/internal/model/folder"
	"cloudsync/internal/model/naming"
	"cloudsync/pkg/logger"

	"go.uber.org/zap"
)

// blobCleanupTimeout bounds the best-effort blob removal that follows a delete.
const blobCleanupTimeout = 30 * time.Second

type Repository interface {
	Create(ctx context.Context, ownerID int64, name string, parentID *int64) (*folder.Folder, error)
	Get(ctx context.Context, ownerID, id int64) (*folder.Summary, error)
	Contents(ctx context.Context, ownerID, id int64) (*folder.Contents, error)
	ListRoot(ctx context.Context, ownerID int64) ([]*folder.Summary, error)
	ListChildren(ctx context.Context, ownerID, id int64) ([]*folder.Folder, []*folder.Summary, error)
	Ancestors(ctx context.Context, ownerID, id int64) ([]*folder.Folder, error)
	Rename(ctx context.Context, ownerID, id int64, name string) (*folder.Folder, error)
	Move(ctx context.Context, ownerID, id int64, newParent *int64) (*folder.Folder, error)
	DeleteTree(ctx context.Context, ownerID, id int64) (*folder.DeleteResult, error)
}

// BlobCollector removes blobs whose records were already deleted.
type BlobCollector interface {
	Collect(ctx context.Context, keys []string)
}

type FolderService struct {
	repo      Repository
	collector BlobCollector
}

func New(repo Repository, collector BlobCollector) *FolderService {
	return &FolderService{repo: repo, collector: collector}
}

func (s *FolderService) CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64) (*folder.View, error) {
	name, err := naming.Clean(name)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, ownerID, name, parentID)
	if err != nil {
		return nil, err
	}
	logger.GetLogger(ctx).Info("folder created",
		zap.Int64("user_id", ownerID), zap.Int64("folder_id", created.ID))
	return s.view(ctx, ownerID, created.ID)
}

// GetFolder returns the folder with its direct subfolders, files and breadcrumbs, all
// read from one snapshot.
func (s *FolderService) GetFolder(ctx context.Context, ownerID, id int64) (*folder.View, error) {
	c, err := s.repo.Contents(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	v, err := newView(c.Folder, folder.NewChain(c.Ancestors))
	if err != nil {
		return nil, err
	}
	v.Subfolders = childViews(v, c.Subfolders)
	v.Files = c.Files
	return v, nil
}

func (s *FolderService) ListRoot(ctx context.Context, ownerID int64) ([]*folder.View, error) {
	roots, err := s.repo.ListRoot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]*folder.View, 0, len(roots))
	for _, r := range roots {
		views = append(views, &folder.View{Summary: *r, Path: folder.ChildPath("", r.Name)})
	}
	return views, nil
}

func (s *FolderService) ListSubfolders(ctx context.Context, ownerID, id int64) ([]*folder.View, error) {
	chain, children, err := s.repo.ListChildren(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	parent, err := newView(&folder.Summary{Folder: *chain[0]}, folder.NewChain(chain))
	if err != nil {
		return nil, err
	}
	return childViews(parent, children), nil
}

func (s *FolderService) RenameFolder(ctx context.Context, ownerID, id int64, newName string) (*folder.View, error) {
	newName, err := naming.Clean(newName)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Rename(ctx, ownerID, id, newName); err != nil {
		return nil, err
	}
	return s.view(ctx, ownerID, id)
}

// MoveFolder re-parents a folder; a nil parent moves it to the root.
func (s *FolderService) MoveFolder(ctx context.Context, ownerID, id int64, newParentID *int64) (*folder.View, error) {
	if _, err := s.repo.Move(ctx, ownerID, id, newParentID); err != nil {
		return nil, err
	}
	logger.GetLogger(ctx).Info("folder moved", zap.Int64("user_id", ownerID), zap.Int64("folder_id", id))
	return s.view(ctx, ownerID, id)
}

// DeleteFolder removes the folder and its whole subtree. Once the records are gone the
// blobs are removed; any that cannot be removed now are left to the collector's queue.
func (s *FolderService) DeleteFolder(ctx context.Context, ownerID, id int64) (*folder.DeleteResult, error) {
	res, err := s.repo.DeleteTree(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	logger.GetLogger(ctx).Info("folder deleted",
		zap.Int64("user_id", ownerID),
		zap.Int64("folder_id", id),
		zap.Int("folders", res.Folders),
		zap.Int("files", res.Files),
		zap.Int64("freed_bytes", res.FreedBytes))

	if len(res.StorageKeys) > 0 {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), blobCleanupTimeout)
		defer cancel()
		s.collector.Collect(cleanupCtx, res.StorageKeys)
	}
	return res, nil
}

func (s *FolderService) Breadcrumbs(ctx context.Context, ownerID, id int64) ([]folder.Crumb, error) {
	chain, err := s.repo.Ancestors(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	crumbs, err := folder.NewChain(chain).Breadcrumbs(id)
	if err != nil {
		return nil, fmt.Errorf("breadcrumbs of folder %d: %w", id, err)
	}
	return crumbs, nil
}

func (s *FolderService) view(ctx context.Context, ownerID, id int64) (*folder.View, error) {
	summary, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.repo.Ancestors(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return newView(summary, folder.NewChain(chain))
}

func newView(s *folder.Summary, chain folder.Chain) (*folder.View, error) {
	path, err := chain.Path(s.ID)
	if err != nil {
		return nil, fmt.Errorf("path of folder %d: %w", s.ID, err)
	}
	crumbs, err := chain.Breadcrumbs(s.ID)
	if err != nil {
		return nil, fmt.Errorf("breadcrumbs of folder %d: %w", s.ID, err)
	}
	v := &folder.View{Summary: *s, Path: path, Breadcrumbs: crumbs}
	if s.ParentID != nil {
		if p, ok := chain[*s.ParentID]; ok {
			name := p.Name
			v.ParentName = &name
		}
	}
	return v, nil
}

func childViews(parent *folder.View, children []*folder.Summary) []*folder.View {
	views := make([]*folder.View, 0, len(children))
	for _, c := range children {
		name := parent.Name
		views = append(views, &folder.View{
			Summary:    *c,
			Path:       folder.ChildPath(parent.Path, c.Name),
			ParentName: &name,
		})
	}
	return views
}
