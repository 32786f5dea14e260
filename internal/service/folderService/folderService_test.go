package folderService_test

import (
	"context"
	"fmt"
	"testing"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/folder"
	"cloudsync/internal/repository/memRepo"
	"cloudsync/internal/service/folderService"
	"cloudsync/internal/service/gcService"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*folderService.FolderService, *memRepo.Store, int64) {
	t.Helper()
	store := memRepo.New()
	gc := gcService.New(store.GC(), memRepo.NewBlobs(), gcService.Config{})
	u, err := store.Users().Create(context.Background(), "alice", "alice@example.com", "hash", 1<<20)
	require.NoError(t, err)
	return folderService.New(store.Folders(), gc), store, u.ID
}

func crumbNames(crumbs []folder.Crumb) []string {
	names := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		names = append(names, c.Name)
	}
	return names
}

func TestCreateFolder(t *testing.T) {
	svc, _, uid := setup(t)
	ctx := context.Background()

	docs, err := svc.CreateFolder(ctx, uid, "  Documents ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Documents", docs.Name)
	assert.Equal(t, "/Documents", docs.Path)
	assert.Nil(t, docs.ParentID)
	assert.Nil(t, docs.ParentName)

	work, err := svc.CreateFolder(ctx, uid, "Work", &docs.ID)
	require.NoError(t, err)
	assert.Equal(t, "/Documents/Work", work.Path)
	require.NotNil(t, work.ParentName)
	assert.Equal(t, "Documents", *work.ParentName)
	assert.Equal(t, []string{"Home", "Documents", "Work"}, crumbNames(work.Breadcrumbs))
	assert.Nil(t, work.Breadcrumbs[0].ID)

	t.Run("sibling name taken", func(t *testing.T) {
		_, err := svc.CreateFolder(ctx, uid, "Work", &docs.ID)
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})
	t.Run("same name elsewhere is fine", func(t *testing.T) {
		_, err := svc.CreateFolder(ctx, uid, "Work", nil)
		assert.NoError(t, err)
	})
	t.Run("invalid names", func(t *testing.T) {
		for _, name := range []string{"", " ", ".", "..", "a/b", `a\b`} {
			_, err := svc.CreateFolder(ctx, uid, name, nil)
			assert.ErrorIs(t, err, apperr.ErrValidation, "name %q", name)
		}
	})
	t.Run("unknown parent", func(t *testing.T) {
		missing := int64(999)
		_, err := svc.CreateFolder(ctx, uid, "x", &missing)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestGetFolder(t *testing.T) {
	svc, store, uid := setup(t)
	ctx := context.Background()

	a, err := svc.CreateFolder(ctx, uid, "a", nil)
	require.NoError(t, err)
	b, err := svc.CreateFolder(ctx, uid, "b", &a.ID)
	require.NoError(t, err)
	_, err = svc.CreateFolder(ctx, uid, "c", &b.ID)
	require.NoError(t, err)

	v, err := svc.GetFolder(ctx, uid, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "/a/b", v.Path)
	assert.Equal(t, 1, v.SubfolderCount)
	require.Len(t, v.Subfolders, 1)
	assert.Equal(t, "/a/b/c", v.Subfolders[0].Path)
	assert.Equal(t, "b", *v.Subfolders[0].ParentName)
	assert.Empty(t, v.Files)

	crumbs, err := svc.Breadcrumbs(ctx, uid, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Home", "a", "b"}, crumbNames(crumbs))

	subs, err := svc.ListSubfolders(ctx, uid, a.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "/a/b", subs[0].Path)

	roots, err := svc.ListRoot(ctx, uid)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "/a", roots[0].Path)

	bob, err := store.Users().Create(ctx, "bob", "bob@example.com", "hash", 1<<20)
	require.NoError(t, err)
	_, err = svc.GetFolder(ctx, bob.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "other users' folders do not exist for the caller")
	_, err = svc.Breadcrumbs(ctx, bob.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRenameFolder(t *testing.T) {
	svc, _, uid := setup(t)
	ctx := context.Background()

	a, err := svc.CreateFolder(ctx, uid, "a", nil)
	require.NoError(t, err)
	_, err = svc.CreateFolder(ctx, uid, "taken", nil)
	require.NoError(t, err)
	child, err := svc.CreateFolder(ctx, uid, "child", &a.ID)
	require.NoError(t, err)

	_, err = svc.RenameFolder(ctx, uid, a.ID, "taken")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = svc.RenameFolder(ctx, uid, a.ID, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	renamed, err := svc.RenameFolder(ctx, uid, a.ID, "archive")
	require.NoError(t, err)
	assert.Equal(t, "/archive", renamed.Path)

	v, err := svc.GetFolder(ctx, uid, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/child", v.Path, "paths are derived, so descendants follow a rename")
}

func TestMoveFolder(t *testing.T) {
	svc, _, uid := setup(t)
	ctx := context.Background()

	a, err := svc.CreateFolder(ctx, uid, "a", nil)
	require.NoError(t, err)
	b, err := svc.CreateFolder(ctx, uid, "b", &a.ID)
	require.NoError(t, err)
	c, err := svc.CreateFolder(ctx, uid, "c", &b.ID)
	require.NoError(t, err)
	other, err := svc.CreateFolder(ctx, uid, "other", nil)
	require.NoError(t, err)

	t.Run("into itself", func(t *testing.T) {
		_, err := svc.MoveFolder(ctx, uid, a.ID, &a.ID)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
	t.Run("into a descendant", func(t *testing.T) {
		_, err := svc.MoveFolder(ctx, uid, a.ID, &c.ID)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
	t.Run("to another branch", func(t *testing.T) {
		moved, err := svc.MoveFolder(ctx, uid, b.ID, &other.ID)
		require.NoError(t, err)
		assert.Equal(t, "/other/b", moved.Path)

		v, err := svc.GetFolder(ctx, uid, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "/other/b/c", v.Path)
	})
	t.Run("to the root", func(t *testing.T) {
		moved, err := svc.MoveFolder(ctx, uid, c.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "/c", moved.Path)
		assert.Nil(t, moved.ParentID)
	})
}

func TestDeleteFolder(t *testing.T) {
	svc, _, uid := setup(t)
	ctx := context.Background()

	a, err := svc.CreateFolder(ctx, uid, "a", nil)
	require.NoError(t, err)
	b, err := svc.CreateFolder(ctx, uid, "b", &a.ID)
	require.NoError(t, err)
	keep, err := svc.CreateFolder(ctx, uid, "keep", nil)
	require.NoError(t, err)

	res, err := svc.DeleteFolder(ctx, uid, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Folders)
	assert.Zero(t, res.Files)

	_, err = svc.GetFolder(ctx, uid, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.GetFolder(ctx, uid, keep.ID)
	assert.NoError(t, err)

	_, err = svc.DeleteFolder(ctx, uid, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNestingDepthLimit(t *testing.T) {
	svc, _, uid := setup(t)
	ctx := context.Background()

	var parent *int64
	var chain []*folder.View
	for i := 0; i < folder.MaxDepth; i++ {
		v, err := svc.CreateFolder(ctx, uid, fmt.Sprintf("level-%d", i+1), parent)
		require.NoError(t, err, "level %d", i+1)
		chain = append(chain, v)
		parent = &v.ID
	}
	deepest := chain[len(chain)-1]

	_, err := svc.CreateFolder(ctx, uid, "too-deep", &deepest.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	subs, err := svc.ListSubfolders(ctx, uid, deepest.ID)
	require.NoError(t, err)
	assert.Empty(t, subs, "a rejected folder is not stored")

	v, err := svc.GetFolder(ctx, uid, deepest.ID)
	require.NoError(t, err)
	assert.Len(t, v.Breadcrumbs, folder.MaxDepth+1)
	crumbs, err := svc.Breadcrumbs(ctx, uid, deepest.ID)
	require.NoError(t, err)
	assert.Len(t, crumbs, folder.MaxDepth+1)

	tall, err := svc.CreateFolder(ctx, uid, "tall", nil)
	require.NoError(t, err)
	_, err = svc.CreateFolder(ctx, uid, "inner", &tall.ID)
	require.NoError(t, err)
	leaf, err := svc.CreateFolder(ctx, uid, "leaf", nil)
	require.NoError(t, err)

	almost := chain[len(chain)-2]
	_, err = svc.MoveFolder(ctx, uid, tall.ID, &almost.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation, "the moved subtree would pass the limit")
	_, err = svc.MoveFolder(ctx, uid, leaf.ID, &deepest.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	moved, err := svc.MoveFolder(ctx, uid, leaf.ID, &almost.ID)
	require.NoError(t, err)
	assert.Len(t, moved.Breadcrumbs, folder.MaxDepth+1)
}
