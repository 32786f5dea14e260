package repository_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/model/folder"
	"cloudsync/internal/repository/fileRepo"
	"cloudsync/internal/repository/folderRepo"
	"cloudsync/internal/repository/gcRepo"
	"cloudsync/internal/repository/userRepo"
	"cloudsync/pkg/database/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("set TEST_INTEGRATION=1 to run Postgres integration tests")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("cloudsync_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.ParseUint(mapped.Port(), 10, 16)
	require.NoError(t, err)

	cfg := postgres.Config{
		Host:     host,
		Port:     uint16(port),
		Username: "test",
		Password: "test",
		Database: "cloudsync_test",
		SSLMode:  "disable",
		MaxConns: 30,
	}
	version, err := postgres.Migrate(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	pool, err := postgres.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func reservation(userID, size int64) fileInfo.Reservation {
	id := uuid.New()
	return fileInfo.Reservation{ID: id, UserID: userID, SizeBytes: size, StorageKey: id.String() + ".bin"}
}

func ledger(t *testing.T, pool *pgxpool.Pool, userID int64) (used, reserved int64) {
	t.Helper()
	err := pool.QueryRow(context.Background(),
		`SELECT used_storage_bytes, reserved_storage_bytes FROM users WHERE id = $1`, userID).
		Scan(&used, &reserved)
	require.NoError(t, err)
	return used, reserved
}

func TestPostgresRepositories(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	users := userRepo.New(pool)
	files := fileRepo.New(pool)
	folders := folderRepo.New(pool)
	gc := gcRepo.New(pool)

	alice, err := users.Create(ctx, "alice", "Alice@Example.com", "hash", 1000)
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob", "bob@example.com", "hash", 1000)
	require.NoError(t, err)

	commit := func(t *testing.T, owner int64, folderID *int64, name string, size int64) *fileInfo.File {
		t.Helper()
		res := reservation(owner, size)
		require.NoError(t, files.Reserve(ctx, res))
		f, err := files.Commit(ctx, res, &fileInfo.File{
			FolderID:     folderID,
			OriginalName: name,
			ContentType:  "text/plain",
			Checksum:     fmt.Sprintf("%064x", size),
		})
		require.NoError(t, err)
		return f
	}

	t.Run("users", func(t *testing.T) {
		_, err := users.Create(ctx, "alice", "other@example.com", "hash", 1000)
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = users.Create(ctx, "carol", "alice@example.com", "hash", 1000)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		got, err := users.GetByLogin(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		got, err = users.GetByLogin(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		_, err = users.GetByLogin(ctx, "nobody")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		exists, err := users.ExistsByEmail(ctx, "alice@EXAMPLE.com")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("reserve and commit", func(t *testing.T) {
		res := reservation(alice.ID, 300)
		require.NoError(t, files.Reserve(ctx, res))
		used, reserved := ledger(t, pool, alice.ID)
		assert.Equal(t, int64(0), used)
		assert.Equal(t, int64(300), reserved)

		f, err := files.Commit(ctx, res, &fileInfo.File{
			OriginalName: "notes.txt",
			ContentType:  "text/plain",
			Checksum:     fmt.Sprintf("%064x", 1),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(300), f.SizeBytes)
		assert.Equal(t, res.StorageKey, f.StoredName)
		assert.Nil(t, f.FolderID)

		used, reserved = ledger(t, pool, alice.ID)
		assert.Equal(t, int64(300), used)
		assert.Equal(t, int64(0), reserved)

		_, err = files.Commit(ctx, res, &fileInfo.File{OriginalName: "again.txt"})
		assert.ErrorIs(t, err, apperr.ErrUploadFailed)

		over := reservation(alice.ID, 701)
		assert.ErrorIs(t, files.Reserve(ctx, over), apperr.ErrQuotaExceeded)

		release := reservation(alice.ID, 700)
		require.NoError(t, files.Reserve(ctx, release))
		require.NoError(t, files.Release(ctx, release))
		require.NoError(t, files.Release(ctx, release))
		_, reserved = ledger(t, pool, alice.ID)
		assert.Equal(t, int64(0), reserved)

		deleted, err := files.Delete(ctx, alice.ID, f.ID)
		require.NoError(t, err)
		assert.Equal(t, f.StoredName, deleted.StoredName)
		used, _ = ledger(t, pool, alice.ID)
		assert.Equal(t, int64(0), used)

		queued, err := gc.Queued(ctx, 10)
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, f.StoredName, queued[0].StorageKey)
		require.NoError(t, gc.Dequeue(ctx, []string{f.StoredName}))
	})

	t.Run("concurrent reservations never pass the quota", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted []fileInfo.Reservation
		)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := reservation(bob.ID, 100)
				if err := files.Reserve(ctx, res); err == nil {
					mu.Lock()
					granted = append(granted, res)
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
				}
			}()
		}
		wg.Wait()
		assert.Len(t, granted, 10)
		for _, res := range granted {
			require.NoError(t, files.Release(ctx, res))
		}
		used, reserved := ledger(t, pool, bob.ID)
		assert.Equal(t, int64(0), used)
		assert.Equal(t, int64(0), reserved)
	})

	t.Run("foreign folder", func(t *testing.T) {
		docs, err := folders.Create(ctx, bob.ID, "Private", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, files.FolderOwned(ctx, alice.ID, &docs.ID), apperr.ErrNotFound)

		res := reservation(alice.ID, 10)
		require.NoError(t, files.Reserve(ctx, res))
		_, err = files.Commit(ctx, res, &fileInfo.File{FolderID: &docs.ID, OriginalName: "x.txt"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		require.NoError(t, files.Release(ctx, res))

		_, err = folders.DeleteTree(ctx, bob.ID, docs.ID)
		require.NoError(t, err)
	})

	t.Run("share tokens", func(t *testing.T) {
		f := commit(t, alice.ID, nil, "shared.txt", 5)

		shared, err := files.SetShareToken(ctx, alice.ID, f.ID, "token-one")
		require.NoError(t, err)
		assert.True(t, shared.IsPublic)
		require.NotNil(t, shared.ShareToken)
		assert.Equal(t, "token-one", *shared.ShareToken)

		again, err := files.SetShareToken(ctx, alice.ID, f.ID, "token-two")
		require.NoError(t, err)
		assert.Equal(t, "token-one", *again.ShareToken)

		other := commit(t, alice.ID, nil, "other.txt", 5)
		_, err = files.SetShareToken(ctx, alice.ID, other.ID, "token-one")
		assert.ErrorIs(t, err, fileInfo.ErrShareTokenTaken)

		for i := 1; i <= 2; i++ {
			got, err := files.CountDownload(ctx, "token-one")
			require.NoError(t, err)
			assert.Equal(t, int64(i), got.DownloadCount)
		}

		_, err = files.ClearShareToken(ctx, alice.ID, f.ID)
		require.NoError(t, err)
		_, err = files.GetByShareToken(ctx, "token-one")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = files.SetShareToken(ctx, bob.ID, f.ID, "token-three")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		for _, file := range []*fileInfo.File{f, other} {
			_, err := files.Delete(ctx, alice.ID, file.ID)
			require.NoError(t, err)
			require.NoError(t, gc.Dequeue(ctx, []string{file.StoredName}))
		}
	})

	t.Run("folder tree", func(t *testing.T) {
		docs, err := folders.Create(ctx, alice.ID, "Docs", nil)
		require.NoError(t, err)
		_, err = folders.Create(ctx, alice.ID, "Docs", nil)
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = folders.Create(ctx, bob.ID, "Docs", nil)
		require.NoError(t, err)

		work, err := folders.Create(ctx, alice.ID, "Work", &docs.ID)
		require.NoError(t, err)
		deep, err := folders.Create(ctx, alice.ID, "Deep", &work.ID)
		require.NoError(t, err)

		_, err = folders.Move(ctx, alice.ID, docs.ID, &deep.ID)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = folders.Move(ctx, alice.ID, docs.ID, &docs.ID)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		chain, err := folders.Ancestors(ctx, alice.ID, deep.ID)
		require.NoError(t, err)
		assert.Len(t, chain, 3)

		commit(t, alice.ID, &docs.ID, "a.txt", 100)
		commit(t, alice.ID, &deep.ID, "b.txt", 50)
		kept := commit(t, alice.ID, nil, "root.txt", 7)

		contents, err := folders.Contents(ctx, alice.ID, docs.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, contents.Folder.FileCount)
		assert.Equal(t, 1, contents.Folder.SubfolderCount)
		require.Len(t, contents.Files, 1)
		assert.Equal(t, "a.txt", contents.Files[0].OriginalName)

		res, err := folders.DeleteTree(ctx, alice.ID, docs.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Folders)
		assert.Equal(t, 2, res.Files)
		assert.Equal(t, int64(150), res.FreedBytes)
		assert.Len(t, res.StorageKeys, 2)

		used, _ := ledger(t, pool, alice.ID)
		assert.Equal(t, int64(7), used)

		queued, err := gc.Queued(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, queued, 2)
		require.NoError(t, gc.MarkFailed(ctx, queued[0].StorageKey))
		require.NoError(t, gc.Dequeue(ctx, res.StorageKeys))

		_, err = folders.Get(ctx, alice.ID, work.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = files.Delete(ctx, alice.ID, kept.ID)
		require.NoError(t, err)
		require.NoError(t, gc.Dequeue(ctx, []string{kept.StoredName}))
	})

	t.Run("stale reservations expire", func(t *testing.T) {
		res := reservation(alice.ID, 400)
		require.NoError(t, files.Reserve(ctx, res))

		stale, err := gc.StaleReservations(ctx, time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, res.ID, stale[0].ID)

		dropped, err := gc.Expire(ctx, stale[0])
		require.NoError(t, err)
		assert.True(t, dropped)
		dropped, err = gc.Expire(ctx, stale[0])
		require.NoError(t, err)
		assert.False(t, dropped)

		_, reserved := ledger(t, pool, alice.ID)
		assert.Equal(t, int64(0), reserved)

		queued, err := gc.Queued(ctx, 10)
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, res.StorageKey, queued[0].StorageKey)

		_, err = files.Commit(ctx, res, &fileInfo.File{OriginalName: "late.txt"})
		assert.ErrorIs(t, err, apperr.ErrUploadFailed)
	})

	t.Run("nesting depth is bounded", func(t *testing.T) {
		var parent *int64
		ids := make([]int64, 0, folder.MaxDepth)
		for i := 0; i < folder.MaxDepth; i++ {
			f, err := folders.Create(ctx, bob.ID, fmt.Sprintf("level-%d", i+1), parent)
			require.NoError(t, err)
			ids = append(ids, f.ID)
			parent = &ids[len(ids)-1]
		}
		deepest := ids[len(ids)-1]

		_, err := folders.Create(ctx, bob.ID, "too-deep", &deepest)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		tall, err := folders.Create(ctx, bob.ID, "tall", nil)
		require.NoError(t, err)
		_, err = folders.Create(ctx, bob.ID, "inner", &tall.ID)
		require.NoError(t, err)
		almost := ids[len(ids)-2]
		_, err = folders.Move(ctx, bob.ID, tall.ID, &almost)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		chain, err := folders.Ancestors(ctx, bob.ID, deepest)
		require.NoError(t, err)
		assert.Len(t, chain, folder.MaxDepth)

		res, err := folders.DeleteTree(ctx, bob.ID, ids[0])
		require.NoError(t, err)
		assert.Equal(t, folder.MaxDepth, res.Folders)
		_, err = folders.DeleteTree(ctx, bob.ID, tall.ID)
		require.NoError(t, err)
	})
}
