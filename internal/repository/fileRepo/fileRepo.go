package fileRepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/repository"

	"github.com/jackc/pgx/v5"
)

// SearchLimit caps the number of rows Search returns.
const SearchLimit = 200

const fileColumns = `f.id, f.owner_id, f.folder_id, d.name, f.original_name, f.stored_name,
	f.content_type, f.size_bytes, f.checksum, f.is_public, f.share_token, f.download_count,
	f.created_at, f.updated_at`

// selectFiles reads from the files table; selectChanged reads from a CTE named f that
// RETURNING * of a data-modifying statement produced.
const (
	selectFiles   = `SELECT ` + fileColumns + ` FROM files f LEFT JOIN folders d ON d.id = f.folder_id`
	selectChanged = `SELECT ` + fileColumns + ` FROM f LEFT JOIN folders d ON d.id = f.folder_id`
)

const shareTokenConstraint = "files_share_token_key"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type FileRepository struct {
	db repository.TxBeginner
}

func New(db repository.TxBeginner) *FileRepository {
	return &FileRepository{db: db}
}

// FolderOwned returns NotFound unless folderID is one of owner's folders. A nil folder is
// the root and always owned.
func (r *FileRepository) FolderOwned(ctx context.Context, ownerID int64, folderID *int64) error {
	return folderOwned(ctx, r.db, ownerID, folderID)
}

func folderOwned(ctx context.Context, q repository.DBTX, ownerID int64, folderID *int64) error {
	if folderID == nil {
		return nil
	}
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM folders WHERE id = $1 AND owner_id = $2)`,
		*folderID, ownerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check folder owner: %w", err)
	}
	if !exists {
		return apperr.NotFound("folder not found")
	}
	return nil
}

// Reserve holds res.SizeBytes of the user's quota for an upload in flight. It returns
// QuotaExceeded when used + reserved + size would pass the limit.
func (r *FileRepository) Reserve(ctx context.Context, res fileInfo.Reservation) error {
	return repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET reserved_storage_bytes = reserved_storage_bytes + $2
			 WHERE id = $1
			   AND used_storage_bytes + reserved_storage_bytes + $2 <= max_storage_bytes`,
			res.UserID, res.SizeBytes)
		if err != nil {
			return fmt.Errorf("reserve quota: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := repository.LockLedger(ctx, tx, res.UserID); err != nil {
				return err
			}
			return apperr.QuotaExceeded("storage quota exceeded")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO upload_reservations (id, user_id, size_bytes, storage_key)
			 VALUES ($1, $2, $3, $4)`,
			res.ID, res.UserID, res.SizeBytes, res.StorageKey)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
}

// Release gives back a reservation that will not be committed. Releasing a reservation
// that is already gone is not an error.
func (r *FileRepository) Release(ctx context.Context, res fileInfo.Reservation) error {
	return repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, res.UserID); err != nil {
			return err
		}
		_, err := repository.DropReservation(ctx, tx, res.UserID, res.ID)
		return err
	})
}

// Commit turns a reservation into a file record: the row is inserted, the reserved bytes
// move to used and the reservation is deleted, all in one transaction.
func (r *FileRepository) Commit(ctx context.Context, res fileInfo.Reservation, f *fileInfo.File) (*fileInfo.File, error) {
	var out *fileInfo.File
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, res.UserID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM upload_reservations WHERE id = $1 AND user_id = $2`, res.ID, res.UserID)
		if err != nil {
			return fmt.Errorf("consume reservation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.UploadFailed("upload reservation expired", nil)
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET reserved_storage_bytes = reserved_storage_bytes - $2,
			                  used_storage_bytes = used_storage_bytes + $2
			 WHERE id = $1`,
			res.UserID, res.SizeBytes)
		if err != nil {
			return fmt.Errorf("move reserved bytes: %w", err)
		}
		if err := folderOwned(ctx, tx, res.UserID, f.FolderID); err != nil {
			return err
		}
		query := `WITH f AS (
			INSERT INTO files (owner_id, folder_id, original_name, stored_name, content_type,
			                   size_bytes, checksum)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING *
		) ` + selectChanged
		out, err = scanFile(tx.QueryRow(ctx, query, res.UserID, f.FolderID, f.OriginalName,
			res.StorageKey, f.ContentType, res.SizeBytes, f.Checksum))
		if err != nil {
			return repository.MapError(err, "folder not found", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileRepository) Get(ctx context.Context, ownerID, id int64) (*fileInfo.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, selectFiles+` WHERE f.id = $1 AND f.owner_id = $2`, id, ownerID))
	if err != nil {
		return nil, repository.MapError(err, "file not found", nil)
	}
	return f, nil
}

func (r *FileRepository) ListRoot(ctx context.Context, ownerID int64) ([]*fileInfo.File, error) {
	return listFiles(ctx, r.db,
		selectFiles+` WHERE f.owner_id = $1 AND f.folder_id IS NULL ORDER BY f.original_name, f.id`,
		ownerID)
}

// ListFolder returns the files directly inside folderID, or NotFound if the folder is not
// owner's. Both checks read the same snapshot.
func (r *FileRepository) ListFolder(ctx context.Context, ownerID, folderID int64) ([]*fileInfo.File, error) {
	var files []*fileInfo.File
	err := repository.WithSnapshot(ctx, r.db, func(tx pgx.Tx) error {
		if err := folderOwned(ctx, tx, ownerID, &folderID); err != nil {
			return err
		}
		var err error
		files, err = ListInFolder(ctx, tx, ownerID, folderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ListInFolder lists a folder's files through q without checking ownership, for callers
// that already verified the folder inside their own transaction.
func ListInFolder(ctx context.Context, q repository.DBTX, ownerID, folderID int64) ([]*fileInfo.File, error) {
	return listFiles(ctx, q,
		selectFiles+` WHERE f.owner_id = $1 AND f.folder_id = $2 ORDER BY f.original_name, f.id`,
		ownerID, folderID)
}

func (r *FileRepository) ListAll(ctx context.Context, ownerID int64) ([]*fileInfo.File, error) {
	return listFiles(ctx, r.db,
		selectFiles+` WHERE f.owner_id = $1 ORDER BY f.created_at DESC, f.id DESC`, ownerID)
}

// Search matches original names case-insensitively; the query is matched literally.
func (r *FileRepository) Search(ctx context.Context, ownerID int64, q string) ([]*fileInfo.File, error) {
	return listFiles(ctx, r.db,
		selectFiles+` WHERE f.owner_id = $1 AND f.original_name ILIKE '%' || $2 || '%' ESCAPE '\'
		 ORDER BY f.original_name, f.id LIMIT $3`,
		ownerID, likeEscaper.Replace(q), SearchLimit)
}

func (r *FileRepository) Rename(ctx context.Context, ownerID, id int64, name string) (*fileInfo.File, error) {
	query := `WITH f AS (
		UPDATE files SET original_name = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING *
	) ` + selectChanged
	f, err := scanFile(r.db.QueryRow(ctx, query, id, ownerID, name))
	if err != nil {
		return nil, repository.MapError(err, "file not found", nil)
	}
	return f, nil
}

// Move puts the file into folderID (nil for the root).
func (r *FileRepository) Move(ctx context.Context, ownerID, id int64, folderID *int64) (*fileInfo.File, error) {
	var out *fileInfo.File
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, ownerID); err != nil {
			return err
		}
		if err := folderOwned(ctx, tx, ownerID, folderID); err != nil {
			return err
		}
		query := `WITH f AS (
			UPDATE files SET folder_id = $3, updated_at = now()
			WHERE id = $1 AND owner_id = $2
			RETURNING *
		) ` + selectChanged
		var err error
		out, err = scanFile(tx.QueryRow(ctx, query, id, ownerID, folderID))
		if err != nil {
			return repository.MapError(err, "file not found", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record, frees its bytes and queues its blob for removal.
func (r *FileRepository) Delete(ctx context.Context, ownerID, id int64) (*fileInfo.File, error) {
	var out *fileInfo.File
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, ownerID); err != nil {
			return err
		}
		query := `WITH f AS (
			DELETE FROM files WHERE id = $1 AND owner_id = $2 RETURNING *
		) ` + selectChanged
		var err error
		out, err = scanFile(tx.QueryRow(ctx, query, id, ownerID))
		if err != nil {
			return repository.MapError(err, "file not found", nil)
		}
		if err := repository.ReleaseUsage(ctx, tx, ownerID, out.SizeBytes); err != nil {
			return err
		}
		return repository.EnqueueBlobs(ctx, tx, []string{out.StoredName})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileRepository) Stats(ctx context.Context, ownerID int64) (fileInfo.Stats, error) {
	var s fileInfo.Stats
	err := r.db.QueryRow(ctx,
		`SELECT u.used_storage_bytes, u.max_storage_bytes,
		        (SELECT count(*) FROM files WHERE owner_id = u.id),
		        (SELECT count(*) FROM folders WHERE owner_id = u.id)
		 FROM users u WHERE u.id = $1`, ownerID).
		Scan(&s.UsedStorage, &s.MaxStorage, &s.TotalFiles, &s.TotalFolders)
	if err != nil {
		return fileInfo.Stats{}, repository.MapError(err, "user not found", nil)
	}
	return s, nil
}

// SetShareToken publishes the file under token unless it is already shared, in which case
// the file is returned with its existing token. A collision with another file's token
// yields fileInfo.ErrShareTokenTaken.
func (r *FileRepository) SetShareToken(ctx context.Context, ownerID, id int64, token string) (*fileInfo.File, error) {
	query := `WITH f AS (
		UPDATE files SET share_token = $3, is_public = true, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND share_token IS NULL
		RETURNING *
	) ` + selectChanged
	f, err := scanFile(r.db.QueryRow(ctx, query, id, ownerID, token))
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.Get(ctx, ownerID, id)
	case repository.IsUniqueViolation(err, shareTokenConstraint):
		return nil, fileInfo.ErrShareTokenTaken
	default:
		return nil, fmt.Errorf("set share token: %w", err)
	}
}

func (r *FileRepository) ClearShareToken(ctx context.Context, ownerID, id int64) (*fileInfo.File, error) {
	query := `WITH f AS (
		UPDATE files SET share_token = NULL, is_public = false, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING *
	) ` + selectChanged
	f, err := scanFile(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return nil, repository.MapError(err, "file not found", nil)
	}
	return f, nil
}

func (r *FileRepository) GetByShareToken(ctx context.Context, token string) (*fileInfo.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		selectFiles+` WHERE f.share_token = $1 AND f.is_public`, token))
	if err != nil {
		return nil, repository.MapError(err, "shared file not found", nil)
	}
	return f, nil
}

// CountDownload resolves token and bumps the download counter in the same statement.
func (r *FileRepository) CountDownload(ctx context.Context, token string) (*fileInfo.File, error) {
	query := `WITH f AS (
		UPDATE files SET download_count = download_count + 1
		WHERE share_token = $1 AND is_public
		RETURNING *
	) ` + selectChanged
	f, err := scanFile(r.db.QueryRow(ctx, query, token))
	if err != nil {
		return nil, repository.MapError(err, "shared file not found", nil)
	}
	return f, nil
}

func listFiles(ctx context.Context, q repository.DBTX, query string, args ...any) ([]*fileInfo.File, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := make([]*fileInfo.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*fileInfo.File, error) {
	var f fileInfo.File
	err := row.Scan(&f.ID, &f.OwnerID, &f.FolderID, &f.FolderName, &f.OriginalName, &f.StoredName,
		&f.ContentType, &f.SizeBytes, &f.Checksum, &f.IsPublic, &f.ShareToken, &f.DownloadCount,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
