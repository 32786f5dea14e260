package folderRepo

import (
	"context"
	"fmt"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/folder"
	"cloudsync/internal/repository"
	"cloudsync/internal/repository/fileRepo"

	"github.com/jackc/pgx/v5"
)

const folderColumns = `d.id, d.owner_id, d.name, d.parent_id, d.created_at, d.updated_at`

const selectSummaries = `SELECT ` + folderColumns + `,
	(SELECT count(*) FROM files x WHERE x.folder_id = d.id),
	(SELECT count(*) FROM folders c WHERE c.parent_id = d.id)
	FROM folders d`

var errTooDeep = apperr.Validation(fmt.Sprintf("folders cannot be nested more than %d levels deep", folder.MaxDepth))

var conflicts = repository.ConstraintMessages{
	"folders_sibling_name_key": "a folder with this name already exists here",
}

type FolderRepository struct {
	db repository.TxBeginner
}

func New(db repository.TxBeginner) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Create(ctx context.Context, ownerID int64, name string, parentID *int64) (*folder.Folder, error) {
	var out *folder.Folder
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, ownerID); err != nil {
			return err
		}
		if parentID != nil {
			chain, err := ancestors(ctx, tx, ownerID, *parentID)
			if err != nil {
				return err
			}
			if !folder.FitsDepth(len(chain), 1) {
				return errTooDeep
			}
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO folders AS d (owner_id, name, parent_id) VALUES ($1, $2, $3)
			 RETURNING `+folderColumns,
			ownerID, name, parentID)
		var err error
		out, err = scanFolder(row)
		if err != nil {
			return repository.MapError(err, "parent folder not found", conflicts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FolderRepository) Get(ctx context.Context, ownerID, id int64) (*folder.Summary, error) {
	s, err := scanSummary(r.db.QueryRow(ctx, selectSummaries+` WHERE d.id = $1 AND d.owner_id = $2`, id, ownerID))
	if err != nil {
		return nil, repository.MapError(err, "folder not found", nil)
	}
	return s, nil
}

// Contents reads the folder, its ancestors, its subfolders and its files in one
// repeatable-read transaction.
func (r *FolderRepository) Contents(ctx context.Context, ownerID, id int64) (*folder.Contents, error) {
	var c folder.Contents
	err := repository.WithSnapshot(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		c.Folder, err = scanSummary(tx.QueryRow(ctx, selectSummaries+` WHERE d.id = $1 AND d.owner_id = $2`, id, ownerID))
		if err != nil {
			return repository.MapError(err, "folder not found", nil)
		}
		if c.Ancestors, err = ancestors(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if c.Subfolders, err = listSummaries(ctx, tx,
			selectSummaries+` WHERE d.owner_id = $1 AND d.parent_id = $2 ORDER BY d.name`, ownerID, id); err != nil {
			return err
		}
		c.Files, err = fileRepo.ListInFolder(ctx, tx, ownerID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *FolderRepository) ListRoot(ctx context.Context, ownerID int64) ([]*folder.Summary, error) {
	return listSummaries(ctx, r.db,
		selectSummaries+` WHERE d.owner_id = $1 AND d.parent_id IS NULL ORDER BY d.name`, ownerID)
}

// ListChildren returns the direct subfolders of id together with id's ancestors, which
// the caller needs to render paths.
func (r *FolderRepository) ListChildren(ctx context.Context, ownerID, id int64) ([]*folder.Folder, []*folder.Summary, error) {
	var (
		chain    []*folder.Folder
		children []*folder.Summary
	)
	err := repository.WithSnapshot(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		if chain, err = ancestors(ctx, tx, ownerID, id); err != nil {
			return err
		}
		children, err = listSummaries(ctx, tx,
			selectSummaries+` WHERE d.owner_id = $1 AND d.parent_id = $2 ORDER BY d.name`, ownerID, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return chain, children, nil
}

// Ancestors returns id and every folder above it, nearest first.
func (r *FolderRepository) Ancestors(ctx context.Context, ownerID, id int64) ([]*folder.Folder, error) {
	return ancestors(ctx, r.db, ownerID, id)
}

func (r *FolderRepository) Rename(ctx context.Context, ownerID, id int64, name string) (*folder.Folder, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE folders AS d SET name = $3, updated_at = now()
		 WHERE d.id = $1 AND d.owner_id = $2
		 RETURNING `+folderColumns,
		id, ownerID, name)
	f, err := scanFolder(row)
	if err != nil {
		return nil, repository.MapError(err, "folder not found", conflicts)
	}
	return f, nil
}

// Move re-parents id under newParent (nil for the root). The owner's ledger lock is held
// while the ancestors of newParent are checked, so concurrent moves cannot build a cycle.
func (r *FolderRepository) Move(ctx context.Context, ownerID, id int64, newParent *int64) (*folder.Folder, error) {
	var out *folder.Folder
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, ownerID); err != nil {
			return err
		}
		if _, err := getFolder(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if newParent != nil {
			chain, err := ancestors(ctx, tx, ownerID, *newParent)
			if err != nil {
				return err
			}
			cycle, err := folder.NewChain(chain).WouldCycle(id, newParent)
			if err != nil {
				return fmt.Errorf("walk destination: %w", err)
			}
			if cycle {
				return apperr.Validation("cannot move a folder into itself or one of its subfolders")
			}
			_, height, err := subtree(ctx, tx, ownerID, id)
			if err != nil {
				return err
			}
			if !folder.FitsDepth(len(chain), height) {
				return errTooDeep
			}
		}
		row := tx.QueryRow(ctx,
			`UPDATE folders AS d SET parent_id = $3, updated_at = now()
			 WHERE d.id = $1 AND d.owner_id = $2
			 RETURNING `+folderColumns,
			id, ownerID, newParent)
		var err error
		out, err = scanFolder(row)
		if err != nil {
			return repository.MapError(err, "folder not found", conflicts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTree removes id with every descendant folder and file in one transaction. The
// freed bytes leave the ledger and the blobs are queued for removal; the queued keys are
// returned so the caller can try to remove them right away.
func (r *FolderRepository) DeleteTree(ctx context.Context, ownerID, id int64) (*folder.DeleteResult, error) {
	var res folder.DeleteResult
	err := repository.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := repository.LockLedger(ctx, tx, ownerID); err != nil {
			return err
		}
		if _, err := getFolder(ctx, tx, ownerID, id); err != nil {
			return err
		}
		ids, _, err := subtree(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`DELETE FROM files WHERE owner_id = $1 AND folder_id = ANY($2) RETURNING stored_name, size_bytes`,
			ownerID, ids)
		if err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		for rows.Next() {
			var (
				key  string
				size int64
			)
			if err := rows.Scan(&key, &size); err != nil {
				rows.Close()
				return fmt.Errorf("scan deleted file: %w", err)
			}
			res.Files++
			res.FreedBytes += size
			res.StorageKeys = append(res.StorageKeys, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM folders WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids)
		if err != nil {
			return fmt.Errorf("delete folders: %w", err)
		}
		res.Folders = int(tag.RowsAffected())

		if err := repository.ReleaseUsage(ctx, tx, ownerID, res.FreedBytes); err != nil {
			return err
		}
		return repository.EnqueueBlobs(ctx, tx, res.StorageKeys)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// subtree walks parent_id breadth first from root and returns every folder id below it,
// root included, and the number of levels it spans.
func subtree(ctx context.Context, q repository.DBTX, ownerID, root int64) ([]int64, int, error) {
	seen := map[int64]struct{}{root: {}}
	all := []int64{root}
	frontier := []int64{root}
	height := 0
	for len(frontier) > 0 {
		height++
		rows, err := q.Query(ctx,
			`SELECT id FROM folders WHERE owner_id = $1 AND parent_id = ANY($2)`, ownerID, frontier)
		if err != nil {
			return nil, 0, fmt.Errorf("walk subtree: %w", err)
		}
		children, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return nil, 0, fmt.Errorf("walk subtree: %w", err)
		}
		var next []int64
		for _, c := range children {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			all = append(all, c)
			next = append(next, c)
		}
		frontier = next
	}
	return all, height, nil
}

func ancestors(ctx context.Context, q repository.DBTX, ownerID, id int64) ([]*folder.Folder, error) {
	rows, err := q.Query(ctx,
		`WITH RECURSIVE chain AS (
			SELECT d.id, d.owner_id, d.name, d.parent_id, d.created_at, d.updated_at, 1 AS depth
			FROM folders d WHERE d.id = $1 AND d.owner_id = $2
			UNION ALL
			SELECT d.id, d.owner_id, d.name, d.parent_id, d.created_at, d.updated_at, c.depth + 1
			FROM folders d JOIN chain c ON d.id = c.parent_id
			WHERE d.owner_id = $2 AND c.depth < $3
		)
		SELECT d.id, d.owner_id, d.name, d.parent_id, d.created_at, d.updated_at
		FROM chain d ORDER BY d.depth`,
		id, ownerID, folder.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("query ancestors: %w", err)
	}
	defer rows.Close()

	var out []*folder.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ancestor: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ancestors: %w", err)
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("folder not found")
	}
	return out, nil
}

func getFolder(ctx context.Context, q repository.DBTX, ownerID, id int64) (*folder.Folder, error) {
	f, err := scanFolder(q.QueryRow(ctx,
		`SELECT `+folderColumns+` FROM folders d WHERE d.id = $1 AND d.owner_id = $2`, id, ownerID))
	if err != nil {
		return nil, repository.MapError(err, "folder not found", nil)
	}
	return f, nil
}

func listSummaries(ctx context.Context, q repository.DBTX, query string, args ...any) ([]*folder.Summary, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	out := make([]*folder.Summary, 0)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (*folder.Folder, error) {
	var f folder.Folder
	if err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanSummary(row rowScanner) (*folder.Summary, error) {
	var s folder.Summary
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.ParentID, &s.CreatedAt, &s.UpdatedAt,
		&s.FileCount, &s.SubfolderCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
