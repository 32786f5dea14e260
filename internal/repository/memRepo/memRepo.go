// Package memRepo is an in-memory stand-in for the Postgres repositories and the blob
// store. It keeps the same ledger, ownership and uniqueness rules and is used by service
// and handler tests.
package memRepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/fileInfo"
	"cloudsync/internal/model/folder"
	"cloudsync/internal/model/user"
	"cloudsync/internal/repository/gcRepo"

	"github.com/google/uuid"
)

var errTooDeep = apperr.Validation(fmt.Sprintf("folders cannot be nested more than %d levels deep", folder.MaxDepth))

// Store is the shared state behind every repository view.
type Store struct {
	mu           sync.Mutex
	nextID       int64
	now          func() time.Time
	users        map[int64]*user.User
	folders      map[int64]*folder.Folder
	files        map[int64]*fileInfo.File
	reservations map[uuid.UUID]fileInfo.Reservation
	blobGC       map[string]*gcRepo.QueuedBlob
}

func New() *Store {
	return &Store{
		now:          time.Now,
		users:        make(map[int64]*user.User),
		folders:      make(map[int64]*folder.Folder),
		files:        make(map[int64]*fileInfo.File),
		reservations: make(map[uuid.UUID]fileInfo.Reservation),
		blobGC:       make(map[string]*gcRepo.QueuedBlob),
	}
}

func (s *Store) Users() *Users     { return &Users{s} }
func (s *Store) Folders() *Folders { return &Folders{s} }
func (s *Store) Files() *Files     { return &Files{s} }
func (s *Store) GC() *GC           { return &GC{s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Ledger returns used and reserved bytes of the user.
func (s *Store) Ledger(userID int64) (used, reserved int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.UsedStorageBytes, u.ReservedStorageBytes
	}
	return 0, 0
}

// SumOfSizes adds up the sizes of the user's file records.
func (s *Store) SumOfSizes(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, f := range s.files {
		if f.OwnerID == userID {
			total += f.SizeBytes
		}
	}
	return total
}

// QueuedBlobs lists the keys waiting for removal.
func (s *Store) QueuedBlobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.blobGC))
	for k := range s.blobGC {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Reservations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

func (s *Store) lockedUser(userID int64) (*user.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, apperr.Unauthorized("user no longer exists")
	}
	return u, nil
}

func (s *Store) ownedFolder(ownerID int64, id *int64) (*folder.Folder, error) {
	if id == nil {
		return nil, nil
	}
	f, ok := s.folders[*id]
	if !ok || f.OwnerID != ownerID {
		return nil, apperr.NotFound("folder not found")
	}
	return f, nil
}

func (s *Store) siblingClash(ownerID int64, parent *int64, name string, except int64) bool {
	for _, f := range s.folders {
		if f.ID != except && f.OwnerID == ownerID && f.Name == name && samePtr(f.ParentID, parent) {
			return true
		}
	}
	return false
}

func samePtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyFile(f *fileInfo.File, s *Store) *fileInfo.File {
	c := *f
	if f.FolderID != nil {
		if d, ok := s.folders[*f.FolderID]; ok {
			name := d.Name
			c.FolderName = &name
		}
	}
	return &c
}

func copyFolder(f *folder.Folder) *folder.Folder {
	c := *f
	return &c
}

// Users implements the user repository.
type Users struct{ s *Store }

func (r *Users) Create(_ context.Context, username, email, hash string, maxStorage int64) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return nil, apperr.Conflict("username already exists")
		}
		if strings.EqualFold(u.Email, email) {
			return nil, apperr.Conflict("email already exists")
		}
	}
	u := &user.User{ID: r.s.id(), Username: username, Email: email, Password: hash,
		MaxStorageBytes: maxStorage, CreatedAt: r.s.now()}
	r.s.users[u.ID] = u
	c := *u
	return &c, nil
}

func (r *Users) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	c := *u
	return &c, nil
}

func (r *Users) GetByLogin(_ context.Context, login string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var byEmail *user.User
	for _, u := range r.s.users {
		if u.Username == login {
			c := *u
			return &c, nil
		}
		if strings.EqualFold(u.Email, login) {
			byEmail = u
		}
	}
	if byEmail == nil {
		return nil, apperr.NotFound("user not found")
	}
	c := *byEmail
	return &c, nil
}

func (r *Users) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *Users) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// Folders implements the folder repository.
type Folders struct{ s *Store }

func (r *Folders) Create(_ context.Context, ownerID int64, name string, parentID *int64) (*folder.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.s.lockedUser(ownerID); err != nil {
		return nil, err
	}
	if _, err := r.s.ownedFolder(ownerID, parentID); err != nil {
		return nil, err
	}
	if parentID != nil {
		chain, err := r.ancestors(ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		if !folder.FitsDepth(len(chain), 1) {
			return nil, errTooDeep
		}
	}
	if r.s.siblingClash(ownerID, parentID, name, 0) {
		return nil, apperr.Conflict("a folder with this name already exists here")
	}
	now := r.s.now()
	f := &folder.Folder{ID: r.s.id(), OwnerID: ownerID, Name: name, CreatedAt: now, UpdatedAt: now}
	if parentID != nil {
		p := *parentID
		f.ParentID = &p
	}
	r.s.folders[f.ID] = f
	return copyFolder(f), nil
}

func (r *Folders) summary(f *folder.Folder) *folder.Summary {
	sum := &folder.Summary{Folder: *f}
	for _, x := range r.s.files {
		if x.FolderID != nil && *x.FolderID == f.ID {
			sum.FileCount++
		}
	}
	for _, c := range r.s.folders {
		if c.ParentID != nil && *c.ParentID == f.ID {
			sum.SubfolderCount++
		}
	}
	return sum
}

func (r *Folders) Get(_ context.Context, ownerID, id int64) (*folder.Summary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.s.ownedFolder(ownerID, &id)
	if err != nil {
		return nil, err
	}
	return r.summary(f), nil
}

func (r *Folders) Contents(_ context.Context, ownerID, id int64) (*folder.Contents, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.s.ownedFolder(ownerID, &id)
	if err != nil {
		return nil, err
	}
	chain, err := r.ancestors(ownerID, id)
	if err != nil {
		return nil, err
	}
	return &folder.Contents{
		Folder:     r.summary(f),
		Ancestors:  chain,
		Subfolders: r.children(ownerID, &id),
		Files:      (&Files{r.s}).list(func(x *fileInfo.File) bool { return x.OwnerID == ownerID && samePtr(x.FolderID, &id) }),
	}, nil
}

func (r *Folders) children(ownerID int64, parent *int64) []*folder.Summary {
	out := make([]*folder.Summary, 0)
	for _, f := range r.s.folders {
		if f.OwnerID == ownerID && samePtr(f.ParentID, parent) {
			out = append(out, r.summary(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Folders) ListRoot(_ context.Context, ownerID int64) ([]*folder.Summary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.children(ownerID, nil), nil
}

func (r *Folders) ListChildren(_ context.Context, ownerID, id int64) ([]*folder.Folder, []*folder.Summary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chain, err := r.ancestors(ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	return chain, r.children(ownerID, &id), nil
}

func (r *Folders) Ancestors(_ context.Context, ownerID, id int64) ([]*folder.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.ancestors(ownerID, id)
}

func (r *Folders) ancestors(ownerID, id int64) ([]*folder.Folder, error) {
	var out []*folder.Folder
	cur := &id
	for cur != nil && len(out) < folder.MaxDepth {
		f, ok := r.s.folders[*cur]
		if !ok || f.OwnerID != ownerID {
			break
		}
		out = append(out, copyFolder(f))
		cur = f.ParentID
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("folder not found")
	}
	return out, nil
}

func (r *Folders) Rename(_ context.Context, ownerID, id int64, name string) (*folder.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.s.ownedFolder(ownerID, &id)
	if err != nil {
		return nil, err
	}
	if r.s.siblingClash(ownerID, f.ParentID, name, f.ID) {
		return nil, apperr.Conflict("a folder with this name already exists here")
	}
	f.Name = name
	f.UpdatedAt = r.s.now()
	return copyFolder(f), nil
}

func (r *Folders) Move(_ context.Context, ownerID, id int64, newParent *int64) (*folder.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.s.ownedFolder(ownerID, &id)
	if err != nil {
		return nil, err
	}
	if newParent != nil {
		chain, err := r.ancestors(ownerID, *newParent)
		if err != nil {
			return nil, err
		}
		cycle, err := folder.NewChain(chain).WouldCycle(id, newParent)
		if err != nil {
			return nil, err
		}
		if cycle {
			return nil, apperr.Validation("cannot move a folder into itself or one of its subfolders")
		}
		if !folder.FitsDepth(len(chain), r.height(id)) {
			return nil, errTooDeep
		}
	}
	if r.s.siblingClash(ownerID, newParent, f.Name, f.ID) {
		return nil, apperr.Conflict("a folder with this name already exists here")
	}
	if newParent != nil {
		p := *newParent
		f.ParentID = &p
	} else {
		f.ParentID = nil
	}
	f.UpdatedAt = r.s.now()
	return copyFolder(f), nil
}

// height counts the levels of the subtree rooted at id, id included.
func (r *Folders) height(id int64) int {
	levels := 0
	frontier := map[int64]bool{id: true}
	for len(frontier) > 0 {
		levels++
		next := make(map[int64]bool)
		for _, f := range r.s.folders {
			if f.ParentID != nil && frontier[*f.ParentID] {
				next[f.ID] = true
			}
		}
		frontier = next
	}
	return levels
}

func (r *Folders) DeleteTree(_ context.Context, ownerID, id int64) (*folder.DeleteResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, err := r.s.lockedUser(ownerID)
	if err != nil {
		return nil, err
	}
	if _, err := r.s.ownedFolder(ownerID, &id); err != nil {
		return nil, err
	}

	inTree := map[int64]bool{id: true}
	frontier := []int64{id}
	for len(frontier) > 0 {
		var next []int64
		for _, f := range r.s.folders {
			if f.ParentID != nil && inTree[*f.ParentID] && !inTree[f.ID] {
				inTree[f.ID] = true
				next = append(next, f.ID)
			}
		}
		frontier = next
	}

	var res folder.DeleteResult
	for fid, f := range r.s.files {
		if f.FolderID != nil && inTree[*f.FolderID] {
			res.Files++
			res.FreedBytes += f.SizeBytes
			res.StorageKeys = append(res.StorageKeys, f.StoredName)
			delete(r.s.files, fid)
		}
	}
	for fid := range inTree {
		delete(r.s.folders, fid)
		res.Folders++
	}
	u.UsedStorageBytes -= res.FreedBytes
	for _, k := range res.StorageKeys {
		r.s.blobGC[k] = &gcRepo.QueuedBlob{StorageKey: k, EnqueuedAt: r.s.now()}
	}
	sort.Strings(res.StorageKeys)
	return &res, nil
}

// Files implements the file repository and the share-token store.
type Files struct{ s *Store }

func (r *Files) list(match func(*fileInfo.File) bool) []*fileInfo.File {
	out := make([]*fileInfo.File, 0)
	for _, f := range r.s.files {
		if match(f) {
			out = append(out, copyFile(f, r.s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OriginalName != out[j].OriginalName {
			return out[i].OriginalName < out[j].OriginalName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Files) owned(ownerID, id int64) (*fileInfo.File, error) {
	f, ok := r.s.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, apperr.NotFound("file not found")
	}
	return f, nil
}

func (r *Files) FolderOwned(_ context.Context, ownerID int64, folderID *int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, err := r.s.ownedFolder(ownerID, folderID)
	return err
}

func (r *Files) Reserve(_ context.Context, res fileInfo.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, err := r.s.lockedUser(res.UserID)
	if err != nil {
		return err
	}
	if u.UsedStorageBytes+u.ReservedStorageBytes+res.SizeBytes > u.MaxStorageBytes {
		return apperr.QuotaExceeded("storage quota exceeded")
	}
	u.ReservedStorageBytes += res.SizeBytes
	res.CreatedAt = r.s.now()
	r.s.reservations[res.ID] = res
	return nil
}

func (r *Files) Release(_ context.Context, res fileInfo.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.dropReservation(res)
	return nil
}

func (s *Store) dropReservation(res fileInfo.Reservation) bool {
	held, ok := s.reservations[res.ID]
	if !ok {
		return false
	}
	delete(s.reservations, res.ID)
	if u, ok := s.users[held.UserID]; ok {
		u.ReservedStorageBytes -= held.SizeBytes
	}
	return true
}

func (r *Files) Commit(_ context.Context, res fileInfo.Reservation, f *fileInfo.File) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, err := r.s.lockedUser(res.UserID)
	if err != nil {
		return nil, err
	}
	if _, ok := r.s.reservations[res.ID]; !ok {
		return nil, apperr.UploadFailed("upload reservation expired", nil)
	}
	if _, err := r.s.ownedFolder(res.UserID, f.FolderID); err != nil {
		return nil, err
	}
	delete(r.s.reservations, res.ID)
	u.ReservedStorageBytes -= res.SizeBytes
	u.UsedStorageBytes += res.SizeBytes

	now := r.s.now()
	rec := &fileInfo.File{
		ID:           r.s.id(),
		OwnerID:      res.UserID,
		OriginalName: f.OriginalName,
		StoredName:   res.StorageKey,
		ContentType:  f.ContentType,
		SizeBytes:    res.SizeBytes,
		Checksum:     f.Checksum,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if f.FolderID != nil {
		id := *f.FolderID
		rec.FolderID = &id
	}
	r.s.files[rec.ID] = rec
	return copyFile(rec, r.s), nil
}

func (r *Files) Get(_ context.Context, ownerID, id int64) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	return copyFile(f, r.s), nil
}

func (r *Files) ListRoot(_ context.Context, ownerID int64) ([]*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(f *fileInfo.File) bool { return f.OwnerID == ownerID && f.FolderID == nil }), nil
}

func (r *Files) ListFolder(_ context.Context, ownerID, folderID int64) ([]*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.s.ownedFolder(ownerID, &folderID); err != nil {
		return nil, err
	}
	return r.list(func(f *fileInfo.File) bool { return f.OwnerID == ownerID && samePtr(f.FolderID, &folderID) }), nil
}

func (r *Files) ListAll(_ context.Context, ownerID int64) ([]*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(f *fileInfo.File) bool { return f.OwnerID == ownerID }), nil
}

func (r *Files) Search(_ context.Context, ownerID int64, q string) ([]*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q = strings.ToLower(q)
	out := r.list(func(f *fileInfo.File) bool {
		return f.OwnerID == ownerID && strings.Contains(strings.ToLower(f.OriginalName), q)
	})
	if len(out) > 200 {
		out = out[:200]
	}
	return out, nil
}

func (r *Files) Rename(_ context.Context, ownerID, id int64, name string) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	f.OriginalName = name
	f.UpdatedAt = r.s.now()
	return copyFile(f, r.s), nil
}

func (r *Files) Move(_ context.Context, ownerID, id int64, folderID *int64) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.s.ownedFolder(ownerID, folderID); err != nil {
		return nil, err
	}
	f, err := r.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	if folderID != nil {
		fid := *folderID
		f.FolderID = &fid
	} else {
		f.FolderID = nil
	}
	f.UpdatedAt = r.s.now()
	return copyFile(f, r.s), nil
}

func (r *Files) Delete(_ context.Context, ownerID, id int64) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, err := r.s.lockedUser(ownerID)
	if err != nil {
		return nil, err
	}
	f, err := r.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	out := copyFile(f, r.s)
	delete(r.s.files, id)
	u.UsedStorageBytes -= f.SizeBytes
	r.s.blobGC[f.StoredName] = &gcRepo.QueuedBlob{StorageKey: f.StoredName, EnqueuedAt: r.s.now()}
	return out, nil
}

func (r *Files) Stats(_ context.Context, ownerID int64) (fileInfo.Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[ownerID]
	if !ok {
		return fileInfo.Stats{}, apperr.NotFound("user not found")
	}
	st := fileInfo.Stats{UsedStorage: u.UsedStorageBytes, MaxStorage: u.MaxStorageBytes}
	for _, f := range r.s.files {
		if f.OwnerID == ownerID {
			st.TotalFiles++
		}
	}
	for _, f := range r.s.folders {
		if f.OwnerID == ownerID {
			st.TotalFolders++
		}
	}
	return st, nil
}

func (r *Files) SetShareToken(_ context.Context, ownerID, id int64, token string) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	if f.ShareToken != nil {
		return copyFile(f, r.s), nil
	}
	for _, other := range r.s.files {
		if other.ShareToken != nil && *other.ShareToken == token {
			return nil, fileInfo.ErrShareTokenTaken
		}
	}
	f.ShareToken = &token
	f.IsPublic = true
	f.UpdatedAt = r.s.now()
	return copyFile(f, r.s), nil
}

func (r *Files) ClearShareToken(_ context.Context, ownerID, id int64) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	f.ShareToken = nil
	f.IsPublic = false
	f.UpdatedAt = r.s.now()
	return copyFile(f, r.s), nil
}

func (r *Files) byToken(token string) (*fileInfo.File, error) {
	for _, f := range r.s.files {
		if f.IsPublic && f.ShareToken != nil && *f.ShareToken == token {
			return f, nil
		}
	}
	return nil, apperr.NotFound("shared file not found")
}

func (r *Files) GetByShareToken(_ context.Context, token string) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.byToken(token)
	if err != nil {
		return nil, err
	}
	return copyFile(f, r.s), nil
}

func (r *Files) CountDownload(_ context.Context, token string) (*fileInfo.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, err := r.byToken(token)
	if err != nil {
		return nil, err
	}
	f.DownloadCount++
	return copyFile(f, r.s), nil
}

// GC implements the garbage-collection queue.
type GC struct{ s *Store }

func (r *GC) Queued(_ context.Context, limit int) ([]gcRepo.QueuedBlob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]gcRepo.QueuedBlob, 0, len(r.s.blobGC))
	for _, b := range r.s.blobGC {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts < out[j].Attempts
		}
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].StorageKey < out[j].StorageKey
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *GC) Dequeue(_ context.Context, keys []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, k := range keys {
		delete(r.s.blobGC, k)
	}
	return nil
}

func (r *GC) MarkFailed(_ context.Context, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b, ok := r.s.blobGC[key]; ok {
		b.Attempts++
	}
	return nil
}

func (r *GC) StaleReservations(_ context.Context, cutoff time.Time, limit int) ([]fileInfo.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []fileInfo.Reservation
	for _, res := range r.s.reservations {
		if res.CreatedAt.Before(cutoff) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *GC) Expire(_ context.Context, res fileInfo.Reservation) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.dropReservation(res) {
		return false, nil
	}
	r.s.blobGC[res.StorageKey] = &gcRepo.QueuedBlob{StorageKey: res.StorageKey, EnqueuedAt: r.s.now()}
	return true, nil
}

// ErrBlobStoreDown is what Blobs returns while failures are injected.
var ErrBlobStoreDown = errors.New("blob store unavailable")

// Blobs is an in-memory blob store.
type Blobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailPuts makes the next n uploads fail after consuming their input.
	FailPuts    int
	FailDeletes bool
	Puts        int
}

func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string][]byte)}
}

func (b *Blobs) UploadFile(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return io.ErrUnexpectedEOF
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Puts++
	if b.FailPuts > 0 {
		b.FailPuts--
		return ErrBlobStoreDown
	}
	b.objects[key] = data
	return nil
}

func (b *Blobs) DownloadFile(_ context.Context, key string) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, 0, apperr.NotFound("file content not found")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (b *Blobs) DeleteFile(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailDeletes {
		return ErrBlobStoreDown
	}
	delete(b.objects, key)
	return nil
}

func (b *Blobs) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
