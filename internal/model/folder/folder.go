package folder

import (
	"errors"
	"strings"
	"time"

	"cloudsync/internal/model/fileInfo"
)

const (
	RootName = "Home"
	// MaxDepth bounds every parent-pointer walk.
	MaxDepth = 1024
)

var (
	ErrBrokenChain = errors.New("folder chain is missing an ancestor")
	ErrCycle       = errors.New("folder chain contains a cycle")
)

type Folder struct {
	ID        int64
	OwnerID   int64
	Name      string
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is a folder together with its direct child counts.
type Summary struct {
	Folder
	FileCount      int
	SubfolderCount int
}

type Crumb struct {
	ID   *int64
	Name string
}

// View is what clients see for a folder: the summary plus derived location data and,
// for the detailed read, its direct children.
type View struct {
	Summary
	Path        string
	ParentName  *string
	Subfolders  []*View
	Files       []*fileInfo.File
	Breadcrumbs []Crumb
}

// Contents is everything a detailed folder read needs, taken from one snapshot.
type Contents struct {
	Folder     *Summary
	Ancestors  []*Folder
	Subfolders []*Summary
	Files      []*fileInfo.File
}

type DeleteResult struct {
	Folders     int
	Files       int
	FreedBytes  int64
	StorageKeys []string
}

// Chain indexes folders by id; it usually holds one folder and all of its ancestors.
type Chain map[int64]*Folder

func NewChain(folders []*Folder) Chain {
	c := make(Chain, len(folders))
	for _, f := range folders {
		c[f.ID] = f
	}
	return c
}

// Lineage returns the folders from id up to its root, nearest first.
func (c Chain) Lineage(id int64) ([]*Folder, error) {
	seen := make(map[int64]struct{})
	var out []*Folder
	cur := &id
	for cur != nil {
		if _, ok := seen[*cur]; ok || len(out) >= MaxDepth {
			return nil, ErrCycle
		}
		seen[*cur] = struct{}{}
		f, ok := c[*cur]
		if !ok {
			return nil, ErrBrokenChain
		}
		out = append(out, f)
		cur = f.ParentID
	}
	return out, nil
}

// Breadcrumbs lists the path from the root ("Home", nil id) down to id.
func (c Chain) Breadcrumbs(id int64) ([]Crumb, error) {
	lineage, err := c.Lineage(id)
	if err != nil {
		return nil, err
	}
	crumbs := make([]Crumb, 0, len(lineage)+1)
	crumbs = append(crumbs, Crumb{Name: RootName})
	for i := len(lineage) - 1; i >= 0; i-- {
		fid := lineage[i].ID
		crumbs = append(crumbs, Crumb{ID: &fid, Name: lineage[i].Name})
	}
	return crumbs, nil
}

// Path renders the location of id as "/a/b/c".
func (c Chain) Path(id int64) (string, error) {
	lineage, err := c.Lineage(id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := len(lineage) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(lineage[i].Name)
	}
	return b.String(), nil
}

// WouldCycle reports whether making newParent the parent of id would put id among its own
// ancestors. c must contain newParent and all of its ancestors.
func (c Chain) WouldCycle(id int64, newParent *int64) (bool, error) {
	if newParent == nil {
		return false, nil
	}
	lineage, err := c.Lineage(*newParent)
	if err != nil {
		return false, err
	}
	for _, f := range lineage {
		if f.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// FitsDepth reports whether a subtree height levels tall fits under a parent whose own
// chain is parentDepth folders long (0 for the root).
func FitsDepth(parentDepth, height int) bool {
	return parentDepth+height <= MaxDepth
}

// ChildPath is the path of a direct child named name under a folder at parentPath.
func ChildPath(parentPath, name string) string {
	return parentPath + "/" + name
}
