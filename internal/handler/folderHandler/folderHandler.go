package folderHandler

import (
	"context"
	"fmt"

	"cloudsync/internal/handler"
	"cloudsync/internal/model/folder"
	"cloudsync/pkg/middleware"
	"cloudsync/pkg/response"

	"github.com/gin-gonic/gin"
)

type FolderService interface {
	CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64) (*folder.View, error)
	GetFolder(ctx context.Context, ownerID, id int64) (*folder.View, error)
	ListRoot(ctx context.Context, ownerID int64) ([]*folder.View, error)
	ListSubfolders(ctx context.Context, ownerID, id int64) ([]*folder.View, error)
	RenameFolder(ctx context.Context, ownerID, id int64, newName string) (*folder.View, error)
	MoveFolder(ctx context.Context, ownerID, id int64, newParentID *int64) (*folder.View, error)
	DeleteFolder(ctx context.Context, ownerID, id int64) (*folder.DeleteResult, error)
	Breadcrumbs(ctx context.Context, ownerID, id int64) ([]folder.Crumb, error)
}

type FolderHandler struct {
	folderService FolderService
}

func New(service FolderService) *FolderHandler {
	return &FolderHandler{folderService: service}
}

type createRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId"`
}

// Create takes name and parentId from the query string, or from a JSON body when the
// query has no name.
func (h *FolderHandler) Create(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	name, hasName := c.GetQuery("name")
	parentID, err := handler.OptionalID(c.Query("parentId"), "parentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if !hasName && c.Request.ContentLength != 0 {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			name, parentID = req.Name, req.ParentID
		}
	}
	v, err := h.folderService.CreateFolder(c.Request.Context(), uid, name, parentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "folder created", handler.NewFolderDTO(v))
}

func (h *FolderHandler) ListRoot(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	views, err := h.folderService.ListRoot(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fmt.Sprintf("%d folders", len(views)), handler.NewFolderDTOs(views))
}

func (h *FolderHandler) Get(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.folderService.GetFolder(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "folder details", handler.NewFolderDTO(v))
}

func (h *FolderHandler) Subfolders(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	views, err := h.folderService.ListSubfolders(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fmt.Sprintf("%d folders", len(views)), handler.NewFolderDTOs(views))
}

func (h *FolderHandler) Breadcrumbs(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	crumbs, err := h.folderService.Breadcrumbs(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "breadcrumbs", handler.NewCrumbDTOs(crumbs))
}

func (h *FolderHandler) Rename(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.folderService.RenameFolder(c.Request.Context(), uid, id, handler.NameParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "folder renamed", handler.NewFolderDTO(v))
}

func (h *FolderHandler) Move(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	parentID, err := handler.OptionalID(c.Query("parentId"), "parentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.folderService.MoveFolder(c.Request.Context(), uid, id, parentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "folder moved", handler.NewFolderDTO(v))
}

func (h *FolderHandler) Delete(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	id, err := handler.PathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.folderService.DeleteFolder(c.Request.Context(), uid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "folder deleted", handler.NewDeleteFolderDTO(res))
}
