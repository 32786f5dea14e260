// Package server assembles the HTTP API and the gRPC health endpoint.
package server

import (
	"net/http"

	"cloudsync/internal/handler/authHandler"
	"cloudsync/internal/handler/fileHandler"
	"cloudsync/internal/handler/folderHandler"
	"cloudsync/internal/handler/shareHandler"
	"cloudsync/pkg/logger"
	"cloudsync/pkg/middleware"
	"cloudsync/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Auth   *authHandler.AuthHandler
	Files  *fileHandler.FileHandler
	Folder *folderHandler.FolderHandler
	Share  *shareHandler.ShareHandler
}

// NewRouter wires every route of the API.
func NewRouter(log *logger.Logger, tokens middleware.TokenValidator, h Handlers, checks Checks) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.Metrics())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsCfg.ExposeHeaders = []string{"Content-Disposition", "Content-Length", middleware.RequestIDHeader}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, "route not found")
	})

	r.GET("/health/live", live)
	r.GET("/health/ready", ready(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	auth := middleware.Auth(tokens)

	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.POST("/auth/logout", auth, h.Auth.Logout)
	api.GET("/auth/me", auth, h.Auth.Me)

	api.GET("/share/:token", h.Share.Download)
	api.GET("/share/:token/info", h.Share.Info)
	api.GET("/files/:id/download", middleware.QueryTokenOrAuth(tokens, "token"), h.Files.Download)

	files := api.Group("/files", auth)
	{
		files.GET("", h.Files.ListAll)
		files.GET("/root", h.Files.ListRoot)
		files.GET("/folder/:id", h.Files.ListFolder)
		files.GET("/search", h.Files.Search)
		files.GET("/stats", h.Files.Stats)
		files.POST("/upload", h.Files.Upload)
		files.POST("/upload/multiple", h.Files.UploadMultiple)
		files.GET("/:id", h.Files.GetFile)
		files.PUT("/:id/rename", h.Files.Rename)
		files.PATCH("/:id/rename", h.Files.Rename)
		files.PUT("/:id/move", h.Files.Move)
		files.POST("/:id/share", h.Files.Share)
		files.DELETE("/:id/share", h.Files.Unshare)
		files.DELETE("/:id", h.Files.Delete)
	}

	folders := api.Group("/folders", auth)
	{
		folders.GET("", h.Folder.ListRoot)
		folders.POST("", h.Folder.Create)
		folders.GET("/:id", h.Folder.Get)
		folders.GET("/:id/subfolders", h.Folder.Subfolders)
		folders.GET("/:id/breadcrumbs", h.Folder.Breadcrumbs)
		folders.PUT("/:id/rename", h.Folder.Rename)
		folders.PATCH("/:id/rename", h.Folder.Rename)
		folders.PUT("/:id/move", h.Folder.Move)
		folders.DELETE("/:id", h.Folder.Delete)
	}
	return r
}
