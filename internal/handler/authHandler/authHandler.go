package authHandler

import (
	"context"
	"time"

	"cloudsync/internal/apperr"
	"cloudsync/internal/handler"
	"cloudsync/internal/model/user"
	"cloudsync/internal/service/authService"
	"cloudsync/pkg/middleware"
	"cloudsync/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*authService.AuthResult, error)
	Login(ctx context.Context, usernameOrEmail, password string) (*authService.AuthResult, error)
	Logout(ctx context.Context, userID int64, accessToken string) error
	RefreshToken(ctx context.Context, userID int64, refreshToken string) (*authService.AuthResult, error)
	Me(ctx context.Context, userID int64) (*user.User, error)
}

type AuthHandler struct {
	authService AuthService
}

func New(service AuthService) *AuthHandler {
	return &AuthHandler{authService: service}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	// Username is accepted as an alias of UsernameOrEmail.
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	UserID       int64  `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type AuthDTO struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       int64     `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
}

func newAuthDTO(r *authService.AuthResult) AuthDTO {
	return AuthDTO{
		Token:        r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		UserID:       r.User.ID,
		Username:     r.User.Username,
		Email:        r.User.Email,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("invalid request body"))
		return
	}
	res, err := h.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "user registered", newAuthDTO(res))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("invalid request body"))
		return
	}
	login := req.UsernameOrEmail
	if login == "" {
		login = req.Username
	}
	res, err := h.authService.Login(c.Request.Context(), login, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "login successful", newAuthDTO(res))
}

func (h *AuthHandler) Logout(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	if err := h.authService.Logout(c.Request.Context(), uid, middleware.AccessToken(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "logout successful", nil)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 || req.RefreshToken == "" {
		response.Error(c, apperr.Validation("userId and refreshToken are required"))
		return
	}
	res, err := h.authService.RefreshToken(c.Request.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "token refreshed", newAuthDTO(res))
}

func (h *AuthHandler) Me(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	u, err := h.authService.Me(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "current user", handler.NewUserDTO(u))
}
