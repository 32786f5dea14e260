package authService

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloudsync/internal/apperr"
	"cloudsync/internal/model/user"
	"cloudsync/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,50}$`)
)

const (
	refreshTokenExpireTime = 7 * 24 * time.Hour
	jwtTokenExpireTime     = 3 * time.Hour

	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
	maxEmailLength    = 255

	DefaultQuota int64 = 10 << 30

	invalidCredentials = "invalid username or password"
)

var (
	tokenCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_token_cache_hits_total",
		Help: "Access tokens whose claims were served from the parsed-token cache.",
	})
	tokenCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudsync_token_cache_misses_total",
		Help: "Access tokens that had to be parsed and verified.",
	})
)

type UserRepository interface {
	Create(ctx context.Context, username, email, passwordHash string, maxStorage int64) (*user.User, error)
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetByLogin(ctx context.Context, usernameOrEmail string) (*user.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type RefreshTokenStore interface {
	SaveToken(ctx context.Context, userID int64, token string, ttl time.Duration) error
	ValidateToken(ctx context.Context, userID int64, token string) (bool, error)
	DeleteToken(ctx context.Context, userID int64) error
}

type TokenBlacklist interface {
	AddToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error)
}

type Config struct {
	JWTSecret    string
	DefaultQuota int64
	// TokenCacheSize bounds the parsed-token cache; zero disables it.
	TokenCacheSize int
	BcryptCost     int
}

// AuthResult is what a successful register, login or refresh hands back to the client.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *user.User
}

type AuthService struct {
	userRepo      UserRepository
	jwtSecretKey  []byte
	refreshRepo   RefreshTokenStore
	blacklistRepo TokenBlacklist
	defaultQuota  int64
	bcryptCost    int
	dummyHash     []byte
	claimsCache   *expirable.LRU[string, *jwt.RegisteredClaims]
}

func New(userRepo UserRepository, tokenRepo RefreshTokenStore, blacklistRepo TokenBlacklist, cfg Config) (*AuthService, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.DefaultQuota <= 0 {
		cfg.DefaultQuota = DefaultQuota
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	// Compared against when the login name is unknown, so both paths cost one bcrypt.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	s := &AuthService{
		userRepo:      userRepo,
		jwtSecretKey:  []byte(cfg.JWTSecret),
		refreshRepo:   tokenRepo,
		blacklistRepo: blacklistRepo,
		defaultQuota:  cfg.DefaultQuota,
		bcryptCost:    cfg.BcryptCost,
		dummyHash:     dummy,
	}
	if cfg.TokenCacheSize > 0 {
		s.claimsCache = expirable.NewLRU[string, *jwt.RegisteredClaims](cfg.TokenCacheSize, nil, jwtTokenExpireTime)
	}
	return s, nil
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, apperr.Validation("username, email and password are required")
	}
	if !usernameRegex.MatchString(username) {
		return nil, apperr.Validation("username must be 3-50 characters of letters, digits, '.', '_' or '-'")
	}
	if len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return nil, apperr.Validation("invalid email format")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return nil, apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}

	if exists, err := s.userRepo.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if exists {
		return nil, apperr.Conflict("username already exists")
	}
	if exists, err := s.userRepo.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if exists {
		return nil, apperr.Conflict("email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// The insert still enforces uniqueness for registrations racing past the checks above.
	u, err := s.userRepo.Create(ctx, username, email, string(hashedPassword), s.defaultQuota)
	if err != nil {
		return nil, err
	}
	logger.GetLogger(ctx).Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return s.issue(ctx, u)
}

func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (*AuthResult, error) {
	login := strings.TrimSpace(usernameOrEmail)
	if login == "" || password == "" {
		return nil, apperr.Unauthorized(invalidCredentials)
	}

	u, err := s.userRepo.GetByLogin(ctx, login)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	return s.issue(ctx, u)
}

// ValidateToken verifies an access token and returns the user id it was issued to.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (int64, error) {
	claims, err := s.claims(token)
	if err != nil {
		return 0, apperr.Unauthorized("invalid or expired token")
	}

	blacklisted, err := s.blacklistRepo.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		logger.GetLogger(ctx).Warn("blacklist lookup failed", zap.Error(err))
		return 0, apperr.Unauthorized("invalid or expired token")
	}
	if blacklisted {
		return 0, apperr.Unauthorized("token has been revoked")
	}

	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, apperr.Unauthorized("invalid or expired token")
	}
	return uid, nil
}

// Logout revokes the access token and the user's refresh token.
func (s *AuthService) Logout(ctx context.Context, userID int64, accessToken string) error {
	claims, err := s.claims(accessToken)
	if err != nil {
		return apperr.Unauthorized("invalid or expired token")
	}
	if claims.Subject != strconv.FormatInt(userID, 10) {
		return apperr.Unauthorized("token does not belong to user")
	}

	if err := s.blacklistRepo.AddToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	if s.claimsCache != nil {
		s.claimsCache.Remove(accessToken)
	}
	if err := s.refreshRepo.DeleteToken(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	logger.GetLogger(ctx).Info("user logged out", zap.Int64("user_id", userID))
	return nil
}

// RefreshToken trades a valid refresh token for a new access and refresh token pair.
func (s *AuthService) RefreshToken(ctx context.Context, userID int64, oldRefreshToken string) (*AuthResult, error) {
	valid, err := s.refreshRepo.ValidateToken(ctx, userID, oldRefreshToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, apperr.Unauthorized("invalid or expired refresh token")
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid or expired refresh token")
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*user.User, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("user no longer exists")
	}
	return u, err
}

func (s *AuthService) issue(ctx context.Context, u *user.User) (*AuthResult, error) {
	accessToken, expiresAt, err := s.generateJWT(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.generateRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         u,
	}, nil
}

func (s *AuthService) generateJWT(userID int64) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(jwtTokenExpireTime)
	payload := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	tokenStr, err := token.SignedString(s.jwtSecretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenStr, expiresAt, nil
}

func (s *AuthService) generateRefreshToken(ctx context.Context, userID int64) (string, error) {
	refreshToken := uuid.NewString()
	if err := s.refreshRepo.SaveToken(ctx, userID, refreshToken, refreshTokenExpireTime); err != nil {
		return "", err
	}
	return refreshToken, nil
}

// claims returns the verified claims of token, from the cache when possible. Cached
// entries are re-checked for expiry since the cache TTL starts at insertion.
func (s *AuthService) claims(token string) (*jwt.RegisteredClaims, error) {
	if s.claimsCache != nil {
		if c, ok := s.claimsCache.Get(token); ok {
			if c.ExpiresAt != nil && time.Now().Before(c.ExpiresAt.Time) {
				tokenCacheHits.Inc()
				return c, nil
			}
			s.claimsCache.Remove(token)
		}
		tokenCacheMisses.Inc()
	}

	payload := &jwt.RegisteredClaims{}
	parsedToken, err := jwt.ParseWithClaims(token, payload, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsedToken.Valid || payload.ID == "" || payload.Subject == "" {
		return nil, errors.New("token is missing required claims")
	}

	if s.claimsCache != nil {
		s.claimsCache.Add(token, payload)
	}
	return payload, nil
}
