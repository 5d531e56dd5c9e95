package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("another session is already active")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionInvalidated   = errors.New("session invalidated")
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	Role   model.Role `json:"role"`
	UserID int        `json:"user_id"`
	Name   string     `json:"name,omitempty"`
}

// UserFinder loads accounts by email or ID.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int) (*model.User, error)
}

// AuthService handles authentication, JWT, and the learner single-device session.
type AuthService struct {
	cfg   *config.Config
	rdb   *redis.Client
	users UserFinder
	now   func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, users UserFinder) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, users: users, now: time.Now}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login authenticates an account of the given role and issues a token.
// Learners are limited to one active session; a second login is rejected until
// the first logs out or an admin resets it.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, role model.Role) (*model.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Role != role {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	var token string
	if role == model.RoleLearner {
		token, err = s.GenerateLearnerToken(ctx, user)
	} else {
		token, err = s.GenerateAdminToken(user)
	}
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{Token: token, User: *user}, nil
}

// GenerateLearnerToken creates a JWT for a learner and registers the session in Redis.
func (s *AuthService) GenerateLearnerToken(ctx context.Context, user *model.User) (string, error) {
	sessionKey := config.CacheKey.LearnerSessionKey(user.ID)
	jti := uuid.New().String()

	ok, err := s.rdb.SetNX(ctx, sessionKey, jti, s.cfg.JWTExpiry).Result()
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return "", ErrSessionAlreadyActive
	}

	signed, err := s.sign(user, jti)
	if err != nil {
		s.rdb.Del(ctx, sessionKey)
		return "", err
	}
	return signed, nil
}

// GenerateAdminToken creates a JWT for an admin.
func (s *AuthService) GenerateAdminToken(user *model.User) (string, error) {
	return s.sign(user, uuid.New().String())
}

func (s *AuthService) sign(user *model.User, jti string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		Role:   user.Role,
		UserID: user.ID,
		Name:   user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateLearnerSession checks that the token's JTI matches the active session in Redis.
func (s *AuthService) ValidateLearnerSession(ctx context.Context, learnerID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.LearnerSessionKey(learnerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// Logout ends the learner session bound to jti. Admin tokens are stateless.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if claims.Role != model.RoleLearner {
		return nil
	}
	if err := s.ValidateLearnerSession(ctx, claims.UserID, claims.ID); err != nil {
		return err
	}
	return s.ResetLearnerSession(ctx, claims.UserID)
}

// ResetLearnerSession removes a learner's session from Redis, allowing a new login.
func (s *AuthService) ResetLearnerSession(ctx context.Context, learnerID int) error {
	return s.rdb.Del(ctx, config.CacheKey.LearnerSessionKey(learnerID)).Err()
}

// Me returns the account behind the claims.
func (s *AuthService) Me(ctx context.Context, claims *Claims) (*model.User, error) {
	return s.users.GetByID(ctx, claims.UserID)
}
