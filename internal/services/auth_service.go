package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pos_service/internal/models"
	"pos_service/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// Claims identify the operator behind a request.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (string, *models.User, error)
	ParseToken(token string) (*Claims, error)
	CreateUser(ctx context.Context, user *models.User, password string) error
	EnsureAdmin(ctx context.Context, username, password string) (*models.User, bool, error)
}

type authService struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(users repository.UserRepository, secret string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &authService{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *authService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if repository.IsNotFound(err) {
			return "", nil, fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
		}
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return "", nil, fmt.Errorf("%w: account is disabled", ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	}

	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

func (s *authService) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: token has no user", ErrUnauthorized)
	}
	return claims, nil
}

func (s *authService) CreateUser(ctx context.Context, user *models.User, password string) error {
	if strings.TrimSpace(user.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hashedPassword)
	if user.Role == "" {
		user.Role = string(models.Cashier)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return fmt.Errorf("%w: username %q is taken", ErrConflict, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// EnsureAdmin creates the admin operator if it does not exist yet. The bool
// reports whether a user was created.
func (s *authService) EnsureAdmin(ctx context.Context, username, password string) (*models.User, bool, error) {
	existing, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to look up admin: %w", err)
	}

	admin := &models.User{
		Username: username,
		Role:     string(models.Admin),
		IsActive: true,
	}
	if err := s.CreateUser(ctx, admin, password); err != nil {
		return nil, false, err
	}
	return admin, true, nil
}
