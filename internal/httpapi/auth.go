package httpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
)

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager issues and verifies session tokens against the users table.
type AuthManager struct {
	repo       store.Repository
	secret     []byte
	sessionTTL time.Duration
	logger     *zap.Logger
}

func NewAuthManager(repo store.Repository, secret string, sessionTTL time.Duration, logger *zap.Logger) *AuthManager {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{
		repo:       repo,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Bootstrap upgrades any stored plaintext password to a bcrypt hash. Accounts
// seeded by hand or by older tooling become safe to keep on first start.
func (a *AuthManager) Bootstrap(ctx context.Context) error {
	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if isPasswordHash(user.Password) {
			continue
		}
		hashed, err := hashPassword(user.Password)
		if err != nil {
			return err
		}
		if err := a.repo.UpdateUserPassword(ctx, user.Username, hashed); err != nil {
			return err
		}
		a.logger.Info("upgraded stored password to bcrypt", zap.String("username", user.Username))
	}
	return nil
}

func (a *AuthManager) Login(ctx context.Context, username string, password string) (string, *domain.LoginResponse, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}

	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return "", nil, err
	}

	var account *domain.UserAccount
	for i := range users {
		if users[i].Username == username {
			account = &users[i]
			break
		}
	}
	if account == nil || !account.Active || !verifyPassword(account.Password, password) {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(a.sessionTTL)
	claims := sessionClaims{
		Role: account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, err
	}

	return token, &domain.LoginResponse{
		Username:  account.Username,
		Role:      account.Role,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenString string) (*domain.Actor, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid session token")
	}
	return &domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (*domain.StaffUser, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 {
		return nil, fmt.Errorf("%w: username must be at least 3 characters", store.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	account := domain.UserAccount{
		Username:  username,
		Password:  hashed,
		Role:      domain.RoleStaff,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.repo.CreateUser(ctx, account); err != nil {
		return nil, err
	}

	return &domain.StaffUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (a *AuthManager) ListStaff(ctx context.Context) ([]domain.StaffUser, error) {
	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	staff := make([]domain.StaffUser, 0, len(users))
	for _, user := range users {
		staff = append(staff, domain.StaffUser{
			Username:  user.Username,
			Role:      user.Role,
			Active:    user.Active,
			CreatedAt: user.CreatedAt,
		})
	}
	return staff, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func verifyPassword(stored string, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") ||
		strings.HasPrefix(value, "$2b$") ||
		strings.HasPrefix(value, "$2y$")
}
