package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/locker"
	"github.com/kondiv/shop/internal/observability/metrics"
	"github.com/kondiv/shop/internal/security/auth"
)

// TokenIssuer signs access tokens for authenticated users
type TokenIssuer interface {
	Issue(user *domain.User) (*auth.Token, error)
}

// AuthService handles registration and login
type AuthService struct {
	users  domain.UserRepository
	tokens TokenIssuer
	lock   locker.Locker
	cost   int
	logger *slog.Logger
}

// NewAuthService creates a new authentication service. lock serializes
// registrations and must not be shared with the purchase lock.
func NewAuthService(
	users domain.UserRepository,
	tokens TokenIssuer,
	lock locker.Locker,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		users:  users,
		tokens: tokens,
		lock:   lock,
		cost:   bcrypt.DefaultCost,
		logger: logger,
	}
}

// RegisterInput is the raw registration request
type RegisterInput struct {
	Login    string
	Username string
	Password string
	Role     string
}

// LoginResult is a successful login
type LoginResult struct {
	User  domain.UserSummary
	Token *auth.Token
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.UserSummary, error) {
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire registration lock: %w", err)
	}
	defer unlock()

	user, err := s.register(ctx, in)
	metrics.ObserveRegistration(registrationResult(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID.String()),
		slog.String("role", user.Role.String()),
	)
	summary := user.Summary()
	return &summary, nil
}

const maxPasswordBytes = 72

func (s *AuthService) register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Login = strings.TrimSpace(in.Login)
	in.Username = strings.TrimSpace(in.Username)

	var v validator
	v.length("login", in.Login, 2, 64)
	v.length("password", in.Password, 4, 0)
	// bcrypt rejects longer input
	if len(in.Password) > maxPasswordBytes {
		v.add("password", "password must be at most %d bytes", maxPasswordBytes)
	}
	v.length("username", in.Username, 2, 64)
	role := v.role("role", in.Role)
	if err := v.err(); err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsByLogin(ctx, in.Login)
	if err != nil {
		return nil, fmt.Errorf("check login: %w", err)
	}
	if taken {
		return nil, domain.Conflict("Login already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Login:        in.Login,
		Username:     in.Username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			s.logger.Error("failed to create user", slog.String("error", err.Error()))
		}
		return nil, err
	}
	return user, nil
}

func registrationResult(err error) string {
	if err == nil {
		return "success"
	}
	if k := domain.KindOf(err); k != domain.KindInternal {
		return k.String()
	}
	return "error"
}

// Login authenticates a user and issues an access token
func (s *AuthService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	invalid := domain.Unauthorized("Invalid credentials")

	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("login attempt with unknown login", slog.String("login", login))
			return nil, invalid
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("user_id", user.ID.String()))
		return nil, invalid
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID.String()))

	return &LoginResult{User: user.Summary(), Token: token}, nil
}
