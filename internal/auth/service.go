package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// Service handles registration, login and current-user lookup.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
	logger *logging.Logger
	cost   int
}

func NewService(repo Repository, tokens *TokenIssuer, logger *logging.Logger) *Service {
	if repo == nil {
		panic("auth: repository required")
	}
	if tokens == nil {
		panic("auth: token issuer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	role := identity.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if !role.Valid() {
		return nil, fmt.Errorf("auth: register: unknown role %q", req.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return s.session(user)
}

// Login checks the password and, when role is given, that it matches the account.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if req.Role != "" && identity.Role(strings.ToLower(req.Role)) != user.Role {
		return nil, ErrRoleMismatch
	}
	return s.session(user)
}

func (s *Service) Me(ctx context.Context, p identity.Principal) (*User, error) {
	return s.repo.GetByID(ctx, p.UserID)
}

func (s *Service) session(user *User) (*Session, error) {
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}
