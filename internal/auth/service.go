package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"embysub/internal/logging"
	"embysub/internal/services"
	"embysub/internal/services/emby"
	"embysub/internal/store"
)

// Authenticator verifies credentials against Emby.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*emby.AuthResult, error)
}

// Users is the user store surface auth needs.
type Users interface {
	UpsertUser(ctx context.Context, id, name string, role store.Role) (*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Session is the outcome of a successful login.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *store.User
}

// Service logs users in through Emby and resolves bearer tokens to local users.
type Service struct {
	emby   Authenticator
	users  Users
	tokens *Tokens
	logger *slog.Logger
}

// NewService constructs an auth service.
func NewService(authenticator Authenticator, users Users, tokens *Tokens, logger *slog.Logger) *Service {
	return &Service{
		emby:   authenticator,
		users:  users,
		tokens: tokens,
		logger: logging.NewComponentLogger(logger, "auth"),
	}
}

// Login checks the credentials with Emby, mirrors the Emby account locally and
// issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, services.Wrap(services.ErrValidation, "auth", "login", "username is required", nil)
	}
	result, err := s.emby.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Info("emby login rejected", logging.String("username", username), logging.Error(err))
		return nil, err
	}

	role := store.RoleUser
	if result.User.Policy.IsAdministrator {
		role = store.RoleAdmin
	}
	name := strings.TrimSpace(result.User.Name)
	if name == "" {
		name = username
	}
	user, err := s.users.UpsertUser(ctx, result.User.ID, name, role)
	if err != nil {
		return nil, fmt.Errorf("mirror emby user: %w", err)
	}

	token, expires, err := s.tokens.Issue(user.ID, user.Name, user.IsAdmin())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user logged in",
		logging.String(logging.FieldUserID, user.ID),
		logging.String("role", string(user.Role)),
	)
	return &Session{AccessToken: token, ExpiresAt: expires, User: user}, nil
}

// UserForToken validates a bearer token and loads the user it names.
func (s *Service) UserForToken(ctx context.Context, token string) (*store.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, services.Wrap(services.ErrUnauthorized, "auth", "validate token", "Could not validate credentials", err)
	}
	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, services.Wrap(services.ErrUnauthorized, "auth", "validate token", "User not found", nil)
	}
	return user, nil
}

// IsCredentialError reports whether err came from a rejected token rather than an
// internal failure.
func IsCredentialError(err error) bool {
	return errors.Is(err, services.ErrUnauthorized)
}
