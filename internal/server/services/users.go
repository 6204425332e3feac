// Package services contains server-side business logic. UserService handles
// registration, login and profile lookups; every successful registration or
// login stores a fresh access token as the user's current one.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/mac"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/dmitrijs2005/tokenguard/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/google/uuid"
)

const defaultLanguageCode = "en"

// TokenIssuer mints initial tokens. *auth.Authenticator satisfies it.
type TokenIssuer interface {
	IssueInitialToken(identity token.Identity) (token.Response, error)
}

type RegisterInput struct {
	Email        string
	Password     string
	FirstName    *string
	LastName     *string
	LanguageCode string
}

type UserService struct {
	users  users.Repository
	tokens TokenIssuer
	log    logging.Logger
}

func NewUserService(repo users.Repository, tokens TokenIssuer, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop{}
	}
	return &UserService{users: repo, tokens: tokens, log: log.With("module", "users")}
}

// Register creates a user, or logs in an existing one when the password
// matches. created reports which of the two happened. An existing email
// with a different password yields common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (user *models.User, tok token.Response, created bool, err error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, token.Response{}, false, fmt.Errorf("%w: email and password are required", common.ErrInvalidCredentials)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.checkPassword(existing, in.Password); err != nil {
			if errors.Is(err, common.ErrInvalidCredentials) {
				return nil, token.Response{}, false, fmt.Errorf("%w: email %s", common.ErrAlreadyExists, email)
			}
			return nil, token.Response{}, false, err
		}
		tok, err := s.rotate(ctx, existing)
		if err != nil {
			return nil, token.Response{}, false, err
		}
		return existing, tok, false, nil
	case !errors.Is(err, common.ErrorNotFound):
		return nil, token.Response{}, false, err
	}

	hash, salt := mac.HashPassword(in.Password)
	lang := in.LanguageCode
	if lang == "" {
		lang = defaultLanguageCode
	}

	user = &models.User{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		LanguageCode: lang,
		PasswordHash: hash,
		PasswordSalt: salt,
	}

	tok, err = s.tokens.IssueInitialToken(user.Identity())
	if err != nil {
		return nil, token.Response{}, false, err
	}
	user.AccessToken = tok.Token

	user, err = s.users.Create(ctx, user)
	if err != nil {
		return nil, token.Response{}, false, err
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID.String())
	return user, tok, true, nil
}

// Login verifies credentials and replaces the user's current token.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, token.Response, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, token.Response{}, err
	}

	if err := s.checkPassword(user, password); err != nil {
		return nil, token.Response{}, err
	}

	tok, err := s.rotate(ctx, user)
	if err != nil {
		return nil, token.Response{}, err
	}

	return user, tok, nil
}

func (s *UserService) Profile(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

func (s *UserService) checkPassword(user *models.User, password string) error {
	ok, err := mac.VerifyPassword(password, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		return fmt.Errorf("%w: stored password salt: %v", common.ErrorInternal, err)
	}
	if !ok {
		return common.ErrInvalidCredentials
	}
	return nil
}

func (s *UserService) rotate(ctx context.Context, user *models.User) (token.Response, error) {
	tok, err := s.tokens.IssueInitialToken(user.Identity())
	if err != nil {
		return token.Response{}, err
	}
	if err := s.users.ReplaceAccessToken(ctx, user.ID, tok.Token); err != nil {
		return token.Response{}, err
	}
	prev := user.AccessToken
	user.PreviousAccessToken = &prev
	user.AccessToken = tok.Token

	s.log.Info(ctx, "user logged in", "user_id", user.ID.String())
	return tok, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
