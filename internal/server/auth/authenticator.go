// Package auth validates access tokens and refreshes stale ones.
//
// A token is accepted as-is until its ExpiresAt. Between ExpiresAt and
// RefreshAt it is exchanged for a new one; the exchange is coordinated only
// through the store's compare-and-swap, so concurrent requests carrying the
// same stale token converge on a single replacement. At or after RefreshAt
// the current token is dead and the user has to log in again; a superseded
// token is still answered with its replacement until ExpiresAt plus the
// grace period.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/mac"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/dmitrijs2005/tokenguard/internal/timex"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/google/uuid"
)

// DefaultGracePeriod is how long after a token's ExpiresAt a request that
// lost a refresh race may still be answered with the winner's token.
const DefaultGracePeriod = time.Minute

// Store is the slice of the users repository the Authenticator needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetAccessToken(ctx context.Context, id uuid.UUID) (string, error)
	CompareAndSwapToken(ctx context.Context, id uuid.UUID, expected, next string) (int64, error)
}

// Result is the outcome of a successful Authenticate call. Token is the
// token the caller should use from now on; Refreshed reports whether it
// differs from the one presented.
type Result struct {
	Token     token.Response
	Identity  token.Identity
	Refreshed bool
}

type Authenticator struct {
	codec  *token.Codec
	issuer *token.Issuer
	store  Store
	clock  timex.Clock
	grace  time.Duration
	log    logging.Logger
}

type Option func(*Authenticator)

// WithClock sets the time source. It should be the one the Issuer uses.
func WithClock(c timex.Clock) Option {
	return func(a *Authenticator) { a.clock = c }
}

func WithGracePeriod(d time.Duration) Option {
	return func(a *Authenticator) { a.grace = d }
}

func WithLogger(l logging.Logger) Option {
	return func(a *Authenticator) { a.log = l }
}

func NewAuthenticator(codec *token.Codec, issuer *token.Issuer, store Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		codec:  codec,
		issuer: issuer,
		store:  store,
		clock:  timex.Real(),
		grace:  DefaultGracePeriod,
		log:    logging.Nop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("module", "auth")
	return a
}

// IssueInitialToken mints and encodes a fresh token for identity. Callers
// are responsible for storing it as the user's current token.
func (a *Authenticator) IssueInitialToken(identity token.Identity) (token.Response, error) {
	return a.codec.Encode(a.issuer.Issue(identity))
}

// Authenticate checks raw and returns the token the caller should carry on
// with.
//
// Errors: common.ErrInvalidTokenFormat for anything that does not decode and
// verify, common.ErrorUnauthorized when the token is past RefreshAt or has
// been superseded, common.ErrStoredTokenCorrupt when the stored token cannot
// be decoded, common.ErrEncoding when minting fails. Store errors are
// returned unchanged.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (Result, error) {
	inner, err := a.codec.Decode(raw)
	if err != nil {
		return Result{}, err
	}

	now := a.clock.Now()

	if now.Before(inner.ExpiresAt) {
		return Result{
			Token:    token.Response{Token: raw, ExpiresAt: inner.ExpiresAt, RefreshAt: inner.RefreshAt},
			Identity: inner.Identity,
		}, nil
	}

	userID := inner.Identity.UserID
	log := a.log.With("user_id", userID.String())

	// Past both the hard boundary and the grace period the token can be
	// neither refreshed nor honoured as a previous token.
	if !now.Before(inner.RefreshAt) && !now.Before(inner.ExpiresAt.Add(a.grace)) {
		log.Debug(ctx, "token past refresh window")
		return Result{}, common.ErrorUnauthorized
	}

	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			log.Info(ctx, "token refers to unknown user")
			return Result{}, common.ErrorUnauthorized
		}
		log.Error(ctx, "failed to load user", "error", err)
		return Result{}, err
	}

	if !mac.Equal(user.AccessToken, raw) {
		return a.superseded(ctx, log, user, raw, inner, now)
	}

	if !now.Before(inner.RefreshAt) {
		log.Debug(ctx, "current token past refresh window")
		return Result{}, common.ErrorUnauthorized
	}

	next, err := a.codec.Encode(a.issuer.Issue(user.Identity()))
	if err != nil {
		log.Error(ctx, "failed to encode refreshed token", "error", err)
		return Result{}, err
	}

	n, err := a.store.CompareAndSwapToken(ctx, userID, raw, next.Token)
	if err != nil {
		log.Error(ctx, "failed to swap token", "error", err)
		return Result{}, err
	}

	if n == 1 {
		log.Info(ctx, "token refreshed", "expires_at", next.ExpiresAt)
		return Result{Token: next, Identity: user.Identity(), Refreshed: true}, nil
	}

	// Another request swapped first; hand out its token.
	current, err := a.store.GetAccessToken(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Result{}, common.ErrorUnauthorized
		}
		log.Error(ctx, "failed to read current token", "error", err)
		return Result{}, err
	}

	log.Debug(ctx, "lost refresh race, returning current token")
	return a.stored(current)
}

// superseded handles a token that is no longer the user's current one. It
// is accepted only if it is the immediately previous token and still within
// the grace period after its ExpiresAt.
func (a *Authenticator) superseded(ctx context.Context, log logging.Logger, user *models.User, raw string, inner token.InnerToken, now time.Time) (Result, error) {
	if user.PreviousAccessToken == nil || !mac.Equal(*user.PreviousAccessToken, raw) {
		log.Info(ctx, "token superseded")
		return Result{}, common.ErrorUnauthorized
	}
	if !now.Before(inner.ExpiresAt.Add(a.grace)) {
		log.Info(ctx, "previous token outside grace period")
		return Result{}, common.ErrorUnauthorized
	}

	log.Debug(ctx, "previous token within grace period, returning current token")
	return a.stored(user.AccessToken)
}

func (a *Authenticator) stored(raw string) (Result, error) {
	resp, inner, err := a.codec.Inspect(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", common.ErrStoredTokenCorrupt, err)
	}
	return Result{Token: resp, Identity: inner.Identity, Refreshed: true}, nil
}
