package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/mac"
	"github.com/google/uuid"
)

// Codec encodes and verifies token envelopes with one secret salt.
type Codec struct {
	secret []byte
}

// NewCodec returns a Codec signing with secret. The slice is copied.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty secret salt")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Codec{secret: s}, nil
}

// Encode serializes inner, digests it and returns the transport form.
// Expiries must be whole seconds with ExpiresAt strictly before RefreshAt.
// Failures wrap common.ErrEncoding.
func (c *Codec) Encode(inner InnerToken) (Response, error) {
	if inner.ExpiresAt.Nanosecond() != 0 || inner.RefreshAt.Nanosecond() != 0 {
		return Response{}, fmt.Errorf("%w: expiries are not whole seconds", common.ErrEncoding)
	}
	if inner.ExpiresAt.Unix() >= inner.RefreshAt.Unix() {
		return Response{}, fmt.Errorf("%w: expires_at is not before refresh_at", common.ErrEncoding)
	}

	payload, err := encMode.Marshal(toWire(inner))
	if err != nil {
		return Response{}, fmt.Errorf("%w: inner token: %v", common.ErrEncoding, err)
	}

	env := Envelope{
		Digest:    mac.Digest(payload, c.secret),
		Token:     payload,
		ExpiresAt: inner.ExpiresAt.Unix(),
		RefreshAt: inner.RefreshAt.Unix(),
	}

	raw, err := encMode.Marshal(env)
	if err != nil {
		return Response{}, fmt.Errorf("%w: envelope: %v", common.ErrEncoding, err)
	}

	return Response{
		Token:     base64.StdEncoding.EncodeToString(raw),
		ExpiresAt: fromUnix(env.ExpiresAt),
		RefreshAt: fromUnix(env.RefreshAt),
	}, nil
}

// Decode verifies s and returns its payload. Every failure wraps
// common.ErrInvalidTokenFormat.
func (c *Codec) Decode(s string) (InnerToken, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return InnerToken{}, invalid("base64: %v", err)
	}

	var env Envelope
	if err := decMode.Unmarshal(raw, &env); err != nil {
		return InnerToken{}, invalid("envelope: %v", err)
	}
	if env.Digest == "" || len(env.Token) == 0 {
		return InnerToken{}, invalid("envelope is incomplete")
	}

	if !mac.Equal(mac.Digest(env.Token, c.secret), env.Digest) {
		return InnerToken{}, invalid("digest mismatch")
	}

	var w innerWire
	if err := decMode.Unmarshal(env.Token, &w); err != nil {
		return InnerToken{}, invalid("inner token: %v", err)
	}

	inner, err := w.toInner()
	if err != nil {
		return InnerToken{}, err
	}

	if env.ExpiresAt != w.ExpiresAt || env.RefreshAt != w.RefreshAt {
		return InnerToken{}, invalid("envelope expiry does not match payload")
	}

	return inner, nil
}

// Inspect decodes s and pairs it with its expiries, for tokens that are
// passed on unchanged.
func (c *Codec) Inspect(s string) (Response, InnerToken, error) {
	inner, err := c.Decode(s)
	if err != nil {
		return Response{}, InnerToken{}, err
	}
	return Response{Token: s, ExpiresAt: inner.ExpiresAt, RefreshAt: inner.RefreshAt}, inner, nil
}

func toWire(inner InnerToken) innerWire {
	return innerWire{
		UserID:    inner.Identity.UserID.String(),
		FirstName: inner.Identity.FirstName,
		LastName:  inner.Identity.LastName,
		ExpiresAt: inner.ExpiresAt.Unix(),
		RefreshAt: inner.RefreshAt.Unix(),
	}
}

func (w innerWire) toInner() (InnerToken, error) {
	id, err := uuid.Parse(w.UserID)
	if err != nil {
		return InnerToken{}, invalid("user id: %v", err)
	}
	if w.ExpiresAt >= w.RefreshAt {
		return InnerToken{}, invalid("expires_at is not before refresh_at")
	}
	return InnerToken{
		Identity: Identity{
			UserID:    id,
			FirstName: w.FirstName,
			LastName:  w.LastName,
		},
		ExpiresAt: fromUnix(w.ExpiresAt),
		RefreshAt: fromUnix(w.RefreshAt),
	}, nil
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidTokenFormat, fmt.Sprintf(format, args...))
}
