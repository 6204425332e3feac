package token

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the user information embedded in a token. Names are carried
// for display only.
type Identity struct {
	UserID    uuid.UUID `json:"user_id"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
}

// InnerToken is the MAC-protected payload. ExpiresAt is the soft boundary,
// RefreshAt the hard one; ExpiresAt is always before RefreshAt.
type InnerToken struct {
	Identity  Identity
	ExpiresAt time.Time
	RefreshAt time.Time
}

// Envelope is the transport wrapper. Digest covers Token (the serialized
// InnerToken) only; the expiry copies are informational and must agree with
// the inner payload. Times are Unix seconds.
type Envelope struct {
	Digest    string `cbor:"1,keyasint"`
	Token     []byte `cbor:"2,keyasint"`
	ExpiresAt int64  `cbor:"3,keyasint"`
	RefreshAt int64  `cbor:"4,keyasint"`
}

// Response is what callers send and receive.
type Response struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	RefreshAt time.Time `json:"refresh_at"`
}

// innerWire is the CBOR layout of InnerToken.
type innerWire struct {
	UserID    string  `cbor:"1,keyasint"`
	FirstName *string `cbor:"2,keyasint,omitempty"`
	LastName  *string `cbor:"3,keyasint,omitempty"`
	ExpiresAt int64   `cbor:"4,keyasint"`
	RefreshAt int64   `cbor:"5,keyasint"`
}
