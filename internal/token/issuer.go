package token

import (
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/timex"
)

// Issuer mints inner tokens valid for duration and refreshable for twice
// that long.
type Issuer struct {
	duration time.Duration
	clock    timex.Clock
}

func NewIssuer(duration time.Duration, clock timex.Clock) *Issuer {
	if clock == nil {
		clock = timex.Real()
	}
	return &Issuer{duration: duration, clock: clock}
}

// Issue returns a token for identity. Times are UTC, whole seconds.
func (i *Issuer) Issue(identity Identity) InnerToken {
	now := i.clock.Now().UTC().Truncate(time.Second)
	return InnerToken{
		Identity:  identity,
		ExpiresAt: now.Add(i.duration),
		RefreshAt: now.Add(2 * i.duration),
	}
}

// Duration reports the configured soft lifetime.
func (i *Issuer) Duration() time.Duration {
	return i.duration
}
