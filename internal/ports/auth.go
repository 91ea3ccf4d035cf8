package ports

import (
	"context"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// RefreshFunc exchanges the current refresh token for a new token pair.
// Registered once at startup by the surrounding session module; the
// core never hardcodes the refresh endpoint. An empty RefreshToken in
// the result keeps the previous one.
type RefreshFunc func(ctx context.Context, refreshToken string) (types.TokenPair, error)

// LogoutFunc is the synchronous local-logout hook invoked after an
// unrecoverable refresh failure, before the session-expired signal.
// It MUST NOT issue network calls.
type LogoutFunc func()
