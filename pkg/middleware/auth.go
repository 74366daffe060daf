package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/contextkeys"
	"github.com/platinummonkey/quill/pkg/httputil"
)

// SessionCookieName is the fallback session cookie checked when no
// Authorization header is present
const SessionCookieName = "quill_session"

// TokenVerifier validates session tokens and returns their claims
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// UserStore loads users for request authentication
type UserStore interface {
	GetUserByID(id int64) (*auth.User, error)
}

// Authenticate verifies the bearer token, loads the user it names, and
// rejects tokens issued before the user's invalidation watermark. On success
// the context carries *auth.Context and the user ID for logging.
func Authenticate(tokens TokenVerifier, users UserStore) Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		tokenString := httputil.BearerToken(r, SessionCookieName)
		if tokenString == "" {
			return ctx, Unauthenticated("authentication required")
		}

		claims, err := tokens.Verify(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return ctx, Unauthenticated("session expired")
			}
			return ctx, Unauthenticated("invalid session token")
		}

		user, err := users.GetUserByID(claims.UserID)
		if err != nil {
			// A token naming a missing user is stale, not a server fault
			return ctx, Unauthenticated("invalid session token")
		}

		if user.IsDeleted || !user.IsActive {
			return ctx, Unauthenticated("account access revoked")
		}

		// Password changes and explicit logout bump the watermark; older
		// tokens stop working everywhere at once.
		if !claims.IssuedAfter(user.TokensInvalidBefore) {
			return ctx, Unauthenticated("session expired")
		}

		authCtx := &auth.Context{User: user, Claims: claims}
		ctx = contextkeys.WithAuth(ctx, authCtx)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		return ctx, nil
	}
}
