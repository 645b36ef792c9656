package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/polyswarm/polyswarmd-go/internal/authclient"
)

type contextKey int

const (
	userContextKey contextKey = iota
	ethAddressContextKey
)

// userFromContext returns the authclient.User the auth middleware resolved
// for the request, or the zero-value unauthorized User if none was set.
func userFromContext(ctx context.Context) authclient.User {
	if u, ok := ctx.Value(userContextKey).(authclient.User); ok {
		return u
	}
	return authclient.User{}
}

// ethAddressFromContext returns the account a handler attributed to the
// request for logging, and whether one was ever set.
func ethAddressFromContext(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(ethAddressContextKey).(string)
	return addr, ok
}

// withEthAddress attaches addr to ctx so later logging can report the
// account a request acted on, mirroring the Python original's g.eth_address.
func withEthAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ethAddressContextKey, addr)
}

// authMiddleware resolves the caller's API key into an authclient.User and
// rejects the request per §6/§7, mirroring the Python original's
// before_request: deployments that don't require an API key skip straight
// through; deployments that do require one reject any caller who fails to
// authenticate unless the route is in authWhitelist; and every caller,
// authenticated or not, is rejected once its declared Content-Length
// exceeds its resolved artifact size allowance.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := authclient.User{MaxArtifactSize: s.Config.Artifact.FallbackMaxSize}

		if s.Config.Auth.RequireAPIKey() {
			apiKey := bearerToken(r.Header.Get("Authorization"))
			if apiKey == "" {
				if !authWhitelist[r.URL.Path] {
					writeAPIError(w, failAuth("Unauthorized"))
					return
				}
			} else {
				user = s.Auth.Authenticate(r.Context(), apiKey)
				if !user.Authorized {
					if !authWhitelist[r.URL.Path] {
						writeAPIError(w, failAuth("Unauthorized"))
						return
					}
				}
			}
		}

		if r.ContentLength > 0 && r.ContentLength > user.MaxArtifactSize*256 {
			writeAPIError(w, failTooLarge("Payload too large"))
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken mirrors the Python original's tolerant
// `Authorization.split()[-1]`: it accepts a bare key or a "Bearer <key>"
// style header and returns "" when neither is present.
func bearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
