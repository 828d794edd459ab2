package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/fleetgate/fleetgate/internal/shared"
)

// Middleware authenticates bearer tokens and installs the Principal into the
// request context. Routes behind it can assume a verified caller.
type Middleware struct {
	Issuer  *TokenIssuer
	Revoker *Revoker
	Logger  *slog.Logger
}

// Authenticate rejects requests without a valid, unrevoked bearer token.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		principal, _, err := m.Issuer.Verify(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if m.Revoker != nil {
			revoked, err := m.Revoker.IsRevoked(r.Context(), principal.TokenID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("revocation check", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if revoked {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
