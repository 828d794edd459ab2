package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgate/fleetgate/internal/auth"
	"github.com/fleetgate/fleetgate/internal/shared"
	_ "github.com/fleetgate/fleetgate/testing"
)

type stubRepo struct {
	account *auth.Account
	touched int
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	if s.account == nil || s.account.Username != username {
		return nil, shared.ErrInvalidCredentials
	}
	return s.account, nil
}

func (s *stubRepo) TouchLastLogin(ctx context.Context, accountID string) error {
	s.touched++
	return nil
}

func newAccount(t *testing.T, username, password string, active bool) *auth.Account {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	tenant := uuid.New()
	return &auth.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@fleet.test",
		PasswordHash: string(hashed),
		Active:       active,
		TenantID:     &tenant,
	}
}

func newService(t *testing.T, repo auth.Repository) (*auth.Service, *auth.TokenIssuer, *auth.Revoker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	revoker := auth.NewRevoker(client)
	return auth.NewService(repo, issuer, revoker, nil), issuer, revoker
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	account := newAccount(t, "dispatcher", "correcthorse", true)
	svc, issuer, _ := newService(t, &stubRepo{account: account})

	token, got, err := svc.Login(context.Background(), "dispatcher", "correcthorse")
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)

	principal, claims, err := issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, account.ID, principal.UserID)
	require.NotNil(t, principal.TenantID)
	require.Equal(t, *account.TenantID, *principal.TenantID)
	require.Equal(t, account.ID.String(), claims.Subject)
}

func TestLoginFailures(t *testing.T) {
	account := newAccount(t, "dispatcher", "correcthorse", true)
	svc, _, _ := newService(t, &stubRepo{account: account})
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "dispatcher", "wrongpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody", "correcthorse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	inactive := newAccount(t, "ghost", "correcthorse", false)
	svc2, _, _ := newService(t, &stubRepo{account: inactive})
	_, _, err = svc2.Login(ctx, "ghost", "correcthorse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	account := newAccount(t, "dispatcher", "correcthorse", true)
	svc, issuer, revoker := newService(t, &stubRepo{account: account})
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "dispatcher", "correcthorse")
	require.NoError(t, err)

	principal, claims, err := issuer.Verify(token)
	require.NoError(t, err)

	revoked, err := revoker.IsRevoked(ctx, principal.TokenID)
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, svc.Logout(ctx, claims.ID, claims.ExpiresAt.Time))

	revoked, err = revoker.IsRevoked(ctx, principal.TokenID)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestAuthenticateMiddleware(t *testing.T) {
	account := newAccount(t, "dispatcher", "correcthorse", true)
	svc, issuer, revoker := newService(t, &stubRepo{account: account})
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "dispatcher", "correcthorse")
	require.NoError(t, err)

	mw := auth.Middleware{Issuer: issuer, Revoker: revoker}
	var seen *shared.Principal
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.NotNil(t, seen)
	require.Equal(t, account.ID, seen.UserID)

	// Missing and malformed tokens are rejected.
	for _, header := range []string{"", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		require.Equal(t, http.StatusUnauthorized, res.Code)
	}

	// Revoked tokens stop working immediately.
	_, claims, err := issuer.Verify(token)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, claims.ID, claims.ExpiresAt.Time))

	req = httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
