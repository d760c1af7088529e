package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"

	"golang.org/x/oauth2"
)

// Tokens is the normalized result of a code exchange or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider exchanges and refreshes credentials for one calendar provider.
// It never persists anything itself; callers own the connection record.
type Provider interface {
	// AuthorizationURL builds the consent URL embedding the caller-supplied
	// anti-CSRF state token.
	AuthorizationURL(state string) string
	// Exchange trades an authorization code for tokens. Fails with
	// *ExchangeError on an invalid or expired code.
	Exchange(ctx context.Context, code string) (*Tokens, error)
	// Refresh obtains a fresh access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	// Revoke invalidates the token provider-side. Best-effort: failures are
	// for the caller to log, disconnect must still succeed locally.
	Revoke(ctx context.Context, accessToken string) error
	// Config exposes the underlying oauth2 config for building HTTP clients.
	Config() *oauth2.Config
}

// ExchangeError wraps a failed authorization-code exchange.
type ExchangeError struct {
	Provider domain.CalendarProvider
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("oauth code exchange failed for provider %s: %v", e.Provider, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

func tokensFromOAuth2(t *oauth2.Token, previousRefresh string) *Tokens {
	tokens := &Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
	// providers omit the refresh token on renewals, keep the one we have
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = previousRefresh
	}
	return tokens
}
