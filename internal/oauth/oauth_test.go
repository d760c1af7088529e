package oauth

import (
	"testing"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokensFromOAuth2(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	t.Run("Carries over the new refresh token", func(t *testing.T) {
		tokens := tokensFromOAuth2(&oauth2.Token{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			Expiry:       expiry,
		}, "refresh-old")

		assert.Equal(t, "access-new", tokens.AccessToken)
		assert.Equal(t, "refresh-new", tokens.RefreshToken)
		assert.Equal(t, expiry, tokens.ExpiresAt)
	})

	t.Run("Keeps previous refresh token when the provider omits it", func(t *testing.T) {
		tokens := tokensFromOAuth2(&oauth2.Token{
			AccessToken: "access-new",
			Expiry:      expiry,
		}, "refresh-old")

		assert.Equal(t, "refresh-old", tokens.RefreshToken)
	})
}

func TestGoogleProvider_AuthorizationURL(t *testing.T) {
	p := NewGoogleProvider(logger.Mock(), domain.OAuthClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://example.com/callback",
	})

	url := p.AuthorizationURL("state-123")

	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
	assert.Contains(t, url, "client_id=client-id")
}

func TestMicrosoftProvider_AuthorizationURL(t *testing.T) {
	p := NewMicrosoftProvider(logger.Mock(), domain.OAuthClientConfig{
		ClientID:    "client-id",
		RedirectURL: "https://example.com/callback",
	})

	url := p.AuthorizationURL("state-456")

	assert.Contains(t, url, "state=state-456")
	assert.Contains(t, url, "offline_access")
}

func TestExchangeError(t *testing.T) {
	cause := errors.New("invalid_grant")
	err := &ExchangeError{Provider: domain.CalendarProviderGoogle, Err: cause}

	assert.Contains(t, err.Error(), "google")
	assert.ErrorIs(t, err, cause)

	var exchangeErr *ExchangeError
	require.ErrorAs(t, error(err), &exchangeErr)
	assert.Equal(t, domain.CalendarProviderGoogle, exchangeErr.Provider)
}
