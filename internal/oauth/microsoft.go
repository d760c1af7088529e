package oauth

import (
	"context"
	"net/http"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const graphRevokeSessionsURL = "https://graph.microsoft.com/v1.0/me/revokeSignInSessions"

type MicrosoftProvider struct {
	log zerolog.Logger
	cfg *oauth2.Config
}

func NewMicrosoftProvider(log logger.Logger, cfg domain.OAuthClientConfig) *MicrosoftProvider {
	return &MicrosoftProvider{
		log: log.With().Str("module", "oauth").Str("provider", "microsoft").Logger(),
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/Calendars.ReadWrite",
			},
		},
	}
}

func (p *MicrosoftProvider) AuthorizationURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

func (p *MicrosoftProvider) Exchange(ctx context.Context, code string) (*Tokens, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		p.log.Error().Err(err).Msg("authorization code exchange failed")
		return nil, &ExchangeError{Provider: domain.CalendarProviderMicrosoft, Err: err}
	}

	return tokensFromOAuth2(token, ""), nil
}

func (p *MicrosoftProvider) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to refresh microsoft access token")
	}

	return tokensFromOAuth2(token, refreshToken), nil
}

// Revoke invalidates the user's sign-in sessions via Graph. Azure AD has no
// plain token-revocation endpoint for single tokens.
func (p *MicrosoftProvider) Revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphRevokeSessionsURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build revoke request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "revoke request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("revoke request returned status %d", resp.StatusCode)
	}

	p.log.Debug().Msg("sign-in sessions revoked")
	return nil
}

func (p *MicrosoftProvider) Config() *oauth2.Config {
	return p.cfg
}
