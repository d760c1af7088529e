package oauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

type GoogleProvider struct {
	log zerolog.Logger
	cfg *oauth2.Config
}

func NewGoogleProvider(log logger.Logger, cfg domain.OAuthClientConfig) *GoogleProvider {
	return &GoogleProvider{
		log: log.With().Str("module", "oauth").Str("provider", "google").Logger(),
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar",
				"https://www.googleapis.com/auth/calendar.events",
			},
		},
	}
}

func (p *GoogleProvider) AuthorizationURL(state string) string {
	// offline access + forced consent so Google hands out a refresh token
	return p.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Tokens, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		p.log.Error().Err(err).Msg("authorization code exchange failed")
		return nil, &ExchangeError{Provider: domain.CalendarProviderGoogle, Err: err}
	}

	return tokensFromOAuth2(token, ""), nil
}

func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to refresh google access token")
	}

	return tokensFromOAuth2(token, refreshToken), nil
}

func (p *GoogleProvider) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to build revoke request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "revoke request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("revoke request returned status %d", resp.StatusCode)
	}

	p.log.Debug().Msg("access token revoked")
	return nil
}

func (p *GoogleProvider) Config() *oauth2.Config {
	return p.cfg
}
