// Package business implements the OAuth authorization-code flow for
// managing a business profile on the review platform. The gateway never
// stores credentials: it mints the consent URL and exchanges or refreshes
// tokens on behalf of the caller, returning them in the response.
package business

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// scopeBusinessManage grants full management of the caller's business
// profile, including review replies.
const scopeBusinessManage = "https://www.googleapis.com/auth/business.manage"

// Token is the canonical token envelope returned to callers.
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType"`
	Expiry       time.Time `json:"expiry"`
}

// Service runs the authorization-code flow.
type Service struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// Option configures the Service.
type Option func(*Service)

// WithEndpoint overrides the OAuth endpoint, letting tests point the
// exchange at a local server.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(s *Service) {
		s.cfg.Endpoint = ep
	}
}

// WithHTTPClient overrides the http.Client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.httpClient = hc
	}
}

// NewService creates a Service for the given OAuth client.
func NewService(clientID, clientSecret, redirectURL string, opts ...Option) *Service {
	s := &Service{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{scopeBusinessManage},
			Endpoint:     google.Endpoint,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AuthURL returns the consent URL the caller must visit. Offline access is
// requested so the exchange yields a refresh token; consent is forced so a
// re-link always re-issues one.
func (s *Service) AuthURL(state string) string {
	return s.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens.
func (s *Service) Exchange(ctx context.Context, code string) (*Token, error) {
	if code == "" {
		return nil, eris.New("business: authorization code is required")
	}
	tok, err := s.cfg.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, eris.Wrap(err, "business: exchange code")
	}
	return fromOAuth2(tok), nil
}

// Refresh trades a refresh token for a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, eris.New("business: refresh token is required")
	}
	src := s.cfg.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, eris.Wrap(err, "business: refresh token")
	}
	return fromOAuth2(tok), nil
}

// oauthContext injects the configured HTTP client into the oauth2 library.
func (s *Service) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func fromOAuth2(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if out.TokenType == "" {
		out.TokenType = "Bearer"
	}
	return out
}
