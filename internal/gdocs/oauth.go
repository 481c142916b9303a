package gdocs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var Scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/documents",
}

var ErrIncompleteClient = errors.New("google oauth client id and secret are required")

// Flow runs the authorization-code exchange for one OAuth client.
type Flow struct {
	cfg *oauth2.Config
}

func NewFlow(clientID, clientSecret, redirectURI string) (*Flow, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrIncompleteClient
	}
	return &Flow{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}}, nil
}

// WithEndpoint swaps the provider endpoint. Used by tests.
func (f *Flow) WithEndpoint(ep oauth2.Endpoint) *Flow {
	f.cfg.Endpoint = ep
	return f
}

// AuthURL requests offline access and forces the consent screen so Google
// always returns a refresh token.
func (f *Flow) AuthURL(state string) string {
	return f.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Token is the stored shape of a granted token.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Expiry       *time.Time
}

func (f *Flow) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}
	out := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     f.cfg.Endpoint.TokenURL,
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		Scopes:       f.cfg.Scopes,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.Expiry = &exp
	}
	return out, nil
}

// TokenSource returns a refreshing source for a stored token.
func (t Token) TokenSource(ctx context.Context) oauth2.TokenSource {
	tokenURL := t.TokenURI
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     t.ClientID,
		ClientSecret: t.ClientSecret,
		Scopes:       t.Scopes,
		Endpoint:     oauth2.Endpoint{AuthURL: google.Endpoint.AuthURL, TokenURL: tokenURL},
	}
	tok := &oauth2.Token{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, TokenType: "Bearer"}
	if t.Expiry != nil {
		tok.Expiry = *t.Expiry
	}
	return cfg.TokenSource(ctx, tok)
}
