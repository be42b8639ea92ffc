package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var ErrNoSubject = errors.New("userinfo response missing sub")

// Provider is the immutable client configuration for one identity provider.
// Built once at startup and shared read-only across requests.
type Provider struct {
	oauth       *oauth2.Config
	userinfoURL string
	client      *http.Client
	timeout     time.Duration
}

func NewProvider(clientID, clientSecret, redirectURL string, disc Discovery, timeout time.Duration) *Provider {
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  disc.AuthorizationEndpoint,
				TokenURL: disc.TokenEndpoint,
				// client_secret goes in the Authorization header, not the body
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		userinfoURL: disc.UserinfoEndpoint,
		client:      &http.Client{Timeout: timeout},
		timeout:     timeout,
	}
}

// AuthCodeURL builds the authorization redirect target.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange redeems the authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	return p.oauth.Exchange(ctx, code)
}

// Profile is the userinfo payload of interest.
type Profile struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
	Picture   string `json:"picture"`
}

// DisplayName prefers given_name, then name, then empty.
func (pr *Profile) DisplayName() string {
	if pr.GivenName != "" {
		return pr.GivenName
	}
	return pr.Name
}

// Userinfo fetches the profile with the access token as bearer credential.
// A profile without a subject is rejected: it cannot key a user row.
func (p *Provider) Userinfo(ctx context.Context, accessToken string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var pr Profile
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, err
	}
	if pr.Sub == "" {
		return nil, ErrNoSubject
	}
	return &pr, nil
}
