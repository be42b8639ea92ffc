package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/emandor/pandauth_service/internal/telemetry"
)

// Discovery is the subset of the provider's OpenID configuration document
// the login flow needs.
type Discovery struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

var errIncompleteDiscovery = errors.New("discovery document missing required endpoints")

// FallbackDiscovery returns the published Google production endpoints, used
// when the well-known URL cannot be fetched at startup (offline and test
// environments must still be able to boot).
func FallbackDiscovery() Discovery {
	return Discovery{
		AuthorizationEndpoint: "https://accounts.google.com/o/oauth2/auth",
		TokenEndpoint:         "https://oauth2.googleapis.com/token",
		UserinfoEndpoint:      "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

func FetchDiscovery(ctx context.Context, client *http.Client, url string) (Discovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Discovery{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Discovery{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Discovery{}, fmt.Errorf("discovery fetch status %d", resp.StatusCode)
	}
	var d Discovery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Discovery{}, err
	}
	if d.AuthorizationEndpoint == "" || d.TokenEndpoint == "" || d.UserinfoEndpoint == "" {
		return Discovery{}, errIncompleteDiscovery
	}
	return d, nil
}

// LoadDiscovery fetches the discovery document once at startup. Fetch
// failure is not fatal; the hardcoded fallback keeps the process bootable.
func LoadDiscovery(url string, timeout time.Duration) Discovery {
	log := telemetry.L()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	d, err := FetchDiscovery(ctx, &http.Client{Timeout: timeout}, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("discovery_fallback")
		return FallbackDiscovery()
	}
	log.Info().Str("url", url).Msg("discovery_fetched")
	return d
}
