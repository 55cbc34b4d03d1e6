package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"chatwall/internal/platform/config"
	"chatwall/internal/user"
	dErrors "chatwall/pkg/domain-errors"
)

const userinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleClient wraps the OAuth2 authorization-code flow against Google.
// A zero ClientID leaves the client unconfigured; the handlers answer 501.
type GoogleClient struct {
	config *oauth2.Config
}

func NewGoogleClient(cfg config.GoogleOAuth) *GoogleClient {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return &GoogleClient{}
	}
	return &GoogleClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
	}
}

// Configured reports whether OAuth credentials were provided.
func (c *GoogleClient) Configured() bool {
	return c.config != nil
}

// AuthURL builds the Google consent page URL for the given CSRF state.
func (c *GoogleClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for a token and fetches the user's
// Google profile.
func (c *GoogleClient) Exchange(ctx context.Context, code string) (user.GoogleProfile, error) {
	var profile user.GoogleProfile

	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return profile, dErrors.Wrap(dErrors.CodeUnauthorized, "code exchange failed", err)
	}

	resp, err := c.config.Client(ctx, tok).Get(userinfoURL)
	if err != nil {
		return profile, dErrors.Wrap(dErrors.CodeUnavailable, "userinfo fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profile, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("userinfo returned %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return profile, dErrors.Wrap(dErrors.CodeInternal, "decode userinfo", err)
	}
	return profile, nil
}
