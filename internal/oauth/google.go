package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/idvault/authserver/config"
	"github.com/idvault/authserver/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleClient drives the Google OAuth2 authorization-code flow and
// resolves the resulting access token to a profile.
type GoogleClient struct {
	conf *oauth2.Config
}

// NewGoogleClient constructs a GoogleClient from config. Returns an error
// when the client credentials are not configured.
func NewGoogleClient(cfg config.OAuthConfig) (*GoogleClient, error) {
	if strings.TrimSpace(cfg.GoogleClientID) == "" || strings.TrimSpace(cfg.GoogleClientSecret) == "" {
		return nil, errors.New("google oauth client id and secret are required")
	}

	return &GoogleClient{
		conf: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}, nil
}

// AuthCodeURL returns the Google consent-page URL for the given state.
func (c *GoogleClient) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// Exchange redeems the authorization code and fetches the user's profile
// from the userinfo endpoint.
func (c *GoogleClient) Exchange(ctx context.Context, code string) (*types.ExternalIdentity, error) {
	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var profile struct {
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if strings.TrimSpace(profile.Email) == "" {
		return nil, nil
	}

	return &types.ExternalIdentity{
		Email:     profile.Email,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		AvatarURL: profile.Picture,
	}, nil
}
