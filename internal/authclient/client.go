// Package authclient is a thin boundary client for the external API-key
// authentication/account-features service. It owns only the two lookups
// the gateway's auth middleware needs; key issuance and account
// management are out of scope.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultFallbackMaxArtifactSize = 10 * 1024 * 1024

// User is the resolved identity and entitlements behind an API key, or
// an unauthorized User carrying the fallback MaxArtifactSize when no key
// was presented or the auth service rejected it.
type User struct {
	Authorized      bool
	UserID          string
	MaxArtifactSize int64
}

// Anonymous reports whether the caller has no associated account id,
// mirroring the Python source's User.anonymous.
func (u User) Anonymous() bool {
	return u.UserID == ""
}

// Client resolves API keys against the external auth service's
// community-scoped auth and account-features endpoints.
type Client struct {
	BaseURL         string
	Community       string
	FallbackMaxSize int64
	HTTP            *http.Client
}

// New constructs a Client. A nil httpClient gets a conservative default
// timeout matching the gateway's other upstream boundary clients.
func New(baseURL, community string, fallbackMaxSize int64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if fallbackMaxSize <= 0 {
		fallbackMaxSize = defaultFallbackMaxArtifactSize
	}
	return &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		Community:       community,
		FallbackMaxSize: fallbackMaxSize,
		HTTP:            httpClient,
	}
}

// Authenticate resolves apiKey into a User. Any upstream failure
// (network error, non-2xx, malformed body) degrades to an unauthorized
// User carrying the fallback artifact size, mirroring
// check_auth_response's None-on-failure behavior in the Python source —
// the auth service being unreachable must not crash the request, only
// deny it elevated privileges.
func (c *Client) Authenticate(ctx context.Context, apiKey string) User {
	unauthorized := User{Authorized: false, MaxArtifactSize: c.FallbackMaxSize}
	if apiKey == "" {
		return unauthorized
	}

	authResp, ok := c.get(ctx, fmt.Sprintf("%s/communities/%s/auth", c.BaseURL, c.Community), apiKey)
	if !ok {
		return unauthorized
	}
	var auth struct {
		Anonymous bool   `json:"anonymous"`
		UserID    string `json:"user_id"`
	}
	if err := json.Unmarshal(authResp, &auth); err != nil {
		return unauthorized
	}
	userID := auth.UserID
	if auth.Anonymous {
		userID = ""
	}

	user := User{Authorized: true, UserID: userID, MaxArtifactSize: c.FallbackMaxSize}

	accountResp, ok := c.get(ctx, fmt.Sprintf("%s/accounts", c.BaseURL), apiKey)
	if !ok {
		return user
	}
	var account struct {
		Account struct {
			Features []struct {
				Tag      string `json:"tag"`
				BaseUses int64  `json:"base_uses"`
			} `json:"features"`
		} `json:"account"`
	}
	if err := json.Unmarshal(accountResp, &account); err != nil {
		return user
	}
	for _, f := range account.Account.Features {
		if f.Tag == "max_artifact_size" {
			user.MaxArtifactSize = f.BaseUses
			break
		}
	}
	return user
}

// Reachable reports whether the auth service answers its community-scoped
// auth endpoint at all, used by `GET /status`'s service health check. It
// does not require a valid API key, only a response.
func (c *Client) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/communities/%s/auth", c.BaseURL, c.Community), nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

func (c *Client) get(ctx context.Context, url, apiKey string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}
	return body, true
}
