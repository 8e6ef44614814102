package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// expirySlack forces a refresh slightly before the token actually expires so
// an in-flight call never races the expiry.
const expirySlack = 60 * time.Second

// authBaseURL hosts the user-facing consent page, separate from the API host.
const authBaseURL = "https://auth.mercadolibre.com.ar"

// TokenGrant is the result of the one-time authorization-code exchange. The
// refresh token is what the operator persists into the bot's configuration.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	SellerID     string
}

// TokenManager exchanges the long-lived refresh token for short-lived access
// tokens and caches them in memory. The cache is per-process and intentionally
// volatile: every cold start re-runs the exchange, which also repopulates the
// seller id.
type TokenManager struct {
	client       *Client
	appID        string
	clientSecret string

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	sellerID     string
	expiresAt    time.Time
}

func newTokenManager(client *Client, appID, clientSecret, refreshToken string) *TokenManager {
	return &TokenManager{
		client:       client,
		appID:        appID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
}

// AccessToken returns a valid access token, refreshing if the cached one is
// missing or about to expire.
func (t *TokenManager) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLocked(ctx); err != nil {
		return "", err
	}
	return t.accessToken, nil
}

// SellerID returns the user id the refresh token belongs to.
func (t *TokenManager) SellerID(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLocked(ctx); err != nil {
		return "", err
	}
	return t.sellerID, nil
}

func (t *TokenManager) ensureLocked(ctx context.Context) error {
	if t.accessToken != "" && time.Now().Before(t.expiresAt.Add(-expirySlack)) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", t.appID)
	form.Set("client_secret", t.clientSecret)
	form.Set("refresh_token", t.refreshToken)

	_, err := t.grantLocked(ctx, form)
	return err
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       int64  `json:"user_id"`
}

// grantLocked posts a token grant and caches the result. Caller holds t.mu.
func (t *TokenManager) grantLocked(ctx context.Context, form url.Values) (tokenPayload, error) {
	var payload tokenPayload

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.client.baseURL+"/oauth/token", bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return payload, fmt.Errorf("meli: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.httpClient.Do(req)
	if err != nil {
		return payload, fmt.Errorf("meli: token exchange: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return payload, fmt.Errorf("meli: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return payload, &APIError{Status: resp.StatusCode, Method: http.MethodPost, Path: "/oauth/token", Body: truncate(string(data), 300)}
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("meli: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return payload, fmt.Errorf("meli: token response missing access_token")
	}

	t.accessToken = payload.AccessToken
	t.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	if payload.RefreshToken != "" {
		// ML rotates refresh tokens on every exchange.
		t.refreshToken = payload.RefreshToken
	}
	if payload.UserID != 0 {
		t.sellerID = strconv.FormatInt(payload.UserID, 10)
	}
	return payload, nil
}

// AuthorizationURL builds the consent URL that starts the OAuth flow. Run once
// per account to obtain the refresh token the bot is configured with.
func (c *Client) AuthorizationURL(redirectURI string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.tokens.appID)
	q.Set("redirect_uri", redirectURI)
	return authBaseURL + "/authorization?" + q.Encode()
}

// ExchangeCode trades an authorization code for tokens and seeds the token
// manager, so the process is usable right after the OAuth callback.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenGrant, error) {
	t := c.tokens
	t.mu.Lock()
	defer t.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", t.appID)
	form.Set("client_secret", t.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	payload, err := t.grantLocked(ctx, form)
	if err != nil {
		return TokenGrant{}, err
	}
	return TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		SellerID:     t.sellerID,
	}, nil
}
