// Package github wraps the GitHub REST API for repository enumeration and
// Actions secret management.
package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gogithub "github.com/google/go-github/v57/github"
)

const (
	maxRetries    = 3
	maxRetryDelay = 10 * time.Second

	defaultBaseURL = "https://api.github.com"
)

// baseRetryDelay is the base delay for retry backoff.
// Exposed as a variable to allow testing with shorter durations.
var baseRetryDelay = 500 * time.Millisecond

// isRetryableStatus returns true if the HTTP response indicates a retryable error.
func isRetryableStatus(resp *http.Response, err error) bool {
	if err != nil {
		return true // Network errors are retryable
	}
	if resp == nil {
		return true
	}
	// Retry on rate limit (429) or server errors (5xx)
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// retryDelay calculates exponential backoff with jitter.
func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<attempt)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add jitter: 50-100% of calculated delay
	jitter := time.Duration(rand.Int64N(int64(delay / 2)))
	return delay/2 + jitter
}

// Client handles authenticated access to the GitHub API with a per-run
// public-key cache.
type Client struct {
	gh      *gogithub.Client
	baseURL string

	mu   sync.RWMutex
	keys map[string]*gogithub.PublicKey
}

// NewTokenClient creates a client authenticated with a bearer token (PAT or
// installation token).
func NewTokenClient(token string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		gh:      gogithub.NewClient(httpClient).WithAuthToken(token),
		baseURL: defaultBaseURL,
		keys:    make(map[string]*gogithub.PublicKey),
	}
}

// NewAppClient creates a client authenticated as a GitHub App installation
// for the given account. privateKeyBase64 is the base64-encoded PEM key.
// The exchanged installation token is valid for one hour, which bounds a
// single run.
func NewAppClient(ctx context.Context, appID, privateKeyBase64, owner string) (*Client, error) {
	id, err := strconv.ParseInt(appID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid app ID: %w", err)
	}

	key, err := parsePrivateKey(privateKeyBase64)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	token, err := exchangeInstallationToken(ctx, httpClient, defaultBaseURL, id, key, owner)
	if err != nil {
		return nil, err
	}

	return &Client{
		gh:      gogithub.NewClient(httpClient).WithAuthToken(token),
		baseURL: defaultBaseURL,
		keys:    make(map[string]*gogithub.PublicKey),
	}, nil
}

// newClientWithBaseURL builds a token client against a custom API base URL (for testing).
func newClientWithBaseURL(token, baseURL string) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	gh := gogithub.NewClient(httpClient).WithAuthToken(token)
	u, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	gh.BaseURL = u
	return &Client{gh: gh, baseURL: baseURL, keys: make(map[string]*gogithub.PublicKey)}, nil
}

// parsePrivateKey decodes a base64 PEM RSA private key in PKCS1 or PKCS8 form.
func parsePrivateKey(privateKeyBase64 string) (*rsa.PrivateKey, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format
		keyInterface, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = keyInterface.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
	}
	return key, nil
}

// generateJWT creates a JWT for GitHub App authentication.
func generateJWT(appID int64, key *rsa.PrivateKey) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Add(-60 * time.Second).Unix(), // 60s buffer for clock skew
		"exp": now.Add(10 * time.Minute).Unix(),
		"iss": appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// exchangeInstallationToken finds the App installation for owner and creates
// an installation access token. It tries org-level first, then falls back to
// user-level for personal accounts. Uses raw HTTP with Bearer prefix for JWT
// auth (go-github's WithAuthToken uses token prefix).
func exchangeInstallationToken(ctx context.Context, httpClient *http.Client, baseURL string, appID int64, key *rsa.PrivateKey, owner string) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("owner is required")
	}

	appJWT, err := generateJWT(appID, key)
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}

	doJSON := func(method, url string, out any) (int, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+appJWT)
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", decodeErr)
			}
			return resp.StatusCode, nil
		}
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	status, err := doJSON("GET", fmt.Sprintf("%s/orgs/%s/installation", baseURL, owner), &installation)
	if status == http.StatusNotFound {
		// Fall back to user installation for personal accounts
		_, err = doJSON("GET", fmt.Sprintf("%s/users/%s/installation", baseURL, owner), &installation)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find installation for %s: %w", owner, err)
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if _, err := doJSON("POST", fmt.Sprintf("%s/app/installations/%d/access_tokens", baseURL, installation.ID), &tokenResp); err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}

	return tokenResp.Token, nil
}

// classifyError maps a go-github error to the run error taxonomy.
// repo and secret scope DeployError; they may be empty for read calls.
func classifyError(err error, resp *gogithub.Response, repo, secret string) error {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return &DeployError{Repo: repo, Secret: secret, Throttled: true, Err: err}
	}
	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &DeployError{Repo: repo, Secret: secret, Throttled: true, Err: err}
	}

	if resp != nil && resp.Response != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthorizationError{Err: err}
		case http.StatusTooManyRequests:
			return &DeployError{Repo: repo, Secret: secret, Throttled: true, Err: err}
		}
	}
	return err
}
