package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	// assertionTTL is the lifetime of the signed App assertion.
	// GitHub rejects assertions valid for more than 10 minutes.
	assertionTTL = 10 * time.Minute

	// assertionBackdate is subtracted from the issued-at claim to
	// absorb clock skew between this host and GitHub.
	assertionBackdate = 60 * time.Second
)

// AppAuth exchanges a signed App assertion for short-lived installation
// tokens. One token exchange is a single HTTP call with no retry; any
// failure surfaces as an *AuthError.
type AppAuth struct {
	httpClient *http.Client
	baseURL    string
	appID      int64
	privateKey *rsa.PrivateKey
}

// NewAppAuth creates an authenticator for the given App.
// The privateKey must be the PEM-encoded RSA private key of the GitHub App.
func NewAppAuth(appID int64, privateKeyPEM []byte) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &AppAuth{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		appID:      appID,
		privateKey: key,
	}, nil
}

// signAssertion builds the short-lived RS256 assertion for the App.
func (a *AppAuth) signAssertion(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
}

// Token obtains an installation token for the given installation.
func (a *AppAuth) Token(ctx context.Context, installationID int64) (*InstallationToken, error) {
	assertion, err := a.signAssertion(time.Now())
	if err != nil {
		return nil, &AuthError{InstallationID: installationID, Err: fmt.Errorf("failed to sign assertion: %w", err)}
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, &AuthError{InstallationID: installationID, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{InstallationID: installationID, Err: fmt.Errorf("token exchange failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{
			InstallationID: installationID,
			Status:         resp.StatusCode,
			Err:            fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var token InstallationToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, &AuthError{InstallationID: installationID, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if token.Token == "" {
		return nil, &AuthError{InstallationID: installationID, Err: fmt.Errorf("token endpoint returned empty token")}
	}

	return &token, nil
}

// ListInstallations lists all installations of the App.
// Used by the installations helper command, not by the review pipeline.
func (a *AppAuth) ListInstallations(ctx context.Context) ([]AppInstallation, error) {
	assertion, err := a.signAssertion(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+"/app/installations", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list installations: status %d, body: %s", resp.StatusCode, string(body))
	}

	var installations []AppInstallation
	if err := json.NewDecoder(resp.Body).Decode(&installations); err != nil {
		return nil, fmt.Errorf("failed to decode installations: %w", err)
	}

	return installations, nil
}
