// Package auth manages tokens for the remote task service using the
// device-code OAuth flow. Tokens are cached on disk and refreshed
// transparently; an unusable cache surfaces ErrAuthRequired so callers
// abort the pass instead of half-syncing.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrAuthRequired signals that no usable token exists and interactive
// re-authentication is needed.
var ErrAuthRequired = errors.New("authentication required: run 'mtd login'")

const tokenFileName = "token.json"

// Manager owns the cached token and its on-disk copy.
type Manager struct {
	conf      *oauth2.Config
	tokenPath string

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewManager builds a Manager for the given OAuth client against the
// Microsoft identity platform. tokenDir is where the token cache lives.
func NewManager(clientID, tenant, tokenDir string) *Manager {
	if tenant == "" {
		tenant = "consumers"
	}
	base := "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0"
	return &Manager{
		conf: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + "/authorize",
				TokenURL:      base + "/token",
				DeviceAuthURL: base + "/devicecode",
			},
			Scopes: []string{"Tasks.ReadWrite", "offline_access"},
		},
		tokenPath: filepath.Join(tokenDir, tokenFileName),
	}
}

// DefaultTokenDir returns the user config directory for mtd credentials.
func DefaultTokenDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(configDir, "mtd"), nil
}

// Login runs the interactive device-code flow and persists the obtained
// token. prompt receives the verification URI and user code to display.
func (m *Manager) Login(ctx context.Context, prompt func(verificationURI, userCode string)) error {
	if m.conf.ClientID == "" {
		return fmt.Errorf("auth.client-id is not configured")
	}

	resp, err := m.conf.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("starting device authorization: %w", err)
	}
	prompt(resp.VerificationURI, resp.UserCode)

	tok, err := m.conf.DeviceAccessToken(ctx, resp)
	if err != nil {
		return fmt.Errorf("waiting for device authorization: %w", err)
	}

	m.mu.Lock()
	m.tok = tok
	m.mu.Unlock()
	return m.saveToken(tok)
}

// Token returns a valid access token, refreshing if expired. With
// forceRefresh the cached access token is discarded first; this is the
// retry path after the service rejects a token with 401.
func (m *Manager) Token(ctx context.Context, forceRefresh bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tok == nil {
		tok, err := m.loadToken()
		if err != nil {
			return "", ErrAuthRequired
		}
		m.tok = tok
	}

	tok := m.tok
	if forceRefresh {
		if tok.RefreshToken == "" {
			return "", ErrAuthRequired
		}
		expired := *tok
		expired.AccessToken = ""
		expired.Expiry = time.Now().Add(-time.Minute)
		tok = &expired
	}

	fresh, err := m.conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", fmt.Errorf("%w: token refresh failed: %v", ErrAuthRequired, err)
	}

	if fresh.AccessToken != m.tok.AccessToken || fresh.RefreshToken != m.tok.RefreshToken {
		m.tok = fresh
		if err := m.saveToken(fresh); err != nil {
			// Refresh succeeded; a failed cache write only costs the next
			// process a refresh round trip.
			fmt.Fprintf(os.Stderr, "Warning: could not persist refreshed token: %v\n", err)
		}
	}
	return fresh.AccessToken, nil
}

func (m *Manager) loadToken() (*oauth2.Token, error) {
	f, err := os.Open(m.tokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token cache %s: %w", m.tokenPath, err)
	}
	return tok, nil
}

func (m *Manager) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(m.tokenPath), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(m.tokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening token cache: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	return nil
}
