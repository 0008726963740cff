package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stairsync/internal/errs"
)

// FileTokenStore keeps the auth token in a file under the user config dir
// (or an explicit path). The login flow itself lives on the server side;
// this store only holds what the external auth provider issued.
type FileTokenStore struct {
	// Path overrides the default token location when non-empty.
	Path string
}

func (s FileTokenStore) tokenPath() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, "stairsync")
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(p, "auth_token"), nil
}

// Save writes the token to disk.
func (s FileTokenStore) Save(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	p, err := s.tokenPath()
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(token), 0o600)
}

// Load reads the stored token, trimming trailing whitespace.
func (s FileTokenStore) Load() (string, error) {
	p, err := s.tokenPath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrAuth, err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", fmt.Errorf("%w: empty token file", errs.ErrAuth)
	}
	return tok, nil
}

// Clear removes the stored token.
func (s FileTokenStore) Clear() error {
	p, err := s.tokenPath()
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Token returns the stored token after a local expiry check, satisfying
// the API client's TokenSource. An expired token is reported as an auth
// error without a network round trip.
func (s FileTokenStore) Token() (string, error) {
	tok, err := s.Load()
	if err != nil {
		return "", err
	}
	if Expired(tok) {
		return "", fmt.Errorf("%w: token expired", errs.ErrAuth)
	}
	return tok, nil
}

// Expired peeks at a JWT's exp claim without verifying the signature.
// Non-JWT tokens (opaque server tokens) are assumed valid; the server is
// the authority either way.
func Expired(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
