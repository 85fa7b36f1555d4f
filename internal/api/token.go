package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/souhaylelhammadi/entretien/internal/config"
)

// TokenEnv overrides the stored token when set.
const TokenEnv = "ENTRETIEN_TOKEN"

// TokenSource supplies the bearer token and forgets it after a 401.
type TokenSource interface {
	Token() (string, error)
	Discard() error
}

// TokenStore keeps the bearer token in a 0600 file.
type TokenStore struct {
	Path string
	Now  func() time.Time
}

// DefaultTokenPath is the token file in the entretien state directory.
func DefaultTokenPath() (string, error) {
	dir, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// Token returns a non-expired token or ErrUnauthorized.
func (s TokenStore) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(TokenEnv))
	if token == "" && s.Path != "" {
		data, err := os.ReadFile(s.Path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read token %s: %w", s.Path, err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return "", fmt.Errorf("%w: no token stored", ErrUnauthorized)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if exp, ok := TokenExpiry(token); ok && !exp.After(now()) {
		_ = s.Discard()
		return "", fmt.Errorf("%w: token expired at %s", ErrUnauthorized, exp.Format(time.RFC3339))
	}
	return token, nil
}

// Save writes token with owner-only permissions.
func (s TokenStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", s.Path, err)
	}
	return nil
}

// Discard deletes the stored token file.
func (s TokenStore) Discard() error {
	if s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token %s: %w", s.Path, err)
	}
	return nil
}

// TokenExpiry reads the exp claim without verifying the signature; the
// backend verifies it. ok is false for opaque or exp-less tokens.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
