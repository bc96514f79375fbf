// Package identity manages the endpoint identifier. The identifier is both
// the device's public name and the name of the room it listens in.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// MinLength is the shortest identifier accepted as a connect target.
const MinLength = 6

var (
	ErrTooShort            = fmt.Errorf("identifier must be at least %d characters", MinLength)
	ErrInvalidCharacters   = errors.New("identifier contains whitespace or control characters")
	ErrCorruptIdentityFile = errors.New("identity file is corrupt")
)

// Generate returns a new identifier in the form XXX-XXX-XXX, each group in
// 100..999. Candidates where two groups repeat are redrawn.
func Generate() (string, error) {
	for {
		groups := make([]string, 3)
		for i := range groups {
			n, err := rand.Int(rand.Reader, big.NewInt(900))
			if err != nil {
				return "", fmt.Errorf("failed to generate identifier: %w", err)
			}
			groups[i] = fmt.Sprintf("%03d", n.Int64()+100)
		}
		if groups[0] == groups[1] || groups[1] == groups[2] || groups[0] == groups[2] {
			continue
		}
		return strings.Join(groups, "-"), nil
	}
}

// Normalize trims surrounding whitespace. Digit-only input of nine digits is
// regrouped, so "123456789" and "123-456-789" name the same device.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if len(id) == 9 && strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		return id[0:3] + "-" + id[3:6] + "-" + id[6:9]
	}
	return id
}

// Validate checks a connect target.
func Validate(id string) error {
	if len(id) < MinLength {
		return ErrTooShort
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidCharacters
		}
	}
	return nil
}

// Store persists the identifier in a file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the identity file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "deskbridge", "device-id"), nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// GetOrCreate returns the stored identifier, generating and saving one on
// first use.
func (s *Store) GetOrCreate() (string, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if err := Validate(id); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrCorruptIdentityFile, s.path, err)
		}
		return id, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("failed to read identity: %w", err)
	}

	id, err := Generate()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create identity directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to save identity: %w", err)
	}
	return id, nil
}
