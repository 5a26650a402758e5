package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override stored credentials.
const (
	EnvEndpoint = "SECURE_API_URL"
	EnvToken    = "SECURE_API_TOKEN"
)

// ErrIncompleteCredentials is returned when saving without both values.
var ErrIncompleteCredentials = errors.New("missing Sysdig Secure API token or endpoint")

// Credentials authenticate the scanner against Sysdig Secure.
type Credentials struct {
	Endpoint string `json:"secureEndpoint"`
	Token    string `json:"secureAPIToken"`
}

// Complete reports whether both values are set.
func (c Credentials) Complete() bool {
	return c.Endpoint != "" && c.Token != ""
}

// Store persists credentials.
type Store interface {
	Load() (Credentials, error)
	Save(c Credentials) error
}

// Sanitize trims whitespace and strips quotes pasted along with a value.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer(`'`, "", `"`, "").Replace(s)
}

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	Path string
}

// NewFileStore returns a store at credentials.json under Dir.
func NewFileStore() (*FileStore, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return &FileStore{Path: filepath.Join(dir, "credentials.json")}, nil
}

// Load returns empty credentials when the file does not exist.
func (f *FileStore) Load() (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return c, nil
}

// Save sanitizes and writes c with mode 0600.
func (f *FileStore) Save(c Credentials) error {
	c.Endpoint = Sanitize(c.Endpoint)
	c.Token = Sanitize(c.Token)
	if !c.Complete() {
		return ErrIncompleteCredentials
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// EnvStore overlays SECURE_API_URL and SECURE_API_TOKEN on another store.
type EnvStore struct {
	Base Store
}

// Load returns the base credentials with environment values taking precedence.
func (e *EnvStore) Load() (Credentials, error) {
	var c Credentials
	if e.Base != nil {
		var err error
		if c, err = e.Base.Load(); err != nil {
			return c, err
		}
	}
	if v := Sanitize(os.Getenv(EnvEndpoint)); v != "" {
		c.Endpoint = v
	}
	if v := Sanitize(os.Getenv(EnvToken)); v != "" {
		c.Token = v
	}
	return c, nil
}

// Save writes through to the base store.
func (e *EnvStore) Save(c Credentials) error {
	if e.Base == nil {
		return errors.New("no credential store configured")
	}
	return e.Base.Save(c)
}
