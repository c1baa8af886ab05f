package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/model"
)

// KeyServerURL is the storage key of the claim server base URL.
const KeyServerURL = "serverUrl"

// ErrBadServerURL is returned by SetServerURL for values that are not absolute http(s) URLs.
var ErrBadServerURL = errors.New("server url must be an absolute http(s) url")

// Service exposes typed settings over a Store with a configured default.
type Service struct {
	store      Store
	defaultURL string
}

// NewService constructs a settings service.
func NewService(store Store, defaultServerURL string) *Service {
	return &Service{store: store, defaultURL: defaultServerURL}
}

// Load returns the persisted settings, falling back to the default server URL.
func (s *Service) Load() (model.Settings, error) {
	v, ok, err := s.store.Load(KeyServerURL)
	if err != nil {
		return model.Settings{ServerURL: s.defaultURL}, fmt.Errorf("load %s: %w", KeyServerURL, err)
	}
	if !ok || strings.TrimSpace(v) == "" {
		return model.Settings{ServerURL: s.defaultURL}, nil
	}
	return model.Settings{ServerURL: v}, nil
}

// ServerURL is a shorthand for Load().ServerURL that never fails; errors fall back to the default.
func (s *Service) ServerURL() string {
	st, _ := s.Load()
	return st.ServerURL
}

// SetServerURL validates raw and saves it exactly as given.
func (s *Service) SetServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q: %w", raw, ErrBadServerURL)
	}
	if err := s.store.Save(KeyServerURL, raw); err != nil {
		return fmt.Errorf("save %s: %w", KeyServerURL, err)
	}
	return nil
}

// Reset drops the saved server URL so the default applies again.
func (s *Service) Reset() error {
	type deleter interface{ Delete(key string) error }
	if d, ok := s.store.(deleter); ok {
		return d.Delete(KeyServerURL)
	}
	return s.store.Save(KeyServerURL, "")
}

// Default returns the configured default server URL.
func (s *Service) Default() string { return s.defaultURL }

// Lookup returns the raw stored value or errs.ErrSettingNotFound.
func (s *Service) Lookup(key string) (string, error) {
	v, ok, err := s.store.Load(key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(v) == "" {
		return "", errs.ErrSettingNotFound
	}
	return v, nil
}
