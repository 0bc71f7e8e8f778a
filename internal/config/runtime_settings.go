package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

const settingsFileName = "settings.json"

// RuntimeSettings are the values a user may change from the running app.
type RuntimeSettings struct {
	JSSURL     string `json:"jss_url"`
	User       string `json:"user"`
	ResyncCron string `json:"resync_cron"`
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.JSSURL) == "" {
		return fmt.Errorf("jss_url is required")
	}
	if u, err := url.Parse(s.JSSURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid jss_url %q", s.JSSURL)
	}
	if strings.TrimSpace(s.User) == "" {
		return fmt.Errorf("user is required")
	}
	if strings.TrimSpace(s.ResyncCron) == "" {
		return fmt.Errorf("resync_cron is required")
	}
	if _, err := cron.ParseStandard(s.ResyncCron); err != nil {
		return fmt.Errorf("invalid resync_cron: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		JSSURL:     c.JSS.URL,
		User:       c.JSS.User,
		ResyncCron: c.Stream.ResyncCron,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.JSSURL) != "" {
			c.JSS.URL = settings.JSSURL
		}
		if strings.TrimSpace(settings.User) != "" {
			c.JSS.User = settings.User
		}
		if strings.TrimSpace(settings.ResyncCron) != "" {
			c.Stream.ResyncCron = settings.ResyncCron
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

// WriteRuntimeSettingsFile validates settings and replaces path atomically.
func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(content, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// RuntimeSettingsStore serves the settings the process started with and
// persists edits. Edits take effect on the next start, so Pending reports
// whether the saved file has drifted from the running values.
type RuntimeSettingsStore struct {
	path    string
	running RuntimeSettings

	mu    sync.RWMutex
	saved RuntimeSettings
}

func NewRuntimeSettingsStore(path string, running RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := running.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		running: running,
		saved:   running,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved, nil
}

// UpdateRuntimeSettings saves next. Blank fields keep their saved value.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.saved
	if v := strings.TrimSpace(next.JSSURL); v != "" {
		merged.JSSURL = v
	}
	if v := strings.TrimSpace(next.User); v != "" {
		merged.User = v
	}
	if v := strings.TrimSpace(next.ResyncCron); v != "" {
		merged.ResyncCron = v
	}
	if merged == s.saved {
		return merged, nil
	}
	if err := WriteRuntimeSettingsFile(s.path, merged); err != nil {
		return RuntimeSettings{}, err
	}
	s.saved = merged
	return merged, nil
}

// Pending reports whether saved settings differ from the running ones.
func (s *RuntimeSettingsStore) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved != s.running
}
