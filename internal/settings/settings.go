package settings

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

const DefaultADBMode = "usb"

// Settings is the operator-editable runtime configuration. Every field is
// a plain string; an unset key reads as "".
type Settings struct {
	ProxyURL     string `json:"proxy_url" toml:"proxy_url"`
	ServerURL    string `json:"server_url" toml:"server_url"`
	Timezone     string `json:"timezone" toml:"timezone"`
	WifiName     string `json:"wifi_name" toml:"wifi_name"`
	WifiPassword string `json:"wifi_password" toml:"wifi_password"`
	Version      string `json:"version" toml:"version"`
	ADBMode      string `json:"adb_mode" toml:"adb_mode"`
	License      string `json:"license" toml:"license"`
}

// Patch is a partial update: nil fields are left as they are.
type Patch struct {
	ProxyURL     *string `json:"proxy_url"`
	ServerURL    *string `json:"server_url"`
	Timezone     *string `json:"timezone"`
	WifiName     *string `json:"wifi_name"`
	WifiPassword *string `json:"wifi_password"`
	Version      *string `json:"version"`
	ADBMode      *string `json:"adb_mode"`
	License      *string `json:"license"`
}

func (p Patch) apply(s *Settings) {
	for _, f := range []struct {
		dst *string
		src *string
	}{
		{&s.ProxyURL, p.ProxyURL},
		{&s.ServerURL, p.ServerURL},
		{&s.Timezone, p.Timezone},
		{&s.WifiName, p.WifiName},
		{&s.WifiPassword, p.WifiPassword},
		{&s.Version, p.Version},
		{&s.ADBMode, p.ADBMode},
		{&s.License, p.License},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if s.ADBMode == "" {
		s.ADBMode = DefaultADBMode
	}
}

func defaults() Settings {
	return Settings{ADBMode: DefaultADBMode}
}

// Store owns the settings file. Reads come from an in-memory snapshot; every
// Save rewrites the whole file.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings

	persistMu sync.Mutex
}

// Open reads path (a missing file is fine) and returns a store holding its
// contents.
func Open(path string) *Store {
	s := &Store{path: path}
	s.current = s.Load()
	return s
}

func (s *Store) Path() string { return s.path }

// Load re-reads the file. Unreadable or corrupt files fall back to defaults.
func (s *Store) Load() Settings {
	loaded, err := readFile(s.path)
	if err != nil {
		log.Printf("settings: load failed (%s): %v", s.path, err)
		loaded = defaults()
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded
}

func readFile(path string) (Settings, error) {
	out := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	if _, err := toml.Decode(string(data), &out); err != nil {
		return defaults(), err
	}
	if out.ADBMode == "" {
		out.ADBMode = DefaultADBMode
	}
	return out, nil
}

func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save applies p on top of the current values, persists the result and
// returns it.
func (s *Store) Save(p Patch) (Settings, error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	next := s.Current()
	p.apply(&next)
	if err := writeFile(s.path, next); err != nil {
		return s.Current(), err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}

func writeFile(path string, v Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("settings: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: chmod temp: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// EnvVars maps each setting to the process environment variable it is
// exported as.
func EnvVars(s Settings) map[string]string {
	return map[string]string{
		"PROXY_URL":     s.ProxyURL,
		"SERVER_URL":    s.ServerURL,
		"TIMEZONE":      s.Timezone,
		"WIFI_NAME":     s.WifiName,
		"WIFI_PASSWORD": s.WifiPassword,
		"VERSION":       s.Version,
		"ADB_MODE":      s.ADBMode,
		"LICENSE":       s.License,
	}
}

// ApplyToEnvironment exports s into the process environment for child
// processes and scripts that read it from there. Code in this module reads
// the Store instead.
func ApplyToEnvironment(s Settings) error {
	for k, v := range EnvVars(s) {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}
