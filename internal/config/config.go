package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string

	DataDir   string
	UploadDir string

	// PublicBaseURL is where agents download uploaded APKs from. Empty means
	// derive it from the outbound interface address at request time.
	PublicBaseURL string

	AgentPort    int
	AgentTimeout time.Duration

	AuthSecret  string
	TokenExpiry time.Duration

	PlannerEnabled bool
	DeviceStaleAge time.Duration
}

func (c Config) DatabasePath() string { return filepath.Join(c.DataDir, "devicefarm.db") }

func (c Config) SettingsPath() string { return filepath.Join(c.DataDir, "settings.toml") }

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:           8090,
		GinMode:        "release",
		DataDir:        "data",
		UploadDir:      "upload",
		AgentPort:      8080,
		AgentTimeout:   30 * time.Second,
		TokenExpiry:    7 * 24 * time.Hour,
		PlannerEnabled: true,
		DeviceStaleAge: 5 * time.Minute,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := parsePort(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}
	if raw := env.Getenv("UPLOAD_DIR"); raw != "" {
		cfg.UploadDir = raw
	}
	cfg.PublicBaseURL = env.Getenv("PUBLIC_BASE_URL")

	if raw := env.Getenv("AGENT_PORT"); raw != "" {
		port, err := parsePort(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AGENT_PORT")
		}
		cfg.AgentPort = port
	}

	if raw := env.Getenv("AGENT_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid AGENT_TIMEOUT_SECONDS")
		}
		cfg.AgentTimeout = time.Duration(seconds) * time.Second
	}

	cfg.AuthSecret = env.Getenv("AUTH_SECRET")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("PLANNER_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PLANNER_ENABLED")
		}
		cfg.PlannerEnabled = enabled
	}

	if raw := env.Getenv("DEVICE_STALE_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return Config{}, fmt.Errorf("invalid DEVICE_STALE_MINUTES")
		}
		cfg.DeviceStaleAge = time.Duration(minutes) * time.Minute
	}

	return cfg, nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}
