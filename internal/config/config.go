package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Storage StorageConfig
	Staging StagingConfig
	Auth    AuthConfig
	Google  GoogleConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host  string
	Port  int
	Token string
}

type EngineConfig struct {
	Python      string
	Script      string
	ProjectRoot string
	Timeout     time.Duration
}

type StorageConfig struct {
	DataDir string
}

type StagingConfig struct {
	Dir            string
	MaxUploadBytes int
	SweepCron      string
	MaxAge         time.Duration
}

type AuthConfig struct {
	Mode               string
	Terminal           string
	WindowCleanupDelay time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	ProjectID    string
	RedirectURI  string
}

type LogConfig struct {
	Level string
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TokenPath is where the engine keeps the OAuth token.
func (c EngineConfig) TokenPath() string {
	return filepath.Join(c.ProjectRoot, "token.json")
}

// DescriptorPath is where the engine expects the OAuth client descriptor.
func (c EngineConfig) DescriptorPath() string {
	return filepath.Join(c.ProjectRoot, "credentials.json")
}

// ScratchDir holds generated authorization scripts.
func (c StorageConfig) ScratchDir() string {
	return filepath.Join(c.DataDir, "scratch")
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
		Engine: EngineConfig{
			Python:  "python3",
			Timeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Staging: StagingConfig{
			MaxUploadBytes: 5 << 20,
			SweepCron:      "@every 10m",
			MaxAge:         time.Hour,
		},
		Auth: AuthConfig{
			Mode:               "inline",
			Terminal:           "x-terminal-emulator",
			WindowCleanupDelay: time.Minute,
		},
		Google: GoogleConfig{
			RedirectURI: "http://localhost",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from, lowest priority first: defaults, the JSON
// config file at $XDG_CONFIG_HOME/autott/config.json, a .env file in the
// working directory, and environment variables. Secrets left empty fall back
// to $XDG_DATA_HOME/autott/secrets.json.
//
// Values in .env never replace variables already set in the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretsFile{path: secretsFilePath()}, ".env")
}

// secretReader abstracts the secrets file for testing.
type secretReader interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, sr secretReader, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read env file %s: %v. Ignoring it.\n", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)

	applySecrets(&cfg, sr)

	if err := resolve(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolve fills derived paths and rejects unusable values.
func resolve(cfg *Config) error {
	if cfg.Engine.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving project root: %w", err)
		}
		cfg.Engine.ProjectRoot = wd
	}
	if cfg.Staging.Dir == "" {
		cfg.Staging.Dir = filepath.Join(cfg.Storage.DataDir, "uploads")
	}
	// Paths are absolute from here on: the engine runs in the project root
	// and the cleanup worker refuses relative paths.
	for _, p := range []*string{&cfg.Engine.ProjectRoot, &cfg.Storage.DataDir, &cfg.Staging.Dir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", *p, err)
		}
		*p = abs
	}
	switch {
	case cfg.Engine.Script == "":
		cfg.Engine.Script = filepath.Join(cfg.Engine.ProjectRoot, "calendar_sync.py")
	case !filepath.IsAbs(cfg.Engine.Script):
		cfg.Engine.Script = filepath.Join(cfg.Engine.ProjectRoot, cfg.Engine.Script)
	}

	var problems []string
	switch cfg.Auth.Mode {
	case "inline", "window":
	default:
		problems = append(problems, fmt.Sprintf("auth.mode must be inline or window, got %q", cfg.Auth.Mode))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
	}
	if cfg.Staging.MaxUploadBytes <= 0 {
		problems = append(problems, "staging.max_upload_bytes must be positive")
	}
	if cfg.Engine.Timeout <= 0 {
		problems = append(problems, "engine.timeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "autott-data"
		}
	}
	return filepath.Join(dir, "autott")
}
