package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account names the entry in the secrets file for secret keys.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "AUTOTT_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "AUTOTT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "AUTOTT_API_TOKEN",
		secret: true, account: "api_token",
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "engine.python", typ: kString, env: "AUTOTT_ENGINE_PYTHON",
		apply:   func(cfg *Config, v any) { cfg.Engine.Python = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Python },
	},
	{
		key: "engine.script", typ: kString, env: "AUTOTT_ENGINE_SCRIPT",
		apply:   func(cfg *Config, v any) { cfg.Engine.Script = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Script },
	},
	{
		key: "engine.project_root", typ: kString, env: "AUTOTT_ENGINE_PROJECT_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Engine.ProjectRoot = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.ProjectRoot },
	},
	{
		key: "engine.timeout", typ: kDuration, env: "AUTOTT_ENGINE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Engine.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AUTOTT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "staging.dir", typ: kString, env: "AUTOTT_STAGING_DIR",
		apply:   func(cfg *Config, v any) { cfg.Staging.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.Dir },
	},
	{
		key: "staging.max_upload_bytes", typ: kInt, env: "AUTOTT_STAGING_MAX_UPLOAD_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Staging.MaxUploadBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Staging.MaxUploadBytes },
	},
	{
		key: "staging.sweep_cron", typ: kString, env: "AUTOTT_STAGING_SWEEP_CRON",
		apply:   func(cfg *Config, v any) { cfg.Staging.SweepCron = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.SweepCron },
	},
	{
		key: "staging.max_age", typ: kDuration, env: "AUTOTT_STAGING_MAX_AGE",
		apply:   func(cfg *Config, v any) { cfg.Staging.MaxAge = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Staging.MaxAge },
	},
	{
		key: "auth.mode", typ: kString, env: "AUTOTT_AUTH_MODE",
		apply:   func(cfg *Config, v any) { cfg.Auth.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Mode },
	},
	{
		key: "auth.terminal", typ: kString, env: "AUTOTT_AUTH_TERMINAL",
		apply:   func(cfg *Config, v any) { cfg.Auth.Terminal = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Terminal },
	},
	{
		key: "auth.window_cleanup_delay", typ: kDuration, env: "AUTOTT_AUTH_WINDOW_CLEANUP_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Auth.WindowCleanupDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Auth.WindowCleanupDelay },
	},
	{
		key: "google.client_id", typ: kString, env: "GOOGLE_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Google.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientID },
	},
	{
		key: "google.client_secret", typ: kString, env: "GOOGLE_CLIENT_SECRET",
		secret: true, account: "google_client_secret",
		apply:   func(cfg *Config, v any) { cfg.Google.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientSecret },
	},
	{
		key: "google.project_id", typ: kString, env: "GOOGLE_PROJECT_ID",
		apply:   func(cfg *Config, v any) { cfg.Google.ProjectID = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ProjectID },
	},
	{
		key: "google.redirect_uri", typ: kString, env: "GOOGLE_REDIRECT_URI",
		apply:   func(cfg *Config, v any) { cfg.Google.RedirectURI = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.RedirectURI },
	},
	{
		key: "log.level", typ: kString, env: "AUTOTT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecrets fills still-empty secret keys from the secrets file.
func applySecrets(cfg *Config, sr secretReader) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := sr.Get("autott", s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
