package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the config file.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use set-secret or environment variable %s", key, s.env)
	}
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	case kDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
	}
	return b.SetString(key, value)
}

// SetSecret stores a secret key in the owner-only secrets file.
func SetSecret(key, value string) error {
	return setSecret(secretsFile{path: secretsFilePath()}, key, value)
}

func setSecret(f secretsFile, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok || !s.secret {
		return fmt.Errorf("%q is not a secret key (secrets: %v)", key, SecretKeys())
	}
	if value == "" {
		return fmt.Errorf("empty value for %s", key)
	}
	return f.Set("autott", s.account, value)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// SecretKeys returns the config keys kept in the secrets file.
func SecretKeys() []string {
	var keys []string
	for _, s := range specs {
		if s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
