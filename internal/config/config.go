package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the engine configuration file. Every duration is in
// milliseconds so the file mirrors the daemon's own conventions.
type Config struct {
	Notifications Notifications `toml:"notifications"`
	Presence      Presence      `toml:"presence"`
	Send          Send          `toml:"send"`
}

// Notifications controls message notification dispatch.
type Notifications struct {
	Enabled bool `toml:"enabled"`
}

// Presence tunes the presence tracker. Zero values fall back to defaults.
type Presence struct {
	StaleWindowMS         int64 `toml:"stale_window_ms"`
	SweepIntervalMS       int64 `toml:"sweep_interval_ms"`
	TimeoutMS             int64 `toml:"timeout_ms"`
	OnlinePollIntervalMS  int64 `toml:"online_poll_interval_ms"`
	OfflinePollIntervalMS int64 `toml:"offline_poll_interval_ms"`
	ProfileSyncDebounceMS int64 `toml:"profile_sync_debounce_ms"`
}

// Send tunes the retryable sender.
type Send struct {
	MaxRetries     int   `toml:"max_retries"`
	InitialDelayMS int64 `toml:"initial_delay_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Notifications: Notifications{Enabled: true},
		Presence: Presence{
			StaleWindowMS:         2000,
			SweepIntervalMS:       10000,
			TimeoutMS:             90000,
			OnlinePollIntervalMS:  60000,
			OfflinePollIntervalMS: 300000,
			ProfileSyncDebounceMS: 5000,
		},
		Send: Send{
			MaxRetries:     3,
			InitialDelayMS: 1000,
		},
	}
}

// Load reads config from the given path, filling unset fields from
// defaults. A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	var onDisk Config
	if _, err := toml.DecodeFile(path, &onDisk); err != nil {
		return nil, err
	}
	merge(cfg, &onDisk)
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func merge(dst, src *Config) {
	dst.Notifications = src.Notifications
	if src.Presence.StaleWindowMS > 0 {
		dst.Presence.StaleWindowMS = src.Presence.StaleWindowMS
	}
	if src.Presence.SweepIntervalMS > 0 {
		dst.Presence.SweepIntervalMS = src.Presence.SweepIntervalMS
	}
	if src.Presence.TimeoutMS > 0 {
		dst.Presence.TimeoutMS = src.Presence.TimeoutMS
	}
	if src.Presence.OnlinePollIntervalMS > 0 {
		dst.Presence.OnlinePollIntervalMS = src.Presence.OnlinePollIntervalMS
	}
	if src.Presence.OfflinePollIntervalMS > 0 {
		dst.Presence.OfflinePollIntervalMS = src.Presence.OfflinePollIntervalMS
	}
	if src.Presence.ProfileSyncDebounceMS > 0 {
		dst.Presence.ProfileSyncDebounceMS = src.Presence.ProfileSyncDebounceMS
	}
	if src.Send.MaxRetries > 0 {
		dst.Send.MaxRetries = src.Send.MaxRetries
	}
	if src.Send.InitialDelayMS > 0 {
		dst.Send.InitialDelayMS = src.Send.InitialDelayMS
	}
}
