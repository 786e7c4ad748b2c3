// Package config loads the directory's TOML configuration, following the
// teacher's own use of github.com/BurntSushi/toml, and resolves a default
// config path relative to the running binary via github.com/kardianos/osext
// when none is given on the command line.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kardianos/osext"
)

// PublicKey holds the recognized options from spec section 6.
type PublicKey struct {
	PurgeTimeInDays     int    `toml:"purgeTimeInDays"`
	RestrictUserOrigin  bool   `toml:"restrictUserOrigin"`
	RestrictionRegEx    string `toml:"restrictionRegEx"`
	PurgeIntervalMinutes int   `toml:"purgeIntervalMinutes"`
}

// Storage selects and configures a Storage Port backend.
type Storage struct {
	Backend string `toml:"backend"` // "postgres" or "leveldb"
	DSN     string `toml:"dsn"`
	Path    string `toml:"path"`
}

// Mailer configures the SMTP relay the Mailer Port sends through.
type Mailer struct {
	Addr string `toml:"addr"`
	From string `toml:"from"`
}

// Sentry configures the raven-go error-reporting sink.
type Sentry struct {
	DSN string `toml:"dsn"`
}

// Config is the top-level configuration document.
type Config struct {
	PublicKey PublicKey `toml:"publicKey"`
	Storage   Storage   `toml:"storage"`
	Mailer    Mailer    `toml:"mailer"`
	Sentry    Sentry    `toml:"sentry"`
	HTTPAddr  string    `toml:"httpAddr"`
}

// Default returns a Config with the same defaults the teacher's deployments
// ship (30 day purge horizon, origin restriction disabled).
func Default() Config {
	return Config{
		PublicKey: PublicKey{
			PurgeTimeInDays:      30,
			RestrictUserOrigin:   false,
			PurgeIntervalMinutes: 60,
		},
		Storage:  Storage{Backend: "leveldb", Path: "keydirectory.db"},
		HTTPAddr: ":11371",
	}
}

// Load reads path, falling back to a config file next to the running
// binary when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	implicit := false
	if path == "" {
		exeDir, err := osext.ExecutableFolder()
		if err == nil {
			path = filepath.Join(exeDir, "keydirectory.conf")
			implicit = true
		}
	}
	if path == "" {
		return cfg, nil
	}
	if implicit {
		if _, err := os.Stat(path); err != nil {
			return cfg, nil
		}
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
