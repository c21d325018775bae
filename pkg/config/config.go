// Package config loads stager's runtime configuration: embedded defaults,
// overridden by an optional stager.toml in the XDG config directory,
// overridden by STAGER_* environment variables, overridden by explicit
// command-line values. Configuration covers how
// transfers run (workers, retries, timeouts, checksum algorithm, mode,
// group preference) — never what is transferred; that is the manifest's job.
package config

import (
	_ "embed"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	tomlv2 "github.com/pelletier/go-toml/v2"

	stagererr "github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/paths"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Config holds the merged runtime settings.
type Config struct {
	Workers         int      `koanf:"workers" toml:"workers"`
	Retries         int      `koanf:"retries" toml:"retries"`
	ItemTimeout     string   `koanf:"item_timeout" toml:"item_timeout"`
	Checksum        string   `koanf:"checksum" toml:"checksum"`
	Mode            string   `koanf:"mode" toml:"mode"`
	GroupPreference []string `koanf:"group_preference" toml:"group_preference"`
	Manifest        string   `koanf:"manifest" toml:"manifest,omitempty"`
}

// ItemTimeoutDuration parses the configured per-item timeout.
func (c *Config) ItemTimeoutDuration() (time.Duration, error) {
	if c.ItemTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ItemTimeout)
	if err != nil {
		return 0, stagererr.Wrapf(err, stagererr.ErrConfigParse,
			"invalid item_timeout %q", c.ItemTimeout)
	}
	return d, nil
}

// Dump renders the effective configuration as TOML, for `stager config`.
func (c *Config) Dump() (string, error) {
	out, err := tomlv2.Marshal(c)
	if err != nil {
		return "", stagererr.Wrap(err, stagererr.ErrInternal, "cannot render configuration")
	}
	return string(out), nil
}

// Load merges all configuration layers and unmarshals the result. Overrides
// are explicit values from the command line; they win over every other layer.
func Load(overrides map[string]interface{}) (*Config, error) {
	return loadFrom(paths.ConfigFile(), overrides)
}

func loadFrom(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, stagererr.Wrap(err, stagererr.ErrConfigLoad, "failed to load defaults")
	}

	// 2. User config file, when present
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, stagererr.Wrapf(err, stagererr.ErrConfigParse,
				"failed to load config from %s", configPath)
		}
	}

	// 3. Environment overrides: STAGER_WORKERS=8, STAGER_MODE=link, ...
	err := k.Load(env.Provider("STAGER_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "STAGER_"))
	}), nil)
	if err != nil {
		return nil, stagererr.Wrap(err, stagererr.ErrConfigLoad, "failed to load environment overrides")
	}

	// 4. Explicit command-line overrides
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, stagererr.Wrap(err, stagererr.ErrConfigLoad, "failed to apply overrides")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, stagererr.Wrap(err, stagererr.ErrConfigParse, "failed to unmarshal configuration")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &cfg, nil
}
