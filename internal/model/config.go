package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/inovacc/reposync/internal/application"
)

// Store backends accepted by Config.StoreBackend.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// Config holds the settings of one scheduler instance
type Config struct {
	// ProjectsRoot is the directory checkouts are placed under, as <root>/<owner>/<repo>
	ProjectsRoot string

	// Token is the credential handed to the mirror; never read from the config file
	Token string

	// UniqueKey is the descriptor field identifying a repository across passes
	UniqueKey string

	// Pause is the wait between two successive repositories within a pass
	Pause time.Duration

	// PassInterval is the time between the start of two reconciliation passes
	PassInterval time.Duration

	// StopCheckInterval bounds how long an out-of-band stop request goes unnoticed
	StopCheckInterval time.Duration

	// MaxClonesPerPass is the clone quota of a single pass
	MaxClonesPerPass int

	// PerPage and MaxResults are forwarded to the mirror listing
	PerPage    int
	MaxResults int

	// UseSSH clones with the ssh_url instead of clone_url
	UseSSH bool

	// IncludeOrgs also reconciles the repositories of every organization of the identity
	IncludeOrgs bool

	// StoreBackend selects the settings store implementation (sqlite or bolt)
	StoreBackend string

	// MetricsAddr, when set, exposes prometheus metrics on this address
	MetricsAddr string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return Config{
		ProjectsRoot:      filepath.Join(homeDir, application.AppName, "repositories"),
		UniqueKey:         "full_name",
		Pause:             3 * time.Second,
		PassInterval:      600 * time.Second,
		StopCheckInterval: 10 * time.Second,
		MaxClonesPerPass:  5000,
		PerPage:           100,
		MaxResults:        0,
		IncludeOrgs:       true,
		StoreBackend:      StoreSQLite,
	}
}

// Validate reports the first setting that would make the scheduler misbehave.
func (c Config) Validate() error {
	switch {
	case c.ProjectsRoot == "":
		return errors.New("projects root is required")
	case c.UniqueKey == "":
		return errors.New("unique key is required")
	case c.PassInterval <= 0:
		return fmt.Errorf("pass interval must be positive, got %s", c.PassInterval)
	case c.StopCheckInterval <= 0:
		return fmt.Errorf("stop check interval must be positive, got %s", c.StopCheckInterval)
	case c.Pause < 0:
		return fmt.Errorf("pause must not be negative, got %s", c.Pause)
	case c.MaxClonesPerPass < 0:
		return fmt.Errorf("max clones per pass must not be negative, got %d", c.MaxClonesPerPass)
	case c.StoreBackend != StoreSQLite && c.StoreBackend != StoreBolt:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	return nil
}

// fileConfig mirrors Config in the on-disk TOML form; durations are strings such as "10s".
type fileConfig struct {
	ProjectsRoot      *string `toml:"projects_root"`
	UniqueKey         *string `toml:"unique_key"`
	Pause             *string `toml:"pause"`
	PassInterval      *string `toml:"pass_interval"`
	StopCheckInterval *string `toml:"stop_check_interval"`
	MaxClonesPerPass  *int    `toml:"max_clones_per_pass"`
	PerPage           *int    `toml:"per_page"`
	MaxResults        *int    `toml:"max_results"`
	UseSSH            *bool   `toml:"use_ssh"`
	IncludeOrgs       *bool   `toml:"include_orgs"`
	StoreBackend      *string `toml:"store_backend"`
	MetricsAddr       *string `toml:"metrics_addr"`
}

// LoadConfigFile overlays the TOML file at path onto base.
// A missing file is not an error and returns base unchanged.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}

		return base, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := base

	setString(&cfg.ProjectsRoot, fc.ProjectsRoot)
	setString(&cfg.UniqueKey, fc.UniqueKey)
	setString(&cfg.StoreBackend, fc.StoreBackend)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)

	if fc.MaxClonesPerPass != nil {
		cfg.MaxClonesPerPass = *fc.MaxClonesPerPass
	}

	if fc.PerPage != nil {
		cfg.PerPage = *fc.PerPage
	}

	if fc.MaxResults != nil {
		cfg.MaxResults = *fc.MaxResults
	}

	if fc.UseSSH != nil {
		cfg.UseSSH = *fc.UseSSH
	}

	if fc.IncludeOrgs != nil {
		cfg.IncludeOrgs = *fc.IncludeOrgs
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"pause", fc.Pause, &cfg.Pause},
		{"pass_interval", fc.PassInterval, &cfg.PassInterval},
		{"stop_check_interval", fc.StopCheckInterval, &cfg.StopCheckInterval},
	}

	for _, d := range durations {
		if d.src == nil {
			continue
		}

		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return base, fmt.Errorf("invalid %s %q: %w", d.name, *d.src, err)
		}

		*d.dst = v
	}

	return cfg, nil
}

func setString(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}
