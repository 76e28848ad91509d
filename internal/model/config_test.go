package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	expectedDir := filepath.Join(homeDir, "reposync", "repositories")
	if cfg.ProjectsRoot != expectedDir {
		t.Errorf("ProjectsRoot = %q, want %q", cfg.ProjectsRoot, expectedDir)
	}

	if cfg.UniqueKey != "full_name" {
		t.Errorf("UniqueKey = %q, want %q", cfg.UniqueKey, "full_name")
	}

	if cfg.Pause != 3*time.Second {
		t.Errorf("Pause = %s, want 3s", cfg.Pause)
	}

	if cfg.MaxClonesPerPass != 5000 {
		t.Errorf("MaxClonesPerPass = %d, want 5000", cfg.MaxClonesPerPass)
	}

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.ProjectsRoot = "" }},
		{"empty key", func(c *Config) { c.UniqueKey = "" }},
		{"zero interval", func(c *Config) { c.PassInterval = 0 }},
		{"zero stop check", func(c *Config) { c.StopCheckInterval = 0 }},
		{"negative pause", func(c *Config) { c.Pause = -time.Second }},
		{"negative quota", func(c *Config) { c.MaxClonesPerPass = -1 }},
		{"bad backend", func(c *Config) { c.StoreBackend = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
projects_root = "/srv/repos"
pause = "500ms"
pass_interval = "2m"
max_clones_per_pass = 7
use_ssh = true
store_backend = "bolt"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfigFile(path, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "/srv/repos", cfg.ProjectsRoot)
	assert.Equal(t, 500*time.Millisecond, cfg.Pause)
	assert.Equal(t, 2*time.Minute, cfg.PassInterval)
	assert.Equal(t, 10*time.Second, cfg.StopCheckInterval)
	assert.Equal(t, 7, cfg.MaxClonesPerPass)
	assert.True(t, cfg.UseSSH)
	assert.Equal(t, StoreBolt, cfg.StoreBackend)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	base := DefaultConfig()

	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.toml"), base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)
}

func TestLoadConfigFile_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`pause = "soon"`), 0o600))

	_, err := LoadConfigFile(path, DefaultConfig())
	assert.Error(t, err)
}
