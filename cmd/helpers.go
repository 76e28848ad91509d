package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inovacc/reposync/internal/localdata"
	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/params"
	"github.com/inovacc/reposync/internal/settings"
	"github.com/inovacc/reposync/internal/store"
	"github.com/inovacc/reposync/internal/supervisor"
)

// addConfigFlags registers one flag per Config field, defaulting to defaults.
func addConfigFlags(fs *pflag.FlagSet) {
	d := model.DefaultConfig()

	fs.String("projects-root", d.ProjectsRoot, "Directory checkouts are placed under as <owner>/<repo>")
	fs.String("token", "", "GitHub token (overrides GITHUB_TOKEN, GH_TOKEN and gh CLI)")
	fs.String("unique-key", d.UniqueKey, "Descriptor field identifying a repository across passes")
	fs.Duration("pause", d.Pause, "Pause between two clone/pull actions")
	fs.Duration("pass-interval", d.PassInterval, "Interval between two reconciliation passes")
	fs.Duration("stop-check-interval", d.StopCheckInterval, "Interval between two polls of the stop flag")
	fs.Int("max-clones", d.MaxClonesPerPass, "Maximum clones per pass")
	fs.Int("per-page", d.PerPage, "Page size of the repository listing")
	fs.Int("max-results", d.MaxResults, "Maximum repositories listed per pass (0 = all)")
	fs.Bool("ssh", d.UseSSH, "Clone and pull with the SSH URL")
	fs.Bool("orgs", d.IncludeOrgs, "Also sync the repositories of every organization")
	fs.String("store", d.StoreBackend, "Settings store backend: sqlite or bolt")
	fs.String("metrics-addr", d.MetricsAddr, "Expose prometheus metrics on this address")
}

// applyConfigFlags overlays the flags the user set explicitly onto cfg.
func applyConfigFlags(fs *pflag.FlagSet, cfg *model.Config) {
	if fs.Changed("projects-root") {
		cfg.ProjectsRoot, _ = fs.GetString("projects-root")
	}

	if fs.Changed("token") {
		cfg.Token, _ = fs.GetString("token")
	}

	if fs.Changed("unique-key") {
		cfg.UniqueKey, _ = fs.GetString("unique-key")
	}

	if fs.Changed("pause") {
		cfg.Pause, _ = fs.GetDuration("pause")
	}

	if fs.Changed("pass-interval") {
		cfg.PassInterval, _ = fs.GetDuration("pass-interval")
	}

	if fs.Changed("stop-check-interval") {
		cfg.StopCheckInterval, _ = fs.GetDuration("stop-check-interval")
	}

	if fs.Changed("max-clones") {
		cfg.MaxClonesPerPass, _ = fs.GetInt("max-clones")
	}

	if fs.Changed("per-page") {
		cfg.PerPage, _ = fs.GetInt("per-page")
	}

	if fs.Changed("max-results") {
		cfg.MaxResults, _ = fs.GetInt("max-results")
	}

	if fs.Changed("ssh") {
		cfg.UseSSH, _ = fs.GetBool("ssh")
	}

	if fs.Changed("orgs") {
		cfg.IncludeOrgs, _ = fs.GetBool("orgs")
	}

	if fs.Changed("store") {
		cfg.StoreBackend, _ = fs.GetString("store")
	}

	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = fs.GetString("metrics-addr")
	}
}

// loadConfig builds the Config: defaults, then the config file, then flags.
func loadConfig(cmd *cobra.Command) (model.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error

		path, err = params.ConfigFile()
		if err != nil {
			return model.Config{}, err
		}
	}

	cfg, err := model.LoadConfigFile(path, model.DefaultConfig())
	if err != nil {
		return cfg, err
	}

	applyConfigFlags(cmd.Flags(), &cfg)

	root, err := expandPath(cfg.ProjectsRoot)
	if err != nil {
		return cfg, err
	}

	cfg.ProjectsRoot = root

	return cfg, cfg.Validate()
}

// components are the stores and the supervisor shared by every command.
type components struct {
	store     store.Store
	repos     *settings.Repositories
	snapshots *settings.Snapshots
	flags     *settings.Flags
	local     *localdata.File
	sup       *supervisor.Supervisor
}

func openComponents(cfg model.Config) (*components, error) {
	storePath, err := params.StoreFile(cfg.StoreBackend)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StoreBackend, storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	localPath, err := params.LocalDataFile()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dataDir, err := params.AppdataDir()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	c := &components{
		store:     st,
		repos:     settings.NewRepositories(st, cfg.ProjectsRoot),
		snapshots: settings.NewSnapshots(st, cfg.UniqueKey),
		flags:     settings.NewFlags(st),
		local:     localdata.Open(localPath),
	}

	c.sup = supervisor.New(supervisor.Options{
		Shell:    &supervisor.SystemShell{LogDir: filepath.Join(dataDir, "logs")},
		PIDs:     c.local,
		Settings: c.repos,
	})

	return c, nil
}

func (c *components) Close() error {
	return c.store.Close()
}

// withComponents loads the config, opens the components and hands both to fn.
func withComponents(cmd *cobra.Command, fn func(cfg model.Config, c *components) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	c, err := openComponents(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = c.Close() }()

	return fn(cfg, c)
}

// expandPath expands ~ to the user's home directory and returns an absolute path
func expandPath(path string) (string, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("path is empty")
	}

	// Expand ~ to home directory
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}

		path = filepath.Join(home, path[1:])
	}

	// Make path absolute
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	return absPath, nil
}

func onOff(v bool) string {
	if v {
		return "yes"
	}

	return "no"
}
