// Package params resolves the on-disk locations reposync keeps its state in.
package params

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/inovacc/reposync/internal/application"
)

const (
	// ConfigFileName is the optional TOML configuration file inside the data directory.
	ConfigFileName = "config.toml"

	// LocalDataFileName holds the PID bookkeeping of the running instance.
	LocalDataFileName = "local_data.json"

	// StoreFileBase is the settings store file name without backend extension.
	StoreFileBase = "reposync"
)

var (
	once       sync.Once
	appdataDir string
	errAppdata error
)

// AppdataDir returns the data directory, creating it on first use.
func AppdataDir() (string, error) {
	once.Do(getAppDataDir)

	return appdataDir, errAppdata
}

// ConfigFile returns the path of the TOML configuration file.
func ConfigFile() (string, error) {
	return join(ConfigFileName)
}

// LocalDataFile returns the path of the local data file.
func LocalDataFile() (string, error) {
	return join(LocalDataFileName)
}

// StoreFile returns the settings store path for the given backend ("bolt" or "sqlite").
func StoreFile(backend string) (string, error) {
	ext := ".db"
	if backend == "bolt" {
		ext = ".bolt"
	}

	return join(StoreFileBase + ext)
}

func join(name string) (string, error) {
	dir, err := AppdataDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, name), nil
}

func getAppDataDir() {
	dir, err := application.Directory()
	if err != nil {
		errAppdata = err
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		errAppdata = fmt.Errorf("failed to create data directory %s: %w", dir, err)
		return
	}

	appdataDir = dir
}
