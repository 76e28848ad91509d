// Package application names the program and locates its data directory.
package application

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// AppName names the binary, the data directory and the OS service.
const AppName = "reposync"

// HomeEnv overrides the data directory, e.g. for a service account or tests.
const HomeEnv = "REPOSYNC_HOME"

// directory is resolved once per process.
var directory = sync.OnceValues(func() (string, error) {
	return resolveDirectory(os.Getenv, runtime.GOOS, baseDirs{config: os.UserConfigDir, cache: os.UserCacheDir})
})

type baseDirs struct {
	config func() (string, error)
	cache  func() (string, error)
}

// Directory returns where reposync keeps its state:
// $REPOSYNC_HOME when set, otherwise <user config dir>/reposync on Unix and
// <user cache dir>/reposync (AppData\Local) on Windows.
func Directory() (string, error) {
	return directory()
}

func resolveDirectory(getenv func(string) string, goos string, dirs baseDirs) (string, error) {
	if home := getenv(HomeEnv); home != "" {
		if !filepath.IsAbs(home) {
			return "", fmt.Errorf("%s must be an absolute path, got %q", HomeEnv, home)
		}

		return filepath.Clean(home), nil
	}

	base := dirs.config
	if goos == "windows" {
		base = dirs.cache
	}

	dir, err := base()
	if err != nil {
		return "", fmt.Errorf("failed to locate the user data directory: %w", err)
	}

	if dir == "" {
		return "", errors.New("user data directory is empty")
	}

	return filepath.Join(dir, AppName), nil
}

// ExecutableName is the binary file name recorded for previous-instance checks.
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return AppName + ".exe"
	}

	return AppName
}
