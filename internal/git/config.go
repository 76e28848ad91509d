package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

type RemoteSection struct {
	URL   string `ini:"url"`
	Fetch string `ini:"fetch"`
}

// Config is the part of .git/config reposync reads
type Config struct {
	Remote map[string]RemoteSection
}

// ReadConfig parses <repoDir>/.git/config.
func ReadConfig(repoDir string) (*Config, error) {
	cfg, err := ini.Load(filepath.Join(repoDir, ".git", "config"))
	if err != nil {
		return nil, err
	}

	gitConfig := Config{Remote: make(map[string]RemoteSection)}

	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, `remote "`) || !strings.HasSuffix(name, `"`) {
			continue
		}

		var remote RemoteSection
		if err := sec.MapTo(&remote); err != nil {
			return nil, err
		}

		gitConfig.Remote[name[len(`remote "`):len(name)-1]] = remote
	}

	return &gitConfig, nil
}

// OriginURL returns the origin remote URL of the checkout at repoDir.
func OriginURL(repoDir string) (string, error) {
	cfg, err := ReadConfig(repoDir)
	if err != nil {
		return "", err
	}

	origin, ok := cfg.Remote["origin"]
	if !ok || origin.URL == "" {
		return "", fmt.Errorf("no origin remote in %s", repoDir)
	}

	return origin.URL, nil
}

// IsRepository reports whether dir contains a .git directory.
func IsRepository(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// SameRemote compares two clone URLs ignoring scheme, credentials, and a .git suffix.
func SameRemote(a, b string) bool {
	return normalizeRemote(a) == normalizeRemote(b)
}

func normalizeRemote(u string) string {
	s := strings.TrimSpace(strings.ToLower(u))
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}

	if i := strings.Index(s, "@"); i >= 0 {
		s = s[i+1:]
	}

	return strings.Replace(s, ":", "/", 1)
}
