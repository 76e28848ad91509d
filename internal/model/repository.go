package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RepositoryDescriptor is the remote metadata of one repository
type RepositoryDescriptor struct {
	// FullName is owner/repo and identifies the repository remotely
	FullName string `json:"full_name"`

	// Name is the repository name without owner
	Name string `json:"name"`

	// Owner is the login of the owning user or organization
	Owner string `json:"owner"`

	// CloneURL is the HTTPS clone URL
	CloneURL string `json:"clone_url"`

	// SSHURL is the SSH clone URL
	SSHURL string `json:"ssh_url,omitempty"`

	// PushedAt is the time of the last push to any branch
	PushedAt time.Time `json:"pushed_at"`

	// Extra carries additional remote metadata the core does not interpret
	Extra map[string]any `json:"extra,omitempty"`
}

// OwnerLogin returns Owner, falling back to the part of FullName before the slash.
func (d RepositoryDescriptor) OwnerLogin() string {
	if d.Owner != "" {
		return d.Owner
	}

	owner, _, _ := strings.Cut(d.FullName, "/")

	return owner
}

// RepoName returns Name, falling back to the part of FullName after the slash.
func (d RepositoryDescriptor) RepoName() string {
	if d.Name != "" {
		return d.Name
	}

	_, name, _ := strings.Cut(d.FullName, "/")

	return name
}

// Key returns the value of the named descriptor field as a string.
// Unknown names are looked up in Extra.
func (d RepositoryDescriptor) Key(field string) string {
	switch field {
	case "full_name":
		return d.FullName
	case "name":
		return d.Name
	case "owner":
		return d.Owner
	case "clone_url":
		return d.CloneURL
	case "ssh_url":
		return d.SSHURL
	}

	if v, ok := d.Extra[field]; ok && v != nil {
		return fmt.Sprint(v)
	}

	return ""
}

// URL picks the URL used for clone and pull.
func (d RepositoryDescriptor) URL(useSSH bool) string {
	if useSSH && d.SSHURL != "" {
		return d.SSHURL
	}

	return d.CloneURL
}

// LocalCheckout is where a descriptor lives on disk; derived, never persisted
type LocalCheckout struct {
	Owner    string
	RepoName string
	Path     string
	Exists   bool
}

// CheckoutFor resolves the checkout of d under root and stats it.
func CheckoutFor(root string, d RepositoryDescriptor) LocalCheckout {
	lc := LocalCheckout{
		Owner:    d.OwnerLogin(),
		RepoName: d.RepoName(),
	}

	lc.Path = filepath.Join(root, lc.Owner, lc.RepoName)

	if info, err := os.Stat(lc.Path); err == nil && info.IsDir() {
		lc.Exists = true
	}

	return lc
}

// ScanCheckouts lists the <owner>/<repo> directories present under root.
// A missing root yields no checkouts.
func ScanCheckouts(root string) ([]LocalCheckout, error) {
	owners, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read projects root: %w", err)
	}

	var out []LocalCheckout

	for _, owner := range owners {
		if !owner.IsDir() || strings.HasPrefix(owner.Name(), ".") {
			continue
		}

		repos, err := os.ReadDir(filepath.Join(root, owner.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", owner.Name(), err)
		}

		for _, repo := range repos {
			if !repo.IsDir() || strings.HasPrefix(repo.Name(), ".") {
				continue
			}

			out = append(out, LocalCheckout{
				Owner:    owner.Name(),
				RepoName: repo.Name(),
				Path:     filepath.Join(root, owner.Name(), repo.Name()),
				Exists:   true,
			})
		}
	}

	return out, nil
}
