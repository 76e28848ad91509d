// Package auth resolves the credential handed to the mirror.
// Sources are tried in priority order; the first non-empty token wins.
package auth

import (
	"fmt"
	"os"
	"strings"

	ghauth "github.com/cli/go-gh/v2/pkg/auth"
)

// Source indicates where a token was found
type Source string

const (
	SourceFlag Source = "flag"
	SourceEnv  Source = "env"
	SourceCLI  Source = "cli"
	SourceNone Source = "none"
)

// Result contains the resolved token and its source
type Result struct {
	Token  string
	Source Source
	Name   string // The specific source name (e.g., "GITHUB_TOKEN", "cli:github.com")
}

// TokenProvider attempts to provide a token.
// Returns an empty token when the source has none; an error only for unexpected failures.
type TokenProvider func() (token string, sourceName string, err error)

// Resolver resolves tokens from multiple sources in priority order
type Resolver struct {
	providers   []TokenProvider
	serviceName string
	helpMessage string
}

// NewResolver creates a new token resolver for a service
func NewResolver(serviceName string) *Resolver {
	return &Resolver{serviceName: serviceName}
}

// WithFlagValue adds a flag value as the highest priority source
func (r *Resolver) WithFlagValue(value string) *Resolver {
	return r.WithProvider(func() (string, string, error) {
		return value, "flag", nil
	})
}

// WithEnvs adds environment variables as token sources (checked in order)
func (r *Resolver) WithEnvs(envVars ...string) *Resolver {
	for _, envVar := range envVars {
		r.WithProvider(func() (string, string, error) {
			return os.Getenv(envVar), envVar, nil
		})
	}

	return r
}

// WithGitHubCLI adds the gh CLI keyring and config file for host
func (r *Resolver) WithGitHubCLI(host string) *Resolver {
	return r.WithProvider(func() (string, string, error) {
		token, _ := ghauth.TokenForHost(host)
		return token, "cli:" + host, nil
	})
}

// WithProvider adds a custom token provider
func (r *Resolver) WithProvider(provider TokenProvider) *Resolver {
	r.providers = append(r.providers, provider)
	return r
}

// WithHelpMessage sets the help message shown when no token is found
func (r *Resolver) WithHelpMessage(msg string) *Resolver {
	r.helpMessage = msg
	return r
}

// Resolve returns the first token found, or an error if no source has one.
func (r *Resolver) Resolve() (*Result, error) {
	for _, provider := range r.providers {
		token, sourceName, err := provider()
		if err != nil {
			return nil, fmt.Errorf("token provider error: %w", err)
		}

		if token = strings.TrimSpace(token); token != "" {
			return &Result{
				Token:  token,
				Source: categorizeSource(sourceName),
				Name:   sourceName,
			}, nil
		}
	}

	if r.helpMessage != "" {
		return nil, fmt.Errorf("%s token required\n\n%s", r.serviceName, r.helpMessage)
	}

	return nil, fmt.Errorf("%s token required", r.serviceName)
}

func categorizeSource(name string) Source {
	switch {
	case name == "flag":
		return SourceFlag
	case strings.HasPrefix(name, "cli"):
		return SourceCLI
	case strings.Contains(name, "TOKEN"):
		return SourceEnv
	default:
		return SourceNone
	}
}

const gitHubHelp = `Provide a token via one of:
  * --token flag
  * GITHUB_TOKEN or GH_TOKEN env var
  * gh auth login             (auto-detected from gh CLI)

Create a token at: https://github.com/settings/tokens`

// GitHub resolves a GitHub token: flag, GITHUB_TOKEN, GH_TOKEN, then the gh CLI.
func GitHub(flagToken, host string) (*Result, error) {
	if host == "" {
		host = "github.com"
	}

	return NewResolver("GitHub").
		WithFlagValue(flagToken).
		WithEnvs("GITHUB_TOKEN", "GH_TOKEN").
		WithGitHubCLI(host).
		WithHelpMessage(gitHubHelp).
		Resolve()
}
