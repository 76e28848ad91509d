package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/inovacc/reposync/internal/model"
)

// DefaultPerPage is used when a listing call passes no page size.
const DefaultPerPage = 100

// Options configures a GitHub mirror.
type Options struct {
	RateLimit RateLimitConfig
	Logger    *slog.Logger

	// BaseURL points the client at another API root, e.g. GitHub Enterprise
	BaseURL string

	// HTTPClient replaces the oauth2 client built from the token
	HTTPClient *http.Client
}

// GitHub lists repositories through the GitHub REST API.
type GitHub struct {
	client  *github.Client
	rateCfg RateLimitConfig
	logger  *slog.Logger
	after   func(time.Duration) <-chan time.Time
}

var _ Mirror = (*GitHub)(nil)

// NewGitHub creates a rate-limit-aware GitHub mirror authenticated with token.
func NewGitHub(token string, opts Options) (*GitHub, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil && token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}

		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL %q: %w", opts.BaseURL, err)
		}

		client.BaseURL = u
	}

	rateCfg := opts.RateLimit
	if rateCfg.BackoffMultiplier == 0 {
		rateCfg = DefaultRateLimitConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GitHub{
		client:  client,
		rateCfg: rateCfg,
		logger:  logger,
		after:   time.After,
	}, nil
}

func (g *GitHub) CheckCredentials(ctx context.Context) error {
	var user *github.User

	_, err := g.retrying(ctx, "get authenticated user", func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)

		user, resp, err = g.client.Users.Get(ctx, "")

		return resp, err
	})
	if err != nil {
		return err
	}

	if user.GetLogin() == "" {
		return &CredentialError{Reason: "no authenticated user"}
	}

	g.logger.Debug("credentials accepted", slog.String("login", user.GetLogin()))

	return nil
}

func (g *GitHub) ListRepositories(ctx context.Context, perPage, maxResults int) ([]model.RepositoryDescriptor, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	opt := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var out []model.RepositoryDescriptor

	for {
		var repos []*github.Repository

		resp, err := g.retrying(ctx, "list repositories", func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)

			repos, resp, err = g.client.Repositories.ListByAuthenticatedUser(ctx, opt)

			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range repos {
			out = append(out, Descriptor(r))

			if maxResults > 0 && len(out) >= maxResults {
				return out, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

func (g *GitHub) ListOrganizations(ctx context.Context) ([]Organization, error) {
	opt := &github.ListOptions{PerPage: DefaultPerPage}

	var out []Organization

	for {
		var orgs []*github.Organization

		resp, err := g.retrying(ctx, "list organizations", func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)

			orgs, resp, err = g.client.Organizations.List(ctx, "", opt)

			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, o := range orgs {
			out = append(out, Organization{
				Login:       o.GetLogin(),
				Name:        o.GetName(),
				Description: o.GetDescription(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

func (g *GitHub) ListOrgRepositories(ctx context.Context, org string) ([]model.RepositoryDescriptor, error) {
	opt := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: DefaultPerPage},
	}

	var out []model.RepositoryDescriptor

	for {
		var repos []*github.Repository

		resp, err := g.retrying(ctx, "list repositories of "+org, func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)

			repos, resp, err = g.client.Repositories.ListByOrg(ctx, org, opt)

			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range repos {
			out = append(out, Descriptor(r))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return out, nil
}

// Descriptor converts a GitHub repository into a RepositoryDescriptor.
func Descriptor(r *github.Repository) model.RepositoryDescriptor {
	d := model.RepositoryDescriptor{
		FullName: r.GetFullName(),
		Name:     r.GetName(),
		Owner:    r.GetOwner().GetLogin(),
		CloneURL: r.GetCloneURL(),
		SSHURL:   r.GetSSHURL(),
		PushedAt: r.GetPushedAt().Time,
		Extra: map[string]any{
			"id":             r.GetID(),
			"private":        r.GetPrivate(),
			"fork":           r.GetFork(),
			"archived":       r.GetArchived(),
			"default_branch": r.GetDefaultBranch(),
			"html_url":       r.GetHTMLURL(),
		},
	}

	if d.Owner == "" {
		d.Owner = d.OwnerLogin()
	}

	return d
}
