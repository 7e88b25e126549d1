// Package githubprov implements provider.Provider for a GitHub-style forge:
// a single organization's paginated repository list.
package githubprov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/k8scat/git-mirror/internal/provider"
)

const perPage = 100

// Config configures one GitHub organization provider instance.
type Config struct {
	URL          string // e.g. https://api.github.com
	Org          string
	PrivateToken string
	UseHTTP      bool
	UserAgent    string
	Log          *slog.Logger
}

// Provider implements provider.Provider against a GitHub organization.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New builds a GitHub organization provider.
func New(cfg Config) *Provider {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "git-mirror"
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

var _ provider.Provider = (*Provider)(nil)

// Label identifies this provider's catalog for metrics.
func (p *Provider) Label() string {
	return fmt.Sprintf("%s/%s", p.cfg.URL, p.cfg.Org)
}

type repo struct {
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	SSHURL      string `json:"ssh_url"`
	CloneURL    string `json:"clone_url"`
}

// Enumerate fetches every repository in the configured organization and
// parses each one's description into a provider.Entry.
func (p *Provider) Enumerate(ctx context.Context) ([]provider.Entry, error) {
	var entries []provider.Entry

	baseURL := fmt.Sprintf("%s/orgs/%s/repos", p.cfg.URL, p.cfg.Org)

	for page := uint32(1); page < math.MaxUint32; page++ {
		pageURL := fmt.Sprintf("%s?per_page=%d&page=%d", baseURL, perPage, page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to build request for %s: %w", pageURL, err)
		}
		req.Header.Set("User-Agent", p.cfg.UserAgent)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if p.cfg.PrivateToken != "" {
			req.Header.Set("Authorization", "Bearer "+p.cfg.PrivateToken)
		} else {
			p.cfg.Log.Warn("PRIVATE_TOKEN not set")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to %s: %w", pageURL, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to read response body from %s: %w", pageURL, err)
		}

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("API call received unauthorized (%d) for %s; set the PRIVATE_TOKEN environment variable", resp.StatusCode, pageURL)
			}
			return nil, fmt.Errorf("API call received invalid status (%d) for %s", resp.StatusCode, pageURL)
		}

		var repos []repo
		if err := json.Unmarshal(body, &repos); err != nil {
			return nil, fmt.Errorf("unable to parse response as JSON (%w)", err)
		}

		for _, r := range repos {
			entries = append(entries, provider.ParseDescription(
				r.HTMLURL, r.Description, p.cfg.UseHTTP, r.SSHURL, r.CloneURL,
			))
		}

		if len(repos) < perPage {
			break
		}
	}

	return entries, nil
}
