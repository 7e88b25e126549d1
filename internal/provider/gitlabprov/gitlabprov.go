// Package gitlabprov implements provider.Provider for a GitLab-style forge:
// a group identifier, optionally walked recursively through its subgroups,
// each contributing its own paginated project list.
package gitlabprov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/k8scat/git-mirror/internal/provider"
)

const perPage = 100

// Config configures one GitLab group provider instance.
type Config struct {
	URL          string // e.g. https://gitlab.com
	Group        string // group id or path
	PrivateToken string // optional; empty means unauthenticated
	UseHTTP      bool   // clone via HTTP instead of SSH
	Recursive    bool   // walk subgroups
	Log          *slog.Logger
}

// Provider implements provider.Provider against a GitLab group.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New builds a GitLab group provider.
func New(cfg Config) *Provider {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

var _ provider.Provider = (*Provider)(nil)

// Label identifies this provider's catalog for metrics.
func (p *Provider) Label() string {
	return fmt.Sprintf("%s/%s", p.cfg.URL, p.cfg.Group)
}

// Enumerate discovers the group's (and, if Recursive, its subgroups')
// projects and parses each project's description into a provider.Entry.
func (p *Provider) Enumerate(ctx context.Context) ([]provider.Entry, error) {
	groups := []string{p.cfg.Group}
	if p.cfg.Recursive {
		sub, err := p.subgroups(ctx, p.cfg.Group)
		if err != nil {
			p.cfg.Log.Warn("unable to get subgroups, falling back to root group", "group", p.cfg.Group, "error", err)
		} else {
			groups = sub
		}
	}

	var entries []provider.Entry
	for _, group := range groups {
		projects, err := p.projects(ctx, group)
		if err != nil {
			return nil, err
		}
		for _, proj := range projects {
			entries = append(entries, provider.ParseDescription(
				proj.WebURL, proj.Description, p.cfg.UseHTTP, proj.SSHURLToRepo, proj.HTTPURLToRepo,
			))
		}
	}
	return entries, nil
}

type project struct {
	Description   string `json:"description"`
	WebURL        string `json:"web_url"`
	SSHURLToRepo  string `json:"ssh_url_to_repo"`
	HTTPURLToRepo string `json:"http_url_to_repo"`
}

// subgroups returns id (as a path-usable identifier) recursively, starting
// at id, walking every descendant subgroup.
func (p *Provider) subgroups(ctx context.Context, id string) ([]string, error) {
	url := fmt.Sprintf("%s/api/v4/groups/%s/subgroups", p.cfg.URL, id)
	body, err := p.getAllPages(ctx, url)
	if err != nil {
		return nil, err
	}

	ids := []string{id}
	for _, page := range body {
		for _, g := range gjson.ParseBytes(page).Array() {
			childID := g.Get("id").String()
			if childID == "" {
				continue
			}
			grandchildren, err := p.subgroups(ctx, childID)
			if err != nil {
				return nil, err
			}
			ids = append(ids, grandchildren...)
		}
	}
	return ids, nil
}

func (p *Provider) projects(ctx context.Context, group string) ([]project, error) {
	url := fmt.Sprintf("%s/api/v4/groups/%s/projects", p.cfg.URL, group)
	pages, err := p.getAllPages(ctx, url)
	if err != nil {
		return nil, err
	}

	var projects []project
	for _, page := range pages {
		var pageProjects []project
		if err := json.Unmarshal(page, &pageProjects); err != nil {
			return nil, fmt.Errorf("unable to parse response as JSON (%w)", err)
		}
		projects = append(projects, pageProjects...)
	}
	return projects, nil
}

// getAllPages pages through baseURL using per_page/page query parameters,
// terminating when the x-next-page response header is absent or empty.
// Bounded by math.MaxUint32 pages as required by spec.md §4.2.
func (p *Provider) getAllPages(ctx context.Context, baseURL string) ([][]byte, error) {
	var pages [][]byte

	for page := uint32(1); page < math.MaxUint32; page++ {
		pageURL := fmt.Sprintf("%s?per_page=%d&page=%d", baseURL, perPage, page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to build request for %s: %w", pageURL, err)
		}
		if p.cfg.PrivateToken != "" {
			req.Header.Set("PRIVATE-TOKEN", p.cfg.PrivateToken)
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

		pages = append(pages, body)

		next := resp.Header.Get("x-next-page")
		if next == "" {
			break
		}
	}

	return pages, nil
}
