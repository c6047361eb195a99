package npm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/stackfix/pkg/cache"
	"github.com/matzehuels/stackfix/pkg/integrations"
	"github.com/matzehuels/stackfix/pkg/semver"
)

const (
	// DefaultRegistryURL is the public npm registry.
	DefaultRegistryURL = "https://registry.npmjs.org"

	// DefaultDownloadsURL serves download statistics.
	DefaultDownloadsURL = "https://api.npmjs.org"

	// MaxReadme bounds the readme text kept in cached metadata.
	MaxReadme = 16 << 10
)

// PackageInfo is the subset of a registry packument stackfix needs.
type PackageInfo struct {
	Name        string            `json:"name"`
	Versions    []string          `json:"versions"` // ascending
	Latest      string            `json:"latest"`
	DistTags    map[string]string `json:"dist_tags,omitempty"`
	Modified    time.Time         `json:"modified"`
	Readme      string            `json:"readme,omitempty"`
	Deprecated  string            `json:"deprecated,omitempty"` // of the latest version
	Repository  string            `json:"repository,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Maintainers int               `json:"maintainers"`
}

// HasVersion reports whether v is a published version.
func (p *PackageInfo) HasVersion(v string) bool {
	return semver.Contains(p.Versions, v)
}

// VersionInfo holds the dependency data of one published version.
type VersionInfo struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
	OptionalPeers    []string          `json:"optional_peers,omitempty"`
	Deprecated       string            `json:"deprecated,omitempty"`
}

// Client fetches metadata from an npm-compatible registry.
type Client struct {
	*integrations.Client
	baseURL      string
	downloadsURL string
}

// NewClient creates a registry client. An empty baseURL uses the public
// registry. Responses are cached in c for [cache.TTLMeta].
func NewClient(c cache.Cache, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	return &Client{
		Client:       integrations.NewClient(c, "", cache.TTLMeta, map[string]string{"Accept": "application/json"}),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		downloadsURL: DefaultDownloadsURL,
	}
}

// WithDownloadsURL overrides the download statistics endpoint and returns c.
func (c *Client) WithDownloadsURL(u string) *Client {
	c.downloadsURL = strings.TrimSuffix(u, "/")
	return c
}

// BaseURL returns the registry URL.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchPackage returns metadata for name, read through the cache under
// [cache.MetaKey]. A missing package wraps [integrations.ErrNotFound].
func (c *Client) FetchPackage(ctx context.Context, name string, refresh bool) (*PackageInfo, error) {
	name = strings.TrimSpace(name)

	var info PackageInfo
	err := c.Cached(ctx, cache.MetaKey(name), refresh, &info, func() error {
		return c.fetch(ctx, name, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Versions returns every published version of name in ascending order.
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	info, err := c.FetchPackage(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return info.Versions, nil
}

// VersionExists reports whether name@version is published. A missing
// package is reported as false without error.
func (c *Client) VersionExists(ctx context.Context, name, version string) (bool, error) {
	info, err := c.FetchPackage(ctx, name, false)
	if errors.Is(err, integrations.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.HasVersion(version), nil
}

// FetchVersion returns the dependency data of name@version.
func (c *Client) FetchVersion(ctx context.Context, name, version string) (*VersionInfo, error) {
	var info VersionInfo
	err := c.Cached(ctx, cache.MetaKey(name+"@"+version), false, &info, func() error {
		var raw versionDetails
		url := c.baseURL + "/" + integrations.PathEscape(name) + "/" + version
		if err := c.Get(ctx, url, &raw); err != nil {
			if errors.Is(err, integrations.ErrNotFound) {
				return fmt.Errorf("%w: npm package %s@%s", err, name, version)
			}
			return err
		}
		info = VersionInfo{
			Name:             raw.Name,
			Version:          raw.Version,
			Dependencies:     raw.Dependencies,
			PeerDependencies: raw.PeerDependencies,
			Deprecated:       deprecation(raw.Deprecated),
		}
		for peer, meta := range raw.PeerDependenciesMeta {
			if meta.Optional {
				info.OptionalPeers = append(info.OptionalPeers, peer)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchDownloads returns the package's download count for the last week.
func (c *Client) FetchDownloads(ctx context.Context, name string) (int, error) {
	var resp struct {
		Downloads int `json:"downloads"`
	}
	err := c.Cached(ctx, "downloads:"+name, false, &resp, func() error {
		return c.Get(ctx, c.downloadsURL+"/downloads/point/last-week/"+name, &resp)
	})
	if err != nil {
		return 0, err
	}
	return resp.Downloads, nil
}

func (c *Client) fetch(ctx context.Context, name string, info *PackageInfo) error {
	var data registryResponse
	if err := c.Get(ctx, c.baseURL+"/"+integrations.PathEscape(name), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s", err, name)
		}
		return err
	}

	versions := make([]string, 0, len(data.Versions))
	for v := range data.Versions {
		versions = append(versions, v)
	}
	semver.Sort(versions)

	latest := data.DistTags["latest"]
	if latest == "" {
		latest = semver.Max(versions)
	}

	readme := data.Readme
	if len(readme) > MaxReadme {
		readme = readme[:MaxReadme]
	}

	*info = PackageInfo{
		Name:        data.Name,
		Versions:    versions,
		Latest:      latest,
		DistTags:    data.DistTags,
		Readme:      readme,
		Deprecated:  deprecation(data.Versions[latest].Deprecated),
		Repository:  extractField(data.Repository, "url"),
		Keywords:    data.Keywords,
		Maintainers: len(data.Maintainers),
	}
	if ts, ok := data.Time["modified"]; ok {
		info.Modified, _ = time.Parse(time.RFC3339, ts)
	}
	return nil
}

func deprecation(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case bool:
		if d {
			return "deprecated"
		}
	}
	return ""
}

func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

type registryResponse struct {
	Name        string                    `json:"name"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]versionDetails `json:"versions"`
	Time        map[string]string         `json:"time"`
	Readme      string                    `json:"readme"`
	Repository  any                       `json:"repository"`
	Keywords    []string                  `json:"keywords"`
	Maintainers []any                     `json:"maintainers"`
}

type versionDetails struct {
	Name                 string              `json:"name"`
	Version              string              `json:"version"`
	Dependencies         map[string]string   `json:"dependencies"`
	PeerDependencies     map[string]string   `json:"peerDependencies"`
	PeerDependenciesMeta map[string]peerMeta `json:"peerDependenciesMeta"`
	Deprecated           any                 `json:"deprecated"`
}

type peerMeta struct {
	Optional bool `json:"optional"`
}
