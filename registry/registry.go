// Package registry fetches npm packuments and tarballs from a registry
// over HTTP: bounded redirects, a conventional user-agent, separate
// timeouts for metadata and tarball fetches, and no on-disk packument
// caching (callers that want a per-resolve cache own that themselves;
// see the resolve package).
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://registry.npmjs.org"
	userAgent       = "icode-core/1 (+https://github.com/a-h/icode)"
	maxRedirects    = 5
	metadataTimeout = 30 * time.Second
	tarballTimeout  = 60 * time.Second
)

// ErrNotFound is returned when the registry reports the package or
// version does not exist.
var ErrNotFound = fmt.Errorf("package not found")

// Client fetches packuments and tarballs from a single npm-compatible
// registry.
type Client struct {
	log     *slog.Logger
	baseURL string

	metadataClient *http.Client
	tarballClient  *http.Client
}

// New constructs a Client. baseURL defaults to the public npm registry
// when empty.
func New(log *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		log:            log,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		metadataClient: newHTTPClient(metadataTimeout),
		tarballClient:  newHTTPClient(tarballTimeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// packagePath percent-encodes a package name for use as a registry path
// segment, preserving a leading scope's "@" exactly as the registry
// expects (scoped names are requested as "/@scope%2Fname", i.e. the slash
// inside the scope is what gets encoded, not the leading "@").
func packagePath(name string) string {
	if strings.HasPrefix(name, "@") {
		scope, rest, ok := strings.Cut(name, "/")
		if ok {
			return url.PathEscape(scope) + "%2F" + url.PathEscape(rest)
		}
	}
	return url.PathEscape(name)
}

// FetchPackument retrieves the abbreviated packument for name.
func (c *Client) FetchPackument(ctx context.Context, name string) (Packument, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/%s", c.baseURL, packagePath(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Packument{}, fmt.Errorf("build packument request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json, application/json")

	resp, err := c.metadataClient.Do(req)
	if err != nil {
		return Packument{}, fmt.Errorf("fetch packument %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Packument{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return Packument{}, fmt.Errorf("fetch packument %s: HTTP %d", name, resp.StatusCode)
	}

	var p Packument
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Packument{}, fmt.Errorf("decode packument %s: %w", name, err)
	}
	return p, nil
}

// DownloadTarball fetches the full contents of a tarball URL into memory.
// Callers pass the result to the archive package for extraction.
func (c *Client) DownloadTarball(ctx context.Context, tarballURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, tarballTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build tarball request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.tarballClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download tarball %s: %w", tarballURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", tarballURL, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download tarball %s: HTTP %d", tarballURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tarball %s: %w", tarballURL, err)
	}
	return data, nil
}
