// Package githost provides git-repository-as-storage backends. Objects are
// committed through the host's contents API (base64 payload, one commit per
// upload) and read back as raw content. The GitHub variant authenticates
// reads through the API, which is more reliable than the raw CDN for large
// files; the Gitee variant reads the public raw URL anonymously.
package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/yuhuotech/pixelhub/internal/retry"
	"github.com/yuhuotech/pixelhub/internal/storage/transport"
)

const userAgent = "PixelHub"

// Config holds repository coordinates and the write token.
type Config struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
}

// hostClient carries what both variants share: an HTTP client and the
// bounded write retry policy.
type hostClient struct {
	cfg        Config
	httpc      *http.Client
	writeRetry retry.Config
}

func newHostClient(cfg Config, defaultBranch string) hostClient {
	if cfg.Branch == "" {
		cfg.Branch = defaultBranch
	}
	return hostClient{
		cfg:        cfg,
		httpc:      &http.Client{},
		writeRetry: retry.WritePolicy(),
	}
}

// putCommit sends one create-file request, retrying under the write
// policy. The request body is rebuilt per attempt.
func (c *hostClient) putCommit(ctx context.Context, method, url string, payload map[string]string, header http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal commit payload: %w", err)
	}

	return retry.Do(ctx, c.writeRetry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build commit request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("commit request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("commit rejected: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
		}
		return nil
	})
}

// fetchRaw performs a single GET and hands back the body stream. Reads are
// not retried here.
func (c *hostClient) fetchRaw(ctx context.Context, url string, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch: %w", &transport.StatusError{Status: resp.StatusCode})
	}
	return resp.Body, nil
}

func encodeBody(body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// commitMessage names the commit after the uploaded file. Keys embed a
// millisecond timestamp before the original name; strip it so the commit
// log reads like the user's upload history.
func commitMessage(key string) string {
	name := path.Base(key)
	if i := strings.IndexByte(name, '-'); i > 0 && allDigits(name[:i]) {
		name = name[i+1:]
	}
	return fmt.Sprintf("Upload %s via PixelHub", name)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GitHub commits objects through the GitHub contents API.
type GitHub struct {
	hostClient
	apiBase string
}

// NewGitHub creates a GitHub backend. The branch defaults to main.
func NewGitHub(cfg Config) *GitHub {
	return &GitHub{
		hostClient: newHostClient(cfg, "main"),
		apiBase:    "https://api.github.com",
	}
}

func (g *GitHub) contentsURL(key string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.apiBase, g.cfg.Owner, g.cfg.Repo, key)
}

// Put creates the file with a single commit on the configured branch.
func (g *GitHub) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	content, err := encodeBody(body)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.cfg.Token)
	header.Set("Content-Type", "application/json")

	return g.putCommit(ctx, http.MethodPut, g.contentsURL(key), map[string]string{
		"message": commitMessage(key),
		"content": content,
		"branch":  g.cfg.Branch,
	}, header)
}

// Open fetches raw content through the API, requesting raw media
// negotiation explicitly rather than following the CDN redirect.
func (g *GitHub) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s?ref=%s", g.contentsURL(key), g.cfg.Branch)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.cfg.Token)
	header.Set("Accept", "application/vnd.github.v3.raw")
	return g.fetchRaw(ctx, url, header)
}

// Type returns "github".
func (g *GitHub) Type() string { return "github" }

// Gitee commits objects through the Gitee v5 contents API. Gitee passes
// the token in the request body rather than a header, and public raw
// content needs no authentication at all.
type Gitee struct {
	hostClient
	apiBase string
	rawBase string
}

// NewGitee creates a Gitee backend. The branch defaults to master.
func NewGitee(cfg Config) *Gitee {
	return &Gitee{
		hostClient: newHostClient(cfg, "master"),
		apiBase:    "https://gitee.com/api/v5",
		rawBase:    "https://gitee.com",
	}
}

// Put creates the file with a single commit on the configured branch.
func (g *Gitee) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	content, err := encodeBody(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.apiBase, g.cfg.Owner, g.cfg.Repo, key)
	header := http.Header{}
	header.Set("Content-Type", "application/json;charset=UTF-8")

	return g.putCommit(ctx, http.MethodPost, url, map[string]string{
		"access_token": g.cfg.Token,
		"message":      commitMessage(key),
		"content":      content,
		"branch":       g.cfg.Branch,
	}, header)
}

// Open fetches the public raw-content URL.
func (g *Gitee) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s/%s/raw/%s/%s", g.rawBase, g.cfg.Owner, g.cfg.Repo, g.cfg.Branch, key)
	return g.fetchRaw(ctx, url, nil)
}

// Type returns "gitee".
func (g *Gitee) Type() string { return "gitee" }
