package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"
)

// Gist stores blobs as files inside a single gist-like HTTP resource. The
// API shape is the GitHub gist one: GET returns the whole file set, PATCH
// replaces individual files. One gist holds one blog.
type Gist struct {
	apiBase string
	gistID  string
	token   string
	client  *http.Client
}

// NewGist returns a gist-backed store. The token is sent as a bearer
// credential on every request; the transport owns its own auth, the sync
// engine never sees it.
func NewGist(opts Options) *Gist {
	base := opts.GistAPIBase
	if base == "" {
		base = "https://api.github.com"
	}
	return &Gist{
		apiBase: base,
		gistID:  opts.GistID,
		token:   opts.GistToken,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type gistFile struct {
	Content string `json:"content"`
}

type gistPayload struct {
	Files     map[string]gistFile `json:"files"`
	UpdatedAt time.Time           `json:"updated_at,omitempty"`
}

func (g *Gist) Read(ctx context.Context, p string) ([]byte, error) {
	payload, err := g.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	file, ok := payload.Files[path.Base(p)]
	if !ok {
		return nil, nil
	}
	return []byte(file.Content), nil
}

func (g *Gist) Write(ctx context.Context, p string, data []byte) error {
	body, err := json.Marshal(gistPayload{
		Files: map[string]gistFile{path.Base(p): {Content: string(data)}},
	})
	if err != nil {
		return fmt.Errorf("encoding gist update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, g.url(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	g.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("updating gist %s: %w", g.gistID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("updating gist %s: unexpected status %s", g.gistID, resp.Status)
	}
	return nil
}

func (g *Gist) List(ctx context.Context, _ string) ([]string, error) {
	payload, err := g.fetch(ctx)
	if err != nil || payload == nil {
		return nil, err
	}
	paths := make([]string, 0, len(payload.Files))
	for name := range payload.Files {
		paths = append(paths, name)
	}
	return paths, nil
}

func (g *Gist) LastModified(ctx context.Context, _ string) (time.Time, error) {
	payload, err := g.fetch(ctx)
	if err != nil || payload == nil {
		return time.Time{}, err
	}
	return payload.UpdatedAt.UTC(), nil
}

// fetch retrieves the whole gist. A 404 means the gist (and so every blob
// in it) does not exist yet, which is not an error.
func (g *Gist) fetch(ctx context.Context) (*gistPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url(), nil)
	if err != nil {
		return nil, err
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching gist %s: %w", g.gistID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching gist %s: unexpected status %s", g.gistID, resp.Status)
	}

	var payload gistPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding gist %s: %w", g.gistID, err)
	}
	return &payload, nil
}

func (g *Gist) url() string {
	return fmt.Sprintf("%s/gists/%s", g.apiBase, g.gistID)
}

func (g *Gist) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}
