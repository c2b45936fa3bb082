package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/compose-network/ibc-app-orchestrator/internal/infra/filesystem"
	"github.com/compose-network/ibc-app-orchestrator/internal/logger"
)

var ErrRegistryFetch = errors.New("failed to fetch registry")

const fetchTimeout = 10 * time.Second

// Fetcher loads the registry document either over HTTP or from a bundled file.
type Fetcher struct {
	client *http.Client
	reader filesystem.Reader
	logger *slog.Logger
}

func NewFetcher(reader filesystem.Reader) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
		},
		reader: reader,
		logger: logger.Named("registry"),
	}
}

// Load prefers url and falls back to the bundled file when url is empty.
func (f *Fetcher) Load(ctx context.Context, url, file string) (Document, error) {
	if url != "" {
		return f.Fetch(ctx, url)
	}
	if file != "" {
		return f.LoadFile(file)
	}
	return nil, fmt.Errorf("%w: neither url nor file is configured", ErrRegistryFetch)
}

// Fetch downloads the registry document from url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Document, error) {
	f.logger.With("url", url).Debug("fetching registry")

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrRegistryFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrRegistryFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrRegistryFetch, err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal registry: %v", ErrRegistryFetch, err)
	}

	f.logger.With("chains", len(doc)).Debug("registry fetched")

	return doc, nil
}

// LoadFile reads a registry document bundled with the deployment.
func (f *Fetcher) LoadFile(path string) (Document, error) {
	var doc Document
	if err := f.reader.ReadJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRegistryFetch, path, err)
	}

	f.logger.With("path", path, "chains", len(doc)).Debug("registry loaded from file")

	return doc, nil
}
