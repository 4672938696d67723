package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultDownloadTimeout bounds a single document download.
const DefaultDownloadTimeout = 2 * time.Minute

// HTTPFetcher downloads documents over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
	logger *slog.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher whose requests are bounded by timeout.
func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch streams url into a temporary file next to dest and renames it into place,
// so a failed download never leaves a partial file at dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %s", ErrDownloadFailed, url, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	f.logger.Debug("downloaded document", "url", url, "path", dest, "bytes", n)
	return nil
}
