package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

// Downloader fetches resolved read URLs with a hard size cap, so a
// misbehaving upload cannot exhaust worker memory.
type Downloader struct {
	client      *http.Client
	maxBodySize int64
	logger      arbor.ILogger
}

// NewDownloader creates a downloader capped at maxBodySize bytes per fetch.
func NewDownloader(maxBodySize int64, logger arbor.ILogger) *Downloader {
	if maxBodySize <= 0 {
		maxBodySize = 50 * 1024 * 1024
	}
	return &Downloader{
		client:      &http.Client{Timeout: 60 * time.Second},
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Download fetches the URL and returns the body.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	if int64(len(body)) > d.maxBodySize {
		return nil, fmt.Errorf("download exceeds size limit of %d bytes", d.maxBodySize)
	}

	d.logger.Debug().Int("bytes", len(body)).Msg("Download complete")
	return body, nil
}
