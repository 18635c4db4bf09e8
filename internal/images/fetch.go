// Package images downloads remote images for inlining, with an optional
// on-disk cache.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jcdickinson/kbpress/internal/cas"
)

const (
	userAgent = "kbpress/0.1.0"

	// MaxSize caps the bytes read for a single image.
	MaxSize = 32 << 20
)

type Fetcher struct {
	httpClient *http.Client
	cache      *cas.Store
	log        *slog.Logger
}

// NewFetcher returns a fetcher. cache may be nil to always download.
func NewFetcher(cache *cas.Store, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      cache,
		log:        log,
	}
}

// Fetch returns the image at url and its sniffed content type.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.cache != nil {
		data, err := f.cache.Lookup(url)
		if err == nil {
			return data, http.DetectContentType(data), nil
		}
		if !errors.Is(err, cas.ErrNoRef) {
			f.log.Warn("image cache read failed", "url", url, "error", err)
		}
	}

	data, err := f.download(ctx, url)
	if err != nil {
		return nil, "", err
	}

	if f.cache != nil {
		if err := f.store(url, data); err != nil {
			f.log.Warn("image cache write failed", "url", url, "error", err)
		}
	}
	return data, http.DetectContentType(data), nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", url, MaxSize)
	}
	return data, nil
}

func (f *Fetcher) store(url string, data []byte) error {
	hash, err := f.cache.Write(data)
	if err != nil {
		return err
	}
	return f.cache.Link(url, hash)
}
