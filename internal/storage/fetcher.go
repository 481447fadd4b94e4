package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"larder/internal/log"
	"larder/internal/metrics"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxBytes     = 10 << 20
	defaultExtension    = ".png"
)

// ErrTooLarge reports an image above the configured size cap.
var ErrTooLarge = errors.New("storage: image exceeds size limit")

// FetcherConfig describes how remote images are downloaded.
type FetcherConfig struct {
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
}

// Fetcher copies remote images into object storage.
type Fetcher struct {
	store      ObjectStorage
	httpClient *http.Client
	maxBytes   int64
}

// NewFetcher builds a Fetcher that uploads into store.
func NewFetcher(store ObjectStorage, cfg FetcherConfig) (*Fetcher, error) {
	if store == nil {
		return nil, errors.New("storage: fetcher requires object storage")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Fetcher{store: store, httpClient: httpClient, maxBytes: maxBytes}, nil
}

// Store returns the storage the fetcher uploads into.
func (f *Fetcher) Store() ObjectStorage {
	return f.store
}

// Fetch downloads rawURL and stores it under a fresh key. An empty key
// and nil error are returned when the source is unreachable, answers
// with a non-2xx status or sends more than the size cap. Upload failures
// are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Warn(ctx, "image url rejected", "url", rawURL, "error", err)
		metrics.ImageFetches.WithLabelValues(metrics.OutcomeUnreachable).Inc()
		return "", nil
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Warn(ctx, "image download failed", "url", rawURL, "error", err)
		metrics.ImageFetches.WithLabelValues(metrics.OutcomeUnreachable).Inc()
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn(ctx, "image download failed", "url", rawURL, "status", resp.StatusCode)
		metrics.ImageFetches.WithLabelValues(metrics.OutcomeUnreachable).Inc()
		return "", nil
	}

	body, err := f.read(resp.Body)
	if err != nil {
		log.Warn(ctx, "image download failed", "url", rawURL, "error", err)
		outcome := metrics.OutcomeUnreachable
		if errors.Is(err, ErrTooLarge) {
			outcome = metrics.OutcomeRejected
		}
		metrics.ImageFetches.WithLabelValues(outcome).Inc()
		return "", nil
	}

	contentType := resp.Header.Get("Content-Type")
	key := uuid.NewString() + extension(contentType)
	if err := f.store.Upload(ctx, key, body, contentType); err != nil {
		metrics.ImageFetches.WithLabelValues(metrics.OutcomeFailed).Inc()
		return "", fmt.Errorf("store image %s: %w", rawURL, err)
	}

	log.Debug(ctx, "image stored", "url", rawURL, "key", key, "bytes", len(body))
	metrics.ImageFetches.WithLabelValues(metrics.OutcomeStored).Inc()
	return key, nil
}

func (f *Fetcher) read(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultExtension
	}
	if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return defaultExtension
}
