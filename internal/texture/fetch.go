package texture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrHTML     = errors.New("response is an HTML page")
	ErrTooLarge = errors.New("image too large")
)

// FetchError is returned when the remote server answers with a non-2xx status.
type FetchError struct {
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("image_fetch_failed_%d", e.StatusCode)
}

// Fetcher downloads remote images.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewFetcher returns a Fetcher with the given timeout and body limit.
// Redirects are followed with the default policy.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{},
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// Fetch downloads url.
// A non-2xx status is a *FetchError; an HTML body is ErrHTML.
// A download exceeding the timeout fails with context.DeadlineExceeded.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("texture.Fetch: %w", err)
	}
	req.Header.Set("Accept", "image/png,image/jpeg,image/webp,image/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("texture.Fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("texture.Fetch: %w", err)
	}
	if int64(len(b)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	if looksLikeHTML(b) {
		return nil, ErrHTML
	}

	return b, nil
}
