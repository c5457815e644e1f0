// ABOUTME: HTTP transport for remote assets addressed by integer id
// ABOUTME: Maps transport, status and body failures onto the asset error taxonomy

package assetcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Fetcher retrieves the raw bytes of an asset.
// Implementations must honour ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, id int) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id int) ([]byte, error)

// Fetch calls f(ctx, id).
func (f FetcherFunc) Fetch(ctx context.Context, id int) ([]byte, error) {
	return f(ctx, id)
}

// HTTPFetcher downloads assets from BaseURL + "modelo<N>.glb".
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{BaseURL: baseURL, Client: client}
}

// URL returns the remote location of an asset.
func (f *HTTPFetcher) URL(id int) (string, error) {
	u, err := url.JoinPath(f.BaseURL, Filename(id))
	if err != nil {
		return "", fmt.Errorf("building asset url: %w", err)
	}
	return u, nil
}

// Fetch downloads the asset. The request is bound to ctx, so a cancelled or
// expired context aborts the transfer.
func (f *HTTPFetcher) Fetch(ctx context.Context, id int) ([]byte, error) {
	u, err := f.URL(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrNetworkFailure, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrNetworkFailure, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: reading body: %v", ErrNetworkTimeout, err)
		}
		return nil, fmt.Errorf("%w: reading body: %v", ErrDecodeFailure, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecodeFailure)
	}

	return data, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
