package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// IsURL reports whether src names an http(s) resource rather than a file.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetch returns the bytes of a local file or an http(s) URL. There is no
// retry; a non-2xx response is an error.
func Fetch(ctx context.Context, client *http.Client, src string) ([]byte, error) {
	if !IsURL(src) {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		return data, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", src, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", src, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", src, err)
	}
	return data, nil
}
