package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

var imageClient = &http.Client{Timeout: 30 * time.Second}

// FetchImageBase64 downloads an image reference and returns it base64 encoded
// for providers that require inlined image content rather than a URL.
func FetchImageBase64(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := imageClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", url, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
