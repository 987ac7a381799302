// Package blob uploads receipt images to the storage service.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/duetrack/duetrack/internal/retry"
)

// Uploader stores a blob and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// HTTPUploader PUTs blobs to the storage service. Transient failures are
// retried; client errors are not, a blob the service refuses once it will
// refuse again.
type HTTPUploader struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Uploader = (*HTTPUploader)(nil)

func NewHTTPUploader(baseURL, token string) *HTTPUploader {
	return &HTTPUploader{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	var url string
	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		var attemptErr error
		url, attemptErr = u.upload(ctx, name, data, contentType)
		return attemptErr
	})
	return url, err
}

func (u *HTTPUploader) upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		u.baseURL+"/blobs/"+name, bytes.NewReader(data))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", retry.Permanent(fmt.Errorf("upload %s: status %d: %s", name, resp.StatusCode, body))
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("upload %s: status %d", name, resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload %s: decode response: %w", name, err)
	}
	return out.URL, nil
}

// MemoryUploader collects uploads in memory for tests.
type MemoryUploader struct {
	Blobs map[string][]byte
	// Err, when set, is returned by every Upload.
	Err error
}

var _ Uploader = (*MemoryUploader)(nil)

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{Blobs: make(map[string][]byte)}
}

func (u *MemoryUploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if u.Err != nil {
		return "", u.Err
	}
	u.Blobs[name] = data
	return "memory://" + name, nil
}
