package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPStorage uploads files to an object store that answers {"publicUrl": "..."}.
type HTTPStorage struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPStorage(baseURL, token string, timeout time.Duration) *HTTPStorage {
	return &HTTPStorage{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPStorage) Upload(ctx context.Context, path string, file LocalFile) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(file.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	mime := file.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mime)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: %s body=%s", ErrUpload, resp.Status, body)
	}

	var out struct {
		PublicURL string `json:"publicUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	if out.PublicURL == "" {
		return "", fmt.Errorf("%w: empty public url", ErrUpload)
	}
	return out.PublicURL, nil
}
