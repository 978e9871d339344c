package backup

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebDAVConfig holds the WebDAV provider credentials, read from the
// BACKUP_WEBDAV_* environment variables.
type WebDAVConfig struct {
	URL      string
	Username string
	Password string
}

// WebDAVProvider uploads over plain HTTP with Basic auth. Destination
// directories are created with MKCOL before the final PUT.
type WebDAVProvider struct {
	cfg    WebDAVConfig
	client *http.Client
}

func NewWebDAVProvider(cfg WebDAVConfig) *WebDAVProvider {
	return &WebDAVProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 5 * time.Minute,
			// A redirect on MKCOL means the collection exists; surface the
			// 301/302 instead of chasing it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (p *WebDAVProvider) Type() ProviderType { return ProviderWebDAV }

func (p *WebDAVProvider) MissingEnv() []string {
	var missing []string
	if strings.TrimSpace(p.cfg.URL) == "" {
		missing = append(missing, "BACKUP_WEBDAV_URL")
	}
	if strings.TrimSpace(p.cfg.Username) == "" {
		missing = append(missing, "BACKUP_WEBDAV_USERNAME")
	}
	if strings.TrimSpace(p.cfg.Password) == "" {
		missing = append(missing, "BACKUP_WEBDAV_PASSWORD")
	}
	return missing
}

func (p *WebDAVProvider) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	baseURL := strings.TrimSpace(p.cfg.URL)

	var segments []string
	for _, seg := range strings.Split(input.ObjectKey, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return UploadResult{}, fmt.Errorf("webdav: empty object key")
	}
	dirSegments := segments[:len(segments)-1]

	// Walk the directory segments left to right; an existing collection
	// answers MKCOL with 405 (or a redirect), which counts as success.
	currentPath := ""
	for _, segment := range dirSegments {
		if currentPath == "" {
			currentPath = segment
		} else {
			currentPath = currentPath + "/" + segment
		}
		mkcolURL, err := joinURLPath(baseURL, currentPath)
		if err != nil {
			return UploadResult{}, fmt.Errorf("webdav: %w", err)
		}
		if err := p.mkcol(ctx, mkcolURL); err != nil {
			return UploadResult{}, err
		}
	}

	uploadURL, err := joinURLPath(baseURL, strings.Join(segments, "/"))
	if err != nil {
		return UploadResult{}, fmt.Errorf("webdav: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(input.Body))
	if err != nil {
		return UploadResult{}, fmt.Errorf("webdav: build PUT request: %w", err)
	}
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	req.Header.Set("Content-Type", input.ContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("webdav: upload: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadResult{}, fmt.Errorf("webdav upload failed (%d)", resp.StatusCode)
	}

	return UploadResult{Provider: ProviderWebDAV, Location: uploadURL}, nil
}

func (p *WebDAVProvider) mkcol(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, "MKCOL", url, nil)
	if err != nil {
		return fmt.Errorf("webdav: build MKCOL request: %w", err)
	}
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webdav: mkcol: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusMethodNotAllowed,
		resp.StatusCode == http.StatusMovedPermanently,
		resp.StatusCode == http.StatusFound:
		// Collection already exists.
		return nil
	default:
		return fmt.Errorf("webdav MKCOL failed (%d)", resp.StatusCode)
	}
}
