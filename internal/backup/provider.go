package backup

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// UploadInput names the bytes to place at an object key.
type UploadInput struct {
	ObjectKey   string
	ContentType string
	Body        []byte
}

// UploadResult reports the storage-side address of the uploaded object.
type UploadResult struct {
	Provider ProviderType
	Location string
}

// Provider uploads named bytes to a named location in a remote object store.
// MissingEnv is the cheap "is this configured" check: it names absent
// credential variables without touching the network.
type Provider interface {
	Type() ProviderType
	MissingEnv() []string
	Upload(ctx context.Context, input UploadInput) (UploadResult, error)
}

// snapshotFolder derives the run's folder name from its start instant, with
// colons and periods replaced so the name stays filesystem- and URL-safe.
func snapshotFolder(startedAt string) string {
	replacer := strings.NewReplacer(":", "-", ".", "-")
	return "nodewarden-backup-" + replacer.Replace(startedAt)
}

// objectKey prefixes a file name with the normalized path prefix, if any.
func objectKey(pathPrefix *string, fileName string) string {
	if pathPrefix == nil || *pathPrefix == "" {
		return fileName
	}
	return *pathPrefix + "/" + fileName
}

// encodePathSegment percent-encodes one path segment per RFC 3986, leaving
// only unreserved characters bare.
func encodePathSegment(segment string) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	var b strings.Builder
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// joinURLPath appends relativePath's segments to baseURL's path, encoding each
// segment and dropping any query or fragment.
func joinURLPath(baseURL, relativePath string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	var segments []string
	for _, seg := range strings.Split(parsed.EscapedPath(), "/") {
		if seg != "" {
			decoded, err := url.PathUnescape(seg)
			if err != nil {
				return "", fmt.Errorf("parse base url path: %w", err)
			}
			segments = append(segments, decoded)
		}
	}
	for _, seg := range strings.Split(relativePath, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	encoded := make([]string, len(segments))
	for i, seg := range segments {
		encoded[i] = encodePathSegment(seg)
	}

	parsed.Path = ""
	parsed.RawPath = ""
	parsed.Opaque = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String() + "/" + strings.Join(encoded, "/"), nil
}
