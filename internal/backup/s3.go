package backup

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// S3Config holds the S3-compatible provider credentials, read from the
// BACKUP_S3_* environment variables. ForcePathStyle addresses the bucket as a
// path segment instead of a host label, for backends without virtual-hosted
// addressing.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool
}

// S3Provider PUTs objects with a hand-built AWS Signature Version 4: payload
// hash, canonical request, string-to-sign, and the four-stage HMAC key chain,
// with no SDK in the path.
type S3Provider struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

func NewS3Provider(cfg S3Config) *S3Provider {
	return &S3Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Minute},
		now:    time.Now,
	}
}

func (p *S3Provider) Type() ProviderType { return ProviderS3 }

func (p *S3Provider) MissingEnv() []string {
	var missing []string
	if strings.TrimSpace(p.cfg.Endpoint) == "" {
		missing = append(missing, "BACKUP_S3_ENDPOINT")
	}
	if strings.TrimSpace(p.cfg.Region) == "" {
		missing = append(missing, "BACKUP_S3_REGION")
	}
	if strings.TrimSpace(p.cfg.Bucket) == "" {
		missing = append(missing, "BACKUP_S3_BUCKET")
	}
	if strings.TrimSpace(p.cfg.AccessKeyID) == "" {
		missing = append(missing, "BACKUP_S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(p.cfg.SecretAccessKey) == "" {
		missing = append(missing, "BACKUP_S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (p *S3Provider) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	endpoint, err := url.Parse(strings.TrimSpace(p.cfg.Endpoint))
	if err != nil {
		return UploadResult{}, fmt.Errorf("s3: parse endpoint: %w", err)
	}
	region := strings.TrimSpace(p.cfg.Region)
	bucket := strings.TrimSpace(p.cfg.Bucket)
	sessionToken := strings.TrimSpace(p.cfg.SessionToken)

	var pathSegments []string
	for _, seg := range strings.Split(endpoint.EscapedPath(), "/") {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return UploadResult{}, fmt.Errorf("s3: parse endpoint path: %w", err)
		}
		pathSegments = append(pathSegments, decoded)
	}

	host := endpoint.Host
	if p.cfg.ForcePathStyle {
		pathSegments = append(pathSegments, bucket)
	} else {
		host = bucket + "." + host
	}
	for _, seg := range strings.Split(input.ObjectKey, "/") {
		if seg != "" {
			pathSegments = append(pathSegments, seg)
		}
	}

	encoded := make([]string, len(pathSegments))
	for i, seg := range pathSegments {
		encoded[i] = encodePathSegment(seg)
	}
	canonicalURI := "/" + strings.Join(encoded, "/")
	requestURL := endpoint.Scheme + "://" + host + canonicalURI

	payloadHash := sha256Hex(input.Body)
	amzDate, dateStamp := amzTimestamps(p.now().UTC())
	scope := dateStamp + "/" + region + "/s3/aws4_request"

	headers := [][2]string{
		{"content-type", input.ContentType},
		{"host", host},
		{"x-amz-content-sha256", payloadHash},
		{"x-amz-date", amzDate},
	}
	if sessionToken != "" {
		headers = append(headers, [2]string{"x-amz-security-token", sessionToken})
	}

	canonical, signedHeaders := canonicalRequest(http.MethodPut, canonicalURI, headers, payloadHash)
	toSign := stringToSign(amzDate, scope, canonical)
	key := signingKey(p.cfg.SecretAccessKey, dateStamp, region)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(toSign)))

	authorization := fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		strings.TrimSpace(p.cfg.AccessKeyID), scope, signedHeaders, signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, requestURL, bytes.NewReader(input.Body))
	if err != nil {
		return UploadResult{}, fmt.Errorf("s3: build request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Content-Type", input.ContentType)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("X-Amz-Date", amzDate)
	if sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", sessionToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("s3: upload: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadResult{}, fmt.Errorf("s3 upload failed (%d)", resp.StatusCode)
	}

	return UploadResult{
		Provider: ProviderS3,
		Location: fmt.Sprintf("s3://%s/%s", bucket, input.ObjectKey),
	}, nil
}

// amzTimestamps renders the instant as the SigV4 basic-format timestamp and
// its date stamp, e.g. "20260829T120000Z" and "20260829".
func amzTimestamps(now time.Time) (amzDate, dateStamp string) {
	amzDate = now.Format("20060102T150405Z")
	return amzDate, amzDate[:8]
}

// canonicalRequest assembles the SigV4 canonical request for a PUT with no
// query string. Header names must already be lower-case; they are sorted here
// and also returned as the semicolon-joined signed-header list.
func canonicalRequest(method, canonicalURI string, headers [][2]string, payloadHash string) (request, signedHeaders string) {
	sorted := make([][2]string, len(headers))
	copy(sorted, headers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })

	var canonicalHeaders strings.Builder
	names := make([]string, len(sorted))
	for i, h := range sorted {
		canonicalHeaders.WriteString(h[0])
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(strings.TrimSpace(h[1]))
		canonicalHeaders.WriteString("\n")
		names[i] = h[0]
	}
	signedHeaders = strings.Join(names, ";")

	request = strings.Join([]string{
		method,
		canonicalURI,
		"",
		canonicalHeaders.String(),
		signedHeaders,
		payloadHash,
	}, "\n")
	return request, signedHeaders
}

func stringToSign(amzDate, scope, canonicalRequest string) string {
	return strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")
}

// signingKey derives the SigV4 key via the four-stage HMAC-SHA256 chain.
func signingKey(secret, dateStamp, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
