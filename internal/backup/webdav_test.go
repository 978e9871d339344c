package backup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type davRequest struct {
	method string
	path   string
	body   string
	auth   string
	ctype  string
}

func newDAVServer(t *testing.T, mkcolStatus int) (*httptest.Server, *[]davRequest) {
	t.Helper()
	var requests []davRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, davRequest{
			method: r.Method,
			path:   r.URL.Path,
			body:   string(body),
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
		})
		if r.Method == "MKCOL" {
			w.WriteHeader(mkcolStatus)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestWebDAVUpload(t *testing.T) {
	srv, requests := newDAVServer(t, http.StatusCreated)

	p := NewWebDAVProvider(WebDAVConfig{URL: srv.URL + "/dav", Username: "u", Password: "pw"})
	result, err := p.Upload(context.Background(), UploadInput{
		ObjectKey:   "backups/snapshot-1/manifest.json",
		ContentType: "application/json",
		Body:        []byte(`{"kind":"m"}`),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	got := *requests
	if len(got) != 3 {
		t.Fatalf("requests = %d, want 2 MKCOL + 1 PUT", len(got))
	}
	if got[0].method != "MKCOL" || got[0].path != "/dav/backups" {
		t.Errorf("first = %s %s", got[0].method, got[0].path)
	}
	if got[1].method != "MKCOL" || got[1].path != "/dav/backups/snapshot-1" {
		t.Errorf("second = %s %s", got[1].method, got[1].path)
	}
	if got[2].method != "PUT" || got[2].path != "/dav/backups/snapshot-1/manifest.json" {
		t.Errorf("third = %s %s", got[2].method, got[2].path)
	}
	if got[2].body != `{"kind":"m"}` || got[2].ctype != "application/json" {
		t.Errorf("PUT body/type = %q/%q", got[2].body, got[2].ctype)
	}
	for _, r := range got {
		if !strings.HasPrefix(r.auth, "Basic ") {
			t.Errorf("%s %s missing basic auth", r.method, r.path)
		}
	}
	if result.Provider != ProviderWebDAV || result.Location != srv.URL+"/dav/backups/snapshot-1/manifest.json" {
		t.Errorf("result = %+v", result)
	}
}

func TestWebDAVMkcolExistingCollection(t *testing.T) {
	// 405 means the collection already exists; the upload must proceed.
	srv, requests := newDAVServer(t, http.StatusMethodNotAllowed)

	p := NewWebDAVProvider(WebDAVConfig{URL: srv.URL, Username: "u", Password: "pw"})
	if _, err := p.Upload(context.Background(), UploadInput{
		ObjectKey: "existing/file.json",
		Body:      []byte("x"),
	}); err != nil {
		t.Fatalf("upload over existing collection: %v", err)
	}
	got := *requests
	if got[len(got)-1].method != "PUT" {
		t.Error("expected PUT after tolerated MKCOL 405")
	}
}

func TestWebDAVMkcolFailure(t *testing.T) {
	srv, _ := newDAVServer(t, http.StatusForbidden)

	p := NewWebDAVProvider(WebDAVConfig{URL: srv.URL, Username: "u", Password: "pw"})
	_, err := p.Upload(context.Background(), UploadInput{ObjectKey: "dir/file.json", Body: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "webdav MKCOL failed (403)") {
		t.Errorf("err = %v", err)
	}
}

func TestWebDAVUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	}))
	t.Cleanup(srv.Close)

	p := NewWebDAVProvider(WebDAVConfig{URL: srv.URL, Username: "u", Password: "pw"})
	_, err := p.Upload(context.Background(), UploadInput{ObjectKey: "file.json", Body: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "webdav upload failed (507)") {
		t.Errorf("err = %v", err)
	}
}

func TestWebDAVMissingEnv(t *testing.T) {
	p := NewWebDAVProvider(WebDAVConfig{})
	missing := p.MissingEnv()
	want := []string{"BACKUP_WEBDAV_URL", "BACKUP_WEBDAV_USERNAME", "BACKUP_WEBDAV_PASSWORD"}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v", missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Errorf("missing[%d] = %q, want %q", i, missing[i], want[i])
		}
	}

	configured := NewWebDAVProvider(WebDAVConfig{URL: "https://dav.example.com", Username: "u", Password: "pw"})
	if got := configured.MissingEnv(); len(got) != 0 {
		t.Errorf("configured missing = %v", got)
	}
}
