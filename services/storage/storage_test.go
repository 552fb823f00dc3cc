package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is a tiny path-style S3 endpoint holding objects in memory
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestStore(t *testing.T) (*S3Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	store, err := NewS3Store(Config{
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "quiz-docs",
		Region:    "us-east-1",
		Endpoint:  server.URL,
		PathStyle: true,
	})
	require.NoError(t, err)
	return store, bucket
}

func TestS3Store_RoundTrip(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upload(ctx, "documents/1/a.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), bucket.objects["/quiz-docs/documents/1/a.txt"])

	data, err := store.Download(ctx, "documents/1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, "documents/1/a.txt"))
	_, err = store.Download(ctx, "documents/1/a.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Store_PresignedURL(t *testing.T) {
	store, _ := newTestStore(t)

	url, err := store.PresignedURL("documents/1/a.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "/quiz-docs/documents/1/a.pdf")
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=900")
}

func TestS3Store_FileURLPrefersCDN(t *testing.T) {
	store, err := NewS3Store(Config{Bucket: "b", Region: "nyc3", Endpoint: "https://nyc3.digitaloceanspaces.com", CDNURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.pdf", store.FileURL("x.pdf"))

	store.cdnURL = ""
	assert.Equal(t, "https://b.nyc3.digitaloceanspaces.com/x.pdf", store.FileURL("x.pdf"))
}

func TestGenerateKeyAndContentType(t *testing.T) {
	key := GenerateKey(42, "Chapter 1.PDF")
	assert.True(t, strings.HasPrefix(key, "documents/42/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, GenerateKey(42, "Chapter 1.PDF"))

	assert.Equal(t, "application/pdf", GetContentType("a.PDF"))
	assert.Equal(t, "image/jpeg", GetContentType("a.jpeg"))
	assert.Equal(t, "application/octet-stream", GetContentType("a.bin"))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(Config{Region: "us-east-1"})
	assert.Error(t, err)
}
