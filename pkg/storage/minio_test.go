package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/pkg/config"
)

// fakeBucket answers the handful of S3 calls the store makes for one bucket.
type fakeBucket struct {
	name string

	mu       sync.Mutex
	objects  map[string]bool
	requests []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)

	path := strings.Trim(r.URL.Path, "/")
	if path == b.name {
		w.WriteHeader(http.StatusOK)
		return
	}
	key := strings.TrimPrefix(path, b.name+"/")
	switch r.Method {
	case http.MethodPut:
		b.objects[key] = true
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if !b.objects[key] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *fakeBucket) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newTestMinIOStore(t *testing.T) (*MinIOStore, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{name: "avatars", objects: map[string]bool{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	store, err := NewMinIOStore(config.StorageConfig{
		Endpoint:       strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:      "minio",
		SecretKey:      "minio-secret",
		Bucket:         bucket.name,
		Region:         "us-east-1",
		ConnectTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return store, bucket
}

func TestMinIOStorePutExistsDelete(t *testing.T) {
	store, _ := newTestMinIOStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, NamespaceStudentImages, []byte("png"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, NamespaceStudentImages+"/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, ref))

	ok, err = store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMinIOStoreRejectsEscapingReferences(t *testing.T) {
	store, bucket := newTestMinIOStore(t)
	ctx := context.Background()
	before := bucket.requestCount()

	for _, ref := range []string{"", "  ", "../etc/passwd", "images/../../secret", "images//students"} {
		_, err := store.Exists(ctx, ref)
		assert.ErrorIs(t, err, ErrInvalidReference, ref)
		assert.ErrorIs(t, store.Delete(ctx, ref), ErrInvalidReference, ref)
	}
	assert.Equal(t, before, bucket.requestCount())
}

func TestIsMissingObject(t *testing.T) {
	assert.True(t, isMissingObject(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}))
	assert.False(t, isMissingObject(minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}))
	assert.False(t, isMissingObject(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, isMissingObject(errors.New("connection refused")))
}
