package services_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-converter/config"
	"manuscript-converter/services"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>manuscripts</Name>
  <Prefix>X/media/</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>X/media/</Key><Size>0</Size></Contents>
  <Contents><Key>X/media/image1.png</Key><Size>12</Size></Contents>
</ListBucketResult>`

type s3Request struct {
	method      string
	path        string
	contentType string
	body        string
}

// fakeS3 answers path-style requests for the manuscripts bucket.
type fakeS3 struct {
	mu       sync.Mutex
	requests []s3Request
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, s3Request{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        string(body),
	})
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, listResponse)
	case r.Method == http.MethodPut:
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) puts() []s3Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []s3Request
	for _, r := range f.requests {
		if r.method == http.MethodPut {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func newTestS3(t *testing.T) (*services.S3Service, *fakeS3) {
	t.Helper()
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc := services.NewS3Service(&config.Config{
		S3Bucket:       "manuscripts",
		S3Region:       "us-east-1",
		AWSS3AccessKey: "key",
		AWSS3SecretKey: "secret",
		S3Endpoint:     srv.URL,
		S3UsePathStyle: true,
	})
	return svc, fake
}

func TestS3Service_ListObjects(t *testing.T) {
	svc, _ := newTestS3(t)

	objects, err := svc.ListObjects(context.Background(), "X/media/")
	require.NoError(t, err)
	assert.Equal(t, []services.ObjectInfo{
		{Key: "X/media/", Size: 0},
		{Key: "X/media/image1.png", Size: 12},
	}, objects)
}

func TestS3Service_SaveDetectsContentType(t *testing.T) {
	svc, fake := newTestS3(t)

	require.NoError(t, svc.Save(context.Background(), "X/paper.pdf", []byte("%PDF-1.4\n%EOF\n")))

	puts := fake.puts()
	require.Len(t, puts, 1)
	assert.Equal(t, "/manuscripts/X/paper.pdf", puts[0].path)
	assert.Equal(t, "application/pdf", puts[0].contentType)
	assert.Equal(t, "%PDF-1.4\n%EOF\n", puts[0].body)
}

func TestS3Service_CopyRecursive(t *testing.T) {
	svc, fake := newTestS3(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image1.svg"), []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "notes.txt"), []byte("plain text"), 0o644))

	require.NoError(t, svc.CopyRecursive(context.Background(), dir, "X/media/"))

	puts := fake.puts()
	require.Len(t, puts, 2)
	assert.Equal(t, "/manuscripts/X/media/image1.svg", puts[0].path)
	assert.Equal(t, "image/svg+xml", puts[0].contentType)
	assert.Equal(t, "/manuscripts/X/media/sub/notes.txt", puts[1].path)
}

func TestS3Service_DeleteRecursiveRejectsEmptyPrefix(t *testing.T) {
	svc, fake := newTestS3(t)

	err := svc.DeleteRecursive(context.Background(), "")
	require.Error(t, err)
	assert.Empty(t, fake.requests)
}
