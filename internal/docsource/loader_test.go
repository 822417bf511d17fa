package docsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfHeader = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")

type fakeObjects struct {
	objects map[string][]byte
	closed  bool
}

func (f *fakeObjects) ReadObject(_ context.Context, bucket, object string, limit int64) ([]byte, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return nil, errors.New("object not found")
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (f *fakeObjects) Close() error {
	f.closed = true
	return nil
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestLoad_LocalFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "invoice.pdf", pdfHeader)

	l := NewLoader(nil, 0, zerolog.Nop())
	doc, err := l.Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", doc.Name)
	assert.Equal(t, "application/pdf", doc.MediaType)
	assert.Equal(t, pdfHeader, doc.Content)

	doc, err = l.Load(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", doc.Name)
}

func TestLoad_TooLarge(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "big.txt", make([]byte, 64))

	l := NewLoader(nil, 16, zerolog.Nop())
	_, err := l.Load(context.Background(), p)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestLoad_GCS(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		"receipts/2024/01/receipt.pdf": pdfHeader,
	}}
	l := NewLoader(objects, 0, zerolog.Nop())

	doc, err := l.Load(context.Background(), "gs://receipts/2024/01/receipt.pdf")
	require.NoError(t, err)
	assert.Equal(t, "receipt.pdf", doc.Name)
	assert.Equal(t, "application/pdf", doc.MediaType)

	_, err = l.Load(context.Background(), "gs://receipts")
	require.Error(t, err)

	_, err = l.Load(context.Background(), "gs:///2024/01/receipt.pdf")
	require.Error(t, err)

	doc, err = l.WithBucket("receipts").Load(context.Background(), "gs:///2024/01/receipt.pdf")
	require.NoError(t, err)
	assert.Equal(t, "receipt.pdf", doc.Name)

	require.NoError(t, l.Close())
	assert.True(t, objects.closed)
}

func TestLoad_GCSWithoutReader(t *testing.T) {
	l := NewLoader(nil, 0, zerolog.Nop())
	_, err := l.Load(context.Background(), "gs://bucket/object.pdf")
	require.ErrorIs(t, err, ErrNoObjectStore)
}

func TestLoadAll_ReportsFailuresIndividually(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("Acme Corp 42.00"))
	b := writeFile(t, dir, "b.pdf", pdfHeader)
	missing := filepath.Join(dir, "missing.pdf")

	l := NewLoader(nil, 0, zerolog.Nop())
	docs, failed := l.LoadAll(context.Background(), []string{a, missing, b})

	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Name)
	assert.Equal(t, "b.pdf", docs[1].Name)
	require.Len(t, failed, 1)
	assert.Equal(t, missing, failed[0].URI)
	assert.NotEmpty(t, failed[0].Err)
}

func TestLoadAll_CancelledContextFailsEveryDocument(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("Acme Corp 42.00"))
	b := writeFile(t, dir, "b.pdf", pdfHeader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(nil, 0, zerolog.Nop())
	docs, failed := l.LoadAll(ctx, []string{a, b})

	assert.Empty(t, docs)
	require.Len(t, failed, 2)
	for _, f := range failed {
		assert.Equal(t, context.Canceled.Error(), f.Err)
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://bucket/path/to/file.png")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "path/to/file.png", object)

	for _, bad := range []string{"s3://bucket/x", "gs://", "gs://bucket/", "gs:///x"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMediaType("noext", pdfHeader))
	assert.Equal(t, "image/png", DetectMediaType("x", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}))
	assert.Equal(t, "text/plain", DetectMediaType("notes.txt", []byte("hello")))
	assert.Equal(t, DefaultMediaType, DetectMediaType("blob", []byte("hello")))
}

func TestResolveMediaType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ResolveMediaType("image/jpeg", "x.pdf", pdfHeader))
	assert.Equal(t, "application/pdf", ResolveMediaType("application/octet-stream", "x", pdfHeader))
	assert.Equal(t, "text/plain", ResolveMediaType("text/plain; charset=utf-8", "x", nil))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("application/pdf"))
	assert.True(t, Supported("Image/PNG"))
	assert.True(t, Supported("text/plain; charset=utf-8"))
	assert.False(t, Supported("application/zip"))
}
