// Package docsource loads raw documents from local paths and Cloud Storage
// URIs and identifies their media type.
package docsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/costpilot/internal/pipeline"
)

// DefaultMaxBytes caps a single document.
const DefaultMaxBytes = 32 << 20

var (
	// ErrTooLarge is returned for documents above the size limit.
	ErrTooLarge = errors.New("document too large")
	// ErrNoObjectStore is returned for gs:// URIs when no reader is configured.
	ErrNoObjectStore = errors.New("cloud storage is not configured")
)

// LoadError reports a document that could not be loaded.
type LoadError struct {
	URI string `json:"uri"`
	Err string `json:"error"`
}

// Loader reads documents by URI.
type Loader struct {
	objects     ObjectReader // nil disables gs:// URIs
	bucket      string       // resolves gs:///object
	maxBytes    int64
	concurrency int
	log         zerolog.Logger
}

// NewLoader creates a loader. objects may be nil.
func NewLoader(objects ObjectReader, maxBytes int64, log zerolog.Logger) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{
		objects:     objects,
		maxBytes:    maxBytes,
		concurrency: 4,
		log:         log.With().Str("component", "docsource").Logger(),
	}
}

// WithBucket sets the bucket that gs:///object URIs resolve against.
func (l *Loader) WithBucket(bucket string) *Loader {
	l.bucket = bucket
	return l
}

// Load reads one document. uri is a gs:// URI, a file:// URI or a path.
func (l *Loader) Load(ctx context.Context, uri string) (pipeline.Document, error) {
	var (
		name    string
		content []byte
		err     error
	)

	if strings.HasPrefix(uri, "gs://") {
		if l.objects == nil {
			return pipeline.Document{}, ErrNoObjectStore
		}
		if rest, ok := strings.CutPrefix(uri, "gs:///"); ok && l.bucket != "" {
			uri = "gs://" + l.bucket + "/" + rest
		}
		bucket, object, perr := ParseGCSURI(uri)
		if perr != nil {
			return pipeline.Document{}, perr
		}
		name = path.Base(object)
		content, err = l.objects.ReadObject(ctx, bucket, object, l.maxBytes)
	} else {
		p := strings.TrimPrefix(uri, "file://")
		name = filepath.Base(p)
		content, err = l.readFile(p)
	}
	if err != nil {
		return pipeline.Document{}, err
	}

	return pipeline.Document{
		Name:      name,
		MediaType: DetectMediaType(name, content),
		Content:   content,
	}, nil
}

func (l *Loader) readFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open file %q: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", p, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, p, l.maxBytes)
	}
	return data, nil
}

// LoadAll loads documents concurrently. Documents that fail to load are
// reported individually and do not stop the others. Loaded documents keep
// the order of uris. Once ctx is cancelled the documents not yet loaded
// are reported as failed with the context error.
func (l *Loader) LoadAll(ctx context.Context, uris []string) ([]pipeline.Document, []LoadError) {
	docs := make([]*pipeline.Document, len(uris))

	var (
		mu     sync.Mutex
		failed []LoadError
	)
	fail := func(uri string, err error) {
		mu.Lock()
		failed = append(failed, LoadError{URI: uri, Err: err.Error()})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, uri := range uris {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				fail(uri, err)
				return err
			}
			doc, err := l.Load(gctx, uri)
			if err != nil {
				l.log.Warn().Err(err).Str("uri", uri).Msg("failed to load document")
				fail(uri, err)
				return nil
			}
			docs[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.log.Warn().Err(err).Int("documents", len(uris)).Msg("document loading interrupted")
	}

	loaded := make([]pipeline.Document, 0, len(uris))
	for _, d := range docs {
		if d != nil {
			loaded = append(loaded, *d)
		}
	}
	return loaded, failed
}

// Close releases the object reader, if any.
func (l *Loader) Close() error {
	if l.objects == nil {
		return nil
	}
	return l.objects.Close()
}
