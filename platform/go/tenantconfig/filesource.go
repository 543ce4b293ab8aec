package tenantconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ConfigFileName is the per-tenant document stored under a directory named after the client id.
const ConfigFileName = "client.yaml"

// FileSource reads raw tenant YAML documents.
type FileSource interface {
	// Read returns the document for clientID; found is false when no document exists.
	Read(ctx context.Context, clientID string) (data []byte, found bool, err error)
	// List returns the client ids that have a document.
	List(ctx context.Context) ([]string, error)
}

// LocalFileSource serves <root>/<client_id>/client.yaml from the local filesystem.
type LocalFileSource struct {
	root string
}

// NewLocalFileSource builds a file source rooted at dir.
func NewLocalFileSource(dir string) *LocalFileSource {
	return &LocalFileSource{root: dir}
}

func (s *LocalFileSource) Read(_ context.Context, clientID string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.root, clientID, ConfigFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read tenant file %s: %w", clientID, err)
	}
	return data, true, nil
}

func (s *LocalFileSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tenant files: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), ConfigFileName)); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// GCSFileSource serves gs://<bucket>/<prefix><client_id>/client.yaml.
type GCSFileSource struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSFileSource builds a bucket-backed file source. prefix may be empty.
func NewGCSFileSource(client *storage.Client, bucket, prefix string) (*GCSFileSource, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GCSFileSource{bucket: client.Bucket(bucket), prefix: prefix}, nil
}

func (s *GCSFileSource) Read(ctx context.Context, clientID string) ([]byte, bool, error) {
	r, err := s.bucket.Object(path.Join(s.prefix, clientID, ConfigFileName)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open tenant object %s: %w", clientID, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("read tenant object %s: %w", clientID, err)
	}
	return data, true, nil
}

func (s *GCSFileSource) List(ctx context.Context) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix, Delimiter: "/"})
	var ids []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tenant objects: %w", err)
		}
		if attrs.Prefix == "" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, s.prefix), "/")
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var (
	_ FileSource = (*LocalFileSource)(nil)
	_ FileSource = (*GCSFileSource)(nil)
)
