package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// Bucket is a single object bucket. Keys are slash-separated and never start
// with "/".
type Bucket interface {
	Name() string
	// URI is the canonical reference handed to model calls (gs://, s3://, mem://).
	URI(key string) string
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URL is a link a browser can open.
	URL(ctx context.Context, key string) (string, error)
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	return key, nil
}

// SplitURI splits "scheme://bucket/key" into its parts.
func SplitURI(uri string) (scheme, bucket, key string, ok bool) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found || scheme == "" {
		return "", "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", "", false
	}
	return scheme, bucket, key, true
}

// Publisher uploads rendered artifacts and returns their public link.
type Publisher struct {
	bucket Bucket
}

func NewPublisher(b Bucket) *Publisher { return &Publisher{bucket: b} }

func (p *Publisher) Publish(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if p == nil || p.bucket == nil {
		return "", fmt.Errorf("publisher has no bucket")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	if err := p.bucket.Put(ctx, key, body, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", p.bucket.URI(key), err)
	}
	return p.bucket.URL(ctx, key)
}

// ImageResolver hands out the pre-provisioned case image after checking it
// exists.
type ImageResolver struct {
	bucket Bucket
	object string
}

func NewImageResolver(b Bucket, object string) *ImageResolver {
	return &ImageResolver{bucket: b, object: object}
}

func (r *ImageResolver) Resolve(ctx context.Context) (string, error) {
	key, err := normalizeKey(r.object)
	if err != nil {
		return "", err
	}
	uri := r.bucket.URI(key)
	ok, err := r.bucket.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("Error accessing %s: %w", uri, err)
	}
	if !ok {
		return "", fmt.Errorf("Default image not found at %s.", uri)
	}
	return uri, nil
}

// Linker turns stored object URIs into browser links. Buckets are matched by
// name; unknown URIs are returned unchanged.
type Linker struct {
	buckets map[string]Bucket
}

func NewLinker(bs ...Bucket) *Linker {
	l := &Linker{buckets: make(map[string]Bucket, len(bs))}
	for _, b := range bs {
		if b != nil {
			l.buckets[b.Name()] = b
		}
	}
	return l
}

func (l *Linker) Link(ctx context.Context, uri string) string {
	_, bucket, key, ok := SplitURI(uri)
	if !ok {
		return uri
	}
	b, found := l.buckets[bucket]
	if !found {
		return uri
	}
	u, err := b.URL(ctx, key)
	if err != nil || u == "" {
		return uri
	}
	return u
}
