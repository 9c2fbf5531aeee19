// Package blobstore keeps exit payloads and other withdrawal artifacts outside the process so a
// later invocation can resume from them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"

	defaultMaxGetSize int64 = 4 << 20
)

var (
	ErrInvalidConfig = errors.New("blobstore: invalid config")
	ErrInvalidKey    = errors.New("blobstore: invalid key")
	ErrNotFound      = errors.New("blobstore: not found")
	ErrTooLarge      = errors.New("blobstore: object too large")
)

type Store interface {
	Put(ctx context.Context, key string, payload []byte, opts PutOptions) error
	Get(ctx context.Context, key string) (Object, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}

type Config struct {
	Driver string
	Prefix string

	// MaxGetSize bounds bytes returned by Get. Defaults to 4 MiB when <= 0.
	MaxGetSize int64

	// S3 fields.
	Bucket   string
	S3Client S3Client
}

func New(cfg Config) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case DriverMemory:
		return newMemoryStore(cfg.Prefix), nil
	case DriverS3:
		return newS3Store(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

// keyspace maps logical keys to object keys under a fixed prefix.
type keyspace string

func newKeyspace(prefix string) keyspace {
	return keyspace(strings.Trim(strings.TrimSpace(prefix), "/"))
}

// resolve validates key and returns it with and without the prefix. A single leading slash is
// ignored; whitespace padding, control characters and "."/".." or empty segments are rejected.
func (ks keyspace) resolve(key string) (logical, full string, err error) {
	if key != strings.TrimSpace(key) {
		return "", "", fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidKey, key)
	}
	logical = strings.TrimPrefix(key, "/")
	if logical == "" {
		return "", "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.IndexFunc(logical, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return "", "", fmt.Errorf("%w: control character in key", ErrInvalidKey)
	}
	for _, seg := range strings.Split(logical, "/") {
		switch seg {
		case "", ".", "..":
			return "", "", fmt.Errorf("%w: bad segment %q in %q", ErrInvalidKey, seg, logical)
		}
	}
	if ks == "" {
		return logical, logical, nil
	}
	return logical, string(ks) + "/" + logical, nil
}

// cleanMetadata trims keys and values and drops blank keys.
func cleanMetadata(in map[string]string) map[string]string {
	var out map[string]string
	for k, v := range in {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(in))
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
