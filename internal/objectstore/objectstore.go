package objectstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Config describes the S3 bucket that holds shared references and published runs.
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	PathStyle    bool
}

// ObjectInfo captures metadata about a remote object. Key is relative to the configured prefix.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Provider is a minimal object store client.
type Provider interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Upload(ctx context.Context, key string, localPath string) (ObjectInfo, error)
	Download(ctx context.Context, key string, localPath string) (ObjectInfo, error)
	Close() error
}

// ErrNoBucket is returned when object store commands run without a bucket configured.
var ErrNoBucket = errors.New("object store bucket is not configured")

// NewProvider creates an S3 provider. Any S3-compatible endpoint works with PathStyle set.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrNoBucket
	}
	return newS3Provider(ctx, cfg)
}

// ResolveKey joins a base prefix with a key without introducing double slashes.
func ResolveKey(prefix string, key string) string {
	cleanPrefix := strings.TrimPrefix(prefix, "/")
	cleanKey := strings.TrimPrefix(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	if strings.HasSuffix(cleanPrefix, "/") {
		return cleanPrefix + cleanKey
	}
	return cleanPrefix + "/" + cleanKey
}

// relativeKey strips prefix from a full key returned by the store.
func relativeKey(prefix, key string) string {
	p := strings.Trim(prefix, "/")
	if p == "" {
		return key
	}
	return strings.TrimPrefix(key, p+"/")
}
