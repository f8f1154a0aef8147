package store

import (
	"context"
	"fmt"
	"os"

	"devlog-cache/internal/config"
	"devlog-cache/internal/core"
)

// NewStoreFromConfig creates a Store implementation based on the store
// config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, clock core.Clock) (core.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Name, clock), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		return NewFileSystemStore(cfg.Name, cfg.Root, clock)
	case "s3":
		accessKey := cfg.AccessKeyID
		secretKey := cfg.SecretAccessKey
		if accessKey == "" {
			accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
			secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		}
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
