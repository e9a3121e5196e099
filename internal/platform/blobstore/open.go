package blobstore

import (
	"context"
	"fmt"

	"github.com/medstock/medstock/internal/config"
)

// Open builds the export Store selected by EXPORT_DRIVER.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.ExportDriver {
	case config.ExportFS:
		return NewFilesystem(cfg.ExportDir)
	case config.ExportS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.ExportS3Bucket,
			Region:          cfg.ExportS3Region,
			Endpoint:        cfg.ExportS3Endpoint,
			PathStyle:       cfg.ExportS3PathStyle,
			AccessKeyID:     cfg.ExportS3AccessKeyID,
			SecretAccessKey: cfg.ExportS3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown export driver %q", cfg.ExportDriver)
	}
}
