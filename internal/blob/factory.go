package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Config selects a blob.Store implementation explicitly. Zero-valued fields
// fall back to the backend defaults.
type Config struct {
	Driver Driver
	FSRoot string // driver=fs
	S3     S3Config
}

// OpenConfig opens the backend named by cfg.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// Open selects a blob.Store implementation using environment variables.
//
//	HOMEWORKCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	HOMEWORKCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, Config{
		Driver: Driver(os.Getenv("HOMEWORKCORE_BLOB_DRIVER")),
		FSRoot: os.Getenv("HOMEWORKCORE_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("HOMEWORKCORE_BLOB_S3_BUCKET"),
			Region:    os.Getenv("HOMEWORKCORE_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("HOMEWORKCORE_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("HOMEWORKCORE_BLOB_S3_PATH_STYLE"), "true"),
		},
	})
}
