package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store implementation using environment variables.
//
//	CLUBATLAS_BLOB_DRIVER: fs|s3|memory (default fs)
//	CLUBATLAS_BLOB_FS_ROOT: directory root when driver=fs (default ./intakedata)
//	CLUBATLAS_BLOB_S3_BUCKET: bucket name (required for s3)
//	CLUBATLAS_BLOB_S3_REGION: region (default us-east-1)
//	CLUBATLAS_BLOB_S3_ENDPOINT: custom endpoint, e.g. MinIO (optional)
//	CLUBATLAS_BLOB_S3_PATH_STYLE: true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CLUBATLAS_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CLUBATLAS_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("CLUBATLAS_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("CLUBATLAS_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv("CLUBATLAS_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("CLUBATLAS_BLOB_S3_ENDPOINT"),
			PathStyle: os.Getenv("CLUBATLAS_BLOB_S3_PATH_STYLE") == "true",
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
