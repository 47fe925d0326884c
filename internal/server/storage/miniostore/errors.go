package miniostore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error into storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
			return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return storage.Transient(err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return storage.Transient(err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return storage.Transient(err)
	}
	return err
}

func isInvalidRange(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && (resp.Code == "InvalidRange" || resp.StatusCode == http.StatusRequestedRangeNotSatisfiable)
}
