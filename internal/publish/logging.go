package publish

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// loggingClient logs every successful UploadPart.
//
// UploadPart may be called from any of the goroutines uploading parts in parallel, hence the atomic tally.
type loggingClient struct {
	manager.UploadAPIClient
	logger *log.Logger
	parts  atomic.Int32
}

// logSuccessfulUploadPart wraps the uploader's client so that messages are in format `uploaded %d parts so far`.
func logSuccessfulUploadPart(logger *log.Logger) func(*manager.Uploader) {
	return func(uploader *manager.Uploader) {
		uploader.S3 = &loggingClient{UploadAPIClient: uploader.S3, logger: logger}
	}
}

func (c *loggingClient) UploadPart(ctx context.Context, input *s3.UploadPartInput, f ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	o, err := c.UploadAPIClient.UploadPart(ctx, input, f...)
	if err == nil {
		c.logger.Printf("uploaded %d parts so far", c.parts.Add(1))
	}
	return o, err
}

var _ manager.UploadAPIClient = &loggingClient{}
