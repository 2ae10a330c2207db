package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Writer uploads objects through the SDK upload manager, which handles
// multipart for large bodies transparently.
type Writer struct {
	client   *Client
	uploader *manager.Uploader
}

var _ domain.BlobWriter = (*Writer)(nil)

// NewWriter creates a Writer on the shared client.
func NewWriter(client *Client) *Writer {
	return &Writer{
		client:   client,
		uploader: manager.NewUploader(client.api),
	}
}

// Put uploads body to path in the configured bucket.
func (w *Writer) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(w.client.bucket),
		Key:         aws.String(path),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", path, err)
	}
	return nil
}
