package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config contains the information required to talk to an S3 compatible store.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client stores blobs under the hex SHA-256 of their content, which makes
// the bucket a content-addressed store.
type Client struct {
	client *minio.Client
	bucket string
}

// New creates a minio backed client.
func New(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &Client{client: cl, bucket: cfg.Bucket}, nil
}

// Submit uploads data and returns its content address.
func (c *Client) Submit(ctx context.Context, name string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	address := hex.EncodeToString(sum[:])
	contentType := http.DetectContentType(data)

	opts := minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"original_filename": name,
			"sha256":            address,
		},
	}
	if _, err := c.client.PutObject(ctx, c.bucket, objectKey(address), bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("put object %s: %w", address, err)
	}
	return address, nil
}

// URI references the object by bucket and content key.
func (c *Client) URI(address string) string {
	return fmt.Sprintf("s3://%s/%s", c.bucket, objectKey(address))
}

// Close is a no-op; the minio client holds no resources.
func (c *Client) Close() error {
	return nil
}

func objectKey(address string) string {
	return "sha256/" + address
}
