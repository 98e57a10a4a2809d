package profiles

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxImageBytes caps profile image uploads.
const MaxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ImageExtension maps an accepted content type to a file extension.
func ImageExtension(contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := imageExtensions[ct]
	return ext, ok
}

// ImageStore persists uploaded profile images and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ImageStore uploads to a single bucket.
type S3ImageStore struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3ImageStore builds URLs from endpoint when set (LocalStack), otherwise
// from the regional virtual-hosted bucket address.
func NewS3ImageStore(client s3API, bucket, region, endpoint string) *S3ImageStore {
	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/"); endpoint != "" {
		base = endpoint + "/" + bucket
	}
	return &S3ImageStore{client: client, bucket: bucket, baseURL: base}
}

func (s *S3ImageStore) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("profiles: put object %s: %w", key, err)
	}
	return s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
}
