package profiles

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ImageStorePut(t *testing.T) {
	client := &fakeS3{}
	store := NewS3ImageStore(client, "avatars", "ap-south-1", "")

	url, err := store.Put(context.Background(), "profiles/u1/a.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://avatars.s3.ap-south-1.amazonaws.com/profiles/u1/a.png", url)
	assert.Equal(t, "avatars", aws.ToString(client.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, int64(9), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, "png-bytes", string(client.body))
}

func TestS3ImageStoreEndpointOverride(t *testing.T) {
	store := NewS3ImageStore(&fakeS3{}, "avatars", "ap-south-1", "http://localhost:4566/")
	url, err := store.Put(context.Background(), "profiles/u1/b.webp", "image/webp", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566/avatars/profiles/u1/b.webp", url)
}

func TestImageExtension(t *testing.T) {
	ext, ok := ImageExtension("image/jpeg; charset=binary")
	assert.True(t, ok)
	assert.Equal(t, "jpg", ext)
	_, ok = ImageExtension("application/pdf")
	assert.False(t, ok)
}
