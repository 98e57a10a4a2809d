package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/docsathi/telehealth-api/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{AWSRegion: "ap-south-1", AWSAccessKeyID: "AKID", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
}

func TestEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "ap-south-1", AWSEndpointOverride: "http://localhost:4566"}
	awsCfg := aws.Config{Region: cfg.AWSRegion}

	s3Client := NewS3Client(awsCfg, cfg)
	assert.Equal(t, "http://localhost:4566", aws.ToString(s3Client.Options().BaseEndpoint))
	assert.True(t, s3Client.Options().UsePathStyle)

	ses := NewSESClient(awsCfg, cfg)
	assert.Equal(t, "http://localhost:4566", aws.ToString(ses.Options().BaseEndpoint))

	plain := NewS3Client(awsCfg, &appconfig.Config{})
	assert.Nil(t, plain.Options().BaseEndpoint)
}
