package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAWS replaces the SDK seams for the duration of the test.
func stubAWS(t *testing.T) {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	origPut := putObject
	origDel := deleteObject
	origHead := headBucket
	origPresign := presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		putObject = origPut
		deleteObject = origDel
		headBucket = origHead
		presignGetObject = origPresign
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}
}

func testSettings() Settings {
	return Settings{
		AccessKey:    "admin",
		SecretKey:    "secretpassword",
		Region:       "us-east-1",
		Bucket:       "documents",
		BaseEndpoint: "http://127.0.0.1:9000/",
		PresignTTL:   10 * time.Minute,
	}
}

func TestNewS3Store_AppliesSettings(t *testing.T) {
	stubAWS(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "admin", creds.AccessKeyID)
		assert.Equal(t, "secretpassword", creds.SecretAccessKey)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	st, err := NewS3Store(context.Background(), testSettings())
	require.NoError(t, err)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000/", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, 10*time.Minute, st.ttl)
}

func TestNewS3Store_Errors(t *testing.T) {
	stubAWS(t)

	s := testSettings()
	s.Bucket = ""
	_, err := NewS3Store(context.Background(), s)
	require.Error(t, err)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Store(context.Background(), testSettings())
	require.ErrorContains(t, err, "no config")
}

func TestNewS3Store_DefaultTTL(t *testing.T) {
	stubAWS(t)
	s := testSettings()
	s.PresignTTL = 0
	st, err := NewS3Store(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, st.ttl)
}

func TestPut(t *testing.T) {
	stubAWS(t)
	st, err := NewS3Store(context.Background(), testSettings())
	require.NoError(t, err)

	var got *s3.PutObjectInput
	var body string
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		got = in
		_, ok := in.Body.(io.Seeker)
		assert.True(t, ok, "body must be seekable")
		b, err := io.ReadAll(in.Body)
		require.NoError(t, err)
		body = string(b)
		return nil
	}

	// LimitReader hides the Seek method of the underlying reader
	err = st.Put(context.Background(), "users/1/k/a.txt", "text/plain", io.LimitReader(strings.NewReader("hello"), 5), 5)
	require.NoError(t, err)
	assert.Equal(t, "documents", aws.ToString(got.Bucket))
	assert.Equal(t, "users/1/k/a.txt", aws.ToString(got.Key))
	assert.Equal(t, "text/plain", aws.ToString(got.ContentType))
	assert.Equal(t, int64(5), aws.ToInt64(got.ContentLength))
	assert.Equal(t, "hello", body)

	err = st.Put(context.Background(), "k", "", strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Nil(t, got.ContentType)

	err = st.Put(context.Background(), "k", "", io.LimitReader(strings.NewReader("ab"), 2), 3)
	require.Error(t, err, "short body")

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		return errors.New("denied")
	}
	err = st.Put(context.Background(), "k", "", strings.NewReader("abc"), 3)
	require.ErrorContains(t, err, "denied")
}

func TestDeleteAndPing(t *testing.T) {
	stubAWS(t)
	st, err := NewS3Store(context.Background(), testSettings())
	require.NoError(t, err)

	var deleted string
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		deleted = aws.ToString(in.Key)
		return nil
	}
	require.NoError(t, st.Delete(context.Background(), "users/1/k/a.txt"))
	assert.Equal(t, "users/1/k/a.txt", deleted)

	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		return errors.New("gone")
	}
	require.ErrorContains(t, st.Delete(context.Background(), "k"), "gone")

	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput) error {
		assert.Equal(t, "documents", aws.ToString(in.Bucket))
		return nil
	}
	require.NoError(t, st.Ping(context.Background()))

	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput) error {
		return errors.New("no such bucket")
	}
	require.ErrorContains(t, st.Ping(context.Background()), "no such bucket")
}

func TestPresignGet(t *testing.T) {
	stubAWS(t)
	st, err := NewS3Store(context.Background(), testSettings())
	require.NoError(t, err)

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		assert.Equal(t, 10*time.Minute, po.Expires)
		return &v4.PresignedHTTPRequest{URL: "http://minio/documents/" + aws.ToString(in.Key) + "?X-Amz-Signature=x"}, nil
	}

	url, err := st.PresignGet(context.Background(), "users/1/k/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://minio/documents/users/1/k/a.txt?X-Amz-Signature=x", url)

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign failed")
	}
	_, err = st.PresignGet(context.Background(), "k")
	require.ErrorContains(t, err, "sign failed")
}
