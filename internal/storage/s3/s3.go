// Package s3 provides the STS-style bucket backend. Writes are
// server-side puts; reads presign a time-boxed GET URL and fetch through
// it; browser-direct uploads use temporary federation credentials scoped
// to the uploads prefix.
package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yuhuotech/pixelhub/internal/storage/transport"
)

// PresignExpiry is how long a signed GET URL stays valid.
const PresignExpiry = time.Hour

// SessionDuration is how long client-direct upload credentials stay valid.
const SessionDuration = 30 * time.Minute

// Config holds bucket and credential parameters.
type Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // optional, for S3-compatible services
}

// Backend implements storage.Backend against S3.
type Backend struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	sts     *sts.Client
	bucket  string
	region  string
	http    *http.Client
}

// New creates an S3 backend. No network call is made here; the first
// transport contact happens on Put/Open.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Backend{
		client:  client,
		presign: awss3.NewPresignClient(client),
		sts:     sts.NewFromConfig(awsCfg),
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		http:    &http.Client{},
	}, nil
}

// Put uploads the object server-side. The SDK's own retry semantics apply;
// this layer does not add another retry loop on top.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Open presigns a GET for the key and fetches through the signed URL, so
// the bucket itself can stay private.
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	signed, err := b.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign get %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", key, err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %w", key, &transport.StatusError{Status: resp.StatusCode})
	}
	return resp.Body, nil
}

// Credentials are short-lived session credentials a client can use to put
// objects directly, bypassing the server for the byte transfer.
type Credentials struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
	Bucket          string    `json:"bucket"`
	Region          string    `json:"region"`
}

// SignUploadCredentials requests federation-token credentials whose policy
// only allows puts under the given key prefix in this bucket.
func (b *Backend) SignUploadCredentials(ctx context.Context, prefix string) (*Credentials, error) {
	policy, err := json.Marshal(map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Effect":   "Allow",
			"Action":   []string{"s3:PutObject"},
			"Resource": []string{fmt.Sprintf("arn:aws:s3:::%s/%s/*", b.bucket, prefix)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}

	out, err := b.sts.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String("pixelhub-upload"),
		Policy:          aws.String(string(policy)),
		DurationSeconds: aws.Int32(int32(SessionDuration.Seconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("get federation token: %w", err)
	}

	creds := out.Credentials
	return &Credentials{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiration:      aws.ToTime(creds.Expiration),
		Bucket:          b.bucket,
		Region:          b.region,
	}, nil
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }
