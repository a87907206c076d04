package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/models"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer uploads tables as CSV objects under an optional key prefix.
type S3Writer struct {
	client putObjectAPI
	bucket string
	prefix string
}

func NewS3Writer(client putObjectAPI, bucket, prefix string) *S3Writer {
	return &S3Writer{client: client, bucket: bucket, prefix: prefix}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SinkS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.SinkS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SinkS3Endpoint)
		}
		o.UsePathStyle = cfg.SinkS3PathStyle
	}), nil
}

func (s *S3Writer) Write(ctx context.Context, table models.Table, dir, name string) (string, error) {
	key, err := objectKey(dir, name)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	buf := &bytes.Buffer{}
	if err := EncodeCSV(buf, table); err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
