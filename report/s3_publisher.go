package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Ships finished reports somewhere other than the local results directory.
type Publisher interface {
	// Create any resources needed before Publish can be called.
	SetUp(ctx context.Context) error

	// Publish the report and return where it was stored.
	Publish(ctx context.Context, rep *BenchmarkReport) (string, error)
}

type s3Publisher struct {
	input    *S3PublisherInput
	s3       *s3.Client
	uploader *manager.Uploader
}

type S3PublisherInput struct {
	AwsConfig aws.Config
	Bucket    string
	Prefix    string // optional key prefix
}

func NewS3Publisher(input *S3PublisherInput) Publisher {
	client := s3.NewFromConfig(input.AwsConfig)
	return &s3Publisher{
		input:    input,
		s3:       client,
		uploader: manager.NewUploader(client),
	}
}

func (p *s3Publisher) SetUp(ctx context.Context) error {
	_, err := p.s3.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &p.input.Bucket,
		ACL:    s3Types.BucketCannedACLPrivate,
		CreateBucketConfiguration: &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(p.input.AwsConfig.Region),
		},
	})
	var e *s3Types.BucketAlreadyOwnedByYou
	if errors.As(err, &e) {
		slog.Debug("results bucket already exists", slog.String("name", p.input.Bucket))
		return nil
	} else if err != nil {
		return fmt.Errorf("creating results bucket failed: %w", err)
	}
	slog.Debug("created results bucket", slog.String("name", p.input.Bucket))
	return nil
}

func (p *s3Publisher) Publish(ctx context.Context, rep *BenchmarkReport) (string, error) {
	buf, err := Marshal(rep)
	if err != nil {
		return "", err
	}

	key := RelativePath(rep)
	if p.input.Prefix != "" {
		key = p.input.Prefix + "/" + key
	}
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &p.input.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading report failed: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", p.input.Bucket, key)
	slog.Info("published report", slog.String("location", location))
	return location, nil
}
