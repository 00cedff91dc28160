// Package tests3 runs LocalStack S3 for evidence blob tests.
package tests3

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/ufdr-service/internal/testutil/containers"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testBucket = "ufdr-evidence-test"

// StartS3 starts LocalStack, creates a bucket and points the default AWS
// config of this test at it. Returns the bucket name.
func StartS3(tb testing.TB) string {
	tb.Helper()

	_, hostPort := containers.Start(tb, containers.Service{
		Name:  "localstack",
		Image: "localstack/localstack:latest",
		Port:  "4566",
		Env:   map[string]string{"SERVICES": "s3"},
		Wait:  wait.ForListeningPort("4566/tcp").WithStartupTimeout(90 * time.Second),
	})
	endpoint := "http://" + hostPort

	tb.Setenv("AWS_ENDPOINT_URL", endpoint)
	tb.Setenv("AWS_ACCESS_KEY_ID", "test")
	tb.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	tb.Setenv("AWS_REGION", "us-east-1")

	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		awsconfig.WithRegion("us-east-1"),
	)
	if err != nil {
		tb.Fatalf("load aws config for bucket creation: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(testBucket)}); err != nil {
		tb.Fatalf("create test bucket: %v", err)
	}
	return testBucket
}
