package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/herculesaleixo/stackform/internal/ir"
)

// s3Backend stores the state document in an S3 object, with a sibling lock
// object written conditionally to serialize runs.
type s3Backend struct {
	bucket  string
	key     string
	region  string
	profile string

	client *s3.Client
}

func newS3Backend(config map[string]string) (Backend, error) {
	bucket := config["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires 'bucket' configuration")
	}

	key := config["key"]
	if key == "" {
		key = "stackform/state.json"
	}

	region := config["region"]
	if region == "" {
		region = "us-east-1"
	}

	b := &s3Backend{
		bucket:  bucket,
		key:     key,
		region:  region,
		profile: config["profile"],
	}

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(b.region)}
	if b.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(b.profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	b.client = s3.NewFromConfig(cfg)

	return b, nil
}

func (b *s3Backend) Read(ctx context.Context) (*ir.State, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey") {
			return ir.NewState(uuid.NewString()), nil
		}
		return nil, fmt.Errorf("failed to read state from s3://%s/%s: %w", b.bucket, b.key, err)
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read state body: %w", err)
	}

	raw, err = DecryptState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var st ir.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state from s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return &st, nil
}

func (b *s3Backend) Write(ctx context.Context, st *ir.State) error {
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	content, err = EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("failed to write state to s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

// Lock writes the lock object with a conditional put; a concurrent holder
// makes the put fail with a precondition error.
func (b *s3Backend) Lock() error {
	ctx := context.Background()
	info := fmt.Sprintf("pid=%d\nhost=%s\ntime=%s\n", os.Getpid(), hostname(), time.Now().UTC().Format(time.RFC3339))

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.lockKey()),
		Body:        strings.NewReader(info),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return fmt.Errorf("state is locked by another process (lock object: s3://%s/%s)", b.bucket, b.lockKey())
		}
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}
	return nil
}

func (b *s3Backend) Unlock() error {
	ctx := context.Background()
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.lockKey()),
	})
	if err != nil {
		return fmt.Errorf("failed to release state lock: %w", err)
	}
	return nil
}

func (b *s3Backend) lockKey() string {
	return b.key + ".lock"
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
