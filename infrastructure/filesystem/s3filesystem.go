package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes JSON documents to an S3 bucket.
type Archive struct {
	client objectPutter
	bucket string
}

func NewArchive(ctx context.Context, bucket string) (*Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &Archive{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// ReportKey partitions reports by environment and UTC day.
func ReportKey(prefix, env string, at time.Time, name string) string {
	at = at.UTC()
	return path.Join(prefix, env, at.Format("2006"), at.Format("01"), at.Format("02"), name+".json")
}

func (a *Archive) PutJSON(ctx context.Context, key string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, a.bucket, err)
	}
	return nil
}
