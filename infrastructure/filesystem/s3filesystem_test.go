package filesystem

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestReportKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("AEST", 10*3600))
	assert.Equal(t, "autocheckout/prod/2026/03/09/run-1.json", ReportKey("autocheckout", "prod", at, "run-1"))
}

func TestPutJSON(t *testing.T) {
	fake := &fakeS3{}
	archive := &Archive{client: fake, bucket: "reports"}

	err := archive.PutJSON(context.Background(), "a/b.json", map[string]int{"errors": 0})
	require.NoError(t, err)
	assert.Equal(t, "reports", *fake.input.Bucket)
	assert.Equal(t, "a/b.json", *fake.input.Key)
	assert.JSONEq(t, `{"errors":0}`, fake.body)

	fake.err = errors.New("AccessDenied")
	assert.ErrorContains(t, archive.PutJSON(context.Background(), "a/b.json", 1), "AccessDenied")
}
