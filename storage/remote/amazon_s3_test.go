package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reillywatson/reportsink/sink"
)

// mockAPIError implements smithy.APIError for testing error code mapping.
type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return fmt.Sprintf("%s: %s", e.code, e.message) }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

var _ smithy.APIError = (*mockAPIError)(nil)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  map[string][]byte
	optFns  int
	putErr  error
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.optFns = len(optFns)
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.bodies == nil {
		f.bodies = make(map[string][]byte)
	}
	f.bodies[aws.ToString(params.Key)] = b
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	b, ok := f.bodies[aws.ToString(params.Key)]
	if !ok {
		return nil, &mockAPIError{code: "NotFound", message: "Not Found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func TestAmazonS3_Put(t *testing.T) {
	client := &fakeS3{}
	a := NewAmazonS3(client, "artifacts", "reports", nil)

	loc, err := a.Put(context.Background(), "job-42", 9, bytes.NewReader([]byte("PDF-BYTES")))
	require.NoError(t, err)
	assert.Equal(t, sink.Locator("s3://artifacts/reports/job-42"), loc)

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "artifacts", aws.ToString(put.Bucket))
	assert.Equal(t, "reports/job-42", aws.ToString(put.Key))
	assert.EqualValues(t, 9, aws.ToInt64(put.ContentLength))
	assert.Equal(t, "job-42", put.Metadata[referenceIDMetadataKey])
	assert.Equal(t, 0, client.optFns, "seekable bodies keep the default retry policy")

	size, err := a.Stat(context.Background(), "job-42")
	require.NoError(t, err)
	assert.EqualValues(t, 9, size)
	assert.EqualValues(t, 1, a.Count.Produced.Load())
}

func TestAmazonS3_PutUnseekableBodyDisablesRetry(t *testing.T) {
	client := &fakeS3{}
	a := NewAmazonS3(client, "artifacts", "", nil)

	loc, err := a.Put(context.Background(), "job-1", 4, io.NopCloser(strings.NewReader("data")))
	require.NoError(t, err)
	assert.Equal(t, sink.Locator("s3://artifacts/job-1"), loc)
	assert.Equal(t, 1, client.optFns)
}

func TestAmazonS3_PutError(t *testing.T) {
	errDenied := &mockAPIError{code: "AccessDenied", message: "denied"}
	a := NewAmazonS3(&fakeS3{putErr: errDenied}, "artifacts", "reports", nil)

	loc, err := a.Put(context.Background(), "job-1", 1, bytes.NewReader([]byte("x")))
	assert.Empty(t, loc)
	assert.ErrorIs(t, err, errDenied)
	assert.EqualValues(t, 1, a.Count.PublishErrors.Load())
}

func TestAmazonS3_StatNotFound(t *testing.T) {
	a := NewAmazonS3(&fakeS3{}, "artifacts", "reports", nil)
	_, err := a.Stat(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	errBoom := errors.New("boom")
	a = NewAmazonS3(&fakeS3{headErr: errBoom}, "artifacts", "reports", nil)
	_, err = a.Stat(context.Background(), "job-1")
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: &mockAPIError{code: "NotFound"}, want: true},
		{name: "no such key", err: &mockAPIError{code: "NoSuchKey"}, want: true},
		{name: "wrapped", err: fmt.Errorf("head: %w", &mockAPIError{code: "NoSuchKey"}), want: true},
		{name: "access denied", err: &mockAPIError{code: "AccessDenied"}, want: false},
		{name: "plain", err: errors.New("NotFound"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFoundError(tt.err))
		})
	}
}
