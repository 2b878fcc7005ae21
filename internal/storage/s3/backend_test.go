package s3

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/retry"
)

type fakeAPI struct {
	objects  map[string][]byte
	headErrs []error
	getErrs  []error
	heads    int
	gets     int
	lastKey  string
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.heads++
	f.lastKey = aws.ToString(in.Key)
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		return nil, err
	}
	data, ok := f.objects[f.lastKey]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  &modified,
		ETag:          aws.String(`"etag"`),
	}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	f.lastKey = aws.ToString(in.Key)
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, err
	}
	data, ok := f.objects[f.lastKey]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func fastRetryer() *retry.Retryer {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.Jitter = false
	return retry.New(cfg)
}

func newTestBackend(api API, prefix string) *Backend {
	return NewBackendWithAPI(api, &Config{Bucket: "media", Prefix: prefix}, fastRetryer(), nil)
}

func TestNewBackend_EmptyBucket(t *testing.T) {
	backend, err := NewBackend(context.Background(), &Config{Region: "us-east-1"}, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, backend)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
	assert.Contains(t, err.Error(), "bucket name cannot be empty")
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestBackend_Stat(t *testing.T) {
	api := &fakeAPI{objects: map[string][]byte{"share/films/a.mp4": []byte("0123456789")}}
	backend := newTestBackend(api, "/share/")

	info, err := backend.Stat(context.Background(), "films/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "films/a.mp4", info.Key)
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, `"etag"`, info.ETag)
	assert.Equal(t, "share/films/a.mp4", api.lastKey)
}

func TestBackend_StatNotFound(t *testing.T) {
	api := &fakeAPI{objects: map[string][]byte{}}
	backend := newTestBackend(api, "")

	_, err := backend.Stat(context.Background(), "missing.mp4")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeObjectNotFound))
	assert.Equal(t, 1, api.heads, "not-found must not be retried")
}

func TestBackend_StatRetriesNetworkErrors(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: assert.AnError}
	api := &fakeAPI{
		objects:  map[string][]byte{"a.mp4": []byte("abc")},
		headErrs: []error{netErr, netErr},
	}
	backend := newTestBackend(api, "")

	info, err := backend.Stat(context.Background(), "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, 3, api.heads)
}

func TestBackend_StatRetryExhausted(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: assert.AnError}
	api := &fakeAPI{headErrs: []error{netErr, netErr, netErr}}
	backend := newTestBackend(api, "")

	_, err := backend.Stat(context.Background(), "a.mp4")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRetryExhausted))
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
}

func TestBackend_InvalidPath(t *testing.T) {
	api := &fakeAPI{}
	backend := newTestBackend(api, "")

	_, err := backend.Stat(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid))
	assert.Equal(t, 0, api.heads)

	_, err = backend.Open(context.Background(), "/abs.mp4")
	assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid))
}

func TestBackend_Open(t *testing.T) {
	api := &fakeAPI{objects: map[string][]byte{"a.mp4": []byte("payload")}}
	backend := newTestBackend(api, "")

	rc, err := backend.Open(context.Background(), "a.mp4")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestBackend_OpenNotFound(t *testing.T) {
	backend := newTestBackend(&fakeAPI{objects: map[string][]byte{}}, "")

	_, err := backend.Open(context.Background(), "missing.mp4")
	assert.True(t, errors.HasCode(err, errors.ErrCodeObjectNotFound))
}

func TestTranslateError(t *testing.T) {
	backend := newTestBackend(&fakeAPI{}, "")

	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"no such key", &s3types.NoSuchKey{}, errors.ErrCodeObjectNotFound},
		{"not found", &s3types.NotFound{}, errors.ErrCodeObjectNotFound},
		{"no such bucket", &s3types.NoSuchBucket{}, errors.ErrCodeInvalidConfig},
		{"canceled", context.Canceled, errors.ErrCodeOperationCanceled},
		{"deadline", context.DeadlineExceeded, errors.ErrCodeOperationTimeout},
		{"network", &net.OpError{Op: "read", Err: assert.AnError}, errors.ErrCodeConnectionFailed},
		{"other", assert.AnError, errors.ErrCodeStorageRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := backend.translateError(tt.err, "HeadObject", "k")
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Contains(t, err.Error(), "s3://media/k")
		})
	}
}
