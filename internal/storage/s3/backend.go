package s3

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/retry"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Backend is a read-only origin store over an S3 bucket prefix
type Backend struct {
	api     API
	bucket  string
	prefix  string
	retryer *retry.Retryer
	logger  *logrus.Entry
}

// NewBackend creates an S3 origin using the default AWS credential chain
func NewBackend(ctx context.Context, cfg *Config, retryer *retry.Retryer, logger logrus.FieldLogger) (*Backend, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent("origin")
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to create S3 client").
			WithComponent("origin")
	}
	return NewBackendWithAPI(client, cfg, retryer, logger), nil
}

// NewBackendWithAPI wraps an existing client
func NewBackendWithAPI(api API, cfg *Config, retryer *retry.Retryer, logger logrus.FieldLogger) *Backend {
	if retryer == nil {
		retryer = retry.New(retry.DefaultConfig())
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	return &Backend{
		api:     api,
		bucket:  cfg.Bucket,
		prefix:  prefix,
		retryer: retryer,
		logger: utils.WithComponent(logger, "origin").WithFields(logrus.Fields{
			"backend": "s3",
			"bucket":  cfg.Bucket,
		}),
	}
}

// Stat returns the size of an origin object
func (b *Backend) Stat(ctx context.Context, relativePath string) (*types.ObjectInfo, error) {
	key, err := b.key(relativePath)
	if err != nil {
		return nil, err
	}

	var result *s3.HeadObjectOutput
	err = b.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var headErr error
		result, headErr = b.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if headErr != nil {
			return b.translateError(headErr, "HeadObject", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &types.ObjectInfo{
		Key:          relativePath,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
		ETag:         aws.ToString(result.ETag),
	}, nil
}

// Open streams an origin object. The caller closes the reader.
func (b *Backend) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	key, err := b.key(relativePath)
	if err != nil {
		return nil, err
	}

	var result *s3.GetObjectOutput
	err = b.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var getErr error
		result, getErr = b.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if getErr != nil {
			return b.translateError(getErr, "GetObject", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.logger.WithField("key", key).Debug("Streaming object from S3")
	return result.Body, nil
}

func (b *Backend) key(relativePath string) (string, error) {
	if err := utils.ValidateRelativePath(relativePath); err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, "invalid origin path").
			WithComponent("origin").WithDetail("path", relativePath)
	}
	if b.prefix == "" {
		return relativePath, nil
	}
	return b.prefix + "/" + relativePath, nil
}

func (b *Backend) translateError(err error, operation, key string) error {
	code := errors.ErrCodeStorageRead
	var apiErr smithy.APIError
	var netErr net.Error

	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		code = errors.ErrCodeObjectNotFound
	case isErrorType[*s3types.NoSuchBucket](err):
		code = errors.ErrCodeInvalidConfig
	case stderr.Is(err, context.Canceled):
		code = errors.ErrCodeOperationCanceled
	case stderr.Is(err, context.DeadlineExceeded):
		code = errors.ErrCodeOperationTimeout
	case stderr.As(err, &netErr):
		code = errors.ErrCodeConnectionFailed
	case stderr.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			code = errors.ErrCodeAccessDenied
		case "NotFound":
			code = errors.ErrCodeObjectNotFound
		}
	}

	return errors.Wrap(err, code, fmt.Sprintf("%s failed for s3://%s/%s", operation, b.bucket, key)).
		WithComponent("origin").
		WithOperation(operation)
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
