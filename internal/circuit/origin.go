package circuit

import (
	"context"
	"io"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
)

// Origin guards an origin store with a breaker so that an unreachable
// origin fails the remaining candidates at once.
type Origin struct {
	store   types.OriginStore
	breaker *Breaker
}

// NewOrigin wraps store. A breaker without an IsFailure func gets
// IsOriginFailure.
func NewOrigin(store types.OriginStore, config Config) *Origin {
	if config.IsFailure == nil {
		config.IsFailure = IsOriginFailure
	}
	return &Origin{
		store:   store,
		breaker: NewBreaker("origin", config),
	}
}

// Breaker exposes the underlying breaker.
func (o *Origin) Breaker() *Breaker {
	return o.breaker
}

// Stat calls through to the store.
func (o *Origin) Stat(ctx context.Context, relativePath string) (*types.ObjectInfo, error) {
	var info *types.ObjectInfo
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		var statErr error
		info, statErr = o.store.Stat(ctx, relativePath)
		return statErr
	})
	return info, err
}

// Open calls through to the store.
func (o *Origin) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		var openErr error
		rc, openErr = o.store.Open(ctx, relativePath)
		return openErr
	})
	return rc, err
}

// IsOriginFailure reports errors that say the origin itself is unhealthy.
// A missing object or a bad path is a valid answer and does not count.
func IsOriginFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, code := range []errors.ErrorCode{
		errors.ErrCodeObjectNotFound,
		errors.ErrCodePathInvalid,
		errors.ErrCodeOperationCanceled,
	} {
		if errors.HasCode(err, code) {
			return false
		}
	}
	return true
}
