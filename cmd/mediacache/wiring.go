package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/internal/circuit"
	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/ledger"
	"github.com/mediacache/mediacache/internal/storage/local"
	"github.com/mediacache/mediacache/internal/storage/s3"
	"github.com/mediacache/mediacache/pkg/retry"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

func newRetryer(cfg *config.Configuration) *retry.Retryer {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Retry.MaxAttempts
	rc.InitialDelay = cfg.Retry.BaseDelay
	rc.MaxDelay = cfg.Retry.MaxDelay
	return retry.New(rc)
}

func newOrigin(ctx context.Context, cfg *config.Configuration, retryer *retry.Retryer, logger logrus.FieldLogger) (types.OriginStore, error) {
	store, err := newOriginStore(ctx, cfg, retryer, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Origin.FailureThreshold == 0 {
		return store, nil
	}

	log := utils.WithComponent(logger, "origin")
	return circuit.NewOrigin(store, circuit.Config{
		MaxFailures: uint32(cfg.Origin.FailureThreshold), // #nosec G115 -- validated non-negative
		Cooldown:    cfg.Origin.FailureCooldown,
		OnStateChange: func(name string, from, to circuit.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("Origin circuit changed state")
		},
	}), nil
}

func newOriginStore(ctx context.Context, cfg *config.Configuration, retryer *retry.Retryer, logger logrus.FieldLogger) (types.OriginStore, error) {
	switch cfg.Origin.Backend {
	case config.OriginS3:
		s3cfg := s3.NewDefaultConfig()
		s3cfg.Bucket = cfg.Origin.S3.Bucket
		s3cfg.Prefix = cfg.Origin.S3.Prefix
		if cfg.Origin.S3.Region != "" {
			s3cfg.Region = cfg.Origin.S3.Region
		}
		s3cfg.Endpoint = cfg.Origin.S3.Endpoint
		s3cfg.ForcePathStyle = cfg.Origin.S3.UsePathStyle
		return s3.NewBackend(ctx, s3cfg, retryer.WithOnRetry(logRetry(logger, "origin")), logger)
	default:
		return local.NewOrigin(cfg.Origin.Path)
	}
}

func newLedgerStore(cfg *config.Configuration, retryer *retry.Retryer) (types.LedgerStore, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		store := ledger.NewRedisStore(ledger.RedisConfig{
			Addr:     cfg.Ledger.Redis.Addr,
			Password: cfg.Ledger.Redis.Password,
			DB:       cfg.Ledger.Redis.DB,
			Key:      cfg.Ledger.Redis.Key,
			Timeout:  cfg.Ledger.Redis.Timeout,
		}, retryer)
		return store, func() { _ = store.Close() }, nil
	default:
		return ledger.NewFileStore(cfg.Ledger.Path), func() {}, nil
	}
}

func logRetry(logger logrus.FieldLogger, component string) func(int, error, time.Duration) {
	log := utils.WithComponent(logger, component)
	return func(attempt int, err error, delay time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Retrying")
	}
}
