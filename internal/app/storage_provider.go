package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/platform/storage"
)

var newStore = storage.New

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveStore checks the storage section before dialing so misconfiguration
// surfaces with a specific code instead of a connect error.
func resolveStore(ctx context.Context, log *logger.Logger, cfg config.StorageConfig) (storage.Store, error) {
	bootstrapErr := func(code StorageProviderBootstrapErrorCode, cause error) error {
		err := &StorageProviderBootstrapError{
			Code:         code,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        cause,
		}
		log.Error("Object storage provider bootstrap failed",
			"mode", cfg.Mode,
			"emulator_host", cfg.EmulatorHost,
			"error_code", code,
			"error", cause,
		)
		return err
	}

	switch cfg.Mode {
	case config.StorageLocal, "", config.StorageGCS, config.StorageGCSEmulator:
	default:
		return nil, bootstrapErr(StorageProviderBootstrapErrorInvalidMode, fmt.Errorf("unsupported object storage mode %q", cfg.Mode))
	}
	if cfg.Mode == config.StorageGCSEmulator && strings.TrimSpace(cfg.EmulatorHost) == "" {
		return nil, bootstrapErr(StorageProviderBootstrapErrorMissingEmulatorHost, errors.New("storage.emulator_host is required for gcs_emulator"))
	}
	if (cfg.Mode == config.StorageGCS || cfg.Mode == config.StorageGCSEmulator) && strings.TrimSpace(cfg.Bucket) == "" {
		return nil, bootstrapErr(StorageProviderBootstrapErrorMissingBucket, errors.New("storage.bucket is required"))
	}

	log.Info("Selecting object storage provider", "mode", cfg.Mode, "emulator_host", cfg.EmulatorHost)
	store, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, bootstrapErr(StorageProviderBootstrapErrorConnectFailed, err)
	}
	return store, nil
}
