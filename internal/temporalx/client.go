package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

const (
	dialAttemptTimeout = 5 * time.Second
	namespaceWait      = 10 * time.Second
	retryBase          = 250 * time.Millisecond
	retryMax           = 5 * time.Second
)

// NewClient dials Temporal, retrying for up to cfg.DialWait while the
// frontend comes up. It returns a nil client when no address is configured.
func NewClient(cfg Config, log *logger.Logger) (temporalsdkclient.Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Address == "" {
		log.Info("Temporal address not set; using the polling worker")
		return nil, nil
	}
	opts, err := cfg.clientOptions(log, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	dial := func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, dialAttemptTimeout)
		defer cancel()
		var derr error
		c, derr = temporalsdkclient.DialContext(attemptCtx, opts)
		return derr
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialWait+dialAttemptTimeout)
	defer cancel()
	// every dial failure is worth another try until the wait runs out
	always := func(error) bool { return true }
	if err := retryFor(ctx, cfg.DialWait, log, "temporal dial", always, dial); err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace)

	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(context.Background(), cfg, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace when it does not exist yet. Meant
// for self-hosted clusters; managed namespaces are provisioned upfront.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	if cfg.Namespace == "" || cfg.Address == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, namespaceWait)
	defer cancel()

	// no namespace header, so the client may register one
	opts, err := cfg.clientOptions(log, false)
	if err != nil {
		return err
	}
	nsClient, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer nsClient.Close()

	err = retryFor(ctx, namespaceWait, log, "temporal namespace ensure", isRetryableRPC, func(ctx context.Context) error {
		_, err := nsClient.Describe(ctx, cfg.Namespace)
		var missing *serviceerror.NamespaceNotFound
		if !errors.As(err, &missing) {
			return err
		}
		err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        cfg.Namespace,
			Description:                      "quoteflow job namespace",
			WorkflowExecutionRetentionPeriod: durationpb.New(cfg.Retention),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			log.Info("Registered Temporal namespace", "namespace", cfg.Namespace, "retention", cfg.Retention.String())
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("temporal namespace ensure (namespace=%s): %w", cfg.Namespace, err)
	}
	return nil
}

func (c Config) clientOptions(log *logger.Logger, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: c.Address, Logger: log}
	if withNamespace {
		opts.Namespace = c.Namespace
	}
	if c.tlsEnabled() {
		tlsCfg, err := c.loadTLS()
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

func (c Config) loadTLS() (*tls.Config, error) {
	if c.ClientCertPath == "" || c.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal tls: cert_path and key_path are both required")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCertPath, c.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: load client cert/key: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if c.ClientCAPath == "" {
		return out, nil
	}
	pem, err := os.ReadFile(c.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("temporal tls: invalid CA pem")
	}
	out.RootCAs = pool
	return out, nil
}

// retryFor runs fn until it succeeds, returns an error retryable rejects, or
// wait has elapsed. The last error is returned.
func retryFor(ctx context.Context, wait time.Duration, log *logger.Logger, what string, retryable func(error) bool, fn func(context.Context) error) error {
	deadline := time.Now().Add(wait)
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || !time.Now().Before(deadline) {
			return err
		}
		log.Warn(what+" failed; retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", what, ctx.Err(), err)
		case <-time.After(Backoff(retryBase, retryMax, attempt)):
		}
	}
}

// Backoff doubles base per attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = retryBase
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
