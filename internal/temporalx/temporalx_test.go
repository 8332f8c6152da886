package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

func TestFromConfigDefaults(t *testing.T) {
	cfg := FromConfig(config.TemporalConfig{Address: " localhost:7233 ", DialWaitSeconds: -3})
	if cfg.Address != "localhost:7233" {
		t.Fatalf("address=%q", cfg.Address)
	}
	if cfg.Namespace != "default" || cfg.TaskQueue != "quoteflow" {
		t.Fatalf("defaults: namespace=%q task_queue=%q", cfg.Namespace, cfg.TaskQueue)
	}
	if cfg.DialWait != 0 {
		t.Fatalf("negative dial wait should clamp to zero: %v", cfg.DialWait)
	}
	if cfg.Retention != 7*24*time.Hour {
		t.Fatalf("retention=%v", cfg.Retention)
	}
	if cfg.AutoRegisterNamespace || cfg.tlsEnabled() {
		t.Fatalf("auto register and tls should be off by default")
	}
}

func TestFromConfigTLSAndRetention(t *testing.T) {
	cfg := FromConfig(config.TemporalConfig{
		Address:               "temporal:7233",
		RetentionDays:         1000,
		AutoRegisterNamespace: true,
		TLS:                   config.TemporalTLSConfig{CertPath: " /tls/client.pem "},
	})
	if cfg.Retention != 365*24*time.Hour {
		t.Fatalf("retention should cap at a year: %v", cfg.Retention)
	}
	if !cfg.AutoRegisterNamespace || !cfg.tlsEnabled() || cfg.ClientCertPath != "/tls/client.pem" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := cfg.clientOptions(nil, true); err == nil {
		t.Fatalf("expected error when the key path is missing")
	}
}

func TestRetryFor(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()
	transient := status.Error(codes.Unavailable, "down")

	calls := 0
	err := retryFor(ctx, time.Minute, log, "op", isRetryableRPC, func(context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("retry until success: calls=%d err=%v", calls, err)
	}

	calls = 0
	denied := status.Error(codes.PermissionDenied, "no")
	err = retryFor(ctx, time.Minute, log, "op", isRetryableRPC, func(context.Context) error {
		calls++
		return denied
	})
	if !errors.Is(err, denied) || calls != 1 {
		t.Fatalf("permanent error: calls=%d err=%v", calls, err)
	}

	calls = 0
	err = retryFor(ctx, 0, log, "op", isRetryableRPC, func(context.Context) error {
		calls++
		return transient
	})
	if err == nil || calls != 1 {
		t.Fatalf("zero wait should try once: calls=%d err=%v", calls, err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(Config{}, nil)
	if err != nil || c != nil {
		t.Fatalf("expected nil client, got %v %v", c, err)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, 2 * time.Second},
	}
	for _, tc := range tests {
		if got := Backoff(250*time.Millisecond, 2*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
	if got := Backoff(0, 0, 1); got != 250*time.Millisecond {
		t.Fatalf("zero base: %v", got)
	}
}

func TestIsRetryableRPC(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "slow down"), true},
		{"denied", status.Error(codes.PermissionDenied, "no"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableRPC(tc.err); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
