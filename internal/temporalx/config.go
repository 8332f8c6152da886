package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/quoteflow-backend/internal/config"
)

const (
	defaultNamespace     = "default"
	defaultTaskQueue     = "quoteflow"
	defaultRetentionDays = 7
	maxRetentionDays     = 365
)

// Config is the resolved Temporal connection setup.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	DialWait              time.Duration
	AutoRegisterNamespace bool
	Retention             time.Duration

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string
}

func FromConfig(c config.TemporalConfig) Config {
	days := c.RetentionDays
	switch {
	case days < 1:
		days = defaultRetentionDays
	case days > maxRetentionDays:
		days = maxRetentionDays
	}
	return Config{
		Address:               strings.TrimSpace(c.Address),
		Namespace:             orDefault(c.Namespace, defaultNamespace),
		TaskQueue:             orDefault(c.TaskQueue, defaultTaskQueue),
		DialWait:              time.Duration(max(c.DialWaitSeconds, 0)) * time.Second,
		AutoRegisterNamespace: c.AutoRegisterNamespace,
		Retention:             time.Duration(days) * 24 * time.Hour,
		ClientCertPath:        strings.TrimSpace(c.TLS.CertPath),
		ClientKeyPath:         strings.TrimSpace(c.TLS.KeyPath),
		ClientCAPath:          strings.TrimSpace(c.TLS.CAPath),
	}
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
