package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type gcsStore struct {
	log          *logger.Logger
	client       *gcs.Client
	mode         config.StorageMode
	bucket       string
	prefix       string
	emulatorHost string
	httpClient   *http.Client
}

func NewGCS(ctx context.Context, cfg config.StorageConfig, baseLog *logger.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage.bucket is required for gcs storage")
	}
	log := baseLog.With("service", "GCSStore")
	client, err := newGCSClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	s := &gcsStore{
		log:          log,
		client:       client,
		mode:         cfg.Mode,
		bucket:       cfg.Bucket,
		prefix:       cfg.Prefix,
		emulatorHost: strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		httpClient:   http.DefaultClient,
	}
	log.Info("Object storage initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", s.emulatorHost)
	return s, nil
}

func newGCSClient(ctx context.Context, cfg config.StorageConfig) (*gcs.Client, error) {
	switch cfg.Mode {
	case config.StorageGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
		return gcs.NewClient(ctx, opts...)
	case config.StorageGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid storage.emulator_host %q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
		}
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return gcs.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("unsupported gcs mode %q", cfg.Mode)
	}
}

// ClientOptionsFromEnv reads service-account credentials from
// GOOGLE_APPLICATION_CREDENTIALS_JSON (inline) or GOOGLE_APPLICATION_CREDENTIALS (path).
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (s *gcsStore) Mode() config.StorageMode { return s.mode }

func (s *gcsStore) objectName(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return withPrefix(s.prefix, k), nil
}

func (s *gcsStore) isEmulator() bool {
	return s.mode == config.StorageGCSEmulator && s.emulatorHost != ""
}

func (s *gcsStore) emulatorMediaURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", s.emulatorHost, url.PathEscape(s.bucket), url.PathEscape(name))
}

func (s *gcsStore) emulatorMetaURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s", s.emulatorHost, url.PathEscape(s.bucket), url.PathEscape(name))
}

func (s *gcsStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// readCloserWithCancel ties the read context to Close; cancelling earlier
// would truncate the stream.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (s *gcsStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	if s.isEmulator() {
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, s.emulatorMediaURL(name), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator download request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed emulator download request: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}

	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx2)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err = s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", name, s.bucket, err)
	}
	return nil
}

func (s *gcsStore) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if s.isEmulator() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.emulatorMetaURL(name), nil)
		if err != nil {
			return false, err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return false, fmt.Errorf("failed emulator attrs request: %w", err)
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			return false, nil
		default:
			return false, fmt.Errorf("emulator attrs failed: status=%d", resp.StatusCode)
		}
	}
	_, err = s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return true, nil
}
