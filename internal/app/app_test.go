package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Log.Mode = "test"
	cfg.Log.Level = "error"
	cfg.Database.DSN = fmt.Sprintf("file:app_%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Storage.LocalDir = filepath.Join(t.TempDir(), "blobs")
	cfg.LLM.APIKey = ""
	cfg.Redis.Addr = ""
	cfg.Temporal.Address = ""
	return cfg
}

func TestNewWiresLocalStack(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	if a.Clients.Redis != nil || a.Clients.Temporal != nil {
		t.Fatalf("optional clients should stay nil without addresses")
	}
	if got := a.Clients.LLM.Model(); got != "disabled" {
		t.Fatalf("expected disabled LLM without api key, got %q", got)
	}
	if got := a.Services.JobRegistry.Types(); len(got) != 2 {
		t.Fatalf("expected two registered pipelines, got %v", got)
	}
	if _, err := a.Services.Engine.PlanSpec(pricing.PlanP1); err != nil {
		t.Fatalf("PlanSpec: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Worker.Concurrency = 0
	if _, err := New(context.Background(), cfg, "test"); err == nil {
		t.Fatalf("expected validation error")
	}
}
