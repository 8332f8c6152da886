package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/platform/openai"
	"github.com/yungbote/quoteflow-backend/internal/platform/redisx"
	"github.com/yungbote/quoteflow-backend/internal/platform/storage"
	"github.com/yungbote/quoteflow-backend/internal/realtime/bus"
	"github.com/yungbote/quoteflow-backend/internal/temporalx"
)

type Clients struct {
	Redis       *goredis.Client
	Bus         bus.Bus
	Reserver    redisx.Reserver
	LLM         openai.Client
	Store       storage.Store
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis is optional: without it events stay in-process and plan
	// generation relies on the database unique key alone.
	if cfg.RedisEnabled() {
		rdb, err := redisx.NewClient(ctx, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		b, err := bus.NewRedisBus(rdb, cfg.Redis.Channel, log)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		out.Redis = rdb
		out.Bus = b
		out.Reserver = redisx.NewReserver(rdb, "")
	} else {
		out.Bus = bus.NewLocalBus()
		out.Reserver = redisx.NoopReserver{}
	}

	store, err := resolveStore(ctx, log, cfg.Storage)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.Store = store

	llm, err := openai.NewClient(cfg.LLM, log)
	if err != nil {
		log.Warn("LLM client disabled; extraction jobs will fail until llm.api_key is set", "error", err)
		llm = openai.Disabled(err)
	}
	out.LLM = llm

	out.TemporalCfg = temporalx.FromConfig(cfg.Temporal)
	if cfg.TemporalEnabled() {
		tc, err := temporalx.NewClient(out.TemporalCfg, log)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
	}

	return out, nil
}

func (c Clients) Close() {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
