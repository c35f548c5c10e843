package cmd

import (
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wasmcache/component-cache/internal/component/compilepool"
	"github.com/wasmcache/component-cache/internal/component/localfs"
	"github.com/wasmcache/component-cache/internal/component/registry"
	"github.com/wasmcache/component-cache/internal/component/service"
	"github.com/wasmcache/component-cache/internal/component/store"
	"github.com/wasmcache/component-cache/internal/config"
	"github.com/wasmcache/component-cache/pkg/logger"
	"github.com/wasmcache/component-cache/pkg/telemetry"
)

// buildService wires a service.Service out of cfg, picking the remote or
// local facade per cfg.ComponentService. The returned closer should be
// called once the caller is done (it tears down any gRPC connection and
// stops the cache reapers).
func buildService(cfg *config.Config, log *slog.Logger) (service.Service, func(), error) {
	pool := compilepool.New(8)
	cacheMetrics := telemetry.NewCacheMetrics()
	componentMetrics := telemetry.NewComponentMetrics()

	cacheCfg := service.RemoteConfig{
		MaxCapacity:         cfg.Cache.MaxCapacity,
		MaxMetadataCapacity: cfg.Cache.MaxMetadataCapacity,
		TimeToIdle:          cfg.Cache.TimeToIdle,
	}

	switch {
	case cfg.ComponentService.Local != nil:
		fetcher := localfs.NewFetcher(cfg.ComponentService.Local.Root)
		svc, err := service.NewLocalService(fetcher, pool, cacheCfg, cacheMetrics, componentMetrics, log)
		if err != nil {
			return nil, nil, fmt.Errorf("build local component service: %w", err)
		}
		return svc, svc.Close, nil

	case cfg.ComponentService.Remote != nil:
		rc := cfg.ComponentService.Remote
		conn, err := grpc.NewClient(rc.URL, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial registry %s: %w", rc.URL, err)
		}

		client := registry.NewGrpcClient(conn, registry.GrpcClientConfig{
			AccessToken:     rc.AccessToken,
			MaxInboundBytes: int(rc.MaxComponentSize),
			Retries:         rc.Retries.ToRetryPolicy(),
			RatePerSecond:   rc.RatePerSecond,
			RateBurst:       rc.RateBurst,
		}, componentMetrics, log)

		artifactStore, err := buildArtifactStore(cfg, log)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}

		svc, err := service.NewRemoteService(client, artifactStore, pool, cacheCfg, cacheMetrics, componentMetrics, log)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("build remote component service: %w", err)
		}

		return svc, func() {
			svc.Close()
			conn.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("component_service: neither remote nor local is configured")
	}
}

// buildArtifactStore reads the opaque compiled_component_service passthrough
// map for a "redis" backend, falling back to a null store otherwise
// (SPEC_FULL.md §6.3: this section is opaque to the core and is passed
// through to the store constructor as-is).
func buildArtifactStore(cfg *config.Config, log *slog.Logger) (store.CompiledArtifactStore, error) {
	raw, ok := cfg.CompiledComponentService["redis"]
	if !ok {
		return store.NewNullStore(), nil
	}

	redisCfg, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("compiled_component_service.redis must be a mapping")
	}

	addr, _ := redisCfg["addr"].(string)
	if addr == "" {
		return nil, fmt.Errorf("compiled_component_service.redis.addr is required")
	}
	password, _ := redisCfg["password"].(string)

	return store.NewRedisStore(store.RedisConfig{
		Addr:     addr,
		Password: password,
	}, jsonBytesCodec{}, log)
}

// defaultLogger builds the CLI's logger from cfg's log section.
func defaultLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
}
