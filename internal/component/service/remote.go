package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wasmcache/component-cache/internal/cachecore"
	"github.com/wasmcache/component-cache/internal/component"
	"github.com/wasmcache/component-cache/internal/component/compilepool"
	"github.com/wasmcache/component-cache/internal/component/registry"
	"github.com/wasmcache/component-cache/internal/component/store"
	"github.com/wasmcache/component-cache/pkg/telemetry"
)

var _ Service = (*RemoteService)(nil)

// RemoteConfig configures a RemoteService.
type RemoteConfig struct {
	MaxCapacity         int
	MaxMetadataCapacity int
	TimeToIdle          time.Duration
}

// RemoteService is the ComponentService variant backed by the registry
// RPC (SPEC_FULL.md §4.3): its component cache producer probes the
// CompiledArtifactStore before falling back to a registry download.
type RemoteService struct {
	client registry.Client
	store  store.CompiledArtifactStore
	pool   *compilepool.Pool

	componentCache *cachecore.Cache[component.Key, component.Compiled]
	metadataCache  *cachecore.Cache[component.Key, component.Metadata]

	metrics *telemetry.ComponentMetrics
	logger  *slog.Logger
}

// NewRemoteService wires a RemoteService. metrics and logger may be nil.
func NewRemoteService(client registry.Client, artifactStore store.CompiledArtifactStore, pool *compilepool.Pool, cfg RemoteConfig, cacheMetrics *telemetry.CacheMetrics, componentMetrics *telemetry.ComponentMetrics, logger *slog.Logger) (*RemoteService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	componentCache, err := cachecore.New[component.Key, component.Compiled](cachecore.Config{
		Name:        "component",
		MaxCapacity: cfg.MaxCapacity,
		TimeToIdle:  cfg.TimeToIdle,
	}, cacheMetrics, logger)
	if err != nil {
		return nil, err
	}

	metadataCache, err := cachecore.New[component.Key, component.Metadata](cachecore.Config{
		Name:        "metadata",
		MaxCapacity: cfg.MaxMetadataCapacity,
		TimeToIdle:  cfg.TimeToIdle,
	}, cacheMetrics, logger)
	if err != nil {
		componentCache.Close()
		return nil, err
	}

	return &RemoteService{
		client:         client,
		store:          artifactStore,
		pool:           pool,
		componentCache: componentCache,
		metadataCache:  metadataCache,
		metrics:        componentMetrics,
		logger:         logger,
	}, nil
}

// Close stops both caches' background reapers.
func (s *RemoteService) Close() {
	s.componentCache.Close()
	s.metadataCache.Close()
}

func (s *RemoteService) Get(ctx context.Context, engine component.Engine, id component.Id, version component.Version) (component.Compiled, component.Metadata, error) {
	key := component.Key{Id: id, Version: version}

	artifact, err := s.componentCache.GetOrInsert(ctx, key, func(ctx context.Context) (component.Compiled, error) {
		return s.produceArtifact(ctx, engine, id, version)
	})
	if err != nil {
		return nil, component.Metadata{}, err
	}

	md, err := s.GetMetadata(ctx, id, &version)
	if err != nil {
		return nil, component.Metadata{}, err
	}

	return artifact, md, nil
}

func (s *RemoteService) produceArtifact(ctx context.Context, engine component.Engine, id component.Id, version component.Version) (component.Compiled, error) {
	if cached, ok, err := s.store.Get(ctx, id, version, engine.Fingerprint()); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("compiled artifact store get failed, falling back to download", "id", id, "version", version, "error", err)
	}

	raw, err := s.client.DownloadComponent(ctx, id.String(), uint64(version))
	if err != nil {
		reason := err.Error()
		if msg, ok := registry.IsDomainError(err); ok {
			reason = msg
		}
		return nil, &component.ComponentDownloadFailed{Id: id, Version: version, Reason: reason}
	}

	start := time.Now()
	artifact, err := s.pool.Compile(ctx, func() (component.Compiled, error) {
		return engine.Compile(raw)
	})
	if err != nil {
		var unknown *component.Unknown
		if errors.As(err, &unknown) {
			return nil, unknown
		}
		return nil, &component.ComponentParseFailed{Id: id, Version: version, Reason: err.Error()}
	}
	s.metrics.RecordCompilationTime(time.Since(start))

	if err := s.store.Put(ctx, id, version, engine.Fingerprint(), artifact); err != nil {
		s.logger.Warn("compiled artifact store put failed", "id", id, "version", version, "error", err)
	}

	return artifact, nil
}

func (s *RemoteService) GetMetadata(ctx context.Context, id component.Id, version *component.Version) (component.Metadata, error) {
	if version != nil {
		key := component.Key{Id: id, Version: *version}
		return s.metadataCache.GetOrInsert(ctx, key, func(ctx context.Context) (component.Metadata, error) {
			view, err := s.client.GetComponentMetadata(ctx, id.String(), uint64(*version))
			if err != nil {
				return component.Metadata{}, s.wrapMetadataFetchError(id, err)
			}
			return registry.DecodeMetadata(view)
		})
	}

	view, err := s.client.GetLatestComponentMetadata(ctx, id.String())
	if err != nil {
		return component.Metadata{}, s.wrapMetadataFetchError(id, err)
	}
	md, err := registry.DecodeMetadata(view)
	if err != nil {
		return component.Metadata{}, err
	}

	s.metadataCache.Put(component.Key{Id: id, Version: md.Version}, md)
	return md, nil
}

func (s *RemoteService) wrapMetadataFetchError(id component.Id, err error) error {
	reason := err.Error()
	if msg, ok := registry.IsDomainError(err); ok {
		reason = msg
	}
	return &component.GetLatestVersionOfComponentFailed{Id: id, Reason: reason}
}
