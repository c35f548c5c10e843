package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wasmcache/component-cache/internal/cachecore"
	"github.com/wasmcache/component-cache/internal/component"
	"github.com/wasmcache/component-cache/internal/component/compilepool"
	"github.com/wasmcache/component-cache/internal/component/localfs"
	"github.com/wasmcache/component-cache/internal/component/wasmstat"
	"github.com/wasmcache/component-cache/pkg/telemetry"
)

var _ Service = (*LocalService)(nil)

// LocalService is the ComponentService variant backed by a local
// directory (SPEC_FULL.md §4.4): structurally identical to RemoteService's
// cache wiring, sourcing bytes and metadata from a localfs.Fetcher instead
// of the registry RPC, and deriving Memories/Exports via wasmstat instead
// of decoding them off the wire.
type LocalService struct {
	fetcher *localfs.Fetcher
	pool    *compilepool.Pool

	componentCache *cachecore.Cache[component.Key, component.Compiled]
	metadataCache  *cachecore.Cache[component.Key, component.Metadata]

	metrics *telemetry.ComponentMetrics
	logger  *slog.Logger
}

// NewLocalService wires a LocalService rooted at fetcher.Root.
func NewLocalService(fetcher *localfs.Fetcher, pool *compilepool.Pool, cfg RemoteConfig, cacheMetrics *telemetry.CacheMetrics, componentMetrics *telemetry.ComponentMetrics, logger *slog.Logger) (*LocalService, error) {
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

	return &LocalService{
		fetcher:        fetcher,
		pool:           pool,
		componentCache: componentCache,
		metadataCache:  metadataCache,
		metrics:        componentMetrics,
		logger:         logger,
	}, nil
}

// Close stops both caches' background reapers.
func (s *LocalService) Close() {
	s.componentCache.Close()
	s.metadataCache.Close()
}

func (s *LocalService) Get(ctx context.Context, engine component.Engine, id component.Id, version component.Version) (component.Compiled, component.Metadata, error) {
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

// produceArtifact reads the raw bytes off disk and compiles them. A
// compile-join cancellation (compilepool.Pool.Compile returning
// *component.Unknown) is returned unwrapped rather than folded into
// ComponentParseFailed: the two are spec-distinct error kinds (spec.md §5,
// §7) and only an actual engine compile failure is a parse failure.
func (s *LocalService) produceArtifact(ctx context.Context, engine component.Engine, id component.Id, version component.Version) (component.Compiled, error) {
	raw, err := s.fetcher.ReadBytes(id, version)
	if err != nil {
		return nil, err
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
	return artifact, nil
}

// readMetadata combines the sidecar JSON (type, files) with wasmstat's
// static analysis of the raw bytes (memories, exports). A static-analysis
// failure does not fail the call: memories and exports default to empty,
// matching the remote facade's tolerance for minimal components.
func (s *LocalService) readMetadata(id component.Id, version component.Version) (component.Metadata, error) {
	md, err := s.fetcher.ReadMetadata(id, version)
	if err != nil {
		return component.Metadata{}, err
	}

	raw, err := s.fetcher.ReadBytes(id, version)
	if err != nil {
		return md, nil
	}

	analysis, err := wasmstat.Analyze(raw)
	if err != nil {
		s.logger.Debug("wasm static analysis failed, defaulting memories/exports to empty", "id", id, "version", version, "error", err)
		return md, nil
	}
	md.Memories = analysis.Memories
	md.Exports = analysis.Exports
	return md, nil
}

func (s *LocalService) GetMetadata(ctx context.Context, id component.Id, version *component.Version) (component.Metadata, error) {
	if version != nil {
		key := component.Key{Id: id, Version: *version}
		return s.metadataCache.GetOrInsert(ctx, key, func(ctx context.Context) (component.Metadata, error) {
			return s.readMetadata(id, *version)
		})
	}

	resolved, err := s.fetcher.Resolve(id, nil)
	if err != nil {
		return component.Metadata{}, err
	}
	md, err := s.readMetadata(id, resolved)
	if err != nil {
		return component.Metadata{}, err
	}

	s.metadataCache.Put(component.Key{Id: id, Version: md.Version}, md)
	return md, nil
}
