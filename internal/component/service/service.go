// Package service implements ComponentService (SPEC_FULL.md §4.3/§4.4):
// the facade presenting get and get_metadata over either a remote registry
// or a local directory, each backed by its own pair of component/metadata
// caches.
package service

import (
	"context"

	"github.com/wasmcache/component-cache/internal/component"
)

// Service is the public surface every facade variant implements.
type Service interface {
	// Get resolves (id, version) to a compiled artifact and its metadata,
	// using engine to compile on a cache miss.
	Get(ctx context.Context, engine component.Engine, id component.Id, version component.Version) (component.Compiled, component.Metadata, error)

	// GetMetadata resolves metadata for id. When version is nil, the
	// newest version is always fetched directly (bypassing the cache
	// read, though the result is still cached) so that "latest" requests
	// promptly observe a newer version.
	GetMetadata(ctx context.Context, id component.Id, version *component.Version) (component.Metadata, error)
}
