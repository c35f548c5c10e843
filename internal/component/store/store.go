// Package store defines the CompiledArtifactStore side-store contract
// (SPEC_FULL.md §4.2) and two implementations: a Redis-backed store shared
// across processes, and a null store for engines with no side cache.
package store

import (
	"context"
	"fmt"

	"github.com/wasmcache/component-cache/internal/component"
)

// Codec serializes and deserializes the engine-specific compiled artifact
// to and from bytes. It is the narrow seam that keeps this package free of
// any dependency on a particular wasm engine.
type Codec interface {
	Serialize(component.Compiled) ([]byte, error)
	Deserialize([]byte) (component.Compiled, error)
}

// Error is a store-side fault, as distinct from an ordinary miss.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compiled artifact store %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// CompiledArtifactStore caches engine-specific compiled artifacts, keyed
// by (component id, version) plus an out-of-band engine fingerprint the
// implementer uses to invalidate entries across engine upgrades.
//
// Get returning (nil, false, nil) is an ordinary miss. Put is best-effort:
// callers log a failure and otherwise ignore it, per SPEC_FULL.md §7.
type CompiledArtifactStore interface {
	Get(ctx context.Context, id component.Id, version component.Version, engineFingerprint string) (component.Compiled, bool, error)
	Put(ctx context.Context, id component.Id, version component.Version, engineFingerprint string, artifact component.Compiled) error
}

func key(id component.Id, version component.Version, engineFingerprint string) string {
	return fmt.Sprintf("component-cache:artifact:v1:%s:%s:%d", engineFingerprint, id, version)
}
