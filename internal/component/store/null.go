package store

import (
	"context"

	"github.com/wasmcache/component-cache/internal/component"
)

// NullStore is a CompiledArtifactStore for engines that don't want a side
// store: every Get is a miss and every Put is a no-op.
type NullStore struct{}

// NewNullStore returns a NullStore. It exists purely to make the
// CompiledArtifactStore call sites symmetric with NewRedisStore.
func NewNullStore() *NullStore { return &NullStore{} }

func (NullStore) Get(ctx context.Context, id component.Id, version component.Version, engineFingerprint string) (component.Compiled, bool, error) {
	return nil, false, nil
}

func (NullStore) Put(ctx context.Context, id component.Id, version component.Version, engineFingerprint string, artifact component.Compiled) error {
	return nil
}
