package cmd

import (
	"fmt"

	"github.com/wasmcache/component-cache/internal/component"
)

// jsonBytesCodec serializes a passthroughEngine's Compiled artifact, which is
// just the raw component bytes, straight through to the side store. A
// real wasm engine's Codec would instead (de)serialize its own compiled
// module representation.
type jsonBytesCodec struct{}

func (jsonBytesCodec) Serialize(c component.Compiled) ([]byte, error) {
	b, ok := c.([]byte)
	if !ok {
		return nil, fmt.Errorf("jsonBytesCodec: expected []byte artifact, got %T", c)
	}
	return b, nil
}

func (jsonBytesCodec) Deserialize(b []byte) (component.Compiled, error) {
	return b, nil
}
