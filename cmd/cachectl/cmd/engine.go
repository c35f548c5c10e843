package cmd

import "github.com/wasmcache/component-cache/internal/component"

// passthroughEngine is a placeholder component.Engine for cachectl's "warm"
// command: it does not parse wasm at all, it just hands the raw bytes back
// as the "compiled" artifact. A real deployment wires in an actual wasm
// engine (wasmtime, wasmer, ...); that wiring is outside this module's
// scope (see the Non-goals in SPEC_FULL.md).
type passthroughEngine struct{}

func (passthroughEngine) Compile(raw []byte) (component.Compiled, error) {
	return raw, nil
}

func (passthroughEngine) Fingerprint() string {
	return "cachectl-passthrough-v1"
}
