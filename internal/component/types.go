// Package component defines the data model shared by every cache, fetcher,
// and facade that resolves a (component id, version) pair into a compiled
// wasm component and its metadata.
package component

import (
	"fmt"

	"github.com/google/uuid"
)

// Id is the opaque, UUID-shaped identifier of a component.
type Id uuid.UUID

// ParseId parses the canonical string form of an Id.
func ParseId(s string) (Id, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Id{}, fmt.Errorf("parse component id: %w", err)
	}
	return Id(u), nil
}

func (id Id) String() string {
	return uuid.UUID(id).String()
}

// Version is the registry-assigned, monotonically non-decreasing revision
// of a component.
type Version uint64

// Key identifies one cache slot: a specific version of a specific component.
type Key struct {
	Id      Id
	Version Version
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.Id, k.Version)
}

// Type is the durability flavor of a component.
type Type int

const (
	// Durable is the default flavor: executions are persisted by the worker
	// runtime.
	Durable Type = iota
	Ephemeral
)

func (t Type) String() string {
	if t == Ephemeral {
		return "Ephemeral"
	}
	return "Durable"
}

// ParseType maps the registry/sidecar string spelling to a Type. Unknown
// spellings are reported via the bool return, leaving decode-time error
// handling to the caller.
func ParseType(s string) (Type, bool) {
	switch s {
	case "Durable", "":
		return Durable, true
	case "Ephemeral":
		return Ephemeral, true
	default:
		return Durable, false
	}
}

// FilePermissions is the access mode an InitialFile is materialized with.
type FilePermissions int

const (
	ReadOnly FilePermissions = iota
	ReadWrite
)

func ParseFilePermissions(s string) (FilePermissions, bool) {
	switch s {
	case "ReadOnly":
		return ReadOnly, true
	case "ReadWrite":
		return ReadWrite, true
	default:
		return 0, false
	}
}

func (p FilePermissions) String() string {
	if p == ReadWrite {
		return "ReadWrite"
	}
	return "ReadOnly"
}

// InitialFile is a file to be materialized in a worker's sandbox at startup.
type InitialFile struct {
	Key         string
	Path        string
	Permissions FilePermissions
}

// LinearMemory describes one wasm linear memory's bounds, in bytes.
type LinearMemory struct {
	InitialBytes uint64
	MaximumBytes *uint64 // nil means unbounded
}

// WasmPageSize is the fixed wasm page size; page counts derived from raw
// bytes are multiplied by this to get byte counts.
const WasmPageSize = 65536

// AnalysedExport is an opaque structural summary of one export: its name
// and a stringified shape description produced by static analysis or by
// decoding the registry's analysed-export proto.
type AnalysedExport struct {
	Name  string
	Shape string
}

// Metadata is the canonical, decoded record describing one component
// version: its size, its linear memories, its exported surface, its
// durability flavor, and the files it wants materialized at startup.
type Metadata struct {
	Version   Version
	SizeBytes uint64
	Memories  []LinearMemory
	Exports   []AnalysedExport
	Type      Type
	Files     []InitialFile
}

// Engine is the narrow wasm-engine collaborator this module depends on. It
// is supplied by the caller of ComponentService.Get, not constructed here:
// the cache knows nothing about how to run wasm, only how to memoize the
// result of asking an Engine to produce one.
type Engine interface {
	// Compile turns raw component bytes into an engine-ready artifact.
	// This is CPU-heavy, synchronous work; callers dispatch it through a
	// blocking-offload pool rather than calling it inline on a goroutine
	// other callers are waiting on.
	Compile(raw []byte) (Compiled, error)

	// Fingerprint identifies this engine build/version for the purposes of
	// CompiledArtifactStore invalidation: a store entry compiled by one
	// engine fingerprint must never be handed to a different one.
	Fingerprint() string
}

// Compiled is the opaque, engine-produced artifact ready for instantiation.
// It is handed out by value (an interface) so every caller's copy is a
// cheap, shared reference to the same underlying engine object; there is
// no separate refcount to manage because Go's GC already keeps the
// underlying value alive for as long as any holder retains this value.
type Compiled any
