// Package registry implements RemoteFetcher and the wire-side half of
// MetadataDecoder (SPEC_FULL.md §4.5): a gRPC client for the component
// registry, with bearer-token auth, gzip compression, and retries on the
// transport conditions a distributed registry is expected to recover from.
package registry

import "context"

// ComponentView is the decoded shape of a registry component_view message
// (spec.md §6.1). It is deliberately a plain struct rather than a
// generated protobuf type: no .proto compiler is available in this
// environment, so Client is defined against this shape instead, and a real
// generated client can satisfy Client without any change on this side.
type ComponentView struct {
	Id            string
	Version       uint64
	ComponentSize uint64
	ComponentType string
	Memories      []MemoryView
	Exports       []ExportView
	Files         []FileView
}

// MemoryView mirrors one entry of component_view.metadata.memories.
type MemoryView struct {
	InitialPages uint64
	MaximumPages *uint64
}

// ExportView mirrors one entry of component_view.metadata.exports. Shape is
// an opaque, engine-defined structural descriptor.
type ExportView struct {
	Name  string
	Shape string
}

// FileView mirrors one entry of component_view.files.
type FileView struct {
	Key         string
	Path        string
	Permissions string
}

// DownloadChunk is one frame of the download_component server stream.
type DownloadChunk struct {
	// Bytes is set when this frame is a success_chunk.
	Bytes []byte

	// Err is set when this frame is an error(domain_error) frame; once
	// received, the stream is considered finished and Bytes is ignored.
	Err error
}

// Client is the registry RPC surface the rest of this module depends on.
// It is the interface a generated protoc-gen-go-grpc client would satisfy;
// grpcClient is this module's hand-written production implementation.
type Client interface {
	// GetComponentMetadata fetches metadata for one exact version.
	GetComponentMetadata(ctx context.Context, id string, version uint64) (ComponentView, error)

	// GetLatestComponentMetadata fetches metadata for the newest version.
	GetLatestComponentMetadata(ctx context.Context, id string) (ComponentView, error)

	// DownloadComponent opens the server-streaming download RPC and
	// returns every chunk read to completion, concatenated in order.
	// grpcClient's implementation retries the whole stream through
	// resilience.WithRetryStream, re-opening it from the first chunk on a
	// retryable failure.
	DownloadComponent(ctx context.Context, id string, version uint64) ([]byte, error)
}
