package registry

import (
	"github.com/wasmcache/component-cache/internal/component"
)

// DecodeMetadata converts a registry ComponentView into the canonical
// component.Metadata record, per SPEC_FULL.md §4.5 / spec.md §4.5.
//
// Version is copied from view.Version. ComponentView carries no separate
// presence flag for the version, so a view without one decodes as version
// 0; DecodeMetadata raises no "undefined version" error.
func DecodeMetadata(view ComponentView) (component.Metadata, error) {
	typ, ok := component.ParseType(view.ComponentType)
	if !ok {
		return component.Metadata{}, component.Unexpectedf("invalid component type %q", view.ComponentType)
	}

	files := make([]component.InitialFile, 0, len(view.Files))
	for _, f := range view.Files {
		perm, ok := component.ParseFilePermissions(f.Permissions)
		if !ok {
			return component.Metadata{}, component.Unexpectedf("invalid file permissions %q for file %q", f.Permissions, f.Key)
		}
		path, ok := component.ParseAbsoluteUnixPath(f.Path)
		if !ok {
			return component.Metadata{}, component.Unexpectedf("invalid file path %q for file %q", f.Path, f.Key)
		}
		files = append(files, component.InitialFile{Key: f.Key, Path: path, Permissions: perm})
	}

	exports := make([]component.AnalysedExport, 0, len(view.Exports))
	for _, e := range view.Exports {
		if e.Name == "" {
			return component.Metadata{}, component.Unexpectedf("Failed to get the exports")
		}
		exports = append(exports, component.AnalysedExport{Name: e.Name, Shape: e.Shape})
	}

	memories := make([]component.LinearMemory, 0, len(view.Memories))
	for _, m := range view.Memories {
		lm := component.LinearMemory{InitialBytes: m.InitialPages * component.WasmPageSize}
		if m.MaximumPages != nil {
			max := *m.MaximumPages * component.WasmPageSize
			lm.MaximumBytes = &max
		}
		memories = append(memories, lm)
	}

	return component.Metadata{
		Version:   component.Version(view.Version),
		SizeBytes: view.ComponentSize,
		Memories:  memories,
		Exports:   exports,
		Type:      typ,
		Files:     files,
	}, nil
}
