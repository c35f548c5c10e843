// Package localfs implements LocalFetcher (SPEC_FULL.md §4.4, spec.md
// §6.2): filename-convention discovery of raw component bytes and a JSON
// sidecar metadata descriptor on a local directory.
package localfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wasmcache/component-cache/internal/component"
)

// sidecar is the on-disk JSON shape of a {id}-{version}.json file, per
// spec.md §6.2: camelCase field names.
type sidecar struct {
	ComponentType string        `json:"componentType"`
	Files         []sidecarFile `json:"files"`
}

type sidecarFile struct {
	Key         string `json:"key"`
	Path        string `json:"path"`
	Permissions string `json:"permissions"`
}

// Fetcher discovers and reads components stored flat in Root, using the
// naming convention {component_id}-{version}.wasm / .json.
type Fetcher struct {
	Root string
}

// NewFetcher returns a Fetcher rooted at dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{Root: dir}
}

// candidate is one discovered, successfully-parsed {id}-{version}.wasm
// filename.
type candidate struct {
	version component.Version
	name    string
}

// discover enumerates Root and returns every entry whose name matches the
// prefix "{id}-" and ends in ".wasm", with its trailing dash-delimited
// token parsed as a decimal version. Anything else — including a
// malformed version token — is silently discarded, per spec.md §4.4.
func (f *Fetcher) discover(id component.Id) ([]candidate, error) {
	entries, err := os.ReadDir(f.Root)
	if err != nil {
		return nil, err
	}

	prefix := id.String() + "-"
	var out []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".wasm") {
			continue
		}
		token := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".wasm")
		v, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, candidate{version: component.Version(v), name: name})
	}
	return out, nil
}

// Resolve picks the entry to use: an exact match when forcedVersion is
// non-nil, otherwise the highest version discovered.
func (f *Fetcher) Resolve(id component.Id, forcedVersion *component.Version) (component.Version, error) {
	candidates, err := f.discover(id)
	if err != nil {
		return 0, &component.GetLatestVersionOfComponentFailed{Id: id, Reason: err.Error()}
	}

	if forcedVersion != nil {
		for _, c := range candidates {
			if c.version == *forcedVersion {
				return c.version, nil
			}
		}
		return 0, &component.GetLatestVersionOfComponentFailed{Id: id, Reason: fmt.Sprintf("no component file for forced version %d", *forcedVersion)}
	}

	if len(candidates) == 0 {
		return 0, &component.GetLatestVersionOfComponentFailed{Id: id, Reason: "no component files found"}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.version > best.version {
			best = c
		}
	}
	return best.version, nil
}

// ReadBytes reads the raw component bytes for (id, version).
func (f *Fetcher) ReadBytes(id component.Id, version component.Version) ([]byte, error) {
	path := filepath.Join(f.Root, fmt.Sprintf("%s-%d.wasm", id, version))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &component.ComponentDownloadFailed{Id: id, Version: version, Reason: err.Error()}
	}
	return data, nil
}

// ReadMetadata reads and decodes the {id}-{version}.json sidecar. An
// absent or malformed sidecar fails the fetch, per spec.md §6.2.
func (f *Fetcher) ReadMetadata(id component.Id, version component.Version) (component.Metadata, error) {
	path := filepath.Join(f.Root, fmt.Sprintf("%s-%d.json", id, version))
	raw, err := os.ReadFile(path)
	if err != nil {
		return component.Metadata{}, &component.GetLatestVersionOfComponentFailed{Id: id, Reason: "missing sidecar: " + err.Error()}
	}

	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return component.Metadata{}, &component.GetLatestVersionOfComponentFailed{Id: id, Reason: "malformed sidecar: " + err.Error()}
	}

	typ, ok := component.ParseType(sc.ComponentType)
	if !ok {
		return component.Metadata{}, component.Unexpectedf("invalid componentType %q in sidecar for %s@%d", sc.ComponentType, id, version)
	}

	files := make([]component.InitialFile, 0, len(sc.Files))
	for _, sf := range sc.Files {
		perm, ok := component.ParseFilePermissions(sf.Permissions)
		if !ok {
			return component.Metadata{}, component.Unexpectedf("invalid permissions %q for file %q in sidecar for %s@%d", sf.Permissions, sf.Key, id, version)
		}
		p, ok := component.ParseAbsoluteUnixPath(sf.Path)
		if !ok {
			return component.Metadata{}, component.Unexpectedf("invalid path %q for file %q in sidecar for %s@%d", sf.Path, sf.Key, id, version)
		}
		files = append(files, component.InitialFile{Key: sf.Key, Path: p, Permissions: perm})
	}

	size := int64(0)
	if fi, err := os.Stat(filepath.Join(f.Root, fmt.Sprintf("%s-%d.wasm", id, version))); err == nil {
		size = fi.Size()
	}

	return component.Metadata{
		Version:   version,
		SizeBytes: uint64(size),
		Type:      typ,
		Files:     files,
	}, nil
}
