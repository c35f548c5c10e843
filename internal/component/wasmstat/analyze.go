// Package wasmstat performs minimal static analysis of a raw wasm binary:
// enumerating its linear memories and exports without fully validating or
// instantiating the module. It exists because MetadataDecoder (SPEC_FULL.md
// §4.5) must be able to derive component.Metadata's Memories and Exports
// fields when only raw bytes are available (the local filesystem fetcher
// has no sidecar field for them) and no wasm-parsing library is available
// to this module's dependency set — see DESIGN.md for why this is
// hand-rolled rather than imported.
package wasmstat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wasmcache/component-cache/internal/component"
)

var (
	errTruncated   = errors.New("wasmstat: truncated wasm binary")
	errBadMagic    = errors.New("wasmstat: not a wasm binary (bad magic)")
	errBadVersion  = errors.New("wasmstat: unsupported wasm binary version")
)

const (
	wasmMagic         = 0x6d736100 // "\0asm" little-endian
	sectionIdMemory   = 5
	sectionIdExport   = 7
	exportKindFunc    = 0
	exportKindTable   = 1
	exportKindMemory  = 2
	exportKindGlobal  = 3
)

// Result is the outcome of statically analyzing a component's raw bytes.
type Result struct {
	Memories []component.LinearMemory
	Exports  []component.AnalysedExport
}

// Analyze walks the section headers of a core wasm binary, decoding only
// the memory and export sections; every other section is skipped over by
// its declared size without interpretation.
func Analyze(raw []byte) (Result, error) {
	r := &reader{buf: raw}

	magic, err := r.readU32LE()
	if err != nil {
		return Result{}, errTruncated
	}
	if magic != wasmMagic {
		return Result{}, errBadMagic
	}
	version, err := r.readU32LE()
	if err != nil {
		return Result{}, errTruncated
	}
	if version != 1 {
		return Result{}, errBadVersion
	}

	var res Result
	for !r.eof() {
		id, err := r.readByte()
		if err != nil {
			break // no more sections
		}
		size, err := r.readVarUint32()
		if err != nil {
			return Result{}, errTruncated
		}
		body, err := r.readBytes(int(size))
		if err != nil {
			return Result{}, errTruncated
		}

		switch id {
		case sectionIdMemory:
			memories, err := parseMemorySection(body)
			if err != nil {
				return Result{}, err
			}
			res.Memories = memories
		case sectionIdExport:
			exports, err := parseExportSection(body)
			if err != nil {
				return Result{}, err
			}
			res.Exports = exports
		}
	}

	return res, nil
}

func parseMemorySection(body []byte) ([]component.LinearMemory, error) {
	r := &reader{buf: body}
	count, err := r.readVarUint32()
	if err != nil {
		return nil, errTruncated
	}

	memories := make([]component.LinearMemory, 0, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.readByte()
		if err != nil {
			return nil, errTruncated
		}
		min, err := r.readVarUint32()
		if err != nil {
			return nil, errTruncated
		}
		lm := component.LinearMemory{InitialBytes: uint64(min) * component.WasmPageSize}
		if flags&0x1 != 0 {
			max, err := r.readVarUint32()
			if err != nil {
				return nil, errTruncated
			}
			maxBytes := uint64(max) * component.WasmPageSize
			lm.MaximumBytes = &maxBytes
		}
		memories = append(memories, lm)
	}
	return memories, nil
}

func parseExportSection(body []byte) ([]component.AnalysedExport, error) {
	r := &reader{buf: body}
	count, err := r.readVarUint32()
	if err != nil {
		return nil, errTruncated
	}

	exports := make([]component.AnalysedExport, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.readName()
		if err != nil {
			return nil, errTruncated
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, errTruncated
		}
		index, err := r.readVarUint32()
		if err != nil {
			return nil, errTruncated
		}
		exports = append(exports, component.AnalysedExport{
			Name:  name,
			Shape: shapeFor(kind, index),
		})
	}
	return exports, nil
}

// shapeFor produces an opaque structural tag for an export. Resolving the
// actual function signature would require cross-referencing the type and
// function sections; this module only needs enough to populate
// AnalysedExport.Shape as an identifier, not to type-check the export.
func shapeFor(kind byte, index uint32) string {
	switch kind {
	case exportKindFunc:
		return fmt.Sprintf("func#%d", index)
	case exportKindTable:
		return fmt.Sprintf("table#%d", index)
	case exportKindMemory:
		return fmt.Sprintf("memory#%d", index)
	case exportKindGlobal:
		return fmt.Sprintf("global#%d", index)
	default:
		return fmt.Sprintf("unknown#%d", index)
	}
}

// reader is a cursor over a byte slice with wasm's LEB128 varuint encoding.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) eof() bool { return r.pos >= len(r.buf) }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readU32LE() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// readVarUint32 decodes an unsigned LEB128-encoded integer, per the wasm
// binary format spec.
func (r *reader) readVarUint32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, errors.New("wasmstat: varuint32 overflow")
		}
	}
}

func (r *reader) readName() (string, error) {
	n, err := r.readVarUint32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
