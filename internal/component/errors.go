package component

import "fmt"

// ComponentDownloadFailed is returned when every download attempt against
// the registry (or the local filesystem) was exhausted, or failed with a
// non-retryable transport/domain error.
type ComponentDownloadFailed struct {
	Id      Id
	Version Version
	Reason  string
}

func (e *ComponentDownloadFailed) Error() string {
	return fmt.Sprintf("download component %s@%d failed: %s", e.Id, e.Version, e.Reason)
}

// ComponentParseFailed is returned when the raw bytes for a component
// could not be compiled by the wasm engine.
type ComponentParseFailed struct {
	Id      Id
	Version Version
	Reason  string
}

func (e *ComponentParseFailed) Error() string {
	return fmt.Sprintf("parse component %s@%d failed: %s", e.Id, e.Version, e.Reason)
}

// GetLatestVersionOfComponentFailed is returned when resolving "latest"
// metadata exhausted retries, or local filesystem discovery found no
// matching candidate.
type GetLatestVersionOfComponentFailed struct {
	Id     Id
	Reason string
}

func (e *GetLatestVersionOfComponentFailed) Error() string {
	return fmt.Sprintf("get latest version of component %s failed: %s", e.Id, e.Reason)
}

// Unknown wraps a join failure of an offloaded compile task, or any other
// unexpected I/O error that does not fit the classified taxonomy.
type Unknown struct {
	Details string
}

func (e *Unknown) Error() string {
	return fmt.Sprintf("unknown error: %s", e.Details)
}

// Unexpected represents a metadata schema violation: a missing field, an
// invalid enum value, or an unparseable path. Implementations may have
// accumulated several per-field complaints before collapsing them into a
// single message here.
type Unexpected struct {
	Message string
}

func (e *Unexpected) Error() string {
	return fmt.Sprintf("unexpected: %s", e.Message)
}

// Unexpectedf builds an *Unexpected with a formatted message.
func Unexpectedf(format string, args ...any) error {
	return &Unexpected{Message: fmt.Sprintf(format, args...)}
}
