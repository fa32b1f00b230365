package etd

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three recoverable failure classes. The
// workflow manager converts these into failure-log entries at the
// per-package boundary; any other error aborts the whole run.
var (
	// ErrMissingFile indicates an expected file was absent, for example
	// no PDF candidate in the package data area.
	ErrMissingFile = errors.New("missing file")

	// ErrMetadata indicates a field validation or parsing failure in
	// the package's permissions or descriptive metadata.
	ErrMetadata = errors.New("metadata error")

	// ErrGetURLFailed indicates the catalog resolver exhausted its
	// retries without finding the imported item.
	ErrGetURLFailed = errors.New("get URL failed")
)

// Metadataf builds an ErrMetadata-tagged error.
func Metadataf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMetadata, fmt.Sprintf(format, args...))
}

// MissingFilef builds an ErrMissingFile-tagged error.
func MissingFilef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMissingFile, fmt.Sprintf(format, args...))
}

// IsPackageError reports whether err belongs to the recoverable
// per-package taxonomy.
func IsPackageError(err error) bool {
	return errors.Is(err, ErrMissingFile) ||
		errors.Is(err, ErrMetadata) ||
		errors.Is(err, ErrGetURLFailed)
}
