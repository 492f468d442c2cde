package download

import "errors"

// Sentinel errors checked with errors.Is by callers. Transfer and store-save
// failures are not modeled as returned errors here: they are logged by the
// Engine and Worker at the point of failure rather than propagated.
var (
	// ErrNotFound is returned when a path has no Record in the Store.
	ErrNotFound = errors.New("download: record not found")
	// ErrInvalidPath is returned by validate.Path for a malformed path.
	ErrInvalidPath = errors.New("download: invalid path")
	// ErrInvalidURL is returned by validate.URL for a malformed URL.
	ErrInvalidURL = errors.New("download: invalid url")
	// ErrAlreadyExists is returned by Store.Append when a Record for the
	// given path already exists.
	ErrAlreadyExists = errors.New("download: record already exists for path")
)
