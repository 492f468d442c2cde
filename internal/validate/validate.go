// Package validate provides the minimal path/URL syntax checks the Engine
// runs before a Create ever touches the Store. A caller embedding the
// engine is expected to do richer validation of its own; this package only
// rejects the garbage that would otherwise corrupt a Record.
package validate

import (
	"fmt"
	"net/url"
	"path/filepath"

	"downloadengine/internal/download"
)

// Path checks that path is non-empty, absolute, and names a file rather
// than a bare directory.
func Path(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path cannot be empty", download.ErrInvalidPath)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: path must be absolute", download.ErrInvalidPath)
	}
	if filepath.Base(path) == "." || filepath.Base(path) == string(filepath.Separator) {
		return fmt.Errorf("%w: path must have a filename", download.ErrInvalidPath)
	}
	return nil
}

// URL checks that rawurl is non-empty, parses cleanly, uses http or https,
// and names a host.
func URL(rawurl string) error {
	if rawurl == "" {
		return fmt.Errorf("%w: url cannot be empty", download.ErrInvalidURL)
	}

	parsed, err := url.Parse(rawurl)
	if err != nil {
		return fmt.Errorf("%w: %v", download.ErrInvalidURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q must be http or https", download.ErrInvalidURL, parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%w: url must have a host", download.ErrInvalidURL)
	}

	return nil
}
