package conf

import "errors"

// Errors returned by the configuration store and its codecs. They are
// wrapped with the offending path or key, so compare with errors.Is.
var (
	// ErrNotFound indicates that a configuration file does not exist.
	ErrNotFound = errors.New("configuration file not found")
	// ErrInvalidLocation indicates a location that is neither an existing
	// directory nor a file with a recognized extension inside an existing
	// directory.
	ErrInvalidLocation = errors.New("invalid configuration location")
	// ErrMissingKey indicates that a path segment is absent during a strict
	// lookup.
	ErrMissingKey = errors.New("missing configuration key")
	// ErrMalformedMarker indicates a !Del tag carrying a payload or an
	// !Override tag on something other than a mapping.
	ErrMalformedMarker = errors.New("malformed merge marker")
	// ErrUnsupportedTag indicates a local YAML tag other than !Override and
	// !Del.
	ErrUnsupportedTag = errors.New("unsupported tag")
	// ErrInvalidDocument indicates a document whose top level is not a
	// mapping.
	ErrInvalidDocument = errors.New("configuration document is not a mapping")
)

var errRevisionUnavailable = errors.New("revision unavailable")
