package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedReference is returned when no resolver accepts a reference
	ErrUnsupportedReference = errors.New("unsupported reference")

	// ErrMetadataUnavailable is returned when a resolver accepted a reference
	// but could not describe it
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrStreamResolution is returned when no stream locator could be produced
	ErrStreamResolution = errors.New("stream resolution failed")

	// ErrNotPlaylist is returned by Expand for single song references
	ErrNotPlaylist = errors.New("reference is not a playlist")

	// ErrNoSearchResults is returned when a keyword search finds nothing
	ErrNoSearchResults = errors.New("no search results found")
)

// ResolutionError carries the resolver and reference of a failed resolution
type ResolutionError struct {
	Resolver  string
	Reference string
	Kind      error
	Err       error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v (%s)", e.Resolver, e.Kind, e.Reference)
	}
	return fmt.Sprintf("%s: %v (%s): %v", e.Resolver, e.Kind, e.Reference, e.Err)
}

// Unwrap exposes both the error kind and the underlying cause
func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
