package catalog

import "errors"

var (
	// ErrUnknownAspect is returned when a code is not part of the catalog.
	ErrUnknownAspect = errors.New("unknown aspect")
	// ErrInvalidCatalog is returned when catalog entries violate its rules.
	ErrInvalidCatalog = errors.New("invalid catalog")
)
