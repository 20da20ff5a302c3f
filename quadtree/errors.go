package quadtree

import "errors"

var (
	// ErrDuplicate is returned by Add when the value is already indexed.
	ErrDuplicate = errors.New("quadtree: duplicate value")

	// ErrNotFound is returned when a value is not in the index.
	ErrNotFound = errors.New("quadtree: value not found")

	// ErrInvalidConfig is returned by New for unusable options.
	ErrInvalidConfig = errors.New("quadtree: invalid config")

	// ErrInvalidBounds is returned by Add and Update for bounds with a
	// NaN or infinite side, which no region can grow to contain.
	ErrInvalidBounds = errors.New("quadtree: non-finite bounds")

	// ErrBadSnapshot is returned when a serialized tree cannot be decoded.
	ErrBadSnapshot = errors.New("quadtree: bad snapshot")
)
