package land

import "errors"

var (
	// ErrOutOfRange is returned for an unknown field or a location id past the end.
	ErrOutOfRange = errors.New("location or field out of range")
	// ErrMissingField is returned when a terrain lacks a required field.
	ErrMissingField = errors.New("required field missing")
	// ErrEmptyTerrain is returned when a terrain has no locations.
	ErrEmptyTerrain = errors.New("terrain has no locations")
	// ErrNoLocation is returned when a widening search still finds nothing.
	ErrNoLocation = errors.New("no location found")
)
