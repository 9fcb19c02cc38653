package extract

import "errors"

var (
	// ErrEmptySchema is returned when schema inference yields zero fields.
	// The caller retries the inference call at most once before surfacing it.
	ErrEmptySchema = errors.New("schema inference returned zero fields")
	// ErrUnresolvedSchema is returned when a requested external schema is
	// missing or invalid. Fatal for the request.
	ErrUnresolvedSchema = errors.New("requested schema missing or invalid")
)
