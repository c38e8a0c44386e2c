package domain

import "errors"

var (
	// ErrEmptyStore marks a retrieval against a store with no chunks.
	ErrEmptyStore = errors.New("no chunks indexed")
	// ErrUnknownSource marks a source filter that matches no chunk.
	ErrUnknownSource = errors.New("unknown source")
	// ErrExternalService wraps failures of the embedding or generation collaborators.
	ErrExternalService = errors.New("external service failure")
	// ErrTimeout marks an external call that ran past its deadline or was cancelled.
	ErrTimeout = errors.New("external service timeout")
	// ErrConfiguration is returned at construction time when required setup is missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidArgument marks a programmer contract violation such as a negative k.
	ErrInvalidArgument = errors.New("invalid argument")
)
