package embeddings

import "errors"

var (
	// ErrEmptyInput indicates an empty batch or a blank query.
	ErrEmptyInput = errors.New("empty input")

	// ErrProviderFailure indicates the provider errored or returned a batch
	// that does not match the request.
	ErrProviderFailure = errors.New("embedding provider failure")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)
