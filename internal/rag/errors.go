package rag

import (
	"errors"

	"github.com/fyrsmithlabs/insightflow/internal/embeddings"
	"github.com/fyrsmithlabs/insightflow/internal/extraction"
	"github.com/fyrsmithlabs/insightflow/internal/generation"
	"github.com/fyrsmithlabs/insightflow/internal/source"
	"github.com/fyrsmithlabs/insightflow/internal/vectorstore"
)

var (
	// ErrNotFound indicates the document file could not be found or read.
	ErrNotFound = errors.New("file not found")

	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation failed")
)

// Kind classifies pipeline errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindProvider
	KindIndex
	KindDimensionMismatch
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindProvider:
		return "provider"
	case KindIndex:
		return "index"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	default:
		return "internal"
	}
}

// KindOf classifies err by the sentinels it wraps.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound), errors.Is(err, source.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation),
		errors.Is(err, vectorstore.ErrInvalidScope),
		errors.Is(err, vectorstore.ErrInvalidPayload),
		errors.Is(err, extraction.ErrUnsupportedType),
		errors.Is(err, source.ErrNotAllowed):
		return KindValidation
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, vectorstore.ErrIndexFailure):
		return KindIndex
	case errors.Is(err, embeddings.ErrProviderFailure),
		errors.Is(err, embeddings.ErrEmptyInput),
		errors.Is(err, generation.ErrProviderFailure),
		errors.Is(err, extraction.ErrExtractionFailed):
		return KindProvider
	default:
		return KindInternal
	}
}
