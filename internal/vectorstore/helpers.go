package vectorstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
)

func checkDimension(collection string, have, want int) error {
	if have != want {
		return fmt.Errorf("%w: collection %s has %d dimensions, embeddings have %d",
			ErrDimensionMismatch, collection, have, want)
	}
	return nil
}

func validateSearch(vector []float32, scope Scope, limit int) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty query vector", ErrInvalidPayload)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidPayload, limit)
	}
	return nil
}

func recordSpanError(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
}

// keepInScope drops hits whose payload scope differs from scope. The backend
// filter should already guarantee this; a mismatch is logged and counted.
func keepInScope(ctx context.Context, logger *logging.Logger, backend string, scope Scope, hits []Hit) []Hit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Payload.Scope == scope {
			kept = append(kept, h)
			continue
		}
		ScopeViolations.WithLabelValues(backend).Inc()
		logger.Warn(ctx, "dropping out-of-scope search hit",
			zap.String("backend", backend),
			zap.String("point_id", h.ID),
			zap.String("hit_document_id", h.Payload.DocumentID),
			zap.String("document_id", scope.DocumentID),
		)
	}
	return kept
}
