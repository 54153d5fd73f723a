package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
)

// IngestRequest is the request body for POST /v1/ingest.
type IngestRequest struct {
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
	DocumentID   string `json:"document_id"`
	FilePath     string `json:"file_path"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

// QueryRequest is the request body for POST /v1/query.
type QueryRequest struct {
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	// TopK is a pointer so an explicit 0 is rejected rather than defaulted.
	TopK *int `json:"top_k,omitempty"`
}

// DeleteRequest is the request body for POST /v1/delete.
type DeleteRequest struct {
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}

	res, err := s.pipeline.Ingest(c.Request().Context(), rag.IngestRequest{
		Scope:        rag.Scope{OwnerID: req.UserID, ProjectID: req.ProjectID, DocumentID: req.DocumentID},
		FilePath:     req.FilePath,
		OriginalName: req.OriginalName,
		MimeType:     req.MimeType,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}

	topK := 0
	if req.TopK != nil {
		if *req.TopK == 0 {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "top_k must be between 1 and 20")
		}
		topK = *req.TopK
	}

	ctx := c.Request().Context()
	if req.SessionID != "" {
		ctx = logging.WithSessionID(ctx, req.SessionID)
	}
	res, err := s.pipeline.Query(ctx, rag.QueryRequest{
		Scope:     rag.Scope{OwnerID: req.UserID, ProjectID: req.ProjectID, DocumentID: req.DocumentID},
		Message:   req.Message,
		SessionID: req.SessionID,
		TopK:      topK,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDelete(c echo.Context) error {
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}

	res, err := s.pipeline.Delete(c.Request().Context(), rag.Scope{
		OwnerID:    req.UserID,
		ProjectID:  req.ProjectID,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func invalidBody(err error) error {
	msg := "invalid request body"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	return echo.NewHTTPError(http.StatusUnprocessableEntity, msg)
}

// statusFor maps a pipeline error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	switch rag.KindOf(err) {
	case rag.KindNotFound:
		return http.StatusNotFound, "File not found"
	case rag.KindValidation:
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// errorHandler renders every error as {"detail": ...}.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var status int
		var detail, kind string
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			detail = http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok {
				detail = m
			}
			kind = kindForStatus(status)
		} else {
			status, detail = statusFor(err)
			kind = rag.KindOf(err).String()
		}
		c.Set(errorKindKey, kind)

		ctx := c.Request().Context()
		if status >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed",
				zap.String("path", c.Path()),
				zap.String("kind", kind),
				zap.Error(err),
			)
		} else {
			logger.Debug(ctx, "request rejected", zap.Int("status", status), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, ErrorResponse{Detail: detail})
	}
}
