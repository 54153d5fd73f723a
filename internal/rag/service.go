package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/chunker"
	"github.com/fyrsmithlabs/insightflow/internal/events"
	"github.com/fyrsmithlabs/insightflow/internal/extraction"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/secrets"
	"github.com/fyrsmithlabs/insightflow/internal/source"
	"github.com/fyrsmithlabs/insightflow/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/insightflow/internal/rag"

// SystemPrompt constrains answers to the retrieved context.
const SystemPrompt = "You are a strict RAG assistant. Answer ONLY using the provided context. " +
	"If the answer is not in context, say you don't know. " +
	"Always be concise. Include page citations like (p. 3) when relevant."

const (
	contextSeparator = "\n\n---\n\n"
	// maxSourceRunes bounds the excerpt returned with each source.
	maxSourceRunes = 500
)

// idNamespace seeds stable point ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/insightflow/chunks"))

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator answers a single-turn prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Extractor reads a local file into pages.
type Extractor interface {
	Extract(ctx context.Context, path, mimeType, name string) ([]extraction.Page, error)
}

// Redactor scrubs secrets from the pages of one document.
type Redactor interface {
	RedactPages(pages []string) ([]string, secrets.Report, error)
}

// Dependencies are the collaborators of a Service. Redactor and Publisher
// are optional.
type Dependencies struct {
	Resolver  source.Resolver
	Extractor Extractor
	Embedder  Embedder
	Index     vectorstore.Index
	Generator Generator
	Redactor  Redactor
	Publisher events.Publisher
}

// Options tune the pipeline.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// StableIDs derives point ids from scope, page and rune offset so that
	// re-ingesting a document overwrites its chunks.
	StableIDs bool
}

// Service runs ingestion, query and deletion.
//
// Service holds no per-request state and is safe for concurrent use.
type Service struct {
	deps      Dependencies
	chunker   *chunker.Chunker
	stableIDs bool
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewService validates the chunk window and returns a Service.
func NewService(deps Dependencies, opts Options, logger *logging.Logger) (*Service, error) {
	if deps.Resolver == nil || deps.Extractor == nil || deps.Embedder == nil || deps.Index == nil || deps.Generator == nil {
		return nil, errors.New("rag: resolver, extractor, embedder, index and generator are required")
	}
	c, err := chunker.New(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		deps:      deps,
		chunker:   c,
		stableIDs: opts.StableIDs,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// pendingChunk is a chunk awaiting its embedding.
type pendingChunk struct {
	page   int
	offset int
	text   string
}

// Ingest extracts, chunks, embeds and indexes one document.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (res *IngestResult, err error) {
	ctx = logging.WithScope(ctx, req.OwnerID, req.ProjectID, req.DocumentID)
	ctx, span := s.tracer.Start(ctx, "rag.ingest")
	start := time.Now()
	defer func() {
		label := "error"
		if err == nil {
			label = res.Status
		}
		IngestTotal.WithLabelValues(label).Inc()
		endSpan(span, err)
	}()

	if err := req.Scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, fmt.Errorf("%w: file_path is required", ErrValidation)
	}

	file, err := s.deps.Resolver.Resolve(ctx, req.FilePath)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("resolving %s: %w", req.FilePath, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			s.logger.Warn(ctx, "releasing source file", zap.String("path", file.Path), zap.Error(cerr))
		}
	}()

	label := req.OriginalName
	if label == "" {
		label = file.Name
	}

	pages, err := s.deps.Extractor.Extract(ctx, file.Path, req.MimeType, label)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", label, err)
	}
	span.SetAttributes(attribute.Int("rag.pages", len(pages)))

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	if s.deps.Redactor != nil {
		redacted, report, err := s.deps.Redactor.RedactPages(texts)
		if err != nil {
			return nil, fmt.Errorf("redacting secrets: %w", err)
		}
		texts = redacted
		if report.HasRedactions() {
			s.logger.Info(ctx, "secrets redacted before indexing",
				zap.Int("count", report.TotalSecrets),
				zap.Any("rules", report.RuleCounts),
			)
		}
	}

	var chunks []pendingChunk
	for i, text := range texts {
		for _, seg := range s.chunker.Segments(text) {
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			chunks = append(chunks, pendingChunk{page: pages[i].Number, offset: seg.Start, text: seg.Text})
		}
	}
	if len(chunks) == 0 {
		s.logger.Info(ctx, "no extractable text", zap.String("file", label), zap.Int("pages", len(pages)))
		return &IngestResult{Status: StatusFailed, Reason: ReasonNoText}, nil
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.text
	}
	vectors, err := s.deps.Embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(inputs), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := s.deps.Index.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	points := make([]vectorstore.IndexedVector, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.IndexedVector{
			ID:        s.pointID(req.Scope, c),
			Embedding: vectors[i],
			Payload: vectorstore.Payload{
				Scope: req.Scope,
				File:  label,
				Page:  c.page,
				Text:  c.text,
			},
		}
	}
	if err := s.deps.Index.Upsert(ctx, points); err != nil {
		return nil, err
	}
	ChunksIndexed.Add(float64(len(points)))
	span.SetAttributes(attribute.Int("rag.chunks", len(points)))

	s.publish(ctx, events.DocumentEvent{
		Type:       events.TypeDocumentIngested,
		UserID:     req.OwnerID,
		ProjectID:  req.ProjectID,
		DocumentID: req.DocumentID,
		Source:     label,
		Chunks:     len(points),
	})

	s.logger.Info(ctx, "document ingested",
		zap.String("file", label),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(points)),
		zap.Duration("duration", time.Since(start)),
	)
	return &IngestResult{Status: StatusIngested, Chunks: len(points), DocumentID: req.DocumentID}, nil
}

// pointID returns a random id, or a name-based one when stable ids are on.
func (s *Service) pointID(scope Scope, c pendingChunk) string {
	if !s.stableIDs {
		return uuid.NewString()
	}
	name := strings.Join([]string{
		scope.OwnerID, scope.ProjectID, scope.DocumentID,
		strconv.Itoa(c.page), strconv.Itoa(c.offset),
	}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// Query retrieves the top chunks for a question and generates an answer
// grounded in them. Generation runs even when nothing is retrieved.
func (s *Service) Query(ctx context.Context, req QueryRequest) (res *AnswerResult, err error) {
	ctx = logging.WithScope(ctx, req.OwnerID, req.ProjectID, req.DocumentID)
	if req.SessionID != "" {
		ctx = logging.WithSessionID(ctx, req.SessionID)
	}
	ctx, span := s.tracer.Start(ctx, "rag.query")
	defer func() {
		QueriesTotal.WithLabelValues(resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	topK, err := validateQuery(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.top_k", topK))

	vector, err := s.deps.Embedder.EmbedQuery(ctx, req.Message)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.deps.Index.Search(ctx, vector, req.Scope, topK)
	if err != nil {
		return nil, err
	}

	sources, blocks := buildContext(req.DocumentID, hits)
	RetrievedChunks.Observe(float64(len(sources)))
	span.SetAttributes(attribute.Int("rag.retrieved", len(sources)))

	if len(blocks) > topK {
		blocks = blocks[:topK]
	}
	user := "Context:\n" + strings.Join(blocks, contextSeparator) + "\n\nQuestion: " + req.Message + "\nAnswer:"
	s.logger.Trace(ctx, "generation prompt", zap.String("user_prompt", user))

	answer, err := s.deps.Generator.Generate(ctx, SystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	retrieved := len(sources)
	if len(sources) > topK {
		sources = sources[:topK]
	}
	s.logger.Debug(ctx, "query answered",
		zap.Int("retrieved", retrieved),
		zap.Int("top_k", topK),
	)
	return &AnswerResult{
		Answer:   answer,
		Sources:  sources,
		Metadata: QueryMetadata{Retrieved: retrieved, TopK: topK},
	}, nil
}

// validateQuery checks req and returns the effective top-k.
func validateQuery(req QueryRequest) (int, error) {
	if err := req.Scope.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return 0, fmt.Errorf("%w: message is required", ErrValidation)
	}
	topK := req.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 1 || topK > MaxTopK {
		return 0, fmt.Errorf("%w: top_k must be between 1 and %d, got %d", ErrValidation, MaxTopK, req.TopK)
	}
	return topK, nil
}

// buildContext turns hits into cited sources and prompt blocks, skipping
// hits with blank text.
func buildContext(docID string, hits []vectorstore.Hit) ([]Source, []string) {
	sources := make([]Source, 0, len(hits))
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		text := strings.TrimSpace(h.Payload.Text)
		if text == "" {
			continue
		}
		sources = append(sources, Source{
			DocID: docID,
			File:  h.Payload.File,
			Page:  h.Payload.Page,
			Score: h.Score,
			Text:  truncateRunes(text, maxSourceRunes),
		})
		blocks = append(blocks, "[page "+strconv.Itoa(h.Payload.Page)+"]\n"+text)
	}
	return sources, blocks
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Delete removes every chunk of a document. Deleting an unknown document
// succeeds.
func (s *Service) Delete(ctx context.Context, scope Scope) (res *DeleteResult, err error) {
	ctx = logging.WithScope(ctx, scope.OwnerID, scope.ProjectID, scope.DocumentID)
	ctx, span := s.tracer.Start(ctx, "rag.delete")
	defer func() {
		DeletesTotal.WithLabelValues(resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.deps.Index.DeleteByScope(ctx, scope); err != nil {
		return nil, err
	}

	s.publish(ctx, events.DocumentEvent{
		Type:       events.TypeDocumentDeleted,
		UserID:     scope.OwnerID,
		ProjectID:  scope.ProjectID,
		DocumentID: scope.DocumentID,
	})
	s.logger.Info(ctx, "document deleted")
	return &DeleteResult{Status: StatusDeleted, DocumentID: scope.DocumentID}, nil
}

// publish sends ev and logs a failure.
func (s *Service) publish(ctx context.Context, ev events.DocumentEvent) {
	if err := s.deps.Publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn(ctx, "publishing document event", zap.String("type", ev.Type), zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("rag.error_kind", KindOf(err).String()))
	}
	span.End()
}
