package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/insightflow/internal/chunker"
	"github.com/fyrsmithlabs/insightflow/internal/embeddings"
	"github.com/fyrsmithlabs/insightflow/internal/events"
	"github.com/fyrsmithlabs/insightflow/internal/extraction"
	"github.com/fyrsmithlabs/insightflow/internal/generation"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/secrets"
	"github.com/fyrsmithlabs/insightflow/internal/source"
	"github.com/fyrsmithlabs/insightflow/internal/vectorstore"
)

// fakeResolver serves files registered by path.
type fakeResolver struct {
	files map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, ref string) (*source.File, error) {
	name, ok := f.files[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, ref)
	}
	return &source.File{Path: ref, Name: name}, nil
}

// fakeExtractor returns the pages registered for a path.
type fakeExtractor struct {
	pages    map[string][]string
	err      error
	lastName string
}

func (f *fakeExtractor) Extract(_ context.Context, path, _, name string) ([]extraction.Page, error) {
	f.lastName = name
	if f.err != nil {
		return nil, f.err
	}
	var out []extraction.Page
	for i, text := range f.pages[path] {
		out = append(out, extraction.Page{Number: i + 1, Text: text})
	}
	return out, nil
}

// fakeEmbedder derives a small non-zero vector from the text.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func vectorFor(text string) []float32 {
	v := []float32{1, 0, 0, 0}
	i := 0
	for _, r := range text {
		v[1+i%3] += float32(r%17) / 17
		i++
	}
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// fakeGenerator records the last prompt.
type fakeGenerator struct {
	calls  int
	system string
	user   string
	answer string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.answer, f.err
}

// fakePublisher records events.
type fakePublisher struct {
	events []events.DocumentEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev events.DocumentEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

// stubIndex returns fixed hits.
type stubIndex struct {
	hits      []vectorstore.Hit
	lastLimit int
}

func (s *stubIndex) EnsureCollection(context.Context, int) error { return nil }
func (s *stubIndex) Upsert(context.Context, []vectorstore.IndexedVector) error { return nil }
func (s *stubIndex) Search(_ context.Context, _ []float32, _ vectorstore.Scope, limit int) ([]vectorstore.Hit, error) {
	s.lastLimit = limit
	return s.hits, nil
}
func (s *stubIndex) DeleteByScope(context.Context, vectorstore.Scope) error { return nil }
func (s *stubIndex) Close() error { return nil }

type harness struct {
	svc       *Service
	resolver  *fakeResolver
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	generator *fakeGenerator
	publisher *fakePublisher
	index     vectorstore.Index
	logger    *logging.TestLogger
}

func newHarness(t *testing.T, opts Options, mutate ...func(*Dependencies)) *harness {
	t.Helper()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Collection: "test_chunks"}, nil)
	require.NoError(t, err)

	h := &harness{
		resolver:  &fakeResolver{files: map[string]string{}},
		extractor: &fakeExtractor{pages: map[string][]string{}},
		embedder:  &fakeEmbedder{},
		generator: &fakeGenerator{answer: "It is blue (p. 1)."},
		publisher: &fakePublisher{},
		index:     idx,
		logger:    logging.NewTestLogger(),
	}
	deps := Dependencies{
		Resolver:  h.resolver,
		Extractor: h.extractor,
		Embedder:  h.embedder,
		Index:     h.index,
		Generator: h.generator,
		Publisher: h.publisher,
	}
	for _, m := range mutate {
		m(&deps)
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 1000
		opts.ChunkOverlap = 150
	}
	svc, err := NewService(deps, opts, h.logger.Logger)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) addFile(path, name string, pages ...string) {
	h.resolver.files[path] = name
	h.extractor.pages[path] = pages
}

func scope(doc string) Scope {
	return Scope{OwnerID: "user-1", ProjectID: "proj-1", DocumentID: doc}
}

func TestIngest_TwelveHundredCharacters(t *testing.T) {
	h := newHarness(t, Options{})
	h.addFile("/srv/a.pdf", "a.pdf", strings.Repeat("x", 1200))

	res, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf", OriginalName: "Report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, &IngestResult{Status: StatusIngested, Chunks: 2, DocumentID: "doc-1"}, res)
	assert.Equal(t, 1, h.embedder.calls, "all chunks embed in one call")

	hits, err := h.index.Search(context.Background(), vectorFor("x"), scope("doc-1"), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	var lengths []int
	for _, hit := range hits {
		lengths = append(lengths, utf8.RuneCountInString(hit.Payload.Text))
		assert.Equal(t, "Report.pdf", hit.Payload.File)
		assert.Equal(t, 1, hit.Payload.Page)
	}
	assert.ElementsMatch(t, []int{1000, 200}, lengths)
}

func TestIngest_NoExtractableText(t *testing.T) {
	h := newHarness(t, Options{})
	h.addFile("/srv/scan.pdf", "scan.pdf", "   \n\t ", "")

	res, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, &IngestResult{Status: StatusFailed, Reason: ReasonNoText}, res)
	assert.Zero(t, h.embedder.calls)
	assert.Empty(t, h.publisher.events)
}

func TestIngest_LabelFallsBackToFileName(t *testing.T) {
	h := newHarness(t, Options{})
	h.addFile("/tmp/dl/123", "quarterly.pdf", "numbers went up")

	_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/tmp/dl/123"})
	require.NoError(t, err)
	assert.Equal(t, "quarterly.pdf", h.extractor.lastName)

	hits, err := h.index.Search(context.Background(), vectorFor("numbers"), scope("doc-1"), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "quarterly.pdf", hits[0].Payload.File)
}

func TestIngest_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, Options{})
		_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/nope.pdf"})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("invalid scope", func(t *testing.T) {
		h := newHarness(t, Options{})
		_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: Scope{OwnerID: "u"}, FilePath: "/a.pdf"})
		require.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidScope)
	})

	t.Run("missing file path", func(t *testing.T) {
		h := newHarness(t, Options{})
		_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1")})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("extraction failure", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.addFile("/srv/a.pdf", "a.pdf")
		h.extractor.err = fmt.Errorf("%w: pdftotext exited 1", extraction.ErrExtractionFailed)
		_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf"})
		assert.Equal(t, KindProvider, KindOf(err))
	})

	t.Run("embedding failure", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.addFile("/srv/a.pdf", "a.pdf", "text")
		h.embedder.err = fmt.Errorf("%w: status 500", embeddings.ErrProviderFailure)
		_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf"})
		require.ErrorIs(t, err, embeddings.ErrProviderFailure)
		assert.Equal(t, KindProvider, KindOf(err))
	})
}

func TestIngest_StableIDsOverwrite(t *testing.T) {
	h := newHarness(t, Options{StableIDs: true})
	h.addFile("/srv/a.pdf", "a.pdf", strings.Repeat("y", 1200))
	req := IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf"}

	for i := 0; i < 2; i++ {
		_, err := h.svc.Ingest(context.Background(), req)
		require.NoError(t, err)
	}
	hits, err := h.index.Search(context.Background(), vectorFor("y"), scope("doc-1"), 20)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIngest_RandomIDsDuplicate(t *testing.T) {
	h := newHarness(t, Options{})
	h.addFile("/srv/a.pdf", "a.pdf", strings.Repeat("y", 1200))
	req := IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf"}

	for i := 0; i < 2; i++ {
		_, err := h.svc.Ingest(context.Background(), req)
		require.NoError(t, err)
	}
	hits, err := h.index.Search(context.Background(), vectorFor("y"), scope("doc-1"), 20)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestPointID(t *testing.T) {
	stable := &Service{stableIDs: true}
	c := pendingChunk{page: 2, offset: 1000}
	assert.Equal(t, stable.pointID(scope("d"), c), stable.pointID(scope("d"), c))
	assert.NotEqual(t, stable.pointID(scope("d"), c), stable.pointID(scope("e"), c))
	assert.NotEqual(t, stable.pointID(scope("d"), c), stable.pointID(scope("d"), pendingChunk{page: 3, offset: 1000}))

	random := &Service{}
	assert.NotEqual(t, random.pointID(scope("d"), c), random.pointID(scope("d"), c))
}

type upperRedactor struct{}

func (upperRedactor) RedactPages(pages []string) ([]string, secrets.Report, error) {
	out := make([]string, len(pages))
	report := secrets.Report{RuleCounts: map[string]int{}}
	for i, p := range pages {
		n := strings.Count(p, "hunter2")
		report.TotalSecrets += n
		report.RuleCounts["password"] += n
		out[i] = strings.ReplaceAll(p, "hunter2", "[REDACTED:password]")
	}
	return out, report, nil
}

func TestIngest_Redaction(t *testing.T) {
	h := newHarness(t, Options{}, func(d *Dependencies) { d.Redactor = upperRedactor{} })
	h.addFile("/srv/a.pdf", "a.pdf", "the password is hunter2")

	_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf"})
	require.NoError(t, err)

	hits, err := h.index.Search(context.Background(), vectorFor("password"), scope("doc-1"), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "the password is [REDACTED:password]", hits[0].Payload.Text)
	h.logger.AssertLogged(t, zapcore.InfoLevel, "secrets redacted")
}

func TestIngestQueryDelete_RoundTrip(t *testing.T) {
	h := newHarness(t, Options{})
	h.addFile("/srv/a.pdf", "a.pdf", "The sky is blue.", "Grass is green.")

	res, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf", OriginalName: "colors.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)

	ans, err := h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-1"), Message: "What color is the sky?", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "It is blue (p. 1).", ans.Answer)
	assert.Equal(t, QueryMetadata{Retrieved: 2, TopK: DefaultTopK}, ans.Metadata)
	require.Len(t, ans.Sources, 2)
	for _, src := range ans.Sources {
		assert.Equal(t, "doc-1", src.DocID)
		assert.Equal(t, "colors.pdf", src.File)
	}
	assert.Equal(t, SystemPrompt, h.generator.system)
	assert.Contains(t, h.generator.user, "[page 1]\nThe sky is blue.")
	assert.Contains(t, h.generator.user, "[page 2]\nGrass is green.")
	assert.True(t, strings.HasSuffix(h.generator.user, "\n\nQuestion: What color is the sky?\nAnswer:"))

	del, err := h.svc.Delete(context.Background(), scope("doc-1"))
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{Status: StatusDeleted, DocumentID: "doc-1"}, del)

	ans, err = h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-1"), Message: "What color is the sky?"})
	require.NoError(t, err)
	assert.Equal(t, 0, ans.Metadata.Retrieved)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, 2, h.generator.calls, "generation runs with zero hits")
	assert.Equal(t, "Context:\n\n\nQuestion: What color is the sky?\nAnswer:", h.generator.user)

	require.Len(t, h.publisher.events, 2)
	assert.Equal(t, events.TypeDocumentIngested, h.publisher.events[0].Type)
	assert.Equal(t, 2, h.publisher.events[0].Chunks)
	assert.Equal(t, events.TypeDocumentDeleted, h.publisher.events[1].Type)
}

func TestQuery_TenantIsolation(t *testing.T) {
	h := newHarness(t, Options{})
	h.addFile("/srv/a.pdf", "a.pdf", "alpha document text")
	h.addFile("/srv/b.pdf", "b.pdf", "beta document text")

	_, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-a"), FilePath: "/srv/a.pdf"})
	require.NoError(t, err)
	_, err = h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-b"), FilePath: "/srv/b.pdf"})
	require.NoError(t, err)

	ans, err := h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-a"), Message: "beta document text"})
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "alpha document text", ans.Sources[0].Text)
	assert.NotContains(t, h.generator.user, "[page 1]\nbeta")

	_, err = h.svc.Delete(context.Background(), scope("doc-a"))
	require.NoError(t, err)
	ans, err = h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-b"), Message: "beta"})
	require.NoError(t, err)
	assert.Equal(t, 1, ans.Metadata.Retrieved, "deleting one document leaves its sibling")
}

func TestQuery_TopKBound(t *testing.T) {
	h := newHarness(t, Options{ChunkSize: 10, ChunkOverlap: 0})
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "chunk%05d", i)
	}
	h.addFile("/srv/a.pdf", "a.pdf", b.String())

	res, err := h.svc.Ingest(context.Background(), IngestRequest{Scope: scope("doc-1"), FilePath: "/srv/a.pdf"})
	require.NoError(t, err)
	require.Equal(t, 30, res.Chunks)

	ans, err := h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-1"), Message: "chunk00007", TopK: 3})
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 3)
	assert.Equal(t, 3, ans.Metadata.TopK)
	assert.Equal(t, 2, strings.Count(h.generator.user, contextSeparator))
}

func TestQuery_TopKBoundWhenIndexOverReturns(t *testing.T) {
	var hits []vectorstore.Hit
	for i := 0; i < 7; i++ {
		hits = append(hits, vectorstore.Hit{
			ID:      fmt.Sprintf("h%d", i),
			Score:   float32(1 - float64(i)/10),
			Payload: vectorstore.Payload{File: "f.pdf", Page: i + 1, Text: fmt.Sprintf("passage %d", i)},
		})
	}
	idx := &stubIndex{hits: hits}
	h := newHarness(t, Options{}, func(d *Dependencies) { d.Index = idx })

	ans, err := h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-1"), Message: "q", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.lastLimit)
	assert.Equal(t, QueryMetadata{Retrieved: 7, TopK: 3}, ans.Metadata)
	require.Len(t, ans.Sources, 3)
	for i, src := range ans.Sources {
		assert.Equal(t, i+1, src.Page)
	}
	assert.Equal(t, 2, strings.Count(h.generator.user, contextSeparator))
	assert.Contains(t, h.generator.user, "[page 3]\npassage 2")
	assert.NotContains(t, h.generator.user, "passage 3")
}

func TestQuery_SkipsBlankHitsAndTruncates(t *testing.T) {
	long := strings.Repeat("é", 600)
	idx := &stubIndex{hits: []vectorstore.Hit{
		{ID: "1", Score: 0.9, Payload: vectorstore.Payload{Page: 4, Text: "   "}},
		{ID: "2", Score: 0.8, Payload: vectorstore.Payload{File: "f.pdf", Page: 7, Text: "  " + long + "\n"}},
	}}
	h := newHarness(t, Options{}, func(d *Dependencies) { d.Index = idx })

	ans, err := h.svc.Query(context.Background(), QueryRequest{Scope: scope("doc-1"), Message: "q", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.lastLimit)
	assert.Equal(t, 1, ans.Metadata.Retrieved)
	require.Len(t, ans.Sources, 1)

	src := ans.Sources[0]
	assert.Equal(t, 7, src.Page)
	assert.InDelta(t, 0.8, src.Score, 1e-6)
	assert.Equal(t, 500, utf8.RuneCountInString(src.Text))
	assert.Equal(t, "Context:\n[page 7]\n"+long+"\n\nQuestion: q\nAnswer:", h.generator.user)
}

func TestQuery_Validation(t *testing.T) {
	h := newHarness(t, Options{})
	tests := []struct {
		name string
		req  QueryRequest
	}{
		{name: "missing document", req: QueryRequest{Scope: Scope{OwnerID: "u", ProjectID: "p"}, Message: "q"}},
		{name: "blank message", req: QueryRequest{Scope: scope("d"), Message: "  "}},
		{name: "top_k too large", req: QueryRequest{Scope: scope("d"), Message: "q", TopK: 21}},
		{name: "negative top_k", req: QueryRequest{Scope: scope("d"), Message: "q", TopK: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Query(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
	assert.Zero(t, h.embedder.calls)
	assert.Zero(t, h.generator.calls)
}

func TestQuery_GenerationFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.generator.err = fmt.Errorf("%w: no choices returned", generation.ErrProviderFailure)
	_, err := h.svc.Query(context.Background(), QueryRequest{Scope: scope("d"), Message: "q"})
	require.ErrorIs(t, err, generation.ErrProviderFailure)
	assert.Equal(t, KindProvider, KindOf(err))
}

func TestDelete(t *testing.T) {
	h := newHarness(t, Options{})

	res, err := h.svc.Delete(context.Background(), scope("never-ingested"))
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, res.Status)

	_, err = h.svc.Delete(context.Background(), Scope{OwnerID: "u", ProjectID: "p"})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestPublishFailureIsLogged(t *testing.T) {
	h := newHarness(t, Options{})
	h.publisher.err = errors.New("nats: connection closed")

	_, err := h.svc.Delete(context.Background(), scope("doc-1"))
	require.NoError(t, err)
	h.logger.AssertLogged(t, zapcore.WarnLevel, "publishing document event")
}

func TestNewService_Errors(t *testing.T) {
	_, err := NewService(Dependencies{}, Options{ChunkSize: 1000, ChunkOverlap: 150}, nil)
	assert.Error(t, err)

	h := newHarness(t, Options{})
	_, err = NewService(h.svc.deps, Options{ChunkSize: 100, ChunkOverlap: 100}, nil)
	assert.ErrorIs(t, err, chunker.ErrInvalidWindow)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: fmt.Errorf("x: %w", ErrNotFound), want: KindNotFound},
		{err: fmt.Errorf("x: %w", source.ErrNotFound), want: KindNotFound},
		{err: fmt.Errorf("x: %w", source.ErrNotAllowed), want: KindValidation},
		{err: fmt.Errorf("x: %w", vectorstore.ErrInvalidPayload), want: KindValidation},
		{err: fmt.Errorf("x: %w", extraction.ErrUnsupportedType), want: KindValidation},
		{err: fmt.Errorf("x: %w", extraction.ErrExtractionFailed), want: KindProvider},
		{err: fmt.Errorf("x: %w", embeddings.ErrProviderFailure), want: KindProvider},
		{err: fmt.Errorf("x: %w", vectorstore.ErrIndexFailure), want: KindIndex},
		{err: fmt.Errorf("x: %w", vectorstore.ErrDimensionMismatch), want: KindDimensionMismatch},
		{err: errors.New("boom"), want: KindInternal},
		{err: nil, want: KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "internal", Kind(99).String())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "", truncateRunes("héllo", 0))
}
