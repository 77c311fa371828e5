// Package worker runs the document tasks: ingestion, extraction, comparison,
// risk assessment and clause library seeding. Every task publishes TaskEvents
// so callers can follow progress.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"contractlens/llm"
	"contractlens/llm/comparison"
	"contractlens/llm/extraction"
	"contractlens/llm/parser"
	"contractlens/llm/pipeline"
	"contractlens/llm/reasoning"
	"contractlens/llm/risk"
	"contractlens/llm/vector"
	"contractlens/pubsub"
	"contractlens/storage"
)

// Deps are the collaborators a Service is built from
type Deps struct {
	Documents storage.DocumentStore
	Findings  storage.FindingStore
	Blobs     storage.BlobStore
	Parsers   *parser.Registry
	Retriever *vector.Retriever
	Backend   reasoning.Backend
	Segmenter vector.ChunkConfig
	Events    pubsub.Publisher[TaskEvent]
	Logger    *slog.Logger
}

// Service executes document tasks
type Service struct {
	docs       storage.DocumentStore
	findings   storage.FindingStore
	blobs      storage.BlobStore
	parsers    *parser.Registry
	retriever  *vector.Retriever
	segmenter  vector.ChunkConfig
	extraction *extraction.Pipeline
	comparison *comparison.Pipeline
	risk       *risk.Pipeline
	events     pubsub.Publisher[TaskEvent]
	logger     *slog.Logger
}

// NewService wires the three pipelines over the given collaborators
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Documents == nil, d.Findings == nil, d.Blobs == nil:
		return nil, llm.InvalidConfig("worker: document, finding and blob stores are required")
	case d.Retriever == nil:
		return nil, llm.InvalidConfig("worker: retriever is required")
	case d.Backend == nil:
		return nil, llm.InvalidConfig("worker: reasoning backend is required")
	}
	if d.Parsers == nil {
		d.Parsers = parser.DefaultRegistry()
	}
	if d.Segmenter == (vector.ChunkConfig{}) {
		d.Segmenter = vector.DefaultChunkConfig()
	}
	if err := d.Segmenter.Validate(); err != nil {
		return nil, err
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	ext, err := extraction.New(d.Backend, d.Retriever, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction pipeline: %w", err)
	}

	s := &Service{
		docs:       d.Documents,
		findings:   d.Findings,
		blobs:      d.Blobs,
		parsers:    d.Parsers,
		retriever:  d.Retriever,
		segmenter:  d.Segmenter,
		extraction: ext,
		comparison: comparison.New(d.Backend, &documentSource{docs: d.Documents}, d.Logger),
		risk:       risk.New(d.Backend, d.Retriever, d.Logger),
		events:     d.Events,
		logger:     d.Logger,
	}
	s.extraction.OnStage(s.stageProgress)
	s.comparison.OnStage(s.stageProgress)
	s.risk.OnStage(s.stageProgress)
	return s, nil
}

// Supports reports whether path has a registered parser
func (s *Service) Supports(path string) bool {
	return s.parsers.Supports(path)
}

// Ingest copies a local file into the blob store and creates a PENDING
// document for it
func (s *Service) Ingest(ctx context.Context, path string) (*storage.Document, error) {
	if !s.parsers.Supports(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), llm.ErrUnsupportedFile)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	key, err := s.blobs.Put(ctx, name, f)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", name, err)
	}

	doc := &storage.Document{Filename: name, BlobKey: key}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document for %s: %w", name, err)
	}
	s.logger.Info("task.ingest.done", "doc_id", doc.ID, "filename", name)
	return doc, nil
}

// ProcessDocument parses, indexes and extracts a stored document, moving it
// through the status lifecycle. Any failure leaves the document FAILED.
func (s *Service) ProcessDocument(ctx context.Context, docID string) (*storage.Document, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	t := task{docID: doc.ID, filename: doc.Filename, name: TaskProcess}
	ctx = withTask(ctx, t)
	start := time.Now()
	s.publish(pubsub.StartedEvent, t, TaskEvent{Status: storage.StatusProcessing})

	fail := func(err error) (*storage.Document, error) {
		s.logger.Error("task.process.failed", "doc_id", doc.ID, "elapsed_ms", time.Since(start).Milliseconds(), "err", err)
		// the caller's context may be the reason for the failure
		if serr := s.docs.UpdateStatus(context.WithoutCancel(ctx), doc.ID, storage.StatusFailed); serr != nil {
			s.logger.Error("task.process.status_failed", "doc_id", doc.ID, "err", serr)
		}
		s.publish(pubsub.FailedEvent, t, TaskEvent{Status: storage.StatusFailed, Err: err.Error(), Elapsed: time.Since(start)})
		return nil, err
	}

	result, err := s.process(ctx, doc)
	if err != nil {
		return fail(err)
	}

	status := storage.StatusCompleted
	if result.DocType.Extractable() {
		status = storage.StatusReviewNeeded
	}
	if err := s.docs.UpdateStatus(ctx, doc.ID, status); err != nil {
		return fail(err)
	}

	doc.Status = status
	doc.Extraction = result
	s.logger.Info("task.process.done", "doc_id", doc.ID, "doc_type", result.DocType, "status", status, "elapsed_ms", time.Since(start).Milliseconds())
	s.publish(pubsub.FinishedEvent, t, TaskEvent{Status: status, Elapsed: time.Since(start)})
	return doc, nil
}

func (s *Service) process(ctx context.Context, doc *storage.Document) (*llm.ExtractionResult, error) {
	if err := s.docs.UpdateStatus(ctx, doc.ID, storage.StatusProcessing); err != nil {
		return nil, err
	}

	pages, err := s.parse(ctx, doc)
	if err != nil {
		return nil, err
	}

	chunks, err := vector.ChunkPages(doc.ID, pages, s.segmenter, map[string]interface{}{
		"filename": doc.Filename,
		"type":     "text",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to segment %s: %w", doc.Filename, err)
	}
	if err := s.retriever.EnsureCollection(ctx, llm.CollectionChunks); err != nil {
		return nil, err
	}
	if err := s.retriever.IndexChunks(ctx, llm.CollectionChunks, chunks); err != nil {
		return nil, err
	}
	s.progress(ctx, "index", 0)

	result, err := s.extraction.Run(ctx, doc.ID, llm.JoinPages(pages))
	if err != nil {
		return nil, err
	}
	if err := s.docs.SaveExtraction(ctx, doc.ID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) parse(ctx context.Context, doc *storage.Document) ([]llm.Page, error) {
	path, err := s.blobs.Path(doc.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to locate blob for %s: %w", doc.ID, err)
	}
	pages, err := s.parsers.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	s.progress(ctx, "parse", 0)
	return pages, nil
}

// IngestAndProcess ingests a local file and processes it
func (s *Service) IngestAndProcess(ctx context.Context, path string) (*storage.Document, error) {
	doc, err := s.Ingest(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.ProcessDocument(ctx, doc.ID)
}

// CompareInvoice compares an extracted invoice with its vendor's contract and
// appends the resulting findings
func (s *Service) CompareInvoice(ctx context.Context, invoiceID string) ([]llm.Finding, error) {
	t := task{docID: invoiceID, name: TaskCompare}
	return s.runFindings(ctx, t, func(ctx context.Context) ([]llm.Finding, error) {
		return s.comparison.Run(ctx, invoiceID)
	})
}

// AssessRisk re-parses an extracted contract, scores its clauses against the
// library and appends the resulting findings
func (s *Service) AssessRisk(ctx context.Context, docID string) ([]llm.Finding, error) {
	t := task{docID: docID, name: TaskRisk}
	return s.runFindings(ctx, t, func(ctx context.Context) ([]llm.Finding, error) {
		doc, err := s.docs.Get(ctx, docID)
		if err != nil && !errors.Is(err, llm.ErrNotFound) {
			return nil, err
		}
		if doc == nil || doc.Extraction == nil {
			return nil, llm.Precondition("Document not found or not extracted", llm.ErrNotExtracted)
		}
		pages, err := s.parse(ctx, doc)
		if err != nil {
			return nil, err
		}
		results, err := s.risk.Run(ctx, doc.ID, llm.JoinPages(pages))
		if err != nil {
			return nil, err
		}
		findings := make([]llm.Finding, len(results))
		for i, r := range results {
			findings[i] = r.ToFinding(doc.ID)
		}
		return findings, nil
	})
}

func (s *Service) runFindings(ctx context.Context, t task, run func(context.Context) ([]llm.Finding, error)) ([]llm.Finding, error) {
	ctx = withTask(ctx, t)
	start := time.Now()
	s.publish(pubsub.StartedEvent, t, TaskEvent{})

	findings, err := run(ctx)
	if err == nil {
		findings, err = s.findings.AddFindings(ctx, findings)
	}
	if err != nil {
		s.logger.Error("task."+t.name+".failed", "doc_id", t.docID, "elapsed_ms", time.Since(start).Milliseconds(), "err", err)
		s.publish(pubsub.FailedEvent, t, TaskEvent{Err: err.Error(), Elapsed: time.Since(start)})
		return nil, err
	}

	s.logger.Info("task."+t.name+".done", "doc_id", t.docID, "findings", len(findings), "elapsed_ms", time.Since(start).Milliseconds())
	s.publish(pubsub.FinishedEvent, t, TaskEvent{Findings: len(findings), Elapsed: time.Since(start)})
	return findings, nil
}

// SeedClauseLibrary loads the standard clauses into the clause library
func (s *Service) SeedClauseLibrary(ctx context.Context) (int, error) {
	t := task{name: TaskSeed}
	start := time.Now()
	s.publish(pubsub.StartedEvent, t, TaskEvent{})

	n, err := risk.SeedLibrary(ctx, s.retriever)
	if err != nil {
		s.logger.Error("task.seed.failed", "collection", llm.CollectionClauseLibrary, "err", err)
		s.publish(pubsub.FailedEvent, t, TaskEvent{Err: err.Error(), Elapsed: time.Since(start)})
		return 0, err
	}
	s.logger.Info("task.seed.done", "collection", llm.CollectionClauseLibrary, "clauses", n)
	s.publish(pubsub.FinishedEvent, t, TaskEvent{Findings: n, Elapsed: time.Since(start)})
	return n, nil
}

// Document returns a stored document
func (s *Service) Document(ctx context.Context, id string) (*storage.Document, error) {
	return s.docs.Get(ctx, id)
}

// Findings returns a document's findings
func (s *Service) Findings(ctx context.Context, docID string) ([]llm.Finding, error) {
	if _, err := s.docs.Get(ctx, docID); err != nil {
		return nil, err
	}
	return s.findings.ListByDocument(ctx, docID)
}

func (s *Service) stageProgress(ctx context.Context, ev pipeline.StageEvent) {
	stage := ev.Pipeline + "." + string(ev.Stage)
	if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
		s.logger.Warn("task.stage.failed", "stage", stage, "err", ev.Err)
	}
	s.progress(ctx, stage, ev.Elapsed)
}

func (s *Service) progress(ctx context.Context, stage string, elapsed time.Duration) {
	t, ok := taskFrom(ctx)
	if !ok {
		return
	}
	s.publish(pubsub.ProgressEvent, t, TaskEvent{Stage: stage, Elapsed: elapsed})
}

func (s *Service) publish(typ pubsub.EventType, t task, ev TaskEvent) {
	ev.DocID = t.docID
	ev.Filename = t.filename
	ev.Task = t.name
	s.events.Publish(typ, ev)
}
