// Package extraction classifies a document, extracts its typed field set and
// grounds each scalar field in the chunk that best supports it.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"contractlens/llm"
	"contractlens/llm/pipeline"
	"contractlens/llm/reasoning"
	"contractlens/llm/vector"
)

// Stage names
const (
	StageClassify     pipeline.StateName = "classify"
	StageExtract      pipeline.StateName = "extract"
	StageLinkEvidence pipeline.StateName = "link_evidence"
)

// Prefix lengths, in characters, handed to the backend
const (
	classifyWindow = 2000
	extractWindow  = 5000
)

// Searcher finds chunks for a query within a collection
type Searcher interface {
	SearchText(ctx context.Context, collection, query string, limit int, filter vector.Filter) ([]vector.Hit, error)
}

// State flows through the extraction stages
type State struct {
	DocID     string
	Text      string
	DocType   llm.DocType
	Extracted map[string]interface{}
	Data      map[string]llm.FieldValue
}

// Pipeline runs classify, extract and link_evidence
type Pipeline struct {
	backend reasoning.Backend
	search  Searcher
	schemas *Schemas
	machine *pipeline.Machine[State]
	logger  *slog.Logger
}

// New builds the extraction pipeline
func New(backend reasoning.Backend, search Searcher, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		backend: backend,
		search:  search,
		schemas: schemas,
		logger:  logger,
	}
	p.machine = pipeline.New[State]("extraction", StageClassify, logger).
		Add(StageClassify, p.Classify).
		Add(StageExtract, p.Extract).
		Add(StageLinkEvidence, p.LinkEvidence)
	return p, nil
}

// OnStage observes stage completion
func (p *Pipeline) OnStage(fn pipeline.StageHook) {
	p.machine.OnStage(fn)
}

// Run extracts docID's full text
func (p *Pipeline) Run(ctx context.Context, docID, text string) (*llm.ExtractionResult, error) {
	state := &State{DocID: docID, Text: text}
	if err := p.machine.Run(ctx, state); err != nil {
		return nil, err
	}

	data := state.Data
	if data == nil || !state.DocType.Extractable() {
		data = map[string]llm.FieldValue{}
	}
	return &llm.ExtractionResult{DocType: state.DocType, Data: data}, nil
}

// Classify labels the document from its prefix. Backend failures degrade to
// other.
func (p *Pipeline) Classify(ctx context.Context, s *State) (pipeline.Transition, error) {
	prefix := llm.Prefix(s.Text, classifyWindow)

	docType, err := p.backend.Classify(ctx, prefix)
	if err != nil {
		p.logger.Warn("extraction.classify.failed", "doc_id", s.DocID, "err", err)
		docType = llm.DocTypeOther
	}

	if docType == llm.DocTypeInvoice {
		lower := strings.ToLower(prefix)
		if strings.Contains(lower, "scope of work") && !strings.Contains(lower, "invoice #") {
			docType = llm.DocTypeContract
		}
	}

	s.DocType = docType
	p.logger.Info("extraction.classify.done", "doc_id", s.DocID, "doc_type", docType)

	if !docType.Extractable() {
		return pipeline.Terminate(), nil
	}
	return pipeline.Continue(StageExtract), nil
}

// Extract asks the backend for the field set and validates it. A backend or
// validation failure leaves an empty field set.
func (p *Pipeline) Extract(ctx context.Context, s *State) (pipeline.Transition, error) {
	s.Extracted = map[string]interface{}{}

	data, err := p.backend.Extract(ctx, s.DocType, llm.Prefix(s.Text, extractWindow))
	if err != nil {
		p.logger.Error("extraction.extract.failed", "doc_id", s.DocID, "doc_type", s.DocType, "err", err)
		return pipeline.Continue(StageLinkEvidence), nil
	}
	if err := p.schemas.Validate(s.DocType, data); err != nil {
		p.logger.Error("extraction.extract.invalid", "doc_id", s.DocID, "doc_type", s.DocType, "err", err)
		return pipeline.Continue(StageLinkEvidence), nil
	}

	s.Extracted = data
	p.logger.Info("extraction.extract.done", "doc_id", s.DocID, "fields", len(data))
	return pipeline.Continue(StageLinkEvidence), nil
}

// LinkEvidence attaches the top matching chunk of this document to every
// scalar field
func (p *Pipeline) LinkEvidence(ctx context.Context, s *State) (pipeline.Transition, error) {
	s.Data = make(map[string]llm.FieldValue, len(s.Extracted))
	linked := 0

	for key, value := range s.Extracted {
		if !linkable(value) {
			s.Data[key] = llm.FieldValue{Value: value}
			continue
		}

		query := fmt.Sprintf("%s: %v", key, value)
		hits, err := p.search.SearchText(ctx, llm.CollectionChunks, query, 1, vector.Filter{DocID: s.DocID})
		if err != nil {
			p.logger.Warn("extraction.link.failed", "doc_id", s.DocID, "field", key, "err", err)
			s.Data[key] = llm.FieldValue{Value: value}
			continue
		}

		fv := llm.FieldValue{Value: value}
		if len(hits) > 0 {
			top := hits[0]
			fv.Evidence = &llm.Evidence{
				ChunkID:    top.ID,
				Text:       top.Text(),
				PageNumber: top.PageNumber(),
				Score:      top.Score,
			}
			linked++
		}
		s.Data[key] = fv
	}

	p.logger.Info("extraction.link.done", "doc_id", s.DocID, "fields", len(s.Data), "linked", linked)
	return pipeline.Terminate(), nil
}

// linkable reports whether a value is a non-empty scalar worth searching for
func linkable(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case []interface{}, map[string]interface{}:
		return false
	default:
		return true
	}
}
