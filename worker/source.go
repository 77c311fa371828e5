package worker

import (
	"context"
	"errors"

	"contractlens/llm"
	"contractlens/llm/comparison"
	"contractlens/storage"
)

// documentSource serves stored extraction results to the comparison pipeline
type documentSource struct {
	docs storage.DocumentStore
}

var _ comparison.ExtractionSource = (*documentSource)(nil)

// Get returns nil for a known document that has not been extracted
func (s *documentSource) Get(ctx context.Context, id string) (*llm.ExtractionResult, error) {
	doc, err := s.docs.Get(ctx, id)
	if errors.Is(err, llm.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Extraction, nil
}

func (s *documentSource) ListExtracted(ctx context.Context) ([]comparison.Record, error) {
	docs, err := s.docs.ListExtracted(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]comparison.Record, 0, len(docs))
	for _, d := range docs {
		if d.Extraction == nil {
			continue
		}
		records = append(records, comparison.Record{DocumentID: d.ID, Extraction: d.Extraction})
	}
	return records, nil
}
