// Package comparison checks an extracted invoice against the contract of the
// same vendor and reports term, rate and coverage findings.
package comparison

import (
	"context"
	"errors"
	"log/slog"

	"contractlens/llm"
	"contractlens/llm/pipeline"
	"contractlens/llm/reasoning"
)

// Stage names
const (
	StageRetrieveContract pipeline.StateName = "retrieve_contract"
	StageCompareTerms     pipeline.StateName = "compare_terms"
	StageCompareLineItems pipeline.StateName = "compare_line_items"
)

// Record is a stored document with its extraction result
type Record struct {
	DocumentID string
	Extraction *llm.ExtractionResult
}

// ExtractionSource reads extraction results
type ExtractionSource interface {
	// Get returns the extraction of a document, or nil when it has none
	Get(ctx context.Context, id string) (*llm.ExtractionResult, error)

	// ListExtracted returns every document with an extraction result in a
	// stable order
	ListExtracted(ctx context.Context) ([]Record, error)
}

// State flows through the comparison stages
type State struct {
	InvoiceID  string
	Invoice    *llm.ExtractionResult
	ContractID string
	Contract   *llm.ExtractionResult
	Findings   []llm.Finding
}

// Pipeline runs retrieve_contract, compare_terms and compare_line_items
type Pipeline struct {
	backend reasoning.Backend
	source  ExtractionSource
	machine *pipeline.Machine[State]
	logger  *slog.Logger
}

// New builds the comparison pipeline
func New(backend reasoning.Backend, source ExtractionSource, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		backend: backend,
		source:  source,
		logger:  logger,
	}
	p.machine = pipeline.New[State]("comparison", StageRetrieveContract, logger).
		Add(StageRetrieveContract, p.RetrieveContract).
		Add(StageCompareTerms, p.CompareTerms).
		Add(StageCompareLineItems, p.CompareLineItems)
	return p
}

// OnStage observes stage completion
func (p *Pipeline) OnStage(fn pipeline.StageHook) {
	p.machine.OnStage(fn)
}

// Run compares an invoice with its vendor's contract. The invoice must exist
// and carry an extraction result.
func (p *Pipeline) Run(ctx context.Context, invoiceID string) ([]llm.Finding, error) {
	invoice, err := p.source.Get(ctx, invoiceID)
	if err != nil && !errors.Is(err, llm.ErrNotFound) {
		return nil, err
	}
	if invoice == nil {
		return nil, llm.Precondition("Invoice not found or not extracted", llm.ErrNotExtracted)
	}

	state := &State{InvoiceID: invoiceID, Invoice: invoice}
	if err := p.machine.Run(ctx, state); err != nil {
		return nil, err
	}
	return state.Findings, nil
}

// RetrieveContract finds the first extracted contract whose parties match
// the invoice vendor
func (p *Pipeline) RetrieveContract(ctx context.Context, s *State) (pipeline.Transition, error) {
	vendor := stringValue(fieldValue(s.Invoice, "vendor_name"))
	if vendor == "" {
		p.logger.Warn("comparison.retrieve.no_vendor", "doc_id", s.InvoiceID)
		return pipeline.Continue(StageCompareTerms), nil
	}

	records, err := p.source.ListExtracted(ctx)
	if err != nil {
		return pipeline.Transition{}, err
	}

	for _, rec := range records {
		if rec.DocumentID == s.InvoiceID || rec.Extraction == nil || rec.Extraction.DocType != llm.DocTypeContract {
			continue
		}
		partyA := stringValue(fieldValue(rec.Extraction, "party_a"))
		partyB := stringValue(fieldValue(rec.Extraction, "party_b"))
		if matchParty(vendor, partyA) || matchParty(vendor, partyB) {
			s.ContractID = rec.DocumentID
			s.Contract = rec.Extraction
			p.logger.Info("comparison.retrieve.done", "doc_id", s.InvoiceID, "contract_id", rec.DocumentID)
			break
		}
	}
	return pipeline.Continue(StageCompareTerms), nil
}

// matchParty fuzzy-matches a vendor against a non-empty party name
func matchParty(vendor, party string) bool {
	return party != "" && llm.FuzzyMatch(vendor, party)
}

// CompareTerms reports a missing contract, or asks the backend whether both
// payment terms agree
func (p *Pipeline) CompareTerms(ctx context.Context, s *State) (pipeline.Transition, error) {
	if s.Contract == nil {
		s.Findings = append(s.Findings, llm.Finding{
			DocumentID:     s.InvoiceID,
			Type:           llm.FindingMissingPO,
			Severity:       llm.SeverityHigh,
			Description:    "No matching contract found for this vendor.",
			Recommendation: "Upload a contract for this vendor.",
			Status:         llm.StatusOpen,
		})
		return pipeline.Terminate(), nil
	}

	invTerms := fieldValue(s.Invoice, "payment_terms")
	conTerms := fieldValue(s.Contract, "payment_terms")
	if !present(invTerms) || !present(conTerms) {
		return pipeline.Continue(StageCompareLineItems), nil
	}

	judgment, err := p.backend.JudgeTerms(ctx, stringValue(invTerms), stringValue(conTerms))
	if err != nil {
		p.logger.Error("comparison.terms.failed", "doc_id", s.InvoiceID, "err", err)
		return pipeline.Continue(StageCompareLineItems), nil
	}
	if !judgment.Consistent {
		s.Findings = append(s.Findings, termMismatch(s, invTerms, conTerms, judgment.Explanation))
	}
	return pipeline.Continue(StageCompareLineItems), nil
}

// CompareLineItems checks every priced invoice line against the contract
// rate table
func (p *Pipeline) CompareLineItems(ctx context.Context, s *State) (pipeline.Transition, error) {
	items, _ := fieldValue(s.Invoice, "line_items").([]interface{})
	rates, _ := fieldValue(s.Contract, "rate_table").([]interface{})
	if len(items) == 0 || len(rates) == 0 {
		p.logger.Info("comparison.items.skipped", "doc_id", s.InvoiceID, "line_items", len(items), "rates", len(rates))
		return pipeline.Terminate(), nil
	}

	lookup := newRateLookup(rates)
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if f, ok := checkLineItem(s, item, lookup); ok {
			s.Findings = append(s.Findings, f)
		}
	}
	return pipeline.Terminate(), nil
}
