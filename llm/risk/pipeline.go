// Package risk scores contract clauses against the standard clause library.
package risk

import (
	"context"
	"log/slog"

	"contractlens/llm"
	"contractlens/llm/pipeline"
	"contractlens/llm/reasoning"
	"contractlens/llm/vector"
)

// Stage names
const (
	StageIdentifyClauses pipeline.StateName = "identify_clauses"
	StageAssessRisk      pipeline.StateName = "assess_risk"
)

const (
	identifyWindow = 8000

	// minReportedScore is the highest score that is not reported
	minReportedScore = 3

	standardNotFound = "Standard not found."
)

// TargetClauses are the clause types looked for in every contract
var TargetClauses = []string{"Liability Cap", "Payment Terms", "Indemnification", "Termination for Convenience"}

// Searcher finds library entries for a query
type Searcher interface {
	SearchText(ctx context.Context, collection, query string, limit int, filter vector.Filter) ([]vector.Hit, error)
}

// State flows through the risk stages
type State struct {
	DocID    string
	Text     string
	Clauses  []reasoning.Clause
	Findings []llm.RiskFinding
}

// Pipeline runs identify_clauses and assess_risk
type Pipeline struct {
	backend reasoning.Backend
	search  Searcher
	machine *pipeline.Machine[State]
	logger  *slog.Logger
}

// New builds the risk pipeline
func New(backend reasoning.Backend, search Searcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		backend: backend,
		search:  search,
		logger:  logger,
	}
	p.machine = pipeline.New[State]("risk", StageIdentifyClauses, logger).
		Add(StageIdentifyClauses, p.IdentifyClauses).
		Add(StageAssessRisk, p.AssessRisk)
	return p
}

// OnStage observes stage completion
func (p *Pipeline) OnStage(fn pipeline.StageHook) {
	p.machine.OnStage(fn)
}

// Run assesses the full text of a contract
func (p *Pipeline) Run(ctx context.Context, docID, text string) ([]llm.RiskFinding, error) {
	state := &State{DocID: docID, Text: text}
	if err := p.machine.Run(ctx, state); err != nil {
		return nil, err
	}
	return state.Findings, nil
}

// IdentifyClauses pulls the target clauses from the contract prefix
func (p *Pipeline) IdentifyClauses(ctx context.Context, s *State) (pipeline.Transition, error) {
	clauses, err := p.backend.IdentifyClauses(ctx, llm.Prefix(s.Text, identifyWindow), TargetClauses)
	if err != nil {
		p.logger.Error("risk.identify.failed", "doc_id", s.DocID, "err", err)
		clauses = nil
	}
	s.Clauses = clauses
	p.logger.Info("risk.identify.done", "doc_id", s.DocID, "clauses", len(clauses))
	return pipeline.Continue(StageAssessRisk), nil
}

// AssessRisk scores each clause against its library standard and keeps the
// ones scoring above the reporting threshold
func (p *Pipeline) AssessRisk(ctx context.Context, s *State) (pipeline.Transition, error) {
	for _, clause := range s.Clauses {
		standard := p.standardFor(ctx, s.DocID, clause.Type)

		finding, err := p.backend.AssessClause(ctx, clause.Type, clause.Text, standard)
		if err != nil {
			p.logger.Error("risk.assess.failed", "doc_id", s.DocID, "clause_type", clause.Type, "err", err)
			continue
		}
		if finding == nil {
			continue
		}

		finding.ClauseType = clause.Type
		finding.OriginalText = clause.Text
		finding.StandardClause = standard
		if finding.RiskScore > minReportedScore {
			s.Findings = append(s.Findings, *finding)
		}
	}

	p.logger.Info("risk.assess.done", "doc_id", s.DocID, "findings", len(s.Findings))
	return pipeline.Terminate(), nil
}

// standardFor returns the library text for a clause type
func (p *Pipeline) standardFor(ctx context.Context, docID, clauseType string) string {
	hits, err := p.search.SearchText(ctx, llm.CollectionClauseLibrary, clauseType, 1, vector.Filter{})
	if err != nil {
		p.logger.Warn("risk.standard.failed", "doc_id", docID, "clause_type", clauseType, "err", err)
		return standardNotFound
	}
	if len(hits) == 0 || hits[0].Text() == "" {
		return standardNotFound
	}
	return hits[0].Text()
}
