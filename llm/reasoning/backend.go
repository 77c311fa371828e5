// Package reasoning provides the capability every reasoning pipeline stage is
// written against. Two variants exist: ModelBacked, which calls a chat model,
// and RuleBased, a deterministic keyword fallback that needs no network.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"

	"contractlens/llm"
	"contractlens/llm/providers"
)

// Mode names the active backend variant
type Mode string

const (
	ModeModel Mode = "model"
	ModeRules Mode = "rules"
)

// TermJudgment is the verdict on two payment-term strings
type TermJudgment struct {
	Consistent  bool   `json:"consistent"`
	Explanation string `json:"explanation"`
}

// Clause is a verbatim clause pulled from a contract
type Clause struct {
	Type string
	Text string
}

// Backend is the reasoning capability used by the pipelines
type Backend interface {
	Mode() Mode

	// Classify returns the document type of text
	Classify(ctx context.Context, text string) (llm.DocType, error)

	// Extract returns the raw field set for docType. Validation is the
	// caller's concern.
	Extract(ctx context.Context, docType llm.DocType, text string) (map[string]interface{}, error)

	// JudgeTerms decides whether invoice and contract payment terms agree
	JudgeTerms(ctx context.Context, invoiceTerms, contractTerms string) (TermJudgment, error)

	// IdentifyClauses finds the target clause types present in text,
	// ordered by targets
	IdentifyClauses(ctx context.Context, text string, targets []string) ([]Clause, error)

	// AssessClause scores a clause against its standard. A nil finding means
	// nothing to report.
	AssessClause(ctx context.Context, clauseType, actual, standard string) (*llm.RiskFinding, error)
}

// Options configures Select
type Options struct {
	Provider      providers.ReasoningConfig
	RatePerSecond float64
	Logger        *slog.Logger
}

// Select builds the backend once for the process. Without a configured
// provider it returns the rule-based backend.
func Select(ctx context.Context, opts Options) (Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	chatModel, provider, err := providers.NewReasoningModel(ctx, opts.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to select reasoning backend: %w", err)
	}

	if chatModel == nil {
		logger.Warn("reasoning.select", "mode", ModeRules, "reason", "no API key configured")
		return NewRuleBased(), nil
	}

	logger.Info("reasoning.select", "mode", ModeModel, "provider", provider)
	return NewModelBacked(chatModel, opts.RatePerSecond, logger), nil
}
