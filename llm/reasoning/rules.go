package reasoning

import (
	"context"
	"strings"

	"contractlens/llm"
)

// RuleBased is the deterministic fallback backend
type RuleBased struct{}

var _ Backend = RuleBased{}

// NewRuleBased creates the rule-based backend
func NewRuleBased() RuleBased {
	return RuleBased{}
}

func (RuleBased) Mode() Mode { return ModeRules }

// Classify checks contract keywords before invoice keywords
func (RuleBased) Classify(ctx context.Context, text string) (llm.DocType, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "scope of work") || strings.Contains(lower, "agreement"):
		return llm.DocTypeContract, nil
	case strings.Contains(lower, "invoice"):
		return llm.DocTypeInvoice, nil
	default:
		return llm.DocTypeOther, nil
	}
}

// Extract returns fixed placeholder data for the type
func (RuleBased) Extract(ctx context.Context, docType llm.DocType, text string) (map[string]interface{}, error) {
	switch docType {
	case llm.DocTypeInvoice:
		terms := "Net 30"
		if strings.Contains(text, "Net 10") {
			terms = "Net 10"
		}
		return map[string]interface{}{
			"vendor_name":    "Mock Vendor",
			"total_amount":   1000.0,
			"invoice_date":   "2024-01-01",
			"invoice_number": "INV-001",
			"payment_terms":  terms,
			"line_items": []interface{}{
				map[string]interface{}{
					"description":  "Consulting Services",
					"quantity":     10,
					"unit_price":   100.0,
					"total_amount": 1000.0,
				},
			},
		}, nil
	case llm.DocTypeContract:
		return map[string]interface{}{
			"payment_terms":  "Net 30",
			"party_a":        "Mock Party A",
			"party_b":        "Mock Vendor",
			"effective_date": "2024-01-01",
			"agreement_type": "Service Agreement",
			"rate_table": []interface{}{
				map[string]interface{}{
					"item_description": "Consulting Services",
					"agreed_rate":      90.0,
					"unit":             "hour",
				},
			},
		}, nil
	default:
		return map[string]interface{}{}, nil
	}
}

// JudgeTerms compares normalised strings
func (RuleBased) JudgeTerms(ctx context.Context, invoiceTerms, contractTerms string) (TermJudgment, error) {
	return TermJudgment{Consistent: llm.Normalize(invoiceTerms) == llm.Normalize(contractTerms)}, nil
}

// ruleClauses maps a keyword to the clause it stands for
var ruleClauses = []struct {
	keyword, clauseType, text string
}{
	{"liability", "Liability Cap", "The total liability shall be unlimited."},
	{"payment", "Payment Terms", "Net 60 Days."},
}

// IdentifyClauses reports canned clauses for keywords present in text
func (RuleBased) IdentifyClauses(ctx context.Context, text string, targets []string) ([]Clause, error) {
	lower := strings.ToLower(text)
	found := make(map[string]string)
	for _, rc := range ruleClauses {
		if strings.Contains(lower, rc.keyword) {
			found[rc.clauseType] = rc.text
		}
	}
	return orderClauses(found, targets), nil
}

// AssessClause flags unlimited liability
func (RuleBased) AssessClause(ctx context.Context, clauseType, actual, standard string) (*llm.RiskFinding, error) {
	if !strings.Contains(strings.ToLower(actual), "unlimited") {
		return nil, nil
	}
	return &llm.RiskFinding{
		ClauseType:     clauseType,
		RiskScore:      9,
		RiskLevel:      llm.SeverityHigh,
		Explanation:    "Unlimited liability is high risk.",
		OriginalText:   actual,
		RedlineText:    "Liability limited to 1x Fees.",
		StandardClause: standard,
	}, nil
}
