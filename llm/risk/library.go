package risk

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"contractlens/llm"
	"contractlens/llm/vector"
)

// StandardClause is a policy-approved clause text
type StandardClause struct {
	Type        string
	Text        string
	RiskProfile string
}

// Library is the standard clause set seeded into the clause library
var Library = []StandardClause{
	{
		Type:        "Liability Cap",
		Text:        "The total liability of either party shall not exceed the total fees paid by Customer to Vendor in the twelve (12) months preceding the claim.",
		RiskProfile: "Standard (Safe)",
	},
	{
		Type:        "Payment Terms",
		Text:        "Customer shall pay all undisputed invoices within thirty (30) days of receipt.",
		RiskProfile: "Standard (Safe)",
	},
	{
		Type:        "Termination for Convenience",
		Text:        "Either party may terminate this Agreement for convenience upon providing thirty (30) days prior written notice.",
		RiskProfile: "Standard (Safe)",
	},
	{
		Type:        "Indemnification",
		Text:        "Vendor shall indemnify, defend, and hold Customer harmless from and against any third-party claims arising from Vendor's negligence or willful misconduct.",
		RiskProfile: "Standard (Safe)",
	},
	{
		Type:        "Governing Law",
		Text:        "This Agreement shall be governed by and construed in accordance with the laws of the State of Delaware.",
		RiskProfile: "Standard (Safe)",
	},
}

// ClauseID is the stable point id of a library clause
func ClauseID(clauseType string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(clauseType)).String()
}

// Indexer embeds and stores text points
type Indexer interface {
	EnsureCollection(ctx context.Context, collection string) error
	IndexPoints(ctx context.Context, collection string, points []vector.TextPoint) error
}

// SeedLibrary writes the standard clauses into the clause library. Ids are
// derived from the clause type, so seeding again overwrites.
func SeedLibrary(ctx context.Context, idx Indexer) (int, error) {
	if err := idx.EnsureCollection(ctx, llm.CollectionClauseLibrary); err != nil {
		return 0, err
	}

	points := make([]vector.TextPoint, len(Library))
	for i, c := range Library {
		points[i] = vector.TextPoint{
			ID:   ClauseID(c.Type),
			Text: c.Text,
			Payload: map[string]interface{}{
				"text":         c.Text,
				"clause_type":  c.Type,
				"risk_profile": c.RiskProfile,
			},
		}
	}

	if err := idx.IndexPoints(ctx, llm.CollectionClauseLibrary, points); err != nil {
		return 0, fmt.Errorf("failed to seed clause library: %w", err)
	}
	return len(points), nil
}
