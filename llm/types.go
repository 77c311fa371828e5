package llm

import "fmt"

// Collection names in the retrieval index
const (
	CollectionChunks        = "contract_chunks"
	CollectionClauseLibrary = "clause_library"
)

// Page is the extracted text of a single document page
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Chunk is a bounded window of page text, the unit of retrieval
type Chunk struct {
	ID         string                 `json:"id"`
	DocID      string                 `json:"doc_id"`
	Text       string                 `json:"text"`
	PageNumber int                    `json:"page_number"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// DocType is the classification of a document
type DocType string

const (
	DocTypeInvoice  DocType = "invoice"
	DocTypeContract DocType = "contract"
	DocTypeOther    DocType = "other"
)

// Extractable reports whether a document of this type has a field schema
func (t DocType) Extractable() bool {
	return t == DocTypeInvoice || t == DocTypeContract
}

// Evidence is the chunk retrieved to ground an extracted field
type Evidence struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	PageNumber int     `json:"page_number"`
	Score      float32 `json:"score"`
}

// FieldValue is an extracted value with its optional evidence
type FieldValue struct {
	Value    interface{} `json:"value"`
	Evidence *Evidence   `json:"evidence"`
}

// ExtractionResult is the output of the extraction pipeline
type ExtractionResult struct {
	DocType DocType               `json:"doc_type"`
	Data    map[string]FieldValue `json:"data"`
}

// Value returns the raw value of a field, or nil when absent
func (r *ExtractionResult) Value(field string) interface{} {
	if r == nil || r.Data == nil {
		return nil
	}
	fv, ok := r.Data[field]
	if !ok {
		return nil
	}
	return fv.Value
}

// FindingType identifies the kind of finding. Risk findings use the clause type.
type FindingType string

const (
	FindingTermMismatch     FindingType = "term_mismatch"
	FindingRateMismatch     FindingType = "rate_mismatch"
	FindingCalculationError FindingType = "calculation_error"
	FindingMissingPO        FindingType = "missing_po"
	FindingAnomaly          FindingType = "anomaly"
)

// Severity of a finding or risk level of a clause
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalises a severity string, rejecting unknown values
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(Normalize(s)); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// FindingStatus is the review status of a finding
type FindingStatus string

const (
	StatusOpen       FindingStatus = "open"
	StatusReviewed   FindingStatus = "reviewed"
	StatusOverridden FindingStatus = "overridden"
)

// Finding is a detected inconsistency or risk
type Finding struct {
	ID                int64                  `json:"id,omitempty"`
	DocumentID        string                 `json:"document_id"`
	RelatedDocumentID string                 `json:"related_document_id,omitempty"`
	Type              FindingType            `json:"finding_type"`
	Severity          Severity               `json:"severity"`
	Description       string                 `json:"description"`
	Evidence          map[string]interface{} `json:"evidence,omitempty"`
	Recommendation    string                 `json:"recommendation,omitempty"`
	Status            FindingStatus          `json:"status"`
}

// RiskFinding is a clause scored against the policy library
type RiskFinding struct {
	ClauseType     string   `json:"clause_type"`
	RiskScore      int      `json:"risk_score"`
	RiskLevel      Severity `json:"risk_level"`
	Explanation    string   `json:"explanation"`
	OriginalText   string   `json:"original_text"`
	RedlineText    string   `json:"redline_text,omitempty"`
	StandardClause string   `json:"standard_clause,omitempty"`
}

// ToFinding maps a risk finding to a persisted finding row
func (r RiskFinding) ToFinding(docID string) Finding {
	return Finding{
		DocumentID:  docID,
		Type:        FindingType(r.ClauseType),
		Severity:    r.RiskLevel,
		Description: fmt.Sprintf("%s\nOriginal: %s\nRedline: %s", r.Explanation, r.OriginalText, r.RedlineText),
		Evidence: map[string]interface{}{
			"original":   r.OriginalText,
			"standard":   r.StandardClause,
			"risk_score": r.RiskScore,
			"redline":    r.RedlineText,
		},
		Status: StatusOpen,
	}
}
