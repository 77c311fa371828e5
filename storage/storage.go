// Package storage defines the persistence contracts for documents, findings,
// review decisions and uploaded files.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"contractlens/llm"
)

// Status is the processing state of a document
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusProcessing   Status = "PROCESSING"
	StatusReviewNeeded Status = "REVIEW_NEEDED"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

// Terminal reports whether processing has finished for this status
func (s Status) Terminal() bool {
	return s == StatusReviewNeeded || s == StatusCompleted || s == StatusFailed
}

// Document is an uploaded file and its extraction result
type Document struct {
	ID         string                `json:"id"`
	Filename   string                `json:"filename"`
	BlobKey    string                `json:"blob_key"`
	Status     Status                `json:"status"`
	Extraction *llm.ExtractionResult `json:"extraction_result,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Decision is a reviewer's verdict on a finding
type Decision string

const (
	DecisionApprove  Decision = "APPROVE"
	DecisionOverride Decision = "OVERRIDE"
)

// ParseDecision accepts APPROVE or OVERRIDE in any case
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionOverride:
		return d, nil
	default:
		return "", llm.InvalidConfig("unknown review decision %q, want APPROVE or OVERRIDE", s)
	}
}

// FindingStatus is the status a decision moves a finding to
func (d Decision) FindingStatus() llm.FindingStatus {
	if d == DecisionApprove {
		return llm.StatusReviewed
	}
	return llm.StatusOverridden
}

// ReviewDecision records one review of a finding
type ReviewDecision struct {
	ID        int64     `json:"id"`
	FindingID int64     `json:"finding_id"`
	Decision  Decision  `json:"decision"`
	Comment   string    `json:"comment,omitempty"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentStore persists documents
type DocumentStore interface {
	// Create inserts a new document. Empty ID, status and timestamps are
	// filled in.
	Create(ctx context.Context, doc *Document) error

	// Get returns llm.ErrNotFound for an unknown id
	Get(ctx context.Context, id string) (*Document, error)

	UpdateStatus(ctx context.Context, id string, status Status) error

	// SaveExtraction replaces any previous result
	SaveExtraction(ctx context.Context, id string, result *llm.ExtractionResult) error

	// ListExtracted returns documents with a result by creation order
	ListExtracted(ctx context.Context) ([]Document, error)

	// List returns every document by creation order
	List(ctx context.Context) ([]Document, error)
}

// FindingStore persists findings. Findings are only ever appended.
type FindingStore interface {
	// AddFindings stores findings as open and returns them with ids
	AddFindings(ctx context.Context, findings []llm.Finding) ([]llm.Finding, error)

	ListByDocument(ctx context.Context, docID string) ([]llm.Finding, error)

	Get(ctx context.Context, id int64) (*llm.Finding, error)
}

// ReviewStore records decisions and moves findings out of open
type ReviewStore interface {
	Review(ctx context.Context, findingID int64, decision Decision, comment, userID string) (*ReviewDecision, error)

	ListDecisions(ctx context.Context, findingID int64) ([]ReviewDecision, error)
}

// BlobStore holds the uploaded files
type BlobStore interface {
	// Put stores r under a new key derived from name's extension
	Put(ctx context.Context, name string, r io.Reader) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Path returns a local path readable by the parsers
	Path(key string) (string, error)
}

// ErrUnknownDocument builds a not-found error for a document id
func ErrUnknownDocument(id string) error {
	return fmt.Errorf("document %s: %w", id, llm.ErrNotFound)
}
