package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"contractlens/llm"
	"contractlens/storage"
)

// FindingStore implements storage.FindingStore and storage.ReviewStore
type FindingStore struct {
	store *Store
}

const findingColumns = "id, document_id, related_document_id, finding_type, severity, description, evidence, recommendation, status"

// AddFindings implements storage.FindingStore. Every finding is stored open.
func (f *FindingStore) AddFindings(ctx context.Context, findings []llm.Finding) ([]llm.Finding, error) {
	if len(findings) == 0 {
		return nil, nil
	}

	tx, err := f.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (document_id, related_document_id, finding_type, severity, description, evidence, recommendation, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := f.store.now().UnixNano()
	out := make([]llm.Finding, len(findings))
	for i, finding := range findings {
		evidence, err := json.Marshal(finding.Evidence)
		if err != nil {
			return nil, fmt.Errorf("failed to encode evidence: %w", err)
		}
		finding.Status = llm.StatusOpen

		res, err := stmt.ExecContext(ctx, finding.DocumentID, nullString(finding.RelatedDocumentID),
			string(finding.Type), string(finding.Severity), finding.Description, string(evidence),
			nullString(finding.Recommendation), string(finding.Status), now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert finding: %w", err)
		}
		if finding.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("failed to read finding id: %w", err)
		}
		out[i] = finding
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit findings: %w", err)
	}
	return out, nil
}

// ListByDocument implements storage.FindingStore
func (f *FindingStore) ListByDocument(ctx context.Context, docID string) ([]llm.Finding, error) {
	rows, err := f.store.db.QueryContext(ctx, "SELECT "+findingColumns+" FROM findings WHERE document_id = ? ORDER BY id", docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []llm.Finding
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, *finding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate findings: %w", err)
	}
	return findings, nil
}

// Get implements storage.FindingStore
func (f *FindingStore) Get(ctx context.Context, id int64) (*llm.Finding, error) {
	row := f.store.db.QueryRowContext(ctx, "SELECT "+findingColumns+" FROM findings WHERE id = ?", id)
	finding, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding %d: %w", id, llm.ErrNotFound)
	}
	return finding, err
}

// Review implements storage.ReviewStore
func (f *FindingStore) Review(ctx context.Context, findingID int64, decision storage.Decision, comment, userID string) (*storage.ReviewDecision, error) {
	tx, err := f.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, "UPDATE findings SET status = ? WHERE id = ?", string(decision.FindingStatus()), findingID)
	if err != nil {
		return nil, fmt.Errorf("failed to update finding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("finding %d: %w", findingID, llm.ErrNotFound)
	}

	now := f.store.now()
	res, err = tx.ExecContext(ctx, `
		INSERT INTO review_decisions (finding_id, decision, comment, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, findingID, string(decision), nullString(comment), userID, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert review decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read decision id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}
	return &storage.ReviewDecision{
		ID:        id,
		FindingID: findingID,
		Decision:  decision,
		Comment:   comment,
		UserID:    userID,
		CreatedAt: now,
	}, nil
}

// ListDecisions implements storage.ReviewStore
func (f *FindingStore) ListDecisions(ctx context.Context, findingID int64) ([]storage.ReviewDecision, error) {
	rows, err := f.store.db.QueryContext(ctx, `
		SELECT id, finding_id, decision, comment, user_id, created_at
		FROM review_decisions WHERE finding_id = ? ORDER BY id
	`, findingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []storage.ReviewDecision
	for rows.Next() {
		var (
			d        storage.ReviewDecision
			decision string
			comment  sql.NullString
			created  int64
		)
		if err := rows.Scan(&d.ID, &d.FindingID, &decision, &comment, &d.UserID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Decision = storage.Decision(decision)
		d.Comment = comment.String
		d.CreatedAt = time.Unix(0, created)
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}

func scanFinding(row scanner) (*llm.Finding, error) {
	var (
		f                       llm.Finding
		related, recommendation sql.NullString
		evidence                sql.NullString
		findingType, severity   string
		status                  string
	)
	if err := row.Scan(&f.ID, &f.DocumentID, &related, &findingType, &severity, &f.Description,
		&evidence, &recommendation, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan finding: %w", err)
	}

	f.RelatedDocumentID = related.String
	f.Recommendation = recommendation.String
	f.Type = llm.FindingType(findingType)
	f.Severity = llm.Severity(severity)
	f.Status = llm.FindingStatus(status)

	if evidence.Valid && strings.TrimSpace(evidence.String) != "" && evidence.String != "null" {
		if err := json.Unmarshal([]byte(evidence.String), &f.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence of finding %d: %w", f.ID, err)
		}
	}
	return &f, nil
}

// nullString maps an empty string to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
