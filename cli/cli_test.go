package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"contractlens/llm"
	"contractlens/storage/sqlite"
)

const (
	contractText = "MASTER SERVICES AGREEMENT\n\nThe total liability of either party is unlimited.\nPayment is due Net 30."
	invoiceText  = "INVOICE #1042\n\nConsulting Services 10 x 100.00\nPayment terms: Net 10"
)

// setupEnv points the CLI at a fresh data directory with offline backends
func setupEnv(t *testing.T) string {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("REASONING_PROVIDER", "rules")
	t.Setenv("EMBEDDING_PROVIDER", "local")
	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("COZE_LOOP_API_TOKEN", "")
	return dataDir
}

func resetFlags() {
	configPath = ""
	verbose = false
	ingestWorkers = 0
	ingestProgress = false
	watchExisting = false
	watchWorkers = 0
	compareJSON = false
	riskJSON = false
	findingsJSON = false
	reviewDecision = ""
	reviewComment = ""
	reviewUser = ""
	exportOutput = ""
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// documentIDs maps filenames to document ids in the data directory
func documentIDs(t *testing.T, dataDir string) map[string]string {
	t.Helper()
	store, err := sqlite.Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	docs, err := store.List(context.Background())
	require.NoError(t, err)
	ids := make(map[string]string, len(docs))
	for _, d := range docs {
		ids[d.Filename] = d.ID
	}
	return ids
}

func decodeFindings(t *testing.T, out string) []llm.Finding {
	t.Helper()
	var findings []llm.Finding
	require.NoError(t, json.Unmarshal([]byte(out), &findings))
	return findings
}

func TestIngest_ReviewWorkflow(t *testing.T) {
	dataDir := setupEnv(t)
	inbox := t.TempDir()
	writeFile(t, inbox, "msa.txt", contractText)
	writeFile(t, inbox, "inv.txt", invoiceText)

	out, err := run(t, "ingest", filepath.Join(inbox, "*.txt"), "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "REVIEW_NEEDED")
	assert.Contains(t, out, "Total: 2 documents")

	ids := documentIDs(t, dataDir)
	require.Len(t, ids, 2)
	invoiceID := ids["inv.txt"]

	out, err = run(t, "extraction", invoiceID)
	require.NoError(t, err)
	var extraction llm.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(out), &extraction))
	assert.Equal(t, llm.DocTypeInvoice, extraction.DocType)

	out, err = run(t, "compare", invoiceID, "--json")
	require.NoError(t, err)
	findings := decodeFindings(t, out)
	require.Len(t, findings, 2)
	assert.Equal(t, llm.FindingTermMismatch, findings[0].Type)
	assert.Equal(t, ids["msa.txt"], findings[0].RelatedDocumentID)

	out, err = run(t, "findings", invoiceID, "--json")
	require.NoError(t, err)
	assert.Len(t, decodeFindings(t, out), 2)

	out, err = run(t, "review", "1", "--decision", "approve", "--comment", "checked", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Finding 1 marked reviewed by alice")

	out, err = run(t, "findings", invoiceID, "--json")
	require.NoError(t, err)
	assert.Equal(t, llm.StatusReviewed, decodeFindings(t, out)[0].Status)

	xlsx := filepath.Join(t.TempDir(), "findings.xlsx")
	out, err = run(t, "export", invoiceID, "-o", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 findings")

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Findings")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	out, err = run(t, "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "msa.txt")
	assert.Contains(t, out, "inv.txt")
}

func TestIngest_Directory(t *testing.T) {
	dataDir := setupEnv(t)
	inbox := t.TempDir()
	writeFile(t, inbox, "msa.txt", contractText)
	writeFile(t, inbox, "logo.png", "not text")
	require.NoError(t, os.MkdirAll(filepath.Join(inbox, "2024"), 0755))
	writeFile(t, filepath.Join(inbox, "2024"), "inv.txt", invoiceText)

	_, err := run(t, "ingest", inbox)
	require.NoError(t, err)
	assert.Len(t, documentIDs(t, dataDir), 2)
}

func TestIngest_NoMatches(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "ingest", filepath.Join(t.TempDir(), "*.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files match")
}

func TestIngest_OnlyUnsupported(t *testing.T) {
	setupEnv(t)
	inbox := t.TempDir()
	png := writeFile(t, inbox, "scan.png", "binary")

	_, err := run(t, "ingest", png)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported files")
}

func TestRisk_AfterSeeding(t *testing.T) {
	dataDir := setupEnv(t)
	inbox := t.TempDir()

	out, err := run(t, "seed-clauses")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 5 standard clauses")

	_, err = run(t, "ingest", writeFile(t, inbox, "msa.txt", contractText))
	require.NoError(t, err)

	out, err = run(t, "risk", documentIDs(t, dataDir)["msa.txt"], "--json")
	require.NoError(t, err)
	findings := decodeFindings(t, out)
	require.Len(t, findings, 1)
	assert.Equal(t, llm.FindingType("Liability Cap"), findings[0].Type)
}

func TestExtraction_UnknownDocument(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "extraction", "missing")
	assert.ErrorIs(t, err, llm.ErrNotFound)
}

func TestReview_InvalidInput(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "review", "1", "--decision", "maybe")
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)

	_, err = run(t, "review", "abc", "--decision", "approve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid finding id")

	_, err = run(t, "review", "99", "--decision", "override")
	assert.ErrorIs(t, err, llm.ErrNotFound)
}

func TestCompare_TableOutput(t *testing.T) {
	dataDir := setupEnv(t)
	inbox := t.TempDir()
	writeFile(t, inbox, "msa.txt", contractText)
	writeFile(t, inbox, "inv.txt", invoiceText)

	_, err := run(t, "ingest", filepath.Join(inbox, "**", "*.txt"))
	require.NoError(t, err)

	out, err := run(t, "compare", documentIDs(t, dataDir)["inv.txt"])
	require.NoError(t, err)
	assert.Contains(t, out, "term_mismatch")
	assert.Contains(t, out, "rate_mismatch")
	assert.Contains(t, out, "Total: 2 findings")
}

func TestNewLogger_Level(t *testing.T) {
	buf := new(bytes.Buffer)
	l := newLogger(buf, "warn", "json", false)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	newLogger(buf, "warn", "text", true).Debug("debug.on")
	assert.Contains(t, buf.String(), "debug.on")
}
