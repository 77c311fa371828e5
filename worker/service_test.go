package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractlens/llm"
	"contractlens/llm/reasoning"
	"contractlens/llm/vector"
	"contractlens/pubsub"
	"contractlens/storage"
	"contractlens/storage/blob"
	"contractlens/storage/sqlite"
)

const (
	contractText = "MASTER SERVICES AGREEMENT\n\nThe total liability of either party is unlimited.\nPayment is due Net 30."
	invoiceText  = "INVOICE #1042\n\nConsulting Services 10 x 100.00\nPayment terms: Net 10"
	memoText     = "Team lunch is on Friday."
)

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []pubsub.Event[TaskEvent]
}

func (r *recorder) Publish(t pubsub.EventType, ev TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pubsub.Event[TaskEvent]{Type: t, Payload: ev})
}

func (r *recorder) ofType(t pubsub.EventType) []TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TaskEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e.Payload)
		}
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *sqlite.Store
	events *recorder
	dir    string
}

func setupService(t *testing.T, backend reasoning.Backend) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	idx, err := vector.NewMemoryIndex("")
	require.NoError(t, err)
	retriever := vector.NewRetriever(idx, vector.NewEmbeddingService(vector.NewLocalEmbedder(256), 256), 0, nil)

	events := &recorder{}
	svc, err := NewService(Deps{
		Documents: store,
		Findings:  store.Findings(),
		Blobs:     blobs,
		Retriever: retriever,
		Backend:   backend,
		Events:    events,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, events: events, dir: dir}
}

func (f *fixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Deps{})
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)
}

func TestProcessDocument_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())

	for _, tt := range []struct {
		name    string
		content string
		docType llm.DocType
		status  storage.Status
	}{
		{"msa.txt", contractText, llm.DocTypeContract, storage.StatusReviewNeeded},
		{"inv.txt", invoiceText, llm.DocTypeInvoice, storage.StatusReviewNeeded},
		{"memo.md", memoText, llm.DocTypeOther, storage.StatusCompleted},
	} {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := f.svc.Ingest(ctx, f.writeFile(t, tt.name, tt.content))
			require.NoError(t, err)
			assert.Equal(t, storage.StatusPending, doc.Status)

			processed, err := f.svc.ProcessDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, processed.Status)

			stored, err := f.store.Get(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
			require.NotNil(t, stored.Extraction)
			assert.Equal(t, tt.docType, stored.Extraction.DocType)
		})
	}

	count, err := f.svc.retriever.Index().Count(ctx, llm.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestProcessDocument_EvidenceFromIndexedChunks(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())

	doc, err := f.svc.IngestAndProcess(ctx, f.writeFile(t, "inv.txt", invoiceText))
	require.NoError(t, err)

	vendor := doc.Extraction.Data["vendor_name"]
	assert.Equal(t, "Mock Vendor", vendor.Value)
	require.NotNil(t, vendor.Evidence)
	assert.Equal(t, invoiceText, vendor.Evidence.Text)
	assert.Equal(t, 1, vendor.Evidence.PageNumber)
}

func TestProcessDocument_Missing(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	_, err := f.svc.ProcessDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, llm.ErrNotFound)
	assert.Empty(t, f.events.ofType(pubsub.StartedEvent))
}

func TestProcessDocument_FailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())

	doc := &storage.Document{Filename: "gone.txt", BlobKey: "0b8f8d61-missing.txt"}
	require.NoError(t, f.store.Create(ctx, doc))

	_, err := f.svc.ProcessDocument(ctx, doc.ID)
	require.Error(t, err)

	stored, err := f.store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, stored.Status)

	failed := f.events.ofType(pubsub.FailedEvent)
	require.Len(t, failed, 1)
	assert.Equal(t, doc.ID, failed[0].DocID)
	assert.Equal(t, TaskProcess, failed[0].Task)
	assert.NotEmpty(t, failed[0].Err)
}

// cancellingBackend cancels the run while classifying
type cancellingBackend struct {
	reasoning.RuleBased
	cancel context.CancelFunc
}

func (b cancellingBackend) Classify(ctx context.Context, text string) (llm.DocType, error) {
	b.cancel()
	return llm.DocTypeInvoice, nil
}

func TestProcessDocument_CancelledRunStillMarksFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := setupService(t, cancellingBackend{cancel: cancel})
	doc, err := f.svc.Ingest(ctx, f.writeFile(t, "inv.txt", invoiceText))
	require.NoError(t, err)

	_, err = f.svc.ProcessDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, context.Canceled)

	stored, err := f.store.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, stored.Status)
}

func TestProcessDocument_PublishesStages(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	doc, err := f.svc.IngestAndProcess(context.Background(), f.writeFile(t, "inv.txt", invoiceText))
	require.NoError(t, err)

	var stages []string
	for _, ev := range f.events.ofType(pubsub.ProgressEvent) {
		assert.Equal(t, doc.ID, ev.DocID)
		assert.Equal(t, "inv.txt", ev.Filename)
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []string{
		"parse",
		"index",
		"extraction.classify",
		"extraction.extract",
		"extraction.link_evidence",
	}, stages)

	finished := f.events.ofType(pubsub.FinishedEvent)
	require.Len(t, finished, 1)
	assert.Equal(t, storage.StatusReviewNeeded, finished[0].Status)
}

func TestIngest_Unsupported(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	_, err := f.svc.Ingest(context.Background(), f.writeFile(t, "photo.png", "png"))
	assert.ErrorIs(t, err, llm.ErrUnsupportedFile)
}

func TestCompareInvoice_AppendsFindings(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())

	contract, err := f.svc.IngestAndProcess(ctx, f.writeFile(t, "msa.txt", contractText))
	require.NoError(t, err)
	invoice, err := f.svc.IngestAndProcess(ctx, f.writeFile(t, "inv.txt", invoiceText))
	require.NoError(t, err)

	findings, err := f.svc.CompareInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, llm.FindingTermMismatch, findings[0].Type)
	assert.Equal(t, contract.ID, findings[0].RelatedDocumentID)
	assert.Equal(t, llm.FindingRateMismatch, findings[1].Type)
	assert.Equal(t, llm.SeverityHigh, findings[1].Severity)
	for _, fd := range findings {
		assert.NotZero(t, fd.ID)
		assert.Equal(t, llm.StatusOpen, fd.Status)
	}

	stored, err := f.svc.Findings(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	finished := f.events.ofType(pubsub.FinishedEvent)
	last := finished[len(finished)-1]
	assert.Equal(t, TaskCompare, last.Task)
	assert.Equal(t, 2, last.Findings)
}

func TestCompareInvoice_NotExtracted(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())
	doc, err := f.svc.Ingest(ctx, f.writeFile(t, "inv.txt", invoiceText))
	require.NoError(t, err)

	for _, id := range []string{doc.ID, "unknown"} {
		_, err := f.svc.CompareInvoice(ctx, id)
		var appErr *llm.AppError
		require.True(t, errors.As(err, &appErr), id)
		assert.Equal(t, "Invoice not found or not extracted", appErr.Message)
	}
}

func TestAssessRisk_PersistsClauseFindings(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())

	n, err := f.svc.SeedClauseLibrary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	contract, err := f.svc.IngestAndProcess(ctx, f.writeFile(t, "msa.txt", contractText))
	require.NoError(t, err)

	findings, err := f.svc.AssessRisk(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, llm.FindingType("Liability Cap"), findings[0].Type)
	assert.Equal(t, llm.SeverityHigh, findings[0].Severity)
	assert.Equal(t, contract.ID, findings[0].DocumentID)
	assert.NotZero(t, findings[0].ID)
}

func TestAssessRisk_UnknownDocument(t *testing.T) {
	f := setupService(t, reasoning.NewRuleBased())
	_, err := f.svc.AssessRisk(context.Background(), "nope")
	assert.ErrorIs(t, err, llm.ErrNotExtracted)

	failed := f.events.ofType(pubsub.FailedEvent)
	require.Len(t, failed, 1)
	assert.Equal(t, TaskRisk, failed[0].Task)
}

func TestAssessRisk_NotExtracted(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, reasoning.NewRuleBased())
	_, err := f.svc.SeedClauseLibrary(ctx)
	require.NoError(t, err)

	doc, err := f.svc.Ingest(ctx, f.writeFile(t, "msa.txt", contractText))
	require.NoError(t, err)

	_, err = f.svc.AssessRisk(ctx, doc.ID)
	require.ErrorIs(t, err, llm.ErrNotExtracted)
	var appErr *llm.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Document not found or not extracted", appErr.Message)

	findings, err := f.store.Findings().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestService_PublishesToBroker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := pubsub.NewBroker[TaskEvent]()
	defer broker.Shutdown()
	sub := broker.Subscribe(ctx)

	f := setupService(t, reasoning.NewRuleBased())
	f.svc.events = broker

	_, err := f.svc.SeedClauseLibrary(ctx)
	require.NoError(t, err)

	var got []pubsub.EventType
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-sub:
			assert.Equal(t, TaskSeed, ev.Payload.Task)
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []pubsub.EventType{pubsub.StartedEvent, pubsub.FinishedEvent}, got)
}
