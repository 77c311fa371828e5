package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractlens/llm"
	"contractlens/llm/pipeline"
	"contractlens/llm/reasoning"
	"contractlens/llm/vector"
)

// stubBackend answers Classify and Extract with fixed values
type stubBackend struct {
	reasoning.RuleBased
	docType    llm.DocType
	classErr   error
	data       map[string]interface{}
	extractErr error
	seenText   string
}

func (b *stubBackend) Mode() reasoning.Mode { return reasoning.ModeModel }

func (b *stubBackend) Classify(ctx context.Context, text string) (llm.DocType, error) {
	b.seenText = text
	return b.docType, b.classErr
}

func (b *stubBackend) Extract(ctx context.Context, docType llm.DocType, text string) (map[string]interface{}, error) {
	return b.data, b.extractErr
}

// stubSearcher returns one hit per query unless the query key fails
type stubSearcher struct {
	queries []string
	filters []vector.Filter
	failKey string
}

func (s *stubSearcher) SearchText(ctx context.Context, collection, query string, limit int, filter vector.Filter) ([]vector.Hit, error) {
	s.queries = append(s.queries, query)
	s.filters = append(s.filters, filter)
	if s.failKey != "" && strings.HasPrefix(query, s.failKey+":") {
		return nil, errors.New("index offline")
	}
	return []vector.Hit{{
		ID:      "chunk-1",
		Score:   0.8,
		Payload: map[string]interface{}{"text": "Invoice from Acme", "page_number": 2},
	}}, nil
}

func newPipeline(t *testing.T, b reasoning.Backend, s Searcher) *Pipeline {
	t.Helper()
	p, err := New(b, s, nil)
	require.NoError(t, err)
	return p
}

func validInvoice() map[string]interface{} {
	return map[string]interface{}{
		"vendor_name":    "Acme",
		"invoice_date":   "2024-03-01",
		"invoice_number": "A-7",
		"total_amount":   0.0,
		"payment_terms":  nil,
		"line_items":     []interface{}{},
	}
}

func TestClassify_PrefixAndDegrade(t *testing.T) {
	b := &stubBackend{docType: llm.DocTypeInvoice}
	p := newPipeline(t, b, &stubSearcher{})

	s := &State{DocID: "d1", Text: strings.Repeat("x", 3000)}
	tr, err := p.Classify(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, b.seenText, 2000)
	next, done := tr.Next()
	assert.False(t, done)
	assert.Equal(t, StageExtract, next)

	b.classErr = errors.New("timeout")
	s = &State{DocID: "d1", Text: "invoice"}
	tr, err = p.Classify(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, llm.DocTypeOther, s.DocType)
	_, done = tr.Next()
	assert.True(t, done)
}

func TestClassify_ScopeOfWorkCorrection(t *testing.T) {
	tests := []struct {
		text string
		want llm.DocType
	}{
		{"Scope of Work: migrate servers", llm.DocTypeContract},
		{"Invoice # 42\nScope of Work: migrate servers", llm.DocTypeInvoice},
		{"Plain invoice for services", llm.DocTypeInvoice},
	}
	for _, tt := range tests {
		p := newPipeline(t, &stubBackend{docType: llm.DocTypeInvoice}, &stubSearcher{})
		s := &State{DocID: "d1", Text: tt.text}
		_, err := p.Classify(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.DocType, tt.text)
	}
}

func TestExtract_InvalidOrFailingYieldsEmpty(t *testing.T) {
	ctx := context.Background()

	missing := validInvoice()
	delete(missing, "invoice_number")

	wrongType := validInvoice()
	wrongType["total_amount"] = "a lot"

	for name, b := range map[string]*stubBackend{
		"backend error":  {docType: llm.DocTypeInvoice, extractErr: llm.ErrBackend},
		"missing field":  {docType: llm.DocTypeInvoice, data: missing},
		"wrong type":     {docType: llm.DocTypeInvoice, data: wrongType},
		"bad line items": {docType: llm.DocTypeInvoice, data: withLineItems(validInvoice(), map[string]interface{}{"description": "x"})},
	} {
		p := newPipeline(t, b, &stubSearcher{})
		s := &State{DocID: "d1", DocType: llm.DocTypeInvoice}
		tr, err := p.Extract(ctx, s)
		require.NoError(t, err, name)
		assert.Empty(t, s.Extracted, name)
		next, _ := tr.Next()
		assert.Equal(t, StageLinkEvidence, next, name)
	}
}

func withLineItems(data map[string]interface{}, items ...interface{}) map[string]interface{} {
	data["line_items"] = items
	return data
}

func TestExtract_ValidatesContract(t *testing.T) {
	data := map[string]interface{}{
		"party_a":        "Buyer",
		"party_b":        "Acme",
		"effective_date": "2024-01-01",
		"agreement_type": "MSA",
		"payment_terms":  "Net 30",
		"rate_table": []interface{}{
			map[string]interface{}{"item_description": "Dev", "agreed_rate": 90, "unit": "hour"},
		},
	}
	p := newPipeline(t, &stubBackend{data: data}, &stubSearcher{})
	s := &State{DocID: "d1", DocType: llm.DocTypeContract}
	_, err := p.Extract(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, data, s.Extracted)
}

func TestLinkEvidence_SkipsEmptyAndComposite(t *testing.T) {
	search := &stubSearcher{}
	p := newPipeline(t, &stubBackend{}, search)

	s := &State{DocID: "d9", Extracted: validInvoice()}
	s.Extracted["paid"] = false
	s.Extracted["memo"] = ""
	s.Extracted["meta"] = map[string]interface{}{"a": 1}

	tr, err := p.LinkEvidence(context.Background(), s)
	require.NoError(t, err)
	_, done := tr.Next()
	assert.True(t, done)

	for _, key := range []string{"total_amount", "payment_terms", "line_items", "paid", "memo", "meta"} {
		assert.Contains(t, s.Data, key)
		assert.Nil(t, s.Data[key].Evidence, key)
	}

	ev := s.Data["vendor_name"].Evidence
	require.NotNil(t, ev)
	assert.Equal(t, "chunk-1", ev.ChunkID)
	assert.Equal(t, 2, ev.PageNumber)
	assert.Equal(t, "Invoice from Acme", ev.Text)

	assert.Len(t, search.queries, 3)
	assert.Contains(t, search.queries, "vendor_name: Acme")
	for _, f := range search.filters {
		assert.Equal(t, "d9", f.DocID)
	}
}

func TestLinkEvidence_SearchErrorIsPerField(t *testing.T) {
	p := newPipeline(t, &stubBackend{}, &stubSearcher{failKey: "invoice_number"})

	s := &State{DocID: "d1", Extracted: validInvoice()}
	_, err := p.LinkEvidence(context.Background(), s)
	require.NoError(t, err)

	assert.Nil(t, s.Data["invoice_number"].Evidence)
	assert.Equal(t, "A-7", s.Data["invoice_number"].Value)
	assert.NotNil(t, s.Data["vendor_name"].Evidence)
}

func TestRun_OtherHasEmptyData(t *testing.T) {
	search := &stubSearcher{}
	p := newPipeline(t, reasoning.NewRuleBased(), search)

	var stages []pipeline.StateName
	p.OnStage(func(_ context.Context, e pipeline.StageEvent) { stages = append(stages, e.Stage) })

	res, err := p.Run(context.Background(), "d1", "A weekly newsletter.")
	require.NoError(t, err)
	assert.Equal(t, llm.DocTypeOther, res.DocType)
	assert.Empty(t, res.Data)
	assert.Equal(t, []pipeline.StateName{StageClassify}, stages)
	assert.Empty(t, search.queries)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_type":"other","data":{}}`, string(b))
}

func TestRun_RulesWithRetriever(t *testing.T) {
	ctx := context.Background()

	idx, err := vector.NewMemoryIndex("")
	require.NoError(t, err)
	r := vector.NewRetriever(idx, vector.NewEmbeddingService(vector.NewLocalEmbedder(256), 256), 0, nil)
	require.NoError(t, r.EnsureCollection(ctx, llm.CollectionChunks))

	text := "INVOICE INV-001 from Mock Vendor\nPayment terms: Net 10\nTotal 1000"
	chunks, err := vector.ChunkPages("inv-1", []llm.Page{{PageNumber: 1, Text: text}}, vector.DefaultChunkConfig(), map[string]interface{}{"filename": "inv.txt", "type": "text"})
	require.NoError(t, err)
	require.NoError(t, r.IndexChunks(ctx, llm.CollectionChunks, chunks))

	p := newPipeline(t, reasoning.NewRuleBased(), r)
	res, err := p.Run(ctx, "inv-1", text)
	require.NoError(t, err)

	assert.Equal(t, llm.DocTypeInvoice, res.DocType)
	assert.Equal(t, "Net 10", res.Value("payment_terms"))
	require.NotNil(t, res.Data["vendor_name"].Evidence)
	assert.Equal(t, chunks[0].ID, res.Data["vendor_name"].Evidence.ChunkID)
	assert.Equal(t, 1, res.Data["vendor_name"].Evidence.PageNumber)
	assert.Nil(t, res.Data["line_items"].Evidence)
}
