package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"contractlens/llm"
)

// DefaultRatePerSecond bounds calls to the chat model
const DefaultRatePerSecond = 2.0

// ModelBacked sends one user message per operation to a chat model
type ModelBacked struct {
	model   model.BaseChatModel
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Backend = (*ModelBacked)(nil)

// NewModelBacked wraps a chat model. ratePerSecond <= 0 uses the default.
func NewModelBacked(m model.BaseChatModel, ratePerSecond float64, logger *slog.Logger) *ModelBacked {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelBacked{
		model:   m,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		logger:  logger,
	}
}

func (b *ModelBacked) Mode() Mode { return ModeModel }

// generate waits for the limiter and returns the reply text
func (b *ModelBacked) generate(ctx context.Context, op, prompt string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %s: %v", llm.ErrBackend, op, err)
	}

	start := time.Now()
	msg, err := b.model.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", llm.ErrBackend, op, err)
	}
	if msg == nil {
		return "", llm.Malformed(op, fmt.Errorf("empty reply"))
	}

	b.logger.Debug("reasoning.generate", "op", op, "elapsed_ms", time.Since(start).Milliseconds())
	return msg.Content, nil
}

// Classify asks the model for a label and scans the reply for it
func (b *ModelBacked) Classify(ctx context.Context, text string) (llm.DocType, error) {
	reply, err := b.generate(ctx, "classify", fmt.Sprintf(classifyPrompt, text))
	if err != nil {
		return llm.DocTypeOther, err
	}

	label := llm.Normalize(reply)
	switch {
	case strings.Contains(label, "invoice"):
		return llm.DocTypeInvoice, nil
	case strings.Contains(label, "contract"):
		return llm.DocTypeContract, nil
	default:
		return llm.DocTypeOther, nil
	}
}

// Extract asks for a JSON object and fills in schema defaults
func (b *ModelBacked) Extract(ctx context.Context, docType llm.DocType, text string) (map[string]interface{}, error) {
	var fields string
	switch docType {
	case llm.DocTypeInvoice:
		fields = invoiceFields
	case llm.DocTypeContract:
		fields = contractFields
	default:
		return map[string]interface{}{}, nil
	}

	reply, err := b.generate(ctx, "extract", fmt.Sprintf(extractPrompt, fields, text))
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := decodeJSON(reply, &data); err != nil {
		return nil, llm.Malformed("extract", err)
	}
	if data == nil {
		return nil, llm.Malformed("extract", fmt.Errorf("reply is not an object"))
	}

	applyDefaults(docType, data)
	return data, nil
}

// applyDefaults sets the default values the field schemas declare
func applyDefaults(docType llm.DocType, data map[string]interface{}) {
	setDefault := func(m map[string]interface{}, key string, v interface{}) {
		if cur, ok := m[key]; !ok || cur == nil {
			m[key] = v
		}
	}

	switch docType {
	case llm.DocTypeInvoice:
		setDefault(data, "currency", "USD")
		setDefault(data, "line_items", []interface{}{})
	case llm.DocTypeContract:
		setDefault(data, "rate_table", []interface{}{})
		if rates, ok := data["rate_table"].([]interface{}); ok {
			for _, r := range rates {
				if rm, ok := r.(map[string]interface{}); ok {
					setDefault(rm, "unit", "each")
				}
			}
		}
	}
}

// JudgeTerms asks whether two payment terms are consistent
func (b *ModelBacked) JudgeTerms(ctx context.Context, invoiceTerms, contractTerms string) (TermJudgment, error) {
	reply, err := b.generate(ctx, "judge_terms", fmt.Sprintf(judgeTermsPrompt, invoiceTerms, contractTerms))
	if err != nil {
		return TermJudgment{}, err
	}

	var raw struct {
		Consistent  *bool  `json:"consistent"`
		Explanation string `json:"explanation"`
	}
	if err := decodeJSON(reply, &raw); err != nil {
		return TermJudgment{}, llm.Malformed("judge_terms", err)
	}
	if raw.Consistent == nil {
		return TermJudgment{}, llm.Malformed("judge_terms", fmt.Errorf("missing consistent"))
	}
	return TermJudgment{Consistent: *raw.Consistent, Explanation: raw.Explanation}, nil
}

// IdentifyClauses asks for a clause-type to text mapping
func (b *ModelBacked) IdentifyClauses(ctx context.Context, text string, targets []string) ([]Clause, error) {
	reply, err := b.generate(ctx, "identify_clauses", fmt.Sprintf(identifyClausesPrompt, strings.Join(targets, ", "), text))
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := decodeJSON(reply, &raw); err != nil {
		return nil, llm.Malformed("identify_clauses", err)
	}

	found := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		found[k] = s
	}
	return orderClauses(found, targets), nil
}

// AssessClause asks for a risk score, level, explanation and redline
func (b *ModelBacked) AssessClause(ctx context.Context, clauseType, actual, standard string) (*llm.RiskFinding, error) {
	reply, err := b.generate(ctx, "assess_clause", fmt.Sprintf(assessClausePrompt, clauseType, actual, standard))
	if err != nil {
		return nil, err
	}

	var raw struct {
		RiskScore   *float64 `json:"risk_score"`
		RiskLevel   string   `json:"risk_level"`
		Explanation string   `json:"explanation"`
		RedlineText string   `json:"redline_text"`
	}
	if err := decodeJSON(reply, &raw); err != nil {
		return nil, llm.Malformed("assess_clause", err)
	}
	if raw.RiskScore == nil {
		return nil, llm.Malformed("assess_clause", fmt.Errorf("missing risk_score"))
	}
	score := int(*raw.RiskScore)
	if float64(score) != *raw.RiskScore || score < 1 || score > 10 {
		return nil, llm.Malformed("assess_clause", fmt.Errorf("risk_score %v outside 1..10", *raw.RiskScore))
	}
	level, err := llm.ParseSeverity(raw.RiskLevel)
	if err != nil {
		return nil, llm.Malformed("assess_clause", err)
	}

	return &llm.RiskFinding{
		ClauseType:  clauseType,
		RiskScore:   score,
		RiskLevel:   level,
		Explanation: raw.Explanation,
		RedlineText: raw.RedlineText,
	}, nil
}

// decodeJSON strips markdown code fences and decodes the reply
func decodeJSON(reply string, v interface{}) error {
	content := strings.ReplaceAll(reply, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	return json.Unmarshal([]byte(strings.TrimSpace(content)), v)
}

// orderClauses lists found clauses in target order, then any others sorted
// by name
func orderClauses(found map[string]string, targets []string) []Clause {
	clauses := make([]Clause, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, t := range targets {
		if text, ok := found[t]; ok {
			clauses = append(clauses, Clause{Type: t, Text: text})
			seen[t] = true
		}
	}

	var extra []string
	for k := range found {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		clauses = append(clauses, Clause{Type: k, Text: found[k]})
	}
	return clauses
}
