package comparison

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"contractlens/llm"
)

// unwrapValue returns x for a {"value": x} wrapper and v otherwise
func unwrapValue(v interface{}) interface{} {
	switch w := v.(type) {
	case llm.FieldValue:
		return w.Value
	case *llm.FieldValue:
		if w == nil {
			return nil
		}
		return w.Value
	case map[string]interface{}:
		if inner, ok := w["value"]; ok {
			return inner
		}
	}
	return v
}

// fieldValue reads and unwraps one field of an extraction
func fieldValue(r *llm.ExtractionResult, field string) interface{} {
	return unwrapValue(r.Value(field))
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// present reports a non-nil, non-empty value
func present(v interface{}) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// toFloat converts a decoded JSON number or numeric string
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func termMismatch(s *State, invTerms, conTerms interface{}, explanation string) llm.Finding {
	desc := fmt.Sprintf("Invoice terms '%v' do not match Contract '%v'.", invTerms, conTerms)
	if explanation != "" {
		desc = fmt.Sprintf("Invoice terms '%v' conflict with Contract '%v'. %s", invTerms, conTerms, explanation)
	}
	return llm.Finding{
		DocumentID:        s.InvoiceID,
		RelatedDocumentID: s.ContractID,
		Type:              llm.FindingTermMismatch,
		Severity:          llm.SeverityHigh,
		Description:       desc,
		Evidence: map[string]interface{}{
			"invoice_terms":  invTerms,
			"contract_terms": conTerms,
		},
		Status: llm.StatusOpen,
	}
}

// rateLookup maps normalised item descriptions to rate rows in first-seen
// order. A repeated description keeps its position and takes the later row.
type rateLookup struct {
	keys []string
	rows map[string]map[string]interface{}
}

func newRateLookup(rates []interface{}) *rateLookup {
	l := &rateLookup{rows: make(map[string]map[string]interface{})}
	for _, raw := range rates {
		rate, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		desc := llm.Normalize(stringValue(rate["item_description"]))
		if desc == "" || rate["agreed_rate"] == nil {
			continue
		}
		if _, seen := l.rows[desc]; !seen {
			l.keys = append(l.keys, desc)
		}
		l.rows[desc] = rate
	}
	return l
}

// match returns the first rate whose key fuzzy-matches desc
func (l *rateLookup) match(desc string) (map[string]interface{}, bool) {
	for _, k := range l.keys {
		if llm.FuzzyMatch(desc, k) {
			return l.rows[k], true
		}
	}
	return nil, false
}

// checkLineItem returns the finding for one invoice line, if any
func checkLineItem(s *State, item map[string]interface{}, lookup *rateLookup) (llm.Finding, bool) {
	price := item["unit_price"]
	if price == nil {
		return llm.Finding{}, false
	}
	name := item["description"]

	rate, ok := lookup.match(llm.Normalize(stringValue(name)))
	if !ok {
		return llm.Finding{
			DocumentID:        s.InvoiceID,
			RelatedDocumentID: s.ContractID,
			Type:              llm.FindingAnomaly,
			Severity:          llm.SeverityMedium,
			Description:       fmt.Sprintf("Invoice line item '%v' has no matching contract rate.", name),
			Evidence: map[string]interface{}{
				"invoice_item":       name,
				"invoice_unit_price": price,
			},
			Recommendation: "Verify this item is covered under the contract.",
			Status:         llm.StatusOpen,
		}, true
	}

	priceF, ok := toFloat(price)
	if !ok {
		return llm.Finding{}, false
	}
	agreed, ok := toFloat(rate["agreed_rate"])
	if !ok || priceF <= agreed {
		return llm.Finding{}, false
	}

	variance := priceF - agreed
	pct := 0.0
	if agreed > 0 {
		pct = variance / agreed * 100
	}

	return llm.Finding{
		DocumentID:        s.InvoiceID,
		RelatedDocumentID: s.ContractID,
		Type:              llm.FindingRateMismatch,
		Severity:          varianceSeverity(pct),
		Description: fmt.Sprintf("Invoice price $%.2f exceeds contract rate $%.2f for '%v' (+$%.2f, +%.1f%%).",
			priceF, agreed, name, variance, pct),
		Evidence: map[string]interface{}{
			"invoice_item":         name,
			"invoice_unit_price":   priceF,
			"contract_agreed_rate": agreed,
			"variance":             variance,
			"variance_pct":         math.Round(pct*10) / 10,
			"contract_item":        rate["item_description"],
			"contract_unit":        rate["unit"],
		},
		Recommendation: fmt.Sprintf("Negotiate invoice price down to contracted rate of $%.2f.", agreed),
		Status:         llm.StatusOpen,
	}, true
}

// varianceSeverity grades an overcharge percentage. Both bounds are
// exclusive.
func varianceSeverity(pct float64) llm.Severity {
	switch {
	case pct > 20:
		return llm.SeverityCritical
	case pct > 10:
		return llm.SeverityHigh
	default:
		return llm.SeverityMedium
	}
}
