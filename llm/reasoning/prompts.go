package reasoning

const classifyPrompt = `Classify the following document as 'invoice', 'contract', or 'other'. Only return the classification.

Definitions:
- 'invoice': Contains list of items, quantities, prices, total amount, invoice number.
- 'contract': Contains agreement terms, scope of work, signatures, parties (e.g. 'Party A' and 'Party B'), liability caps.

Document:
%s`

const extractPrompt = `Extract the following information from the document.
Return only a JSON object with these fields:
%s

Document:
%s`

const invoiceFields = `{
  "vendor_name": string,
  "invoice_date": string,
  "invoice_number": string,
  "payment_terms": string or null,
  "total_amount": number,
  "currency": string (default "USD"),
  "line_items": [{"description": string, "quantity": number, "unit_price": number, "total_amount": number}]
}`

const contractFields = `{
  "party_a": string,
  "party_b": string,
  "effective_date": string,
  "agreement_type": string,
  "payment_terms": string,
  "liability_cap": string or null,
  "rate_table": [{"item_description": string, "agreed_rate": number, "unit": string (default "each")}]
}`

const judgeTermsPrompt = `Compare the following payment terms. Are they consistent?
If no, explain why briefly.

Invoice Terms: %s
Contract Terms: %s

Return JSON: {"consistent": bool, "explanation": str}`

const identifyClausesPrompt = `Extract the full text of the following clauses from the document: %s.
Return JSON: { "Clause Name": "Extracted Text", ... }
If a clause is missing, omit it.

Document:
%s`

const assessClausePrompt = `You are a strict Legal Risk Auditor.
Compare the Actual Clause against the Standard Clause (Policy).

Clause Type: %s
Actual Clause: %s
Standard Clause (Policy): %s

1. Score risk (1-10). 1=Safe, 10=Critical.
2. Explain risk.
3. Provide a Redline (rewrite Actual to match Standard intent, keeping context).

Return only a JSON object:
{"risk_score": int, "risk_level": "low" | "medium" | "high" | "critical", "explanation": string, "redline_text": string}`
