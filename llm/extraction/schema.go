package extraction

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"contractlens/llm"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schemas validates extracted field sets per document type
type Schemas struct {
	byType map[llm.DocType]*jsonschema.Schema
}

// LoadSchemas compiles the embedded invoice and contract schemas
func LoadSchemas() (*Schemas, error) {
	files := map[llm.DocType]string{
		llm.DocTypeInvoice:  "schemas/invoice.json",
		llm.DocTypeContract: "schemas/contract.json",
	}

	compiler := jsonschema.NewCompiler()
	for _, name := range files {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
	}

	s := &Schemas{byType: make(map[llm.DocType]*jsonschema.Schema, len(files))}
	for docType, name := range files {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		s.byType[docType] = schema
	}
	return s, nil
}

// Validate checks data against the schema for docType. The data is
// round-tripped through JSON so Go-typed values validate like decoded ones.
func (s *Schemas) Validate(docType llm.DocType, data map[string]interface{}) error {
	schema, ok := s.byType[docType]
	if !ok {
		return fmt.Errorf("no schema for document type %q", docType)
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%s does not match schema: %w", docType, err)
	}
	return nil
}
