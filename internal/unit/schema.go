package unit

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed unit.schema.json
var schemaJSON string

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
})

// SchemaError lists the JSON Schema violations of a unit document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid unit document: " + strings.Join(e.Problems, "; ")
}

// Decode validates a raw JSON unit document and unmarshals it.
func Decode(raw []byte) (Unit, error) {
	if err := validate(gojsonschema.NewBytesLoader(raw)); err != nil {
		return Unit{}, err
	}
	var u Unit
	if err := json.Unmarshal(raw, &u); err != nil {
		return Unit{}, fmt.Errorf("decode unit: %w", err)
	}
	if err := u.Validate(); err != nil {
		return Unit{}, err
	}
	return u, nil
}

// ValidateSchema checks an already decoded unit against the document schema
// and its own invariants.
func ValidateSchema(u Unit) error {
	if err := validate(gojsonschema.NewGoLoader(u)); err != nil {
		return err
	}
	return u.Validate()
}

func validate(doc gojsonschema.JSONLoader) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile unit schema: %w", err)
	}
	result, err := schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("validate unit: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &SchemaError{Problems: problems}
}
