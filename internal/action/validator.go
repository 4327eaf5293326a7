package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrInvalidGoal = errors.New("invalid goal")

//go:embed schema/goal-full-v1.json
var fullGoalSchemaJSON string

//go:embed schema/goal-minimal-v1.json
var minimalGoalSchemaJSON string

// Validator checks raw goal requests against the embedded JSON schemas
// before they are decoded.
type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	resources := map[Kind]struct{ name, doc string }{
		KindFull:    {"goal-full-v1.json", fullGoalSchemaJSON},
		KindMinimal: {"goal-minimal-v1.json", minimalGoalSchemaJSON},
	}

	v := &Validator{schemas: make(map[Kind]*jsonschema.Schema, len(resources))}
	for kind, res := range resources {
		if err := compiler.AddResource(res.name, strings.NewReader(res.doc)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource: %w", err)
		}
		schema, err := compiler.Compile(res.name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", res.name, err)
		}
		v.schemas[kind] = schema
	}

	return v, nil
}

// Validate reports ErrInvalidGoal for malformed JSON or a schema violation.
func (v *Validator) Validate(kind Kind, data []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("%w: unknown goal kind %q", ErrInvalidGoal, kind)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidGoal, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}

	return nil
}

// DecodeFull validates and decodes a full goal request.
func (v *Validator) DecodeFull(data []byte) (FullGoal, error) {
	var goal FullGoal
	if err := v.Validate(KindFull, data); err != nil {
		return goal, err
	}
	if err := json.Unmarshal(data, &goal); err != nil {
		return goal, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}
	return goal, nil
}

// DecodeMinimal validates and decodes a minimal goal request.
func (v *Validator) DecodeMinimal(data []byte) (MinimalGoal, error) {
	var goal MinimalGoal
	if err := v.Validate(KindMinimal, data); err != nil {
		return goal, err
	}
	if err := json.Unmarshal(data, &goal); err != nil {
		return goal, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}
	return goal, nil
}
