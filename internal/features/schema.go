package features

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrFeatureSchemaMismatch = errors.New("feature schema mismatch")

type Column struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// Schema is the input signature a trained model declares. Width is the
// number of feature columns it expects.
type Schema struct {
	Columns []Column
	width   int
}

func NewSchema(columns []Column) *Schema {
	return &Schema{Columns: columns, width: len(columns)}
}

func (s *Schema) Width() int {
	if s == nil {
		return 0
	}
	return s.width
}

// Names returns the declared column names, or nil when any column is unnamed.
func (s *Schema) Names() []string {
	if s == nil || len(s.Columns) == 0 {
		return nil
	}
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return nil
		}
		names[i] = c.Name
	}
	return names
}

type SchemaMismatchError struct {
	Expected int
	Actual   int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: model expects %d columns, vectorizer produces %d",
		ErrFeatureSchemaMismatch, e.Expected, e.Actual)
}

func (e *SchemaMismatchError) Unwrap() error {
	return ErrFeatureSchemaMismatch
}

// CheckWidth compares an encoder width to the schema. A nil schema accepts
// anything.
func CheckWidth(schema *Schema, actual int) error {
	if schema == nil || schema.Width() == 0 {
		return nil
	}
	if schema.Width() != actual {
		return &SchemaMismatchError{Expected: schema.Width(), Actual: actual}
	}
	return nil
}

type signatureInput struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	TensorSpec *struct {
		DType string `json:"dtype"`
		Shape []int  `json:"shape"`
	} `json:"tensor-spec"`
}

// ParseSignatureInputs decodes the JSON string MLflow stores under
// signature.inputs. Column based signatures give one column per entry; a
// single tensor spec gives its last dimension as the width.
func ParseSignatureInputs(raw string) (*Schema, error) {
	if raw == "" {
		return nil, nil
	}

	var inputs []signatureInput
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, fmt.Errorf("[FeatureEncoder] failed to decode signature inputs: %w", err)
	}

	if len(inputs) == 1 && inputs[0].TensorSpec != nil {
		shape := inputs[0].TensorSpec.Shape
		if len(shape) == 0 || shape[len(shape)-1] <= 0 {
			return nil, fmt.Errorf("[FeatureEncoder] tensor signature has no fixed feature dimension: %v", shape)
		}
		return &Schema{width: shape[len(shape)-1]}, nil
	}

	columns := make([]Column, len(inputs))
	for i, in := range inputs {
		columns[i] = Column{Name: in.Name, Type: in.Type}
	}
	return NewSchema(columns), nil
}
