package features

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var ErrVectorizerNotFound = errors.New("vectorizer artifact not found")

// DefaultVectorizerConventions are the accepted artifact names, highest
// priority first.
var DefaultVectorizerConventions = []string{"tfidf_vectorizer.json", "vectorizer.json"}

// Encoder pairs a fitted vectorizer with the input schema of the model it
// feeds. It is immutable after construction.
type Encoder struct {
	vectorizer *Vectorizer
	schema     *Schema
	columns    []string
}

// NewEncoder fails with a *SchemaMismatchError when the vectorizer cannot
// produce the width the model declares.
func NewEncoder(v *Vectorizer, schema *Schema) (*Encoder, error) {
	if err := CheckWidth(schema, v.Width()); err != nil {
		return nil, fmt.Errorf("[FeatureEncoder] %w", err)
	}

	columns := schema.Names()
	if columns == nil {
		columns = v.FeatureNames()
	}
	if schema == nil {
		slog.Warn("[FeatureEncoder] Model declares no input schema, skipping width validation",
			slog.Int("width", v.Width()))
	}

	return &Encoder{vectorizer: v, schema: schema, columns: columns}, nil
}

func (e *Encoder) Width() int {
	return e.vectorizer.Width()
}

// Columns are the names the predictor sees: the declared schema names when
// present, otherwise the vectorizer's terms.
func (e *Encoder) Columns() []string {
	return e.columns
}

// Encode produces one row per text, all of the encoder's fixed width.
func (e *Encoder) Encode(texts []string) (*Matrix, error) {
	m := e.vectorizer.TransformAll(texts)
	if err := CheckWidth(e.schema, m.Cols()); err != nil {
		return nil, fmt.Errorf("[FeatureEncoder] %w", err)
	}
	m.Columns = e.columns
	return m, nil
}

// FindVectorizer picks the vectorizer artifact out of a manifest of artifact
// paths. Conventions are tried in order; a path matches a convention when it
// equals it or ends in "/"+convention.
func FindVectorizer(manifest []string, conventions []string) (string, error) {
	if len(conventions) == 0 {
		conventions = DefaultVectorizerConventions
	}
	for _, name := range conventions {
		for _, path := range manifest {
			if path == name || strings.HasSuffix(path, "/"+name) {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("[FeatureEncoder] %w: none of %v among %d artifacts",
		ErrVectorizerNotFound, conventions, len(manifest))
}
