package registry

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/spacesedan/ytsentiment/internal/features"
)

const MLMODEL_FILE = "MLmodel"

// MLModel is the subset of an MLmodel descriptor the service reads.
type MLModel struct {
	ArtifactPath string                    `yaml:"artifact_path"`
	RunID        string                    `yaml:"run_id"`
	Flavors      map[string]map[string]any `yaml:"flavors"`
	Signature    struct {
		Inputs  string `yaml:"inputs"`
		Outputs string `yaml:"outputs"`
	} `yaml:"signature"`
}

func ParseMLModel(r io.Reader) (*MLModel, error) {
	var m MLModel
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("[Registry] failed to decode MLmodel: %w", err)
	}
	return &m, nil
}

// InputSchema returns the declared input schema, or nil when the model was
// logged without a signature.
func (m *MLModel) InputSchema() (*features.Schema, error) {
	return features.ParseSignatureInputs(m.Signature.Inputs)
}

// ModelSchema reads the MLmodel descriptor stored under modelURI.
func ModelSchema(ctx context.Context, store ArtifactStore, modelURI string) (*features.Schema, error) {
	rc, err := store.Open(ctx, JoinURI(modelURI, MLMODEL_FILE))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	m, err := ParseMLModel(rc)
	if err != nil {
		return nil, err
	}
	return m.InputSchema()
}
