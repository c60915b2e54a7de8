package textclf

import (
	"encoding/json"
	"fmt"
	"time"
)

const ArtifactSchemaV1 = "modelbay.textclf.artifact.v1"

// Artifact is the serialized form of a trained model plus the preprocessing
// state (vocabulary) and the config that produced it.
type Artifact struct {
	Schema    string         `json:"schema"`
	TrainedAt time.Time      `json:"trained_at"`
	Config    Config         `json:"config"`
	Classes   []string       `json:"classes"`
	Vocab     map[string]int `json:"vocab"`
	Weights   [][]float64    `json:"weights"`
}

func EncodeArtifact(m *Model, cfg Config, trainedAt time.Time) ([]byte, error) {
	if m == nil || len(m.Classes) == 0 {
		return nil, ErrEmptyModel
	}
	return json.Marshal(Artifact{
		Schema:    ArtifactSchemaV1,
		TrainedAt: trainedAt.UTC(),
		Config:    cfg,
		Classes:   m.Classes,
		Vocab:     m.Vocab,
		Weights:   m.Weights,
	})
}

func DecodeArtifact(raw []byte) (*Model, error) {
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if artifact.Schema != ArtifactSchemaV1 {
		return nil, fmt.Errorf("unsupported artifact schema %q", artifact.Schema)
	}
	if len(artifact.Classes) == 0 {
		return nil, fmt.Errorf("artifact has no classes")
	}
	if len(artifact.Weights) != len(artifact.Classes) {
		return nil, fmt.Errorf("artifact weights rows %d != classes %d", len(artifact.Weights), len(artifact.Classes))
	}
	want := len(artifact.Vocab) + 1
	for i, row := range artifact.Weights {
		if len(row) != want {
			return nil, fmt.Errorf("artifact weights row %d has %d columns, want %d", i, len(row), want)
		}
	}
	return &Model{
		Classes: artifact.Classes,
		Vocab:   artifact.Vocab,
		Weights: artifact.Weights,
	}, nil
}
