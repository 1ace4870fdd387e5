// Package models loads trained scoring artifacts and serves the two model
// detectors: an autoencoder reconstruction scorer and a distance-based
// outlier scorer. Artifacts are read-only after load.
package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
)

// Artifact is the serialized form of a trained model bundle. Weight matrices
// are row-major, one row per output unit.
type Artifact struct {
	Version     string      `json:"version"`
	InputDim    int         `json:"input_dim"`
	HiddenDim   int         `json:"hidden_dim"`
	EncoderW    [][]float64 `json:"encoder_weights"`
	EncoderBias []float64   `json:"encoder_bias"`
	DecoderW    [][]float64 `json:"decoder_weights"`
	DecoderBias []float64   `json:"decoder_bias"`
	Centroid    []float64   `json:"centroid"`
	Scale       []float64   `json:"scale"`
}

// LoadArtifact reads and validates a model bundle from dir. The artifact's
// input dimension must match the engine's feature vector contract.
func LoadArtifact(dir, name string) (*Artifact, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if a.InputDim != behavior.FeatureVectorDim {
		return fmt.Errorf("input dim %d does not match feature vector dim %d", a.InputDim, behavior.FeatureVectorDim)
	}
	if a.HiddenDim <= 0 && len(a.EncoderW) > 0 {
		return fmt.Errorf("hidden dim must be positive")
	}
	if len(a.EncoderW) > 0 {
		if len(a.EncoderW) != a.HiddenDim || len(a.EncoderBias) != a.HiddenDim {
			return fmt.Errorf("encoder shape mismatch")
		}
		for i, row := range a.EncoderW {
			if len(row) != a.InputDim {
				return fmt.Errorf("encoder row %d has %d columns, want %d", i, len(row), a.InputDim)
			}
		}
		if len(a.DecoderW) != a.InputDim || len(a.DecoderBias) != a.InputDim {
			return fmt.Errorf("decoder shape mismatch")
		}
		for i, row := range a.DecoderW {
			if len(row) != a.HiddenDim {
				return fmt.Errorf("decoder row %d has %d columns, want %d", i, len(row), a.HiddenDim)
			}
		}
	}
	if len(a.Centroid) > 0 {
		if len(a.Centroid) != a.InputDim {
			return fmt.Errorf("centroid has %d elements, want %d", len(a.Centroid), a.InputDim)
		}
		if len(a.Scale) != 0 && len(a.Scale) != a.InputDim {
			return fmt.Errorf("scale has %d elements, want %d", len(a.Scale), a.InputDim)
		}
	}
	return nil
}
