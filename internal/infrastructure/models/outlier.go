package models

import (
	"context"
	"fmt"
	"math"
)

// OutlierModel scores a feature vector by its scaled distance from the
// training centroid, mapped into (0,1). Scores near 1 mean the vector sits
// far outside the training distribution.
type OutlierModel struct {
	centroid []float64
	scale    []float64
}

// NewOutlierModel builds a scorer from a loaded artifact. The artifact must
// carry a centroid; a missing scale defaults to unit scaling.
func NewOutlierModel(a *Artifact) (*OutlierModel, error) {
	if len(a.Centroid) == 0 {
		return nil, fmt.Errorf("artifact carries no centroid")
	}
	scale := a.Scale
	if len(scale) == 0 {
		scale = make([]float64, len(a.Centroid))
		for i := range scale {
			scale[i] = 1
		}
	}
	return &OutlierModel{
		centroid: append([]float64(nil), a.Centroid...),
		scale:    append([]float64(nil), scale...),
	}, nil
}

// Score maps the scaled Euclidean distance d to d/(d+1).
func (m *OutlierModel) Score(ctx context.Context, vector []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(vector) != len(m.centroid) {
		return 0, fmt.Errorf("vector has %d elements, model expects %d", len(vector), len(m.centroid))
	}

	sum := 0.0
	for i, v := range vector {
		s := m.scale[i]
		if s == 0 {
			s = 1
		}
		d := (v - m.centroid[i]) / s
		sum += d * d
	}
	dist := math.Sqrt(sum)
	return dist / (dist + 1), nil
}
