package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Autoencoder scores how poorly a feature vector reconstructs through a
// trained encode/decode pass. Normal vectors reconstruct with low error.
type Autoencoder struct {
	encoderW    *mat.Dense
	encoderBias *mat.VecDense
	decoderW    *mat.Dense
	decoderBias *mat.VecDense
	inputDim    int
	hiddenDim   int
}

// NewAutoencoder builds a scorer from a loaded artifact. The artifact must
// carry encoder and decoder weights.
func NewAutoencoder(a *Artifact) (*Autoencoder, error) {
	if len(a.EncoderW) == 0 {
		return nil, fmt.Errorf("artifact carries no encoder weights")
	}

	enc := mat.NewDense(a.HiddenDim, a.InputDim, nil)
	for i, row := range a.EncoderW {
		enc.SetRow(i, row)
	}
	dec := mat.NewDense(a.InputDim, a.HiddenDim, nil)
	for i, row := range a.DecoderW {
		dec.SetRow(i, row)
	}

	return &Autoencoder{
		encoderW:    enc,
		encoderBias: mat.NewVecDense(a.HiddenDim, append([]float64(nil), a.EncoderBias...)),
		decoderW:    dec,
		decoderBias: mat.NewVecDense(a.InputDim, append([]float64(nil), a.DecoderBias...)),
		inputDim:    a.InputDim,
		hiddenDim:   a.HiddenDim,
	}, nil
}

// Score returns the mean absolute reconstruction error of the vector.
func (m *Autoencoder) Score(ctx context.Context, vector []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(vector) != m.inputDim {
		return 0, fmt.Errorf("vector has %d elements, model expects %d", len(vector), m.inputDim)
	}

	buf := getVector()
	defer putVector(buf)
	input := mat.NewVecDense(m.inputDim, append(buf[:0], vector...))

	// Encode with ReLU, decode linearly.
	var hidden mat.VecDense
	hidden.MulVec(m.encoderW, input)
	hidden.AddVec(&hidden, m.encoderBias)
	for i := 0; i < m.hiddenDim; i++ {
		if hidden.AtVec(i) < 0 {
			hidden.SetVec(i, 0)
		}
	}

	var output mat.VecDense
	output.MulVec(m.decoderW, &hidden)
	output.AddVec(&output, m.decoderBias)

	mae := 0.0
	for i := 0; i < m.inputDim; i++ {
		mae += math.Abs(output.AtVec(i) - input.AtVec(i))
	}
	return mae / float64(m.inputDim), nil
}
