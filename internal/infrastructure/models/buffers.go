package models

import (
	"sync"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
)

// Scoring runs per event batch; pooling the input buffers keeps the hot path
// allocation-free.
var vectorPool = sync.Pool{
	New: func() interface{} {
		buf := make([]float64, 0, behavior.FeatureVectorDim)
		return &buf
	},
}

func getVector() []float64 {
	return *(vectorPool.Get().(*[]float64))
}

func putVector(buf []float64) {
	buf = buf[:0]
	vectorPool.Put(&buf)
}
