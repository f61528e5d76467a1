package gbdt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// HistogramBin accumulates gradient statistics of the rows falling in one bin.
type HistogramBin struct {
	SumGrad float64
	SumHess float64
	Count   int
}

// BinMapper discretizes each feature into at most MaxBin ordered bins.
// Bin b of feature f holds the values v with UpperBounds[f][b-1] < v <= UpperBounds[f][b].
// The last bound of every feature is +Inf.
type BinMapper struct {
	MaxBin      int
	UpperBounds [][]float64
}

// NewBinMapper computes per-feature bin boundaries from the training matrix.
// Features with at most maxBin distinct values get one bin per value; others
// are cut at evenly spaced ranks of the sorted column.
func NewBinMapper(X mat.Matrix, maxBin int) *BinMapper {
	rows, cols := X.Dims()
	bm := &BinMapper{MaxBin: maxBin, UpperBounds: make([][]float64, cols)}
	col := make([]float64, 0, rows)
	for j := 0; j < cols; j++ {
		col = col[:0]
		for i := 0; i < rows; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		bm.UpperBounds[j] = featureBounds(col, maxBin)
	}
	return bm
}

func featureBounds(values []float64, maxBin int) []float64 {
	if len(values) == 0 {
		return []float64{math.Inf(1)}
	}
	sort.Float64s(values)

	distinct := make([]float64, 0, maxBin)
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			distinct = append(distinct, v)
		}
	}

	var bounds []float64
	if len(distinct) <= maxBin {
		bounds = make([]float64, 0, len(distinct))
		for i := 0; i+1 < len(distinct); i++ {
			bounds = append(bounds, midpoint(distinct[i], distinct[i+1]))
		}
	} else {
		n := len(values)
		bounds = make([]float64, 0, maxBin)
		for b := 1; b < maxBin; b++ {
			pos := b * n / maxBin
			if pos <= 0 || pos >= n {
				continue
			}
			// Cut between the value at pos-1 and the next larger value.
			lo := values[pos-1]
			k := sort.SearchFloat64s(values, math.Nextafter(lo, math.Inf(1)))
			if k >= n {
				continue
			}
			bound := midpoint(lo, values[k])
			if len(bounds) == 0 || bound > bounds[len(bounds)-1] {
				bounds = append(bounds, bound)
			}
		}
	}
	return append(bounds, math.Inf(1))
}

func midpoint(a, b float64) float64 {
	m := a + (b-a)/2
	if m >= b {
		return a
	}
	return m
}

// NumBins returns the number of bins of feature f.
func (bm *BinMapper) NumBins(f int) int {
	return len(bm.UpperBounds[f])
}

// Bin maps a raw value to its bin. Missing values go to bin 0.
func (bm *BinMapper) Bin(f int, v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return sort.SearchFloat64s(bm.UpperBounds[f], v)
}

// Threshold returns the split threshold that sends bins 0..b to the left.
func (bm *BinMapper) Threshold(f, b int) float64 {
	return bm.UpperBounds[f][b]
}

// binnedMatrix is the feature-major bin index table of a training matrix.
type binnedMatrix struct {
	rows, cols int
	data       [][]uint16
}

func (bm *BinMapper) transform(X mat.Matrix) *binnedMatrix {
	rows, cols := X.Dims()
	out := &binnedMatrix{rows: rows, cols: cols, data: make([][]uint16, cols)}
	for j := 0; j < cols; j++ {
		out.data[j] = make([]uint16, rows)
		for i := 0; i < rows; i++ {
			out.data[j][i] = uint16(bm.Bin(j, X.At(i, j)))
		}
	}
	return out
}

// buildHistogram accumulates gradient and hessian sums per bin for the given rows.
func buildHistogram(bins []uint16, nBins int, rows []int, grad, hess []float64) []HistogramBin {
	hist := make([]HistogramBin, nBins)
	for _, i := range rows {
		b := &hist[bins[i]]
		b.SumGrad += grad[i]
		b.SumHess += hess[i]
		b.Count++
	}
	return hist
}
