package dashboard

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
)

// Attribution is the contribution of one feature to one prediction, in
// log-odds.
type Attribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Explainer attributes a model's prediction for one sample to its features.
type Explainer interface {
	Explain(model *gbdt.Model, sample []float64) ([]Attribution, error)
}

// TreeSHAPExplainer explains predictions with exact path-dependent TreeSHAP.
// Attributions are returned in feature order; together with the model's
// expected value they sum to the predicted margin.
type TreeSHAPExplainer struct{}

var _ Explainer = TreeSHAPExplainer{}

// Explain implements Explainer.
func (TreeSHAPExplainer) Explain(model *gbdt.Model, sample []float64) ([]Attribution, error) {
	if model == nil {
		return nil, scigoErrors.NewValueError("TreeSHAPExplainer.Explain", "model is nil")
	}
	phi, err := gbdt.NewTreeSHAP(model).Explain(sample)
	if err != nil {
		return nil, err
	}
	out := make([]Attribution, len(phi))
	for j, v := range phi {
		out[j] = Attribution{Feature: featureName(model, j), Value: sample[j], Contribution: v}
	}
	return out, nil
}

// SortByMagnitude orders attributions by descending absolute contribution,
// ties by feature name.
func SortByMagnitude(attrs []Attribution) {
	sort.SliceStable(attrs, func(a, b int) bool {
		ca, cb := math.Abs(attrs[a].Contribution), math.Abs(attrs[b].Contribution)
		if ca != cb {
			return ca > cb
		}
		return attrs[a].Feature < attrs[b].Feature
	})
}

func featureName(model *gbdt.Model, j int) string {
	if j < len(model.FeatureNames) {
		return model.FeatureNames[j]
	}
	return "f" + strconv.Itoa(j)
}

// SampleRows draws min(n, rows) distinct rows of X reproducibly and returns
// them with their source indices in ascending order.
func SampleRows(X mat.Matrix, n int, seed uint64) (*mat.Dense, []int) {
	rows, cols := X.Dims()
	if n <= 0 || rows == 0 {
		return nil, nil
	}
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}
	if n < rows {
		r := rand.New(rand.NewPCG(seed, seed))
		r.Shuffle(rows, func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		idx = idx[:n]
		slices.Sort(idx)
	}

	out := mat.NewDense(len(idx), cols, nil)
	for k, i := range idx {
		for j := 0; j < cols; j++ {
			out.Set(k, j, X.At(i, j))
		}
	}
	return out, idx
}

// GlobalImportance ranks features by mean absolute SHAP value, descending
// with ties broken by name.
func GlobalImportance(values *gbdt.SHAPValues) gbdt.RankedImportance {
	if values == nil || values.Values == nil {
		return nil
	}
	rows, cols := values.Values.Dims()
	ranked := make(gbdt.RankedImportance, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += math.Abs(values.Values.At(i, j))
		}
		name := "f" + strconv.Itoa(j)
		if j < len(values.FeatureNames) {
			name = values.FeatureNames[j]
		}
		ranked[j] = gbdt.FeatureScore{Name: name, Score: sum / float64(rows)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].Name < ranked[b].Name
	})
	return ranked
}
