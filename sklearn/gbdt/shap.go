package gbdt

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/core/parallel"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// SHAPValues holds SHAP values in margin (log-odds) space.
type SHAPValues struct {
	Values       *mat.Dense // samples x features
	BaseValue    float64    // expected margin over the training distribution
	FeatureNames []string
}

// TreeSHAP computes exact path-dependent SHAP values (Lundberg et al. 2018)
// using node covers as the background distribution. For every row the
// attributions plus BaseValue equal the model margin.
type TreeSHAP struct {
	model *Model
}

// NewTreeSHAP creates a new TreeSHAP calculator.
func NewTreeSHAP(model *Model) *TreeSHAP {
	return &TreeSHAP{model: model}
}

// ExpectedValue returns the cover-weighted mean margin of the ensemble.
func (ts *TreeSHAP) ExpectedValue() float64 {
	base := ts.model.InitScore
	for t := range ts.model.Trees {
		tree := &ts.model.Trees[t]
		if len(tree.Nodes) > 0 {
			base += expectedLeafValue(tree, 0)
		}
	}
	return base
}

func expectedLeafValue(tree *Tree, id int) float64 {
	node := &tree.Nodes[id]
	if node.IsLeaf() {
		return node.LeafValue
	}
	left, right := &tree.Nodes[node.LeftChild], &tree.Nodes[node.RightChild]
	if node.Cover == 0 {
		return 0
	}
	return (left.Cover*expectedLeafValue(tree, node.LeftChild) +
		right.Cover*expectedLeafValue(tree, node.RightChild)) / node.Cover
}

// Explain returns the SHAP value of every feature for one sample.
func (ts *TreeSHAP) Explain(sample []float64) ([]float64, error) {
	if len(sample) != ts.model.NumFeatures {
		return nil, scigoErrors.NewDimensionError("TreeSHAP.Explain", ts.model.NumFeatures, len(sample), 1)
	}
	phi := make([]float64, len(sample))
	for t := range ts.model.Trees {
		tree := &ts.model.Trees[t]
		if len(tree.Nodes) == 0 || tree.Nodes[0].IsLeaf() {
			continue
		}
		treeShap(tree, sample, phi, 0, 0, nil, 1, 1, -1)
	}
	return phi, nil
}

// CalculateSHAP calculates SHAP values for every row of X.
func (ts *TreeSHAP) CalculateSHAP(X mat.Matrix) (*SHAPValues, error) {
	rows, cols := X.Dims()
	if cols != ts.model.NumFeatures {
		return nil, scigoErrors.NewDimensionError("TreeSHAP.CalculateSHAP", ts.model.NumFeatures, cols, 1)
	}
	out := &SHAPValues{BaseValue: ts.ExpectedValue(), FeatureNames: ts.model.FeatureNames}
	if rows == 0 {
		return out, nil
	}
	values := mat.NewDense(rows, cols, nil)
	parallel.ParallelizeWithThreshold(rows, 64, ts.model.Params.NumThreads, func(start, end int) {
		sample := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(sample, i, X)
			phi, _ := ts.Explain(sample)
			values.SetRow(i, phi)
		}
	})
	out.Values = values
	return out, nil
}

type pathElement struct {
	featureIndex int
	zeroFraction float64
	oneFraction  float64
	pweight      float64
}

func treeShap(tree *Tree, x, phi []float64, nodeIndex, uniqueDepth int,
	parentPath []pathElement, parentZero, parentOne float64, parentFeature int) {

	path := make([]pathElement, uniqueDepth+1)
	copy(path, parentPath)
	extendPath(path, uniqueDepth, parentZero, parentOne, parentFeature)

	node := &tree.Nodes[nodeIndex]
	if node.IsLeaf() {
		for i := 1; i <= uniqueDepth; i++ {
			w := unwoundPathSum(path, uniqueDepth, i)
			el := path[i]
			phi[el.featureIndex] += w * (el.oneFraction - el.zeroFraction) * node.LeafValue
		}
		return
	}

	hot, cold := node.RightChild, node.LeftChild
	v := x[node.SplitFeature]
	if v != v {
		if node.DefaultLeft {
			hot, cold = cold, hot
		}
	} else if v <= node.Threshold {
		hot, cold = cold, hot
	}
	hotZero := tree.Nodes[hot].Cover / node.Cover
	coldZero := tree.Nodes[cold].Cover / node.Cover
	incomingZero, incomingOne := 1.0, 1.0

	// undo a previous split on the same feature
	pathIndex := 0
	for ; pathIndex <= uniqueDepth; pathIndex++ {
		if path[pathIndex].featureIndex == node.SplitFeature {
			break
		}
	}
	if pathIndex != uniqueDepth+1 {
		incomingZero = path[pathIndex].zeroFraction
		incomingOne = path[pathIndex].oneFraction
		unwindPath(path, uniqueDepth, pathIndex)
		uniqueDepth--
		path = path[:uniqueDepth+1]
	}

	treeShap(tree, x, phi, hot, uniqueDepth+1, path, hotZero*incomingZero, incomingOne, node.SplitFeature)
	treeShap(tree, x, phi, cold, uniqueDepth+1, path, coldZero*incomingZero, 0, node.SplitFeature)
}

func extendPath(path []pathElement, uniqueDepth int, zeroFraction, oneFraction float64, featureIndex int) {
	w := 0.0
	if uniqueDepth == 0 {
		w = 1
	}
	path[uniqueDepth] = pathElement{featureIndex, zeroFraction, oneFraction, w}
	d := float64(uniqueDepth + 1)
	for i := uniqueDepth - 1; i >= 0; i-- {
		path[i+1].pweight += oneFraction * path[i].pweight * float64(i+1) / d
		path[i].pweight = zeroFraction * path[i].pweight * float64(uniqueDepth-i) / d
	}
}

func unwindPath(path []pathElement, uniqueDepth, pathIndex int) {
	oneFraction := path[pathIndex].oneFraction
	zeroFraction := path[pathIndex].zeroFraction
	nextOne := path[uniqueDepth].pweight
	d := float64(uniqueDepth + 1)

	for i := uniqueDepth - 1; i >= 0; i-- {
		if oneFraction != 0 {
			tmp := path[i].pweight
			path[i].pweight = nextOne * d / (float64(i+1) * oneFraction)
			nextOne = tmp - path[i].pweight*zeroFraction*float64(uniqueDepth-i)/d
		} else {
			path[i].pweight = path[i].pweight * d / (zeroFraction * float64(uniqueDepth-i))
		}
	}
	for i := pathIndex; i < uniqueDepth; i++ {
		path[i].featureIndex = path[i+1].featureIndex
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

func unwoundPathSum(path []pathElement, uniqueDepth, pathIndex int) float64 {
	oneFraction := path[pathIndex].oneFraction
	zeroFraction := path[pathIndex].zeroFraction
	nextOne := path[uniqueDepth].pweight
	d := float64(uniqueDepth + 1)
	total := 0.0

	for i := uniqueDepth - 1; i >= 0; i-- {
		if oneFraction != 0 {
			tmp := nextOne * d / (float64(i+1) * oneFraction)
			total += tmp
			nextOne = path[i].pweight - tmp*zeroFraction*float64(uniqueDepth-i)/d
		} else if zeroFraction != 0 {
			total += path[i].pweight / zeroFraction / (float64(uniqueDepth-i) / d)
		}
	}
	return total
}
