package gbdt

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/core/parallel"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// formatVersion is bumped whenever the JSON layout changes incompatibly.
const formatVersion = 1

// Node represents a single node in a regression tree.
type Node struct {
	NodeID     int `json:"nodeid"`
	ParentID   int `json:"parent"`
	LeftChild  int `json:"left"`
	RightChild int `json:"right"`
	Depth      int `json:"depth"`

	// Split information (internal nodes)
	SplitFeature int     `json:"split_feature"`
	Threshold    float64 `json:"threshold"`
	DefaultLeft  bool    `json:"default_left"`
	Gain         float64 `json:"gain"`

	// Leaf information; LeafValue already includes the learning rate.
	LeafValue float64 `json:"leaf_value"`

	// Cover is the hessian sum of the training rows reaching the node.
	Cover float64 `json:"cover"`
	Count int     `json:"count"`

	// bin is the histogram bin of the split, valid only during training.
	bin int
}

// IsLeaf returns true if the node has no children.
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is one boosting round. Nodes[0] is the root.
type Tree struct {
	TreeIndex int    `json:"tree_index"`
	NumLeaves int    `json:"num_leaves"`
	Nodes     []Node `json:"nodes"`
}

// leafIndex returns the index of the leaf reached by features.
func (t *Tree) leafIndex(features []float64) int {
	id := 0
	for {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return id
		}
		v := features[node.SplitFeature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				id = node.LeftChild
			} else {
				id = node.RightChild
			}
		case v <= node.Threshold:
			id = node.LeftChild
		default:
			id = node.RightChild
		}
	}
}

// Predict returns the contribution of this tree to the margin.
func (t *Tree) Predict(features []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	return t.Nodes[t.leafIndex(features)].LeafValue
}

// MaxDepth returns the depth of the deepest leaf.
func (t *Tree) MaxDepth() int {
	d := 0
	for i := range t.Nodes {
		if t.Nodes[i].Depth > d {
			d = t.Nodes[i].Depth
		}
	}
	return d
}

// Model is a trained boosted ensemble for binary classification.
type Model struct {
	Version       int            `json:"version"`
	Objective     string         `json:"objective"`
	FeatureNames  []string       `json:"feature_names"`
	NumFeatures   int            `json:"num_features"`
	InitScore     float64        `json:"init_score"`
	Trees         []Tree         `json:"trees"`
	BestIteration int            `json:"best_iteration"`
	BestScore     float64        `json:"best_score"`
	Params        TrainingParams `json:"params"`
}

// NumTrees returns the number of boosting rounds kept in the model.
func (m *Model) NumTrees() int {
	return len(m.Trees)
}

// PredictMarginSingle returns the raw log-odds for one sample.
func (m *Model) PredictMarginSingle(features []float64) float64 {
	margin := m.InitScore
	for i := range m.Trees {
		margin += m.Trees[i].Predict(features)
	}
	return margin
}

// PredictMargin returns the raw log-odds for every row of X.
func (m *Model) PredictMargin(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, scigoErrors.NewDimensionError("Model.PredictMargin", m.NumFeatures, cols, 1)
	}
	out := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, 1000, m.Params.NumThreads, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			out[i] = m.PredictMarginSingle(row)
		}
	})
	return out, nil
}

// PredictProba returns an n x 2 matrix of [P(negative), P(positive)].
func (m *Model) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	margins, err := m.PredictMargin(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(margins), 2, nil)
	for i, z := range margins {
		p := sigmoid(z)
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Importance types accepted by FeatureImportance.
const (
	ImportanceGain      = "gain"
	ImportanceTotalGain = "total_gain"
	ImportanceSplit     = "split"
	ImportanceCover     = "cover"
)

// FeatureImportance returns one score per feature, normalised to sum to 1
// (unless every score is zero). "gain" is the average gain per split, as in
// xgboost.
func (m *Model) FeatureImportance(importanceType string) ([]float64, error) {
	splits := make([]float64, m.NumFeatures)
	gain := make([]float64, m.NumFeatures)
	cover := make([]float64, m.NumFeatures)
	for t := range m.Trees {
		for _, node := range m.Trees[t].Nodes {
			if node.IsLeaf() {
				continue
			}
			splits[node.SplitFeature]++
			gain[node.SplitFeature] += node.Gain
			cover[node.SplitFeature] += node.Cover
		}
	}

	var scores []float64
	switch importanceType {
	case ImportanceSplit:
		scores = splits
	case ImportanceTotalGain:
		scores = gain
	case ImportanceGain, "":
		scores = make([]float64, m.NumFeatures)
		for j := range scores {
			if splits[j] > 0 {
				scores[j] = gain[j] / splits[j]
			}
		}
	case ImportanceCover:
		scores = make([]float64, m.NumFeatures)
		for j := range scores {
			if splits[j] > 0 {
				scores[j] = cover[j] / splits[j]
			}
		}
	default:
		return nil, scigoErrors.NewValidationError("importance_type", "must be one of gain, total_gain, split, cover", importanceType)
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	if total > 0 {
		for j := range scores {
			scores[j] /= total
		}
	}
	return scores, nil
}

// FeatureScore pairs a feature name with its importance.
type FeatureScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// RankedImportance is a list of features ordered by descending importance.
type RankedImportance []FeatureScore

// Top returns at most n leading entries.
func (r RankedImportance) Top(n int) RankedImportance {
	if n < len(r) {
		return r[:n]
	}
	return r
}

// RankFeatures orders features by descending importance, ties by name.
func (m *Model) RankFeatures(importanceType string) (RankedImportance, error) {
	scores, err := m.FeatureImportance(importanceType)
	if err != nil {
		return nil, err
	}
	ranked := make(RankedImportance, len(scores))
	for j, s := range scores {
		ranked[j] = FeatureScore{Name: m.featureName(j), Score: s}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].Name < ranked[b].Name
	})
	return ranked, nil
}

func (m *Model) featureName(j int) string {
	if j < len(m.FeatureNames) {
		return m.FeatureNames[j]
	}
	return "f" + strconv.Itoa(j)
}

// WriteJSON encodes the model to w.
func (m *Model) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return scigoErrors.Wrap(err, "failed to encode model")
	}
	return nil
}

// SaveToFile writes the model as JSON, creating parent directories.
func (m *Model) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return scigoErrors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return scigoErrors.Wrapf(err, "failed to create model file %s", path)
	}
	if err := m.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadModel decodes a model written by WriteJSON.
func ReadModel(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, scigoErrors.Wrap(err, "failed to decode model")
	}
	if m.Version != formatVersion {
		return nil, scigoErrors.NewModelError("ReadModel", "unsupported format",
			scigoErrors.Newf("model format version %d, want %d", m.Version, formatVersion))
	}
	for t := range m.Trees {
		if len(m.Trees[t].Nodes) == 0 {
			return nil, scigoErrors.NewModelError("ReadModel", "corrupt model",
				scigoErrors.Newf("tree %d has no nodes", t))
		}
		for _, n := range m.Trees[t].Nodes {
			if !n.IsLeaf() && (n.SplitFeature < 0 || n.SplitFeature >= m.NumFeatures) {
				return nil, scigoErrors.NewModelError("ReadModel", "corrupt model",
					scigoErrors.Newf("tree %d node %d splits on feature %d", t, n.NodeID, n.SplitFeature))
			}
		}
	}
	return &m, nil
}

// LoadModel reads a model from a JSON file.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "failed to open model file %s", path)
	}
	defer f.Close()
	return ReadModel(f)
}
