package gbdt

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/core/parallel"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
)

// minSplitLoss is the smallest loss reduction considered a real split.
const minSplitLoss = 1e-6

// featureParallelThreshold is the feature count above which split search fans out.
const featureParallelThreshold = 4

// EvalSet is a labelled matrix scored with logloss after every iteration.
type EvalSet struct {
	Name string
	X    mat.Matrix
	Y    []float64
}

type evalState struct {
	name    string
	rows    [][]float64
	y       []float64
	margins []float64
}

// SplitInfo contains information about a candidate split.
type SplitInfo struct {
	Feature   int
	Bin       int
	Threshold float64
	Gain      float64
	LeftGrad  float64
	LeftHess  float64
	LeftCount int
	Valid     bool
}

// Trainer implements histogram-based gradient boosting for binary targets.
type Trainer struct {
	params    TrainingParams
	objective ObjectiveFunction
	reg       *RegularizationStrategy
	sampler   *SamplingStrategy

	bins   *BinMapper
	binned *binnedMatrix
	y      []float64

	margins   []float64
	gradients []float64
	hessians  []float64

	initScore    float64
	trees        []Tree
	featureNames []string

	evals         []*evalState
	history       map[string][]float64
	earlyStopping *EarlyStopping
	callbacks     *CallbackList

	logger log.Logger
}

// NewTrainer creates a trainer. Zero-valued fields of params keep their zero
// value; use DefaultTrainingParams as the starting point.
func NewTrainer(params TrainingParams) *Trainer {
	return &Trainer{
		params:    params,
		objective: NewBinaryLogistic(params.ScalePosWeight),
		reg:       NewRegularizationStrategy(params),
		sampler:   NewSamplingStrategy(params),
		history:   make(map[string][]float64),
		logger:    log.GetLoggerWithName("gbdt.trainer"),
	}
}

// SetFeatureNames attaches column names to the trained model.
func (t *Trainer) SetFeatureNames(names []string) {
	t.featureNames = append([]string(nil), names...)
}

// Fit trains the ensemble on X and 0/1 targets y. Every eval set is scored
// with logloss after each iteration; with EarlyStoppingRounds > 0 the last
// eval set drives early stopping and the model is truncated to the best
// iteration.
func (t *Trainer) Fit(X mat.Matrix, y []float64, evalSets []EvalSet, callbacks ...Callback) error {
	if err := t.params.Validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return scigoErrors.NewValueError("Trainer.Fit", "training data is empty")
	}
	if len(y) != rows {
		return scigoErrors.NewDimensionError("Trainer.Fit", rows, len(y), 0)
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return scigoErrors.NewValueError("Trainer.Fit",
				"target must be 0 or 1, got "+strconv.FormatFloat(v, 'g', -1, 64)+" at row "+strconv.Itoa(i))
		}
	}
	if t.featureNames != nil && len(t.featureNames) != cols {
		return scigoErrors.NewDimensionError("Trainer.Fit", len(t.featureNames), cols, 1)
	}

	t.initialize(X, y)
	if err := t.initEvalSets(evalSets, cols); err != nil {
		return err
	}
	t.callbacks = NewCallbackList(append([]Callback{RecordEvaluation(t.history)}, callbacks...)...)
	t.earlyStopping = NewEarlyStopping(0, "logloss")
	if t.params.EarlyStoppingRounds > 0 && len(t.evals) > 0 {
		t.earlyStopping = NewEarlyStopping(t.params.EarlyStoppingRounds, "logloss")
	}

	t.logger.Debug("Starting boosting",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ScalePosWeightKey, t.params.ScalePosWeight,
	)

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.callbacks.BeforeIteration(iter)
		t.computeGradients()
		if err := scigoErrors.CheckNumericalStability("Trainer.Fit", t.gradients, iter); err != nil {
			return err
		}

		tree := t.buildTree(iter)
		t.trees = append(t.trees, tree)
		t.updateMargins(&tree)

		results := t.evaluate(&tree)
		if err := t.callbacks.AfterIteration(iter, results); err != nil {
			return scigoErrors.Wrapf(err, "callback failed at iteration %d", iter)
		}

		if t.earlyStopping.Enabled {
			key := t.evals[len(t.evals)-1].name + "-logloss"
			if t.earlyStopping.Update(iter, results[key]) {
				t.logger.Debug("Early stopping",
					log.IterationKey, iter,
					log.BestIterationKey, t.earlyStopping.BestIteration,
					log.LossKey, t.earlyStopping.BestScore,
				)
				break
			}
		}
		if t.callbacks.ShouldStop() {
			break
		}
	}

	if t.earlyStopping.Enabled && t.earlyStopping.BestIteration+1 < len(t.trees) {
		t.trees = t.trees[:t.earlyStopping.BestIteration+1]
	} else if t.earlyStopping.Enabled && len(t.trees) == t.params.NumIterations {
		scigoErrors.Warn(scigoErrors.NewConvergenceWarning("gbdt", t.params.NumIterations,
			"eval logloss still improving at the last round"))
	}
	return nil
}

func (t *Trainer) initialize(X mat.Matrix, y []float64) {
	rows, _ := X.Dims()
	t.y = append([]float64(nil), y...)
	t.bins = NewBinMapper(X, t.params.MaxBin)
	t.binned = t.bins.transform(X)
	t.initScore = t.objective.InitScore(t.y)
	t.margins = make([]float64, rows)
	for i := range t.margins {
		t.margins[i] = t.initScore
	}
	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.trees = t.trees[:0]
	for k := range t.history {
		delete(t.history, k)
	}
}

func (t *Trainer) initEvalSets(sets []EvalSet, cols int) error {
	t.evals = t.evals[:0]
	for k, set := range sets {
		n, c := set.X.Dims()
		if c != cols {
			return scigoErrors.NewDimensionError("Trainer.Fit(eval_set)", cols, c, 1)
		}
		if len(set.Y) != n {
			return scigoErrors.NewDimensionError("Trainer.Fit(eval_set)", n, len(set.Y), 0)
		}
		name := set.Name
		if name == "" {
			name = "validation_" + strconv.Itoa(k)
		}
		es := &evalState{name: name, rows: make([][]float64, n), y: set.Y, margins: make([]float64, n)}
		for i := 0; i < n; i++ {
			es.rows[i] = mat.Row(nil, i, set.X)
			es.margins[i] = t.initScore
		}
		t.evals = append(t.evals, es)
	}
	return nil
}

func (t *Trainer) computeGradients() {
	for i, y := range t.y {
		t.gradients[i] = t.objective.Gradient(t.margins[i], y)
		t.hessians[i] = t.objective.Hessian(t.margins[i], y)
	}
}

func (t *Trainer) updateMargins(tree *Tree) {
	// Training rows are routed by bin, which agrees with the threshold route.
	for i := range t.margins {
		id := 0
		for {
			node := &tree.Nodes[id]
			if node.IsLeaf() {
				t.margins[i] += node.LeafValue
				break
			}
			if int(t.binned.data[node.SplitFeature][i]) <= node.bin {
				id = node.LeftChild
			} else {
				id = node.RightChild
			}
		}
	}
}

func (t *Trainer) evaluate(tree *Tree) map[string]float64 {
	results := make(map[string]float64, len(t.evals))
	for _, es := range t.evals {
		loss := 0.0
		for i, row := range es.rows {
			es.margins[i] += tree.Predict(row)
			loss += t.objective.Loss(es.margins[i], es.y[i])
		}
		if len(es.rows) > 0 {
			loss /= float64(len(es.rows))
		}
		results[es.name+"-logloss"] = loss
	}
	return results
}

// buildNode is the mutable tree representation used while growing.
type buildNode struct {
	split       SplitInfo
	left, right *buildNode
	sumGrad     float64
	sumHess     float64
	count       int
	depth       int
}

func (t *Trainer) buildTree(iter int) Tree {
	rows := t.sampler.SampleInstances(len(t.y))
	features := t.sampler.SampleFeatures(t.binned.cols)

	var g, h float64
	for _, i := range rows {
		g += t.gradients[i]
		h += t.hessians[i]
	}
	root := t.grow(rows, features, g, h, 0)
	t.prune(root)
	return t.flatten(root, iter)
}

func (t *Trainer) grow(rows, features []int, sumGrad, sumHess float64, depth int) *buildNode {
	node := &buildNode{sumGrad: sumGrad, sumHess: sumHess, count: len(rows), depth: depth}
	if depth >= t.params.MaxDepth || len(rows) < 2 || sumHess < 2*t.params.MinChildWeight {
		return node
	}

	split := t.findBestSplit(rows, features, sumGrad, sumHess)
	if !split.Valid {
		return node
	}
	node.split = split

	bins := t.binned.data[split.Feature]
	left := make([]int, 0, split.LeftCount)
	right := make([]int, 0, len(rows)-split.LeftCount)
	for _, i := range rows {
		if int(bins[i]) <= split.Bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.left = t.grow(left, features, split.LeftGrad, split.LeftHess, depth+1)
	node.right = t.grow(right, features, sumGrad-split.LeftGrad, sumHess-split.LeftHess, depth+1)
	return node
}

// findBestSplit searches every sampled feature in parallel and reduces the
// per-feature winners in feature order, so ties resolve to the lower feature.
func (t *Trainer) findBestSplit(rows, features []int, sumGrad, sumHess float64) SplitInfo {
	best := make([]SplitInfo, len(features))
	parallel.ParallelizeWithThreshold(len(features), featureParallelThreshold, t.params.NumThreads, func(start, end int) {
		for k := start; k < end; k++ {
			best[k] = t.findBestSplitForFeature(features[k], rows, sumGrad, sumHess)
		}
	})

	var result SplitInfo
	for _, s := range best {
		if s.Valid && (!result.Valid || s.Gain > result.Gain) {
			result = s
		}
	}
	return result
}

func (t *Trainer) findBestSplitForFeature(f int, rows []int, sumGrad, sumHess float64) SplitInfo {
	nBins := t.bins.NumBins(f)
	best := SplitInfo{Feature: f}
	if nBins < 2 {
		return best
	}
	hist := buildHistogram(t.binned.data[f], nBins, rows, t.gradients, t.hessians)

	var gl, hl float64
	cl := 0
	for b := 0; b < nBins-1; b++ {
		gl += hist[b].SumGrad
		hl += hist[b].SumHess
		cl += hist[b].Count
		if cl == 0 {
			continue
		}
		if cl == len(rows) {
			break
		}
		gr, hr := sumGrad-gl, sumHess-hl
		if hl < t.params.MinChildWeight || hr < t.params.MinChildWeight {
			continue
		}
		gain := t.reg.SplitGain(gl, hl, gr, hr)
		if gain <= minSplitLoss || math.IsNaN(gain) {
			continue
		}
		if !best.Valid || gain > best.Gain {
			best = SplitInfo{
				Feature:   f,
				Bin:       b,
				Threshold: t.bins.Threshold(f, b),
				Gain:      gain,
				LeftGrad:  gl,
				LeftHess:  hl,
				LeftCount: cl,
				Valid:     true,
			}
		}
	}
	return best
}

// prune collapses splits whose gain does not exceed gamma, bottom-up.
func (t *Trainer) prune(n *buildNode) {
	if n.left == nil {
		return
	}
	t.prune(n.left)
	t.prune(n.right)
	if n.left.left == nil && n.right.left == nil && n.split.Gain < t.params.Gamma {
		n.left, n.right = nil, nil
		n.split = SplitInfo{}
	}
}

func (t *Trainer) flatten(root *buildNode, iter int) Tree {
	tree := Tree{TreeIndex: iter}
	var walk func(n *buildNode, parent int) int
	walk = func(n *buildNode, parent int) int {
		id := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, Node{
			NodeID:     id,
			ParentID:   parent,
			LeftChild:  -1,
			RightChild: -1,
			Depth:      n.depth,
			Cover:      n.sumHess,
			Count:      n.count,
		})
		if n.left == nil {
			tree.Nodes[id].LeafValue = t.params.LearningRate * t.reg.LeafWeight(n.sumGrad, n.sumHess)
			tree.NumLeaves++
			return id
		}
		tree.Nodes[id].SplitFeature = n.split.Feature
		tree.Nodes[id].Threshold = n.split.Threshold
		tree.Nodes[id].DefaultLeft = true
		tree.Nodes[id].Gain = n.split.Gain
		tree.Nodes[id].bin = n.split.Bin
		left := walk(n.left, id)
		right := walk(n.right, id)
		tree.Nodes[id].LeftChild = left
		tree.Nodes[id].RightChild = right
		return id
	}
	walk(root, -1)
	return tree
}

// GetModel returns the trained model.
func (t *Trainer) GetModel() *Model {
	cols := 0
	if t.binned != nil {
		cols = t.binned.cols
	}
	m := &Model{
		Version:       formatVersion,
		Objective:     t.objective.Name(),
		FeatureNames:  t.featureNames,
		NumFeatures:   cols,
		InitScore:     t.initScore,
		Trees:         append([]Tree(nil), t.trees...),
		BestIteration: len(t.trees) - 1,
		Params:        t.params,
	}
	if t.earlyStopping != nil && t.earlyStopping.Enabled && t.earlyStopping.BestIteration >= 0 {
		m.BestIteration = t.earlyStopping.BestIteration
		m.BestScore = t.earlyStopping.BestScore
	}
	return m
}

// EvalHistory returns the per-iteration logloss of every eval set.
func (t *Trainer) EvalHistory() map[string][]float64 {
	out := make(map[string][]float64, len(t.history))
	for k, v := range t.history {
		out[k] = append([]float64(nil), v...)
	}
	return out
}
