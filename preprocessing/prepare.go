// Package preprocessing turns raw session records into a clean, numeric,
// stratified train/test split for the robot classifier.
package preprocessing

import (
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/dataset"
	"github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
)

// ImputeStrategy selects where median statistics are computed.
type ImputeStrategy int

const (
	// ImputeBeforeSplit computes medians on all prepared rows before the
	// split. Test-set statistics leak into training.
	ImputeBeforeSplit ImputeStrategy = iota
	// ImputeTrainOnly splits first and fits medians on training rows only.
	ImputeTrainOnly
)

func (s ImputeStrategy) String() string {
	if s == ImputeTrainOnly {
		return "train_only"
	}
	return "before_split"
}

// ParseImputeStrategy accepts "before_split" or "train_only".
func ParseImputeStrategy(s string) (ImputeStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "before_split":
		return ImputeBeforeSplit, nil
	case "train_only":
		return ImputeTrainOnly, nil
	default:
		return ImputeBeforeSplit, errors.NewValidationError("imputation", "must be before_split or train_only", s)
	}
}

// DefaultDenylist names the identifier and leakage columns removed before modelling.
var DefaultDenylist = []string{"ID", "UNASSIGNED", "WIDTH", "PENALTY"}

// PrepareOptions controls Prepare.
type PrepareOptions struct {
	TestFraction     float64
	Seed             uint64
	MissingThreshold float64
	Denylist         []string
	Imputation       ImputeStrategy
}

// DefaultPrepareOptions returns the default preparation settings.
func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{
		TestFraction:     0.2,
		Seed:             42,
		MissingThreshold: 0.25,
		Denylist:         append([]string(nil), DefaultDenylist...),
		Imputation:       ImputeBeforeSplit,
	}
}

func (o PrepareOptions) validate() error {
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		return errors.NewValidationError("test_fraction", "must be in (0, 1)", o.TestFraction)
	}
	if o.MissingThreshold < 0 || o.MissingThreshold > 1 {
		return errors.NewValidationError("missing_threshold", "must be in [0, 1]", o.MissingThreshold)
	}
	return nil
}

// Split is the prepared, model-ready dataset.
type Split struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain *mat.VecDense
	YTest  *mat.VecDense

	// FeatureNames gives the column order of XTrain/XTest.
	FeatureNames []string

	// TrainIndex and TestIndex are row positions in the deduplicated table.
	TrainIndex []int
	TestIndex  []int

	// PositiveLabel is the raw target value mapped to 1.
	PositiveLabel string

	// Categories lists label-encoding levels per categorical feature; code = position.
	Categories map[string][]string

	DroppedColumns    []string
	DuplicatesRemoved int
	Imputation        ImputeStrategy
	Medians           map[string]float64
}

// Prepare drops denylisted and sparse columns, imputes missing cells,
// removes duplicate rows, separates the target and performs a stratified
// split. frame is never modified.
func Prepare(frame *dataset.Frame, targetColumn string, opts PrepareOptions) (*Split, error) {
	logger := log.GetLoggerWithName("preprocessing")
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if frame == nil || frame.NumRows() == 0 {
		return nil, errors.NewDataError("Prepare", "dataset is empty")
	}
	if !frame.Has(targetColumn) {
		return nil, errors.NewDataErrorf("Prepare", "target column %q not found", targetColumn)
	}

	var present, absent []string
	for _, name := range opts.Denylist {
		if name == targetColumn {
			continue
		}
		if frame.Has(name) {
			present = append(present, name)
		} else {
			absent = append(absent, name)
		}
	}
	if len(absent) > 0 {
		logger.Warn("Denylisted columns not present in input", "columns", absent)
	}
	work := frame.Drop(present...)
	dropped := append([]string(nil), present...)

	var sparse []string
	for _, c := range work.Columns() {
		if c.Name != targetColumn && c.MissingFraction() > opts.MissingThreshold {
			sparse = append(sparse, c.Name)
		}
	}
	work = work.Drop(sparse...)
	dropped = append(dropped, sparse...)
	if work.NumCols() <= 1 {
		return nil, errors.NewDataError("Prepare", "no feature columns remain after dropping denylisted and sparse columns")
	}

	tcol, _ := work.Column(targetColumn)
	if n := tcol.MissingCount(); n > 0 {
		return nil, errors.NewDataErrorf("Prepare", "target column %q has %d missing value(s)", targetColumn, n)
	}
	tmap, err := newTargetMapping(tcol)
	if err != nil {
		return nil, err
	}

	splitter := NewStratifiedShuffleSplit(opts.TestFraction, opts.Seed)
	imp := NewMedianImputer(targetColumn)
	out := &Split{
		PositiveLabel:  tmap.positive,
		DroppedColumns: dropped,
		Imputation:     opts.Imputation,
	}

	var trainFrame, testFrame *dataset.Frame
	switch opts.Imputation {
	case ImputeBeforeSplit:
		filled, err := imp.FitTransform(work)
		if err != nil {
			return nil, err
		}
		errors.Warn(errors.NewDataLeakageWarning("median imputation",
			"medians are computed before the train/test split and include test rows"))

		deduped, removed := dropDuplicates(filled)
		out.DuplicatesRemoved = removed
		y := tmap.encode(deduped)
		if out.TrainIndex, out.TestIndex, err = splitter.Split(y); err != nil {
			return nil, err
		}
		out.Categories = fitCategories(deduped, targetColumn)
		trainFrame = deduped.SelectRows(out.TrainIndex)
		testFrame = deduped.SelectRows(out.TestIndex)

	case ImputeTrainOnly:
		deduped, removed := dropDuplicates(work)
		out.DuplicatesRemoved = removed
		y := tmap.encode(deduped)
		if out.TrainIndex, out.TestIndex, err = splitter.Split(y); err != nil {
			return nil, err
		}
		out.Categories = fitCategories(deduped, targetColumn)
		rawTrain := deduped.SelectRows(out.TrainIndex)
		if err := imp.Fit(rawTrain); err != nil {
			return nil, err
		}
		if trainFrame, err = imp.Transform(rawTrain); err != nil {
			return nil, err
		}
		if testFrame, err = imp.Transform(deduped.SelectRows(out.TestIndex)); err != nil {
			return nil, err
		}
		// Filling cells with training medians can turn distinct rows into copies.
		var refilled int
		trainFrame, testFrame, out.TrainIndex, out.TestIndex, refilled = dropImputedDuplicates(
			trainFrame, testFrame, out.TrainIndex, out.TestIndex)
		if refilled > 0 {
			out.DuplicatesRemoved += refilled
			if err := checkClassShares(tmap.encode(trainFrame), tmap.encode(testFrame)); err != nil {
				return nil, err
			}
		}

	default:
		return nil, errors.NewValidationError("imputation", "unknown strategy", int(opts.Imputation))
	}
	out.Medians = imp.Medians

	for _, name := range work.Names() {
		if name != targetColumn {
			out.FeatureNames = append(out.FeatureNames, name)
		}
	}
	out.XTrain = buildMatrix(trainFrame, out.FeatureNames, out.Categories)
	out.XTest = buildMatrix(testFrame, out.FeatureNames, out.Categories)
	out.YTrain = mat.NewVecDense(len(out.TrainIndex), tmap.encode(trainFrame))
	out.YTest = mat.NewVecDense(len(out.TestIndex), tmap.encode(testFrame))

	pos, _ := countClasses(out.YTrain)
	logger.Info("Prepared dataset",
		log.OperationKey, log.OperationPrepare,
		log.SamplesKey, len(out.TrainIndex)+len(out.TestIndex),
		log.FeaturesKey, len(out.FeatureNames),
		log.TrainSamplesKey, len(out.TrainIndex),
		log.TestSamplesKey, len(out.TestIndex),
		log.PositivesKey, pos,
		log.DroppedColsKey, dropped,
		log.DuplicatesKey, out.DuplicatesRemoved,
	)
	return out, nil
}

// ScalePosWeight returns count(y==0)/count(y==1) over the training labels.
func (s *Split) ScalePosWeight() float64 {
	pos, neg := countClasses(s.YTrain)
	if pos == 0 {
		return 1
	}
	return float64(neg) / float64(pos)
}

func countClasses(y mat.Vector) (pos, neg int) {
	for i := 0; i < y.Len(); i++ {
		if y.AtVec(i) == 1 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// dropDuplicates keeps the first occurrence of every exact row.
func dropDuplicates(f *dataset.Frame) (*dataset.Frame, int) {
	seen := make(map[string]struct{}, f.NumRows())
	keep := make([]int, 0, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		k := f.RowKey(i)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep = append(keep, i)
	}
	return f.SelectRows(keep), f.NumRows() - len(keep)
}

// dropImputedDuplicates removes exact duplicates across the imputed train
// and test rows. Rows are compared in deduplicated-table order, so the row
// with the lowest index is kept wherever it landed.
func dropImputedDuplicates(train, test *dataset.Frame, trainIdx, testIdx []int) (
	*dataset.Frame, *dataset.Frame, []int, []int, int) {
	type rowRef struct {
		index int
		key   string
		train bool
		local int
	}
	refs := make([]rowRef, 0, len(trainIdx)+len(testIdx))
	for k, i := range trainIdx {
		refs = append(refs, rowRef{index: i, key: train.RowKey(k), train: true, local: k})
	}
	for k, i := range testIdx {
		refs = append(refs, rowRef{index: i, key: test.RowKey(k), local: k})
	}
	sort.Slice(refs, func(a, b int) bool { return refs[a].index < refs[b].index })

	seen := make(map[string]struct{}, len(refs))
	dropTrain := make(map[int]bool)
	dropTest := make(map[int]bool)
	for _, r := range refs {
		if _, dup := seen[r.key]; !dup {
			seen[r.key] = struct{}{}
			continue
		}
		if r.train {
			dropTrain[r.local] = true
		} else {
			dropTest[r.local] = true
		}
	}
	removed := len(dropTrain) + len(dropTest)
	if removed == 0 {
		return train, test, trainIdx, testIdx, 0
	}

	keep := func(f *dataset.Frame, idx []int, drop map[int]bool) (*dataset.Frame, []int) {
		rows := make([]int, 0, len(idx)-len(drop))
		kept := make([]int, 0, len(idx)-len(drop))
		for k, i := range idx {
			if !drop[k] {
				rows = append(rows, k)
				kept = append(kept, i)
			}
		}
		return f.SelectRows(rows), kept
	}
	train, trainIdx = keep(train, trainIdx, dropTrain)
	test, testIdx = keep(test, testIdx, dropTest)
	return train, test, trainIdx, testIdx, removed
}

// checkClassShares requires both classes on both sides of the split.
func checkClassShares(yTrain, yTest []float64) error {
	count := func(y []float64, class float64) int {
		n := 0
		for _, v := range y {
			if v == class {
				n++
			}
		}
		return n
	}
	for _, class := range []float64{0, 1} {
		if n := count(yTrain, class); n == 0 {
			return errors.NewInsufficientClassSamplesError(class, n+count(yTest, class), 2,
				"train share would be empty after imputation")
		}
		if n := count(yTest, class); n == 0 {
			return errors.NewInsufficientClassSamplesError(class, n+count(yTrain, class), 2,
				"test share would be empty after imputation")
		}
	}
	return nil
}

// fitCategories records categorical levels in first-appearance order.
func fitCategories(f *dataset.Frame, target string) map[string][]string {
	cats := make(map[string][]string)
	for _, c := range f.Columns() {
		if c.Kind != dataset.Categorical || c.Name == target {
			continue
		}
		seen := make(map[string]bool)
		var levels []string
		for _, v := range c.Values {
			if !v.Missing && !seen[v.Str] {
				seen[v.Str] = true
				levels = append(levels, v.Str)
			}
		}
		cats[c.Name] = levels
	}
	return cats
}

func buildMatrix(f *dataset.Frame, features []string, cats map[string][]string) *mat.Dense {
	n := f.NumRows()
	x := mat.NewDense(n, len(features), nil)
	for j, name := range features {
		c, _ := f.Column(name)
		var codes map[string]int
		if c.Kind == dataset.Categorical {
			codes = make(map[string]int, len(cats[name]))
			for k, level := range cats[name] {
				codes[level] = k
			}
		}
		for i, v := range c.Values {
			if c.Kind == dataset.Numeric {
				x.Set(i, j, v.Num)
			} else {
				x.Set(i, j, float64(codes[v.Str]))
			}
		}
	}
	return x
}

// targetMapping maps raw target cells to {0, 1}.
type targetMapping struct {
	name     string
	numeric  bool
	positive string
	posNum   float64
}

func newTargetMapping(c *dataset.Column) (*targetMapping, error) {
	m := &targetMapping{name: c.Name, numeric: c.Kind == dataset.Numeric}
	if m.numeric {
		set := make(map[float64]bool)
		for _, v := range c.Values {
			set[v.Num] = true
		}
		if len(set) != 2 {
			return nil, errors.NewDataErrorf("Prepare", "target column %q must have exactly 2 distinct values, found %d", c.Name, len(set))
		}
		vals := make([]float64, 0, 2)
		for v := range set {
			vals = append(vals, v)
		}
		sort.Float64s(vals)
		m.posNum = vals[1]
		m.positive = strconv.FormatFloat(vals[1], 'g', -1, 64)
		return m, nil
	}

	set := make(map[string]bool)
	for _, v := range c.Values {
		set[v.Str] = true
	}
	if len(set) != 2 {
		return nil, errors.NewDataErrorf("Prepare", "target column %q must have exactly 2 distinct values, found %d", c.Name, len(set))
	}
	for v := range set {
		if v > m.positive {
			m.positive = v
		}
	}
	return m, nil
}

func (m *targetMapping) encode(f *dataset.Frame) []float64 {
	c, _ := f.Column(m.name)
	y := make([]float64, len(c.Values))
	for i, v := range c.Values {
		if m.numeric && v.Num == m.posNum || !m.numeric && v.Str == m.positive {
			y[i] = 1
		}
	}
	return y
}
