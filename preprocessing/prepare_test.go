package preprocessing

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/dataset"
	"github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// syntheticSessions builds n distinct rows with a positive rate of posRate,
// a few missing cells and the denylisted columns present.
func syntheticSessions(n int, posRate float64, seed uint64) *dataset.Frame {
	r := rand.New(rand.NewPCG(seed, seed))
	id := make([]float64, n)
	pages := make([]float64, n)
	night := make([]float64, n)
	width := make([]float64, n)
	sparse := make([]float64, n)
	robot := make([]float64, n)
	browser := make([]string, n)
	nPos := int(math.Round(float64(n) * posRate))
	for i := 0; i < n; i++ {
		id[i] = float64(i)
		if i < nPos {
			robot[i] = 1
		}
		pages[i] = float64(i%97) + r.Float64()
		night[i] = r.Float64()
		width[i] = r.Float64()
		sparse[i] = math.NaN()
		if i%2 == 0 {
			sparse[i] = 1
		}
		if i%10 == 3 {
			night[i] = math.NaN()
		}
		browser[i] = []string{"chrome", "firefox", "curl"}[i%3]
		if i%50 == 7 {
			browser[i] = ""
		}
	}
	f, err := dataset.NewFrame(
		dataset.NumericColumn("ID", id...),
		dataset.NumericColumn("TOTAL_PAGES", pages...),
		dataset.NumericColumn("NIGHT", night...),
		dataset.NumericColumn("WIDTH", width...),
		dataset.NumericColumn("SF_REFERRER", sparse...),
		dataset.CategoricalColumn("BROWSER", browser...),
		dataset.NumericColumn("ROBOT", robot...),
	)
	if err != nil {
		panic(err)
	}
	return f
}

func hasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}

func positiveRate(y *mat.VecDense) float64 {
	s := 0.0
	for i := 0; i < y.Len(); i++ {
		s += y.AtVec(i)
	}
	return s / float64(y.Len())
}

// duplicateRows counts prepared rows (features and label) seen before.
func duplicateRows(s *Split) int {
	seen := make(map[string]bool)
	dups := 0
	add := func(X *mat.Dense, y *mat.VecDense) {
		r, c := X.Dims()
		for i := 0; i < r; i++ {
			key := strconv.FormatFloat(y.AtVec(i), 'g', -1, 64)
			for j := 0; j < c; j++ {
				key += "|" + strconv.FormatFloat(X.At(i, j), 'g', -1, 64)
			}
			if seen[key] {
				dups++
			}
			seen[key] = true
		}
	}
	add(s.XTrain, s.YTrain)
	add(s.XTest, s.YTest)
	return dups
}

func TestPrepareEndToEndSynthetic(t *testing.T) {
	for _, strategy := range []ImputeStrategy{ImputeBeforeSplit, ImputeTrainOnly} {
		t.Run(strategy.String(), func(t *testing.T) {
			opts := DefaultPrepareOptions()
			opts.Imputation = strategy
			split, err := Prepare(syntheticSessions(1000, 0.1, 1), "ROBOT", opts)
			if err != nil {
				t.Fatal(err)
			}

			if len(split.TrainIndex) != 800 || len(split.TestIndex) != 200 {
				t.Errorf("sizes = %d/%d, want 800/200", len(split.TrainIndex), len(split.TestIndex))
			}
			for _, y := range []*mat.VecDense{split.YTrain, split.YTest} {
				if p := positiveRate(y); math.Abs(p-0.1) > 0.01 {
					t.Errorf("positive rate %v not within 1%% of 0.1", p)
				}
			}
			if hasNaN(split.XTrain) || hasNaN(split.XTest) {
				t.Error("prepared matrices contain missing values")
			}
			if n := duplicateRows(split); n != 0 {
				t.Errorf("prepared output contains %d duplicate row(s)", n)
			}

			want := []string{"TOTAL_PAGES", "NIGHT", "BROWSER"}
			if len(split.FeatureNames) != len(want) {
				t.Fatalf("features = %v, want %v", split.FeatureNames, want)
			}
			for i := range want {
				if split.FeatureNames[i] != want[i] {
					t.Errorf("feature %d = %s, want %s", i, split.FeatureNames[i], want[i])
				}
			}
			if split.PositiveLabel != "1" {
				t.Errorf("positive label = %q", split.PositiveLabel)
			}
			if got := split.ScalePosWeight(); math.Abs(got-9) > 0.2 {
				t.Errorf("scale_pos_weight = %v, want ~9", got)
			}
		})
	}
}

func TestPrepareSplitIsDisjointAndComplete(t *testing.T) {
	split, err := Prepare(syntheticSessions(300, 0.2, 2), "ROBOT", DefaultPrepareOptions())
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int]int)
	for _, i := range split.TrainIndex {
		seen[i]++
	}
	for _, i := range split.TestIndex {
		seen[i]++
	}
	if len(seen) != 300 {
		t.Errorf("union covers %d rows, want 300", len(seen))
	}
	for i, c := range seen {
		if c != 1 {
			t.Errorf("row %d assigned %d times", i, c)
		}
	}
}

func TestPrepareDeterministic(t *testing.T) {
	f := syntheticSessions(200, 0.25, 3)
	a, err := Prepare(f, "ROBOT", DefaultPrepareOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Prepare(f, "ROBOT", DefaultPrepareOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(a.XTrain, b.XTrain) || !mat.Equal(a.XTest, b.XTest) || !mat.Equal(a.YTest, b.YTest) {
		t.Error("same seed produced different splits")
	}

	opts := DefaultPrepareOptions()
	opts.Seed = 7
	c, err := Prepare(f, "ROBOT", opts)
	if err != nil {
		t.Fatal(err)
	}
	if mat.Equal(a.XTest, c.XTest) {
		t.Error("different seeds should give different splits")
	}
}

func TestPrepareDoesNotMutateInput(t *testing.T) {
	f := syntheticSessions(100, 0.3, 4)
	night, _ := f.Column("NIGHT")
	before := night.MissingCount()
	if _, err := Prepare(f, "ROBOT", DefaultPrepareOptions()); err != nil {
		t.Fatal(err)
	}
	if night.MissingCount() != before || !f.Has("ID") {
		t.Error("Prepare modified its input frame")
	}
}

func TestPrepareRemovesDuplicates(t *testing.T) {
	f, err := dataset.NewFrame(
		dataset.NumericColumn("A", 1, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		dataset.NumericColumn("ROBOT", 0, 0, 0, 0, 0, 1, 1, 1, 1, 0),
	)
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultPrepareOptions()
	opts.TestFraction = 0.4
	split, err := Prepare(f, "ROBOT", opts)
	if err != nil {
		t.Fatal(err)
	}
	if split.DuplicatesRemoved != 1 {
		t.Errorf("duplicates removed = %d, want 1", split.DuplicatesRemoved)
	}
	if n := len(split.TrainIndex) + len(split.TestIndex); n != 9 {
		t.Errorf("rows = %d, want 9", n)
	}
}

func TestPrepareMedianBeforeSplit(t *testing.T) {
	f, _ := dataset.NewFrame(
		dataset.NumericColumn("A", 1, math.NaN(), 3, 10, 5, 6, 7, 8),
		dataset.NumericColumn("ROBOT", 0, 0, 0, 0, 1, 1, 1, 1),
	)
	opts := DefaultPrepareOptions()
	opts.TestFraction = 0.5
	split, err := Prepare(f, "ROBOT", opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := split.Medians["A"]; got != 6 {
		t.Errorf("median = %v, want 6", got)
	}
}

func TestPrepareCategoricalTarget(t *testing.T) {
	f, _ := dataset.NewFrame(
		dataset.NumericColumn("A", 1, 2, 3, 4, 5, 6),
		dataset.CategoricalColumn("LABEL", "Human", "Robot", "Human", "Robot", "Human", "Robot"),
	)
	opts := DefaultPrepareOptions()
	opts.TestFraction = 0.34
	split, err := Prepare(f, "LABEL", opts)
	if err != nil {
		t.Fatal(err)
	}
	if split.PositiveLabel != "Robot" {
		t.Errorf("positive label = %q, want Robot", split.PositiveLabel)
	}
}

func TestPrepareErrors(t *testing.T) {
	good := syntheticSessions(50, 0.2, 5)
	onlyDenied, _ := dataset.NewFrame(
		dataset.NumericColumn("ID", 1, 2, 3, 4),
		dataset.NumericColumn("ROBOT", 0, 1, 0, 1),
	)
	threeClass, _ := dataset.NewFrame(
		dataset.NumericColumn("A", 1, 2, 3, 4, 5, 6),
		dataset.NumericColumn("ROBOT", 0, 1, 2, 0, 1, 2),
	)
	missingTarget, _ := dataset.NewFrame(
		dataset.NumericColumn("A", 1, 2, 3, 4),
		dataset.NumericColumn("ROBOT", 0, 1, math.NaN(), 1),
	)
	empty, _ := dataset.NewFrame(dataset.NumericColumn("ROBOT"))

	tests := []struct {
		name   string
		frame  *dataset.Frame
		target string
	}{
		{"missing target column", good, "LABEL"},
		{"all features dropped", onlyDenied, "ROBOT"},
		{"non-binary target", threeClass, "ROBOT"},
		{"missing target values", missingTarget, "ROBOT"},
		{"empty dataset", empty, "ROBOT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(tt.frame, tt.target, DefaultPrepareOptions())
			var de *errors.DataError
			if !errors.As(err, &de) {
				t.Errorf("expected DataError, got %v", err)
			}
		})
	}
}

func TestPrepareInsufficientClass(t *testing.T) {
	rows := 20
	a := make([]float64, rows)
	y := make([]float64, rows)
	for i := range a {
		a[i] = float64(i)
	}
	y[0] = 1
	f, _ := dataset.NewFrame(dataset.NumericColumn("A", a...), dataset.NumericColumn("ROBOT", y...))

	_, err := Prepare(f, "ROBOT", DefaultPrepareOptions())
	var ice *errors.InsufficientClassSamplesError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InsufficientClassSamplesError, got %v", err)
	}
	if ice.Class != 1 || ice.Count != 1 {
		t.Errorf("unexpected error fields %+v", ice)
	}
}

func TestParseImputeStrategy(t *testing.T) {
	for in, want := range map[string]ImputeStrategy{"": ImputeBeforeSplit, "train_only": ImputeTrainOnly, "BEFORE_SPLIT": ImputeBeforeSplit} {
		got, err := ParseImputeStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseImputeStrategy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseImputeStrategy("after"); err == nil {
		t.Error("expected error")
	}
}

func TestLabelEncodingFirstAppearance(t *testing.T) {
	vals := make([]string, 10)
	y := make([]float64, 10)
	for i := range vals {
		vals[i] = "b" + strconv.Itoa(i%3)
		y[i] = float64(i % 2)
	}
	vals[0] = "z"
	f, _ := dataset.NewFrame(dataset.CategoricalColumn("C", vals...), dataset.NumericColumn("N", 0, 1, 2, 3, 4, 5, 6, 7, 8, 9), dataset.NumericColumn("ROBOT", y...))
	split, err := Prepare(f, "ROBOT", DefaultPrepareOptions())
	if err != nil {
		t.Fatal(err)
	}
	levels := split.Categories["C"]
	if len(levels) != 4 || levels[0] != "z" || levels[1] != "b1" {
		t.Errorf("levels = %v", levels)
	}
}

// TestPrepareDeduplicatesAfterImputation builds a row that only differs from
// row 0 by a missing cell whose fill value equals row 0's value.
func TestPrepareDeduplicatesAfterImputation(t *testing.T) {
	const n = 40
	a := make([]float64, n)
	b := make([]float64, n)
	robot := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = 5
		b[i] = float64(i)
		if i%4 == 0 {
			robot[i] = 1
		}
	}
	a[1] = math.NaN()
	b[1] = 0
	robot[1] = 1

	for _, strategy := range []ImputeStrategy{ImputeBeforeSplit, ImputeTrainOnly} {
		t.Run(strategy.String(), func(t *testing.T) {
			frame, err := dataset.NewFrame(
				dataset.NumericColumn("A", a...),
				dataset.NumericColumn("B", b...),
				dataset.NumericColumn("ROBOT", robot...),
			)
			if err != nil {
				t.Fatal(err)
			}
			opts := DefaultPrepareOptions()
			opts.Imputation = strategy
			split, err := Prepare(frame, "ROBOT", opts)
			if err != nil {
				t.Fatal(err)
			}

			if split.DuplicatesRemoved != 1 {
				t.Errorf("duplicates removed = %d, want 1", split.DuplicatesRemoved)
			}
			if d := duplicateRows(split); d != 0 {
				t.Errorf("prepared output contains %d duplicate row(s)", d)
			}
			total := len(split.TrainIndex) + len(split.TestIndex)
			if total != n-1 {
				t.Errorf("rows = %d, want %d", total, n-1)
			}
			if r, _ := split.XTrain.Dims(); r != len(split.TrainIndex) || split.YTrain.Len() != r {
				t.Errorf("train rows %d do not match index length %d", r, len(split.TrainIndex))
			}
			if r, _ := split.XTest.Dims(); r != len(split.TestIndex) || split.YTest.Len() != r {
				t.Errorf("test rows %d do not match index length %d", r, len(split.TestIndex))
			}
			if strategy == ImputeTrainOnly {
				kept := make(map[int]bool)
				for _, i := range append(append([]int(nil), split.TrainIndex...), split.TestIndex...) {
					kept[i] = true
				}
				if !kept[0] || kept[1] {
					t.Errorf("first occurrence not kept: row0=%v row1=%v", kept[0], kept[1])
				}
			}
		})
	}
}
