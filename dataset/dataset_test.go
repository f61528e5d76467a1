package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `ID,TOTAL_PAGES,BROWSER,ROBOT
1,10,chrome,0
2,,firefox,1
3,7.5,NA,0
4,3,chrome,1
`

func TestReadCSVInfersKinds(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sample), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if f.NumRows() != 4 || f.NumCols() != 4 {
		t.Fatalf("shape = %dx%d", f.NumRows(), f.NumCols())
	}

	pages, _ := f.Column("TOTAL_PAGES")
	if pages.Kind != Numeric {
		t.Errorf("TOTAL_PAGES kind = %v", pages.Kind)
	}
	if !pages.Values[1].Missing {
		t.Error("empty cell should be missing")
	}
	if math.Abs(pages.Values[2].Num-7.5) > 1e-12 {
		t.Errorf("value = %v", pages.Values[2].Num)
	}
	if got := pages.MissingFraction(); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("missing fraction = %v", got)
	}

	browser, _ := f.Column("BROWSER")
	if browser.Kind != Categorical {
		t.Errorf("BROWSER kind = %v", browser.Kind)
	}
	if !browser.Values[2].Missing || browser.Values[0].Str != "chrome" {
		t.Errorf("unexpected categorical cells %+v", browser.Values)
	}
}

func TestReadCSVDelimiterAndErrors(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a;b\n1;2\n"), ReadOptions{Delimiter: ';'})
	if err != nil {
		t.Fatal(err)
	}
	if f.NumCols() != 2 {
		t.Errorf("expected 2 columns, got %v", f.Names())
	}

	if _, err := ReadCSV(strings.NewReader(""), ReadOptions{}); err == nil {
		t.Error("expected error on empty input")
	}
	if _, err := ReadCSV(strings.NewReader("a,b\n1\n"), ReadOptions{}); err == nil {
		t.Error("expected error on ragged record")
	}
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadCSVFile(path, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Has("ROBOT") {
		t.Error("ROBOT column missing")
	}
	if _, err := ReadCSVFile(filepath.Join(t.TempDir(), "nope.csv"), ReadOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFrameDropAndSelectDoNotMutate(t *testing.T) {
	f, err := NewFrame(NumericColumn("a", 1, 2, 3), NumericColumn("b", 4, math.NaN(), 6))
	if err != nil {
		t.Fatal(err)
	}

	dropped := f.Drop("a", "missing")
	if dropped.Has("a") || !f.Has("a") {
		t.Error("Drop must return a new frame and keep the original")
	}

	sel := f.SelectRows([]int{2, 0})
	a, _ := sel.Column("a")
	if sel.NumRows() != 2 || a.Values[0].Num != 3 {
		t.Errorf("SelectRows mismatch: %+v", a.Values)
	}
	a.Values[0].Num = 99
	orig, _ := f.Column("a")
	if orig.Values[2].Num != 3 {
		t.Error("SelectRows shares storage with the source")
	}
}

func TestRowKeyDistinguishesMissing(t *testing.T) {
	f, _ := NewFrame(NumericColumn("a", 0, math.NaN(), 0), CategoricalColumn("b", "x", "x", "x"))
	if f.RowKey(0) == f.RowKey(1) {
		t.Error("missing and zero must not collide")
	}
	if f.RowKey(0) != f.RowKey(2) {
		t.Error("identical rows must share a key")
	}
}

func TestNewFrameValidation(t *testing.T) {
	if _, err := NewFrame(NumericColumn("a", 1), NumericColumn("a", 2)); err == nil {
		t.Error("expected duplicate column error")
	}
	if _, err := NewFrame(NumericColumn("a", 1), NumericColumn("b", 1, 2)); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestRowKeyTreatsNegativeZeroAsZero(t *testing.T) {
	f, err := NewFrame(NumericColumn("DURATION", math.Copysign(0, -1), 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if f.RowKey(0) != f.RowKey(1) {
		t.Errorf("-0 and 0 keys differ: %q vs %q", f.RowKey(0), f.RowKey(1))
	}
	if f.RowKey(0) == f.RowKey(2) {
		t.Error("0 and 1 share a key")
	}
}
