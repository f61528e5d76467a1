package preprocessing

import (
	"sort"

	"github.com/YuminosukeSato/robotdetect/core/model"
	"github.com/YuminosukeSato/robotdetect/dataset"
	"github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// MedianImputer は欠損値を補完するトランスフォーマー
// 数値列は中央値、カテゴリ列は最頻値で補完する
type MedianImputer struct {
	state *model.StateManager

	// Medians は数値列ごとの中央値
	Medians map[string]float64

	// Modes はカテゴリ列ごとの最頻値
	Modes map[string]string

	// Skip は補完対象外の列（目的変数など）
	Skip map[string]bool
}

// NewMedianImputer は新しいMedianImputerを作成する
//
// パラメータ:
//   - skip: 補完しない列名（目的変数など）
//
// 使用例:
//
//	imp := preprocessing.NewMedianImputer("ROBOT")
//	err := imp.Fit(train)
//	filled, err := imp.Transform(test)
func NewMedianImputer(skip ...string) *MedianImputer {
	s := make(map[string]bool, len(skip))
	for _, name := range skip {
		s[name] = true
	}
	return &MedianImputer{
		state: model.NewStateManager("MedianImputer"),
		Skip:  s,
	}
}

// Fit は各列の中央値（カテゴリ列は最頻値）を計算する
//
// 全セルが欠損している列は補完値を決められないためエラーを返す。
func (m *MedianImputer) Fit(frame *dataset.Frame) error {
	if frame.NumRows() == 0 {
		return errors.NewModelError("MedianImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	m.Medians = make(map[string]float64)
	m.Modes = make(map[string]string)

	for _, c := range frame.Columns() {
		if m.Skip[c.Name] {
			continue
		}
		switch c.Kind {
		case dataset.Numeric:
			v, ok := median(c.Values)
			if !ok {
				return errors.NewDataErrorf("MedianImputer.Fit", "column %q has no observed values", c.Name)
			}
			m.Medians[c.Name] = v
		case dataset.Categorical:
			v, ok := mode(c.Values)
			if !ok {
				return errors.NewDataErrorf("MedianImputer.Fit", "column %q has no observed values", c.Name)
			}
			m.Modes[c.Name] = v
		}
	}
	m.state.MarkFitted(frame.NumCols(), frame.NumRows())
	return nil
}

// Transform は学習済みの統計量で欠損を補完した新しいFrameを返す
// 入力Frameは変更しない。
func (m *MedianImputer) Transform(frame *dataset.Frame) (*dataset.Frame, error) {
	if err := m.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	out := frame.Clone()
	for _, c := range out.Columns() {
		if m.Skip[c.Name] {
			continue
		}
		for i := range c.Values {
			if !c.Values[i].Missing {
				continue
			}
			switch c.Kind {
			case dataset.Numeric:
				v, ok := m.Medians[c.Name]
				if !ok {
					return nil, errors.NewDataErrorf("MedianImputer.Transform", "column %q was not seen during Fit", c.Name)
				}
				c.Values[i] = dataset.Value{Num: v}
			case dataset.Categorical:
				v, ok := m.Modes[c.Name]
				if !ok {
					return nil, errors.NewDataErrorf("MedianImputer.Transform", "column %q was not seen during Fit", c.Name)
				}
				c.Values[i] = dataset.Value{Str: v}
			}
		}
	}
	return out, nil
}

// FitTransform はFitとTransformを連続して実行する
func (m *MedianImputer) FitTransform(frame *dataset.Frame) (*dataset.Frame, error) {
	if err := m.Fit(frame); err != nil {
		return nil, err
	}
	return m.Transform(frame)
}

// median は欠損を除いた値の中央値を返す（偶数個の場合は中央2値の平均）
func median(values []dataset.Value) (float64, bool) {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if !v.Missing {
			xs = append(xs, v.Num)
		}
	}
	if len(xs) == 0 {
		return 0, false
	}
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2], true
	}
	return (xs[n/2-1] + xs[n/2]) / 2, true
}

// mode は最頻値を返す。同数の場合は辞書順で最小の値を選ぶ。
func mode(values []dataset.Value) (string, bool) {
	counts := make(map[string]int)
	for _, v := range values {
		if !v.Missing {
			counts[v.Str]++
		}
	}
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || n == bestN && k < best {
			best, bestN = k, n
		}
	}
	return best, bestN > 0
}
