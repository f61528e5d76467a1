// Package metrics は分類器の評価指標を提供する。
// 入力は gonum の *mat.VecDense で、空入力には ValueError、長さの不一致には DimensionError を返す。
package metrics

import (
	"fmt"
	"math"
	"strings"

	"github.com/YuminosukeSato/robotdetect/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Accuracy は正解率を計算する（多クラスのラベルにも対応）
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 1 - Accuracy を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// logLossEps は log(0) を避けるための確率のクリップ幅
const logLossEps = 1e-15

// BinaryLogLoss は二値交差エントロピーの平均を計算する
// 予測確率は [eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if _, err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Confusion は二値分類の混同行列。行が正解、列が予測。
//
//	        pred 0   pred 1
//	true 0    TN       FP
//	true 1    FN       TP
type Confusion [2][2]int

// TN は真陰性の件数
func (c Confusion) TN() int { return c[0][0] }

// FP は偽陽性の件数
func (c Confusion) FP() int { return c[0][1] }

// FN は偽陰性の件数
func (c Confusion) FN() int { return c[1][0] }

// TP は真陽性の件数
func (c Confusion) TP() int { return c[1][1] }

// Total は全件数
func (c Confusion) Total() int { return c[0][0] + c[0][1] + c[1][0] + c[1][1] }

// ConfusionMatrix は0/1ラベルの混同行列を計算する
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (Confusion, error) {
	var c Confusion
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return c, err
	}
	if _, err := checkBinary("ConfusionMatrix", yTrue); err != nil {
		return c, err
	}
	if _, err := checkBinary("ConfusionMatrix", yPred); err != nil {
		return c, err
	}
	for i := 0; i < n; i++ {
		c[int(yTrue.AtVec(i))][int(yPred.AtVec(i))]++
	}
	return c, nil
}

// ClassScores はクラスごとの適合率・再現率・F1・サポート
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// Report は分類レポート（scikit-learn の classification_report 相当）
type Report struct {
	ClassNames  [2]string      `json:"class_names"`
	Classes     [2]ClassScores `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassScores    `json:"macro_avg"`
	WeightedAvg ClassScores    `json:"weighted_avg"`
}

// ClassificationReport はクラス0/1それぞれの指標と平均を計算する
// 分母が0になる指標は0とし、UndefinedMetricWarning を出す。
func ClassificationReport(yTrue, yPred *mat.VecDense, classNames [2]string) (*Report, error) {
	c, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r := &Report{ClassNames: classNames}
	total := c.Total()

	for k := 0; k < 2; k++ {
		tp := c[k][k]
		predicted := c[0][k] + c[1][k]
		actual := c[k][0] + c[k][1]

		if predicted == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples for class "+classNames[k], 0))
		}
		if actual == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples for class "+classNames[k], 0))
		}
		p := errors.SafeDivide(float64(tp), float64(predicted))
		rc := errors.SafeDivide(float64(tp), float64(actual))
		r.Classes[k] = ClassScores{
			Precision: p,
			Recall:    rc,
			F1:        errors.SafeDivide(2*p*rc, p+rc),
			Support:   actual,
		}
	}

	r.Accuracy = float64(c.TP()+c.TN()) / float64(total)
	for k := 0; k < 2; k++ {
		s := r.Classes[k]
		w := float64(s.Support) / float64(total)
		r.MacroAvg.Precision += s.Precision / 2
		r.MacroAvg.Recall += s.Recall / 2
		r.MacroAvg.F1 += s.F1 / 2
		r.WeightedAvg.Precision += s.Precision * w
		r.WeightedAvg.Recall += s.Recall * w
		r.WeightedAvg.F1 += s.F1 * w
	}
	r.MacroAvg.Support = total
	r.WeightedAvg.Support = total
	return r, nil
}

// String はテキスト形式のレポートを返す
func (r *Report) String() string {
	width := len("weighted avg")
	for _, n := range r.ClassNames {
		if len(n) > width {
			width = len(n)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for k, s := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, r.ClassNames[k], s.Precision, s.Recall, s.F1, s.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	for _, row := range []struct {
		name string
		s    ClassScores
	}{{"macro avg", r.MacroAvg}, {"weighted avg", r.WeightedAvg}} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, row.name, row.s.Precision, row.s.Recall, row.s.F1, row.s.Support)
	}
	return b.String()
}
