package metrics

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/YuminosukeSato/robotdetect/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ROCPoint はROC曲線上の1点
type ROCPoint struct {
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
	Threshold float64 `json:"threshold"`
}

// MarshalJSON は無限大の閾値を null として書き出す
func (p ROCPoint) MarshalJSON() ([]byte, error) {
	var threshold *float64
	if !math.IsInf(p.Threshold, 0) {
		threshold = &p.Threshold
	}
	return json.Marshal(struct {
		FPR       float64  `json:"fpr"`
		TPR       float64  `json:"tpr"`
		Threshold *float64 `json:"threshold"`
	}{p.FPR, p.TPR, threshold})
}

// PRPoint は適合率-再現率曲線上の1点
type PRPoint struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Threshold float64 `json:"threshold"`
}

// thresholdStats はスコアの降順に、異なる閾値ごとの累積TP/FPを返す
func thresholdStats(yTrue, yScore *mat.VecDense) (thresholds []float64, tps, fps []int) {
	n := yTrue.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return yScore.AtVec(order[a]) > yScore.AtVec(order[b])
	})

	tp, fp := 0, 0
	for k, i := range order {
		if yTrue.AtVec(i) == 1 {
			tp++
		} else {
			fp++
		}
		// 同じスコアの最後の要素でのみ閾値を確定する
		if k == n-1 || yScore.AtVec(order[k+1]) != yScore.AtVec(i) {
			thresholds = append(thresholds, yScore.AtVec(i))
			tps = append(tps, tp)
			fps = append(fps, fp)
		}
	}
	return thresholds, tps, fps
}

// ROCCurve は受信者操作特性曲線を計算する
// 先頭は閾値+Infの(0,0)で、以降スコアの降順に異なる閾値ごとに1点を返す。
// 一方のクラスしか存在しない場合、対応する率は0になる。
func ROCCurve(yTrue, yScore *mat.VecDense) ([]ROCPoint, error) {
	if _, err := checkPair("ROCCurve", yTrue, yScore); err != nil {
		return nil, err
	}
	pos, err := checkBinary("ROCCurve", yTrue)
	if err != nil {
		return nil, err
	}
	neg := yTrue.Len() - pos

	thresholds, tps, fps := thresholdStats(yTrue, yScore)
	points := make([]ROCPoint, 0, len(thresholds)+1)
	points = append(points, ROCPoint{Threshold: math.Inf(1)})
	for k := range thresholds {
		points = append(points, ROCPoint{
			FPR:       errors.SafeDivide(float64(fps[k]), float64(neg)),
			TPR:       errors.SafeDivide(float64(tps[k]), float64(pos)),
			Threshold: thresholds[k],
		})
	}
	return points, nil
}

// AUC はROC曲線下面積を台形則で計算する
// 同点のスコアは対角線で結ばれるため、全て同点なら0.5になる。
// 正例または負例が存在しない場合は未定義で、警告を出して0.5を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	if _, err := checkPair("AUC", yTrue, yScore); err != nil {
		return 0, err
	}
	pos, err := checkBinary("AUC", yTrue)
	if err != nil {
		return 0, err
	}
	if pos == 0 || pos == yTrue.Len() {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	points, err := ROCCurve(yTrue, yScore)
	if err != nil {
		return 0, err
	}
	return trapezoid(points), nil
}

func trapezoid(points []ROCPoint) float64 {
	area := 0.0
	for k := 1; k < len(points); k++ {
		area += (points[k].FPR - points[k-1].FPR) * (points[k].TPR + points[k-1].TPR) / 2
	}
	return area
}

// AUCMatrix は行列形式の入力（1列目を使用）に対してAUCを計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	s, err := firstColumn("AUCMatrix", yScore)
	if err != nil {
		return 0, err
	}
	return AUC(t, s)
}

// PrecisionRecallCurve は適合率-再現率曲線を計算する
// 閾値の降順（再現率の昇順）に並ぶ。
func PrecisionRecallCurve(yTrue, yScore *mat.VecDense) ([]PRPoint, error) {
	if _, err := checkPair("PrecisionRecallCurve", yTrue, yScore); err != nil {
		return nil, err
	}
	pos, err := checkBinary("PrecisionRecallCurve", yTrue)
	if err != nil {
		return nil, err
	}

	thresholds, tps, fps := thresholdStats(yTrue, yScore)
	points := make([]PRPoint, len(thresholds))
	for k := range thresholds {
		points[k] = PRPoint{
			Precision: errors.SafeDivide(float64(tps[k]), float64(tps[k]+fps[k])),
			Recall:    errors.SafeDivide(float64(tps[k]), float64(pos)),
			Threshold: thresholds[k],
		}
	}
	return points, nil
}

// AveragePrecision は平均適合率（PR-AUC）を計算する
// AP = Σ (R_k - R_{k-1}) P_k 。補間は行わない。
// 正例が存在しない場合は警告を出して0を返す。
func AveragePrecision(yTrue, yScore *mat.VecDense) (float64, error) {
	points, err := PrecisionRecallCurve(yTrue, yScore)
	if err != nil {
		return 0, err
	}
	pos, _ := checkBinary("AveragePrecision", yTrue)
	if pos == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("average_precision", "no positive samples in y_true", 0))
		return 0, nil
	}

	ap, prevRecall := 0.0, 0.0
	for _, p := range points {
		ap += (p.Recall - prevRecall) * p.Precision
		prevRecall = p.Recall
	}
	return ap, nil
}
