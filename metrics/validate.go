package metrics

import (
	"github.com/YuminosukeSato/robotdetect/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary はラベルが0か1のみであることを確認する
func checkBinary(op string, y *mat.VecDense) (pos int, err error) {
	for i := 0; i < y.Len(); i++ {
		switch y.AtVec(i) {
		case 1:
			pos++
		case 0:
		default:
			return 0, errors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return pos, nil
}

// firstColumn は行列の1列目をベクトルとして取り出す
func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	if d, ok := m.(*mat.Dense); ok && d.IsEmpty() {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}
