package preprocessing

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// StratifiedShuffleSplit は層化シャッフル分割
// クラス比率を保ったまま、行インデックスを学習用と評価用に分ける。
type StratifiedShuffleSplit struct {
	// TestFraction は評価用データの割合 (0, 1)
	TestFraction float64

	// Seed はPCG乱数のシード
	Seed uint64
}

// NewStratifiedShuffleSplit は新しいStratifiedShuffleSplitを作成する
func NewStratifiedShuffleSplit(testFraction float64, seed uint64) *StratifiedShuffleSplit {
	return &StratifiedShuffleSplit{TestFraction: testFraction, Seed: seed}
}

// Split はラベルyに対する学習用・評価用インデックスを返す
//
// 評価用の件数は ceil(n * TestFraction) で、各クラスへの配分は最大剰余法で決める。
// いずれかのクラスが2件未満、または学習用・評価用のどちらかが空になるクラスがある場合は
// InsufficientClassSamplesError を返す。同じ (Seed, TestFraction, y) に対して結果は常に同一。
func (s *StratifiedShuffleSplit) Split(y []float64) (train, test []int, err error) {
	if s.TestFraction <= 0 || s.TestFraction >= 1 {
		return nil, nil, errors.NewValidationError("test_fraction", "must be in (0, 1)", s.TestFraction)
	}
	n := len(y)
	if n == 0 {
		return nil, nil, errors.NewDataError("StratifiedShuffleSplit.Split", "no rows to split")
	}

	byClass := make(map[float64][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, nil, errors.NewInsufficientClassSamplesError(c, len(byClass[c]), 2, "")
		}
	}

	nTest := int(math.Ceil(s.TestFraction * float64(n)))
	if nTest >= n {
		return nil, nil, errors.NewValidationError("test_fraction", "leaves no training rows", s.TestFraction)
	}
	alloc := allocateLargestRemainder(classes, byClass, nTest, n)

	r := rand.New(rand.NewPCG(s.Seed, s.Seed))
	for k, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		if alloc[k] == 0 {
			return nil, nil, errors.NewInsufficientClassSamplesError(c, len(idx), 2, "test share would be empty")
		}
		if alloc[k] == len(idx) {
			return nil, nil, errors.NewInsufficientClassSamplesError(c, len(idx), alloc[k]+1, "train share would be empty")
		}
		r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:alloc[k]]...)
		train = append(train, idx[alloc[k]:]...)
	}

	r.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	r.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// allocateLargestRemainder は nTest を各クラスの比率で配分する。
// 剰余が同じ場合は件数の多いクラス、次にラベルの小さいクラスを優先する。
func allocateLargestRemainder(classes []float64, byClass map[float64][]int, nTest, n int) []int {
	alloc := make([]int, len(classes))
	rem := make([]float64, len(classes))
	assigned := 0
	for k, c := range classes {
		q := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[k] = int(math.Floor(q))
		rem[k] = q - float64(alloc[k])
		assigned += alloc[k]
	}

	order := make([]int, len(classes))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if rem[ka] != rem[kb] {
			return rem[ka] > rem[kb]
		}
		return len(byClass[classes[ka]]) > len(byClass[classes[kb]])
	})
	for i := 0; assigned < nTest; i = (i + 1) % len(order) {
		alloc[order[i]]++
		assigned++
	}
	return alloc
}
