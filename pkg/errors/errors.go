// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// データ準備・探索・学習の各段階で発生するエラーを構造化された型として表現し、
// cockroachdb/errors によるスタックトレースと zerolog への構造化出力をサポートします。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("robotdetect-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は早期終了が一度も改善を観測できなかった場合などに発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// DataLeakageWarning は前処理の統計量が評価用データを含んで計算された場合の警告です。
// 分割前の中央値補完がこれに該当します。
type DataLeakageWarning struct {
	Step   string
	Reason string
}

func (w *DataLeakageWarning) Error() string {
	return fmt.Sprintf("possible test-set leakage in %s: %s", w.Step, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataLeakageWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("step", w.Step).
		Str("reason", w.Reason).
		Str("type", "DataLeakageWarning")
}

// NewDataLeakageWarning は新しいDataLeakageWarningを作成します。
func NewDataLeakageWarning(step, reason string) *DataLeakageWarning {
	return &DataLeakageWarning{Step: step, Reason: reason}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	パイプライン固有のエラー型
//
// ===========================================================================

// DataError は入力データがモデリングに使えない場合のエラーです。
// 目的変数列の欠落、空のデータセット、全列・全行の除去などが該当します。
type DataError struct {
	Op     string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("robotdetect: %s: data error: %s", e.Op, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError は新しいDataErrorを作成し、スタックトレースを付与します。
func NewDataError(op, reason string) error {
	return errors.WithStack(&DataError{Op: op, Reason: reason})
}

// NewDataErrorf はフォーマット文字列からDataErrorを作成します。
func NewDataErrorf(op, format string, args ...interface{}) error {
	return errors.WithStack(&DataError{Op: op, Reason: fmt.Sprintf(format, args...)})
}

// InsufficientClassSamplesError は層化分割に必要なサンプル数がクラスに不足している場合のエラーです。
type InsufficientClassSamplesError struct {
	Class    float64
	Count    int
	Required int
	Reason   string
}

func (e *InsufficientClassSamplesError) Error() string {
	msg := fmt.Sprintf("robotdetect: stratified split impossible: class %v has %d member(s), need at least %d",
		e.Class, e.Count, e.Required)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientClassSamplesError) MarshalZerologObject(event *zerolog.Event) {
	event.Float64("class", e.Class).
		Int("count", e.Count).
		Int("required", e.Required).
		Str("reason", e.Reason).
		Str("type", "InsufficientClassSamplesError")
}

// NewInsufficientClassSamplesError は新しいInsufficientClassSamplesErrorを作成します。
func NewInsufficientClassSamplesError(class float64, count, required int, reason string) error {
	return errors.WithStack(&InsufficientClassSamplesError{
		Class: class, Count: count, Required: required, Reason: reason,
	})
}

// TrialFailedError は一つの試行（trial）の学習・評価が失敗した場合のエラーです。
// 探索全体は中断せず、呼び出し側がスコア0として記録します。
type TrialFailedError struct {
	Trial int
	Err   error
}

func (e *TrialFailedError) Error() string {
	return fmt.Sprintf("robotdetect: trial %d failed: %v", e.Trial, e.Err)
}

func (e *TrialFailedError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TrialFailedError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("trial", e.Trial).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "TrialFailedError")
}

// NewTrialFailedError は新しいTrialFailedErrorを作成し、スタックトレースを付与します。
func NewTrialFailedError(trial int, err error) error {
	return errors.WithStack(&TrialFailedError{Trial: trial, Err: err})
}

// ConfigurationDomainError はサンプルされたハイパーパラメータが宣言された定義域の外にある場合のエラーです。
// 探索空間の実装バグを意味するため致命的です。
type ConfigurationDomainError struct {
	Param string
	Value interface{}
	Low   interface{}
	High  interface{}
}

func (e *ConfigurationDomainError) Error() string {
	if e.Low == nil && e.High == nil {
		return fmt.Sprintf("robotdetect: hyperparameter '%s' value %v is outside its declared domain", e.Param, e.Value)
	}
	return fmt.Sprintf("robotdetect: hyperparameter '%s' value %v is outside [%v, %v]", e.Param, e.Value, e.Low, e.High)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationDomainError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param", e.Param).
		Interface("value", e.Value).
		Interface("low", e.Low).
		Interface("high", e.High).
		Str("type", "ConfigurationDomainError")
}

// NewConfigurationDomainError は新しいConfigurationDomainErrorを作成します。
func NewConfigurationDomainError(param string, value, low, high interface{}) error {
	return errors.WithStack(&ConfigurationDomainError{Param: param, Value: value, Low: low, High: high})
}

// ===========================================================================
//
//	汎用のエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("robotdetect: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("robotdetect: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("robotdetect: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("robotdetect: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError はモデルの学習・保存・読み込みに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("robotdetect: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("robotdetect: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// StackTrace はエラーに付与されたスタックトレースを文字列で返します。
// スタックが無い場合は空文字列を返します。
func StackTrace(err error) string {
	details := errors.GetSafeDetails(err).SafeDetails
	if len(details) > 0 {
		return details[0]
	}
	return ""
}

// IsTrialFailure はエラーがTrialFailedErrorを含むかどうかを判定します。
func IsTrialFailure(err error) bool {
	var tf *TrialFailedError
	return errors.As(err, &tf)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoTrials は一度も試行が完了していない場合のエラーです。
	ErrNoTrials = New("no completed trials")
)
