// Package errors はheartrisk全体のエラーハンドリングと警告システムを提供します。
// 推論サービスの失敗種別（入力不備・モデル未ロード・推論失敗・寄与度計算失敗）を
// 型として区別し、トランスポート層が単一の変換関数でステータスへ写像できるようにします。
package errors

import (
	"fmt"
	"log"
	"strings"
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
		log.Printf("heartrisk-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを差し替えます。
// テストで警告を捕捉したい場合などに使用します。
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（pkg/logから呼ばれます）。
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

// UndefinedMetricWarning は評価指標が定義できず、代替値で置き換えた場合の警告です。
// 例: 陽性予測が一件もない分割での適合率、単一クラスしか含まない分割でのAUC。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %g due to %s", w.Metric, w.Result, w.Condition)
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

// FoldFailedWarning は交差検証の一分割で学習が失敗し、集計から除外された場合の警告です。
type FoldFailedWarning struct {
	Fold int
	Err  error
}

func (w *FoldFailedWarning) Error() string {
	return fmt.Sprintf("fold %d failed and was excluded from aggregation: %v", w.Fold, w.Err)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *FoldFailedWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("fold", w.Fold).
		AnErr("cause", w.Err).
		Str("type", "FoldFailedWarning")
}

// NewFoldFailedWarning は新しいFoldFailedWarningを作成します。
func NewFoldFailedWarning(fold int, err error) *FoldFailedWarning {
	return &FoldFailedWarning{Fold: fold, Err: err}
}

// ===========================================================================
//
//	推論サービスのエラー分類
//
// ===========================================================================

// ValidationError は入力フィールドやパラメータの検証に失敗した場合のエラーです。
// Field は常に問題のあるフィールド名を保持します。
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// ReasonMissing は必須フィールドが欠落していることを表すReasonです。
const ReasonMissing = "missing required field"

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("heartrisk: validation failed for '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("heartrisk: validation failed for '%s': %s (got: %v)", e.Field, e.Reason, e.Value)
}

// Message はクライアントへ返す短いメッセージを返します。
func (e *ValidationError) Message() string {
	if e.Reason == ReasonMissing {
		return "Missing required field: " + e.Field
	}
	return fmt.Sprintf("Invalid field %s: %s", e.Field, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(field, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{Field: field, Reason: reason, Value: value})
}

// NewMissingFieldError は必須フィールド欠落のValidationErrorを作成します。
func NewMissingFieldError(field string) error {
	return errors.WithStack(&ValidationError{Field: field, Reason: ReasonMissing})
}

// ErrModelUnavailable は推論可能なモデルが存在しないことを表す番兵エラーです。
// ModelUnavailableError と ArtifactError はいずれもこれに一致します。
var ErrModelUnavailable = errors.New("model unavailable")

// ModelUnavailableError はモデルが未ロード、またはロードに失敗している状態で
// 推論要求を受けた場合のエラーです。
type ModelUnavailableError struct {
	Reason string
}

func (e *ModelUnavailableError) Error() string {
	if e.Reason == "" {
		return "heartrisk: model not loaded"
	}
	return "heartrisk: model not loaded: " + e.Reason
}

// Is は ErrModelUnavailable との比較を可能にします。
func (e *ModelUnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

// Message はクライアントへ返す短いメッセージを返します。
func (e *ModelUnavailableError) Message() string {
	return "Model not loaded. Train the model before serving predictions."
}

// NewModelUnavailableError は新しいModelUnavailableErrorを作成します。
func NewModelUnavailableError(reason string) error {
	return errors.WithStack(&ModelUnavailableError{Reason: reason})
}

// PredictionError は推論処理そのものが内部的に失敗した場合のエラーです。
type PredictionError struct {
	Op  string
	Err error
}

func (e *PredictionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("heartrisk: %s: prediction failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("heartrisk: %s: prediction failed", e.Op)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// Message はクライアントへ返す短いメッセージを返します。
func (e *PredictionError) Message() string {
	return "Prediction failed"
}

// NewPredictionError は新しいPredictionErrorを作成し、スタックトレースを付与します。
func NewPredictionError(op string, err error) error {
	return errors.WithStack(&PredictionError{Op: op, Err: err})
}

// AttributionError は寄与度（SHAP値）の計算に失敗した場合のエラーです。
// 推論結果の返却を妨げてはならないため、サービスはこれをレスポンスに埋め込みます。
type AttributionError struct {
	Err error
}

func (e *AttributionError) Error() string {
	return fmt.Sprintf("heartrisk: attribution failed: %v", e.Err)
}

func (e *AttributionError) Unwrap() error { return e.Err }

// NewAttributionError は新しいAttributionErrorを作成します。
func NewAttributionError(err error) error {
	return errors.WithStack(&AttributionError{Err: err})
}

// ErrArtifactNotFound はモデル成果物のファイルが存在しない場合のエラーです。
var ErrArtifactNotFound = errors.Mark(errors.New("model artifact not found"), ErrModelUnavailable)

// ArtifactError はモデル成果物が存在するものの、読み込めない・互換性がない場合のエラーです。
type ArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "heartrisk: artifact %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Is は ErrModelUnavailable との比較を可能にします。
func (e *ArtifactError) Is(target error) bool {
	return target == ErrModelUnavailable
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ArtifactError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("reason", e.Reason).
		AnErr("cause", e.Err).
		Str("type", "ArtifactError")
}

// NewArtifactError は新しいArtifactErrorを作成し、スタックトレースを付与します。
func NewArtifactError(path, reason string, err error) error {
	return errors.WithStack(&ArtifactError{Path: path, Reason: reason, Err: err})
}

// ===========================================================================
//
//	ライブラリ層のエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` などを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("heartrisk: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
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
	Axis     int // 0: 行, 1: 特徴量
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("heartrisk: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError は引数の値が不適切な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("heartrisk: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError はモデルの学習・構造に関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("heartrisk: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("heartrisk: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError は数値計算でNaNやInfが発生した場合のエラーです。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "gradient", "shap"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	parts := make([]string, 0, 6)
	for i, v := range e.Values {
		if i >= 5 {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%.6g", v))
	}
	return fmt.Sprintf("heartrisk: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, strings.Join(parts, ", "))
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration})
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

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
