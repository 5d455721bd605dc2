// Package errors はプロジェクト全体のエラーハンドリングを提供します。
// Every failure in the training pipeline and the model service surfaces as one
// of the typed errors below, each carrying a stack trace from
// cockroachdb/errors.
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Kind is the coarse category of a failure. The transport layer maps kinds to
// protocol status codes; the core only needs to produce them.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindConfig          Kind = "config"
	KindMalformed       Kind = "malformed_artifact"
	KindMissingFeatures Kind = "missing_features"
	KindInference       Kind = "inference"
	KindUnknown         Kind = "unknown"
)

// ===========================================================================
//
//	ドメインエラー型
//
// ===========================================================================

// NotFoundError は入力ファイルやアーティファクトが存在しない場合のエラーです。
type NotFoundError struct {
	Resource string // e.g. "training data", "model artifact"
	Location string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not found at %s: %v", e.Resource, e.Location, e.Err)
	}
	return fmt.Sprintf("%s not found at %s", e.Resource, e.Location)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("resource", e.Resource).
		Str("location", e.Location).
		Str("type", "NotFoundError")
}

// NewNotFoundError は新しいNotFoundErrorを作成し、スタックトレースを付与します。
func NewNotFoundError(resource, location string, cause error) error {
	return errors.WithStack(&NotFoundError{Resource: resource, Location: location, Err: cause})
}

// ValidationError は入力データやパラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation failed for '%s': %s", e.ParamName, e.Reason)
	}
	return fmt.Sprintf("validation failed for '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
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

// ConfigError reports an invalid or unsupported configuration. It is raised
// at construction time so that bad settings never reach a training run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration '%s': %s", e.Field, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "ConfigError")
}

// NewConfigError は新しいConfigErrorを作成し、スタックトレースを付与します。
func NewConfigError(field, reason string) error {
	return errors.WithStack(&ConfigError{Field: field, Reason: reason})
}

// NewConfigErrorf formats the reason.
func NewConfigErrorf(field, format string, args ...interface{}) error {
	return NewConfigError(field, fmt.Sprintf(format, args...))
}

// MalformedArtifactError は永続化されたアーティファクトが構造的に不正な場合のエラーです。
type MalformedArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed artifact %s: %s", e.Path, e.Reason)
}

func (e *MalformedArtifactError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MalformedArtifactError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("reason", e.Reason).
		Str("type", "MalformedArtifactError")
}

// NewMalformedArtifactError は新しいMalformedArtifactErrorを作成します。
func NewMalformedArtifactError(path, reason string, cause error) error {
	return errors.WithStack(&MalformedArtifactError{Path: path, Reason: reason, Err: cause})
}

// MissingFeaturesError は予測ペイロードにスキーマの特徴量が欠けている場合のエラーです。
type MissingFeaturesError struct {
	Missing []string // sorted
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("missing features in payload: %s", strings.Join(e.Missing, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingFeaturesError) MarshalZerologObject(event *zerolog.Event) {
	event.Strs("missing", e.Missing).
		Str("type", "MissingFeaturesError")
}

// NewMissingFeaturesError sorts the names so the message is stable.
func NewMissingFeaturesError(missing []string) error {
	names := make([]string, len(missing))
	copy(names, missing)
	sort.Strings(names)
	return errors.WithStack(&MissingFeaturesError{Missing: names})
}

// InferenceError は学習済みモデルの推論中に失敗した場合のエラーです。
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: inference failed: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// NewInferenceError は新しいInferenceErrorを作成し、スタックトレースを付与します。
func NewInferenceError(op string, cause error) error {
	return errors.WithStack(&InferenceError{Op: op, Err: cause})
}

// ===========================================================================
//
//	推定器のエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("%s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
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
	return fmt.Sprintf("%s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ===========================================================================
//
//	分類ヘルパー
//
// ===========================================================================

// KindOf returns the category of err, looking through wrapped errors.
// Estimator-level errors (dimension, value, not fitted) count as validation
// failures unless they were raised inside inference.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		missing    *MissingFeaturesError
		notFound   *NotFoundError
		malformed  *MalformedArtifactError
		inference  *InferenceError
		panicErr   *PanicError
		config     *ConfigError
		validation *ValidationError
		dimension  *DimensionError
		value      *ValueError
		notFitted  *NotFittedError
	)
	switch {
	case errors.As(err, &missing):
		return KindMissingFeatures
	case errors.As(err, &inference), errors.As(err, &panicErr):
		return KindInference
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &malformed):
		return KindMalformed
	case errors.As(err, &config):
		return KindConfig
	case errors.As(err, &validation), errors.As(err, &dimension),
		errors.As(err, &value), errors.As(err, &notFitted):
		return KindValidation
	}
	return KindUnknown
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConfig reports whether err is a configuration failure.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// IsMalformedArtifact reports whether err is a malformed-artifact failure.
func IsMalformedArtifact(err error) bool { return KindOf(err) == KindMalformed }

// IsMissingFeatures reports whether err is a missing-features failure.
func IsMissingFeatures(err error) bool { return KindOf(err) == KindMissingFeatures }

// IsInference reports whether err is an inference failure.
func IsInference(err error) bool { return KindOf(err) == KindInference }

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
