// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// アノテーションパイプラインの各段階で発生する致命的なエラーを型として定義し、
// 問題のある数量（遺伝子数、細胞数、ファイル名など）を構造化して保持します。
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
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("celltypist-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
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

// ConvergenceWarning は最適化アルゴリズムが収束しなかった場合に発生する警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter.", w.Algorithm, w.Iterations)
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

// ===========================================================================
//
//	パイプラインのエラー型
//
// ===========================================================================

// InputFormatError はサポートされていない、または壊れた入力の場合のエラーです。
type InputFormatError struct {
	Source string // ファイル名、または "matrix" などの入力の識別子
	Reason string
}

func (e *InputFormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("celltypist: invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("celltypist: invalid input %q: %s", e.Source, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InputFormatError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Str("reason", e.Reason).
		Str("type", "InputFormatError")
}

// NewInputFormatError は新しいInputFormatErrorを作成し、スタックトレースを付与します。
func NewInputFormatError(source, reason string) error {
	return errors.WithStack(&InputFormatError{Source: source, Reason: reason})
}

// NewInputFormatErrorf はフォーマット文字列から理由を組み立てます。
func NewInputFormatErrorf(source, format string, args ...interface{}) error {
	return errors.WithStack(&InputFormatError{Source: source, Reason: fmt.Sprintf(format, args...)})
}

// DimensionMismatchError は付随するメタデータの長さが行列の次元と一致しない場合のエラーです。
type DimensionMismatchError struct {
	Op       string
	What     string // "genes", "cells" など
	Source   string // 付随ファイル名（任意）
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("celltypist: %s: the number of %s in %s (%d) does not match the matrix (%d)",
			e.Op, e.What, e.Source, e.Got, e.Expected)
	}
	return fmt.Sprintf("celltypist: %s: the number of %s (%d) does not match the matrix (%d)",
		e.Op, e.What, e.Got, e.Expected)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("what", e.What).
		Str("source", e.Source).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("type", "DimensionMismatchError")
}

// NewDimensionMismatchError は新しいDimensionMismatchErrorを作成し、スタックトレースを付与します。
func NewDimensionMismatchError(op, what, source string, expected, got int) error {
	return errors.WithStack(&DimensionMismatchError{Op: op, What: what, Source: source, Expected: expected, Got: got})
}

// FeatureMismatchError はモデルと入力の遺伝子が一つも重ならない場合のエラーです。
type FeatureMismatchError struct {
	ModelFeatures int
	InputFeatures int
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("celltypist: no features overlap between the model (%d genes) and the input (%d genes)",
		e.ModelFeatures, e.InputFeatures)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FeatureMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("model_features", e.ModelFeatures).
		Int("input_features", e.InputFeatures).
		Str("type", "FeatureMismatchError")
}

// NewFeatureMismatchError は新しいFeatureMismatchErrorを作成し、スタックトレースを付与します。
func NewFeatureMismatchError(modelFeatures, inputFeatures int) error {
	return errors.WithStack(&FeatureMismatchError{ModelFeatures: modelFeatures, InputFeatures: inputFeatures})
}

// InvalidModelError は壊れた、または不整合なモデルパラメータの場合のエラーです。
type InvalidModelError struct {
	Field  string
	Reason string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("celltypist: invalid model: %s: %s", e.Field, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "InvalidModelError")
}

// NewInvalidModelError は新しいInvalidModelErrorを作成し、スタックトレースを付与します。
func NewInvalidModelError(field, format string, args ...interface{}) error {
	return errors.WithStack(&InvalidModelError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// LengthMismatchError はラベルやパーティションのベクトル長が一致しない場合のエラーです。
type LengthMismatchError struct {
	Op     string
	Left   string
	Right  string
	NLeft  int
	NRight int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("celltypist: %s: length of %s (%d) does not match length of %s (%d)",
		e.Op, e.Left, e.NLeft, e.Right, e.NRight)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *LengthMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("left", e.Left).
		Int("n_left", e.NLeft).
		Str("right", e.Right).
		Int("n_right", e.NRight).
		Str("type", "LengthMismatchError")
}

// NewLengthMismatchError は新しいLengthMismatchErrorを作成し、スタックトレースを付与します。
func NewLengthMismatchError(op, left string, nLeft int, right string, nRight int) error {
	return errors.WithStack(&LengthMismatchError{Op: op, Left: left, NLeft: nLeft, Right: right, NRight: nRight})
}

// InsufficientDataError は要求された処理に対してサンプル数が足りない場合のエラーです。
type InsufficientDataError struct {
	Op        string
	Required  int
	Available int
	Hint      string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("celltypist: %s: %d cells available, %d required", e.Op, e.Available, e.Required)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("required", e.Required).
		Int("available", e.Available).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError は新しいInsufficientDataErrorを作成し、スタックトレースを付与します。
func NewInsufficientDataError(op string, required, available int, hint string) error {
	return errors.WithStack(&InsufficientDataError{Op: op, Required: required, Available: available, Hint: hint})
}

// InsufficientFeaturesError は要求された特徴量数が利用可能な数以上の場合のエラーです。
type InsufficientFeaturesError struct {
	Op        string
	Requested int
	Available int
}

func (e *InsufficientFeaturesError) Error() string {
	return fmt.Sprintf("celltypist: %s: the number of genes (%d) is not larger than the requested top genes (%d)",
		e.Op, e.Available, e.Requested)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientFeaturesError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("requested", e.Requested).
		Int("available", e.Available).
		Str("type", "InsufficientFeaturesError")
}

// NewInsufficientFeaturesError は新しいInsufficientFeaturesErrorを作成し、スタックトレースを付与します。
func NewInsufficientFeaturesError(op string, requested, available int) error {
	return errors.WithStack(&InsufficientFeaturesError{Op: op, Requested: requested, Available: available})
}

// MissingArgumentError は必須の付随データ（遺伝子名、ラベルなど）が無い場合のエラーです。
type MissingArgumentError struct {
	Op       string
	Argument string
	Reason   string
}

func (e *MissingArgumentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("celltypist: %s: missing %s: %s", e.Op, e.Argument, e.Reason)
	}
	return fmt.Sprintf("celltypist: %s: missing %s", e.Op, e.Argument)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingArgumentError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("argument", e.Argument).
		Str("type", "MissingArgumentError")
}

// NewMissingArgumentError は新しいMissingArgumentErrorを作成し、スタックトレースを付与します。
func NewMissingArgumentError(op, argument, reason string) error {
	return errors.WithStack(&MissingArgumentError{Op: op, Argument: argument, Reason: reason})
}

// ===========================================================================
//
//	推定器レイヤーのエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("celltypist: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
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

// DimensionError は推定器に渡された行列の次元が期待値と異なる場合のエラーです。
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
	return fmt.Sprintf("celltypist: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
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
	return fmt.Sprintf("celltypist: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
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

// GetSafeDetails はcockroachdb/errorsが保持する安全な詳細（スタックトレースなど）を返します。
func GetSafeDetails(err error) []string {
	return errors.GetSafeDetails(err).SafeDetails
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
