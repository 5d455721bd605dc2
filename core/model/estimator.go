package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/propval/dataset"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor is the final stage of a pipeline.
type Regressor interface {
	Fitter
	Predictor
}

// FrameTransformer turns a named, mixed-kind frame into a numeric matrix.
// Supervised transformers learn from y during Fit; y is ignored otherwise.
type FrameTransformer interface {
	Fit(X *dataset.Frame, y []float64) error
	Transform(X *dataset.Frame) (*mat.Dense, error)
}
