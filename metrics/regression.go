// Package metrics は回帰モデルの評価指標を提供する
package metrics

import (
	"math"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// Metric names of a Report.
const (
	MAEName  = "mae"
	MAPEName = "mape"
	RMSEName = "rmse"
)

// epsilon is the float64 machine epsilon used as the MAPE denominator floor.
const epsilon = 2.220446049250313e-16

// Report maps metric name to value. RegressionMetrics fills exactly mae,
// mape and rmse.
type Report map[string]float64

// RegressionMetrics computes MAE, MAPE and RMSE of yPred against yTrue.
//
// MAPE is a fraction, not a percentage, and uses max(|y|, eps) as the
// denominator so a zero true value yields a large but finite error.
func RegressionMetrics(yTrue, yPred []float64) (Report, error) {
	if err := check("RegressionMetrics", yTrue, yPred); err != nil {
		return nil, err
	}
	mae, _ := MAE(yTrue, yPred)
	mape, _ := MAPE(yTrue, yPred)
	rmse, _ := RMSE(yTrue, yPred)
	if err := errors.CheckNumericalStability("RegressionMetrics", []float64{mae, mape, rmse}, 0); err != nil {
		return nil, err
	}
	return Report{MAEName: mae, MAPEName: mape, RMSEName: rmse}, nil
}

func check(op string, yTrue, yPred []float64) error {
	n := len(yTrue)
	if n == 0 {
		return errors.NewValueError(op, "empty vector")
	}
	if len(yPred) != n {
		return errors.NewDimensionError(op, n, len(yPred), 0)
	}
	return nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred []float64) (float64, error) {
	if err := check("MSE", yTrue, yPred); err != nil {
		return 0, err
	}
	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sum += diff * diff
	}
	return sum / float64(len(yTrue)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred []float64) (float64, error) {
	if err := check("MAE", yTrue, yPred); err != nil {
		return 0, err
	}
	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue)), nil
}

// MAPE は平均絶対パーセンテージ誤差を比率として計算する
func MAPE(yTrue, yPred []float64) (float64, error) {
	if err := check("MAPE", yTrue, yPred); err != nil {
		return 0, err
	}
	// MAPE = (1/n) * Σ|yTrue - yPred| / max(|yTrue|, eps)
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i]-yPred[i]) / math.Max(math.Abs(yTrue[i]), epsilon)
	}
	return sum / float64(len(yTrue)), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred []float64) (float64, error) {
	if err := check("R2Score", yTrue, yPred); err != nil {
		return 0, err
	}
	n := len(yTrue)

	var yMean float64
	for _, v := range yTrue {
		yMean += v
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := range yTrue {
		tss += (yTrue[i] - yMean) * (yTrue[i] - yMean)
		rss += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
	}

	// 全変動が0の場合（すべてのyTrueが同じ値）
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}
