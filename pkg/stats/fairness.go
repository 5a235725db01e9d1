// Package stats 提供排班统计分析功能
package stats

import "math"

// Distribution 一组计数的分布
type Distribution struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Describe 计算分布（总体方差）
func Describe(values []float64) Distribution {
	d := Distribution{Count: len(values)}
	if len(values) == 0 {
		return d
	}
	d.Mean = Mean(values)
	d.Variance = Variance(values, d.Mean)
	d.StdDev = math.Sqrt(d.Variance)
	d.Min, d.Max = values[0], values[0]
	for _, v := range values[1:] {
		d.Min = math.Min(d.Min, v)
		d.Max = math.Max(d.Max, v)
	}
	return d
}

// Mean 平均值
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance 总体方差
func Variance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

// Balance 均衡度：1 - min(1, 标准差/(均值+1))，越接近 1 越均衡
func Balance(values []float64) float64 {
	if len(values) == 0 {
		return 1
	}
	d := Describe(values)
	return 1 - math.Min(1, d.StdDev/(d.Mean+1))
}

// Floats 把整数计数转换为浮点
func Floats(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
