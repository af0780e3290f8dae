// Package stats 提供分配方案的统计分析功能
package stats

import (
	"math"
	"sort"
)

// Band 配送时长区间
type Band struct {
	Name  string  `json:"name" yaml:"name"`
	Lower float64 `json:"lower" yaml:"lower"` // 不含
	Upper float64 `json:"upper" yaml:"upper"` // 含，+Inf 表示无上限
}

// DefaultBands 默认时长区间（分钟）
var DefaultBands = []Band{
	{Name: "very_fast", Lower: math.Inf(-1), Upper: 30},
	{Name: "fast", Lower: 30, Upper: 45},
	{Name: "normal", Lower: 45, Upper: 60},
	{Name: "slow", Lower: 60, Upper: 90},
	{Name: "very_slow", Lower: 90, Upper: math.Inf(1)},
}

// BandCount 区间计数
type BandCount struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// Distribution 配送时长分布
type Distribution struct {
	Count  int         `json:"count" yaml:"count"`
	Mean   float64     `json:"mean" yaml:"mean"`
	Median float64     `json:"median" yaml:"median"`
	StdDev float64     `json:"std_dev" yaml:"std_dev"` // 总体标准差
	Min    float64     `json:"min" yaml:"min"`
	Max    float64     `json:"max" yaml:"max"`
	Q25    float64     `json:"q25" yaml:"q25"`
	Q75    float64     `json:"q75" yaml:"q75"`
	Bands  []BandCount `json:"bands" yaml:"bands"`
}

// AnalyzeDistribution 统计配送时长分布
func AnalyzeDistribution(deliveries []Delivery) *Distribution {
	minutes := make([]float64, len(deliveries))
	for i, d := range deliveries {
		minutes[i] = d.Minutes
	}
	return distributionOf(minutes, DefaultBands)
}

func distributionOf(values []float64, bands []Band) *Distribution {
	dist := &Distribution{Count: len(values), Bands: make([]BandCount, len(bands))}
	for i, b := range bands {
		dist.Bands[i].Name = b.Name
	}
	if len(values) == 0 {
		return dist
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	dist.Mean = mean(sorted)
	dist.StdDev = math.Sqrt(variance(sorted, dist.Mean))
	dist.Min, dist.Max = sorted[0], sorted[len(sorted)-1]
	dist.Median = percentile(sorted, 50)
	dist.Q25 = percentile(sorted, 25)
	dist.Q75 = percentile(sorted, 75)

	for _, v := range values {
		for i, b := range bands {
			if v > b.Lower && v <= b.Upper {
				dist.Bands[i].Count++
				break
			}
		}
	}
	return dist
}

// percentile 线性插值分位数，sorted 需已排序
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// mean 计算平均值
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance 计算方差
func variance(values []float64, mean float64) float64 {
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

// valueRange 计算极值
func valueRange(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}
