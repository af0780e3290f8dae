// Package model 定义分配引擎的核心数据模型
package model

import (
	"math"
	"strings"
)

// Location 地理位置
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Distance 计算两个位置之间的距离（公里）
// 使用 Haversine 公式
func (l Location) Distance(other Location) float64 {
	const earthRadius = 6371.0 // 地球半径（公里）

	lat1Rad := l.Latitude * math.Pi / 180
	lat2Rad := other.Latitude * math.Pi / 180
	deltaLat := (other.Latitude - l.Latitude) * math.Pi / 180
	deltaLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// NormalizeLocationKey 规范化位置键（CEP），去除空白和连字符
func NormalizeLocationKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, ".", "")
	return key
}

// isBadNumber 检查数值是否为 NaN 或 Inf
func isBadNumber(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
