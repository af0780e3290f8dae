package stats

import (
	"math"
	"sort"

	"github.com/paiban/courierplan/pkg/allocator/result"
	"github.com/paiban/courierplan/pkg/model"
)

// Delivery 单个订单的配送信息（用于统计分析）
type Delivery struct {
	OrderID   string         `json:"order_id"`
	CourierID string         `json:"courier_id"`
	Priority  model.Priority `json:"priority"`
	Minutes   float64        `json:"minutes"`
	Value     float64        `json:"value"`
}

// FromSolution 转换分配方案
func FromSolution(sol *result.Solution) []Delivery {
	out := make([]Delivery, 0, len(sol.Allocations))
	for _, a := range sol.Allocations {
		out = append(out, Delivery{
			OrderID:   a.OrderID,
			CourierID: a.CourierID,
			Priority:  a.Priority,
			Minutes:   a.DeliveryMinutes,
			Value:     a.Value,
		})
	}
	return out
}

// CourierStat 骑手统计
type CourierStat struct {
	CourierID    string   `json:"courier_id" yaml:"courier_id"`
	Orders       int      `json:"orders" yaml:"orders"`
	TotalMinutes float64  `json:"total_minutes" yaml:"total_minutes"`
	TotalValue   float64  `json:"total_value" yaml:"total_value"`
	OrderIDs     []string `json:"order_ids" yaml:"order_ids"`
}

// Utilization 骑手利用率
type Utilization struct {
	Used      int     `json:"used" yaml:"used"`
	Available int     `json:"available" yaml:"available"`
	Rate      float64 `json:"rate" yaml:"rate"`

	// 以下按已使用骑手统计
	MeanOrders   float64 `json:"mean_orders" yaml:"mean_orders"`
	MaxOrders    int     `json:"max_orders" yaml:"max_orders"`
	MinOrders    int     `json:"min_orders" yaml:"min_orders"`
	StdDevOrders float64 `json:"std_dev_orders" yaml:"std_dev_orders"`

	// WorkloadGini 配送时长基尼系数 (0=完全均衡, 1=完全集中)
	WorkloadGini float64       `json:"workload_gini" yaml:"workload_gini"`
	Couriers     []CourierStat `json:"couriers" yaml:"couriers"`
}

// AnalyzeUtilization 统计骑手利用率
func AnalyzeUtilization(deliveries []Delivery, available int) *Utilization {
	statMap := make(map[string]*CourierStat)
	for _, d := range deliveries {
		stat, ok := statMap[d.CourierID]
		if !ok {
			stat = &CourierStat{CourierID: d.CourierID}
			statMap[d.CourierID] = stat
		}
		stat.Orders++
		stat.TotalMinutes += d.Minutes
		stat.TotalValue += d.Value
		stat.OrderIDs = append(stat.OrderIDs, d.OrderID)
	}

	stats := make([]CourierStat, 0, len(statMap))
	for _, s := range statMap {
		stats = append(stats, *s)
	}
	// 按单量降序，单量相同按 ID
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Orders != stats[j].Orders {
			return stats[i].Orders > stats[j].Orders
		}
		return stats[i].CourierID < stats[j].CourierID
	})

	u := &Utilization{Used: len(stats), Available: available, Couriers: stats}
	if available > 0 {
		u.Rate = float64(u.Used) / float64(available)
	}
	if len(stats) == 0 {
		return u
	}

	orders := make([]float64, len(stats))
	workload := make([]float64, len(stats))
	for i, s := range stats {
		orders[i] = float64(s.Orders)
		workload[i] = s.TotalMinutes
	}
	u.MeanOrders = mean(orders)
	u.StdDevOrders = math.Sqrt(variance(orders, u.MeanOrders))
	maxOrders, minOrders := valueRange(orders)
	u.MaxOrders, u.MinOrders = int(maxOrders), int(minOrders)
	u.WorkloadGini = gini(workload)
	return u
}

// gini 计算基尼系数
func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	g := 0.0
	for i, v := range sorted {
		g += (2*float64(i+1) - float64(n) - 1) * v
	}
	g = g / (float64(n) * sum)
	return math.Max(0, math.Min(1, g))
}
