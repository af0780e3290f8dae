package stats

import (
	"github.com/paiban/courierplan/pkg/model"
)

// PriorityStat 单个优先级的统计
type PriorityStat struct {
	Priority    model.Priority `json:"priority" yaml:"priority"`
	Name        string         `json:"name" yaml:"name"`
	Count       int            `json:"count" yaml:"count"`
	MeanMinutes float64        `json:"mean_minutes" yaml:"mean_minutes"`
	MinMinutes  float64        `json:"min_minutes" yaml:"min_minutes"`
	MaxMinutes  float64        `json:"max_minutes" yaml:"max_minutes"`
	MeanValue   float64        `json:"mean_value" yaml:"mean_value"`
	TotalValue  float64        `json:"total_value" yaml:"total_value"`
}

// AnalyzePriorities 按优先级统计，没有订单的优先级不出现
func AnalyzePriorities(deliveries []Delivery) []PriorityStat {
	minutes := make(map[model.Priority][]float64)
	values := make(map[model.Priority][]float64)
	for _, d := range deliveries {
		minutes[d.Priority] = append(minutes[d.Priority], d.Minutes)
		values[d.Priority] = append(values[d.Priority], d.Value)
	}

	var out []PriorityStat
	// 从高优先级到低优先级
	priorities := model.Priorities()
	for k := len(priorities) - 1; k >= 0; k-- {
		p := priorities[k]
		m := minutes[p]
		if len(m) == 0 {
			continue
		}
		maxMinutes, minMinutes := valueRange(m)
		stat := PriorityStat{
			Priority:    p,
			Name:        p.String(),
			Count:       len(m),
			MeanMinutes: mean(m),
			MinMinutes:  minMinutes,
			MaxMinutes:  maxMinutes,
			MeanValue:   mean(values[p]),
		}
		for _, v := range values[p] {
			stat.TotalValue += v
		}
		out = append(out, stat)
	}
	return out
}

// Analysis 全部分析
type Analysis struct {
	Distribution *Distribution  `json:"distribution" yaml:"distribution"`
	Utilization  *Utilization   `json:"utilization" yaml:"utilization"`
	Priorities   []PriorityStat `json:"priorities" yaml:"priorities"`
}

// Analyze 对分配方案执行全部分析
func Analyze(deliveries []Delivery, availableCouriers int) *Analysis {
	return &Analysis{
		Distribution: AnalyzeDistribution(deliveries),
		Utilization:  AnalyzeUtilization(deliveries, availableCouriers),
		Priorities:   AnalyzePriorities(deliveries),
	}
}
