package stats

import (
	"math"
	"testing"

	"github.com/paiban/courierplan/pkg/allocator/result"
	"github.com/paiban/courierplan/pkg/model"
)

func sampleDeliveries() []Delivery {
	return []Delivery{
		{OrderID: "P1", CourierID: "E1", Priority: model.PriorityExpress, Minutes: 20, Value: 40},
		{OrderID: "P2", CourierID: "E1", Priority: model.PriorityNormal, Minutes: 35, Value: 30},
		{OrderID: "P3", CourierID: "E2", Priority: model.PriorityExpress, Minutes: 50, Value: 60},
		{OrderID: "P4", CourierID: "E2", Priority: model.PriorityPriority, Minutes: 70, Value: 25},
		{OrderID: "P5", CourierID: "E1", Priority: model.PriorityNormal, Minutes: 95, Value: 45},
	}
}

func TestAnalyzeDistribution(t *testing.T) {
	dist := AnalyzeDistribution(sampleDeliveries())

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"mean", dist.Mean, 54},
		{"median", dist.Median, 50},
		{"min", dist.Min, 20},
		{"max", dist.Max, 95},
		{"q25", dist.Q25, 35},
		{"q75", dist.Q75, 70},
		// 总体标准差
		{"std", dist.StdDev, math.Sqrt(694)},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	wantBands := map[string]int{"very_fast": 1, "fast": 1, "normal": 1, "slow": 1, "very_slow": 1}
	for _, b := range dist.Bands {
		if b.Count != wantBands[b.Name] {
			t.Errorf("band %s = %d, want %d", b.Name, b.Count, wantBands[b.Name])
		}
	}
}

func TestAnalyzeDistribution_BandEdges(t *testing.T) {
	dist := AnalyzeDistribution([]Delivery{{Minutes: 30}, {Minutes: 45}, {Minutes: 30.5}, {Minutes: 90}, {Minutes: 0}})
	want := []int{2, 2, 0, 1, 0}
	for i, b := range dist.Bands {
		if b.Count != want[i] {
			t.Errorf("band %s = %d, want %d", b.Name, b.Count, want[i])
		}
	}
}

func TestAnalyzeDistribution_Empty(t *testing.T) {
	dist := AnalyzeDistribution(nil)
	if dist.Count != 0 || dist.Mean != 0 || len(dist.Bands) != len(DefaultBands) {
		t.Errorf("empty distribution = %+v", dist)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{25, 1.75},
		{50, 2.5},
		{75, 3.25},
		{100, 4},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestAnalyzeUtilization(t *testing.T) {
	u := AnalyzeUtilization(sampleDeliveries(), 4)

	if u.Used != 2 || u.Available != 4 || u.Rate != 0.5 {
		t.Errorf("used/available/rate = %d/%d/%v", u.Used, u.Available, u.Rate)
	}
	if u.MaxOrders != 3 || u.MinOrders != 2 || u.MeanOrders != 2.5 {
		t.Errorf("orders max/min/mean = %d/%d/%v", u.MaxOrders, u.MinOrders, u.MeanOrders)
	}
	if math.Abs(u.StdDevOrders-0.5) > 1e-9 {
		t.Errorf("StdDevOrders = %v, want 0.5", u.StdDevOrders)
	}
	if u.Couriers[0].CourierID != "E1" || u.Couriers[0].TotalMinutes != 150 || u.Couriers[0].TotalValue != 115 {
		t.Errorf("first courier = %+v", u.Couriers[0])
	}
	if u.WorkloadGini <= 0 || u.WorkloadGini >= 1 {
		t.Errorf("WorkloadGini = %v, want in (0,1)", u.WorkloadGini)
	}

	empty := AnalyzeUtilization(nil, 0)
	if empty.Used != 0 || empty.Rate != 0 {
		t.Errorf("empty utilization = %+v", empty)
	}
}

func TestGini(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"完全均衡", []float64{10, 10, 10}, 0},
		{"全部为零", []float64{0, 0}, 0},
		{"两人一多一少", []float64{0, 10}, 0.5},
	}
	for _, tt := range tests {
		if got := gini(tt.values); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: gini = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAnalyzePriorities(t *testing.T) {
	stats := AnalyzePriorities(sampleDeliveries())
	if len(stats) != 3 {
		t.Fatalf("priorities = %d, want 3", len(stats))
	}
	if stats[0].Priority != model.PriorityExpress {
		t.Errorf("first priority = %v, want Express", stats[0].Priority)
	}

	express := stats[0]
	if express.Count != 2 || express.MeanMinutes != 35 || express.MinMinutes != 20 || express.MaxMinutes != 50 {
		t.Errorf("express = %+v", express)
	}
	if express.TotalValue != 100 || express.MeanValue != 50 {
		t.Errorf("express value = %v/%v", express.TotalValue, express.MeanValue)
	}
}

func TestFromSolution(t *testing.T) {
	sol := &result.Solution{Allocations: []result.Allocation{
		{OrderID: "P1", CourierID: "E1", Priority: model.PriorityNormal, DeliveryMinutes: 12, Value: 9},
	}}
	got := FromSolution(sol)
	if len(got) != 1 || got[0].Minutes != 12 || got[0].CourierID != "E1" {
		t.Errorf("FromSolution() = %+v", got)
	}

	analysis := Analyze(got, 3)
	if analysis.Utilization.Used != 1 || analysis.Distribution.Count != 1 || len(analysis.Priorities) != 1 {
		t.Errorf("Analyze() = %+v", analysis)
	}
}
