package result

import (
	"context"
	"math"
	"testing"

	"github.com/paiban/courierplan/pkg/allocator/cost"
	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/solver"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

func exampleModel(t *testing.T) *problem.Model {
	t.Helper()
	couriers := []model.Courier{
		{ID: "C1", Capacity: 2, SpeedKmh: 30},
		{ID: "C2", Capacity: 1, SpeedKmh: 30},
	}
	orders := []model.Order{
		{ID: "A", Restaurant: "Cantina", Priority: model.PriorityExpress, Value: 40},
		{ID: "B", Restaurant: "Cantina", Priority: model.PriorityPriority, Value: 25},
		{ID: "C", Restaurant: "Bistro", Priority: model.PriorityNormal, Value: 60},
	}
	est := cost.NewTableEstimator(map[string]map[string]float64{
		"C1": {"A": 20, "B": 22, "C": 30},
		"C2": {"A": 25, "B": 27, "C": 18},
	})
	m, err := problem.Build(context.Background(), couriers, orders, est, problem.Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

func outcome(status solver.Status, assign []int) *solver.Outcome {
	return &solver.Outcome{Backend: "test", Status: status, Assignment: assign, Optimal: status == solver.StatusOptimal}
}

func TestExtract_WorkedExample(t *testing.T) {
	m := exampleModel(t)
	out, err := solver.NewFlowSolver(solver.Options{}).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	sol, err := Extract(m, out)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if sol.Allocated != 3 || sol.Total != 3 {
		t.Errorf("allocated = %d/%d, want 3/3", sol.Allocated, sol.Total)
	}
	if sol.CouriersUsed != 2 {
		t.Errorf("CouriersUsed = %d, want 2", sol.CouriersUsed)
	}
	if math.Abs(sol.TotalMinutes-60) > 1e-9 {
		t.Errorf("TotalMinutes = %v, want 60", sol.TotalMinutes)
	}
	if math.Abs(sol.MeanMinutes-20) > 1e-9 {
		t.Errorf("MeanMinutes = %v, want 20", sol.MeanMinutes)
	}

	// 目标值等于各订单优先级乘以实际时长之和
	weighted := 0.0
	for _, a := range sol.Allocations {
		weighted += a.Priority.Weight() * a.DeliveryMinutes
	}
	if math.Abs(weighted-sol.Objective) > 1e-9 {
		t.Errorf("weighted sum = %v, objective = %v", weighted, sol.Objective)
	}

	groups := sol.ByCourier()
	if len(groups["C1"]) != 2 || len(groups["C2"]) != 1 || groups["C2"][0].OrderID != "C" {
		t.Errorf("ByCourier() = %v", groups)
	}
	if sol.Status != solver.StatusExtracted || !sol.Optimal {
		t.Errorf("Status = %s, Optimal = %v", sol.Status, sol.Optimal)
	}
	if sol.ExitStatus() != ExitSuccess {
		t.Errorf("ExitStatus() = %s, want success", sol.ExitStatus())
	}
	if len(sol.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", sol.Warnings)
	}

	// 已提取的结果不能再次提取
	if _, err := Extract(m, out); !apperrors.Is(err, apperrors.CodeInternalConsistency) {
		t.Errorf("second Extract(): expected INTERNAL_CONSISTENCY, got %v", err)
	}
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name     string
		outcome  *solver.Outcome
		wantCode apperrors.Code
	}{
		{"最优解缺少分配", outcome(solver.StatusOptimal, []int{0, -1, 1}), apperrors.CodeMissingAllocation},
		{"最优解超出运力", outcome(solver.StatusOptimal, []int{1, 1, 0}), apperrors.CodeInternalConsistency},
		{"分配长度不一致", outcome(solver.StatusOptimal, []int{0, 0}), apperrors.CodeInternalConsistency},
		{"不可行结果", &solver.Outcome{Status: solver.StatusInfeasible, Family: apperrors.FamilyCapacity}, apperrors.CodeInfeasible},
		{"无界结果", outcome(solver.StatusUnbounded, nil), apperrors.CodeUnbounded},
		{"超时且无候选解", outcome(solver.StatusTimedOut, nil), apperrors.CodeTimeout},
		{"未提交的结果", outcome(solver.StatusBuilt, nil), apperrors.CodeInternalConsistency},
		{"空结果", nil, apperrors.CodeInternalConsistency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(exampleModel(t), tt.outcome)
			if !apperrors.Is(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestExtract_TimedOutPartial(t *testing.T) {
	m := exampleModel(t)
	out := outcome(solver.StatusTimedOut, []int{0, -1, 1})
	out.Objective = m.Objective(out.Assignment)

	sol, err := Extract(m, out)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if sol.Optimal {
		t.Error("timed out solution must be labeled non-optimal")
	}
	if sol.Allocated != 2 || sol.Total != 3 {
		t.Errorf("allocated = %d/%d, want 2/3", sol.Allocated, sol.Total)
	}
	if sol.ExitStatus() != ExitPartial {
		t.Errorf("ExitStatus() = %s, want partial", sol.ExitStatus())
	}
	if len(sol.Warnings) != 2 {
		t.Errorf("Warnings = %v, want non-optimal and under-allocation", sol.Warnings)
	}
	// 平均值按订单总数计算
	if math.Abs(sol.MeanMinutes-(20+18)/3.0) > 1e-9 {
		t.Errorf("MeanMinutes = %v", sol.MeanMinutes)
	}
}

func TestSolution_ExitStatus(t *testing.T) {
	tests := []struct {
		name      string
		allocated int
		total     int
		want      ExitStatus
	}{
		{"全部分配", 5, 5, ExitSuccess},
		{"部分分配", 3, 5, ExitPartial},
		{"无分配", 0, 5, ExitFailure},
		{"空订单", 0, 0, ExitSuccess},
	}
	for _, tt := range tests {
		s := &Solution{Allocated: tt.allocated, Total: tt.total}
		if got := s.ExitStatus(); got != tt.want {
			t.Errorf("%s: ExitStatus() = %s, want %s", tt.name, got, tt.want)
		}
	}
}
