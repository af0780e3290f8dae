package problem

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/paiban/courierplan/pkg/allocator/cost"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

func exampleInput() ([]model.Courier, []model.Order, cost.Estimator) {
	couriers := []model.Courier{
		{ID: "C1", Capacity: 2, SpeedKmh: 30},
		{ID: "C2", Capacity: 1, SpeedKmh: 30},
	}
	orders := []model.Order{
		{ID: "A", Priority: model.PriorityExpress, PrepMinutes: 10, CustomerLegMinutes: 5},
		{ID: "B", Priority: model.PriorityPriority, PrepMinutes: 10, CustomerLegMinutes: 5},
		{ID: "C", Priority: model.PriorityNormal, PrepMinutes: 10, CustomerLegMinutes: 5},
	}
	est := cost.NewTableEstimator(map[string]map[string]float64{
		"C1": {"A": 20, "B": 22, "C": 30},
		"C2": {"A": 25, "B": 27, "C": 18},
	})
	return couriers, orders, est
}

func TestBuild_Base(t *testing.T) {
	couriers, orders, est := exampleInput()
	m, err := Build(context.Background(), couriers, orders, est, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if m.Variant != VariantBase {
		t.Errorf("Variant = %s, want base", m.Variant)
	}
	if m.M() != 2 || m.N() != 3 {
		t.Fatalf("size = %dx%d, want 2x3", m.M(), m.N())
	}
	wantWeights := []float64{3, 2, 1}
	for j, w := range wantWeights {
		if m.Weights[j] != w {
			t.Errorf("weight[%d] = %v, want %v", j, m.Weights[j], w)
		}
	}
	if got := m.EdgeCost(0, 0); got != 60 {
		t.Errorf("EdgeCost(0,0) = %v, want 60", got)
	}
	if m.TotalCapacity() != 3 {
		t.Errorf("TotalCapacity() = %d, want 3", m.TotalCapacity())
	}
	if len(m.Edges()) != 6 {
		t.Errorf("Edges() = %d, want 6", len(m.Edges()))
	}
	if len(m.Unreachable) != 0 {
		t.Errorf("Unreachable = %v, want none", m.Unreachable)
	}
}

func TestBuild_Deadlines(t *testing.T) {
	couriers, orders, est := exampleInput()

	tests := []struct {
		name            string
		policy          DeadlinePolicy
		wantEdges       int
		wantUnreachable []int
	}{
		{"宽松时限不剪边", DeadlinePolicy{Express: 30, Priority: 45}, 6, nil},
		{"加急时限剪掉慢边", DeadlinePolicy{Express: 21, Priority: 45}, 5, nil},
		{"普通订单默认不约束", DeadlinePolicy{Express: 30, Priority: 45, Normal: 0}, 6, nil},
		{"普通软时限生效", DeadlinePolicy{Express: 30, Priority: 45, Normal: 20}, 5, nil},
		{"加急订单无骑手可达", DeadlinePolicy{Express: 15, Priority: 45}, 4, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := tt.policy
			m, err := Build(context.Background(), couriers, orders, est, Options{Deadlines: &policy})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if m.Variant != VariantDeadline {
				t.Errorf("Variant = %s, want deadline", m.Variant)
			}
			if got := len(m.Edges()); got != tt.wantEdges {
				t.Errorf("edges = %d, want %d", got, tt.wantEdges)
			}
			if len(m.Unreachable) != len(tt.wantUnreachable) {
				t.Fatalf("Unreachable = %v, want %v", m.Unreachable, tt.wantUnreachable)
			}
			for k := range tt.wantUnreachable {
				if m.Unreachable[k] != tt.wantUnreachable[k] {
					t.Errorf("Unreachable = %v, want %v", m.Unreachable, tt.wantUnreachable)
				}
			}
			if len(tt.wantUnreachable) > 0 && m.DiagnoseInfeasibility() != apperrors.FamilyDeadline {
				t.Errorf("family = %s, want deadline", m.DiagnoseInfeasibility())
			}
		})
	}

	// 修改调用方的策略不影响已构建的模型
	policy := DeadlinePolicy{Express: 30, Priority: 45}
	m, _ := Build(context.Background(), couriers, orders, est, Options{Deadlines: &policy})
	policy.Express = 1
	if m.Deadlines.Express != 30 {
		t.Errorf("model deadline changed with caller policy: %v", m.Deadlines.Express)
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	couriers, orders, est := exampleInput()
	couriers[1].SpeedKmh = 0

	_, err := Build(context.Background(), couriers, orders, est, Options{})
	if !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}

	couriers, orders, est = exampleInput()
	orders[2].Priority = 9
	_, err = Build(context.Background(), couriers, orders, est, Options{})
	if !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for priority, got %v", err)
	}
}

func TestModel_DiagnoseInfeasibility(t *testing.T) {
	couriers, orders, est := exampleInput()
	couriers[0].Capacity = 1

	m, err := Build(context.Background(), couriers, orders, est, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := m.DiagnoseInfeasibility(); got != apperrors.FamilyCapacity {
		t.Errorf("family = %s, want capacity", got)
	}
}

func TestModel_CheckAssignment(t *testing.T) {
	couriers, orders, est := exampleInput()
	m, err := Build(context.Background(), couriers, orders, est, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tests := []struct {
		name     string
		assign   []int
		wantCode apperrors.Code
	}{
		{"合法分配", []int{0, 0, 1}, ""},
		{"超出运力", []int{1, 1, 0}, apperrors.CodeInternalConsistency},
		{"订单未分配", []int{0, -1, 1}, apperrors.CodeMissingAllocation},
		{"长度不一致", []int{0, 0}, apperrors.CodeInternalConsistency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.CheckAssignment(tt.assign)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("CheckAssignment() error = %v", err)
				}
				return
			}
			if !apperrors.Is(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}

	if got := m.Objective([]int{0, 0, 1}); got != 3*20+2*22+1*18 {
		t.Errorf("Objective() = %v, want 122", got)
	}
}

func TestModel_LinearProgram(t *testing.T) {
	couriers, orders, est := exampleInput()
	m, err := Build(context.Background(), couriers, orders, est, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	lp, err := m.LinearProgram()
	if err != nil {
		t.Fatalf("LinearProgram() error = %v", err)
	}
	rows, cols := lp.A.Dims()
	if rows != 2*3+2 || cols != 6+3+2 {
		t.Fatalf("dims = %dx%d, want 8x11", rows, cols)
	}
	if len(lp.Integer()) != 6 {
		t.Errorf("Integer() = %d columns, want 6", len(lp.Integer()))
	}

	// A->C1, B->C1, C->C2 满足全部等式
	x := []float64{1, 1, 0, 0, 0, 1, 20, 22, 18, 0, 0}
	var ax mat.VecDense
	ax.MulVec(lp.A, mat.NewVecDense(len(x), x))
	for r := 0; r < rows; r++ {
		if math.Abs(ax.AtVec(r)-lp.B[r]) > 1e-9 {
			t.Errorf("row %d: A·x = %v, want %v", r, ax.AtVec(r), lp.B[r])
		}
	}

	objective := 0.0
	for k, c := range lp.C {
		objective += c * x[k]
	}
	if objective != m.Objective([]int{0, 0, 1}) {
		t.Errorf("LP objective = %v, want %v", objective, m.Objective([]int{0, 0, 1}))
	}

	assign, frac := lp.Assignment(x, m.N(), 1e-6)
	if frac != -1 {
		t.Errorf("fractional column = %d, want -1", frac)
	}
	if assign[0] != 0 || assign[1] != 0 || assign[2] != 1 {
		t.Errorf("Assignment() = %v, want [0 0 1]", assign)
	}
}

func TestModel_LinearProgramUnreachable(t *testing.T) {
	couriers, orders, est := exampleInput()
	m, err := Build(context.Background(), couriers, orders, est, Options{Deadlines: &DeadlinePolicy{Express: 5}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	_, err = m.LinearProgram()
	if !apperrors.Is(err, apperrors.CodeInfeasible) {
		t.Fatalf("expected INFEASIBLE, got %v", err)
	}
	if apperrors.GetFamily(err) != apperrors.FamilyDeadline {
		t.Errorf("family = %s, want deadline", apperrors.GetFamily(err))
	}
}

func TestModel_WithAllowed(t *testing.T) {
	couriers, orders, est := exampleInput()
	m, err := Build(context.Background(), couriers, orders, est, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	mask := m.CopyAllowed()
	mask[0][2] = false
	mask[1][2] = false
	sub := m.WithAllowed(mask)

	if len(sub.Unreachable) != 1 || sub.Unreachable[0] != 2 {
		t.Errorf("Unreachable = %v, want [2]", sub.Unreachable)
	}
	if !m.Allowed[0][2] || len(m.Unreachable) != 0 {
		t.Error("original model mask changed")
	}
}
