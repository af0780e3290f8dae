// Package problem 构建骑手分配的优化模型
package problem

import (
	"context"
	"fmt"
	"math"

	"github.com/paiban/courierplan/pkg/allocator/cost"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

// Variant 模型变体
type Variant string

const (
	VariantBase     Variant = "base"     // 仅优先级加权目标
	VariantDeadline Variant = "deadline" // 附加按优先级的时限约束
)

// DeadlinePolicy 按优先级的配送时限（分钟），0 表示不约束
type DeadlinePolicy struct {
	Express  float64 `json:"express" yaml:"express"`
	Priority float64 `json:"priority" yaml:"priority"`
	Normal   float64 `json:"normal,omitempty" yaml:"normal,omitempty"`
}

// Limit 返回优先级对应的时限
func (p DeadlinePolicy) Limit(pr model.Priority) (float64, bool) {
	var limit float64
	switch pr {
	case model.PriorityExpress:
		limit = p.Express
	case model.PriorityPriority:
		limit = p.Priority
	case model.PriorityNormal:
		limit = p.Normal
	}
	return limit, limit > 0
}

// Options 构建选项
type Options struct {
	// Deadlines 非空时构建时限变体
	Deadlines *DeadlinePolicy
}

// Model 分配模型
//
//	assign[i][j] ∈ {0,1}, time[j] ≥ 0
//	Σ_i assign[i][j] = 1                    每个订单恰好一个骑手
//	Σ_j assign[i][j] ≤ capacity[i]          骑手运力
//	time[j] = Σ_i assign[i][j] · cost[i][j] 时长定义
//	min Σ_j weight[j] · time[j]
type Model struct {
	Variant    Variant
	Couriers   []model.Courier
	Orders     []model.Order
	Cost       [][]float64 // cost[i][j] 分钟
	Weights    []float64
	Capacities []int
	Allowed    [][]bool // 时限变体中违反时限的边被移除
	Deadlines  *DeadlinePolicy

	// Unreachable 没有任何可用骑手的订单下标
	Unreachable []int
}

// Build 构建分配模型，运力不足不在此处预检，由求解器报告不可行
func Build(ctx context.Context, couriers []model.Courier, orders []model.Order, est cost.Estimator, opts Options) (*Model, error) {
	for _, c := range couriers {
		if problems := model.CourierProblems(c); len(problems) > 0 {
			return nil, apperrors.InvalidInput("courier "+c.ID, problems[0])
		}
	}
	for _, o := range orders {
		if problems := model.OrderProblems(o); len(problems) > 0 {
			return nil, apperrors.InvalidInput("order "+o.ID, problems[0])
		}
	}

	costs, err := cost.Matrix(ctx, est, couriers, orders)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Variant:    VariantBase,
		Couriers:   couriers,
		Orders:     orders,
		Cost:       costs,
		Weights:    make([]float64, len(orders)),
		Capacities: make([]int, len(couriers)),
		Allowed:    make([][]bool, len(couriers)),
	}
	for j, o := range orders {
		m.Weights[j] = o.Priority.Weight()
	}
	for i, c := range couriers {
		m.Capacities[i] = c.Capacity
		m.Allowed[i] = make([]bool, len(orders))
		for j := range orders {
			m.Allowed[i][j] = true
		}
	}

	if opts.Deadlines != nil {
		policy := *opts.Deadlines
		m.Variant = VariantDeadline
		m.Deadlines = &policy
		m.applyDeadlines()
	}

	return m, nil
}

// applyDeadlines 移除违反时限的边
func (m *Model) applyDeadlines() {
	m.Unreachable = nil
	for j, o := range m.Orders {
		limit, ok := m.Deadlines.Limit(o.Priority)
		reachable := false
		for i := range m.Couriers {
			if ok && m.Cost[i][j] > limit {
				m.Allowed[i][j] = false
			}
			reachable = reachable || m.Allowed[i][j]
		}
		if !reachable {
			m.Unreachable = append(m.Unreachable, j)
		}
	}
}

// M 骑手数量
func (m *Model) M() int { return len(m.Couriers) }

// N 订单数量
func (m *Model) N() int { return len(m.Orders) }

// EdgeCost 加权边成本 cost·weight
func (m *Model) EdgeCost(i, j int) float64 {
	return m.Cost[i][j] * m.Weights[j]
}

// Deadline 返回订单 j 的时限
func (m *Model) Deadline(j int) (float64, bool) {
	if m.Deadlines == nil {
		return 0, false
	}
	return m.Deadlines.Limit(m.Orders[j].Priority)
}

// TotalCapacity 运力总和
func (m *Model) TotalCapacity() int {
	total := 0
	for _, c := range m.Capacities {
		total += c
	}
	return total
}

// Objective 计算分配方案的目标值，assign[j] 为订单 j 的骑手下标
func (m *Model) Objective(assign []int) float64 {
	total := 0.0
	for j, i := range assign {
		if i >= 0 {
			total += m.EdgeCost(i, j)
		}
	}
	return total
}

// DiagnoseInfeasibility 判断不可行来自哪个约束族
func (m *Model) DiagnoseInfeasibility() apperrors.Family {
	if len(m.Unreachable) > 0 {
		return apperrors.FamilyDeadline
	}
	if m.TotalCapacity() < m.N() {
		return apperrors.FamilyCapacity
	}
	if m.Variant == VariantDeadline {
		return apperrors.FamilyDeadline
	}
	return apperrors.FamilyCapacity
}

// CheckAssignment 校验分配方案满足全部约束
func (m *Model) CheckAssignment(assign []int) error {
	if len(assign) != m.N() {
		return apperrors.InternalConsistency(fmt.Sprintf("分配长度 %d 与订单数 %d 不一致", len(assign), m.N()))
	}
	load := make([]int, m.M())
	for j, i := range assign {
		if i < 0 || i >= m.M() {
			return apperrors.MissingAllocation(m.Orders[j].ID, 0)
		}
		if !m.Allowed[i][j] {
			return apperrors.InternalConsistency(fmt.Sprintf("订单 %s 分配给了被禁止的骑手 %s", m.Orders[j].ID, m.Couriers[i].ID))
		}
		if limit, ok := m.Deadline(j); ok && m.Cost[i][j] > limit+1e-9 {
			return apperrors.InternalConsistency(fmt.Sprintf("订单 %s 时长 %.2f 超过时限 %.2f", m.Orders[j].ID, m.Cost[i][j], limit))
		}
		load[i]++
	}
	for i, l := range load {
		if l > m.Capacities[i] {
			return apperrors.InternalConsistency(fmt.Sprintf("骑手 %s 分配 %d 单，超过运力 %d", m.Couriers[i].ID, l, m.Capacities[i]))
		}
	}
	return nil
}

// MaxEdgeCost 最大加权边成本，用于数值容差
func (m *Model) MaxEdgeCost() float64 {
	maxCost := 0.0
	for i := range m.Couriers {
		for j := range m.Orders {
			maxCost = math.Max(maxCost, m.EdgeCost(i, j))
		}
	}
	return maxCost
}
