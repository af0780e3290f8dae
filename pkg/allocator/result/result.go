// Package result 从求解结果中提取分配方案
package result

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/solver"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
)

// Allocation 单个订单的分配
type Allocation struct {
	OrderID         string         `json:"order_id" yaml:"order_id"`
	OrderIndex      int            `json:"-" yaml:"-"`
	CourierID       string         `json:"courier_id" yaml:"courier_id"`
	CourierIndex    int            `json:"-" yaml:"-"`
	Restaurant      string         `json:"restaurant" yaml:"restaurant"`
	Priority        model.Priority `json:"priority" yaml:"priority"`
	Value           float64        `json:"value" yaml:"value"`
	DeliveryMinutes float64        `json:"delivery_minutes" yaml:"delivery_minutes"`
}

// ExitStatus 方案完成度
type ExitStatus string

const (
	ExitSuccess ExitStatus = "success" // 全部订单已分配
	ExitPartial ExitStatus = "partial" // 部分订单未分配
	ExitFailure ExitStatus = "failure" // 无任何分配
)

// Solution 分配方案
type Solution struct {
	RunID        uuid.UUID       `json:"run_id" yaml:"run_id"`
	Backend      string          `json:"backend" yaml:"backend"`
	Variant      problem.Variant `json:"variant" yaml:"variant"`
	Status       solver.Status   `json:"status" yaml:"status"`
	Optimal      bool            `json:"optimal" yaml:"optimal"`
	Objective    float64         `json:"objective" yaml:"objective"`
	TotalMinutes float64         `json:"total_minutes" yaml:"total_minutes"`
	MeanMinutes  float64         `json:"mean_minutes" yaml:"mean_minutes"`
	CouriersUsed int             `json:"couriers_used" yaml:"couriers_used"`
	Allocated    int             `json:"allocated" yaml:"allocated"`
	Total        int             `json:"total" yaml:"total"`
	Duration     time.Duration   `json:"duration" yaml:"duration"`
	Warnings     []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Allocations  []Allocation    `json:"allocations" yaml:"allocations"`
}

// ExitStatus 返回方案完成度
func (s *Solution) ExitStatus() ExitStatus {
	switch {
	case s.Total > 0 && s.Allocated == 0:
		return ExitFailure
	case s.Allocated < s.Total:
		return ExitPartial
	default:
		return ExitSuccess
	}
}

// ByCourier 按骑手分组
func (s *Solution) ByCourier() map[string][]Allocation {
	groups := make(map[string][]Allocation)
	for _, a := range s.Allocations {
		groups[a.CourierID] = append(groups[a.CourierID], a)
	}
	return groups
}

// Extract 从最优或已接受的超时结果中提取分配方案
func Extract(m *problem.Model, out *solver.Outcome) (*Solution, error) {
	if out == nil {
		return nil, apperrors.InternalConsistency("求解结果为空")
	}
	switch out.Status {
	case solver.StatusOptimal:
	case solver.StatusTimedOut:
		if !out.HasIncumbent() {
			return nil, out.Err()
		}
	default:
		if err := out.Err(); err != nil {
			return nil, err
		}
		return nil, apperrors.InternalConsistency(fmt.Sprintf("状态 %s 的结果不能提取", out.Status))
	}
	if len(out.Assignment) != m.N() {
		return nil, apperrors.InternalConsistency(
			fmt.Sprintf("分配长度 %d 与订单数 %d 不一致", len(out.Assignment), m.N()))
	}

	sol := &Solution{
		RunID:       uuid.New(),
		Backend:     out.Backend,
		Variant:     m.Variant,
		Optimal:     out.Optimal,
		Objective:   out.Objective,
		Total:       m.N(),
		Duration:    out.Duration,
		Allocations: make([]Allocation, 0, m.N()),
	}

	load := make([]int, m.M())
	for j, i := range out.Assignment {
		if i < 0 && out.Status == solver.StatusTimedOut {
			// 超时的候选解允许部分分配
			continue
		}
		if i < 0 || i >= m.M() {
			return nil, apperrors.MissingAllocation(m.Orders[j].ID, 0)
		}
		order := m.Orders[j]
		minutes := m.Cost[i][j]
		sol.Allocations = append(sol.Allocations, Allocation{
			OrderID:         order.ID,
			OrderIndex:      j,
			CourierID:       m.Couriers[i].ID,
			CourierIndex:    i,
			Restaurant:      order.Restaurant,
			Priority:        order.Priority,
			Value:           order.Value,
			DeliveryMinutes: minutes,
		})
		sol.TotalMinutes += minutes
		load[i]++
	}

	for i, l := range load {
		if l > m.Capacities[i] {
			return nil, apperrors.InternalConsistency(
				fmt.Sprintf("骑手 %s 分配 %d 单，超过运力 %d", m.Couriers[i].ID, l, m.Capacities[i]))
		}
		if l > 0 {
			sol.CouriersUsed++
		}
	}

	sol.Allocated = len(sol.Allocations)
	if sol.Total > 0 {
		// 按订单总数求平均
		sol.MeanMinutes = sol.TotalMinutes / float64(sol.Total)
	}
	if !sol.Optimal {
		sol.Warnings = append(sol.Warnings, "求解超出时间预算，结果非最优")
	}
	if sol.Allocated < sol.Total {
		sol.Warnings = append(sol.Warnings, fmt.Sprintf("仅分配 %d/%d 个订单", sol.Allocated, sol.Total))
		logger.NewAllocatorLogger().UnderAllocated(sol.Allocated, sol.Total)
	}

	if err := out.Transition(solver.StatusExtracted); err != nil {
		return nil, err
	}
	sol.Status = out.Status
	return sol, nil
}
