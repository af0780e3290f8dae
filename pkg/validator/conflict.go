// Package validator 对照原始数据核验分配方案
package validator

import (
	"fmt"
	"sort"

	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/result"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictUnassigned     ConflictType = "unassigned"      // 订单未分配
	ConflictDuplicate      ConflictType = "duplicate"       // 订单被重复分配
	ConflictUnknownOrder   ConflictType = "unknown_order"   // 分配了不存在的订单
	ConflictUnknownCourier ConflictType = "unknown_courier" // 分配给不存在的骑手
	ConflictOverCapacity   ConflictType = "over_capacity"   // 超出骑手运力
	ConflictDeadline       ConflictType = "deadline"        // 超出配送时限
)

// 严重程度
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Conflict 冲突信息
type Conflict struct {
	Type      ConflictType `json:"type"`
	Severity  string       `json:"severity"` // error/warning
	CourierID string       `json:"courier_id,omitempty"`
	OrderID   string       `json:"order_id,omitempty"`
	Message   string       `json:"message"`
}

// DetectorConfig 检测器配置
type DetectorConfig struct {
	Deadlines *problem.DeadlinePolicy // 非空时检查时限
	Tolerance float64                 // 时限比较容差（分钟）
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{Tolerance: 1e-6}
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	config *DetectorConfig
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{config: config}
}

// DetectAll 检测所有冲突，结果按订单ID排序
func (d *ConflictDetector) DetectAll(data *model.Dataset, sol *result.Solution) []Conflict {
	var conflicts []Conflict

	orders := make(map[string]model.Order, len(data.Orders))
	for _, o := range data.Orders {
		orders[o.ID] = o
	}
	couriers := make(map[string]model.Courier, len(data.Couriers))
	for _, c := range data.Couriers {
		couriers[c.ID] = c
	}

	seen := make(map[string]int, len(sol.Allocations))
	for _, a := range sol.Allocations {
		seen[a.OrderID]++
		if seen[a.OrderID] == 2 {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictDuplicate,
				Severity: SeverityError,
				OrderID:  a.OrderID,
				Message:  "订单被分配给多个骑手",
			})
		}

		o, ok := orders[a.OrderID]
		if !ok {
			conflicts = append(conflicts, Conflict{
				Type:      ConflictUnknownOrder,
				Severity:  SeverityError,
				CourierID: a.CourierID,
				OrderID:   a.OrderID,
				Message:   "分配了输入中不存在的订单",
			})
			continue
		}
		if _, ok := couriers[a.CourierID]; !ok {
			conflicts = append(conflicts, Conflict{
				Type:      ConflictUnknownCourier,
				Severity:  SeverityError,
				CourierID: a.CourierID,
				OrderID:   a.OrderID,
				Message:   "分配给输入中不存在的骑手",
			})
		}
		conflicts = append(conflicts, d.detectDeadline(o, a)...)
	}

	for _, o := range data.Orders {
		if seen[o.ID] == 0 {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictUnassigned,
				Severity: SeverityWarning,
				OrderID:  o.ID,
				Message:  "订单未分配",
			})
		}
	}

	conflicts = append(conflicts, d.detectCapacity(couriers, sol.Allocations)...)

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].OrderID < conflicts[j].OrderID
	})
	return conflicts
}

// detectDeadline 检测配送时长是否超出优先级时限
func (d *ConflictDetector) detectDeadline(o model.Order, a result.Allocation) []Conflict {
	if d.config.Deadlines == nil {
		return nil
	}
	limit, ok := d.config.Deadlines.Limit(o.Priority)
	if !ok || a.DeliveryMinutes <= limit+d.config.Tolerance {
		return nil
	}
	return []Conflict{{
		Type:      ConflictDeadline,
		Severity:  SeverityError,
		CourierID: a.CourierID,
		OrderID:   a.OrderID,
		Message:   fmt.Sprintf("配送时长 %.2f 分钟，超过 %s 时限 %.0f 分钟", a.DeliveryMinutes, o.Priority, limit),
	}}
}

// detectCapacity 检测骑手分配数是否超出运力
func (d *ConflictDetector) detectCapacity(couriers map[string]model.Courier, allocations []result.Allocation) []Conflict {
	load := make(map[string]int)
	for _, a := range allocations {
		load[a.CourierID]++
	}

	ids := make([]string, 0, len(load))
	for id := range load {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var conflicts []Conflict
	for _, id := range ids {
		c, ok := couriers[id]
		if !ok || load[id] <= c.Capacity {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:      ConflictOverCapacity,
			Severity:  SeverityError,
			CourierID: id,
			Message:   fmt.Sprintf("分配 %d 单，超过运力 %d", load[id], c.Capacity),
		})
	}
	return conflicts
}

// Errors 筛选错误级别的冲突
func Errors(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Severity == SeverityError {
			out = append(out, c)
		}
	}
	return out
}

// ToError 存在错误级别冲突时返回内部一致性错误
func ToError(conflicts []Conflict) error {
	errs := Errors(conflicts)
	if len(errs) == 0 {
		return nil
	}
	err := apperrors.InternalConsistency(fmt.Sprintf("方案核验发现 %d 处冲突: %s", len(errs), errs[0].Message))
	for i, c := range errs {
		key := c.OrderID
		if key == "" {
			key = c.CourierID
		}
		err.WithField(fmt.Sprintf("%s[%d]", c.Type, i), key)
	}
	return err
}
