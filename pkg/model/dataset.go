package model

import (
	"fmt"

	apperrors "github.com/paiban/courierplan/pkg/errors"
)

// Dataset 一次批量分配的输入数据
type Dataset struct {
	Couriers    []Courier    `json:"couriers" yaml:"couriers"`
	Orders      []Order      `json:"orders" yaml:"orders"`
	Restaurants []Restaurant `json:"restaurants" yaml:"restaurants"`
}

// RestaurantByName 按名称查找餐厅
func (d *Dataset) RestaurantByName(name string) (Restaurant, bool) {
	for _, r := range d.Restaurants {
		if r.Name == name {
			return r, true
		}
	}
	return Restaurant{}, false
}

// RestaurantIndex 构建餐厅名称到位置键的映射
func (d *Dataset) RestaurantIndex() map[string]string {
	idx := make(map[string]string, len(d.Restaurants))
	for _, r := range d.Restaurants {
		idx[r.Name] = r.LocationKey
	}
	return idx
}

// Clone 深拷贝数据集
func (d *Dataset) Clone() *Dataset {
	return &Dataset{
		Couriers:    append([]Courier(nil), d.Couriers...),
		Orders:      append([]Order(nil), d.Orders...),
		Restaurants: append([]Restaurant(nil), d.Restaurants...),
	}
}

// WithCapacities 返回应用了运力快照的数据集副本
func (d *Dataset) WithCapacities(s CapacitySnapshot) *Dataset {
	out := d.Clone()
	out.Couriers = s.Apply(d.Couriers)
	return out
}

// Validate 校验输入数据，所有问题汇总后以 INVALID_INPUT 返回
func (d *Dataset) Validate() error {
	ve := &apperrors.ValidationErrors{}

	courierIDs := make(map[string]bool, len(d.Couriers))
	for i, c := range d.Couriers {
		field := fmt.Sprintf("couriers[%d]", i)
		if c.ID == "" {
			ve.Add(field+".id", "不能为空")
		} else if courierIDs[c.ID] {
			ve.Add(field+".id", fmt.Sprintf("重复的骑手ID %q", c.ID))
		}
		courierIDs[c.ID] = true

		for _, msg := range CourierProblems(c) {
			ve.Add(field, msg)
		}
	}

	restaurants := d.RestaurantIndex()
	orderIDs := make(map[string]bool, len(d.Orders))
	for j, o := range d.Orders {
		field := fmt.Sprintf("orders[%d]", j)
		if o.ID == "" {
			ve.Add(field+".id", "不能为空")
		} else if orderIDs[o.ID] {
			ve.Add(field+".id", fmt.Sprintf("重复的订单ID %q", o.ID))
		}
		orderIDs[o.ID] = true

		if _, ok := restaurants[o.Restaurant]; !ok {
			ve.Add(field+".restaurant", fmt.Sprintf("未知餐厅 %q", o.Restaurant))
		}
		for _, msg := range OrderProblems(o) {
			ve.Add(field, msg)
		}
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// CourierProblems 列出骑手数据问题
func CourierProblems(c Courier) []string {
	var problems []string
	if c.Capacity < 0 {
		problems = append(problems, fmt.Sprintf("capacity 不能为负数: %d", c.Capacity))
	}
	if isBadNumber(c.SpeedKmh) || c.SpeedKmh <= 0 {
		problems = append(problems, fmt.Sprintf("speed_kmh 必须大于0: %v", c.SpeedKmh))
	}
	if isBadNumber(c.CostPerHour) || c.CostPerHour < 0 {
		problems = append(problems, fmt.Sprintf("cost_per_hour 无效: %v", c.CostPerHour))
	}
	return problems
}

// OrderProblems 列出订单数据问题
func OrderProblems(o Order) []string {
	var problems []string
	if !o.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("priority 未定义: %d", int(o.Priority)))
	}
	numeric := []struct {
		name  string
		value float64
	}{
		{"value", o.Value},
		{"prep_minutes", o.PrepMinutes},
		{"customer_leg_minutes", o.CustomerLegMinutes},
		{"restaurant_leg_km", o.RestaurantLegKm},
	}
	for _, n := range numeric {
		if isBadNumber(n.value) || n.value < 0 {
			problems = append(problems, fmt.Sprintf("%s 必须为非负数: %v", n.name, n.value))
		}
	}
	return problems
}
