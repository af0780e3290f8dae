package model

import "fmt"

// Priority 订单优先级（序数）
type Priority int

const (
	PriorityNormal   Priority = 1 // 普通
	PriorityPriority Priority = 2 // 优先
	PriorityExpress  Priority = 3 // 加急
)

// priorityWeights 目标函数中的优先级权重
var priorityWeights = map[Priority]float64{
	PriorityNormal:   1,
	PriorityPriority: 2,
	PriorityExpress:  3,
}

var priorityNames = map[Priority]string{
	PriorityNormal:   "Normal",
	PriorityPriority: "Priority",
	PriorityExpress:  "Express",
}

// Priorities 按序数升序列出所有优先级
func Priorities() []Priority {
	return []Priority{PriorityNormal, PriorityPriority, PriorityExpress}
}

// ParsePriority 从序数解析优先级
func ParsePriority(ordinal int) (Priority, error) {
	p := Priority(ordinal)
	if !p.Valid() {
		return 0, fmt.Errorf("未知优先级: %d", ordinal)
	}
	return p, nil
}

// Valid 检查优先级是否已定义
func (p Priority) Valid() bool {
	_, ok := priorityWeights[p]
	return ok
}

// Weight 返回优先级权重，未定义的优先级返回 0
func (p Priority) Weight() float64 {
	return priorityWeights[p]
}

// String 返回优先级名称
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}
