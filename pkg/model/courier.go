package model

// Courier 骑手
type Courier struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name,omitempty" yaml:"name,omitempty"`
	Capacity     int     `json:"capacity" yaml:"capacity"`           // 最大并发订单数
	SpeedKmh     float64 `json:"speed_kmh" yaml:"speed_kmh"`         // 平均速度（公里/小时）
	CostPerHour  float64 `json:"cost_per_hour" yaml:"cost_per_hour"` // 运营成本（每小时）
	Availability string  `json:"availability,omitempty" yaml:"availability,omitempty"` // 每日可用时段，如 08:00-18:00
	LocationKey  string  `json:"location_key,omitempty" yaml:"location_key,omitempty"` // 基地位置（CEP）
}

// CapacitySnapshot 骑手运力的不可变快照
// 场景运行时基于快照派生独立副本，基线数据不被修改
type CapacitySnapshot struct {
	ids  []string
	caps map[string]int
}

// SnapshotCapacities 记录骑手当前运力
func SnapshotCapacities(couriers []Courier) CapacitySnapshot {
	s := CapacitySnapshot{
		ids:  make([]string, 0, len(couriers)),
		caps: make(map[string]int, len(couriers)),
	}
	for _, c := range couriers {
		s.ids = append(s.ids, c.ID)
		s.caps[c.ID] = c.Capacity
	}
	return s
}

// Map 对每个骑手的运力应用变换，返回新快照
func (s CapacitySnapshot) Map(fn func(capacity int) int) CapacitySnapshot {
	out := CapacitySnapshot{
		ids:  append([]string(nil), s.ids...),
		caps: make(map[string]int, len(s.caps)),
	}
	for id, c := range s.caps {
		out.caps[id] = fn(c)
	}
	return out
}

// Uniform 将所有骑手的运力设为同一值
func (s CapacitySnapshot) Uniform(capacity int) CapacitySnapshot {
	return s.Map(func(int) int { return capacity })
}

// Halved 运力减半（向下取整后加一）
func (s CapacitySnapshot) Halved() CapacitySnapshot {
	return s.Map(func(c int) int { return c/2 + 1 })
}

// Capacity 查询骑手运力
func (s CapacitySnapshot) Capacity(courierID string) (int, bool) {
	c, ok := s.caps[courierID]
	return c, ok
}

// Total 返回运力总和
func (s CapacitySnapshot) Total() int {
	total := 0
	for _, c := range s.caps {
		total += c
	}
	return total
}

// Len 返回骑手数量
func (s CapacitySnapshot) Len() int {
	return len(s.ids)
}

// Apply 基于快照生成骑手的独立副本，原切片不变
func (s CapacitySnapshot) Apply(couriers []Courier) []Courier {
	out := make([]Courier, len(couriers))
	copy(out, couriers)
	for i := range out {
		if c, ok := s.caps[out[i].ID]; ok {
			out[i].Capacity = c
		}
	}
	return out
}

// Equal 检查两个快照是否完全一致
func (s CapacitySnapshot) Equal(other CapacitySnapshot) bool {
	if len(s.caps) != len(other.caps) {
		return false
	}
	for id, c := range s.caps {
		if oc, ok := other.caps[id]; !ok || oc != c {
			return false
		}
	}
	return true
}
