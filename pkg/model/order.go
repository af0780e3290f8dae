package model

// Order 配送订单
type Order struct {
	ID                 string   `json:"id" yaml:"id"`
	Restaurant         string   `json:"restaurant" yaml:"restaurant"`
	CustomerKey        string   `json:"customer_key,omitempty" yaml:"customer_key,omitempty"` // 客户位置（CEP）
	Priority           Priority `json:"priority" yaml:"priority"`
	Value              float64  `json:"value" yaml:"value"`                                 // 订单金额
	PrepMinutes        float64  `json:"prep_minutes" yaml:"prep_minutes"`                   // 备餐时长
	CustomerLegMinutes float64  `json:"customer_leg_minutes" yaml:"customer_leg_minutes"` // 餐厅到客户的时长
	RestaurantLegKm    float64  `json:"restaurant_leg_km" yaml:"restaurant_leg_km"`       // 骑手到餐厅的距离
}

// FixedMinutes 与骑手无关的固定时长（备餐 + 送达客户）
func (o Order) FixedMinutes() float64 {
	return o.PrepMinutes + o.CustomerLegMinutes
}

// Restaurant 餐厅
type Restaurant struct {
	Name        string `json:"name" yaml:"name"`
	LocationKey string `json:"location_key" yaml:"location_key"` // CEP
}
