// Package cost 估算骑手配送订单的时长
package cost

import (
	"context"
	"fmt"
	"math"

	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
)

// DefaultPenaltyMinutes 坐标查询失败时的惩罚时长
const DefaultPenaltyMinutes = 9999.0

// Estimator 时长估算接口
type Estimator interface {
	// Estimate 返回骑手完成订单的总时长（分钟）
	Estimate(ctx context.Context, courier model.Courier, order model.Order) (float64, error)
}

// Resolver 位置解析接口，not-found 以 ok=false 返回
type Resolver interface {
	Resolve(ctx context.Context, key string) (loc model.Location, ok bool, err error)
}

// DistanceSource 骑手到餐厅距离的来源
type DistanceSource string

const (
	SourceOrder DistanceSource = "order" // 使用订单自带的距离
	SourceGeo   DistanceSource = "geo"   // 按坐标计算 Haversine 距离
)

// TravelEstimator 基于速度和距离估算时长
type TravelEstimator struct {
	source         DistanceSource
	resolver       Resolver
	restaurants    map[string]string // 餐厅名称 -> 位置键
	penaltyMinutes float64
}

// NewOrderDistanceEstimator 创建使用订单距离的估算器
func NewOrderDistanceEstimator() *TravelEstimator {
	return &TravelEstimator{
		source:         SourceOrder,
		penaltyMinutes: DefaultPenaltyMinutes,
	}
}

// NewGeoEstimator 创建使用坐标距离的估算器
func NewGeoEstimator(resolver Resolver, restaurants map[string]string, penaltyMinutes float64) *TravelEstimator {
	if penaltyMinutes <= 0 {
		penaltyMinutes = DefaultPenaltyMinutes
	}
	return &TravelEstimator{
		source:         SourceGeo,
		resolver:       resolver,
		restaurants:    restaurants,
		penaltyMinutes: penaltyMinutes,
	}
}

// Source 返回距离来源
func (e *TravelEstimator) Source() DistanceSource {
	return e.source
}

// Estimate 总时长 = 骑手到餐厅 + 备餐 + 送达客户
func (e *TravelEstimator) Estimate(ctx context.Context, courier model.Courier, order model.Order) (float64, error) {
	travel, err := e.TravelMinutes(ctx, courier, order)
	if err != nil {
		return 0, err
	}
	return travel + order.FixedMinutes(), nil
}

// TravelMinutes 估算骑手到餐厅的时长
func (e *TravelEstimator) TravelMinutes(ctx context.Context, courier model.Courier, order model.Order) (float64, error) {
	if math.IsNaN(courier.SpeedKmh) || courier.SpeedKmh <= 0 {
		return 0, apperrors.InvalidInput("speed_kmh",
			fmt.Sprintf("骑手 %s 速度必须大于0: %v", courier.ID, courier.SpeedKmh))
	}

	switch e.source {
	case SourceGeo:
		km, ok := e.geoDistance(ctx, courier, order)
		if !ok {
			return e.penaltyMinutes, nil
		}
		return km / courier.SpeedKmh * 60, nil
	default:
		return order.RestaurantLegKm / courier.SpeedKmh * 60, nil
	}
}

// geoDistance 计算骑手基地到订单餐厅的距离
func (e *TravelEstimator) geoDistance(ctx context.Context, courier model.Courier, order model.Order) (float64, bool) {
	if e.resolver == nil {
		return 0, false
	}

	from, ok := e.lookup(ctx, courier.LocationKey)
	if !ok {
		return 0, false
	}
	to, ok := e.lookup(ctx, e.restaurants[order.Restaurant])
	if !ok {
		return 0, false
	}
	return from.Distance(to), true
}

func (e *TravelEstimator) lookup(ctx context.Context, key string) (model.Location, bool) {
	if key == "" {
		return model.Location{}, false
	}
	loc, ok, err := e.resolver.Resolve(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("坐标查询失败，使用惩罚时长")
		return model.Location{}, false
	}
	return loc, ok
}

// Matrix 预计算 M×N 时长矩阵
func Matrix(ctx context.Context, est Estimator, couriers []model.Courier, orders []model.Order) ([][]float64, error) {
	matrix := make([][]float64, len(couriers))
	for i, c := range couriers {
		row := make([]float64, len(orders))
		for j, o := range orders {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			minutes, err := est.Estimate(ctx, c, o)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 {
				return nil, apperrors.InvalidInput("cost",
					fmt.Sprintf("骑手 %s 订单 %s 时长无效: %v", c.ID, o.ID, minutes))
			}
			row[j] = minutes
		}
		matrix[i] = row
	}
	return matrix, nil
}

// TableEstimator 使用外部给定的时长表，courierID -> orderID -> 分钟
type TableEstimator struct {
	minutes map[string]map[string]float64
}

// NewTableEstimator 创建时长表估算器
func NewTableEstimator(minutes map[string]map[string]float64) *TableEstimator {
	return &TableEstimator{minutes: minutes}
}

// Estimate 查表，缺失的组合视为输入错误
func (e *TableEstimator) Estimate(_ context.Context, courier model.Courier, order model.Order) (float64, error) {
	row, ok := e.minutes[courier.ID]
	if !ok {
		return 0, apperrors.InvalidInput("cost_table", fmt.Sprintf("缺少骑手 %s 的时长", courier.ID))
	}
	minutes, ok := row[order.ID]
	if !ok {
		return 0, apperrors.InvalidInput("cost_table", fmt.Sprintf("缺少骑手 %s 订单 %s 的时长", courier.ID, order.ID))
	}
	return minutes, nil
}
