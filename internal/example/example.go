// Package example 生成合成数据集
package example

import (
	"fmt"
	"math/rand"

	"github.com/jaswdr/faker"

	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

// Options 生成参数
type Options struct {
	Seed        int64
	Couriers    int
	Orders      int
	Restaurants int // 0 表示按订单数推算
}

// DefaultOptions 默认生成参数
func DefaultOptions() Options {
	return Options{Seed: 42, Couriers: 5, Orders: 12}
}

// Generate 生成可行的数据集，相同种子结果相同
func Generate(opts Options) (*model.Dataset, error) {
	if opts.Couriers <= 0 || opts.Orders < 0 {
		return nil, apperrors.InvalidInput("example", fmt.Sprintf("无效规模: %d 骑手, %d 订单", opts.Couriers, opts.Orders))
	}
	restaurants := opts.Restaurants
	if restaurants <= 0 {
		restaurants = opts.Orders/4 + 1
	}

	fake := faker.NewWithSeed(rand.NewSource(opts.Seed))
	d := &model.Dataset{}

	names := make(map[string]bool, restaurants)
	for i := 0; i < restaurants; i++ {
		name := fake.Company().Name()
		if names[name] {
			name = fmt.Sprintf("%s %d", name, i+1)
		}
		names[name] = true
		d.Restaurants = append(d.Restaurants, model.Restaurant{
			Name:        name,
			LocationKey: fake.Numerify("360#####"),
		})
	}

	total := 0
	for i := 0; i < opts.Couriers; i++ {
		c := model.Courier{
			ID:           fmt.Sprintf("E%03d", i+1),
			Name:         fake.Person().Name(),
			Capacity:     fake.IntBetween(1, 4),
			SpeedKmh:     fake.Float64(1, 15, 40),
			CostPerHour:  fake.Float64(2, 10, 25),
			Availability: fmt.Sprintf("%d", fake.IntBetween(4, 10)),
			LocationKey:  fake.Numerify("360#####"),
		}
		total += c.Capacity
		d.Couriers = append(d.Couriers, c)
	}
	// 补足运力，保证基线可行
	for i := 0; total < opts.Orders; i = (i + 1) % len(d.Couriers) {
		d.Couriers[i].Capacity++
		total++
	}

	for j := 0; j < opts.Orders; j++ {
		d.Orders = append(d.Orders, model.Order{
			ID:                 fmt.Sprintf("P%04d", j+1),
			Restaurant:         d.Restaurants[fake.IntBetween(0, restaurants-1)].Name,
			CustomerKey:        fake.Numerify("360#####"),
			Priority:           model.Priority(j%3 + 1),
			Value:              fake.Float64(2, 15, 120),
			PrepMinutes:        float64(fake.IntBetween(10, 25)),
			CustomerLegMinutes: fake.Float64(1, 5, 25),
			RestaurantLegKm:    fake.Float64(1, 1, 8),
		})
	}
	return d, nil
}
