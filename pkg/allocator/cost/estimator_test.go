package cost

import (
	"context"
	"errors"
	"math"
	"testing"

	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

type stubResolver struct {
	locations map[string]model.Location
	failing   map[string]bool
	calls     int
}

func (s *stubResolver) Resolve(_ context.Context, key string) (model.Location, bool, error) {
	s.calls++
	if s.failing[key] {
		return model.Location{}, false, errors.New("geocoder unavailable")
	}
	loc, ok := s.locations[key]
	return loc, ok, nil
}

func TestTravelEstimator_OrderDistance(t *testing.T) {
	est := NewOrderDistanceEstimator()
	courier := model.Courier{ID: "E1", SpeedKmh: 30}
	order := model.Order{ID: "P1", PrepMinutes: 10, CustomerLegMinutes: 5, RestaurantLegKm: 3}

	got, err := est.Estimate(context.Background(), courier, order)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	// 3km / 30km/h = 6 分钟
	if math.Abs(got-21) > 1e-9 {
		t.Errorf("Estimate() = %v, want 21", got)
	}
}

func TestTravelEstimator_InvalidSpeed(t *testing.T) {
	est := NewOrderDistanceEstimator()
	order := model.Order{ID: "P1", RestaurantLegKm: 3}

	for _, speed := range []float64{0, -10, math.NaN()} {
		_, err := est.Estimate(context.Background(), model.Courier{ID: "E1", SpeedKmh: speed}, order)
		if !apperrors.Is(err, apperrors.CodeInvalidInput) {
			t.Errorf("speed %v: expected INVALID_INPUT, got %v", speed, err)
		}
	}
}

func TestTravelEstimator_Geo(t *testing.T) {
	resolver := &stubResolver{
		locations: map[string]model.Location{
			"36010000": {Latitude: -21.7642, Longitude: -43.3503},
			"36015000": {Latitude: -21.7742, Longitude: -43.3603},
		},
		failing: map[string]bool{"36099999": true},
	}
	restaurants := map[string]string{
		"Cantina": "36015000",
		"Remota":  "36000000",
		"Falha":   "36099999",
	}
	est := NewGeoEstimator(resolver, restaurants, 0)
	courier := model.Courier{ID: "E1", SpeedKmh: 30, LocationKey: "36010000"}

	tests := []struct {
		name       string
		restaurant string
		wantMin    float64
		wantMax    float64
	}{
		{"坐标均可解析", "Cantina", 15 + 2.8, 15 + 3.3}, // 约1.5km => 约3分钟
		{"餐厅坐标不存在", "Remota", 15 + DefaultPenaltyMinutes, 15 + DefaultPenaltyMinutes},
		{"坐标查询报错", "Falha", 15 + DefaultPenaltyMinutes, 15 + DefaultPenaltyMinutes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := model.Order{ID: "P", Restaurant: tt.restaurant, PrepMinutes: 10, CustomerLegMinutes: 5}
			got, err := est.Estimate(context.Background(), courier, order)
			if err != nil {
				t.Fatalf("Estimate() error = %v", err)
			}
			if got < tt.wantMin-1e-9 || got > tt.wantMax+1e-9 {
				t.Errorf("Estimate() = %v, want in [%v, %v]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestMatrix(t *testing.T) {
	couriers := []model.Courier{{ID: "E1", SpeedKmh: 30}, {ID: "E2", SpeedKmh: 60}}
	orders := []model.Order{
		{ID: "P1", RestaurantLegKm: 3},
		{ID: "P2", RestaurantLegKm: 6, PrepMinutes: 1},
	}

	m, err := Matrix(context.Background(), NewOrderDistanceEstimator(), couriers, orders)
	if err != nil {
		t.Fatalf("Matrix() error = %v", err)
	}

	want := [][]float64{{6, 13}, {3, 7}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(m[i][j]-want[i][j]) > 1e-9 {
				t.Errorf("m[%d][%d] = %v, want %v", i, j, m[i][j], want[i][j])
			}
		}
	}
}

func TestTableEstimator(t *testing.T) {
	est := NewTableEstimator(map[string]map[string]float64{
		"E1": {"P1": 12.5},
	})

	got, err := est.Estimate(context.Background(), model.Courier{ID: "E1"}, model.Order{ID: "P1"})
	if err != nil || got != 12.5 {
		t.Fatalf("Estimate() = %v, %v; want 12.5", got, err)
	}

	if _, err := est.Estimate(context.Background(), model.Courier{ID: "E1"}, model.Order{ID: "P2"}); !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Errorf("missing order: expected INVALID_INPUT, got %v", err)
	}
	if _, err := est.Estimate(context.Background(), model.Courier{ID: "E9"}, model.Order{ID: "P1"}); !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Errorf("missing courier: expected INVALID_INPUT, got %v", err)
	}
}
