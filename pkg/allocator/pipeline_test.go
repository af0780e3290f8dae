package allocator

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/solver"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []solver.Status
}

func (o *recordingObserver) ObserveSolve(_ string, status solver.Status, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func testDataset() *model.Dataset {
	return &model.Dataset{
		Couriers: []model.Courier{
			{ID: "E1", Capacity: 2, SpeedKmh: 30},
			{ID: "E2", Capacity: 2, SpeedKmh: 15},
		},
		Orders: []model.Order{
			{ID: "P1", Restaurant: "Cantina", Priority: model.PriorityExpress, PrepMinutes: 10, CustomerLegMinutes: 5, RestaurantLegKm: 2},
			{ID: "P2", Restaurant: "Cantina", Priority: model.PriorityNormal, PrepMinutes: 8, CustomerLegMinutes: 6, RestaurantLegKm: 3},
			{ID: "P3", Restaurant: "Bistro", Priority: model.PriorityPriority, PrepMinutes: 12, CustomerLegMinutes: 4, RestaurantLegKm: 1},
		},
		Restaurants: []model.Restaurant{
			{Name: "Cantina", LocationKey: "36010000"},
			{Name: "Bistro", LocationKey: "36015000"},
		},
	}
}

func TestPipeline_Run(t *testing.T) {
	for _, backend := range solver.Names() {
		t.Run(backend, func(t *testing.T) {
			obs := &recordingObserver{}
			p, err := NewPipeline(Config{Backend: backend, Observer: obs})
			if err != nil {
				t.Fatalf("NewPipeline() error = %v", err)
			}

			sol, err := p.Run(context.Background(), testDataset(), RunOptions{})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if sol.Allocated != 3 || sol.Backend != backend {
				t.Errorf("solution = %+v", sol)
			}
			// E1 更快且运力为 2，承接两单
			byCourier := sol.ByCourier()
			if len(byCourier["E1"]) != 2 {
				t.Errorf("E1 allocations = %v", byCourier["E1"])
			}
			if len(obs.statuses) != 1 || obs.statuses[0] != solver.StatusOptimal {
				t.Errorf("observed = %v", obs.statuses)
			}
		})
	}
}

func TestPipeline_Errors(t *testing.T) {
	p, err := NewPipeline(Config{})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	bad := testDataset()
	bad.Orders[0].Restaurant = "Fantasma"
	if _, err := p.Run(context.Background(), bad, RunOptions{}); !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Errorf("unknown restaurant: expected INVALID_INPUT, got %v", err)
	}

	short := testDataset()
	short.Couriers[0].Capacity = 0
	_, err = p.Run(context.Background(), short, RunOptions{})
	if !apperrors.Is(err, apperrors.CodeInfeasible) || apperrors.GetFamily(err) != apperrors.FamilyCapacity {
		t.Errorf("capacity shortfall: expected INFEASIBLE/capacity, got %v", err)
	}

	_, err = p.Run(context.Background(), testDataset(), RunOptions{Deadlines: &problem.DeadlinePolicy{Express: 5, Priority: 45}})
	if !apperrors.Is(err, apperrors.CodeInfeasible) || apperrors.GetFamily(err) != apperrors.FamilyDeadline {
		t.Errorf("deadline: expected INFEASIBLE/deadline, got %v", err)
	}

	if _, err := NewPipeline(Config{Backend: "cplex"}); !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Errorf("unknown backend: expected INVALID_INPUT, got %v", err)
	}
}

func TestPipeline_TimedOut(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	strict, _ := NewPipeline(Config{AcceptTimeout: false})
	if _, err := strict.Run(ctx, testDataset(), RunOptions{}); !apperrors.Is(err, apperrors.CodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}

	// 没有候选解时即使接受超时也返回超时错误
	lenient, _ := NewPipeline(Config{AcceptTimeout: true})
	if _, err := lenient.Run(ctx, testDataset(), RunOptions{}); !apperrors.Is(err, apperrors.CodeTimeout) {
		t.Errorf("expected TIMEOUT without incumbent, got %v", err)
	}
}

func TestPipeline_DeadlineObjective(t *testing.T) {
	p, _ := NewPipeline(Config{})
	policy := &problem.DeadlinePolicy{Express: 30, Priority: 45}

	base, err := p.Run(context.Background(), testDataset(), RunOptions{})
	if err != nil {
		t.Fatalf("base Run() error = %v", err)
	}
	constrained, err := p.Run(context.Background(), testDataset(), RunOptions{Deadlines: policy})
	if err != nil {
		t.Fatalf("deadline Run() error = %v", err)
	}
	if constrained.Variant != problem.VariantDeadline {
		t.Errorf("Variant = %s, want deadline", constrained.Variant)
	}
	// 宽松时限下与基础模型目标一致
	if math.Abs(base.Objective-constrained.Objective) > 1e-9 {
		t.Errorf("objective base=%v deadline=%v", base.Objective, constrained.Objective)
	}
}
