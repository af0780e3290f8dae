package validator

import (
	"testing"

	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/result"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

func dataset() *model.Dataset {
	return &model.Dataset{
		Couriers: []model.Courier{
			{ID: "E1", Capacity: 1, SpeedKmh: 30},
			{ID: "E2", Capacity: 2, SpeedKmh: 30},
		},
		Orders: []model.Order{
			{ID: "P1", Restaurant: "Cantina", Priority: model.PriorityExpress},
			{ID: "P2", Restaurant: "Cantina", Priority: model.PriorityNormal},
		},
		Restaurants: []model.Restaurant{{Name: "Cantina"}},
	}
}

func alloc(order, courier string, minutes float64) result.Allocation {
	return result.Allocation{OrderID: order, CourierID: courier, DeliveryMinutes: minutes}
}

func TestConflictDetector_DetectAll(t *testing.T) {
	tests := []struct {
		name        string
		deadlines   *problem.DeadlinePolicy
		allocations []result.Allocation
		want        []ConflictType
	}{
		{"正常方案", nil, []result.Allocation{alloc("P1", "E1", 20), alloc("P2", "E2", 25)}, nil},
		{"订单未分配", nil, []result.Allocation{alloc("P1", "E1", 20)}, []ConflictType{ConflictUnassigned}},
		{"重复分配", nil, []result.Allocation{alloc("P1", "E1", 20), alloc("P1", "E2", 20), alloc("P2", "E2", 25)}, []ConflictType{ConflictDuplicate}},
		{"超出运力", nil, []result.Allocation{alloc("P1", "E1", 20), alloc("P2", "E1", 25)}, []ConflictType{ConflictOverCapacity}},
		{"未知骑手", nil, []result.Allocation{alloc("P1", "E9", 20), alloc("P2", "E2", 25)}, []ConflictType{ConflictUnknownCourier}},
		{"未知订单", nil, []result.Allocation{alloc("P1", "E1", 20), alloc("P2", "E2", 25), alloc("P9", "E2", 5)}, []ConflictType{ConflictUnknownOrder}},
		{"超出时限", &problem.DeadlinePolicy{Express: 15}, []result.Allocation{alloc("P1", "E1", 20), alloc("P2", "E2", 90)}, []ConflictType{ConflictDeadline}},
		{"时限内", &problem.DeadlinePolicy{Express: 20, Priority: 45}, []result.Allocation{alloc("P1", "E1", 20), alloc("P2", "E2", 90)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := NewConflictDetector(&DetectorConfig{Deadlines: tt.deadlines, Tolerance: 1e-6})
			conflicts := detector.DetectAll(dataset(), &result.Solution{Allocations: tt.allocations})
			if len(conflicts) != len(tt.want) {
				t.Fatalf("conflicts = %+v, want types %v", conflicts, tt.want)
			}
			for i, c := range conflicts {
				if c.Type != tt.want[i] {
					t.Errorf("conflict[%d] = %s, want %s", i, c.Type, tt.want[i])
				}
			}
		})
	}
}

func TestToError(t *testing.T) {
	if err := ToError([]Conflict{{Type: ConflictUnassigned, Severity: SeverityWarning, OrderID: "P1"}}); err != nil {
		t.Errorf("warnings only: got %v", err)
	}

	err := ToError([]Conflict{
		{Type: ConflictUnassigned, Severity: SeverityWarning, OrderID: "P1"},
		{Type: ConflictOverCapacity, Severity: SeverityError, CourierID: "E1", Message: "分配 2 单，超过运力 1"},
	})
	if !apperrors.Is(err, apperrors.CodeInternalConsistency) {
		t.Fatalf("expected INTERNAL_CONSISTENCY, got %v", err)
	}
	if got := apperrors.ExitCode(err); got != apperrors.ExitDefect {
		t.Errorf("exit code = %d, want %d", got, apperrors.ExitDefect)
	}
}
