package example

import (
	"reflect"
	"testing"

	apperrors "github.com/paiban/courierplan/pkg/errors"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		couriers int
		orders   int
	}{
		{"默认规模", 5, 12},
		{"运力需补足", 2, 20},
		{"无订单", 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Generate(Options{Seed: 7, Couriers: tt.couriers, Orders: tt.orders})
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if len(d.Couriers) != tt.couriers || len(d.Orders) != tt.orders {
				t.Fatalf("got %d couriers, %d orders", len(d.Couriers), len(d.Orders))
			}
			if err := d.Validate(); err != nil {
				t.Fatalf("generated dataset invalid: %v", err)
			}
			total := 0
			for _, c := range d.Couriers {
				total += c.Capacity
			}
			if total < tt.orders {
				t.Errorf("total capacity %d < %d orders", total, tt.orders)
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, _ := Generate(Options{Seed: 99, Couriers: 4, Orders: 9})
	b, _ := Generate(Options{Seed: 99, Couriers: 4, Orders: 9})
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different datasets")
	}
}

func TestGenerate_InvalidSize(t *testing.T) {
	if _, err := Generate(Options{Couriers: 0, Orders: 3}); !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}
