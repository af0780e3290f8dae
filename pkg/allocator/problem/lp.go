package problem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/paiban/courierplan/pkg/errors"
)

// Edge 骑手-订单边
type Edge struct {
	Courier int
	Order   int
}

// LinearProgram 标准形式的整数规划
//
//	min C·x  s.t.  A·x = B, x ≥ 0
//
// 列布局: [assign 边 | time[j] | 运力松弛]
// 行布局: [唯一分配 | 时长定义 | 运力]
type LinearProgram struct {
	C     []float64
	A     *mat.Dense
	B     []float64
	Edges []Edge

	TimeOffset  int
	SlackOffset int
}

// Integer 需要取整的列
func (lp *LinearProgram) Integer() []int {
	cols := make([]int, len(lp.Edges))
	for k := range cols {
		cols[k] = k
	}
	return cols
}

// Edges 按骑手优先顺序返回可用边
func (m *Model) Edges() []Edge {
	var edges []Edge
	for i := range m.Couriers {
		for j := range m.Orders {
			if m.Allowed[i][j] {
				edges = append(edges, Edge{Courier: i, Order: j})
			}
		}
	}
	return edges
}

// WithAllowed 返回使用新边掩码的模型副本，其余字段共享
func (m *Model) WithAllowed(allowed [][]bool) *Model {
	out := *m
	out.Allowed = allowed
	out.Unreachable = nil
	for j := range m.Orders {
		reachable := false
		for i := range m.Couriers {
			if allowed[i][j] {
				reachable = true
				break
			}
		}
		if !reachable {
			out.Unreachable = append(out.Unreachable, j)
		}
	}
	return &out
}

// CopyAllowed 复制边掩码
func (m *Model) CopyAllowed() [][]bool {
	out := make([][]bool, len(m.Allowed))
	for i, row := range m.Allowed {
		out[i] = append([]bool(nil), row...)
	}
	return out
}

// LinearProgram 生成整数规划，存在无可用边的订单时返回时限族不可行
func (m *Model) LinearProgram() (*LinearProgram, error) {
	if len(m.Unreachable) > 0 {
		j := m.Unreachable[0]
		return nil, apperrors.Infeasible(apperrors.FamilyDeadline,
			fmt.Sprintf("订单 %s 没有满足时限的骑手", m.Orders[j].ID))
	}
	if m.N() == 0 {
		return nil, apperrors.InternalConsistency("空订单集合无需生成整数规划")
	}

	edges := m.Edges()
	n, mc := m.N(), m.M()
	lp := &LinearProgram{
		Edges:       edges,
		TimeOffset:  len(edges),
		SlackOffset: len(edges) + n,
	}
	rows := 2*n + mc
	cols := len(edges) + n + mc

	lp.C = make([]float64, cols)
	lp.B = make([]float64, rows)
	lp.A = mat.NewDense(rows, cols, nil)

	for j := 0; j < n; j++ {
		lp.C[lp.TimeOffset+j] = m.Weights[j]
		lp.B[j] = 1
		lp.A.Set(n+j, lp.TimeOffset+j, 1)
	}
	for k, e := range edges {
		lp.A.Set(e.Order, k, 1)
		lp.A.Set(n+e.Order, k, -m.Cost[e.Courier][e.Order])
		lp.A.Set(2*n+e.Courier, k, 1)
	}
	for i := 0; i < mc; i++ {
		lp.A.Set(2*n+i, lp.SlackOffset+i, 1)
		lp.B[2*n+i] = float64(m.Capacities[i])
	}
	return lp, nil
}

// Assignment 将解向量还原为 assign[j]，存在分数变量时返回第一个分数边
func (lp *LinearProgram) Assignment(x []float64, orders int, tol float64) (assign []int, fractional int) {
	assign = make([]int, orders)
	for j := range assign {
		assign[j] = -1
	}
	fractional = -1
	best := 0.0
	for k, e := range lp.Edges {
		v := x[k]
		switch {
		case v >= 1-tol:
			assign[e.Order] = e.Courier
		case v > tol:
			// 取最接近 0.5 的分数变量分支
			score := 0.5 - math.Abs(v-0.5)
			if score > best {
				best = score
				fractional = k
			}
		}
	}
	return assign, fractional
}
