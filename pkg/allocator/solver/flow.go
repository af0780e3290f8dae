package solver

import (
	"container/heap"
	"context"
	"math"

	"github.com/paiban/courierplan/pkg/allocator/problem"
)

// FlowSolver 最小费用流求解器
//
// 网络: 源点 -> 骑手(容量=运力) -> 订单(费用=加权时长) -> 汇点(容量 1)，
// 逐次最短路增广，每次增广一个订单。
type FlowSolver struct {
	opts Options
}

// NewFlowSolver 创建最小费用流求解器
func NewFlowSolver(opts Options) *FlowSolver {
	return &FlowSolver{opts: opts}
}

// Name 返回求解器名称
func (s *FlowSolver) Name() string {
	return BackendFlow
}

type arc struct {
	to   int
	rev  int
	cap  int
	cost float64
}

type network struct {
	arcs [][]arc
}

func (g *network) addArc(from, to, capacity int, cost float64) int {
	g.arcs[from] = append(g.arcs[from], arc{to: to, rev: len(g.arcs[to]), cap: capacity, cost: cost})
	g.arcs[to] = append(g.arcs[to], arc{to: from, rev: len(g.arcs[from]) - 1, cap: 0, cost: -cost})
	return len(g.arcs[from]) - 1
}

// Solve 求解
func (s *FlowSolver) Solve(ctx context.Context, m *problem.Model) (*Outcome, error) {
	out, startTime := start(s.Name())
	if m.N() == 0 {
		return finishEmpty(out, startTime)
	}
	if len(m.Unreachable) > 0 || m.TotalCapacity() < m.N() {
		return finishInfeasible(out, m, startTime)
	}

	ctx, cancel := budget(ctx, s.opts)
	defer cancel()

	mc, n := m.M(), m.N()
	source, sink := 0, mc+n+1
	g := &network{arcs: make([][]arc, mc+n+2)}

	refs := make([]edgeRef, 0, mc*n)
	for i := 0; i < mc; i++ {
		if m.Capacities[i] > 0 {
			g.addArc(source, 1+i, m.Capacities[i], 0)
		}
	}
	for i := 0; i < mc; i++ {
		for j := 0; j < n; j++ {
			if !m.Allowed[i][j] {
				continue
			}
			idx := g.addArc(1+i, 1+mc+j, 1, m.EdgeCost(i, j))
			refs = append(refs, edgeRef{courier: i, order: j, index: idx})
		}
	}
	for j := 0; j < n; j++ {
		g.addArc(1+mc+j, sink, 1, 0)
	}

	// 初始费用均非负，势能从零开始
	potential := make([]float64, len(g.arcs))
	flow := 0
	for flow < n {
		if ctx.Err() != nil {
			if !exhausted(ctx) {
				return nil, ctx.Err()
			}
			var partial []int
			if flow > 0 {
				// 中间流即当前流量下的最优部分分配
				partial = g.assignment(refs, n)
			}
			return finishTimedOut(out, m, partial, startTime)
		}

		dist, prevNode, prevArc := g.shortestPaths(source, potential)
		if math.IsInf(dist[sink], 1) {
			return finishInfeasible(out, m, startTime)
		}
		for v := range potential {
			if !math.IsInf(dist[v], 1) {
				potential[v] += dist[v]
			}
		}

		for v := sink; v != source; v = prevNode[v] {
			a := &g.arcs[prevNode[v]][prevArc[v]]
			a.cap--
			g.arcs[v][a.rev].cap++
		}
		flow++
		out.Iterations++
	}

	return finishOptimal(out, m, g.assignment(refs, n), startTime)
}

type edgeRef struct{ courier, order, index int }

// assignment 读取已饱和的骑手-订单弧
func (g *network) assignment(refs []edgeRef, orders int) []int {
	assign := make([]int, orders)
	for j := range assign {
		assign[j] = -1
	}
	for _, r := range refs {
		if g.arcs[1+r.courier][r.index].cap == 0 {
			assign[r.order] = r.courier
		}
	}
	return assign
}

// shortestPaths 带势能的 Dijkstra
func (g *network) shortestPaths(source int, potential []float64) ([]float64, []int, []int) {
	size := len(g.arcs)
	dist := make([]float64, size)
	prevNode := make([]int, size)
	prevArc := make([]int, size)
	for v := range dist {
		dist[v] = math.Inf(1)
		prevNode[v] = -1
	}
	dist[source] = 0

	pq := &nodeQueue{{node: source, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queueItem)
		if cur.dist > dist[cur.node] {
			continue
		}
		for k, a := range g.arcs[cur.node] {
			if a.cap <= 0 {
				continue
			}
			reduced := a.cost + potential[cur.node] - potential[a.to]
			if reduced < 0 {
				// 浮点误差
				reduced = 0
			}
			nd := cur.dist + reduced
			if nd < dist[a.to] {
				dist[a.to] = nd
				prevNode[a.to] = cur.node
				prevArc[a.to] = k
				heap.Push(pq, queueItem{node: a.to, dist: nd})
			}
		}
	}
	return dist, prevNode, prevArc
}

type queueItem struct {
	node int
	dist float64
}

type nodeQueue []queueItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
