package solver

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/paiban/courierplan/pkg/allocator/problem"
	apperrors "github.com/paiban/courierplan/pkg/errors"
)

const (
	simplexTolerance = 1e-10
	integerTolerance = 1e-6
)

var (
	errBudget    = errors.New("solver: budget exhausted")
	errUnbounded = errors.New("solver: relaxation unbounded")
)

// IPSolver 通用整数规划求解器
//
// 线性松弛使用单纯形法，分数解上做深度优先分支定界:
// 一支固定订单到该骑手，另一支移除该边。
type IPSolver struct {
	opts Options
}

// NewIPSolver 创建整数规划求解器
func NewIPSolver(opts Options) *IPSolver {
	return &IPSolver{opts: opts}
}

// Name 返回求解器名称
func (s *IPSolver) Name() string {
	return BackendIP
}

type branchBound struct {
	model     *problem.Model
	maxNodes  int
	nodes     int
	best      float64
	incumbent []int
}

// Solve 求解
func (s *IPSolver) Solve(ctx context.Context, m *problem.Model) (*Outcome, error) {
	out, startTime := start(s.Name())
	if m.N() == 0 {
		return finishEmpty(out, startTime)
	}
	if len(m.Unreachable) > 0 {
		return finishInfeasible(out, m, startTime)
	}

	ctx, cancel := budget(ctx, s.opts)
	defer cancel()

	bb := &branchBound{model: m, maxNodes: s.opts.MaxNodes, best: math.Inf(1)}
	err := bb.search(ctx, m.CopyAllowed())
	out.Iterations = bb.nodes

	switch {
	case err == nil:
	case errors.Is(err, errBudget):
		return finishTimedOut(out, m, bb.incumbent, startTime)
	case errors.Is(err, errUnbounded):
		out.Duration = time.Since(startTime)
		if terr := out.Transition(StatusUnbounded); terr != nil {
			return nil, terr
		}
		return out, apperrors.InternalConsistency("整数规划松弛无界，模型结构不应出现").WithCause(out.Err())
	default:
		if ctx.Err() != nil && !exhausted(ctx) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if bb.incumbent == nil {
		return finishInfeasible(out, m, startTime)
	}
	return finishOptimal(out, m, bb.incumbent, startTime)
}

func (bb *branchBound) search(ctx context.Context, mask [][]bool) error {
	if err := ctx.Err(); err != nil {
		if exhausted(ctx) {
			return errBudget
		}
		return err
	}
	bb.nodes++
	if bb.maxNodes > 0 && bb.nodes > bb.maxNodes {
		return errBudget
	}

	node := bb.model.WithAllowed(mask)
	if len(node.Unreachable) > 0 {
		return nil
	}
	prog, err := node.LinearProgram()
	if err != nil {
		return err
	}

	bound, x, err := lp.Simplex(prog.C, prog.A, prog.B, simplexTolerance, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil
	case errors.Is(err, lp.ErrUnbounded):
		return errUnbounded
	case err != nil:
		return apperrors.Wrap(err, apperrors.CodeInternal, "线性松弛求解失败")
	}

	if bound >= bb.best-integerTolerance*math.Max(1, math.Abs(bb.best)) {
		return nil
	}

	assign, frac := prog.Assignment(x, node.N(), integerTolerance)
	if frac < 0 {
		if bb.model.CheckAssignment(assign) != nil {
			return nil
		}
		if objective := bb.model.Objective(assign); objective < bb.best {
			bb.best = objective
			bb.incumbent = assign
		}
		return nil
	}

	e := prog.Edges[frac]
	fixed := node.CopyAllowed()
	for i := range fixed {
		if i != e.Courier {
			fixed[i][e.Order] = false
		}
	}
	removed := node.CopyAllowed()
	removed[e.Courier][e.Order] = false

	first, second := fixed, removed
	if x[frac] < 0.5 {
		first, second = removed, fixed
	}
	if err := bb.search(ctx, first); err != nil {
		return err
	}
	return bb.search(ctx, second)
}
