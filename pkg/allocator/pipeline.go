// Package allocator 串联时长估算、建模、求解与结果提取
package allocator

import (
	"context"
	"errors"
	"time"

	"github.com/paiban/courierplan/pkg/allocator/cost"
	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/result"
	"github.com/paiban/courierplan/pkg/allocator/solver"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
	"github.com/paiban/courierplan/pkg/validator"
)

// Observer 求解观测接口
type Observer interface {
	ObserveSolve(backend string, status solver.Status, duration time.Duration)
}

// EstimatorFactory 按数据集创建时长估算器
type EstimatorFactory func(d *model.Dataset) cost.Estimator

// OrderDistance 使用订单自带距离
func OrderDistance() EstimatorFactory {
	return func(*model.Dataset) cost.Estimator {
		return cost.NewOrderDistanceEstimator()
	}
}

// GeoDistance 使用坐标距离，查询失败按惩罚时长计
func GeoDistance(resolver cost.Resolver, penaltyMinutes float64) EstimatorFactory {
	return func(d *model.Dataset) cost.Estimator {
		return cost.NewGeoEstimator(resolver, d.RestaurantIndex(), penaltyMinutes)
	}
}

// Config 流水线配置
type Config struct {
	Backend       string
	TimeLimit     time.Duration
	MaxNodes      int
	AcceptTimeout bool
	Estimator     EstimatorFactory
	Observer      Observer
}

// RunOptions 单次求解选项
type RunOptions struct {
	Deadlines *problem.DeadlinePolicy
}

// Pipeline 分配流水线
type Pipeline struct {
	solver        solver.Solver
	estimator     EstimatorFactory
	acceptTimeout bool
	observer      Observer
	log           *logger.AllocatorLogger
}

// NewPipeline 创建分配流水线
func NewPipeline(cfg Config) (*Pipeline, error) {
	s, err := solver.NewSolver(cfg.Backend, solver.Options{
		TimeLimit: cfg.TimeLimit,
		MaxNodes:  cfg.MaxNodes,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Estimator == nil {
		cfg.Estimator = OrderDistance()
	}
	return &Pipeline{
		solver:        s,
		estimator:     cfg.Estimator,
		acceptTimeout: cfg.AcceptTimeout,
		observer:      cfg.Observer,
		log:           logger.NewAllocatorLogger(),
	}, nil
}

// Backend 返回求解器名称
func (p *Pipeline) Backend() string {
	return p.solver.Name()
}

// Run 校验数据、构建模型、求解并提取方案
func (p *Pipeline) Run(ctx context.Context, d *model.Dataset, opts RunOptions) (*result.Solution, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	m, err := problem.Build(ctx, d.Couriers, d.Orders, p.estimator(d), problem.Options{Deadlines: opts.Deadlines})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.TimedOut(p.solver.Name(), false).WithCause(err)
		}
		return nil, err
	}

	p.log.SolveStarted(p.solver.Name(), string(m.Variant), m.M(), m.N())
	out, err := p.solver.Solve(ctx, m)
	if out != nil {
		p.log.SolveFinished(out.Backend, string(out.Status), out.Duration, out.Objective)
		if p.observer != nil {
			p.observer.ObserveSolve(out.Backend, out.Status, out.Duration)
		}
	}
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case solver.StatusInfeasible, solver.StatusUnbounded:
		return nil, out.Err()
	case solver.StatusTimedOut:
		if !p.acceptTimeout {
			return nil, apperrors.TimedOut(out.Backend, out.HasIncumbent())
		}
	}

	sol, err := result.Extract(m, out)
	if err != nil {
		return nil, err
	}

	// 对照原始数据复核方案
	detector := validator.NewConflictDetector(&validator.DetectorConfig{Deadlines: opts.Deadlines, Tolerance: 1e-6})
	if err := validator.ToError(detector.DetectAll(d, sol)); err != nil {
		return nil, err
	}
	return sol, nil
}
