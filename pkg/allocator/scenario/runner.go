// Package scenario 在扰动输入下重复求解并对比结果
package scenario

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paiban/courierplan/pkg/allocator"
	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/result"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
)

// Kind 场景类型
type Kind string

const (
	KindBaseline Kind = "baseline"
	KindSweep    Kind = "capacity_sweep"
	KindDeadline Kind = "deadline"
	KindReduced  Kind = "reduced_capacity"
)

// 对比表中的场景名称
const (
	NameBaseline = "baseline"
	NameDeadline = "deadline"
	NameReduced  = "reduced_capacity"
)

// ErrBaselineMutated 场景运行后基线运力被修改
var ErrBaselineMutated = apperrors.InternalConsistency("场景运行后基线运力与原始快照不一致")

// Solver 场景使用的求解流水线
type Solver interface {
	Run(ctx context.Context, d *model.Dataset, opts allocator.RunOptions) (*result.Solution, error)
}

// Observer 场景观测接口
type Observer interface {
	ObserveScenario(kind Kind, status string, duration time.Duration)
}

// Options 运行器选项
type Options struct {
	Workers        int
	MaxSweepPoints int // 运力扫描的最大点数
	Observer       Observer
	OnProgress     func(done, total int)
}

// DefaultMaxSweepPoints 默认运力扫描点数上限
const DefaultMaxSweepPoints = 50

// Result 单个场景的结果
type Result struct {
	Name       string           `json:"name" yaml:"name"`
	Kind       Kind             `json:"kind" yaml:"kind"`
	Capacity   int              `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Solution   *result.Solution `json:"solution,omitempty" yaml:"solution,omitempty"`
	Infeasible bool             `json:"infeasible" yaml:"infeasible"`
	Family     apperrors.Family `json:"family,omitempty" yaml:"family,omitempty"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration    `json:"duration" yaml:"duration"`
	Err        error            `json:"-" yaml:"-"`
}

// Status 场景状态
func (r *Result) Status() string {
	switch {
	case r.Solution != nil:
		return string(r.Solution.ExitStatus())
	case r.Infeasible:
		return "infeasible"
	default:
		return "failed"
	}
}

// Runner 场景运行器，基线数据只读
type Runner struct {
	solver   Solver
	baseline *model.Dataset
	snapshot model.CapacitySnapshot
	opts     Options
	log      *logger.AllocatorLogger
}

// NewRunner 创建场景运行器
func NewRunner(s Solver, baseline *model.Dataset, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxSweepPoints <= 0 {
		opts.MaxSweepPoints = DefaultMaxSweepPoints
	}
	return &Runner{
		solver:   s,
		baseline: baseline,
		snapshot: model.SnapshotCapacities(baseline.Couriers),
		opts:     opts,
		log:      logger.NewAllocatorLogger(),
	}
}

// Snapshot 基线运力快照
func (r *Runner) Snapshot() model.CapacitySnapshot {
	return r.snapshot
}

type task struct {
	name      string
	kind      Kind
	capacity  int
	snapshot  model.CapacitySnapshot
	deadlines *problem.DeadlinePolicy
}

// Baseline 基线求解
func (r *Runner) Baseline(ctx context.Context) (*Result, error) {
	return r.single(ctx, task{name: NameBaseline, kind: KindBaseline, snapshot: r.snapshot})
}

// DeadlineVariant 时限变体，不可行记录在结果中
func (r *Runner) DeadlineVariant(ctx context.Context, policy problem.DeadlinePolicy) (*Result, error) {
	return r.single(ctx, task{name: NameDeadline, kind: KindDeadline, snapshot: r.snapshot, deadlines: &policy})
}

// ReducedCapacity 运力减半（向下取整加一）
func (r *Runner) ReducedCapacity(ctx context.Context) (*Result, error) {
	return r.single(ctx, task{name: NameReduced, kind: KindReduced, snapshot: r.snapshot.Halved()})
}

// CapacitySweep 对闭区间内每个运力值统一设置全部骑手运力
func (r *Runner) CapacitySweep(ctx context.Context, from, to int) ([]Result, error) {
	if from < 1 || to < from {
		return nil, apperrors.InvalidInput("capacity_range", fmt.Sprintf("无效运力区间 [%d, %d]", from, to))
	}
	// from >= 1 时 to-from 不会溢出
	if to-from >= r.opts.MaxSweepPoints {
		return nil, apperrors.InvalidInput("capacity_range",
			fmt.Sprintf("运力区间 [%d, %d] 超过 %d 个点", from, to, r.opts.MaxSweepPoints))
	}
	tasks := make([]task, 0, to-from+1)
	for c := from; c <= to; c++ {
		tasks = append(tasks, task{
			name:     fmt.Sprintf("capacity_%d", c),
			kind:     KindSweep,
			capacity: c,
			snapshot: r.snapshot.Uniform(c),
		})
	}
	return r.runAll(ctx, tasks)
}

// ComparisonRequest 对比请求
type ComparisonRequest struct {
	Deadlines *problem.DeadlinePolicy
	Reduced   bool
}

// Compare 并行运行基线、时限与减半运力场景
func (r *Runner) Compare(ctx context.Context, req ComparisonRequest) (*ComparisonTable, error) {
	tasks := []task{{name: NameBaseline, kind: KindBaseline, snapshot: r.snapshot}}
	if req.Deadlines != nil {
		policy := *req.Deadlines
		tasks = append(tasks, task{name: NameDeadline, kind: KindDeadline, snapshot: r.snapshot, deadlines: &policy})
	}
	if req.Reduced {
		tasks = append(tasks, task{name: NameReduced, kind: KindReduced, snapshot: r.snapshot.Halved()})
	}

	results, err := r.runAll(ctx, tasks)
	if err != nil {
		return nil, err
	}
	return NewComparisonTable(results), nil
}

func (r *Runner) single(ctx context.Context, t task) (*Result, error) {
	results, err := r.runAll(ctx, []task{t})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// runAll 并行运行场景，单个场景失败不影响其他场景
func (r *Runner) runAll(ctx context.Context, tasks []task) ([]Result, error) {
	results := make([]Result, len(tasks))

	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for idx := range tasks {
		idx := idx
		g.Go(func() error {
			results[idx] = r.run(ctx, tasks[idx])
			if r.opts.OnProgress != nil {
				mu.Lock()
				done++
				r.opts.OnProgress(done, len(tasks))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if !model.SnapshotCapacities(r.baseline.Couriers).Equal(r.snapshot) {
		return results, ErrBaselineMutated
	}
	return results, nil
}

func (r *Runner) run(ctx context.Context, t task) Result {
	startTime := time.Now()
	res := Result{Name: t.name, Kind: t.kind, Capacity: t.capacity}

	// 每个场景使用独立的数据副本
	data := r.baseline.WithCapacities(t.snapshot)
	sol, err := r.solver.Run(ctx, data, allocator.RunOptions{Deadlines: t.deadlines})
	res.Duration = time.Since(startTime)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		if apperrors.Is(err, apperrors.CodeInfeasible) {
			res.Infeasible = true
			res.Family = apperrors.GetFamily(err)
		}
	} else {
		res.Solution = sol
	}

	r.log.ScenarioFinished(t.name, res.Duration, err)
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveScenario(t.kind, res.Status(), res.Duration)
	}
	return res
}

// ComparisonRow 对比表的一行
type ComparisonRow struct {
	Name         string           `json:"name" yaml:"name"`
	Kind         Kind             `json:"kind" yaml:"kind"`
	TotalMinutes float64          `json:"total_minutes" yaml:"total_minutes"`
	MeanMinutes  float64          `json:"mean_minutes" yaml:"mean_minutes"`
	CouriersUsed int              `json:"couriers_used" yaml:"couriers_used"`
	Objective    float64          `json:"objective" yaml:"objective"`
	Allocated    int              `json:"allocated" yaml:"allocated"`
	Total        int              `json:"total" yaml:"total"`
	Status       string           `json:"status" yaml:"status"`
	Family       apperrors.Family `json:"family,omitempty" yaml:"family,omitempty"`
	Error        string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// ComparisonTable 场景对比表，各场景方案互不合并
type ComparisonTable struct {
	BatchID uuid.UUID       `json:"batch_id" yaml:"batch_id"`
	Rows    []ComparisonRow `json:"rows" yaml:"rows"`
}

// NewComparisonTable 由场景结果生成对比表
func NewComparisonTable(results []Result) *ComparisonTable {
	table := &ComparisonTable{BatchID: uuid.New(), Rows: make([]ComparisonRow, 0, len(results))}
	for _, r := range results {
		row := ComparisonRow{
			Name:   r.Name,
			Kind:   r.Kind,
			Status: r.Status(),
			Family: r.Family,
			Error:  r.Error,
		}
		if s := r.Solution; s != nil {
			row.TotalMinutes = s.TotalMinutes
			row.MeanMinutes = s.MeanMinutes
			row.CouriersUsed = s.CouriersUsed
			row.Objective = s.Objective
			row.Allocated = s.Allocated
			row.Total = s.Total
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// Row 按名称查找
func (t *ComparisonTable) Row(name string) (ComparisonRow, bool) {
	for _, row := range t.Rows {
		if row.Name == name {
			return row, true
		}
	}
	return ComparisonRow{}, false
}
