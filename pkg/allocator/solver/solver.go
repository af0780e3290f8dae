// Package solver 提供骑手分配求解器
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paiban/courierplan/pkg/allocator/problem"
	apperrors "github.com/paiban/courierplan/pkg/errors"
)

// DefaultTimeLimit 默认求解时间预算
const DefaultTimeLimit = 300 * time.Second

// Status 求解状态
type Status string

const (
	StatusBuilt      Status = "built"
	StatusSubmitted  Status = "submitted"
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusTimedOut   Status = "timed_out"
	StatusExtracted  Status = "extracted"
)

var transitions = map[Status][]Status{
	StatusBuilt:     {StatusSubmitted},
	StatusSubmitted: {StatusOptimal, StatusInfeasible, StatusUnbounded, StatusTimedOut},
	StatusOptimal:   {StatusExtracted},
	StatusTimedOut:  {StatusExtracted},
}

// CanTransition 检查状态流转是否合法
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 是否为求解终态
func (s Status) Terminal() bool {
	switch s {
	case StatusOptimal, StatusInfeasible, StatusUnbounded, StatusTimedOut:
		return true
	}
	return false
}

// Outcome 求解结果
type Outcome struct {
	Backend    string           `json:"backend"`
	Status     Status           `json:"status"`
	Objective  float64          `json:"objective"`
	Assignment []int            `json:"assignment,omitempty"` // 订单 j 的骑手下标，-1 为未分配
	Optimal    bool             `json:"optimal"`
	Family     apperrors.Family `json:"family,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Iterations int              `json:"iterations"`
}

func newOutcome(backend string) *Outcome {
	return &Outcome{Backend: backend, Status: StatusBuilt}
}

// Transition 流转状态，非法流转视为内部一致性错误
func (o *Outcome) Transition(to Status) error {
	if !o.Status.CanTransition(to) {
		return apperrors.InternalConsistency(fmt.Sprintf("求解状态不能从 %s 流转到 %s", o.Status, to))
	}
	o.Status = to
	return nil
}

// HasIncumbent 是否持有可用分配
func (o *Outcome) HasIncumbent() bool {
	return o.Assignment != nil
}

// Err 将非最优终态转换为错误
func (o *Outcome) Err() error {
	switch o.Status {
	case StatusInfeasible:
		return apperrors.Infeasible(o.Family, o.Reason)
	case StatusUnbounded:
		return apperrors.Unbounded(o.Backend)
	case StatusTimedOut:
		if !o.HasIncumbent() {
			return apperrors.TimedOut(o.Backend, false)
		}
	}
	return nil
}

// Solver 求解器接口
type Solver interface {
	// Solve 求解分配模型，不可行与超时通过 Outcome.Status 报告
	Solve(ctx context.Context, m *problem.Model) (*Outcome, error)

	// Name 返回求解器名称
	Name() string
}

// Options 求解选项
type Options struct {
	TimeLimit time.Duration
	// MaxNodes 分支定界节点上限，0 为不限
	MaxNodes int
}

func (o Options) timeLimit() time.Duration {
	if o.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return o.TimeLimit
}

// Factory 求解器构造函数
type Factory func(opts Options) Solver

const (
	BackendFlow = "flow"
	BackendIP   = "ip"
)

var registry = map[string]Factory{
	BackendFlow: func(opts Options) Solver { return NewFlowSolver(opts) },
	BackendIP:   func(opts Options) Solver { return NewIPSolver(opts) },
}

// NewSolver 按名称创建求解器，空名称使用 flow
func NewSolver(name string, opts Options) (Solver, error) {
	if name == "" {
		name = BackendFlow
	}
	factory, ok := registry[name]
	if !ok {
		return nil, apperrors.InvalidInput("backend", fmt.Sprintf("未知求解器 %q，可选: %v", name, Names()))
	}
	return factory(opts), nil
}

// Names 已注册的求解器名称
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// budget 为求解附加时间预算
func budget(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opts.timeLimit())
}

// exhausted 判断上下文是否因时间预算结束，调用方取消不算超时
func exhausted(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// start 创建已提交的结果
func start(backend string) (*Outcome, time.Time) {
	out := newOutcome(backend)
	_ = out.Transition(StatusSubmitted)
	return out, time.Now()
}

// finishEmpty 空订单集合直接最优
func finishEmpty(out *Outcome, startTime time.Time) (*Outcome, error) {
	out.Assignment = []int{}
	out.Optimal = true
	out.Duration = time.Since(startTime)
	return out, out.Transition(StatusOptimal)
}

// finishInfeasible 记录不可行及其约束族
func finishInfeasible(out *Outcome, m *problem.Model, startTime time.Time) (*Outcome, error) {
	out.Family = m.DiagnoseInfeasibility()
	switch out.Family {
	case apperrors.FamilyDeadline:
		out.Reason = fmt.Sprintf("时限约束下无法分配全部 %d 个订单", m.N())
	default:
		out.Reason = fmt.Sprintf("运力 %d 不足以分配 %d 个订单", m.TotalCapacity(), m.N())
	}
	out.Assignment = nil
	out.Duration = time.Since(startTime)
	return out, out.Transition(StatusInfeasible)
}

// finishTimedOut 超出预算，保留的分配标记为非最优
func finishTimedOut(out *Outcome, m *problem.Model, incumbent []int, startTime time.Time) (*Outcome, error) {
	out.Optimal = false
	out.Assignment = incumbent
	if incumbent != nil {
		out.Objective = m.Objective(incumbent)
	}
	out.Duration = time.Since(startTime)
	return out, out.Transition(StatusTimedOut)
}

// finishOptimal 记录最优分配
func finishOptimal(out *Outcome, m *problem.Model, assign []int, startTime time.Time) (*Outcome, error) {
	out.Assignment = assign
	out.Objective = m.Objective(assign)
	out.Optimal = true
	out.Duration = time.Since(startTime)
	return out, out.Transition(StatusOptimal)
}
