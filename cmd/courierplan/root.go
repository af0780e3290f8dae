package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/courierplan/internal/config"
	"github.com/paiban/courierplan/internal/example"
	"github.com/paiban/courierplan/internal/geocode"
	"github.com/paiban/courierplan/internal/loader"
	"github.com/paiban/courierplan/internal/metrics"
	"github.com/paiban/courierplan/pkg/allocator"
	"github.com/paiban/courierplan/pkg/allocator/problem"
	"github.com/paiban/courierplan/pkg/allocator/result"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
)

// exitCodeError 无错误但需要非零退出码（如部分分配）
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// cli 命令共享状态
type cli struct {
	configPath string
	logLevel   string
	backend    string
	timeLimit  time.Duration

	cfg      *config.Config
	resolver *geocode.CachedResolver // 坐标模式下由 pipeline 创建
}

func execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return apperrors.ExitOK
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintln(stderr, "错误:", err)
	return apperrors.ExitCode(err)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "courierplan",
		Short:         "骑手订单批量分配引擎",
		Long:          "courierplan 将一批外卖订单分配给骑手，最小化按优先级加权的总配送时长，并支持运力与时限场景对比。",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "配置文件路径（默认查找 ./courierplan.yaml 与 $HOME/courierplan.yaml）")
	pf.StringVar(&c.logLevel, "log-level", "", "日志级别 debug/info/warn/error")
	pf.StringVar(&c.backend, "backend", "", "求解器 flow 或 ip")
	pf.DurationVar(&c.timeLimit, "time-limit", 0, "求解时间预算，如 30s")

	root.AddCommand(
		newSolveCmd(c),
		newAnalyzeCmd(c),
		newScenariosCmd(c),
		newServeCmd(c),
		newExampleCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup 加载配置，命令行参数优先
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if flags.Changed("backend") {
		cfg.Solver.Backend = c.backend
	}
	if flags.Changed("time-limit") {
		cfg.Solver.TimeLimit = c.timeLimit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.Log)
	metrics.RegisterDefault()
	c.cfg = cfg
	return nil
}

// dataFlags 输入数据参数
type dataFlags struct {
	dir     string
	example bool
	seed    int64
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.dir, "data", "d", ".", "输入目录（restaurantes.csv, entregadores.csv, pedidos.csv）")
	cmd.Flags().BoolVar(&f.example, "example", false, "使用生成的示例数据")
	cmd.Flags().Int64Var(&f.seed, "seed", example.DefaultOptions().Seed, "示例数据随机种子")
}

// load 读取数据集，示例模式下无清洗报告
func (f *dataFlags) load() (*model.Dataset, *loader.CleaningReport, error) {
	if f.example {
		opts := example.DefaultOptions()
		opts.Seed = f.seed
		d, err := example.Generate(opts)
		return d, nil, err
	}
	return loader.Load(loader.DirFiles(f.dir))
}

// deadlines 配置中的时限策略
func (c *cli) deadlines() problem.DeadlinePolicy {
	return problem.DeadlinePolicy{
		Express:  c.cfg.Scenario.ExpressDeadline,
		Priority: c.cfg.Scenario.PriorityDeadline,
		Normal:   c.cfg.Scenario.NormalDeadline,
	}
}

// pipeline 按配置创建流水线，坐标模式下预热数据集涉及的位置
func (c *cli) pipeline(ctx context.Context, d *model.Dataset) (*allocator.Pipeline, func(), error) {
	cfg := allocator.Config{
		Backend:       c.cfg.Solver.Backend,
		TimeLimit:     c.cfg.Solver.TimeLimit,
		MaxNodes:      c.cfg.Solver.MaxNodes,
		AcceptTimeout: c.cfg.Solver.AcceptTimeout,
		Estimator:     allocator.OrderDistance(),
		Observer:      metrics.Recorder{},
	}
	closeFn := func() {}

	if c.cfg.Solver.Distance == "geo" {
		resolver, closeAll, err := geocode.Open(ctx, c.cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn = closeAll
		c.resolver = resolver
		if d != nil {
			if n, err := resolver.Warm(ctx, locationKeys(d)); err != nil {
				logger.Warn().Err(err).Msg("位置缓存预热失败")
			} else {
				logger.Debug().Int("warmed", n).Msg("位置缓存预热完成")
			}
		}
		cfg.Estimator = allocator.GeoDistance(resolver, c.cfg.Geocoder.PenaltyMinutes)
	}

	p, err := allocator.NewPipeline(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}

func locationKeys(d *model.Dataset) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		k = model.NormalizeLocationKey(k)
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, r := range d.Restaurants {
		add(r.LocationKey)
	}
	for _, c := range d.Couriers {
		add(c.LocationKey)
	}
	for _, o := range d.Orders {
		add(o.CustomerKey)
	}
	return keys
}

// solutionExit 方案完成度对应的退出码
func solutionExit(sol *result.Solution) error {
	switch sol.ExitStatus() {
	case result.ExitPartial:
		return &exitCodeError{code: apperrors.ExitPartial}
	case result.ExitFailure:
		return &exitCodeError{code: apperrors.ExitFailure}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "courierplan v%s\nBuild: %s (%s)\n", Version, BuildTime, GitCommit)
		},
	}
}
