package main

import (
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/paiban/courierplan/internal/metrics"
	"github.com/paiban/courierplan/internal/report"
	"github.com/paiban/courierplan/pkg/allocator/scenario"
)

func newScenariosCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "场景对比：时限变体、运力减半与运力扫描",
	}
	cmd.AddCommand(newCompareCmd(c), newSweepCmd(c))
	return cmd
}

func newCompareCmd(c *cli) *cobra.Command {
	var (
		data       dataFlags
		format     string
		noDeadline bool
		noReduced  bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "并行求解基线、时限与运力减半场景并输出对比表",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			d, _, err := data.load()
			if err != nil {
				return err
			}
			if err := d.Validate(); err != nil {
				return err
			}
			p, closeFn, err := c.pipeline(ctx, d)
			if err != nil {
				return err
			}
			defer closeFn()

			req := scenario.ComparisonRequest{Reduced: c.cfg.Scenario.Reduced && !noReduced}
			if !noDeadline {
				policy := c.deadlines()
				req.Deadlines = &policy
			}
			runner := scenario.NewRunner(p, d, scenario.Options{
				Workers:  c.cfg.Scenario.Workers,
				Observer: metrics.Recorder{},
			})
			table, err := runner.Compare(ctx, req)
			if err != nil {
				return err
			}
			return report.WriteComparison(cmd.OutOrStdout(), f, table)
		},
	}

	data.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "输出格式 text/json/yaml/csv")
	cmd.Flags().BoolVar(&noDeadline, "no-deadline", false, "跳过时限场景")
	cmd.Flags().BoolVar(&noReduced, "no-reduced", false, "跳过运力减半场景")
	return cmd
}

func newSweepCmd(c *cli) *cobra.Command {
	var (
		data     dataFlags
		format   string
		from, to int
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "将所有骑手运力统一设为区间内每个值并分别求解",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("from") {
				from = c.cfg.Scenario.SweepFrom
			}
			if !cmd.Flags().Changed("to") {
				to = c.cfg.Scenario.SweepTo
			}
			ctx := cmd.Context()

			d, _, err := data.load()
			if err != nil {
				return err
			}
			if err := d.Validate(); err != nil {
				return err
			}
			p, closeFn, err := c.pipeline(ctx, d)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := scenario.Options{
				Workers:        c.cfg.Scenario.Workers,
				MaxSweepPoints: c.cfg.Scenario.SweepMaxPoints,
				Observer:       metrics.Recorder{},
			}
			var bar *progressbar.ProgressBar
			if !quiet && from >= 1 && to >= from && to-from < c.cfg.Scenario.SweepMaxPoints {
				bar = progressbar.NewOptions(to-from+1,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("运力扫描"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				opts.OnProgress = func(done, total int) { _ = bar.Set(done) }
			}

			results, err := scenario.NewRunner(p, d, opts).CapacitySweep(ctx, from, to)
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}
			return report.WriteSweep(cmd.OutOrStdout(), f, results)
		},
	}

	data.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "输出格式 text/json/yaml/csv")
	cmd.Flags().IntVar(&from, "from", 1, "运力区间起点")
	cmd.Flags().IntVar(&to, "to", 10, "运力区间终点（含）")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "不显示进度条")
	return cmd
}
