package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/courierplan/internal/report"
	"github.com/paiban/courierplan/pkg/allocator"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/stats"
)

func newSolveCmd(c *cli) *cobra.Command {
	var (
		data      dataFlags
		format    string
		output    string
		deadlines bool
		analysis  bool
	)

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "求解一批订单的最优分配",
		Example: `  courierplan solve --data ./dados --format json
  courierplan solve --example --deadlines --output resultado.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			d, cleaning, err := data.load()
			if err != nil {
				return err
			}
			p, closeFn, err := c.pipeline(ctx, d)
			if err != nil {
				return err
			}
			defer closeFn()

			var opts allocator.RunOptions
			if deadlines {
				policy := c.deadlines()
				opts.Deadlines = &policy
			}
			sol, err := p.Run(ctx, d, opts)
			if err != nil {
				return err
			}

			rep := &report.Report{
				Timestamp: time.Now(),
				Parameters: report.Parameters{
					Couriers:    len(d.Couriers),
					Orders:      len(d.Orders),
					Restaurants: len(d.Restaurants),
					Backend:     p.Backend(),
					Distance:    c.cfg.Solver.Distance,
				},
				Solution: sol,
				Cleaning: cleaning,
			}
			if analysis {
				rep.Analysis = stats.Analyze(stats.FromSolution(sol), len(d.Couriers))
			}
			if err := report.Write(cmd.OutOrStdout(), f, rep); err != nil {
				return err
			}

			if output != "" {
				files, err := report.Export(output, rep)
				if err != nil {
					return err
				}
				logger.Info().Strs("files", files).Msg("结果已导出")
			}
			return solutionExit(sol)
		},
	}

	data.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "输出格式 text/json/yaml/csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "导出文件（<base>.json 与 <base>_allocations.csv）")
	cmd.Flags().BoolVar(&deadlines, "deadlines", false, "按配置的优先级时限求解")
	cmd.Flags().BoolVar(&analysis, "analysis", false, "附带分配分析")
	return cmd
}

func newAnalyzeCmd(c *cli) *cobra.Command {
	var (
		data   dataFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "求解并输出配送时长、骑手利用率与优先级分析",
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
			p, closeFn, err := c.pipeline(ctx, d)
			if err != nil {
				return err
			}
			defer closeFn()

			sol, err := p.Run(ctx, d, allocator.RunOptions{})
			if err != nil {
				return err
			}
			a := stats.Analyze(stats.FromSolution(sol), len(d.Couriers))
			if err := report.WriteAnalysis(cmd.OutOrStdout(), f, a); err != nil {
				return err
			}
			return solutionExit(sol)
		},
	}

	data.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "输出格式 text/json/yaml")
	return cmd
}
