package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paiban/courierplan/internal/example"
	"github.com/paiban/courierplan/internal/loader"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
)

func newExampleCmd(c *cli) *cobra.Command {
	var (
		opts   = example.DefaultOptions()
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "example",
		Short: "生成示例数据集",
		Example: `  courierplan example --couriers 8 --orders 30 --out ./dados
  courierplan example --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := example.Generate(opts)
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.MkdirAll(out, 0o755); err != nil {
					return apperrors.Wrap(err, apperrors.CodeInternal, "创建输出目录失败").WithField("path", out)
				}
				files := loader.DirFiles(out)
				if err := loader.WriteFiles(files, d); err != nil {
					return err
				}
				logger.Info().
					Str("dir", out).
					Int("couriers", len(d.Couriers)).
					Int("orders", len(d.Orders)).
					Msg("示例数据已写出")
				return nil
			}

			switch format {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(d); err != nil {
					return err
				}
				return enc.Close()
			case "json", "":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			default:
				return apperrors.InvalidInput("format", "示例数据仅支持 json 或 yaml")
			}
		},
	}

	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "随机种子")
	cmd.Flags().IntVar(&opts.Couriers, "couriers", opts.Couriers, "骑手数量")
	cmd.Flags().IntVar(&opts.Orders, "orders", opts.Orders, "订单数量")
	cmd.Flags().IntVar(&opts.Restaurants, "restaurants", 0, "餐厅数量（0 表示按订单数推算）")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "输出格式 json/yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "写出 CSV 数据文件的目录")
	return cmd
}
