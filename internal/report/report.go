// Package report 输出分配方案、分析与场景对比
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paiban/courierplan/internal/loader"
	"github.com/paiban/courierplan/pkg/allocator/result"
	"github.com/paiban/courierplan/pkg/allocator/scenario"
	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/stats"
)

// Format 输出格式
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// TextPreview 文本摘要中列出的分配条数
const TextPreview = 10

// ParseFormat 解析输出格式
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	default:
		return "", apperrors.InvalidInput("format", fmt.Sprintf("未知输出格式 %q", s))
	}
}

// Parameters 运行参数
type Parameters struct {
	Couriers    int    `json:"couriers" yaml:"couriers"`
	Orders      int    `json:"orders" yaml:"orders"`
	Restaurants int    `json:"restaurants" yaml:"restaurants"`
	Backend     string `json:"backend" yaml:"backend"`
	Distance    string `json:"distance,omitempty" yaml:"distance,omitempty"`
}

// Report 单次求解报告
type Report struct {
	Timestamp  time.Time              `json:"timestamp" yaml:"timestamp"`
	Parameters Parameters             `json:"parameters" yaml:"parameters"`
	Solution   *result.Solution       `json:"solution" yaml:"solution"`
	Analysis   *stats.Analysis        `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Cleaning   *loader.CleaningReport `json:"cleaning,omitempty" yaml:"cleaning,omitempty"`
}

// Write 按格式输出报告，CSV 只输出分配明细
func Write(w io.Writer, format Format, rep *Report) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatYAML:
		return writeYAML(w, rep)
	case FormatCSV:
		return WriteAllocationsCSV(w, rep.Solution)
	default:
		return WriteText(w, rep)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// WriteAllocationsCSV 输出分配明细
func WriteAllocationsCSV(w io.Writer, sol *result.Solution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"courier_id", "order_id", "restaurant", "priority", "value", "delivery_minutes"}); err != nil {
		return err
	}
	for _, a := range sol.Allocations {
		rec := []string{
			a.CourierID,
			a.OrderID,
			a.Restaurant,
			strconv.Itoa(int(a.Priority)),
			strconv.FormatFloat(a.Value, 'f', 2, 64),
			strconv.FormatFloat(a.DeliveryMinutes, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText 输出文本摘要，只列出前若干条分配
func WriteText(w io.Writer, rep *Report) error {
	sol := rep.Solution
	b := &strings.Builder{}

	fmt.Fprintln(b, strings.Repeat("=", 60))
	fmt.Fprintln(b, "骑手分配报告")
	fmt.Fprintln(b, strings.Repeat("=", 60))
	fmt.Fprintf(b, "求解器: %s  模型: %s  状态: %s", sol.Backend, sol.Variant, sol.Status)
	if !sol.Optimal {
		fmt.Fprint(b, " (非最优)")
	}
	fmt.Fprintln(b)
	fmt.Fprintf(b, "目标值: %.2f\n", sol.Objective)
	fmt.Fprintf(b, "总配送时长: %.2f 分钟\n", sol.TotalMinutes)
	fmt.Fprintf(b, "平均配送时长: %.2f 分钟\n", sol.MeanMinutes)
	fmt.Fprintf(b, "使用骑手: %d\n", sol.CouriersUsed)
	fmt.Fprintf(b, "已分配订单: %d/%d\n", sol.Allocated, sol.Total)
	for _, warn := range sol.Warnings {
		fmt.Fprintf(b, "警告: %s\n", warn)
	}

	fmt.Fprintln(b, "\n分配明细:")
	for i, a := range sol.Allocations {
		if i == TextPreview {
			break
		}
		fmt.Fprintf(b, "  骑手 %s -> 订单 %s (%s) 时长 %.1f 分钟 优先级 %s\n",
			a.CourierID, a.OrderID, a.Restaurant, a.DeliveryMinutes, a.Priority)
	}
	if n := len(sol.Allocations) - TextPreview; n > 0 {
		fmt.Fprintf(b, "  ... 另有 %d 条分配\n", n)
	}

	if rep.Cleaning != nil && (rep.Cleaning.CouriersDropped > 0 || rep.Cleaning.OrdersDropped > 0) {
		fmt.Fprintf(b, "\n清洗: 丢弃骑手 %d 行，订单 %d 行\n", rep.Cleaning.CouriersDropped, rep.Cleaning.OrdersDropped)
	}
	if rep.Analysis != nil {
		fmt.Fprintln(b)
		writeAnalysis(b, rep.Analysis)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteAnalysis 输出分析
func WriteAnalysis(w io.Writer, format Format, a *stats.Analysis) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, a)
	case FormatYAML:
		return writeYAML(w, a)
	case FormatText:
		b := &strings.Builder{}
		writeAnalysis(b, a)
		_, err := io.WriteString(w, b.String())
		return err
	default:
		return apperrors.InvalidInput("format", fmt.Sprintf("分析不支持 %s 格式", format))
	}
}

func writeAnalysis(b *strings.Builder, a *stats.Analysis) {
	d := a.Distribution
	fmt.Fprintln(b, "配送时长分布:")
	fmt.Fprintf(b, "  均值 %.2f  中位数 %.2f  标准差 %.2f\n", d.Mean, d.Median, d.StdDev)
	fmt.Fprintf(b, "  最小 %.2f  最大 %.2f  Q25 %.2f  Q75 %.2f\n", d.Min, d.Max, d.Q25, d.Q75)
	for _, band := range d.Bands {
		fmt.Fprintf(b, "  %-10s %d\n", band.Name, band.Count)
	}

	u := a.Utilization
	fmt.Fprintln(b, "骑手利用率:")
	fmt.Fprintf(b, "  使用 %d/%d (%.1f%%)\n", u.Used, u.Available, u.Rate*100)
	fmt.Fprintf(b, "  每骑手订单 均值 %.2f 最大 %d 最小 %d 标准差 %.2f\n", u.MeanOrders, u.MaxOrders, u.MinOrders, u.StdDevOrders)

	fmt.Fprintln(b, "优先级:")
	for _, p := range a.Priorities {
		fmt.Fprintf(b, "  %-8s %d 单  平均 %.2f 分钟 (%.2f-%.2f)  平均金额 %.2f  总金额 %.2f\n",
			p.Name, p.Count, p.MeanMinutes, p.MinMinutes, p.MaxMinutes, p.MeanValue, p.TotalValue)
	}
}

// WriteComparison 输出场景对比表
func WriteComparison(w io.Writer, format Format, table *scenario.ComparisonTable) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, table)
	case FormatYAML:
		return writeYAML(w, table)
	case FormatCSV:
		return writeRowsCSV(w, table.Rows)
	default:
		return writeRowsText(w, table.Rows)
	}
}

// WriteSweep 输出运力扫描结果
func WriteSweep(w io.Writer, format Format, results []scenario.Result) error {
	table := scenario.NewComparisonTable(results)
	for i := range table.Rows {
		table.Rows[i].Name = fmt.Sprintf("capacity=%d", results[i].Capacity)
	}
	return WriteComparison(w, format, table)
}

var rowHeader = []string{"scenario", "total_minutes", "mean_minutes", "couriers_used", "objective", "allocated", "status", "error"}

func rowFields(r scenario.ComparisonRow) []string {
	if r.Status == "infeasible" || r.Status == "failed" {
		return []string{r.Name, "-", "-", "-", "-", "-", r.Status, r.Error}
	}
	return []string{
		r.Name,
		strconv.FormatFloat(r.TotalMinutes, 'f', 2, 64),
		strconv.FormatFloat(r.MeanMinutes, 'f', 2, 64),
		strconv.Itoa(r.CouriersUsed),
		strconv.FormatFloat(r.Objective, 'f', 2, 64),
		fmt.Sprintf("%d/%d", r.Allocated, r.Total),
		r.Status,
		r.Error,
	}
}

func writeRowsCSV(w io.Writer, rows []scenario.ComparisonRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rowHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(rowFields(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRowsText(w io.Writer, rows []scenario.ComparisonRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(rowHeader, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(rowFields(r), "\t"))
	}
	return tw.Flush()
}

// Export 写出 <base>.json 与 <base>_allocations.csv，返回写入的文件
func Export(base string, rep *Report) ([]string, error) {
	base = strings.TrimSuffix(base, ".json")
	jsonPath := base + ".json"
	csvPath := base + "_allocations.csv"

	if err := writeFile(jsonPath, func(w io.Writer) error { return writeJSON(w, rep) }); err != nil {
		return nil, err
	}
	if err := writeFile(csvPath, func(w io.Writer) error { return WriteAllocationsCSV(w, rep.Solution) }); err != nil {
		return nil, err
	}
	return []string{jsonPath, csvPath}, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "创建输出文件失败").WithField("path", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return apperrors.Wrap(err, apperrors.CodeInternal, "写入输出文件失败").WithField("path", path)
	}
	return f.Close()
}
