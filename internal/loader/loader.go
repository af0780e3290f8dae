// Package loader 读取并清洗餐厅、骑手与订单 CSV 数据
package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/logger"
	"github.com/paiban/courierplan/pkg/model"
)

// 默认文件名
const (
	RestaurantsFile = "restaurantes.csv"
	CouriersFile    = "entregadores.csv"
	OrdersFile      = "pedidos.csv"
)

// 列名，按顺序匹配别名
var (
	colRestaurantName = []string{"Restaurante", "nome_restaurante", "restaurant"}
	colRestaurantCEP  = []string{"CEP", "cep"}

	colCourierID       = []string{"ID", "id"}
	colCourierName     = []string{"Nome", "name"}
	colCourierCapacity = []string{"Capacidade Máxima", "capacity"}
	colCourierSpeed    = []string{"Velocidade Média (km/h)", "speed_kmh"}
	colCourierCost     = []string{"Custo Operacional (R$/h)", "cost_per_hour"}
	colCourierAvail    = []string{"Disponibilidade (h/dia)", "Disponibilidade", "availability"}
	colCourierCEP      = []string{"Endereço (CEP)", "location_key"}

	colOrderID       = []string{"pedido_id", "id"}
	colOrderRest     = []string{"nome_restaurante", "restaurant"}
	colOrderCEP      = []string{"cep_cliente", "customer_key"}
	colOrderPriority = []string{"prioridade", "priority"}
	colOrderValue    = []string{"valor_pedido", "value"}
	colOrderPrep     = []string{"tempo_preparo_min", "prep_minutes"}
	colOrderLeg      = []string{"tempo_deslocamento_min", "customer_leg_minutes"}
	colOrderKm       = []string{"distancia_km", "restaurant_leg_km"}
)

// Issue 清洗时丢弃的行
type Issue struct {
	File   string `json:"file" yaml:"file"`
	Row    int    `json:"row" yaml:"row"` // 数据行号，从 1 开始
	Column string `json:"column" yaml:"column"`
	Value  string `json:"value" yaml:"value"`
	Reason string `json:"reason" yaml:"reason"`
}

// CleaningReport 清洗报告
type CleaningReport struct {
	RestaurantsRead int     `json:"restaurants_read" yaml:"restaurants_read"`
	CouriersRead    int     `json:"couriers_read" yaml:"couriers_read"`
	CouriersDropped int     `json:"couriers_dropped" yaml:"couriers_dropped"`
	OrdersRead      int     `json:"orders_read" yaml:"orders_read"`
	OrdersDropped   int     `json:"orders_dropped" yaml:"orders_dropped"`
	Issues          []Issue `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Files 输入文件路径
type Files struct {
	Restaurants string
	Couriers    string
	Orders      string
}

// DirFiles 目录下的默认文件
func DirFiles(dir string) Files {
	return Files{
		Restaurants: filepath.Join(dir, RestaurantsFile),
		Couriers:    filepath.Join(dir, CouriersFile),
		Orders:      filepath.Join(dir, OrdersFile),
	}
}

// Load 读取三个文件并组装数据集
func Load(files Files) (*model.Dataset, *CleaningReport, error) {
	report := &CleaningReport{}
	d := &model.Dataset{}

	err := withFile(files.Restaurants, func(r io.Reader) error {
		var err error
		d.Restaurants, err = ReadRestaurants(r)
		report.RestaurantsRead = len(d.Restaurants)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	err = withFile(files.Couriers, func(r io.Reader) error {
		couriers, issues, read, err := readCouriers(r, filepath.Base(files.Couriers))
		d.Couriers = couriers
		report.CouriersRead = read
		report.CouriersDropped = read - len(couriers)
		report.Issues = append(report.Issues, issues...)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	err = withFile(files.Orders, func(r io.Reader) error {
		orders, issues, read, err := readOrders(r, filepath.Base(files.Orders))
		d.Orders = orders
		report.OrdersRead = read
		report.OrdersDropped = read - len(orders)
		report.Issues = append(report.Issues, issues...)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info().
		Int("restaurants", report.RestaurantsRead).
		Int("couriers", len(d.Couriers)).
		Int("couriers_dropped", report.CouriersDropped).
		Int("orders", len(d.Orders)).
		Int("orders_dropped", report.OrdersDropped).
		Msg("数据加载完成")

	return d, report, nil
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "打开数据文件失败").WithField("path", path)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		if apperrors.GetCode(err) != apperrors.CodeUnknown {
			return err
		}
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "读取数据文件失败").WithField("path", path)
	}
	return nil
}

// ReadRestaurants 读取餐厅
func ReadRestaurants(r io.Reader) ([]model.Restaurant, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	name, err := t.column(colRestaurantName)
	if err != nil {
		return nil, err
	}
	cep, err := t.column(colRestaurantCEP)
	if err != nil {
		return nil, err
	}

	out := make([]model.Restaurant, 0, len(t.rows))
	for _, row := range t.rows {
		n := strings.TrimSpace(row.get(name))
		if n == "" {
			continue
		}
		out = append(out, model.Restaurant{Name: n, LocationKey: model.NormalizeLocationKey(row.get(cep))})
	}
	return out, nil
}

// ReadCouriers 读取骑手，数值无法解析的行被丢弃
func ReadCouriers(r io.Reader) ([]model.Courier, []Issue, error) {
	couriers, issues, _, err := readCouriers(r, CouriersFile)
	return couriers, issues, err
}

func readCouriers(r io.Reader, file string) ([]model.Courier, []Issue, int, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, nil, 0, err
	}
	cols, err := t.columns(colCourierID, colCourierCapacity, colCourierSpeed)
	if err != nil {
		return nil, nil, 0, err
	}
	id, capacity, speed := cols[0], cols[1], cols[2]
	name := t.optional(colCourierName)
	cost := t.optional(colCourierCost)
	avail := t.optional(colCourierAvail)
	cep := t.optional(colCourierCEP)

	var (
		out    []model.Courier
		issues []Issue
	)
	for i, row := range t.rows {
		p := rowParser{file: file, row: i + 1, cells: row}
		c := model.Courier{
			ID:           strings.TrimSpace(row.get(id)),
			Name:         strings.TrimSpace(row.get(name)),
			Capacity:     p.integer(t.header[capacity], capacity),
			SpeedKmh:     p.number(t.header[speed], speed),
			Availability: strings.TrimSpace(row.get(avail)),
			LocationKey:  model.NormalizeLocationKey(row.get(cep)),
		}
		if cost >= 0 {
			c.CostPerHour = p.number(t.header[cost], cost)
		}
		if c.ID == "" {
			p.fail(t.header[id], "", "缺少骑手ID")
		}
		if p.issue != nil {
			issues = append(issues, *p.issue)
			continue
		}
		out = append(out, c)
	}
	return out, issues, len(t.rows), nil
}

// ReadOrders 读取订单，数值无法解析的行被丢弃
func ReadOrders(r io.Reader) ([]model.Order, []Issue, error) {
	orders, issues, _, err := readOrders(r, OrdersFile)
	return orders, issues, err
}

func readOrders(r io.Reader, file string) ([]model.Order, []Issue, int, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, nil, 0, err
	}
	cols, err := t.columns(colOrderID, colOrderRest, colOrderPriority, colOrderValue, colOrderPrep, colOrderLeg, colOrderKm)
	if err != nil {
		return nil, nil, 0, err
	}
	id, rest, prio, value, prep, leg, km := cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], cols[6]
	cep := t.optional(colOrderCEP)

	var (
		out    []model.Order
		issues []Issue
	)
	for i, row := range t.rows {
		p := rowParser{file: file, row: i + 1, cells: row}
		o := model.Order{
			ID:                 strings.TrimSpace(row.get(id)),
			Restaurant:         strings.TrimSpace(row.get(rest)),
			CustomerKey:        model.NormalizeLocationKey(row.get(cep)),
			Priority:           model.Priority(p.integer(t.header[prio], prio)),
			Value:              p.number(t.header[value], value),
			PrepMinutes:        p.number(t.header[prep], prep),
			CustomerLegMinutes: p.number(t.header[leg], leg),
			RestaurantLegKm:    p.number(t.header[km], km),
		}
		if o.ID == "" {
			p.fail(t.header[id], "", "缺少订单ID")
		}
		if p.issue != nil {
			issues = append(issues, *p.issue)
			continue
		}
		out = append(out, o)
	}
	return out, issues, len(t.rows), nil
}

// ParseNumber 解析巴西格式数值：去除 R$ 前缀与空白，逗号为小数点
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return math.NaN(), fmt.Errorf("空值")
	}
	if strings.Contains(s, ",") {
		// 1.234,56 形式，点为千分位
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), fmt.Errorf("无法解析数值")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), fmt.Errorf("非有限数值")
	}
	return v, nil
}

type cells []string

func (c cells) get(idx int) string {
	if idx < 0 || idx >= len(c) {
		return ""
	}
	return c[idx]
}

type table struct {
	header []string
	index  map[string]int
	rows   []cells
}

// readTable 读取 CSV，根据表头自动识别逗号或分号分隔
func readTable(r io.Reader) (*table, error) {
	br := bufio.NewReader(r)
	first, _ := br.Peek(4096)
	line := string(first)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	cr := csv.NewReader(br)
	if strings.Count(line, ";") > strings.Count(line, ",") {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "CSV 格式错误")
	}
	if len(records) == 0 {
		return nil, apperrors.InvalidInput("csv", "缺少表头")
	}

	t := &table{header: records[0], index: make(map[string]int, len(records[0]))}
	for i, h := range t.header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.header[i] = h
		t.index[strings.ToLower(h)] = i
	}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, cells(rec))
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (t *table) optional(aliases []string) int {
	for _, a := range aliases {
		if i, ok := t.index[strings.ToLower(a)]; ok {
			return i
		}
	}
	return -1
}

func (t *table) column(aliases []string) (int, error) {
	if i := t.optional(aliases); i >= 0 {
		return i, nil
	}
	return -1, apperrors.InvalidInput(aliases[0], "缺少必需列")
}

func (t *table) columns(aliases ...[]string) ([]int, error) {
	out := make([]int, len(aliases))
	for k, a := range aliases {
		i, err := t.column(a)
		if err != nil {
			return nil, err
		}
		out[k] = i
	}
	return out, nil
}

// rowParser 记录一行中的第一个解析错误
type rowParser struct {
	file  string
	row   int
	cells cells
	issue *Issue
}

func (p *rowParser) fail(column, value, reason string) {
	if p.issue == nil {
		p.issue = &Issue{File: p.file, Row: p.row, Column: column, Value: value, Reason: reason}
	}
}

func (p *rowParser) number(column string, idx int) float64 {
	raw := p.cells.get(idx)
	v, err := ParseNumber(raw)
	if err != nil {
		p.fail(column, raw, err.Error())
	}
	return v
}

func (p *rowParser) integer(column string, idx int) int {
	v := p.number(column, idx)
	if math.IsNaN(v) {
		return 0
	}
	if v != math.Trunc(v) {
		p.fail(column, p.cells.get(idx), "需要整数")
		return 0
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		p.fail(column, p.cells.get(idx), "超出整数范围")
		return 0
	}
	return int(v)
}
