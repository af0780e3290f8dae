package loader

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	apperrors "github.com/paiban/courierplan/pkg/errors"
	"github.com/paiban/courierplan/pkg/model"
)

// WriteFiles 以 Load 可读取的格式写出数据集
func WriteFiles(files Files, d *model.Dataset) error {
	if err := createFile(files.Restaurants, func(w io.Writer) error { return WriteRestaurants(w, d.Restaurants) }); err != nil {
		return err
	}
	if err := createFile(files.Couriers, func(w io.Writer) error { return WriteCouriers(w, d.Couriers) }); err != nil {
		return err
	}
	return createFile(files.Orders, func(w io.Writer) error { return WriteOrders(w, d.Orders) })
}

// WriteRestaurants 写出餐厅
func WriteRestaurants(w io.Writer, restaurants []model.Restaurant) error {
	rows := make([][]string, 0, len(restaurants))
	for _, r := range restaurants {
		rows = append(rows, []string{r.Name, r.LocationKey})
	}
	return writeCSV(w, []string{colRestaurantName[0], colRestaurantCEP[0]}, rows)
}

// WriteCouriers 写出骑手
func WriteCouriers(w io.Writer, couriers []model.Courier) error {
	header := []string{
		colCourierID[0], colCourierName[0], colCourierCapacity[0], colCourierSpeed[0],
		colCourierCost[0], colCourierAvail[0], colCourierCEP[0],
	}
	rows := make([][]string, 0, len(couriers))
	for _, c := range couriers {
		rows = append(rows, []string{
			c.ID, c.Name, strconv.Itoa(c.Capacity), formatNumber(c.SpeedKmh),
			formatNumber(c.CostPerHour), c.Availability, c.LocationKey,
		})
	}
	return writeCSV(w, header, rows)
}

// WriteOrders 写出订单
func WriteOrders(w io.Writer, orders []model.Order) error {
	header := []string{
		colOrderID[0], colOrderRest[0], colOrderCEP[0], colOrderPriority[0],
		colOrderValue[0], colOrderPrep[0], colOrderLeg[0], colOrderKm[0],
	}
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			o.ID, o.Restaurant, o.CustomerKey, strconv.Itoa(int(o.Priority)),
			formatNumber(o.Value), formatNumber(o.PrepMinutes),
			formatNumber(o.CustomerLegMinutes), formatNumber(o.RestaurantLegKm),
		})
	}
	return writeCSV(w, header, rows)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func createFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "创建数据文件失败").WithField("path", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return apperrors.Wrap(err, apperrors.CodeInternal, "写入数据文件失败").WithField("path", path)
	}
	return f.Close()
}
