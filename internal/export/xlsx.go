// Package export renders quotations and statistics as downloadable
// spreadsheets and PDFs. Exports are built in memory from loaded data and
// never stored.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-quotations/internal/services"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Report"

type column struct {
	Label string
	Width float64
}

// writeSheet builds a one-sheet workbook: title, generated-at line, a
// styled header on row 4 and the data from row 5.
func writeSheet(title string, columns []column, rows [][]any, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	f.SetCellValue(sheetName, "A1", title)
	f.SetCellStyle(sheetName, "A1", "A1", titleStyle)
	f.SetRowHeight(sheetName, 1, 30)
	f.SetCellValue(sheetName, "A2", fmt.Sprintf("Generated: %s", now.Format("2006-01-02 15:04:05")))

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, c := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		f.SetCellValue(sheetName, cell, c.Label)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, name, name, c.Width)
	}

	dataStyle, _ := f.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "CCCCCC", Style: 1},
			{Type: "right", Color: "CCCCCC", Style: 1},
			{Type: "top", Color: "CCCCCC", Style: 1},
			{Type: "bottom", Color: "CCCCCC", Style: 1},
		},
	})
	for r, row := range rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+5)
			f.SetCellValue(sheetName, cell, value)
			f.SetCellStyle(sheetName, cell, cell, dataStyle)
		}
	}

	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

var quotationColumns = []column{
	{"ID", 8}, {"Project", 30}, {"Date", 12}, {"Validity", 12}, {"Budget", 22},
	{"Recipient", 24}, {"Status", 12}, {"Currency", 10}, {"Subtotal", 14},
	{"Discount", 12}, {"Total", 14}, {"Vendor", 22}, {"Vendor cost", 14},
	{"Vendor currency", 10}, {"Vendor cost (IQD)", 18}, {"Created by", 24},
}

// QuotationsXLSX renders a filtered quotation list.
func QuotationsXLSX(rows []services.QuotationRow, now time.Time) ([]byte, error) {
	data := make([][]any, 0, len(rows))
	for _, q := range rows {
		vendor, creator := "", ""
		if q.Vendor != nil {
			vendor = q.Vendor.Name
		}
		if q.Creator != nil {
			creator = q.Creator.FullName()
		}
		data = append(data, []any{
			q.ID, q.ProjectName, q.Date, q.ValidityDate, q.BudgetType,
			q.Recipient, string(q.Status), strings.ToUpper(q.CurrencyType), q.Subtotal,
			q.Discount, q.Total, vendor, q.VendorCost,
			strings.ToUpper(q.VendorCurrencyType), q.VendorCostIQD, creator,
		})
	}
	return writeSheet("Quotations", quotationColumns, data, now)
}

var itemColumns = []column{
	{"Item", 30}, {"Type", 20}, {"Quantity", 12}, {"Total value (IQD)", 20}, {"Quotations", 12},
}

// ItemStatsXLSX renders aggregated item statistics.
func ItemStatsXLSX(items []services.ItemStat, now time.Time) ([]byte, error) {
	data := make([][]any, 0, len(items))
	for _, it := range items {
		data = append(data, []any{it.Name, it.TypeName, it.Quantity, it.TotalValueIQD, it.QuotationCount})
	}
	return writeSheet("Item statistics", itemColumns, data, now)
}
