package reports

import (
	"io"

	"CollectLedger/api/settlement/model"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Daily"

// ExportXLSX writes the rows as a workbook: fixed columns first, then
// cash count/amount and card count/amount for every provider, then the total.
func ExportXLSX(rows []Row, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	header := []interface{}{"Date", "Branch", "Register"}
	for _, p := range model.Providers {
		name := p.DisplayName()
		header = append(header,
			name+" cash #", name+" cash $",
			name+" card #", name+" card $")
	}
	header = append(header, "Total")
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, r := range rows {
		line := []interface{}{r.Date, r.BranchName, r.RegisterName}
		for _, p := range model.Providers {
			t := r.Providers[p]
			line = append(line,
				t.CashCount, t.CashAmount.InexactFloat64(),
				t.CardCount, t.CardAmount.InexactFloat64())
		}
		line = append(line, r.Total.InexactFloat64())
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &line); err != nil {
			return err
		}
	}
	amountCols := []int{len(header)}
	for j := range model.Providers {
		amountCols = append(amountCols, 4+j*4+1, 4+j*4+3)
	}
	for _, c := range amountCols {
		col, _ := excelize.ColumnNumberToName(c)
		if err := f.SetColStyle(sheetName, col, money); err != nil {
			return err
		}
	}
	return f.Write(w)
}
