package parsers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// loadRows reads the first sheet of an uploaded workbook. xlsx is tried
// first, then legacy xls, then delimited text.
func loadRows(data []byte) ([][]string, error) {
	if rows, err := readXLSX(data); err == nil {
		return rows, nil
	}
	if rows, err := readXLS(data); err == nil {
		return rows, nil
	}
	rows, err := readDelimited(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()
	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// raw values keep dates as serial numbers instead of locale formatted text
	return xl.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func readXLS(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("xls reader: %v", r)
		}
	}()
	book, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	sheet, err := book.GetSheet(0)
	if err != nil {
		return nil, err
	}
	if sheet == nil {
		return nil, errors.New("xls has no sheets")
	}
	for _, row := range sheet.GetRows() {
		var vals []string
		for _, col := range row.GetCols() {
			vals = append(vals, col.GetString())
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func readDelimited(data []byte) ([][]string, error) {
	text := decodeText(data)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty file")
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func sniffDelimiter(text string) rune {
	sample := text
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if strings.Count(sample, ";") >= strings.Count(sample, ",") && strings.Contains(sample, ";") {
		return ';'
	}
	return ','
}
