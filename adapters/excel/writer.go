package excel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bayescal/domain/calibration"
	"bayescal/domain/posterior"

	"github.com/xuri/excelize/v2"
)

// Table is a header plus numeric-or-text rows ready to export.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]interface{}
}

// HistoryTable lays out attempts as (index, phase, params..., outcome,
// failed, reason, best).
func HistoryTable(names []string, attempts []calibration.AttemptRecord) Table {
	headers := append([]string{"index", "phase"}, names...)
	headers = append(headers, "outcome", "failed", "reason", "best")
	t := Table{Sheet: "history", Headers: headers}
	for _, a := range attempts {
		row := []interface{}{a.Index, string(a.Phase)}
		for _, v := range a.Vector {
			row = append(row, v)
		}
		var outcome interface{} = a.Outcome
		if a.Failed {
			outcome = ""
		}
		row = append(row, outcome, a.Failed, a.Reason, finiteCell(a.Best))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// PosteriorTable lays out posterior draws as (params..., predicted).
func PosteriorTable(post *posterior.Posterior) Table {
	headers := append(append([]string(nil), post.Names...), "predicted")
	t := Table{Sheet: "posterior", Headers: headers}
	for _, s := range post.Samples {
		row := make([]interface{}, 0, len(s.Vector)+1)
		for _, v := range s.Vector {
			row = append(row, v)
		}
		t.Rows = append(t.Rows, append(row, s.Predicted))
	}
	return t
}

// WriteTables writes tables to path. An .xlsx path gets one sheet per
// table; a .csv path accepts exactly one table.
func WriteTables(path string, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to write")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		if len(tables) != 1 {
			return fmt.Errorf("csv output holds one table, got %d", len(tables))
		}
		return writeCSV(path, tables[0])
	case ".xlsx":
		return writeXLSX(path, tables)
	default:
		return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}

func writeXLSX(path string, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	for i, t := range tables {
		sheet := t.Sheet
		if sheet == "" {
			sheet = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName(first, sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
		}

		header := make([]interface{}, len(t.Headers))
		for j, h := range t.Headers {
			header[j] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for r, row := range t.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			row := row
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("failed to write row %d: %w", r+1, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, t Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Headers); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func finiteCell(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
