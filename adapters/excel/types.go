package excel

// RawRowData represents a row of raw sheet data as header -> cell text
type RawRowData map[string]string

// ExcelData represents a parsed sheet
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows, blank rows removed
}
