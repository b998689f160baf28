package excel

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bayescal/domain/core"

	"github.com/montanaflynn/stats"
)

// DefaultAnomalyThreshold is the |z| above which a month is flagged.
const DefaultAnomalyThreshold = 3.0

// MonthlyBill is one metered billing period.
type MonthlyBill struct {
	Month string  `json:"month"`
	KWh   float64 `json:"kwh"`
}

// UtilityBills is the metered consumption used as the observed outcome.
type UtilityBills struct {
	Bills    []MonthlyBill `json:"bills"`
	TotalKWh float64       `json:"total_kwh"`
}

// ReadUtilityBills reads a bill sheet with a month column and a kWh
// column from .xlsx or .csv and totals it. Numbers may carry thousands
// separators and a unit suffix ("1,234 kWh").
func ReadUtilityBills(path string) (*UtilityBills, error) {
	data, err := NewDataReader(path).ReadData()
	if err != nil {
		return nil, err
	}

	monthCol, ok := data.FindColumn("month", "period", "billing_period", "date")
	if !ok {
		return nil, core.NewConfigError("bills", "no month column (month, period, billing_period, date)")
	}
	kwhCol, ok := data.FindColumn("kwh", "usage_kwh", "energy_kwh", "consumption", "usage")
	if !ok {
		return nil, core.NewConfigError("bills", "no kWh column (kwh, usage_kwh, energy_kwh, consumption, usage)")
	}

	bills := &UtilityBills{}
	for i, row := range data.Rows {
		kwh, err := parseQuantity(row[kwhCol])
		if err != nil {
			return nil, core.NewConfigError("bills", fmt.Sprintf("row %d: %v", i+2, err))
		}
		if kwh < 0 {
			return nil, core.NewConfigError("bills", fmt.Sprintf("row %d: negative consumption %g", i+2, kwh))
		}
		bills.Bills = append(bills.Bills, MonthlyBill{Month: row[monthCol], KWh: kwh})
		bills.TotalKWh += kwh
	}
	if len(bills.Bills) == 0 {
		return nil, fmt.Errorf("%w: bill sheet has no rows", core.ErrInsufficientData)
	}
	return bills, nil
}

// BillAnomaly is a month whose consumption sits far from the others.
type BillAnomaly struct {
	Index  int     `json:"index"`
	Month  string  `json:"month"`
	KWh    float64 `json:"kwh"`
	ZScore float64 `json:"z_score"`
}

// Anomalies flags months whose population z-score exceeds threshold in
// magnitude. A non-positive threshold uses DefaultAnomalyThreshold.
// Flat series have no anomalies.
func (u *UtilityBills) Anomalies(threshold float64) []BillAnomaly {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultAnomalyThreshold
	}
	if len(u.Bills) < 2 {
		return nil
	}
	kwh := make(stats.Float64Data, len(u.Bills))
	for i, b := range u.Bills {
		kwh[i] = b.KWh
	}
	mean, _ := kwh.Mean()
	sd, _ := kwh.StandardDeviationPopulation()
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}

	var out []BillAnomaly
	for i, b := range u.Bills {
		z := (b.KWh - mean) / sd
		if math.Abs(z) > threshold {
			out = append(out, BillAnomaly{Index: i, Month: b.Month, KWh: b.KWh, ZScore: z})
		}
	}
	return out
}

func parseQuantity(s string) (float64, error) {
	clean := strings.ToLower(strings.TrimSpace(s))
	clean = strings.TrimSuffix(clean, "kwh")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return 0, fmt.Errorf("empty kWh value")
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid kWh value %q", s)
	}
	return v, nil
}
