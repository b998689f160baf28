// Package report renders a calibration run as Markdown or HTML.
package report

import (
	"fmt"
	"strings"
	"time"

	"bayescal/domain/calibration"
	"bayescal/domain/posterior"
	"bayescal/domain/sensitivity"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Input collects everything a report can show. Only RunID, Names and
// Attempts are required.
type Input struct {
	RunID       string
	Title       string
	Names       []string
	Goal        calibration.Goal
	Attempts    []calibration.AttemptRecord
	Best        calibration.Sample
	Failures    int
	Runtime     time.Duration
	Posterior   *posterior.Posterior
	Summaries   []posterior.ParameterSummary
	Savings     *posterior.CounterfactualReport
	Sensitivity *sensitivity.Result
}

// Markdown renders the report body.
func Markdown(in Input) string {
	var b strings.Builder
	title := in.Title
	if title == "" {
		title = "Calibration report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", in.RunID)
	goal := string(in.Goal.Kind)
	if goal == "" {
		goal = string(calibration.GoalMinimize)
	}
	if in.Goal.Kind == calibration.GoalMatchTarget {
		goal = fmt.Sprintf("%s %g", goal, in.Goal.Target)
	}
	fmt.Fprintf(&b, "- **Goal:** %s\n", goal)
	fmt.Fprintf(&b, "- **Evaluations:** %d (%d failed)\n", len(in.Attempts), in.Failures)
	if in.Runtime > 0 {
		fmt.Fprintf(&b, "- **Runtime:** %s\n", in.Runtime.Round(time.Millisecond))
	}
	b.WriteString("\n")

	if len(in.Best.Vector) > 0 {
		b.WriteString("## Best sample\n\n")
		writeTable(&b, append(append([]string(nil), in.Names...), "outcome"),
			[][]string{append(formatFloats(in.Best.Vector), fmtNum(in.Best.Outcome))})
	}

	if len(in.Attempts) > 0 {
		b.WriteString("## Evaluation history\n\n")
		headers := append([]string{"#", "phase"}, in.Names...)
		headers = append(headers, "outcome", "best")
		rows := make([][]string, 0, len(in.Attempts))
		for _, a := range in.Attempts {
			outcome := fmtNum(a.Outcome)
			if a.Failed {
				outcome = "failed: " + a.Reason
			}
			row := append([]string{fmt.Sprint(a.Index), string(a.Phase)}, formatFloats(a.Vector)...)
			rows = append(rows, append(row, outcome, fmtNum(a.Best)))
		}
		writeTable(&b, headers, rows)
	}

	if in.Posterior != nil {
		b.WriteString("## Posterior\n\n")
		fmt.Fprintf(&b, "Observed %s with noise %s: accepted %d of %d proposals (%.2f%%).\n\n",
			fmtNum(in.Posterior.Observed), fmtNum(in.Posterior.Noise),
			in.Posterior.Accepted, in.Posterior.Proposals, 100*in.Posterior.AcceptanceRate)
	}
	if len(in.Summaries) > 0 {
		rows := make([][]string, len(in.Summaries))
		for i, s := range in.Summaries {
			rows[i] = []string{s.Name, fmtNum(s.Mean), fmtNum(s.Median), fmtNum(s.Std), fmtNum(s.P025), fmtNum(s.P975)}
		}
		writeTable(&b, []string{"parameter", "mean", "median", "std", "2.5%", "97.5%"}, rows)
	}

	if in.Savings != nil {
		s := in.Savings
		b.WriteString("## Counterfactual savings\n\n")
		rows := [][]string{
			{"delta", fmtNum(s.Delta.Mean), fmtNum(s.Delta.Median), fmtNum(s.Delta.Std), fmtNum(s.Delta.P025), fmtNum(s.Delta.P975)},
		}
		if s.Cost != nil {
			rows = append(rows, []string{fmt.Sprintf("cost @ %g", s.Rate),
				fmtNum(s.Cost.Mean), fmtNum(s.Cost.Median), fmtNum(s.Cost.Std), fmtNum(s.Cost.P025), fmtNum(s.Cost.P975)})
		}
		writeTable(&b, []string{"", "mean", "median", "std", "2.5%", "97.5%"}, rows)
		fmt.Fprintf(&b, "P(delta > %s) = %.3f\n\n", fmtNum(s.Threshold), s.ProbAbove)
	}

	if in.Sensitivity != nil {
		b.WriteString("## Sensitivity (Sobol)\n\n")
		rows := make([][]string, len(in.Sensitivity.Indices))
		for i, idx := range in.Sensitivity.Indices {
			rows[i] = []string{idx.Name, fmt.Sprintf("%.3f", idx.First), fmt.Sprintf("%.3f", idx.Total)}
		}
		writeTable(&b, []string{"parameter", "first order", "total"}, rows)
	}
	return b.String()
}

// HTML renders the report as a standalone page.
func HTML(in Input) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	title := in.Title
	if title == "" {
		title = "Calibration report " + in.RunID
	}
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})
	return markdown.ToHTML([]byte(Markdown(in)), p, r)
}

func writeTable(b *strings.Builder, headers []string, rows [][]string) {
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(c, "|", "\\|")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	b.WriteString("\n")
}

func formatFloats(v []float64) []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = fmtNum(x)
	}
	return out
}

func fmtNum(v float64) string {
	return fmt.Sprintf("%.4g", v)
}
