package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"bayescal/adapters/excel"
	"bayescal/adapters/sqlstore"
	"bayescal/domain/core"
	"bayescal/internal/errors"
	"bayescal/internal/testkit"
	"bayescal/ports"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted calibration runs",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd())
	return cmd
}

func openRepository(ctx context.Context) (ports.RunRepository, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, errors.ConfigInvalid("CALIB_DATABASE_URL is not set")
	}
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return sqlstore.NewRunRepository(db), db.Close, nil
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tGOAL\tSTRATEGY\tUSED\tFAILED\tBEST\tCREATED")
			for _, r := range runs {
				best := "-"
				if r.BestOutcome != nil {
					best = fmt.Sprintf("%.6g", *r.BestOutcome)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
					r.ID, r.State, r.Goal.Kind, r.Strategy, r.Used, r.Budget, r.Failures, best,
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var export string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the attempt history of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, closeFn, err := openRepository(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			id := core.RunID(args[0])
			run, err := repo.GetRun(ctx, id)
			if err != nil {
				return err
			}
			attempts, err := repo.ListAttempts(ctx, id)
			if err != nil {
				return err
			}

			names := make([]string, len(run.Parameters))
			for i, p := range run.Parameters {
				names[i] = p.Name
			}

			fmt.Printf("Run %s (%s) %s, %s via %s\n", run.ID, run.Fingerprint.Short(), run.State, run.Strategy, run.Surrogate)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tPHASE\tVECTOR\tOUTCOME\tBEST")
			for _, a := range attempts {
				outcome := fmt.Sprintf("%.6g", a.Outcome)
				if a.Failed {
					outcome = "failed: " + a.Reason
				}
				fmt.Fprintf(w, "%d\t%s\t%v\t%s\t%.6g\n", a.Index, a.Phase, a.Vector, outcome, a.Best)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if export == "" {
				return nil
			}
			return excel.WriteTables(export, excel.HistoryTable(names, attempts))
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "Export the history to .xlsx or .csv")
	return cmd
}

func newBillsCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "bills <file>",
		Short: "Summarize a utility bill spreadsheet (.xlsx or .csv)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bills, err := excel.ReadUtilityBills(args[0])
			if err != nil {
				return err
			}
			flagged := map[int]float64{}
			for _, a := range bills.Anomalies(threshold) {
				flagged[a.Index] = a.ZScore
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MONTH\tKWH\tFLAG")
			for i, b := range bills.Bills {
				flag := ""
				if z, ok := flagged[i]; ok {
					flag = fmt.Sprintf("anomaly z=%+.2f", z)
				}
				fmt.Fprintf(w, "%s\t%.1f\t%s\n", b.Month, b.KWh, flag)
			}
			fmt.Fprintf(w, "total\t%.1f\t\n", bills.TotalKWh)
			return w.Flush()
		},
	}
	cmd.Flags().Float64Var(&threshold, "anomaly-z", excel.DefaultAnomalyThreshold, "Flag months whose |z-score| exceeds this")
	return cmd
}

func newSimulatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulators",
		Short: "List the built-in synthetic simulators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPARAMETER\tLOWER\tUPPER\tNOMINAL")
			for _, sim := range testkit.All() {
				for _, p := range sim.Specs {
					nominal := "-"
					if p.Nominal != nil {
						nominal = fmt.Sprintf("%g", *p.Nominal)
					}
					fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%s\n", sim.Name, p.Name, p.Lower, p.Upper, nominal)
				}
			}
			return w.Flush()
		},
	}
}
