package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"bayescal/adapters/evaluator"
	"bayescal/adapters/excel"
	"bayescal/adapters/rng"
	"bayescal/adapters/sqlstore"
	"bayescal/adapters/surrogate"
	"bayescal/app"
	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/domain/posterior"
	"bayescal/domain/sensitivity"
	"bayescal/domain/space"
	"bayescal/internal"
	"bayescal/internal/config"
	"bayescal/internal/errors"
	"bayescal/internal/metrics"
	"bayescal/internal/report"
	"bayescal/internal/testkit"
	"bayescal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath string
	outDir     string
	export     string
	noStore    bool
	jsonOut    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run active-learning calibration from a YAML run file",
		Long: `Run the active-learning loop described by a run file, then optionally
estimate the posterior, counterfactual savings and Sobol sensitivity.

The simulator is the remote HTTP simulator at CALIB_SIMULATOR_URL when set,
otherwise the synthetic simulator named in the run file.

Example: calibrate run --config run.yaml --out results --export run.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibration(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "run.yaml", "Run file (YAML)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "Output directory for report.md/report.html (default CALIB_OUTPUT_DIR)")
	cmd.Flags().StringVar(&opts.export, "export", "", "Export history/posterior to .xlsx or .csv")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "Do not persist the run even if a database is configured")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result summary as JSON")

	return cmd
}

func runCalibration(ctx context.Context, opts runOptions) error {
	logger := internal.DefaultLogger.WithComponent("cli")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rf, err := config.LoadRunFile(opts.configPath)
	if err != nil {
		return err
	}

	specs, ev, err := buildEvaluator(cfg, rf)
	if err != nil {
		return err
	}
	sp, err := space.New(specs)
	if err != nil {
		return err
	}

	seed := rf.SeedOr(cfg.Run.Seed)
	fitter, err := surrogate.New(rf.Surrogate.Kind, sp, surrogate.Options{
		Seed:     seed,
		Restarts: rf.Surrogate.Restarts,
		Alpha:    rf.Surrogate.Alpha,
	})
	if err != nil {
		return err
	}
	policy, err := rf.Policy()
	if err != nil {
		return err
	}
	goal, err := rf.GoalValue()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	serviceOpts := []app.ServiceOption{app.WithMetrics(m)}
	if cfg.Database.URL != "" && !opts.noStore {
		db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		serviceOpts = append(serviceOpts, app.WithRepository(sqlstore.NewRunRepository(db)))
	}
	svc := app.NewCalibrationService(rng.NewSeededAdapter(), serviceOpts...)

	parallelism := rf.Parallelism
	if parallelism == 0 {
		parallelism = cfg.Run.Parallelism
	}
	evalTimeout := rf.EvalTimeout.Duration
	if evalTimeout == 0 {
		evalTimeout = cfg.Simulator.Timeout
	}

	result, err := svc.RunCalibration(ctx, app.CalibrationRequest{
		Specs:          specs,
		Evaluator:      ev,
		Surrogate:      fitter,
		Policy:         policy,
		Goal:           goal,
		MaxEvaluations: rf.Budget,
		NInitial:       rf.Initial,
		CandidatePool:  rf.CandidatePool,
		Seed:           seed,
		Parallelism:    parallelism,
		EvalTimeout:    evalTimeout,
		OnAttempt: func(a calibration.AttemptRecord) {
			if a.Failed {
				logger.Info("attempt %d (%s) failed: %s", a.Index, a.Phase, a.Reason)
				return
			}
			logger.Info("attempt %d (%s) %v -> %.6g (best %.6g)", a.Index, a.Phase, a.Vector, a.Outcome, a.Best)
		},
	})
	if err != nil {
		return errors.Wrap(err, "calibration failed")
	}

	in := report.Input{
		RunID:    string(result.RunID),
		Names:    sp.Names(),
		Goal:     result.Goal,
		Attempts: result.Attempts,
		Best:     result.Best,
		Failures: result.Failures,
		Runtime:  time.Duration(result.RuntimeMs) * time.Millisecond,
	}

	if rf.Posterior != nil {
		if err := addPosterior(ctx, svc, rf, result, seed, &in); err != nil {
			return err
		}
	}
	if rf.Sensitivity != nil {
		sobolRng, err := rng.NewSeededAdapter().Stream(ctx, "sensitivity", seed)
		if err != nil {
			return err
		}
		in.Sensitivity, err = sensitivity.Sobol(ctx, result.Model, sp, rf.Sensitivity.Samples, sobolRng)
		if err != nil {
			return errors.Wrap(err, "sensitivity analysis failed")
		}
	}

	if err := writeOutputs(opts, cfg, in); err != nil {
		return err
	}
	return printSummary(opts, result, in)
}

func buildEvaluator(cfg *config.Config, rf *config.RunFile) ([]calibration.ParameterSpec, ports.Evaluator, error) {
	var (
		specs []calibration.ParameterSpec
		ev    ports.Evaluator
	)
	if cfg.Simulator.URL != "" {
		if len(rf.Parameters) == 0 {
			return nil, nil, core.NewConfigError("parameters", "required with a remote simulator")
		}
		specs = rf.Parameters
		names := make([]string, len(specs))
		for i, s := range specs {
			names[i] = s.Name
		}
		httpEval, err := evaluator.NewHTTPEvaluator(cfg.Simulator.URL, names, &http.Client{})
		if err != nil {
			return nil, nil, err
		}
		ev = httpEval
	} else {
		sim, err := testkit.ByName(rf.Simulator)
		if err != nil {
			return nil, nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		specs = sim.Specs
		if len(rf.Parameters) > 0 {
			specs = rf.Parameters
		}
		ev = evaluator.FromFunc(sim.Func)
	}
	if cfg.Simulator.RatePerSecond > 0 {
		ev = evaluator.RateLimited(ev, cfg.Simulator.RatePerSecond, cfg.Simulator.Burst)
	}
	return specs, ev, nil
}

func addPosterior(ctx context.Context, svc *app.CalibrationService, rf *config.RunFile, result *app.CalibrationResult, seed int64, in *report.Input) error {
	var observed *float64
	if rf.Posterior.BillsFile != "" {
		bills, err := excel.ReadUtilityBills(rf.Posterior.BillsFile)
		if err != nil {
			return errors.Wrap(err, "failed to read utility bills")
		}
		observed = &bills.TotalKWh
	}

	post, err := svc.EstimatePosterior(ctx, result, rf.PosteriorConfig(observed), seed)
	if err != nil {
		return errors.Wrap(err, "posterior estimation failed")
	}
	in.Posterior = post
	if in.Summaries, err = posterior.Summarize(post); err != nil {
		return err
	}

	cf := rf.Counterfactual
	if cf == nil {
		return nil
	}
	dim, ok := result.Space.Index(cf.Parameter)
	if !ok {
		return core.NewConfigError("counterfactual.parameter", fmt.Sprintf("unknown parameter %q", cf.Parameter))
	}
	value := cf.Value
	if value == nil {
		value = result.Space.Specs()[dim].Nominal
	}
	if value == nil {
		return core.NewConfigError("counterfactual.value", fmt.Sprintf("%s has no nominal value; set one", cf.Parameter))
	}
	in.Savings, err = svc.Counterfactual(ctx, result, post, posterior.SetParameter(dim, *value), posterior.CounterfactualOptions{
		Threshold:       cf.Threshold,
		ElectricityRate: cf.Rate,
	})
	if err != nil {
		return errors.Wrap(err, "counterfactual failed")
	}
	return nil
}

func writeOutputs(opts runOptions, cfg *config.Config, in report.Input) error {
	outDir := opts.outDir
	if outDir == "" {
		outDir = cfg.Run.OutputDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "report.md"), []byte(report.Markdown(in)), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "report.html"), report.HTML(in), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if opts.export == "" {
		return nil
	}
	tables := []excel.Table{excel.HistoryTable(in.Names, in.Attempts)}
	if in.Posterior != nil && filepath.Ext(opts.export) != ".csv" {
		tables = append(tables, excel.PosteriorTable(in.Posterior))
	}
	return excel.WriteTables(opts.export, tables...)
}

func printSummary(opts runOptions, result *app.CalibrationResult, in report.Input) error {
	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID       core.RunID                   `json:"run_id"`
			Fingerprint core.Hash                    `json:"fingerprint"`
			Used        int                          `json:"evaluations"`
			Failures    int                          `json:"failures"`
			Best        calibration.Sample           `json:"best"`
			Summaries   []posterior.ParameterSummary `json:"posterior,omitempty"`
			Savings     *posterior.Distribution      `json:"savings,omitempty"`
			Sensitivity *sensitivity.Result          `json:"sensitivity,omitempty"`
		}{result.RunID, result.Fingerprint, result.Budget.Used, result.Failures, result.Best, in.Summaries, savingsOf(in), in.Sensitivity})
	}

	fmt.Printf("Run %s (%s)\n", result.RunID, result.Fingerprint.Short())
	fmt.Printf("  evaluations: %d (%d failed)\n", result.Budget.Used, result.Failures)
	fmt.Printf("  best: %v -> %.6g\n", result.Best.Vector, result.Best.Outcome)
	for _, s := range in.Summaries {
		fmt.Printf("  %s: mean %.4g [%.4g, %.4g]\n", s.Name, s.Mean, s.P025, s.P975)
	}
	if in.Savings != nil {
		fmt.Printf("  savings: mean %.4g [%.4g, %.4g], P(delta > %g) = %.3f\n",
			in.Savings.Delta.Mean, in.Savings.Delta.P025, in.Savings.Delta.P975, in.Savings.Threshold, in.Savings.ProbAbove)
	}
	return nil
}

func savingsOf(in report.Input) *posterior.Distribution {
	if in.Savings == nil {
		return nil
	}
	return &in.Savings.Delta
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *internal.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped: %v", err)
	}
}
