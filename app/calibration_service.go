package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"bayescal/adapters/evaluator"
	"bayescal/domain/acquisition"
	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/domain/space"
	"bayescal/internal"
	"bayescal/internal/metrics"
	"bayescal/ports"

	"gonum.org/v1/gonum/stat"
)

const defaultCandidatePool = 1000

// CalibrationService runs the active learning loop: initial design,
// surrogate fit, then acquisition-driven evaluations until the budget
// is spent.
type CalibrationService struct {
	rngPort ports.RNGPort
	repo    ports.RunRepository
	metrics *metrics.Metrics
	logger  *internal.Logger
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*CalibrationService)

// WithRepository persists runs, attempts and posterior samples.
func WithRepository(repo ports.RunRepository) ServiceOption {
	return func(s *CalibrationService) { s.repo = repo }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *CalibrationService) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *internal.Logger) ServiceOption {
	return func(s *CalibrationService) { s.logger = l }
}

// NewCalibrationService creates a calibration service
func NewCalibrationService(rngPort ports.RNGPort, opts ...ServiceOption) *CalibrationService {
	s := &CalibrationService{
		rngPort: rngPort,
		logger:  internal.DefaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("calibration")
	return s
}

// CalibrationRequest defines one run.
type CalibrationRequest struct {
	RunID     core.RunID // optional, generated if empty
	Specs     []calibration.ParameterSpec
	Evaluator ports.Evaluator
	Surrogate ports.SurrogateFitter
	Policy    acquisition.Policy // defaults to expected improvement
	Goal      calibration.Goal

	MaxEvaluations int
	NInitial       int
	CandidatePool  int // defaults to 1000
	Seed           int64

	// Parallelism bounds concurrent initial-design evaluations.
	Parallelism int
	// EvalTimeout bounds each evaluation; a timeout is a failed attempt.
	EvalTimeout time.Duration

	// OnAttempt is called after every attempt, in order.
	OnAttempt func(calibration.AttemptRecord)
}

// CalibrationResult is the outcome of RunCalibration.
type CalibrationResult struct {
	RunID       core.RunID                  `json:"run_id"`
	Fingerprint core.Hash                   `json:"fingerprint"`
	State       calibration.RunState        `json:"state"`
	Budget      calibration.Budget          `json:"budget"`
	Failures    int                         `json:"failures"`
	Attempts    []calibration.AttemptRecord `json:"attempts"`
	RunningBest []float64                   `json:"running_best"`
	Best        calibration.Sample          `json:"best"`
	RuntimeMs   int64                       `json:"runtime_ms"`

	Space    *space.Space             `json:"-"`
	Training *calibration.TrainingSet `json:"-"`
	Model    ports.SurrogateModel     `json:"-"`
	Goal     calibration.Goal         `json:"goal"`
}

// run carries the mutable state of one RunCalibration call. Only the
// loop goroutine touches it.
type run struct {
	req      CalibrationRequest
	space    *space.Space
	eval     ports.Evaluator
	policy   acquisition.Policy
	budget   *calibration.Budget
	training *calibration.TrainingSet
	state    calibration.RunState
	record   *ports.RunRecord

	attempts    []calibration.AttemptRecord
	runningBest []float64
	best        float64
	failures    int
}

// RunCalibration executes the loop. It fails with ErrInvalidSpec or
// ErrInvalidConfig before any evaluation, with ErrInsufficientData when
// fewer than two initial evaluations succeed, or with ctx.Err() when
// cancelled.
func (s *CalibrationService) RunCalibration(ctx context.Context, req CalibrationRequest) (*CalibrationResult, error) {
	startTime := time.Now()

	r, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	req = r.req
	if err := s.persistCreate(ctx, r); err != nil {
		return nil, err
	}

	r.state = calibration.StateInitializing
	s.logger.Info("run %s: initial design of %d points (budget %d)", r.record.ID, min(req.NInitial, req.MaxEvaluations), req.MaxEvaluations)

	if err := s.runInitialDesign(ctx, r); err != nil {
		s.finish(ctx, r, calibration.StateFailed)
		return nil, err
	}
	if r.training.Len() < 2 || r.training.DistinctCount() < 2 {
		s.finish(ctx, r, calibration.StateFailed)
		return nil, fmt.Errorf("%w: only %d of %d initial evaluations succeeded",
			core.ErrInsufficientData, r.training.Len(), len(r.attempts))
	}

	model, err := s.fit(ctx, r)
	if err != nil {
		s.finish(ctx, r, calibration.StateFailed)
		return nil, err
	}

	r.state = calibration.StateIterating
	candRng, err := s.rngPort.Stream(ctx, "candidates", req.Seed)
	if err != nil {
		return nil, err
	}

	for !r.budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			s.finish(ctx, r, calibration.StateFailed)
			return nil, err
		}

		candidates, err := r.space.UniformSample(req.CandidatePool, candRng)
		if err != nil {
			return nil, err
		}
		preds, err := model.Predict(candidates)
		if err != nil {
			s.finish(ctx, r, calibration.StateFailed)
			return nil, fmt.Errorf("predict candidates: %w", err)
		}
		actx := acquisition.Context{
			Goal:  req.Goal,
			Best:  r.best,
			Scale: stat.StdDev(r.training.Y(), nil),
		}
		idx, scores, err := acquisition.Select(r.policy, preds, actx, candRng)
		if err != nil {
			s.finish(ctx, r, calibration.StateFailed)
			return nil, fmt.Errorf("acquisition: %w", err)
		}

		if err := r.budget.Consume(); err != nil {
			break
		}
		y, dur, evalErr := s.evaluate(ctx, r.eval, candidates[idx])
		if ctx.Err() != nil {
			s.finish(ctx, r, calibration.StateFailed)
			return nil, ctx.Err()
		}
		appended := s.record(ctx, r, calibration.PhaseIteration, candidates[idx], y, evalErr, scores[idx], dur)

		if appended {
			model, err = s.fit(ctx, r)
			if err != nil {
				s.finish(ctx, r, calibration.StateFailed)
				return nil, err
			}
		}
	}

	s.finish(ctx, r, calibration.StateExhausted)

	best, _ := r.training.Best(req.Goal)
	s.logger.Info("run %s: exhausted after %d attempts (%d failed), best outcome %g",
		r.record.ID, r.budget.Used, r.failures, best.Outcome)

	return &CalibrationResult{
		RunID:       r.record.ID,
		Fingerprint: r.record.Fingerprint,
		State:       r.state,
		Budget:      *r.budget,
		Failures:    r.failures,
		Attempts:    r.attempts,
		RunningBest: r.runningBest,
		Best:        best,
		RuntimeMs:   time.Since(startTime).Milliseconds(),
		Space:       r.space,
		Training:    r.training,
		Model:       model,
		Goal:        req.Goal,
	}, nil
}

func (s *CalibrationService) prepare(req CalibrationRequest) (*run, error) {
	sp, err := space.New(req.Specs)
	if err != nil {
		return nil, err
	}
	if req.Evaluator == nil {
		return nil, core.NewConfigError("evaluator", "is required")
	}
	if req.Surrogate == nil {
		return nil, core.NewConfigError("surrogate", "is required")
	}
	if err := req.Goal.Validate(); err != nil {
		return nil, err
	}
	if req.Goal.Kind == "" {
		req.Goal = calibration.Minimize()
	}
	budget, err := calibration.NewBudget(req.MaxEvaluations)
	if err != nil {
		return nil, err
	}
	if req.NInitial < 1 {
		return nil, core.NewConfigError("n_initial", fmt.Sprintf("must be at least 1, got %d", req.NInitial))
	}
	if req.CandidatePool < 0 {
		return nil, core.NewConfigError("candidate_pool", "must not be negative")
	}
	if req.CandidatePool == 0 {
		req.CandidatePool = defaultCandidatePool
	}
	if req.Parallelism < 1 {
		req.Parallelism = 1
	}
	if req.Policy == nil {
		req.Policy = acquisition.NewExpectedImprovement()
	}
	if req.RunID == "" {
		req.RunID = core.NewRunID()
	}

	r := &run{
		req:      req,
		space:    sp,
		eval:     evaluator.WithTimeout(req.Evaluator, req.EvalTimeout),
		policy:   req.Policy,
		budget:   budget,
		training: calibration.NewTrainingSet(req.Specs),
		state:    calibration.StateIdle,
		best:     math.Inf(1),
	}
	r.record = &ports.RunRecord{
		ID: req.RunID,
		Fingerprint: core.ComputeRunFingerprint(sp.BoundsByName(), map[string]interface{}{
			"seed":           req.Seed,
			"budget":         req.MaxEvaluations,
			"n_initial":      req.NInitial,
			"candidate_pool": req.CandidatePool,
			"strategy":       req.Policy.Name(),
			"surrogate":      req.Surrogate.Kind(),
			"goal":           fmt.Sprintf("%s:%g", req.Goal.Kind, req.Goal.Target),
		}),
		Parameters: sp.Specs(),
		Goal:       req.Goal,
		Strategy:   req.Policy.Name(),
		Surrogate:  req.Surrogate.Kind(),
		Seed:       req.Seed,
		Budget:     req.MaxEvaluations,
		State:      calibration.StateIdle,
	}
	return r, nil
}

// evaluate runs one attempt and converts any failure into an EvaluationError.
func (s *CalibrationService) evaluate(ctx context.Context, ev ports.Evaluator, vector []float64) (float64, time.Duration, error) {
	start := time.Now()
	y, err := ev.Evaluate(ctx, vector)
	dur := time.Since(start)
	if err != nil {
		if _, ok := core.AsEvaluationError(err); !ok {
			err = core.NewEvaluationError(vector, "simulator error", err)
		}
		return 0, dur, err
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, dur, core.NewEvaluationError(vector, "unusable scalar", nil)
	}
	return y, dur, nil
}

// record appends a finished attempt to the history and reports whether
// the training set grew.
func (s *CalibrationService) record(ctx context.Context, r *run, phase calibration.Phase, vector []float64, y float64, evalErr error, score float64, dur time.Duration) bool {
	attempt := calibration.AttemptRecord{
		Index:    len(r.attempts),
		Phase:    phase,
		Vector:   append([]float64(nil), vector...),
		Score:    score,
		Duration: dur,
	}

	appended := false
	if evalErr == nil {
		if err := r.training.Append(vector, y); err != nil {
			evalErr = err
		} else {
			appended = true
			attempt.Outcome = y
			if obj := r.req.Goal.Objective(y); obj < r.best {
				r.best = obj
			}
		}
	}
	if evalErr != nil {
		r.failures++
		attempt.Failed = true
		attempt.Reason = evalErr.Error()
		if evalFailure, ok := core.AsEvaluationError(evalErr); ok {
			attempt.Reason = evalFailure.Reason
		}
		s.logger.Warn("run %s: attempt %d at %v failed: %v", r.record.ID, attempt.Index, vector, evalErr)
	} else {
		s.logger.Debug("run %s: attempt %d at %v -> %g", r.record.ID, attempt.Index, vector, y)
	}

	attempt.Best = r.best
	r.attempts = append(r.attempts, attempt)
	r.runningBest = append(r.runningBest, r.best)

	s.metrics.ObserveEvaluation(string(phase), attempt.Failed, dur.Seconds())
	s.metrics.ObserveProgress(r.budget.Remaining(), r.training.Len(), r.best)

	if s.repo != nil {
		if err := s.repo.AppendAttempt(ctx, r.record.ID, attempt); err != nil {
			s.logger.Warn("run %s: failed to persist attempt %d: %v", r.record.ID, attempt.Index, err)
		}
	}
	if r.req.OnAttempt != nil {
		r.req.OnAttempt(attempt)
	}
	return appended
}

func (s *CalibrationService) fit(ctx context.Context, r *run) (ports.SurrogateModel, error) {
	start := time.Now()
	model, err := r.req.Surrogate.Fit(ctx, r.training.X(), r.training.Y())
	s.metrics.ObserveFit(r.req.Surrogate.Kind(), err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fit %s surrogate on %d samples: %w", r.req.Surrogate.Kind(), r.training.Len(), err)
	}
	s.logger.Trace("run %s: refit %s on %d samples in %s", r.record.ID, r.req.Surrogate.Kind(), r.training.Len(), time.Since(start))
	return model, nil
}

func (s *CalibrationService) persistCreate(ctx context.Context, r *run) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.CreateRun(ctx, r.record); err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}
	return nil
}

func (s *CalibrationService) finish(ctx context.Context, r *run, state calibration.RunState) {
	r.state = state
	if s.repo == nil {
		return
	}
	r.record.State = state
	r.record.Used = r.budget.Used
	r.record.Failures = r.failures
	if best, ok := r.training.Best(r.req.Goal); ok {
		outcome := best.Outcome
		r.record.BestOutcome = &outcome
		r.record.BestVector = best.Vector
	}
	// The caller's context may already be cancelled; the final state
	// should still be written.
	if err := s.repo.UpdateRun(context.WithoutCancel(ctx), r.record); err != nil {
		s.logger.Warn("run %s: failed to persist final state: %v", r.record.ID, err)
	}
}
