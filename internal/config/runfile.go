package config

import (
	"fmt"
	"os"
	"time"

	"bayescal/domain/acquisition"
	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/domain/posterior"

	"gopkg.in/yaml.v3"
)

// RunFile is a calibration run described in YAML:
//
//	simulator: building_energy
//	parameters:
//	  - {name: infiltration, lower: 0.5, upper: 2.0, nominal: 1.0}
//	budget: 30
//	initial: 10
//	strategy: {name: ei, relative_xi: 0.01}
//	posterior: {observed: 118000, noise: 2000, samples: 1000}
type RunFile struct {
	Simulator  string                      `yaml:"simulator"`
	Parameters []calibration.ParameterSpec `yaml:"parameters"`
	Goal       GoalSection                 `yaml:"goal"`

	Budget        int      `yaml:"budget"`
	Initial       int      `yaml:"initial"`
	CandidatePool int      `yaml:"candidate_pool"`
	Seed          *int64   `yaml:"seed"`
	Parallelism   int      `yaml:"parallelism"`
	EvalTimeout   Duration `yaml:"eval_timeout"`

	Surrogate SurrogateSection `yaml:"surrogate"`
	Strategy  StrategySection  `yaml:"strategy"`

	Posterior      *PosteriorSection      `yaml:"posterior"`
	Counterfactual *CounterfactualSection `yaml:"counterfactual"`
	Sensitivity    *SensitivitySection    `yaml:"sensitivity"`
}

// GoalSection is minimize (default) or match_target with target.
type GoalSection struct {
	Kind   string  `yaml:"kind"`
	Target float64 `yaml:"target"`
}

// SurrogateSection picks the surrogate kind.
type SurrogateSection struct {
	Kind     string  `yaml:"kind"`
	Restarts int     `yaml:"restarts"`
	Alpha    float64 `yaml:"alpha"`
}

// StrategySection picks the acquisition policy.
type StrategySection struct {
	Name       string   `yaml:"name"`
	Xi         *float64 `yaml:"xi"`
	RelativeXi *float64 `yaml:"relative_xi"`
	Kappa      *float64 `yaml:"kappa"`
}

// PosteriorSection configures rejection sampling.
type PosteriorSection struct {
	Observed float64 `yaml:"observed"`
	// BillsFile, when set, replaces Observed with the bill total.
	BillsFile          string  `yaml:"bills_file"`
	Noise              float64 `yaml:"noise"`
	Samples            int     `yaml:"samples"`
	ProposalMultiplier int     `yaml:"proposal_multiplier"`
	MinAcceptanceRate  float64 `yaml:"min_acceptance_rate"`
}

// CounterfactualSection fixes one parameter and reports savings.
type CounterfactualSection struct {
	Parameter string   `yaml:"parameter"`
	Value     *float64 `yaml:"value"`
	Threshold float64  `yaml:"threshold"`
	Rate      float64  `yaml:"electricity_rate"`
}

// SensitivitySection enables a Sobol pass on the final surrogate.
type SensitivitySection struct {
	Samples int `yaml:"samples"`
}

// Duration accepts Go duration strings in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// LoadRunFile reads and validates a YAML run description.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	return ParseRunFile(data)
}

// ParseRunFile decodes and validates YAML.
func ParseRunFile(data []byte) (*RunFile, error) {
	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Validate checks everything that can be checked without running.
func (rf *RunFile) Validate() error {
	if rf.Budget < 1 {
		return fieldError("budget", fmt.Sprintf("must be at least 1, got %d", rf.Budget))
	}
	if rf.Initial < 1 {
		return fieldError("initial", fmt.Sprintf("must be at least 1, got %d", rf.Initial))
	}
	if rf.Parallelism < 0 {
		return fieldError("parallelism", "must not be negative")
	}
	if rf.EvalTimeout.Duration < 0 {
		return fieldError("eval_timeout", "must not be negative")
	}
	if _, err := rf.GoalValue(); err != nil {
		return err
	}
	if _, err := rf.Policy(); err != nil {
		return err
	}
	for _, p := range rf.Parameters {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if rf.Posterior != nil {
		if !(rf.Posterior.Noise > 0) {
			return fieldError("posterior.noise", "must be positive")
		}
		if rf.Posterior.Samples < 1 {
			return fieldError("posterior.samples", "must be at least 1")
		}
	}
	if rf.Counterfactual != nil {
		if rf.Posterior == nil {
			return fieldError("counterfactual", "requires a posterior section")
		}
		if rf.Counterfactual.Parameter == "" {
			return fieldError("counterfactual.parameter", "is required")
		}
		if rf.Counterfactual.Rate < 0 {
			return fieldError("counterfactual.electricity_rate", "must not be negative")
		}
	}
	if rf.Sensitivity != nil && rf.Sensitivity.Samples < 2 {
		return fieldError("sensitivity.samples", "must be at least 2")
	}
	return nil
}

// GoalValue converts the goal section.
func (rf *RunFile) GoalValue() (calibration.Goal, error) {
	if rf.Goal.Kind == "" {
		return calibration.Minimize(), nil
	}
	kind, err := calibration.ParseGoalKind(rf.Goal.Kind)
	if err != nil {
		return calibration.Goal{}, err
	}
	g := calibration.Goal{Kind: kind}
	if kind == calibration.GoalMatchTarget {
		g.Target = rf.Goal.Target
	}
	return g, g.Validate()
}

// Policy builds the acquisition policy.
func (rf *RunFile) Policy() (acquisition.Policy, error) {
	return acquisition.Parse(rf.Strategy.Name, acquisition.Options{
		Xi:         rf.Strategy.Xi,
		RelativeXi: rf.Strategy.RelativeXi,
		Kappa:      rf.Strategy.Kappa,
	})
}

// PosteriorConfig converts the posterior section; observed overrides
// the file value when non-nil.
func (rf *RunFile) PosteriorConfig(observed *float64) posterior.Config {
	p := rf.Posterior
	cfg := posterior.Config{
		Observed:           p.Observed,
		ObservationNoise:   p.Noise,
		NTarget:            p.Samples,
		ProposalMultiplier: p.ProposalMultiplier,
		MinAcceptanceRate:  p.MinAcceptanceRate,
	}
	if observed != nil {
		cfg.Observed = *observed
	}
	return cfg
}

// SeedOr returns the file seed or fallback.
func (rf *RunFile) SeedOr(fallback int64) int64 {
	if rf.Seed != nil {
		return *rf.Seed
	}
	return fallback
}

func fieldError(field, reason string) error {
	return fmt.Errorf("run file: %w", core.NewConfigError(field, reason))
}
