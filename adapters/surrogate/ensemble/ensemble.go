// Package ensemble combines several surrogates into one predictive
// distribution. The mean is the weighted member mean; the variance is
// the weighted member variance plus the weighted spread of member means.
package ensemble

import (
	"context"
	"fmt"
	"math"

	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/ports"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Member is one fitter and its relative weight.
type Member struct {
	Fitter ports.SurrogateFitter
	Weight float64
}

// Config controls ensemble fitting.
type Config struct {
	// ScoreMembers computes a leave-one-out R² for every member on each fit.
	ScoreMembers bool
}

// Fitter fits every member on the same data.
type Fitter struct {
	members []Member
	cfg     Config
}

// NewFitter validates members; non-positive weights become 1.
func NewFitter(cfg Config, members ...Member) (*Fitter, error) {
	if len(members) == 0 {
		return nil, core.NewConfigError("ensemble", "needs at least one member")
	}
	out := make([]Member, len(members))
	for i, m := range members {
		if m.Fitter == nil {
			return nil, core.NewConfigError("ensemble", fmt.Sprintf("member %d has no fitter", i))
		}
		if m.Weight <= 0 || math.IsNaN(m.Weight) {
			m.Weight = 1
		}
		out[i] = m
	}
	return &Fitter{members: out, cfg: cfg}, nil
}

func (f *Fitter) Kind() string { return "ensemble" }

// Fit trains all members concurrently.
func (f *Fitter) Fit(ctx context.Context, x [][]float64, y []float64) (ports.SurrogateModel, error) {
	models := make([]ports.SurrogateModel, len(f.members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		i, m := i, m
		g.Go(func() error {
			model, err := m.Fitter.Fit(gctx, x, y)
			if err != nil {
				return fmt.Errorf("member %s: %w", m.Fitter.Kind(), err)
			}
			models[i] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weights := make([]float64, len(f.members))
	for i, m := range f.members {
		weights[i] = m.Weight
	}
	floats.Scale(1/floats.Sum(weights), weights)

	model := &Model{models: models, weights: weights}
	if f.cfg.ScoreMembers && len(x) >= 3 {
		scores, err := f.leaveOneOut(ctx, x, y)
		if err != nil {
			return nil, err
		}
		model.scores = scores
	}
	return model, nil
}

// leaveOneOut returns the out-of-sample R² of every member.
func (f *Fitter) leaveOneOut(ctx context.Context, x [][]float64, y []float64) (map[string]float64, error) {
	mean := floats.Sum(y) / float64(len(y))
	var ssTot float64
	for _, v := range y {
		ssTot += (v - mean) * (v - mean)
	}
	scores := make(map[string]float64, len(f.members))
	for _, m := range f.members {
		var ssRes float64
		for i := range x {
			trainX := make([][]float64, 0, len(x)-1)
			trainY := make([]float64, 0, len(y)-1)
			for j := range x {
				if j != i {
					trainX = append(trainX, x[j])
					trainY = append(trainY, y[j])
				}
			}
			model, err := m.Fitter.Fit(ctx, trainX, trainY)
			if err != nil {
				return nil, fmt.Errorf("leave-one-out %s: %w", m.Fitter.Kind(), err)
			}
			pred, err := model.Predict([][]float64{x[i]})
			if err != nil {
				return nil, err
			}
			r := y[i] - pred[0].Mean
			ssRes += r * r
		}
		if ssTot == 0 {
			scores[m.Fitter.Kind()] = 0
			continue
		}
		scores[m.Fitter.Kind()] = 1 - ssRes/ssTot
	}
	return scores, nil
}

// Model is a fitted ensemble.
type Model struct {
	models  []ports.SurrogateModel
	weights []float64
	scores  map[string]float64
}

func (m *Model) Kind() string { return "ensemble" }

// Scores returns leave-one-out R² per member kind, when computed.
func (m *Model) Scores() map[string]float64 {
	out := make(map[string]float64, len(m.scores))
	for k, v := range m.scores {
		out[k] = v
	}
	return out
}

// Members returns the fitted member models.
func (m *Model) Members() []ports.SurrogateModel {
	return append([]ports.SurrogateModel(nil), m.models...)
}

// Predict combines member predictions.
func (m *Model) Predict(vectors [][]float64) ([]calibration.Prediction, error) {
	all := make([][]calibration.Prediction, len(m.models))
	for i, model := range m.models {
		preds, err := model.Predict(vectors)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", model.Kind(), err)
		}
		all[i] = preds
	}
	out := make([]calibration.Prediction, len(vectors))
	for j := range vectors {
		var mean float64
		for i := range m.models {
			mean += m.weights[i] * all[i][j].Mean
		}
		var variance float64
		for i := range m.models {
			d := all[i][j].Mean - mean
			variance += m.weights[i] * (all[i][j].Variance() + d*d)
		}
		out[j] = calibration.Prediction{Mean: mean, Std: math.Sqrt(variance)}
	}
	return out, nil
}
