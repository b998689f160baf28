package evaluator_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bayescal/adapters/evaluator"
	"bayescal/domain/calibration"
	"bayescal/domain/core"
	"bayescal/internal"
	"bayescal/internal/simserver"
	"bayescal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFuncWrapsFailures(t *testing.T) {
	ev := evaluator.FromFunc(func(v []float64) (float64, error) {
		switch {
		case v[0] > 1.8:
			return 0, errors.New("simulation crashed")
		case v[0] < 0.6:
			return math.NaN(), nil
		}
		return v[0] * 2, nil
	})

	y, err := ev.Evaluate(context.Background(), []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 2.0, y)

	_, err = ev.Evaluate(context.Background(), []float64{1.9})
	evalErr, ok := core.AsEvaluationError(err)
	require.True(t, ok)
	assert.Equal(t, "simulator error", evalErr.Reason)

	_, err = ev.Evaluate(context.Background(), []float64{0.55})
	evalErr, ok = core.AsEvaluationError(err)
	require.True(t, ok)
	assert.Equal(t, "unusable scalar", evalErr.Reason)
}

func TestWithTimeoutReportsFailure(t *testing.T) {
	slow := ports.EvaluatorFunc(func(ctx context.Context, v []float64) (float64, error) {
		select {
		case <-time.After(2 * time.Second):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	ev := evaluator.WithTimeout(slow, 20*time.Millisecond)

	start := time.Now()
	_, err := ev.Evaluate(context.Background(), []float64{1})
	assert.Less(t, time.Since(start), time.Second)

	evalErr, ok := core.AsEvaluationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "timeout", evalErr.Reason)
}

func TestWithTimeoutWaitsForStubbornSimulator(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	stubborn := ports.EvaluatorFunc(func(_ context.Context, v []float64) (float64, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(60 * time.Millisecond)
		return v[0], nil
	})
	ev := evaluator.WithTimeout(stubborn, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := ev.Evaluate(context.Background(), []float64{float64(i)})
		evalErr, ok := core.AsEvaluationError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, "timeout", evalErr.Reason)
		assert.Zero(t, inFlight.Load(), "call %d still running after Evaluate returned", i)
	}
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestWithTimeoutPassesFastCalls(t *testing.T) {
	fast := evaluator.FromFunc(func(v []float64) (float64, error) { return 5, nil })
	y, err := evaluator.WithTimeout(fast, time.Second).Evaluate(context.Background(), []float64{0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, y)

	assert.Equal(t, fast, evaluator.WithTimeout(fast, 0))
}

func TestRateLimitedRespectsContext(t *testing.T) {
	calls := 0
	inner := evaluator.FromFunc(func(v []float64) (float64, error) {
		calls++
		return 1, nil
	})
	ev := evaluator.RateLimited(inner, 0.001, 1)

	_, err := ev.Evaluate(context.Background(), []float64{0})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = ev.Evaluate(ctx, []float64{0})
	assert.True(t, core.IsEvaluationError(err))
	assert.Equal(t, 1, calls)
}

func newSimServer(t *testing.T) (*httptest.Server, *simserver.Server) {
	t.Helper()
	specs := []calibration.ParameterSpec{
		{Name: "r_value_mult", Lower: 0.6, Upper: 1.4},
		{Name: "infiltration_mult", Lower: 0.5, Upper: 2.0},
	}
	sim := simserver.New(specs, func(v []float64) (float64, error) {
		if v[1] > 1.9 {
			return 0, errors.New("model diverged")
		}
		return 1000*v[0] + 500*v[1], nil
	}, internal.NewLogger(internal.LogLevelError))
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return srv, sim
}

func TestHTTPEvaluatorRoundTrip(t *testing.T) {
	srv, sim := newSimServer(t)
	ev, err := evaluator.NewHTTPEvaluator(srv.URL+"/", []string{"r_value_mult", "infiltration_mult"}, srv.Client())
	require.NoError(t, err)

	y, err := ev.Evaluate(context.Background(), []float64{1.0, 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 1500, y, 1e-9)
	assert.Equal(t, int64(1), sim.Evaluated())

	_, err = ev.Evaluate(context.Background(), []float64{1.0, 1.95})
	evalErr, ok := core.AsEvaluationError(err)
	require.True(t, ok)
	assert.Contains(t, evalErr.Reason, "model diverged")
	assert.Contains(t, evalErr.Reason, "422")

	_, err = ev.Evaluate(context.Background(), []float64{1.0})
	assert.True(t, core.IsEvaluationError(err))
}

func TestHTTPEvaluatorUnreachable(t *testing.T) {
	srv, _ := newSimServer(t)
	url := srv.URL
	srv.Close()

	ev, err := evaluator.NewHTTPEvaluator(url, []string{"a", "b"}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)
	_, err = ev.Evaluate(context.Background(), []float64{1, 1})
	assert.True(t, core.IsEvaluationError(err))

	_, err = evaluator.NewHTTPEvaluator("", nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
