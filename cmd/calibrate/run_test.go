package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bayescal/adapters/excel"
	"bayescal/adapters/sqlstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadraticRunFile = `
simulator: quadratic
budget: 8
initial: 4
candidate_pool: 100
seed: 7
surrogate: {kind: interp}
strategy: {name: ei}
posterior: {observed: 600, noise: 50, samples: 50}
counterfactual: {parameter: x, value: 1.0, threshold: 0, electricity_rate: 0.15}
sensitivity: {samples: 64}
`

func TestRunCalibrationWritesReportsAndPersists(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	t.Setenv("CALIB_DB_DRIVER", "sqlite")
	t.Setenv("CALIB_DATABASE_URL", dbPath)
	t.Setenv("CALIB_SIMULATOR_URL", "")
	t.Setenv("CALIB_METRICS_ADDR", "")

	runFile := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(runFile, []byte(quadraticRunFile), 0o644))

	export := filepath.Join(dir, "history.xlsx")
	err := runCalibration(context.Background(), runOptions{
		configPath: runFile,
		outDir:     filepath.Join(dir, "out"),
		export:     export,
	})
	require.NoError(t, err)

	for _, name := range []string{"report.md", "report.html"} {
		info, err := os.Stat(filepath.Join(dir, "out", name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0))
	}

	data, err := excel.NewDataReader(export).ReadData()
	require.NoError(t, err)
	assert.Len(t, data.Rows, 8)

	db, err := sqlstore.Open(context.Background(), "sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := sqlstore.NewRunRepository(db).ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 8, runs[0].Used)
}

func TestRunCalibrationRejectsUnknownSimulator(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CALIB_DATABASE_URL", "")
	t.Setenv("CALIB_SIMULATOR_URL", "")

	runFile := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(runFile, []byte("simulator: nope\nbudget: 4\ninitial: 2\n"), 0o644))

	err := runCalibration(context.Background(), runOptions{configPath: runFile, outDir: dir})
	require.Error(t, err)
}
