package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Criminal-Justice-Comps/Fairness/internal/config"
	"github.com/Criminal-Justice-Comps/Fairness/internal/report"
)

const compasExtract = `{
  "people": [
    {"sex": "Male", "race": "Caucasian", "age": 24, "prediction": 1},
    {"sex": "Female", "race": "African-American", "age": 38, "prediction": 0},
    {"sex": "Male", "race": "Hispanic", "age": 52, "prediction": 0},
    {"sex": "Female", "race": "Caucasian", "age": 61, "prediction": 1},
    {"sex": "Male", "race": "Other", "age": 29, "prediction": 1},
    {"sex": "Female", "race": "African-American", "age": 45, "prediction": 0}
  ],
  "random": [1, 1, 0, 0, 1, 0]
}`

func measureConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "compas.json")
	require.NoError(t, os.WriteFile(path, []byte(compasExtract), 0o644))

	cfg := config.DefaultConfig()
	cfg.Dataset = path
	cfg.OutputDir = filepath.Join(dir, "DisparateImpactReports")
	return cfg
}

func TestRunMeasure(t *testing.T) {
	cfg := measureConfig(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, runMeasure(context.Background(), cfg, nil, false, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "TESTING: random")
	assert.Contains(t, out, "TESTING: ANN")
	assert.Contains(t, out, "comparisons show disparate impact")
	assert.Empty(t, stderr.String())

	combined, err := os.ReadFile(filepath.Join(cfg.OutputDir, report.CombinedReportName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(combined)), "\n")
	// header + 8 comparisons for each of the two classifiers
	assert.Len(t, lines, 17)
	assert.True(t, strings.HasPrefix(lines[1], "random,sex,Male,Female,"))
	assert.True(t, strings.HasPrefix(lines[9], "ANN,sex,Male,Female,"))

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "randomDisparateImpact.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "ANNDisparateImpact.csv"))
}

func TestRunMeasure_Quiet(t *testing.T) {
	cfg := measureConfig(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, runMeasure(context.Background(), cfg, []string{"ANN"}, true, &stdout, &stderr))
	assert.Empty(t, stdout.String())
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "randomDisparateImpact.csv"))
}

func TestRunMeasure_FailedClassifier(t *testing.T) {
	cfg := measureConfig(t)
	var stdout, stderr bytes.Buffer

	err := runMeasure(context.Background(), cfg, []string{"random", "svm"}, true, &stdout, &stderr)
	assert.ErrorIs(t, err, errClassifiersFailed)
	assert.Contains(t, stderr.String(), `classifier "svm"`)
	// the classifier that worked still gets its report
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "randomDisparateImpact.csv"))
}

func TestRunMeasure_NoDataset(t *testing.T) {
	cfg := config.DefaultConfig()
	err := runMeasure(context.Background(), cfg, nil, true, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestApplyMeasureFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = "from-file"

	flags := measureCmd.Flags()
	require.NoError(t, flags.Set("dataset", "cli.json"))
	require.NoError(t, flags.Set("workers", "3"))
	t.Cleanup(func() {
		measureOpts = measureOptions{}
		flags.VisitAll(func(f *pflag.Flag) { f.Changed = false })
	})

	applyMeasureFlags(&cfg, flags, measureOpts)
	assert.Equal(t, "cli.json", cfg.Dataset)
	assert.Equal(t, 3, cfg.Evaluation.Workers)
	assert.Equal(t, "from-file", cfg.OutputDir, "unset flags keep the config value")
}
