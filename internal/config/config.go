package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Criminal-Justice-Comps/Fairness/internal/dataset"
	"github.com/Criminal-Justice-Comps/Fairness/internal/metrics"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

type Config struct {
	Dataset     string                    `yaml:"dataset"`    // "./compas.json"
	OutputDir   string                    `yaml:"output_dir"` // "./DisparateImpactReports"
	Comparisons []models.ComparisonSpec   `yaml:"comparisons" validate:"required,min=1,dive"`
	Classifiers map[string]dataset.Source `yaml:"classifiers" validate:"dive"`

	Evaluation struct {
		Workers         int  `yaml:"workers" validate:"min=1"`
		Shards          int  `yaml:"shards" validate:"min=1"`
		ContinueOnError bool `yaml:"continue_on_error"`
	} `yaml:"evaluation"`

	Logging struct {
		Format string `yaml:"format" validate:"oneof=json text"`
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	} `yaml:"logging"`

	Database struct {
		DSN string `yaml:"dsn"` // empty: no persistence
	} `yaml:"database"`

	Server struct {
		Port           string   `yaml:"port" validate:"required,numeric"`
		AuthToken      string   `yaml:"auth_token"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RatePerMinute  int      `yaml:"rate_per_minute" validate:"min=1"`
		Burst          int      `yaml:"burst" validate:"min=1"`
	} `yaml:"server"`

	Inbox struct {
		Dir      string        `yaml:"dir"` // empty: poller disabled
		Interval time.Duration `yaml:"interval" validate:"min=0"`
	} `yaml:"inbox"`
}

// DefaultComparisons are the contrasts measured on the COMPAS extract: sex, race
// against the Caucasian majority, and four age splits.
func DefaultComparisons() []models.ComparisonSpec {
	specs := []models.ComparisonSpec{
		{Feature: "sex", Mode: models.ModeCategorical, Majority: models.StringValue("Male"), Minority: models.StringValue("Female")},
	}
	for _, race := range []string{"African-American", "Hispanic", "Other"} {
		specs = append(specs, models.ComparisonSpec{
			Feature: "race", Mode: models.ModeCategorical,
			Majority: models.StringValue("Caucasian"), Minority: models.StringValue(race),
		})
	}
	for _, age := range []float64{30, 40, 50, 60} {
		specs = append(specs, models.ComparisonSpec{
			Feature: "age", Mode: models.ModeNumeric,
			Majority: models.NumberValue(age), Minority: models.NumberValue(age),
		})
	}
	return specs
}

func DefaultConfig() Config {
	var c Config
	c.OutputDir = "./DisparateImpactReports"
	c.Comparisons = DefaultComparisons()
	c.Classifiers = map[string]dataset.Source{
		"ANN": {Kind: dataset.SourceEmbedded, Field: dataset.DefaultPredictionField},
	}
	c.Evaluation.Workers = 1
	c.Evaluation.Shards = 1
	c.Logging.Format = "text"
	c.Logging.Level = "info"
	c.Server.Port = "5339"
	c.Server.RatePerMinute = 30
	c.Server.Burst = 10
	c.Inbox.Interval = 3 * time.Second
	return c
}

// Load reads an optional YAML file over the defaults, applies environment
// overrides, then validates. A missing path means defaults plus env.
func Load(path string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("API_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("FAIRNESS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FAIRNESS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FAIRNESS_OUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("FAIRNESS_INBOX_DIR"); v != "" {
		c.Inbox.Dir = v
	}
	if v := os.Getenv("FAIRNESS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Evaluation.Workers = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks struct tags, then the references of every comparison.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return checkReferences(c.Comparisons)
}

// ValidateComparisons checks specs supplied outside a config file, e.g. in an API request.
func ValidateComparisons(specs []models.ComparisonSpec) error {
	var errs []error
	for i, spec := range specs {
		if err := validate.Struct(spec); err != nil {
			errs = append(errs, fmt.Errorf("comparisons[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return checkReferences(specs)
}

var (
	// ErrMissingReference marks a comparison without a majority or minority value.
	ErrMissingReference = errors.New("comparison reference missing")
	// ErrThresholdOrder marks a numeric comparison whose ranges would overlap.
	ErrThresholdOrder = errors.New("numeric thresholds out of order")
)

// checkReferences requires both references on every comparison. Numeric
// references must parse and the minority threshold may not exceed the majority one.
func checkReferences(specs []models.ComparisonSpec) error {
	var errs []error
	for i, spec := range specs {
		if spec.Majority.IsNull() || spec.Minority.IsNull() {
			errs = append(errs, fmt.Errorf("comparisons[%d] (%s): %w", i, spec.Feature, ErrMissingReference))
			continue
		}
		if spec.Mode != models.ModeNumeric {
			continue
		}
		if _, err := metrics.NewComparator(spec); err != nil {
			errs = append(errs, fmt.Errorf("comparisons[%d]: %w", i, err))
			continue
		}
		minority, _ := spec.Minority.Float()
		majority, _ := spec.Majority.Float()
		if minority > majority {
			errs = append(errs, fmt.Errorf("comparisons[%d] (%s): minority threshold %v above majority threshold %v: %w",
				i, spec.Feature, minority, majority, ErrThresholdOrder))
		}
	}
	return errors.Join(errs...)
}
