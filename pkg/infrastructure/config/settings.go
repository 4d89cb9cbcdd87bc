// Package config loads planner settings from a YAML document, BATCHALLOC_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vsinha/batchalloc/pkg/application/services/model"
	"github.com/vsinha/batchalloc/pkg/infrastructure/repositories/csv"
)

// EnvPrefix prefixes every environment override, e.g. BATCHALLOC_SOLVER_NAME
const EnvPrefix = "BATCHALLOC"

// AsOfLayout is the accepted format of the as-of date
const AsOfLayout = "2006-01-02"

// ModelSettings mirrors model.Config
type ModelSettings struct {
	ExcessTolerance float64 `mapstructure:"excess_tolerance" yaml:"excess_tolerance"`
	PriorityWeight  float64 `mapstructure:"priority_weight" yaml:"priority_weight"`
	DeviationWeight float64 `mapstructure:"deviation_weight" yaml:"deviation_weight"`
	UrgencyBase     float64 `mapstructure:"urgency_base" yaml:"urgency_base"`
	MaxWaitDays     int     `mapstructure:"max_wait_days" yaml:"max_wait_days"`
	AgingCap        bool    `mapstructure:"aging_cap" yaml:"aging_cap"`
	LocationMatch   bool    `mapstructure:"location_match" yaml:"location_match"`
}

// SolverSettings selects and budgets the solver
type SolverSettings struct {
	Name        string        `mapstructure:"name" yaml:"name"`
	TimeLimit   time.Duration `mapstructure:"time_limit" yaml:"time_limit"`
	RelativeGap float64       `mapstructure:"relative_gap" yaml:"relative_gap"`
	MaxBinaries int           `mapstructure:"max_binaries" yaml:"max_binaries"`
}

// InputSettings locates the source tables
type InputSettings struct {
	Requests   string `mapstructure:"requests" yaml:"requests"`
	Stock      string `mapstructure:"stock" yaml:"stock"`
	Priorities string `mapstructure:"priorities" yaml:"priorities"`
	// AsOf is the planning date used for batch ages; empty means today.
	AsOf string `mapstructure:"as_of" yaml:"as_of"`
}

// OutputSettings controls what a run writes
type OutputSettings struct {
	Format      string `mapstructure:"format" yaml:"format"`
	ExportLP    string `mapstructure:"export_lp" yaml:"export_lp"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// LogSettings configures the zap logger
type LogSettings struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Settings is the complete planner configuration
type Settings struct {
	Model   ModelSettings  `mapstructure:"model" yaml:"model"`
	Solver  SolverSettings `mapstructure:"solver" yaml:"solver"`
	Inputs  InputSettings  `mapstructure:"inputs" yaml:"inputs"`
	Columns csv.Columns    `mapstructure:"columns" yaml:"columns"`
	Output  OutputSettings `mapstructure:"output" yaml:"output"`
	Log     LogSettings    `mapstructure:"log" yaml:"log"`
}

// Defaults returns the settings used when nothing overrides them
func Defaults() Settings {
	m := model.DefaultConfig()
	return Settings{
		Model: ModelSettings{
			ExcessTolerance: m.ExcessTolerance,
			PriorityWeight:  m.PriorityWeight,
			DeviationWeight: m.DeviationWeight,
			UrgencyBase:     m.UrgencyBase,
			MaxWaitDays:     m.MaxWaitDays,
			AgingCap:        m.AgingCap,
			LocationMatch:   m.LocationMatch,
		},
		Solver: SolverSettings{
			Name:        "highs",
			TimeLimit:   30 * time.Second,
			MaxBinaries: 20,
		},
		Columns: csv.DefaultColumns(),
		Output:  OutputSettings{Format: "text"},
		Log:     LogSettings{Level: "info"},
	}
}

// flagKeys binds each command-line flag to its settings key
var flagKeys = map[string]string{
	"requests":         "inputs.requests",
	"stock":            "inputs.stock",
	"priorities":       "inputs.priorities",
	"as-of":            "inputs.as_of",
	"solver":           "solver.name",
	"time-limit":       "solver.time_limit",
	"max-binaries":     "solver.max_binaries",
	"excess-tolerance": "model.excess_tolerance",
	"aging-cap":        "model.aging_cap",
	"location-match":   "model.location_match",
	"format":           "output.format",
	"export-lp":        "output.export_lp",
	"metrics-file":     "output.metrics_file",
	"log-level":        "log.level",
}

// RegisterFlags defines the planner flags on fs. Flag defaults are for help text only;
// an unset flag never overrides the settings document.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("config", "", "Path to a YAML settings document")
	fs.String("requests", "", "Sales programme CSV file")
	fs.String("stock", "", "Stock report CSV file")
	fs.String("priorities", "", "Client priorities CSV file")
	fs.String("as-of", "", "Planning date for batch ages (YYYY-MM-DD, default today)")
	fs.String("solver", d.Solver.Name, "Solver: highs or exhaustive")
	fs.Duration("time-limit", d.Solver.TimeLimit, "Solve time budget")
	fs.Int("max-binaries", d.Solver.MaxBinaries, "Largest instance the exhaustive solver accepts")
	fs.Float64("excess-tolerance", d.Model.ExcessTolerance, "Mass a client may receive beyond its request")
	fs.Bool("aging-cap", d.Model.AgingCap, "Force over-age batches out when some client can take them")
	fs.Bool("location-match", d.Model.LocationMatch, "Only ship batches to clients operating at the batch's mill")
	fs.String("format", d.Output.Format, "Output format: text or json")
	fs.String("export-lp", "", "Write the formulation in LP format to this file")
	fs.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn, error")
	fs.BoolP("verbose", "v", false, "Shorthand for --log-level=debug with run events")
	fs.Bool("print-defaults", false, "Print the default settings document and exit")
}

// Load resolves settings from defaults, the optional settings document named by
// --config, the environment and the flags in fs.
func Load(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if fs != nil {
		if verbose, _ := fs.GetBool("verbose"); verbose {
			s.Log.Level = "debug"
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// setDefaults registers every leaf of d so environment variables resolve for all keys
func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("model.excess_tolerance", d.Model.ExcessTolerance)
	v.SetDefault("model.priority_weight", d.Model.PriorityWeight)
	v.SetDefault("model.deviation_weight", d.Model.DeviationWeight)
	v.SetDefault("model.urgency_base", d.Model.UrgencyBase)
	v.SetDefault("model.max_wait_days", d.Model.MaxWaitDays)
	v.SetDefault("model.aging_cap", d.Model.AgingCap)
	v.SetDefault("model.location_match", d.Model.LocationMatch)

	v.SetDefault("solver.name", d.Solver.Name)
	v.SetDefault("solver.time_limit", d.Solver.TimeLimit)
	v.SetDefault("solver.relative_gap", d.Solver.RelativeGap)
	v.SetDefault("solver.max_binaries", d.Solver.MaxBinaries)

	v.SetDefault("inputs.requests", d.Inputs.Requests)
	v.SetDefault("inputs.stock", d.Inputs.Stock)
	v.SetDefault("inputs.priorities", d.Inputs.Priorities)
	v.SetDefault("inputs.as_of", d.Inputs.AsOf)

	c := d.Columns
	v.SetDefault("columns.requests.client_name", c.Requests.ClientName)
	v.SetDefault("columns.requests.client_id", c.Requests.ClientID)
	v.SetDefault("columns.requests.client_group", c.Requests.ClientGroup)
	v.SetDefault("columns.requests.location", c.Requests.Location)
	v.SetDefault("columns.requests.product", c.Requests.Product)
	v.SetDefault("columns.requests.quantity", c.Requests.Quantity)
	v.SetDefault("columns.stock.center", c.Stock.Center)
	v.SetDefault("columns.stock.mill", c.Stock.Mill)
	v.SetDefault("columns.stock.shipped_at", c.Stock.ShippedAt)
	v.SetDefault("columns.stock.batch", c.Stock.Batch)
	v.SetDefault("columns.stock.product", c.Stock.Product)
	v.SetDefault("columns.stock.arrived", c.Stock.Arrived)
	v.SetDefault("columns.stock.in_transit", c.Stock.InTransit)
	v.SetDefault("columns.priorities.client", c.Priorities.Client)
	v.SetDefault("columns.priorities.importance", c.Priorities.Importance)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.export_lp", d.Output.ExportLP)
	v.SetDefault("output.metrics_file", d.Output.MetricsFile)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Validate checks for invalid configuration values
func (s *Settings) Validate() error {
	if err := s.ModelConfig().Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	switch s.Solver.Name {
	case "highs", "exhaustive":
	default:
		return fmt.Errorf("solver must be highs or exhaustive, got %q", s.Solver.Name)
	}
	if s.Solver.TimeLimit < 0 {
		return fmt.Errorf("solver time limit cannot be negative, got %s", s.Solver.TimeLimit)
	}
	if s.Solver.RelativeGap < 0 || s.Solver.RelativeGap >= 1 {
		return fmt.Errorf("solver relative gap must be in [0, 1), got %v", s.Solver.RelativeGap)
	}
	if s.Solver.MaxBinaries <= 0 || s.Solver.MaxBinaries > 40 {
		return fmt.Errorf("solver max binaries must be in [1, 40], got %d", s.Solver.MaxBinaries)
	}
	switch s.Output.Format {
	case "text", "json":
	default:
		return fmt.Errorf("output format must be text or json, got %q", s.Output.Format)
	}
	if _, err := s.AsOfTime(time.Now()); err != nil {
		return err
	}
	return nil
}

// ModelConfig converts the model section into a model.Config
func (s *Settings) ModelConfig() model.Config {
	return model.Config{
		ExcessTolerance: s.Model.ExcessTolerance,
		PriorityWeight:  s.Model.PriorityWeight,
		DeviationWeight: s.Model.DeviationWeight,
		UrgencyBase:     s.Model.UrgencyBase,
		MaxWaitDays:     s.Model.MaxWaitDays,
		AgingCap:        s.Model.AgingCap,
		LocationMatch:   s.Model.LocationMatch,
	}
}

// AsOfTime returns the planning instant: the configured date at midnight UTC, or now
func (s *Settings) AsOfTime(now time.Time) (time.Time, error) {
	if s.Inputs.AsOf == "" {
		return now, nil
	}
	t, err := time.Parse(AsOfLayout, s.Inputs.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("as-of date must be %s, got %q", AsOfLayout, s.Inputs.AsOf)
	}
	return t, nil
}

// WriteDefaults writes the default settings document as YAML
func WriteDefaults(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	d := Defaults()
	if err := enc.Encode(&d); err != nil {
		return fmt.Errorf("failed to encode default settings: %w", err)
	}
	return enc.Close()
}
