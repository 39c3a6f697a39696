// Package config loads oomsentineld's configuration from the process
// environment and command-line flags, in that precedence order (spec §6):
// every option has an environment-variable form consulted first, and a
// flag form that overrides it when explicitly given.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// SortMode selects what the ranker's base score is.
type SortMode int

const (
	SortByScore SortMode = iota
	SortByRSS
)

// Config is the immutable, fully-validated set of options the daemon runs
// with for its whole lifetime (spec §3 "Config").
type Config struct {
	Memory ThresholdPair
	Swap   ThresholdPair

	IgnorePatterns []string
	AvoidPatterns  []string
	PreferPatterns []string
	Filters        Filters

	SortMode       SortMode
	IgnoreRootUser bool
	KillProcessGroup bool
	Priority       int
	DryRun         bool

	IntervalSeconds float64
	ReportSeconds   int
	Notify          bool

	PreKillScript  string
	PostKillScript string

	Debug     bool
	LogFormat string // "auto", "json", or "console"
}

// DefaultConfig returns the configuration used when no env var or flag
// overrides a given option. Both threshold pairs default to disabled
// (spec §3: "a pair with both zero means the subsystem is disabled").
func DefaultConfig() *Config {
	return &Config{
		IntervalSeconds: 1.0,
		LogFormat:       "auto",
	}
}

// envOption describes one configuration option's environment-variable
// binding, applied before flags are parsed so a flag's default already
// reflects any environment override (command-line still wins because a
// flag only overwrites its default when the user actually passes it).
type envOption struct {
	name  string
	apply func(cfg *Config, value string) error
}

const envPrefix = "OOM_GUARD_"

func envOptions() []envOption {
	return []envOption{
		{"MEM_PERCENT", func(c *Config, v string) error { return setPairFromString(&c.Memory, true, v) }},
		{"MEM_KIB", func(c *Config, v string) error { return setPairFromString(&c.Memory, false, v) }},
		{"SWAP_PERCENT", func(c *Config, v string) error { return setPairFromString(&c.Swap, true, v) }},
		{"SWAP_KIB", func(c *Config, v string) error { return setPairFromString(&c.Swap, false, v) }},
		{"IGNORE", func(c *Config, v string) error { c.IgnorePatterns = splitList(v); return nil }},
		{"AVOID", func(c *Config, v string) error { c.AvoidPatterns = splitList(v); return nil }},
		{"PREFER", func(c *Config, v string) error { c.PreferPatterns = splitList(v); return nil }},
		{"SORT_BY_RSS", func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			if b {
				c.SortMode = SortByRSS
			} else {
				c.SortMode = SortByScore
			}
			return nil
		}},
		{"IGNORE_ROOT_USER", boolSetter(func(c *Config) *bool { return &c.IgnoreRootUser })},
		{"KILL_GROUP", boolSetter(func(c *Config) *bool { return &c.KillProcessGroup })},
		{"PRIORITY", func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Priority = n
			return nil
		}},
		{"DRY_RUN", boolSetter(func(c *Config) *bool { return &c.DryRun })},
		{"INTERVAL_SECONDS", func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.IntervalSeconds = f
			return nil
		}},
		{"REPORT_SECONDS", func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.ReportSeconds = n
			return nil
		}},
		{"NOTIFY", boolSetter(func(c *Config) *bool { return &c.Notify })},
		{"PRE_KILL_SCRIPT", func(c *Config, v string) error { c.PreKillScript = v; return nil }},
		{"POST_KILL_SCRIPT", func(c *Config, v string) error { c.PostKillScript = v; return nil }},
		{"DEBUG", boolSetter(func(c *Config) *bool { return &c.Debug })},
		{"LOG_FORMAT", func(c *Config, v string) error { c.LogFormat = v; return nil }},
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func setPairFromString(pair *ThresholdPair, percent bool, v string) error {
	warn, kill, err := parsePairString(v)
	if err != nil {
		return err
	}
	if percent {
		pair.WarnPercent, pair.KillPercent = warn, kill
	} else {
		pair.WarnKiB, pair.KillKiB = uint64(warn), uint64(kill)
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load applies environ (as returned by os.Environ) then args (as from
// os.Args[1:]) on top of DefaultConfig, validates the result, and compiles
// the regex filters. Any malformed or unknown option aborts with an error
// (spec §6: "any error during configuration aborts startup before the
// supervisor loop begins"). Environment errors are combined into one error
// and returned before flags are parsed; flag parsing stops at the first bad
// flag; validation errors are combined into one error.
func Load(environ []string, args []string) (*Config, error) {
	cfg := DefaultConfig()

	known := envOptions()
	knownNames := make(map[string]envOption, len(known))
	for _, o := range known {
		knownNames[o.name] = o
	}

	var errs []error
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, envPrefix) {
			continue
		}
		name := strings.TrimPrefix(k, envPrefix)
		opt, found := knownNames[name]
		if !found {
			errs = append(errs, fmt.Errorf("unknown environment option %s", k))
			continue
		}
		if err := opt.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("environment option %s: %w", k, err))
		}
	}
	if len(errs) > 0 {
		return nil, joinErrors(errs)
	}

	fs := pflag.NewFlagSet("oomsentineld", pflag.ContinueOnError)
	fs.Var(percentPairFlag{&cfg.Memory}, "mem-percent", "memory warn,kill percent thresholds")
	fs.Var(kibPairFlag{&cfg.Memory}, "mem-kib", "memory warn,kill absolute KiB thresholds")
	fs.Var(percentPairFlag{&cfg.Swap}, "swap-percent", "swap warn,kill percent thresholds")
	fs.Var(kibPairFlag{&cfg.Swap}, "swap-kib", "swap warn,kill absolute KiB thresholds")
	ignore := fs.StringArray("ignore", cfg.IgnorePatterns, "regex of process names to never select (repeatable)")
	avoid := fs.StringArray("avoid", cfg.AvoidPatterns, "regex of process names to deprioritize (repeatable)")
	prefer := fs.StringArray("prefer", cfg.PreferPatterns, "regex of process names to prioritize (repeatable)")
	sortByRSS := fs.Bool("sort-by-rss", cfg.SortMode == SortByRSS, "rank by RSS instead of kernel OOM score")
	fs.BoolVar(&cfg.IgnoreRootUser, "ignore-root-user", cfg.IgnoreRootUser, "drop uid=0 processes from candidates")
	fs.BoolVar(&cfg.KillProcessGroup, "kill-group", cfg.KillProcessGroup, "signal the process group instead of the PID")
	fs.IntVar(&cfg.Priority, "set-priority", cfg.Priority, "daemon's own nice value")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "log intended kills without signalling")
	fs.Float64Var(&cfg.IntervalSeconds, "interval-seconds", cfg.IntervalSeconds, "base sample period / adaptive sleep ceiling")
	fs.IntVar(&cfg.ReportSeconds, "report-seconds", cfg.ReportSeconds, "periodic status log cadence, 0 disables")
	fs.BoolVar(&cfg.Notify, "notify", cfg.Notify, "enable desktop notifications")
	fs.StringVar(&cfg.PreKillScript, "pre-kill-script", cfg.PreKillScript, "absolute path to a pre-kill hook")
	fs.StringVar(&cfg.PostKillScript, "post-kill-script", cfg.PostKillScript, "absolute path to a post-kill hook")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "auto, json, or console")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	if fs.Changed("ignore") {
		cfg.IgnorePatterns = *ignore
	}
	if fs.Changed("avoid") {
		cfg.AvoidPatterns = *avoid
	}
	if fs.Changed("prefer") {
		cfg.PreferPatterns = *prefer
	}
	if fs.Changed("sort-by-rss") {
		if *sortByRSS {
			cfg.SortMode = SortByRSS
		} else {
			cfg.SortMode = SortByScore
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the threshold invariants, compiles the regex filters,
// and rejects nonsensical combinations — all accumulated into one error.
func (c *Config) validate() error {
	var errs []error
	if err := c.Memory.validate("memory"); err != nil {
		errs = append(errs, err)
	}
	if err := c.Swap.validate("swap"); err != nil {
		errs = append(errs, err)
	}
	if c.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("interval-seconds must be > 0"))
	}
	if c.ReportSeconds < 0 {
		errs = append(errs, fmt.Errorf("report-seconds must be >= 0"))
	}
	switch c.LogFormat {
	case "auto", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log-format must be auto, json, or console, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return joinErrors(errs)
	}

	filters, err := NewFilters(c.IgnorePatterns, c.AvoidPatterns, c.PreferPatterns)
	if err != nil {
		return err
	}
	c.Filters = filters
	return nil
}
