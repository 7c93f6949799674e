package config

import "time"

// Config is the top-level configuration structure parsed from YAML.
type Config struct {
	Greenlight Greenlight `yaml:"greenlight"`
}

// Greenlight holds all orchestrator settings.
type Greenlight struct {
	Budgets     Budgets                  `yaml:"budgets"`
	Polling     Polling                  `yaml:"polling"`
	Gate        Gate                     `yaml:"gate"`
	Specialists map[string]string        `yaml:"specialists"` // specialist name -> command
	Commit      Commit                   `yaml:"commit"`
	Checks      map[string]CheckOverride `yaml:"checks"`
}

// Budgets bounds the fix loops so a stuck submission terminates.
type Budgets struct {
	MaxLocalFixes  int    `yaml:"max_local_fixes"`
	MaxRemoteFixes int    `yaml:"max_remote_fixes"`
	MonitorCeiling string `yaml:"monitor_ceiling"`
}

// Polling tunes the remote CI watch cadence.
type Polling struct {
	FastInterval string `yaml:"fast_interval"`
	SlowInterval string `yaml:"slow_interval"`
	AgeThreshold string `yaml:"age_threshold"`
}

// Gate configures the local quality gate.
type Gate struct {
	ApplyFixes *bool           `yaml:"apply_fixes"` // default true
	DocFiles   []string        `yaml:"doc_files"`
	Forbidden  []ForbiddenRule `yaml:"forbidden"`
}

// ForbiddenRule is a user-supplied forbidden source pattern, applied on
// top of the built-in rules.
type ForbiddenRule struct {
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`
	Message  string `yaml:"message"`
	ProdOnly bool   `yaml:"prod_only"`
}

// CheckOverride replaces fields of one battery check.
type CheckOverride struct {
	Command    string `yaml:"command"`
	Parser     string `yaml:"parser"`
	Timeout    string `yaml:"timeout"`
	FixCommand string `yaml:"fix_command"`
	AutoFix    *bool  `yaml:"auto_fix"`
}

// Commit configures the commit step.
type Commit struct {
	MessagePrefix string `yaml:"message_prefix"`
}

// AutoFixEnabled reports whether gate auto-fix commands may run.
func (g *Gate) AutoFixEnabled() bool {
	return g.ApplyFixes == nil || *g.ApplyFixes
}

// ParseTimeout parses a duration string, falling back to def on empty or
// invalid input.
func ParseTimeout(s string, def time.Duration) time.Duration {
	return duration(s, def)
}

// duration parses s, falling back to def on empty or invalid input.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// MonitorCeilingDuration returns the wall-clock ceiling for CI watching.
func (b *Budgets) MonitorCeilingDuration() time.Duration {
	return duration(b.MonitorCeiling, 4*time.Hour)
}

// FastIntervalDuration returns the poll interval for young CI runs.
func (p *Polling) FastIntervalDuration() time.Duration {
	return duration(p.FastInterval, 15*time.Second)
}

// SlowIntervalDuration returns the poll interval for long-running CI runs.
func (p *Polling) SlowIntervalDuration() time.Duration {
	return duration(p.SlowInterval, 60*time.Second)
}

// AgeThresholdDuration returns the run age at which polling slows down.
func (p *Polling) AgeThresholdDuration() time.Duration {
	return duration(p.AgeThreshold, 10*time.Minute)
}
