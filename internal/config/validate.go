package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for check overrides.
var recognizedParsers = map[string]bool{
	"generic":   true,
	"gofmt":     true,
	"gotest":    true,
	"eslint":    true,
	"npm-audit": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	g := cfg.Greenlight

	if g.Budgets.MaxLocalFixes < 0 {
		errs = append(errs, ValidationError{Field: "greenlight.budgets.max_local_fixes", Message: "must not be negative"})
	}
	if g.Budgets.MaxRemoteFixes < 0 {
		errs = append(errs, ValidationError{Field: "greenlight.budgets.max_remote_fixes", Message: "must not be negative"})
	}

	for field, value := range map[string]string{
		"greenlight.budgets.monitor_ceiling": g.Budgets.MonitorCeiling,
		"greenlight.polling.fast_interval":   g.Polling.FastInterval,
		"greenlight.polling.slow_interval":   g.Polling.SlowInterval,
		"greenlight.polling.age_threshold":   g.Polling.AgeThreshold,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		}
	}

	for i, rule := range g.Gate.Forbidden {
		prefix := fmt.Sprintf("greenlight.gate.forbidden[%d]", i)
		if rule.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		}
		if rule.Pattern == "" {
			errs = append(errs, ValidationError{Field: prefix + ".pattern", Message: "is required"})
		} else if _, err := regexp.Compile(rule.Pattern); err != nil {
			errs = append(errs, ValidationError{Field: prefix + ".pattern", Message: fmt.Sprintf("invalid regexp: %v", err)})
		}
	}

	for name, check := range g.Checks {
		prefix := fmt.Sprintf("greenlight.checks.%s", name)
		if check.Parser != "" && !recognizedParsers[check.Parser] {
			errs = append(errs, ValidationError{Field: prefix + ".parser", Message: fmt.Sprintf("unrecognized parser %q", check.Parser)})
		}
		if check.Timeout != "" {
			if _, err := time.ParseDuration(check.Timeout); err != nil {
				errs = append(errs, ValidationError{Field: prefix + ".timeout", Message: fmt.Sprintf("invalid duration %q", check.Timeout)})
			}
		}
		if check.AutoFix != nil && *check.AutoFix && check.FixCommand == "" {
			errs = append(errs, ValidationError{Field: prefix + ".fix_command", Message: "required when auto_fix is true"})
		}
	}

	for name, command := range g.Specialists {
		if strings.TrimSpace(command) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("greenlight.specialists.%s", name),
				Message: "command must not be empty",
			})
		}
	}

	return errs
}
