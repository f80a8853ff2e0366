package config

import (
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
)

// ConfigError reports every invalid configuration value found during validation.
// The system refuses to start when one is returned.
type ConfigError struct {
	Errs field.ErrorList
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Errs.ToAggregate().Error()
}

// Unwrap exposes the individual field errors to errors.Is and errors.As.
func (e *ConfigError) Unwrap() []error {
	out := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		out = append(out, err)
	}
	return out
}

// AsError returns nil for an empty list, otherwise a *ConfigError wrapping errs.
func AsError(errs field.ErrorList) error {
	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Errs: errs}
}

// ValidateControllerSpec checks the controller configuration.
func ValidateControllerSpec(spec v1alpha1.ControllerSpec, path *field.Path) field.ErrorList {
	var errs field.ErrorList
	if spec.TotalChannels <= 0 {
		errs = append(errs, field.Invalid(path.Child("totalChannels"), spec.TotalChannels, "must be positive"))
	}
	if !(spec.PollIntervalSeconds > 0) {
		errs = append(errs, field.Invalid(path.Child("pollIntervalSeconds"), spec.PollIntervalSeconds, "must be positive"))
	}
	errs = append(errs, ValidateTopologySpec(spec.Topology, path.Child("topology"))...)
	return errs
}

// ValidateTopologySpec checks that no tier count is negative and at least one cell exists.
func ValidateTopologySpec(spec v1alpha1.TopologySpec, path *field.Path) field.ErrorList {
	var errs field.ErrorList
	negative := false
	for _, tier := range v1alpha1.Tiers {
		if n := spec.Count(tier); n < 0 {
			negative = true
			errs = append(errs, field.Invalid(path.Child(string(tier)), n, "must be non-negative"))
		}
	}
	if !negative && spec.Total() == 0 {
		errs = append(errs, field.Required(path, "at least one cell must be configured"))
	}
	return errs
}

// ValidateAgentSpec checks a single agent entry.
func ValidateAgentSpec(spec v1alpha1.AgentSpec, path *field.Path) field.ErrorList {
	var errs field.ErrorList
	if spec.InitialLoad != nil && *spec.InitialLoad < 0 {
		errs = append(errs, field.Invalid(path.Child("initialLoad"), *spec.InitialLoad, "must be non-negative"))
	}
	if spec.InitialChannels < 0 {
		errs = append(errs, field.Invalid(path.Child("initialChannels"), spec.InitialChannels, "must be non-negative"))
	}
	if spec.MaxGrowth != nil && *spec.MaxGrowth < 0 {
		errs = append(errs, field.Invalid(path.Child("maxGrowth"), *spec.MaxGrowth, "must be non-negative"))
	}
	return errs
}
