/*
Copyright 2025 The hcran Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the controller and cell agent configuration.
// Values come from, in increasing precedence: defaults, a yaml file, RRH_* environment
// variables and command line flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
)

// EnvPrefix prefixes every environment variable read by the configuration.
const EnvPrefix = "RRH"

// Configuration keys.
const (
	KeyTotalChannels       = "totalChannels"
	KeyDynamicAllocation   = "dynamicAllocation"
	KeyPollIntervalSeconds = "pollIntervalSeconds"
	KeyTopologyMacro       = "topology.macro"
	KeyTopologyMicro       = "topology.micro"
	KeyTopologyPico        = "topology.pico"
	KeyAgents              = "agents"
	KeyAgentsFile          = "agentsFile"
	KeyMetricsAddr         = "metricsAddr"
	KeyLinkLatency         = "linkLatency"
)

// Defaults.
const (
	DefaultTotalChannels       = 100
	DefaultPollIntervalSeconds = 1.0
	DefaultMacroCells          = 5
	DefaultMicroCells          = 3
	DefaultPicoCells           = 2
	DefaultMetricsAddr         = ":8080"
	DefaultLinkLatency         = time.Millisecond
)

// binding ties a configuration key to its flag and environment variable.
type binding struct {
	key  string
	flag string
	env  string
}

var bindings = []binding{
	{KeyTotalChannels, "total-channels", "TOTAL_CHANNELS"},
	{KeyDynamicAllocation, "dynamic-allocation", "DYNAMIC_ALLOCATION"},
	{KeyPollIntervalSeconds, "poll-interval-seconds", "POLL_INTERVAL_SECONDS"},
	{KeyTopologyMacro, "macro", "TOPOLOGY_MACRO"},
	{KeyTopologyMicro, "micro", "TOPOLOGY_MICRO"},
	{KeyTopologyPico, "pico", "TOPOLOGY_PICO"},
	{KeyAgentsFile, "agents-file", "AGENTS_FILE"},
	{KeyMetricsAddr, "metrics-bind-address", "METRICS_BIND_ADDRESS"},
	{KeyLinkLatency, "link-latency", ""},
}

// Config is the complete, validated configuration of a run.
type Config struct {
	Controller  v1alpha1.ControllerSpec
	Agents      AgentConfigData
	MetricsAddr string
	LinkLatency time.Duration
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.Int("total-channels", DefaultTotalChannels, "Size of the shared channel pool.")
	fs.Bool("dynamic-allocation", true, "Redistribute channels proportionally to load after every round.")
	fs.Float64("poll-interval-seconds", DefaultPollIntervalSeconds, "Delay between the end of a round and the next poll.")
	fs.Int("macro", DefaultMacroCells, "Number of macro cells.")
	fs.Int("micro", DefaultMicroCells, "Number of micro cells.")
	fs.Int("pico", DefaultPicoCells, "Number of pico cells.")
	fs.String("agents-file", "", "Yaml file mapping \"default\" and cell names to agent settings.")
	fs.String("metrics-bind-address", DefaultMetricsAddr, "The address the metric endpoint binds to.")
	fs.Duration("link-latency", DefaultLinkLatency, "Simulated one-way latency of the controller to cell links.")
}

// NewViper returns a viper instance with defaults, environment variables and the flags of fs bound.
// Flags missing from fs are skipped. configFile is optional.
func NewViper(fs *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(KeyTotalChannels, DefaultTotalChannels)
	v.SetDefault(KeyDynamicAllocation, true)
	v.SetDefault(KeyPollIntervalSeconds, DefaultPollIntervalSeconds)
	v.SetDefault(KeyTopologyMacro, DefaultMacroCells)
	v.SetDefault(KeyTopologyMicro, DefaultMicroCells)
	v.SetDefault(KeyTopologyPico, DefaultPicoCells)
	v.SetDefault(KeyMetricsAddr, DefaultMetricsAddr)
	v.SetDefault(KeyLinkLatency, DefaultLinkLatency)

	for _, b := range bindings {
		if b.env != "" {
			if err := v.BindEnv(b.key, EnvPrefix+"_"+b.env); err != nil {
				return nil, fmt.Errorf("binding env for %s: %w", b.key, err)
			}
		}
		if fs == nil {
			continue
		}
		if f := fs.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", b.flag, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds a Config from v and validates it. Any invalid value yields a *ConfigError.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Controller: v1alpha1.ControllerSpec{
			TotalChannels:       v.GetInt(KeyTotalChannels),
			DynamicAllocation:   v.GetBool(KeyDynamicAllocation),
			PollIntervalSeconds: v.GetFloat64(KeyPollIntervalSeconds),
			Topology: v1alpha1.TopologySpec{
				Macro: v.GetInt(KeyTopologyMacro),
				Micro: v.GetInt(KeyTopologyMicro),
				Pico:  v.GetInt(KeyTopologyPico),
			},
		},
		MetricsAddr: v.GetString(KeyMetricsAddr),
		LinkLatency: v.GetDuration(KeyLinkLatency),
	}

	entries := map[string]v1alpha1.AgentSpec{}
	if err := v.UnmarshalKey(KeyAgents, &entries); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", KeyAgents, err)
	}
	if path := v.GetString(KeyAgentsFile); path != "" {
		fromFile, err := LoadAgentsFile(path)
		if err != nil {
			return nil, err
		}
		for key, spec := range fromFile {
			entries[key] = spec
		}
	}
	cfg.Agents = NewAgentConfig(entries)

	errs := ValidateControllerSpec(cfg.Controller, nil)
	if cfg.LinkLatency < 0 {
		errs = append(errs, field.Invalid(field.NewPath(KeyLinkLatency), cfg.LinkLatency.String(), "must be non-negative"))
	}
	if err := AsError(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}
