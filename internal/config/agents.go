package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/topology"
)

// DefaultAgentsKey holds the settings shared by all cell agents.
const DefaultAgentsKey = "default"

// AgentConfigData maps "default" and cell names such as "micro[1]" to agent settings.
type AgentConfigData map[string]v1alpha1.AgentSpec

// NewAgentConfig builds AgentConfigData from entries keyed by "default" or a cell name.
// Entries that fail validation or name no valid cell are skipped.
func NewAgentConfig(entries map[string]v1alpha1.AgentSpec) AgentConfigData {
	out := make(AgentConfigData)

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		spec := entries[key]
		if errs := ValidateAgentSpec(spec, field.NewPath(KeyAgents).Key(key)); len(errs) > 0 {
			ctrl.Log.Info("Invalid agent config entry, skipping",
				"key", key,
				"error", errs.ToAggregate())
			continue
		}

		if key == DefaultAgentsKey {
			out[DefaultAgentsKey] = spec
			continue
		}

		ref, err := topology.ParseCellRef(key)
		if err != nil {
			ctrl.Log.Info("Skipping agent config with invalid cell name",
				"key", key,
				"error", err)
			continue
		}
		// "MACRO[0]" and "macro[0]" name the same cell; the first key in sort order wins
		name := ref.String()
		if _, exists := out[name]; exists {
			ctrl.Log.Info("Duplicate agent config for cell - first key wins",
				"cell", name,
				"duplicateKey", key)
			continue
		}
		out[name] = spec
	}

	ctrl.Log.V(logging.DEBUG).Info("Parsed agent config",
		"entryCount", len(out))

	return out
}

// ParseAgentDocument decodes a yaml document mapping "default" or cell names to agent settings.
// Entries that cannot be decoded are skipped; only a malformed document is an error.
func ParseAgentDocument(data []byte) (map[string]v1alpha1.AgentSpec, error) {
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parsing agent document: %w", err)
	}
	out := make(map[string]v1alpha1.AgentSpec, len(nodes))
	for key, node := range nodes {
		var spec v1alpha1.AgentSpec
		if err := node.Decode(&spec); err != nil {
			ctrl.Log.Info("Failed to parse agent config entry, skipping",
				"key", key,
				"error", err)
			continue
		}
		out[key] = spec
	}
	return out, nil
}

// LoadAgentsFile reads a yaml agent document from path.
func LoadAgentsFile(path string) (map[string]v1alpha1.AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents file: %w", err)
	}
	return ParseAgentDocument(data)
}

// GetAgentSpec returns the effective settings of a cell: its override merged over the defaults.
// Unset fields in an override inherit the default. InitialLoad and MaxGrowth can be set
// to an explicit zero; a zero InitialChannels inherits.
func (data AgentConfigData) GetAgentSpec(ref v1alpha1.CellRef) v1alpha1.AgentSpec {
	defaults := data[DefaultAgentsKey]
	override, ok := data[ref.String()]
	if !ok {
		return defaults
	}

	result := defaults
	if override.InitialLoad != nil {
		result.InitialLoad = override.InitialLoad
	}
	if override.InitialChannels != 0 {
		result.InitialChannels = override.InitialChannels
	}
	if override.MaxGrowth != nil {
		result.MaxGrowth = override.MaxGrowth
	}
	return result
}

// CheckCells returns an error listing overrides that name cells outside the topology.
func (data AgentConfigData) CheckCells(topo *topology.Topology) error {
	var errs field.ErrorList
	for key := range data {
		if key == DefaultAgentsKey {
			continue
		}
		ref, err := topology.ParseCellRef(key)
		if err == nil {
			_, err = topo.GlobalIndex(ref)
		}
		if err != nil {
			errs = append(errs, field.NotFound(field.NewPath(KeyAgents).Key(key), key))
		}
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return fmt.Errorf("agent overrides: %w", AsError(errs))
	}
	return nil
}
