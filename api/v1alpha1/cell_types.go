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

// Package v1alpha1 contains the serializable types shared by the RRH controller,
// its cell agents and the hosts that wire them together.
package v1alpha1

import (
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Tier classifies a cell. The order of Tiers defines the global index layout:
// all macro cells first, then micro, then pico.
type Tier string

const (
	// TierMacro is a wide-area macro cell.
	TierMacro Tier = "macro"
	// TierMicro is a micro cell.
	TierMicro Tier = "micro"
	// TierPico is a small pico cell.
	TierPico Tier = "pico"
)

// Tiers lists all tiers in global index order.
var Tiers = []Tier{TierMacro, TierMicro, TierPico}

// CellRef identifies a cell agent by its tier and tier-local index.
type CellRef struct {
	// Tier is the cell tier.
	Tier Tier `json:"tier" yaml:"tier"`

	// Index is the tier-local index, starting at zero.
	Index int `json:"index" yaml:"index"`
}

// String returns the cell name, e.g. "micro[2]".
func (c CellRef) String() string {
	return fmt.Sprintf("%s[%d]", c.Tier, c.Index)
}

// TopologySpec holds the number of cells of each tier.
type TopologySpec struct {
	// Macro is the number of macro cells.
	Macro int `json:"macro" yaml:"macro"`

	// Micro is the number of micro cells.
	Micro int `json:"micro" yaml:"micro"`

	// Pico is the number of pico cells.
	Pico int `json:"pico" yaml:"pico"`
}

// Count returns the number of cells configured for the given tier.
func (t TopologySpec) Count(tier Tier) int {
	switch tier {
	case TierMacro:
		return t.Macro
	case TierMicro:
		return t.Micro
	case TierPico:
		return t.Pico
	default:
		return 0
	}
}

// Total returns the number of cells across all tiers.
func (t TopologySpec) Total() int {
	return t.Macro + t.Micro + t.Pico
}

// ControllerSpec is the immutable configuration of the resource controller.
type ControllerSpec struct {
	// TotalChannels is the size of the shared channel pool. Must be positive.
	TotalChannels int `json:"totalChannels" yaml:"totalChannels"`

	// DynamicAllocation enables load-proportional redistribution at the end of each round.
	// When disabled the start-up baseline is kept forever.
	DynamicAllocation bool `json:"dynamicAllocation" yaml:"dynamicAllocation"`

	// PollIntervalSeconds is the delay between the end of a round and the next poll.
	// Must be positive.
	PollIntervalSeconds float64 `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`

	// Topology is the number of cells per tier.
	Topology TopologySpec `json:"topology" yaml:"topology"`
}

// PollInterval returns PollIntervalSeconds as a duration.
func (s ControllerSpec) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds * float64(time.Second))
}

// AgentSpec configures a single cell agent.
type AgentSpec struct {
	// InitialLoad is the number of users attached at start-up. Unset means zero.
	// Use pointer to allow an explicit zero in overrides.
	InitialLoad *int `json:"initialLoad,omitempty" yaml:"initialLoad,omitempty"`

	// InitialChannels is informational only; the controller's allocation is authoritative.
	InitialChannels int `json:"initialChannels,omitempty" yaml:"initialChannels,omitempty"`

	// MaxGrowth is the upper bound of the per-poll load increase.
	// Use pointer to allow an explicit zero in overrides.
	MaxGrowth *int `json:"maxGrowth,omitempty" yaml:"maxGrowth,omitempty"`
}

// CellAllocation is the allocation and last reported load of a single cell.
type CellAllocation struct {
	// Cell identifies the cell.
	Cell CellRef `json:"cell"`

	// GlobalIndex is the position of the cell in the tier-ordered cell sequence.
	GlobalIndex int `json:"globalIndex"`

	// Channels is the number of channels currently allocated to the cell.
	Channels int `json:"channels"`

	// Load is the load reported by the cell in the most recent round.
	Load int `json:"load"`
}

// AllocationStatus is a point-in-time view of the controller.
type AllocationStatus struct {
	// Round is the number of the most recently started round. Zero before the first poll.
	Round int64 `json:"round"`

	// State is the round state machine state ("Waiting" or "Polling").
	State string `json:"state"`

	// TotalChannels is the size of the channel pool.
	TotalChannels int `json:"totalChannels"`

	// TotalLoad is the sum of loads reported in the last completed round.
	TotalLoad int `json:"totalLoad"`

	// RepliesExpected is the number of replies still outstanding in the current round.
	RepliesExpected int `json:"repliesExpected"`

	// Cells lists every cell in global index order.
	Cells []CellAllocation `json:"cells,omitempty"`

	// LastRoundTime is when the last round completed.
	// +optional
	LastRoundTime metav1.Time `json:"lastRoundTime,omitempty"`
}

// Channels returns the per-cell channel counts in global index order.
func (s *AllocationStatus) Channels() []int {
	out := make([]int, len(s.Cells))
	for i, c := range s.Cells {
		out[i] = c.Channels
	}
	return out
}

// DeepCopy returns an independent copy of the status.
func (s *AllocationStatus) DeepCopy() *AllocationStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.Cells != nil {
		out.Cells = make([]CellAllocation, len(s.Cells))
		copy(out.Cells, s.Cells)
	}
	s.LastRoundTime.DeepCopyInto(&out.LastRoundTime)
	return &out
}

// Round states reported in AllocationStatus.State
const (
	// StateWaiting means no round is in progress and the next poll timer is pending.
	StateWaiting = "Waiting"
	// StatePolling means poll requests were sent and replies are outstanding.
	StatePolling = "Polling"
)
