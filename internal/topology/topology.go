package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
)

// Topology is the ordered, immutable list of cells known to the controller.
type Topology struct {
	spec    v1alpha1.TopologySpec
	offsets map[v1alpha1.Tier]int
	cells   []v1alpha1.CellRef
}

// New builds the tier-block layout for spec.
func New(spec v1alpha1.TopologySpec) (*Topology, error) {
	for _, tier := range v1alpha1.Tiers {
		if spec.Count(tier) < 0 {
			return nil, fmt.Errorf("%w: %s=%d", errNegativeCount, tier, spec.Count(tier))
		}
	}
	if spec.Total() == 0 {
		return nil, ErrEmptyTopology
	}

	t := &Topology{
		spec:    spec,
		offsets: make(map[v1alpha1.Tier]int, len(v1alpha1.Tiers)),
		cells:   make([]v1alpha1.CellRef, 0, spec.Total()),
	}
	for _, tier := range v1alpha1.Tiers {
		t.offsets[tier] = len(t.cells)
		for i := 0; i < spec.Count(tier); i++ {
			t.cells = append(t.cells, v1alpha1.CellRef{Tier: tier, Index: i})
		}
	}
	return t, nil
}

// Spec returns the per-tier counts the topology was built from.
func (t *Topology) Spec() v1alpha1.TopologySpec {
	return t.spec
}

// Len returns the total number of cells.
func (t *Topology) Len() int {
	return len(t.cells)
}

// Cells returns a copy of all cells in global index order.
func (t *Topology) Cells() []v1alpha1.CellRef {
	out := make([]v1alpha1.CellRef, len(t.cells))
	copy(out, t.cells)
	return out
}

// GlobalIndex resolves a cell to its global index.
func (t *Topology) GlobalIndex(ref v1alpha1.CellRef) (int, error) {
	offset, ok := t.offsets[ref.Tier]
	if !ok || ref.Index < 0 || ref.Index >= t.spec.Count(ref.Tier) {
		return -1, fmt.Errorf("%w: %s", ErrUnknownCell, ref)
	}
	return offset + ref.Index, nil
}

// CellAt is the inverse of GlobalIndex.
func (t *Topology) CellAt(globalIndex int) (v1alpha1.CellRef, error) {
	if globalIndex < 0 || globalIndex >= len(t.cells) {
		return v1alpha1.CellRef{}, fmt.Errorf("%w: global index %d", ErrUnknownCell, globalIndex)
	}
	return t.cells[globalIndex], nil
}

// ParseTier matches a tier name, ignoring case and surrounding spaces.
func ParseTier(value string) (v1alpha1.Tier, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, tier := range v1alpha1.Tiers {
		if value == string(tier) {
			return tier, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errUnknownTier, value)
}

// ParseCellRef parses a cell name as produced by CellRef.String, e.g. "pico[1]".
func ParseCellRef(name string) (v1alpha1.CellRef, error) {
	name = strings.TrimSpace(name)
	open := strings.IndexByte(name, '[')
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return v1alpha1.CellRef{}, fmt.Errorf("%w: %q", errBadCellName, name)
	}
	tier, err := ParseTier(name[:open])
	if err != nil {
		return v1alpha1.CellRef{}, err
	}
	index, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil || index < 0 {
		return v1alpha1.CellRef{}, fmt.Errorf("%w: %q", errBadCellName, name)
	}
	return v1alpha1.CellRef{Tier: tier, Index: index}, nil
}
