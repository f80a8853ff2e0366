// Package topology maps cells to their stable global index. Cells are laid out in
// contiguous tier blocks (macro, then micro, then pico), so the global index of a cell
// is its tier-block offset plus its tier-local index.
package topology

import "errors"

var (
	// ErrUnknownCell is returned when a cell reference is outside the configured topology.
	ErrUnknownCell = errors.New("cell is not part of the topology")
	// ErrEmptyTopology is returned when no cells are configured.
	ErrEmptyTopology = errors.New("topology has no cells")

	errUnknownTier   = errors.New("unknown tier")
	errNegativeCount = errors.New("tier cell count must not be negative")
	errBadCellName   = errors.New("cell name must have the form <tier>[<index>]")
)
