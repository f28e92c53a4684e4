package uir

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/device"
)

// Stats is a snapshot of renderer counters.
type Stats struct {
	// Frames counts Frame calls since creation.
	Frames     uint64
	Draw       device.DrawStatistics
	Chain      chain.Statistics
	Allocation device.AllocationStatistics
}

var statsPrinter = message.NewPrinter(language.English)

// String formats the counters on one line with grouped digits.
func (s Stats) String() string {
	var verts, used uint32
	for _, p := range s.Allocation.Pages {
		verts += p.VertexCapacity
		used += p.VertexUsed
	}
	return statsPrinter.Sprintf(
		"frame %d: %d elements, %d commands, %d draws in %d calls (%d indices), %d texture misses, %d pages (%d/%d vertices), %d text regenerated",
		s.Frames, s.Chain.Elements, s.Draw.Commands, s.Draw.DrawCommands, s.Draw.DrawRangeCalls,
		s.Draw.TotalIndices, s.Draw.TextureMisses, len(s.Allocation.Pages), used, verts, s.Chain.TextRegenerated,
	)
}
