package commands

import (
	"cmp"
	"slices"
	"padelslots-backend/lib/scrapers/eversports"

	"github.com/jedib0t/go-pretty/v6/table"
)

func slotStatus(slot eversports.Slot) string {
	if !slot.Booked() {
		return "free"
	}
	if slot.Title != nil && *slot.Title != "" {
		return *slot.Title
	}
	return "booked"
}

func formatStart(start string) string {
	if len(start) != 4 {
		return start
	}
	return start[:2] + ":" + start[2:]
}

// newSlotsTable lists slots ordered by date, start time and court.
func newSlotsTable(slots []eversports.Slot, freeOnly bool) table.Writer {
	sorted := slices.Clone(slots)
	slices.SortFunc(sorted, func(a, b eversports.Slot) int {
		return cmp.Or(
			cmp.Compare(a.Date, b.Date),
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.Court, b.Court),
		)
	})

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Date", "Start", "Court", "Status"})
	for _, slot := range sorted {
		if freeOnly && slot.Booked() {
			continue
		}
		t.AppendRow(table.Row{slot.Date, formatStart(slot.Start), slot.Court, slotStatus(slot)})
	}
	t.SetStyle(table.StyleRounded)
	return t
}
