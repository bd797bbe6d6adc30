// Package display renders the client's terminal output during and after a
// job: a live progress bar (github.com/schollz/progressbar/v3) while
// segments are in flight, and a go-pretty table
// (github.com/jedib0t/go-pretty/v6) summarizing per-worker results at the
// end.
package display

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"

	"github.com/ekifun/transcodefleet/internal/dispatch"
)

// Progress wraps a terminal progress bar tracking completed-of-total
// segments. A nil *Progress is safe to call methods on (quiet mode).
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress builds a Progress bar over total segments, writing to w. When
// quiet is true it returns a Progress whose methods are no-ops.
func NewProgress(w io.Writer, total int, quiet bool) *Progress {
	if quiet || total == 0 {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("encoding segments"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &Progress{bar: bar}
}

// Add advances the bar by delta completed segments.
func (p *Progress) Add(delta int) {
	if p == nil {
		return
	}
	_ = p.bar.Add(delta)
}

// Finish marks the bar as complete.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}

// RenderSummary writes a go-pretty table of per-worker dispatch counts,
// failure counts, and final quarantine state, followed by the job's total
// elapsed time.
func RenderSummary(w io.Writer, workers []dispatch.WorkerSummary, elapsed time.Duration) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Worker", "Dispatched", "Failures", "Quarantined"})

	for _, ws := range workers {
		tw.AppendRow(table.Row{ws.Address, ws.Dispatched, ws.Failures, ws.Quarantined})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	tw.Render()

	fmt.Fprintf(w, "total elapsed: %s\n", elapsed.Round(time.Millisecond))
}
