package payload_dumper

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/affggh/payload_dumper/update_metadata"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressRow is one partition's line in the progress display. Counters only
// ever increase; after extraction CompletedOps equals TotalOps for every
// partition that opened its output file.
type ProgressRow struct {
	ThreadID     int
	Name         string
	TotalOps     int
	CompletedOps int
}

// ProgressRenderer receives a snapshot of all rows after every completed
// operation. first is set on the initial call so multi-line renderers can
// print their header block once.
type ProgressRenderer interface {
	Render(rows []ProgressRow, first bool)
}

type nullProgressRenderer struct{}

func (nullProgressRenderer) Render([]ProgressRow, bool) {}

// NoProgress silences progress output entirely.
var NoProgress ProgressRenderer = nullProgressRenderer{}

type progressTracker struct {
	mu          sync.Mutex
	rows        []ProgressRow
	renderer    ProgressRenderer
	initialized bool
}

func newProgressTracker(parts []*update_metadata.PartitionUpdate, workers int, renderer ProgressRenderer) *progressTracker {
	rows := make([]ProgressRow, len(parts))
	total := 0
	for i, part := range parts {
		rows[i] = ProgressRow{
			ThreadID: i % workers,
			Name:     part.GetPartitionName(),
			TotalOps: len(part.GetOperations()),
		}
		total += rows[i].TotalOps
	}
	if renderer == nil {
		renderer = defaultRenderer(total)
	}
	return &progressTracker{rows: rows, renderer: renderer}
}

func defaultRenderer(totalOps int) ProgressRenderer {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewAnsiProgressRenderer(os.Stdout)
	}
	return newBarProgressRenderer(totalOps, os.Stdout)
}

func (t *progressTracker) opDone(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[idx].CompletedOps++
	first := !t.initialized
	t.initialized = true
	t.renderer.Render(t.rows, first)
}

// AnsiProgressRenderer repaints one line per partition using cursor-up and
// erase-line escapes: a 30-cell bar, percent, (done/total) and a green
// ✓ DONE suffix once a partition finishes.
type AnsiProgressRenderer struct {
	w io.Writer
}

func NewAnsiProgressRenderer(w io.Writer) *AnsiProgressRenderer {
	return &AnsiProgressRenderer{w: w}
}

const progressBarCells = 30

func (r *AnsiProgressRenderer) Render(rows []ProgressRow, first bool) {
	if first {
		fmt.Fprintln(r.w)
		for _, row := range rows {
			fmt.Fprintf(r.w, "[T%d] %-12s [%30s] %3d%% (%d/%d)\n",
				row.ThreadID, row.Name, "", 0, 0, row.TotalOps)
		}
	}

	fmt.Fprintf(r.w, "\033[%dA", len(rows))
	for _, row := range rows {
		completed, total := row.CompletedOps, row.TotalOps
		percent, filled := 100, progressBarCells
		if total > 0 {
			percent = completed * 100 / total
			filled = completed * progressBarCells / total
		}

		var bar strings.Builder
		for j := 0; j < progressBarCells; j++ {
			switch {
			case j < filled:
				bar.WriteByte('=')
			case j == filled && completed < total:
				bar.WriteByte('>')
			default:
				bar.WriteByte(' ')
			}
		}

		fmt.Fprint(r.w, "\033[2K")
		fmt.Fprintf(r.w, "[T%d] %-12s [%s] %3d%% (%d/%d)",
			row.ThreadID, row.Name, bar.String(), percent, completed, total)
		if completed == total {
			fmt.Fprint(r.w, colorstring.Color(" [green]✓ DONE"))
		}
		fmt.Fprintln(r.w)
	}
}

// barProgressRenderer collapses all partitions into one aggregate bar for
// non-terminal stdout, where cursor repositioning would garble the output.
type barProgressRenderer struct {
	bar *progressbar.ProgressBar
}

func newBarProgressRenderer(totalOps int, w io.Writer) *barProgressRenderer {
	return &barProgressRenderer{
		bar: progressbar.NewOptions64(int64(totalOps),
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
		),
	}
}

func (r *barProgressRenderer) Render(rows []ProgressRow, first bool) {
	var done int64
	for _, row := range rows {
		done += int64(row.CompletedOps)
	}
	r.bar.Set64(done)
}
