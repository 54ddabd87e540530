package payload_dumper_test

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	payload_dumper "github.com/affggh/payload_dumper"
	"github.com/affggh/payload_dumper/update_metadata"
)

// recordingRenderer captures row snapshots and checks the completed-ops sum
// never decreases.
type recordingRenderer struct {
	mu      sync.Mutex
	rows    []payload_dumper.ProgressRow
	lastSum int
	backlog bool // set if a render ever went backwards
}

func (r *recordingRenderer) Render(rows []payload_dumper.ProgressRow, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, row := range rows {
		sum += row.CompletedOps
	}
	if sum < r.lastSum {
		r.backlog = true
	}
	r.lastSum = sum
	r.rows = append([]payload_dumper.ProgressRow(nil), rows...)
}

func (r *recordingRenderer) lastRows() []payload_dumper.ProgressRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

func multiPartitionPayload(n int) []byte {
	parts := make([]testPartition, n)
	names := []string{"boot", "system", "vendor", "product", "odm", "dtbo"}
	for i := range parts {
		parts[i] = testPartition{
			name: names[i%len(names)],
			ops: []testOp{
				{typ: update_metadata.InstallOperation_REPLACE, data: []byte("data0"), extents: [][2]uint64{{0, 1}}},
				{typ: update_metadata.InstallOperation_ZERO, extents: [][2]uint64{{1, 1}}},
				{typ: update_metadata.InstallOperation_REPLACE, data: []byte("data2"), extents: [][2]uint64{{2, 1}}},
			},
		}
	}
	return buildPayload(parts)
}

func TestProgressCountsReachTotals(t *testing.T) {
	payload := multiPartitionPayload(5)

	p, err := payload_dumper.InitPayloadInfo(bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	rec := &recordingRenderer{}
	p.Progress = rec
	if err := p.ExtractPartitions(nil, t.TempDir(), 3); err != nil {
		t.Fatal(err)
	}

	rows := rec.lastRows()
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5", len(rows))
	}
	for _, row := range rows {
		if row.CompletedOps != row.TotalOps {
			t.Errorf("%s: completed %d of %d", row.Name, row.CompletedOps, row.TotalOps)
		}
		if row.TotalOps != 3 {
			t.Errorf("%s: total ops %d, want 3", row.Name, row.TotalOps)
		}
	}
	if rec.backlog {
		t.Error("progress went backwards")
	}
}

// countingReaderAt verifies reads through the shared source never overlap.
type countingReaderAt struct {
	r        *bytes.Reader
	inFlight atomic.Int32
	max      atomic.Int32
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	depth := c.inFlight.Add(1)
	for {
		cur := c.max.Load()
		if depth <= cur || c.max.CompareAndSwap(cur, depth) {
			break
		}
	}
	n, err := c.r.ReadAt(p, off)
	c.inFlight.Add(-1)
	return n, err
}

func TestAtMostOneReaderInFlight(t *testing.T) {
	payload := multiPartitionPayload(6)

	src := &countingReaderAt{r: bytes.NewReader(payload)}
	p, err := payload_dumper.InitPayloadInfo(src)
	if err != nil {
		t.Fatal(err)
	}
	p.Progress = payload_dumper.NoProgress
	if err := p.ExtractPartitions(nil, t.TempDir(), 6); err != nil {
		t.Fatal(err)
	}

	if max := src.max.Load(); max > 1 {
		t.Errorf("max concurrent source reads = %d, want 1", max)
	}
}

func TestAnsiRendererOutput(t *testing.T) {
	rows := []payload_dumper.ProgressRow{
		{ThreadID: 0, Name: "boot", TotalOps: 2, CompletedOps: 1},
		{ThreadID: 1, Name: "system", TotalOps: 4, CompletedOps: 4},
	}

	var buf bytes.Buffer
	r := payload_dumper.NewAnsiProgressRenderer(&buf)
	r.Render(rows, true)
	out := buf.String()

	if !strings.Contains(out, "\033[2A") {
		t.Error("missing cursor-up escape for 2 rows")
	}
	if !strings.Contains(out, " 50% (1/2)") {
		t.Errorf("missing 50%% line:\n%q", out)
	}
	if !strings.Contains(out, "100% (4/4)") {
		t.Errorf("missing 100%% line:\n%q", out)
	}
	if !strings.Contains(out, "✓ DONE") {
		t.Errorf("missing DONE suffix:\n%q", out)
	}
	// 15 of 30 cells filled, then the head marker.
	if !strings.Contains(out, "[===============>") {
		t.Errorf("missing half-filled bar:\n%q", out)
	}
	if !strings.Contains(out, "[==============================]") {
		t.Errorf("missing full bar:\n%q", out)
	}

	// A second frame repaints in place without a new header block.
	buf.Reset()
	r.Render(rows, false)
	if !strings.HasPrefix(buf.String(), "\033[2A") {
		t.Errorf("repaint should start with cursor-up:\n%q", buf.String())
	}
}
