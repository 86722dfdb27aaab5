package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"

	"zerotrace/sanitize"
)

// Block map glyphs, one per region.
const (
	GlyphPending  = '░'
	GlyphSkipped  = '·'
	GlyphWritten  = '█'
	GlyphFailed   = '✗'
	GlyphVerified = '✓'
)

// Phases shown on the phase line.
var Phases = []string{"Scan", "Write", "Flush", "Verify"}

// maxCells bounds the map. Past it every cell stands for scale regions, so
// the tracker's memory does not grow with the device.
const maxCells = 1 << 16

// Tracker keeps one outcome per map cell and projects it onto a UI. A cell
// covers scale consecutive regions. It implements sanitize.Observer and must
// be fed from the run goroutine.
type Tracker struct {
	ui        *UI
	blockSize int
	regions   uint // 0 when the device length is unknown
	seen      uint // regions
	pos       uint // current region
	scale     uint

	skipped, written, failed, verified *bitset.BitSet
	counts                             map[sanitize.Outcome]uint

	bytes    map[sanitize.Phase]int64
	op       string
	start    time.Time
	lastDraw time.Time
	every    time.Duration
	now      func() time.Time
}

// NewTracker sizes the map for length bytes (-1 if unknown). ui may be nil,
// in which case nothing is drawn.
func NewTracker(ui *UI, blockSize int, length int64) *Tracker {
	n := uint(sanitize.RegionCount(length, blockSize))
	scale := max((n+maxCells-1)/maxCells, 1)
	cells := (n + scale - 1) / scale
	t := &Tracker{
		ui:        ui,
		blockSize: blockSize,
		regions:   n,
		scale:     scale,
		skipped:   bitset.New(cells),
		written:   bitset.New(cells),
		failed:    bitset.New(cells),
		verified:  bitset.New(cells),
		counts:    make(map[sanitize.Outcome]uint),
		bytes:     make(map[sanitize.Phase]int64),
		op:        "starting",
		every:     100 * time.Millisecond,
		now:       time.Now,
	}
	t.start = t.now()
	if ui != nil {
		ui.SetPhases(Phases)
		ui.SetLegend([]string{fmt.Sprintf("%c written  %c clean  %c failed  %c pending  %c verified",
			GlyphWritten, GlyphSkipped, GlyphFailed, GlyphPending, GlyphVerified)})
		ui.SetGlyphStyle(GlyphFailed, tcell.StyleDefault.Foreground(tcell.ColorRed))
		ui.SetGlyphStyle(GlyphVerified, tcell.StyleDefault.Foreground(tcell.ColorGreen))
		ui.SetGlyphStyle(GlyphSkipped, tcell.StyleDefault.Foreground(tcell.ColorGray))
	}
	return t
}

func (t *Tracker) Observe(ev sanitize.Event) {
	r := ev.Region.Index(t.blockSize)
	t.seen = max(t.seen, r+1)
	t.pos = r
	t.bytes[ev.Phase] += ev.Region.Length
	t.counts[ev.Outcome]++
	for t.regions == 0 && r/t.scale >= maxCells {
		t.coarsen()
	}

	i := r / t.scale
	switch ev.Outcome {
	case sanitize.OutcomeSkipped:
		t.skipped.Set(i)
	case sanitize.OutcomeWritten:
		t.written.Set(i)
	case sanitize.OutcomeFailed, sanitize.OutcomeMismatch:
		t.failed.Set(i)
	case sanitize.OutcomeVerified:
		t.verified.Set(i)
	}
	t.redraw(false)
}

// coarsen halves the map resolution of an unknown-length walk.
func (t *Tracker) coarsen() {
	for _, b := range []*bitset.BitSet{t.skipped, t.written, t.failed, t.verified} {
		folded := bitset.New(maxCells)
		for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
			folded.Set(i / 2)
		}
		*b = *folded
	}
	t.scale *= 2
}

// SetState follows the run state machine; it fits sanitize.Options.OnState.
func (t *Tracker) SetState(s sanitize.State) {
	switch s {
	case sanitize.StateWipe:
		t.op = "scan and write"
	case sanitize.StateVerify:
		t.op = "verify"
		t.phaseDone("Scan", "Write", "Flush")
	case sanitize.StateRelease:
		t.op = "release"
	case sanitize.StateDone:
		t.op = "done"
		t.phaseDone("Scan", "Write", "Flush")
		if t.counts[sanitize.OutcomeVerified] > 0 || t.bytes[sanitize.PhaseVerify] > 0 {
			t.phaseDone("Verify")
		}
	default:
		t.op = strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
	}
	t.redraw(true)
}

func (t *Tracker) phaseDone(names ...string) {
	if t.ui == nil {
		return
	}
	for _, n := range names {
		t.ui.SetPhaseDone(n)
	}
}

// Total is the number of cells on the map.
func (t *Tracker) Total() uint {
	n := t.seen
	if t.regions > 0 {
		n = t.regions
	}
	return (n + t.scale - 1) / t.scale
}

// Scale is the number of regions one cell stands for.
func (t *Tracker) Scale() uint { return t.scale }

// Glyph returns the map glyph of cell i. Failures win over everything,
// then verification, then writes.
func (t *Tracker) Glyph(i uint) rune {
	switch {
	case t.failed.Test(i):
		return GlyphFailed
	case t.verified.Test(i):
		return GlyphVerified
	case t.written.Test(i):
		return GlyphWritten
	case t.skipped.Test(i):
		return GlyphSkipped
	}
	return GlyphPending
}

// MapLines lays the map out in rows of width glyphs, scrolled so the
// current region stays on screen.
func (t *Tracker) MapLines(width, rows int) []string {
	total := t.Total()
	if total == 0 || width <= 0 || rows <= 0 {
		return nil
	}
	cells := uint(width * rows)
	pos := t.pos / t.scale
	start := uint(0)
	if total > cells {
		if pos >= cells {
			start = pos - cells + 1
		}
		start = min(start, total-cells)
	}

	var lines []string
	for r := uint(0); r < uint(rows); r++ {
		from := start + r*uint(width)
		if from >= total {
			break
		}
		to := min(from+uint(width), total)
		var b strings.Builder
		for i := from; i < to; i++ {
			b.WriteRune(t.Glyph(i))
		}
		lines = append(lines, b.String())
	}
	return lines
}

// StatusLines summarises counts, throughput and the current operation.
func (t *Tracker) StatusLines() []string {
	elapsed := t.now().Sub(t.start).Truncate(time.Second)
	done := t.bytes[sanitize.PhaseWrite]
	if t.op == "verify" || t.op == "done" && t.bytes[sanitize.PhaseVerify] > 0 {
		done = t.bytes[sanitize.PhaseVerify]
	}
	var rate float64
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(done) / s
	}

	eta := "n/a"
	if rate > 0 && t.regions > 0 {
		remain := int64(t.regions)*int64(t.blockSize) - done
		if remain > 0 {
			eta = time.Duration(float64(remain) / rate * float64(time.Second)).Truncate(time.Second).String()
		}
	}
	total := "?"
	if t.regions > 0 {
		total = fmt.Sprint(t.regions)
	}
	return []string{
		fmt.Sprintf("Region: %d / %s", t.pos+1, total),
		fmt.Sprintf("Written: %d   Clean: %d   Failed: %d   Verified: %d",
			t.counts[sanitize.OutcomeWritten], t.counts[sanitize.OutcomeSkipped],
			t.counts[sanitize.OutcomeFailed]+t.counts[sanitize.OutcomeMismatch], t.counts[sanitize.OutcomeVerified]),
		fmt.Sprintf("Elapsed: %s   Rate: %s/s   ETA: %s", elapsed, humanize.IBytes(uint64(rate)), eta),
		"Current op: " + t.op,
	}
}

func (t *Tracker) redraw(force bool) {
	if t.ui == nil {
		return
	}
	now := t.now()
	if !force && now.Sub(t.lastDraw) < t.every {
		return
	}
	t.lastDraw = now
	w, _ := t.ui.Size()
	t.ui.SetMap(t.MapLines(w, t.ui.MapRows()))
	t.ui.SetStatusLines(t.StatusLines())
	t.ui.LayoutAndDraw()
}
