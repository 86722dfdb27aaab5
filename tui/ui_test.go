package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerotrace/sanitize"
)

func newSimUI(t *testing.T, w, h int) (*UI, tcell.SimulationScreen) {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	u, err := NewUIWithScreen(s)
	require.NoError(t, err)
	s.SetSize(w, h)
	t.Cleanup(u.Close)
	return u, s
}

func row(s tcell.Screen, y int) string {
	w, _ := s.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, _, _, _ := s.GetContent(x, y)
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

func TestUIDrawsTrackerMap(t *testing.T) {
	u, s := newSimUI(t, 40, 14)
	u.SetTitle("WIPE")
	tr := NewTracker(u, 4, 12)
	tr.Observe(sanitize.Event{Phase: sanitize.PhaseWrite, Region: region(0), Outcome: sanitize.OutcomeWritten})
	tr.Observe(sanitize.Event{Phase: sanitize.PhaseWrite, Region: region(1), Outcome: sanitize.OutcomeSkipped})
	tr.SetState(sanitize.StateVerify)

	assert.Contains(t, row(s, 0), "WIPE")
	// title, legend, then the map
	assert.Equal(t, "█·░", row(s, 2))
	assert.Equal(t, "[✓]Scan [✓]Write [✓]Flush [ ]Verify", row(s, 4))
}

func TestUIStopKey(t *testing.T) {
	u, s := newSimUI(t, 20, 10)
	assert.False(t, u.IsStopped())

	s.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case <-u.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("q did not request a stop")
	}
	assert.True(t, u.IsStopped())
}

func TestUICloseTwice(t *testing.T) {
	u, _ := newSimUI(t, 10, 5)
	u.Close()
	u.Close()
	w, h := u.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)
}
