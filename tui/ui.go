// Package tui renders a full-screen progress view of a sanitize run: a
// title, summary lines, a legend, a scrolling map with one glyph per region,
// the phase line and a status block.
package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// UI owns the terminal screen. Drawing happens on the caller's goroutine;
// a background loop only watches for stop keys and resizes.
type UI struct {
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once
	closed   bool

	title        string
	phases       []string
	phaseDone    map[string]bool
	summaryLines []string
	legendLines  []string
	statusLines  []string
	mapLines     []string
	glyphStyles  map[rune]tcell.Style
}

// NewUI initialises the terminal and starts the key loop.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewUIWithScreen(s)
}

// NewUIWithScreen runs the UI on s, which is initialised here.
func NewUIWithScreen(s tcell.Screen) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	s.HideCursor()
	u := &UI{
		s:           s,
		stopChan:    make(chan struct{}),
		phaseDone:   make(map[string]bool),
		glyphStyles: make(map[rune]tcell.Style),
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal. It is safe to call more than once.
func (u *UI) Close() {
	if u.closed {
		return
	}
	u.closed = true
	u.RequestStop()
	u.s.Fini()
}

// RequestStop records that the operator asked to abandon the run.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
		_ = u.s.PostEvent(tcell.NewEventInterrupt(nil))
	})
}

// Stopped is closed once q, Esc or Ctrl-C is pressed.
func (u *UI) Stopped() <-chan struct{} { return u.stopChan }

func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

func (u *UI) Size() (width, height int) {
	if u.closed {
		return 0, 0
	}
	return u.s.Size()
}

func (u *UI) putStr(x, y int, str string, style func(rune) tcell.Style) {
	w, _ := u.s.Size()
	for i, r := range []rune(str) {
		if x+i >= w {
			break
		}
		st := tcell.StyleDefault
		if style != nil {
			st = style(r)
		}
		u.s.SetContent(x+i, y, r, nil, st)
	}
}

func (u *UI) glyphStyle(r rune) tcell.Style {
	if st, ok := u.glyphStyles[r]; ok {
		return st
	}
	return tcell.StyleDefault
}

// reservedRows is the space kept below the map for the phase and status
// blocks.
const reservedRows = 7

// MapRows returns how many map rows fit with the current header.
func (u *UI) MapRows() int {
	_, h := u.Size()
	used := len(u.summaryLines) + len(u.legendLines)
	if u.title != "" {
		used++
	}
	return max(1, h-used-reservedRows)
}

// LayoutAndDraw redraws everything.
func (u *UI) LayoutAndDraw() {
	if u.closed {
		return
	}
	u.s.Clear()
	w, h := u.s.Size()
	y := 0

	if u.title != "" {
		u.putStr(0, y, strings.Repeat("═", w), nil)
		u.putStr(max(0, (w-len([]rune(u.title)))/2), y, u.title, nil)
		y++
	}
	for _, lines := range [][]string{u.summaryLines, u.legendLines} {
		for _, line := range lines {
			if y >= h {
				break
			}
			u.putStr(0, y, line, u.glyphStyle)
			y++
		}
	}

	rows := min(len(u.mapLines), max(1, h-y-reservedRows))
	for i := 0; i < rows && y < h; i++ {
		u.putStr(0, y, u.mapLines[i], u.glyphStyle)
		y++
	}

	if len(u.phases) > 0 && y < h {
		u.putStr(0, y, strings.Repeat("─", w), nil)
		u.putStr(2, y, " Phase ", nil)
		y++
		var b strings.Builder
		for i, p := range u.phases {
			if i > 0 {
				b.WriteByte(' ')
			}
			mark := ' '
			if u.phaseDone[strings.ToLower(p)] {
				mark = '✓'
			}
			fmt.Fprintf(&b, "[%c]%s", mark, p)
		}
		u.putStr(0, y, b.String(), nil)
		y++
	}

	if len(u.statusLines) > 0 && y < h {
		u.putStr(0, y, strings.Repeat("─", w), nil)
		u.putStr(2, y, " Status ", nil)
		y++
		for _, line := range u.statusLines {
			if y >= h {
				break
			}
			u.putStr(0, y, line, nil)
			y++
		}
	}
	u.s.Show()
}

// SetPhaseDone marks a phase, matched case-insensitively.
func (u *UI) SetPhaseDone(p string) { u.phaseDone[strings.ToLower(p)] = true }

func (u *UI) SetPhases(labels []string) { u.phases = append([]string(nil), labels...) }

func (u *UI) SetTitle(t string) { u.title = t }

func (u *UI) SetSummaryLines(lines []string) { u.summaryLines = append([]string(nil), lines...) }

func (u *UI) SetLegend(lines []string) { u.legendLines = append([]string(nil), lines...) }

func (u *UI) SetStatusLines(lines []string) { u.statusLines = append([]string(nil), lines...) }

// SetMap replaces the block map rows. The UI renders them as given.
func (u *UI) SetMap(lines []string) { u.mapLines = append([]string(nil), lines...) }

// SetGlyphStyle colours every occurrence of r in the map and legend.
func (u *UI) SetGlyphStyle(r rune, st tcell.Style) { u.glyphStyles[r] = st }

func (u *UI) eventLoop() {
	s := u.s
	for {
		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC, ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			}
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventInterrupt, nil:
			return
		}
	}
}
