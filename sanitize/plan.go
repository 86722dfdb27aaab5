package sanitize

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/cockroachdb/errors"
)

// Mode selects a pass plan and the regions it is applied to.
type Mode string

const (
	// ModeTest writes one zero block at offset 0 and nothing else.
	ModeTest Mode = "test"
	// ModeClear writes 0x00 over every region.
	ModeClear Mode = "clear"
	// ModePurge writes 0x00, 0xFF and pseudorandom over every region.
	ModePurge Mode = "purge"
	// ModeSelectivePurge applies the purge passes to dirty regions only.
	ModeSelectivePurge Mode = "selective-purge"
)

// Modes lists the recognised modes in help order.
func Modes() []Mode {
	return []Mode{ModeTest, ModeClear, ModePurge, ModeSelectivePurge}
}

// ParseMode accepts a mode name, ignoring case and surrounding space.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes() {
		if m == known {
			return m, nil
		}
	}
	return "", errors.Newf("unknown mode %q (want one of %s)", s, modeList())
}

func modeList() string {
	names := make([]string, 0, 4)
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return strings.Join(names, "|")
}

// PatternKind is the content a pass writes.
type PatternKind int

const (
	Constant PatternKind = iota
	Pseudorandom
)

func (k PatternKind) String() string {
	if k == Pseudorandom {
		return "pseudorandom"
	}
	return "constant"
}

// Pass is one pattern in a plan. Pseudorandom passes are keyed by a per-run
// seed and the region offset, so the bytes of any region can be regenerated.
type Pass struct {
	Kind  PatternKind
	Value byte
	seed  uint64
}

func ConstantPass(b byte) Pass { return Pass{Kind: Constant, Value: b} }

func RandomPass(seed uint64) Pass { return Pass{Kind: Pseudorandom, seed: seed} }

func (p Pass) String() string {
	if p.Kind == Pseudorandom {
		return "pseudorandom"
	}
	return fmt.Sprintf("constant(0x%02X)", p.Value)
}

// Fill writes the pass pattern for the region starting at off into buf.
func (p Pass) Fill(buf []byte, off int64) {
	if p.Kind == Constant {
		for i := range buf {
			buf[i] = p.Value
		}
		return
	}
	src := p.stream(off)
	var w [8]byte
	for len(buf) >= 8 {
		binary.LittleEndian.PutUint64(buf, src.Uint64())
		buf = buf[8:]
	}
	if len(buf) > 0 {
		binary.LittleEndian.PutUint64(w[:], src.Uint64())
		copy(buf, w[:])
	}
}

// Mismatch returns the index of the first byte of buf that differs from
// what Fill would produce for a region at off, or -1.
func (p Pass) Mismatch(buf []byte, off int64) int {
	if p.Kind == Constant {
		for i, c := range buf {
			if c != p.Value {
				return i
			}
		}
		return -1
	}
	src := p.stream(off)
	var w [8]byte
	for i := 0; i < len(buf); i += 8 {
		binary.LittleEndian.PutUint64(w[:], src.Uint64())
		end := min(i+8, len(buf))
		for j := i; j < end; j++ {
			if buf[j] != w[j-i] {
				return j
			}
		}
	}
	return -1
}

// Expected returns the byte Fill would place at index i of a region at off.
func (p Pass) Expected(off int64, i int) byte {
	if p.Kind == Constant {
		return p.Value
	}
	src := p.stream(off)
	for k := 0; k < i/8; k++ {
		src.Uint64()
	}
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], src.Uint64())
	return w[i%8]
}

func (p Pass) stream(off int64) *rand.Rand {
	return rand.New(rand.NewPCG(p.seed, uint64(off)))
}

// Selection decides which scanned regions receive the passes.
type Selection int

const (
	// SelectAll targets every region of the device.
	SelectAll Selection = iota
	// SelectDirty targets only regions holding a non-zero byte.
	SelectDirty
	// SelectFirst targets only the region at offset 0.
	SelectFirst
)

// NeedsContent reports whether regions must be read before selection.
func (s Selection) NeedsContent() bool { return s == SelectDirty }

// Wants reports whether b is targeted.
func (s Selection) Wants(b Block) bool {
	switch s {
	case SelectDirty:
		return b.Dirty
	case SelectFirst:
		return b.Offset == 0
	}
	return true
}

// Plan is the fixed, ordered pass list of a mode and its region selection.
type Plan struct {
	Mode   Mode
	Passes []Pass
	Select Selection
}

// PlanFor builds the plan for mode. seed keys the pseudorandom pass.
func PlanFor(mode Mode, seed uint64) (Plan, error) {
	purge := []Pass{ConstantPass(0x00), ConstantPass(0xFF), RandomPass(seed)}
	switch mode {
	case ModeTest:
		return Plan{Mode: mode, Passes: []Pass{ConstantPass(0x00)}, Select: SelectFirst}, nil
	case ModeClear:
		return Plan{Mode: mode, Passes: []Pass{ConstantPass(0x00)}, Select: SelectAll}, nil
	case ModePurge:
		return Plan{Mode: mode, Passes: purge, Select: SelectAll}, nil
	case ModeSelectivePurge:
		return Plan{Mode: mode, Passes: purge, Select: SelectDirty}, nil
	}
	return Plan{}, errors.Newf("no pass plan for mode %q", mode)
}

// Final is the pass whose content remains on targeted regions.
func (p Plan) Final() Pass { return p.Passes[len(p.Passes)-1] }

func (p Plan) String() string {
	parts := make([]string, len(p.Passes))
	for i, ps := range p.Passes {
		parts[i] = ps.String()
	}
	return string(p.Mode) + " [" + strings.Join(parts, ", ") + "]"
}
