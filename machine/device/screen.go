package device

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/casevm/casevm/machine"
)

// Default cell colours.
const (
	DefaultForeground = 0xFFFFFF
	DefaultBackground = 0x000000
)

// SignalSink receives signals raised by devices, typically a Machine.
type SignalSink interface {
	PushSignal(name string, args ...any) bool
}

// Tier describes the capability level of a display device.
type Tier struct {
	MaxWidth  int
	MaxHeight int
	Depth     int // colour depth in bits
}

// Tiers indexed by tier number; tier 0 is the fallback.
var tiers = map[int]Tier{
	1: {MaxWidth: 50, MaxHeight: 16, Depth: 4},
	2: {MaxWidth: 80, MaxHeight: 25, Depth: 8},
	3: {MaxWidth: 160, MaxHeight: 50, Depth: 24},
}

// TierOf returns the capabilities of tier, falling back to tier 2.
func TierOf(tier int) Tier {
	if t, ok := tiers[tier]; ok {
		return t
	}
	return tiers[2]
}

// Cell is one character position of a screen.
type Cell struct {
	Char       rune
	Foreground int
	Background int
}

var blank = Cell{Char: ' ', Foreground: DefaultForeground, Background: DefaultBackground}

// Screen is a character display. The GPU draws on it; touches are reported
// to the machine through its signal sink.
type Screen struct {
	machine.Base
	tier    Tier
	removed atomic.Bool

	mu     sync.Mutex
	width  int
	height int
	cells  []Cell
	on     bool
	gpu    string
	sink   SignalSink
}

// NewScreen creates a screen of the given tier at 80x25, or the tier
// maximum when smaller.
func NewScreen(address string, tier int) *Screen {
	if address == "" {
		address = uuid.NewString()
	}
	t := TierOf(tier)
	s := &Screen{tier: t, on: true}
	s.resizeLocked(min(80, t.MaxWidth), min(25, t.MaxHeight))
	s.Base = machine.NewBase(address, "screen", machine.NewMethodTable(
		machine.Method{Name: "getResolution", Doc: "function():number,number -- Get the current resolution.", Call: func(machine.Args) ([]any, error) {
			w, h := s.Resolution()
			return []any{w, h}, nil
		}},
		machine.Method{Name: "maxResolution", Doc: "function():number,number -- Get the maximum resolution.", Call: func(machine.Args) ([]any, error) {
			return []any{s.tier.MaxWidth, s.tier.MaxHeight}, nil
		}},
		machine.Method{Name: "isOn", Doc: "function():boolean -- Whether the screen is powered.", Call: func(machine.Args) ([]any, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return []any{s.on}, nil
		}},
		machine.Method{Name: "turnOn", Doc: "function():boolean -- Power the screen on; returns whether the state changed.", Call: func(machine.Args) ([]any, error) {
			return []any{s.setPower(true)}, nil
		}},
		machine.Method{Name: "turnOff", Doc: "function():boolean -- Power the screen off; returns whether the state changed.", Call: func(machine.Args) ([]any, error) {
			return []any{s.setPower(false)}, nil
		}},
	))
	return s
}

// Valid reports whether the screen still exists.
func (s *Screen) Valid() bool { return !s.removed.Load() }

// Remove marks the screen as gone.
func (s *Screen) Remove() { s.removed.Store(true) }

// Tier returns the screen capabilities.
func (s *Screen) Tier() Tier { return s.tier }

// Attach routes touch signals to sink.
func (s *Screen) Attach(sink SignalSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Resolution returns the current width and height.
func (s *Screen) Resolution() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// SetResolution resizes and clears the buffer. It returns false when the
// size exceeds the tier.
func (s *Screen) SetResolution(w, h int) bool {
	if w <= 0 || h <= 0 || w > s.tier.MaxWidth || h > s.tier.MaxHeight {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeLocked(w, h)
	return true
}

func (s *Screen) resizeLocked(w, h int) {
	s.width, s.height = w, h
	s.cells = make([]Cell, w*h)
	for i := range s.cells {
		s.cells[i] = blank
	}
}

// BoundGPU returns the address of the GPU drawing on this screen.
func (s *Screen) BoundGPU() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gpu
}

func (s *Screen) bind(gpu string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpu = gpu
}

func (s *Screen) setPower(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.on != on
	s.on = on
	return changed
}

// index maps 0-based coordinates to a cell, or -1 when outside.
func (s *Screen) index(x, y int) int {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return -1
	}
	return y*s.width + x
}

// Get returns the cell at 0-based coordinates.
func (s *Screen) Get(x, y int) (Cell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(x, y)
	if i < 0 {
		return Cell{}, false
	}
	return s.cells[i], true
}

// Set writes text starting at 0-based coordinates, clipping at the edges.
// It reports whether any cell changed.
func (s *Screen) Set(x, y int, text string, fg, bg int, vertical bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	i := 0
	for _, r := range text {
		px, py := x+i, y
		if vertical {
			px, py = x, y+i
		}
		i++
		changed = s.putLocked(px, py, Cell{Char: r, Foreground: fg, Background: bg}) || changed
	}
	return changed
}

// Fill paints a rectangle with one character.
func (s *Screen) Fill(x, y, w, h int, r rune, fg, bg int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for py := y; py < y+h; py++ {
		for px := x; px < x+w; px++ {
			changed = s.putLocked(px, py, Cell{Char: r, Foreground: fg, Background: bg}) || changed
		}
	}
	return changed
}

// Copy moves a rectangle to a new origin. Source cells outside the screen
// read as blank.
func (s *Screen) Copy(x, y, w, h, tx, ty int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := make([]Cell, w*h)
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			c := blank
			if i := s.index(x+px, y+py); i >= 0 {
				c = s.cells[i]
			}
			tmp[py*w+px] = c
		}
	}
	changed := false
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			changed = s.putLocked(tx+px, ty+py, tmp[py*w+px]) || changed
		}
	}
	return changed
}

func (s *Screen) putLocked(x, y int, c Cell) bool {
	i := s.index(x, y)
	if i < 0 || s.cells[i] == c {
		return false
	}
	s.cells[i] = c
	return true
}

// Lines renders the character buffer, one string per row, without trailing
// spaces.
func (s *Screen) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, s.height)
	var b strings.Builder
	for y := 0; y < s.height; y++ {
		b.Reset()
		for x := 0; x < s.width; x++ {
			b.WriteRune(s.cells[y*s.width+x].Char)
		}
		lines[y] = strings.TrimRight(b.String(), " ")
	}
	return lines
}

// Touch reports a click at 1-based coordinates as a touch signal.
func (s *Screen) Touch(x, y int, player string) bool {
	return s.emit(machine.SignalTouch, x, y, player)
}

// Drag reports a drag to 1-based coordinates.
func (s *Screen) Drag(x, y int, player string) bool {
	return s.emit(machine.SignalDrag, x, y, player)
}

// Scroll reports a scroll at 1-based coordinates.
func (s *Screen) Scroll(x, y, delta int, player string) bool {
	return s.emit(machine.SignalScroll, x, y, delta, player)
}

func (s *Screen) emit(name string, args ...any) bool {
	s.mu.Lock()
	sink, on := s.sink, s.on
	s.mu.Unlock()
	if sink == nil || !on {
		return false
	}
	return sink.PushSignal(name, append([]any{s.Address()}, args...)...)
}
