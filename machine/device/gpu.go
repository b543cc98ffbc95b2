package device

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/casevm/casevm/machine"
)

// basePalette is the 16 colour palette every GPU starts with.
var basePalette = [16]int{
	0x000000, 0x000080, 0x008000, 0x008080, 0x800000, 0x800080, 0x808000, 0xC0C0C0,
	0x808080, 0x0000FF, 0x00FF00, 0x00FFFF, 0xFF0000, 0xFF00FF, 0xFFFF00, 0xFFFFFF,
}

// validDepths lists the colour depths a GPU can switch between.
var validDepths = []int{1, 4, 8, 24}

// ScreenResolver finds screens by address.
type ScreenResolver interface {
	Screen(address string) (*Screen, bool)
}

// RegistryScreens resolves screens through a component registry.
type RegistryScreens struct {
	Registry *machine.Registry
}

// Screen implements ScreenResolver.
func (r RegistryScreens) Screen(address string) (*Screen, bool) {
	c, ok := r.Registry.Get(address)
	if !ok {
		return nil, false
	}
	s, ok := c.(*Screen)
	if !ok || !s.Valid() {
		return nil, false
	}
	return s, true
}

// GPU draws on a bound screen using 1-based coordinates.
type GPU struct {
	machine.Base
	tier    Tier
	screens ScreenResolver

	mu      sync.Mutex
	screen  string
	fg, bg  int
	depth   int
	palette [16]int
}

// NewGPU creates a GPU of the given tier that looks up screens via screens.
func NewGPU(address string, tier int, screens ScreenResolver) *GPU {
	if address == "" {
		address = uuid.NewString()
	}
	t := TierOf(tier)
	g := &GPU{
		tier:    t,
		screens: screens,
		fg:      DefaultForeground,
		bg:      DefaultBackground,
		depth:   t.Depth,
		palette: basePalette,
	}
	g.Base = machine.NewBase(address, "gpu", machine.NewMethodTable(
		machine.Method{Name: "bind", Doc: "function(address:string):boolean -- Bind the GPU to the screen with the specified address.", Call: g.bind},
		machine.Method{Name: "getScreen", Doc: "function():string -- Get the address of the screen the GPU is currently bound to.", Call: g.getScreen},
		machine.Method{Name: "getBackground", Doc: "function():number -- Get the current background color.", Call: g.getBackground},
		machine.Method{Name: "setBackground", Doc: "function(value:number[, palette:boolean]):number -- Set the background color. Returns the old value.", Call: g.setBackground},
		machine.Method{Name: "getForeground", Doc: "function():number -- Get the current foreground color.", Call: g.getForeground},
		machine.Method{Name: "setForeground", Doc: "function(value:number[, palette:boolean]):number -- Set the foreground color. Returns the old value.", Call: g.setForeground},
		machine.Method{Name: "getResolution", Doc: "function():number,number -- Get the current screen resolution.", Call: g.getResolution},
		machine.Method{Name: "setResolution", Doc: "function(width:number, height:number):boolean -- Set the screen resolution. Returns true if the resolution changed.", Call: g.setResolution},
		machine.Method{Name: "maxResolution", Doc: "function():number,number -- Get the maximum screen resolution.", Call: g.maxResolution},
		machine.Method{Name: "get", Doc: "function(x:number, y:number):string,number,number -- Get the character and colors at the specified position.", Call: g.get},
		machine.Method{Name: "set", Doc: "function(x:number, y:number, value:string[, vertical:boolean]):boolean -- Plot a string value to the screen at the specified position.", Call: g.set},
		machine.Method{Name: "copy", Doc: "function(x:number, y:number, width:number, height:number, tx:number, ty:number):boolean -- Copy a portion of the screen to the target position.", Call: g.copy},
		machine.Method{Name: "fill", Doc: "function(x:number, y:number, width:number, height:number, char:string):boolean -- Fill a portion of the screen with the specified character.", Call: g.fill},
		machine.Method{Name: "getDepth", Doc: "function():number -- Get the current color depth.", Call: g.getDepth},
		machine.Method{Name: "setDepth", Doc: "function(depth:number):number -- Set the color depth. Returns the previous value.", Call: g.setDepth},
		machine.Method{Name: "maxDepth", Doc: "function():number -- Get the maximum supported color depth.", Call: constant(t.Depth)},
		machine.Method{Name: "getPaletteColor", Doc: "function(index:number):number -- Get the palette color at the specified index.", Call: g.getPaletteColor},
		machine.Method{Name: "setPaletteColor", Doc: "function(index:number, value:number):number -- Set the palette color at the specified index. Returns the previous value.", Call: g.setPaletteColor},
	))
	return g
}

// Valid reports whether the GPU is usable.
func (g *GPU) Valid() bool { return true }

// Bound returns the bound screen, if it still resolves.
func (g *GPU) Bound() (*Screen, bool) {
	g.mu.Lock()
	address := g.screen
	g.mu.Unlock()
	if address == "" {
		return nil, false
	}
	return g.screens.Screen(address)
}

func (g *GPU) bind(args machine.Args) ([]any, error) {
	address, err := args.CheckString(0)
	if err != nil {
		return nil, err
	}
	s, ok := g.screens.Screen(address)
	if !ok {
		return []any{false, "invalid address"}, nil
	}
	g.mu.Lock()
	g.screen = address
	g.mu.Unlock()
	s.bind(g.Address())
	return []any{true}, nil
}

func (g *GPU) getScreen(machine.Args) ([]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.screen == "" {
		return []any{nil}, nil
	}
	return []any{g.screen}, nil
}

func (g *GPU) getBackground(machine.Args) ([]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return []any{g.bg}, nil
}

func (g *GPU) getForeground(machine.Args) ([]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return []any{g.fg}, nil
}

func (g *GPU) setBackground(args machine.Args) ([]any, error) {
	return g.setColor(args, &g.bg)
}

func (g *GPU) setForeground(args machine.Args) ([]any, error) {
	return g.setColor(args, &g.fg)
}

func (g *GPU) setColor(args machine.Args, target *int) ([]any, error) {
	value, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	palette, err := args.OptBool(1, false)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if palette {
		if value < 0 || value >= len(g.palette) {
			return nil, badPaletteIndex(1)
		}
		value = g.palette[value]
	} else if value < 0 || value > 0xFFFFFF {
		return nil, machine.BadArgument(1, "color out of range")
	}
	old := *target
	*target = value
	return []any{old}, nil
}

func (g *GPU) getResolution(machine.Args) ([]any, error) {
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	w, h := s.Resolution()
	return []any{w, h}, nil
}

func (g *GPU) setResolution(args machine.Args) ([]any, error) {
	w, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	h, err := args.CheckInt(1)
	if err != nil {
		return nil, err
	}
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	maxW, maxH := g.maxSize(s)
	if w < 1 || h < 1 || w > maxW || h > maxH {
		return nil, machine.BadArgument(1, "unsupported resolution")
	}
	cw, ch := s.Resolution()
	if cw == w && ch == h {
		return []any{false}, nil
	}
	return []any{s.SetResolution(w, h)}, nil
}

func (g *GPU) maxResolution(machine.Args) ([]any, error) {
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	w, h := g.maxSize(s)
	return []any{w, h}, nil
}

// maxSize is the resolution limit shared by the GPU and its screen.
func (g *GPU) maxSize(s *Screen) (int, int) {
	st := s.Tier()
	return min(g.tier.MaxWidth, st.MaxWidth), min(g.tier.MaxHeight, st.MaxHeight)
}

func (g *GPU) get(args machine.Args) ([]any, error) {
	x, y, err := coords(args, 0)
	if err != nil {
		return nil, err
	}
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	c, ok := s.Get(x-1, y-1)
	if !ok {
		return nil, machine.BadArgument(1, "index out of bounds")
	}
	return []any{string(c.Char), c.Foreground, c.Background}, nil
}

func (g *GPU) set(args machine.Args) ([]any, error) {
	x, y, err := coords(args, 0)
	if err != nil {
		return nil, err
	}
	text, err := args.CheckString(2)
	if err != nil {
		return nil, err
	}
	vertical, err := args.OptBool(3, false)
	if err != nil {
		return nil, err
	}
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	fg, bg := g.colors()
	s.Set(x-1, y-1, text, fg, bg, vertical)
	return []any{true}, nil
}

func (g *GPU) copy(args machine.Args) ([]any, error) {
	x, y, err := coords(args, 0)
	if err != nil {
		return nil, err
	}
	w, h, err := coords(args, 2)
	if err != nil {
		return nil, err
	}
	tx, ty, err := coords(args, 4)
	if err != nil {
		return nil, err
	}
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return []any{false}, nil
	}
	s.Copy(x-1, y-1, w, h, x-1+tx, y-1+ty)
	return []any{true}, nil
}

func (g *GPU) fill(args machine.Args) ([]any, error) {
	x, y, err := coords(args, 0)
	if err != nil {
		return nil, err
	}
	w, h, err := coords(args, 2)
	if err != nil {
		return nil, err
	}
	char, err := args.CheckString(4)
	if err != nil {
		return nil, err
	}
	runes := []rune(char)
	if len(runes) != 1 {
		return nil, machine.BadArgument(5, "invalid fill value")
	}
	s, err := g.boundScreen()
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return []any{false}, nil
	}
	fg, bg := g.colors()
	s.Fill(x-1, y-1, w, h, runes[0], fg, bg)
	return []any{true}, nil
}

func (g *GPU) getDepth(machine.Args) ([]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return []any{g.depth}, nil
}

func (g *GPU) setDepth(args machine.Args) ([]any, error) {
	depth, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(validDepths, depth) || depth > g.tier.Depth {
		return nil, machine.BadArgument(1, "unsupported depth")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.depth
	g.depth = depth
	return []any{old}, nil
}

func (g *GPU) getPaletteColor(args machine.Args) ([]any, error) {
	i, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.palette) {
		return nil, badPaletteIndex(1)
	}
	return []any{g.palette[i]}, nil
}

func (g *GPU) setPaletteColor(args machine.Args) ([]any, error) {
	i, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	value, err := args.CheckInt(1)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.palette) {
		return nil, badPaletteIndex(1)
	}
	old := g.palette[i]
	g.palette[i] = value & 0xFFFFFF
	return []any{old}, nil
}

func (g *GPU) colors() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fg, g.bg
}

func (g *GPU) boundScreen() (*Screen, error) {
	s, ok := g.Bound()
	if !ok {
		return nil, machine.MethodFailed("no screen")
	}
	return s, nil
}

// coords reads two consecutive integer arguments starting at i.
func coords(args machine.Args, i int) (int, int, error) {
	a, err := args.CheckInt(i)
	if err != nil {
		return 0, 0, err
	}
	b, err := args.CheckInt(i + 1)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// badPaletteIndex reports an out-of-range palette index.
func badPaletteIndex(n int) error {
	return machine.BadArgument(n, "invalid palette index")
}
