package device

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/casevm/casevm/machine"
)

// Side is a direction relative to the robot's facing.
type Side int

// Sides as numbered by the robot API.
const (
	SideDown Side = iota
	SideUp
	SideBack
	SideFront
	SideRight
	SideLeft
)

var sideNames = map[Side]string{
	SideDown:  "down",
	SideUp:    "up",
	SideBack:  "back",
	SideFront: "front",
	SideRight: "right",
	SideLeft:  "left",
}

func (s Side) String() string {
	if name, ok := sideNames[s]; ok {
		return name
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// MaxStackSize is the item count limit of one inventory slot.
const MaxStackSize = 64

// Stack is the content of one inventory slot. A zero Count is empty.
type Stack struct {
	Item      string
	Count     int
	Damage    int
	MaxDamage int
}

// Empty reports whether the slot holds nothing.
func (s Stack) Empty() bool { return s.Count <= 0 || s.Item == "" }

// Same reports whether two stacks can merge.
func (s Stack) Same(o Stack) bool {
	return !s.Empty() && !o.Empty() && s.Item == o.Item && s.Damage == o.Damage && s.MaxDamage == o.MaxDamage
}

// Body is the physical side of a robot: movement, world interaction,
// inventory and energy. Slots are 0-based.
type Body interface {
	Name() string
	Valid() bool

	Move(side Side) bool
	Turn(clockwise bool) bool
	TurnAround() bool

	Swing(side Side, slot int) bool
	Use(side Side) bool
	Place(side Side, slot int) bool
	Suck(side Side, slot int) int
	Drop(side Side, slot, count int) int
	Detect(side Side) (bool, string)
	Compare(side Side, slot int) bool

	InventorySize() int
	Stack(slot int) Stack
	SetStack(slot int, s Stack)

	Energy() int
	MaxEnergy() int
}

// Robot exposes a Body as the "robot" component.
type Robot struct {
	machine.Base
	body Body

	mu       sync.Mutex
	selected int
	sink     SignalSink
}

// NewRobot creates the component controlling body.
func NewRobot(address string, body Body) *Robot {
	if address == "" {
		address = uuid.NewString()
	}
	r := &Robot{body: body}
	r.Base = machine.NewBase(address, "robot", machine.NewMethodTable(
		machine.Method{Name: "move", Doc: "function([direction:number]):boolean -- Move in a direction (0=down, 1=up, 2=back, 3=forward, 4=right, 5=left).", Call: r.move},
		machine.Method{Name: "forward", Doc: "function():boolean -- Move forward.", Call: r.moveTo(SideFront)},
		machine.Method{Name: "back", Doc: "function():boolean -- Move back.", Call: r.moveTo(SideBack)},
		machine.Method{Name: "up", Doc: "function():boolean -- Move up.", Call: r.moveTo(SideUp)},
		machine.Method{Name: "down", Doc: "function():boolean -- Move down.", Call: r.moveTo(SideDown)},
		machine.Method{Name: "turnLeft", Doc: "function():boolean -- Turn left.", Call: r.turn(false)},
		machine.Method{Name: "turnRight", Doc: "function():boolean -- Turn right.", Call: r.turn(true)},
		machine.Method{Name: "turnAround", Doc: "function():boolean -- Turn around.", Call: func(machine.Args) ([]any, error) {
			return []any{r.body.TurnAround()}, nil
		}},
		machine.Method{Name: "swing", Doc: "function([side:number]):boolean -- Swing the selected tool.", Call: r.swing},
		machine.Method{Name: "use", Doc: "function([side:number]):boolean -- Use the selected item.", Call: r.use},
		machine.Method{Name: "place", Doc: "function([side:number]):boolean -- Place a block from the selected slot.", Call: r.place},
		machine.Method{Name: "suck", Doc: "function([side:number]):boolean -- Pick up items into the selected slot.", Call: r.suck},
		machine.Method{Name: "drop", Doc: "function([side:number[, count:number]]):boolean -- Drop items from the selected slot.", Call: r.drop},
		machine.Method{Name: "inventorySize", Doc: "function():number -- Get the number of inventory slots.", Call: func(machine.Args) ([]any, error) {
			return []any{r.body.InventorySize()}, nil
		}},
		machine.Method{Name: "select", Doc: "function([slot:number]):number -- Select an inventory slot. Returns the selected slot.", Call: r.selectSlot},
		machine.Method{Name: "count", Doc: "function([slot:number]):number -- Get the item count in a slot.", Call: r.count},
		machine.Method{Name: "space", Doc: "function([slot:number]):number -- Get the free space in a slot.", Call: r.space},
		machine.Method{Name: "transferTo", Doc: "function(slot:number[, count:number]):boolean -- Move items from the selected slot to another slot.", Call: r.transferTo},
		machine.Method{Name: "name", Doc: "function():string -- Get the name of the robot.", Call: func(machine.Args) ([]any, error) {
			return []any{r.body.Name()}, nil
		}},
		machine.Method{Name: "energy", Doc: "function():number -- Get the stored energy.", Call: func(machine.Args) ([]any, error) {
			return []any{r.body.Energy()}, nil
		}},
		machine.Method{Name: "maxEnergy", Doc: "function():number -- Get the energy capacity.", Call: func(machine.Args) ([]any, error) {
			return []any{r.body.MaxEnergy()}, nil
		}},
		machine.Method{Name: "durability", Doc: "function():number -- Get the durability of the selected tool.", Call: r.durability},
		machine.Method{Name: "detect", Doc: "function([side:number]):boolean,string -- Check what is in front of the robot.", Call: r.detect},
		machine.Method{Name: "compare", Doc: "function([side:number]):boolean -- Compare a block with the selected slot.", Call: r.compare},
		machine.Method{Name: "compareTo", Doc: "function(slot:number):boolean -- Compare the selected slot with another slot.", Call: r.compareTo},
	))
	return r
}

// Valid reports whether the body still exists.
func (r *Robot) Valid() bool { return r.body.Valid() }

// Body returns the controlled body.
func (r *Robot) Body() Body { return r.body }

// Attach routes inventory_changed signals to sink.
func (r *Robot) Attach(sink SignalSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Selected returns the selected slot, 0-based.
func (r *Robot) Selected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

func (r *Robot) move(args machine.Args) ([]any, error) {
	dir, err := args.OptInt(0, int(SideFront))
	if err != nil {
		return nil, err
	}
	switch Side(dir) {
	case SideDown, SideUp, SideBack, SideFront:
		return []any{r.body.Move(Side(dir))}, nil
	case SideRight:
		return []any{r.body.Turn(true)}, nil
	case SideLeft:
		return []any{r.body.Turn(false)}, nil
	default:
		return []any{false}, nil
	}
}

func (r *Robot) moveTo(side Side) func(machine.Args) ([]any, error) {
	return func(machine.Args) ([]any, error) {
		return []any{r.body.Move(side)}, nil
	}
}

func (r *Robot) turn(clockwise bool) func(machine.Args) ([]any, error) {
	return func(machine.Args) ([]any, error) {
		return []any{r.body.Turn(clockwise)}, nil
	}
}

// actionSide reads the optional side argument of a world action. Only the
// front, top and bottom of the robot can be acted on.
func actionSide(args machine.Args, i int) (Side, error) {
	n, err := args.OptInt(i, int(SideFront))
	if err != nil {
		return 0, err
	}
	switch side := Side(n); side {
	case SideFront, SideUp, SideDown:
		return side, nil
	default:
		return 0, machine.BadArgument(i+1, "invalid side")
	}
}

// tracked runs an inventory-mutating action and signals each slot whose
// content changed.
func (r *Robot) tracked(action func(slot int) bool) bool {
	before := r.snapshot()
	ok := action(r.Selected())
	r.notifyChanges(before)
	return ok
}

func (r *Robot) snapshot() []Stack {
	out := make([]Stack, r.body.InventorySize())
	for i := range out {
		out[i] = r.body.Stack(i)
	}
	return out
}

func (r *Robot) notifyChanges(before []Stack) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink == nil {
		return
	}
	for i, s := range before {
		if r.body.Stack(i) != s {
			sink.PushSignal(machine.SignalInventoryChanged, i+1)
		}
	}
}

func (r *Robot) swing(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	return []any{r.tracked(func(slot int) bool { return r.body.Swing(side, slot) })}, nil
}

func (r *Robot) use(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	return []any{r.body.Use(side)}, nil
}

func (r *Robot) place(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	return []any{r.tracked(func(slot int) bool { return r.body.Place(side, slot) })}, nil
}

func (r *Robot) suck(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	return []any{r.tracked(func(slot int) bool { return r.body.Suck(side, slot) > 0 })}, nil
}

func (r *Robot) drop(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	count, err := args.OptInt(1, MaxStackSize)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return []any{false}, nil
	}
	return []any{r.tracked(func(slot int) bool { return r.body.Drop(side, slot, count) > 0 })}, nil
}

// slotArg reads an optional 1-based slot argument, defaulting to the
// selected slot.
func (r *Robot) slotArg(args machine.Args, i int) (int, error) {
	if args.IsNil(i) {
		return r.Selected(), nil
	}
	n, err := args.CheckInt(i)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > r.body.InventorySize() {
		return 0, machine.BadArgument(i+1, "invalid slot")
	}
	return n - 1, nil
}

func (r *Robot) selectSlot(args machine.Args) ([]any, error) {
	slot, err := r.slotArg(args, 0)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.selected = slot
	r.mu.Unlock()
	return []any{slot + 1}, nil
}

func (r *Robot) count(args machine.Args) ([]any, error) {
	slot, err := r.slotArg(args, 0)
	if err != nil {
		return nil, err
	}
	s := r.body.Stack(slot)
	if s.Empty() {
		return []any{0}, nil
	}
	return []any{s.Count}, nil
}

func (r *Robot) space(args machine.Args) ([]any, error) {
	slot, err := r.slotArg(args, 0)
	if err != nil {
		return nil, err
	}
	s := r.body.Stack(slot)
	if s.Empty() {
		return []any{MaxStackSize}, nil
	}
	return []any{MaxStackSize - s.Count}, nil
}

func (r *Robot) transferTo(args machine.Args) ([]any, error) {
	n, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > r.body.InventorySize() {
		return nil, machine.BadArgument(1, "invalid slot")
	}
	amount, err := args.OptInt(1, MaxStackSize)
	if err != nil {
		return nil, err
	}
	to := n - 1
	moved := r.tracked(func(from int) bool {
		if from == to || amount <= 0 {
			return false
		}
		src, dst := r.body.Stack(from), r.body.Stack(to)
		if src.Empty() {
			return false
		}
		switch {
		case dst.Empty():
			k := min(amount, src.Count)
			dst = src
			dst.Count = k
			src.Count -= k
		case src.Same(dst):
			k := min(amount, src.Count, MaxStackSize-dst.Count)
			if k <= 0 {
				return false
			}
			dst.Count += k
			src.Count -= k
		default:
			if amount < src.Count {
				return false
			}
			src, dst = dst, src
		}
		if src.Count <= 0 {
			src = Stack{}
		}
		r.body.SetStack(from, src)
		r.body.SetStack(to, dst)
		return true
	})
	return []any{moved}, nil
}

func (r *Robot) durability(machine.Args) ([]any, error) {
	s := r.body.Stack(r.Selected())
	if s.Empty() || s.MaxDamage <= 0 {
		return []any{nil, "tool cannot be damaged"}, nil
	}
	return []any{float64(s.MaxDamage-s.Damage) / float64(s.MaxDamage)}, nil
}

func (r *Robot) detect(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	blocked, what := r.body.Detect(side)
	return []any{blocked, what}, nil
}

func (r *Robot) compare(args machine.Args) ([]any, error) {
	side, err := actionSide(args, 0)
	if err != nil {
		return nil, err
	}
	return []any{r.body.Compare(side, r.Selected())}, nil
}

func (r *Robot) compareTo(args machine.Args) ([]any, error) {
	n, err := args.CheckInt(0)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > r.body.InventorySize() {
		return nil, machine.BadArgument(1, "invalid slot")
	}
	a, b := r.body.Stack(r.Selected()), r.body.Stack(n-1)
	return []any{a.Item == b.Item && a.Empty() == b.Empty()}, nil
}
