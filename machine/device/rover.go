package device

import (
	"sync"
	"sync/atomic"
)

// Rover energy costs and defaults.
const (
	RoverMaxEnergy     = 50000
	RoverInventorySize = 16
	EnergyPerMove      = 50
	EnergyPerTurn      = 25
	EnergyPerUse       = 30
)

// Pos is a block position.
type Pos struct{ X, Y, Z int }

// Facing is a horizontal direction: 0 north (-Z), 1 east, 2 south, 3 west.
type Facing int

// Facings.
const (
	North Facing = iota
	East
	South
	West
)

var facingDelta = [4]Pos{North: {Z: -1}, East: {X: 1}, South: {Z: 1}, West: {X: -1}}

// World is the block grid a rover lives in.
type World struct {
	mu     sync.Mutex
	blocks map[Pos]string
	ground map[Pos][]Stack
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{blocks: make(map[Pos]string), ground: make(map[Pos][]Stack)}
}

// SetBlock places a block; an empty kind clears the position.
func (w *World) SetBlock(p Pos, kind string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if kind == "" {
		delete(w.blocks, p)
		return
	}
	w.blocks[p] = kind
}

// Block returns the block at p.
func (w *World) Block(p Pos) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kind, ok := w.blocks[p]
	return kind, ok
}

// DropItems adds a stack to the item pile at p.
func (w *World) DropItems(p Pos, s Stack) {
	if s.Empty() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ground[p] = append(w.ground[p], s)
}

// Items returns the item pile at p.
func (w *World) Items(p Pos) []Stack {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Stack(nil), w.ground[p]...)
}

func (w *World) takeItems(p Pos) (Stack, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pile := w.ground[p]
	if len(pile) == 0 {
		return Stack{}, false
	}
	s := pile[0]
	if len(pile) == 1 {
		delete(w.ground, p)
	} else {
		w.ground[p] = pile[1:]
	}
	return s, true
}

func (w *World) returnItems(p Pos, s Stack) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ground[p] = append([]Stack{s}, w.ground[p]...)
}

// Rover is an in-memory robot body moving through a World.
type Rover struct {
	name    string
	world   *World
	removed atomic.Bool

	mu     sync.Mutex
	pos    Pos
	facing Facing
	energy int
	slots  [RoverInventorySize]Stack
}

// NewRover places a fully charged rover at pos facing north.
func NewRover(name string, world *World, pos Pos) *Rover {
	return &Rover{name: name, world: world, pos: pos, energy: RoverMaxEnergy}
}

// Name implements Body.
func (r *Rover) Name() string { return r.name }

// Valid implements Body.
func (r *Rover) Valid() bool { return !r.removed.Load() }

// Remove takes the rover out of the world.
func (r *Rover) Remove() { r.removed.Store(true) }

// Position returns the current position and facing.
func (r *Rover) Position() (Pos, Facing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos, r.facing
}

// Charge adds energy up to capacity and returns the amount accepted.
func (r *Rover) Charge(amount int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	accepted := min(max(amount, 0), RoverMaxEnergy-r.energy)
	r.energy += accepted
	return accepted
}

// Energy implements Body.
func (r *Rover) Energy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.energy
}

// MaxEnergy implements Body.
func (r *Rover) MaxEnergy() int { return RoverMaxEnergy }

// spendLocked consumes cost energy if available.
func (r *Rover) spendLocked(cost int) bool {
	if r.energy < cost {
		return false
	}
	r.energy -= cost
	return true
}

// targetLocked returns the position adjacent on side.
func (r *Rover) targetLocked(side Side) Pos {
	p := r.pos
	switch side {
	case SideUp:
		p.Y++
	case SideDown:
		p.Y--
	case SideFront, SideBack, SideRight, SideLeft:
		f := r.facing
		switch side {
		case SideBack:
			f = (f + 2) % 4
		case SideRight:
			f = (f + 1) % 4
		case SideLeft:
			f = (f + 3) % 4
		}
		d := facingDelta[f]
		p.X += d.X
		p.Z += d.Z
	}
	return p
}

// Move implements Body. Moving into a block fails without cost.
func (r *Rover) Move(side Side) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.targetLocked(side)
	if _, blocked := r.world.Block(target); blocked {
		return false
	}
	if !r.spendLocked(EnergyPerMove) {
		return false
	}
	r.pos = target
	return true
}

// Turn implements Body.
func (r *Rover) Turn(clockwise bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.spendLocked(EnergyPerTurn) {
		return false
	}
	if clockwise {
		r.facing = (r.facing + 1) % 4
	} else {
		r.facing = (r.facing + 3) % 4
	}
	return true
}

// TurnAround implements Body.
func (r *Rover) TurnAround() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.spendLocked(2 * EnergyPerTurn) {
		return false
	}
	r.facing = (r.facing + 2) % 4
	return true
}

// Swing implements Body: it breaks the block on side and stores it.
func (r *Rover) Swing(side Side, slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.targetLocked(side)
	kind, ok := r.world.Block(target)
	if !ok || !r.spendLocked(EnergyPerUse) {
		return false
	}
	r.world.SetBlock(target, "")
	if rest := r.storeLocked(Stack{Item: kind, Count: 1}, slot); !rest.Empty() {
		r.world.DropItems(target, rest)
	}
	if tool := &r.slots[slot]; tool.MaxDamage > 0 {
		tool.Damage++
		if tool.Damage >= tool.MaxDamage {
			*tool = Stack{}
		}
	}
	return true
}

// Use implements Body.
func (r *Rover) Use(side Side) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spendLocked(EnergyPerUse)
}

// Place implements Body.
func (r *Rover) Place(side Side, slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[slot]
	if s.Empty() || s.MaxDamage > 0 {
		return false
	}
	target := r.targetLocked(side)
	if _, blocked := r.world.Block(target); blocked {
		return false
	}
	if !r.spendLocked(EnergyPerUse) {
		return false
	}
	r.world.SetBlock(target, s.Item)
	s.Count--
	if s.Count == 0 {
		s = Stack{}
	}
	r.slots[slot] = s
	return true
}

// Suck implements Body: it picks up the first item stack on side.
func (r *Rover) Suck(side Side, slot int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.targetLocked(side)
	s, ok := r.world.takeItems(target)
	if !ok {
		return 0
	}
	rest := r.storeLocked(s, slot)
	if !rest.Empty() {
		r.world.returnItems(target, rest)
	}
	return s.Count - rest.Count
}

// Drop implements Body.
func (r *Rover) Drop(side Side, slot, count int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[slot]
	if s.Empty() {
		return 0
	}
	n := min(count, s.Count)
	dropped := s
	dropped.Count = n
	r.world.DropItems(r.targetLocked(side), dropped)
	s.Count -= n
	if s.Count == 0 {
		s = Stack{}
	}
	r.slots[slot] = s
	return n
}

// Detect implements Body.
func (r *Rover) Detect(side Side) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.targetLocked(side)
	if _, ok := r.world.Block(target); ok {
		return true, "solid"
	}
	if len(r.world.Items(target)) > 0 {
		return false, "entity"
	}
	return false, "air"
}

// Compare implements Body.
func (r *Rover) Compare(side Side, slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, ok := r.world.Block(r.targetLocked(side))
	return ok && !r.slots[slot].Empty() && r.slots[slot].Item == kind
}

// InventorySize implements Body.
func (r *Rover) InventorySize() int { return RoverInventorySize }

// Stack implements Body.
func (r *Rover) Stack(slot int) Stack {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot < 0 || slot >= RoverInventorySize {
		return Stack{}
	}
	return r.slots[slot]
}

// SetStack implements Body.
func (r *Rover) SetStack(slot int, s Stack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot < 0 || slot >= RoverInventorySize {
		return
	}
	if s.Empty() {
		s = Stack{}
	}
	r.slots[slot] = s
}

// storeLocked inserts s preferring the selected slot, then merging into
// matching stacks, then the first empty slot. It returns what did not fit.
func (r *Rover) storeLocked(s Stack, selected int) Stack {
	order := make([]int, 0, RoverInventorySize)
	order = append(order, selected)
	for i := range r.slots {
		if i != selected {
			order = append(order, i)
		}
	}
	for _, i := range order {
		if s.Count == 0 {
			break
		}
		if dst := &r.slots[i]; dst.Same(s) {
			k := min(s.Count, MaxStackSize-dst.Count)
			dst.Count += k
			s.Count -= k
		}
	}
	for _, i := range order {
		if s.Count == 0 {
			break
		}
		if r.slots[i].Empty() {
			k := min(s.Count, MaxStackSize)
			r.slots[i] = s
			r.slots[i].Count = k
			s.Count -= k
		}
	}
	return s
}
