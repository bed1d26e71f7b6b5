package engine

import (
	"context"
	"fmt"
	"sort"
)

// Instance is one live simulation of a parsed puzzle. Instances are not
// safe for concurrent use; callers serialize access per instance.
type Instance struct {
	puzzle *Puzzle
	cb     Callbacks

	level   int // index into puzzle.Levels, messages included
	width   int
	height  int
	cells   [][][]*Kind // bottom-up stacks, background excluded
	pending Intent
	slides  []slide
	undo    []snapshot
	wonGame bool

	bits map[*Kind]uint64
}

type slide struct {
	x, y   int
	dx, dy int
}

type snapshot struct {
	cells  [][][]*Kind
	slides []slide
}

// NewInstance binds a puzzle to a callback set and loads level 0.
func NewInstance(p *Puzzle, cb Callbacks) (*Instance, error) {
	if len(p.Kinds) > 64 {
		return nil, fmt.Errorf("engine: too many objects (%d, max 64)", len(p.Kinds))
	}
	in := &Instance{puzzle: p, cb: cb, bits: map[*Kind]uint64{}}
	for i, k := range p.Kinds {
		in.bits[k] = 1 << uint(i)
	}
	if err := in.SetLevel(0); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Instance) Puzzle() *Puzzle { return in.puzzle }

// LevelIndex is the raw index into the puzzle's level entries.
func (in *Instance) LevelIndex() int { return in.level }

// LevelCount counts playable levels.
func (in *Instance) LevelCount() int { return in.puzzle.PlayableLevels() }

// DisplayLevel is the 1-based playable-level ordinal reported to clients.
// At an interstitial message it names the level just completed.
func (in *Instance) DisplayLevel() int {
	n := 0
	for i := 0; i <= in.level && i < len(in.puzzle.Levels); i++ {
		if !in.puzzle.Levels[i].IsMessage {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// WonGame reports whether the final playable level has been solved.
func (in *Instance) WonGame() bool { return in.wonGame }

// MessageText returns the interstitial message when the instance is in
// message state.
func (in *Instance) MessageText() (string, bool) {
	lvl := in.puzzle.Levels[in.level]
	if !lvl.IsMessage {
		return "", false
	}
	return lvl.Message, true
}

// SetLevel loads level entry i from its static definition, discarding all
// transient state including the undo history.
func (in *Instance) SetLevel(i int) error {
	if i < 0 || i >= len(in.puzzle.Levels) {
		return fmt.Errorf("engine: level %d out of range (0..%d)", i, len(in.puzzle.Levels)-1)
	}
	in.level = i
	in.pending = IntentNone
	in.slides = nil
	in.undo = nil

	lvl := in.puzzle.Levels[i]
	if lvl.IsMessage {
		in.cells = nil
		in.width, in.height = 0, 0
		if in.cb.OnMessage != nil {
			in.cb.OnMessage(lvl.Message)
		}
		return nil
	}

	in.width, in.height = lvl.Width, lvl.Height
	in.cells = make([][][]*Kind, lvl.Height)
	for y := range lvl.cells {
		in.cells[y] = make([][]*Kind, lvl.Width)
		for x, stack := range lvl.cells[y] {
			cp := make([]*Kind, 0, len(stack)+1)
			for _, k := range stack {
				if k == in.puzzle.background {
					continue // implicit, re-added on read
				}
				cp = append(cp, k)
			}
			sortByLayer(cp)
			in.cells[y][x] = cp
		}
	}
	in.spawnPlayers()

	if in.cb.OnLevelLoad != nil {
		in.cb.OnLevelLoad(i, in.width, in.height)
	}
	return nil
}

// spawnPlayers places the player kind on every spawn marker in the loaded
// grid. The marker stays in the cell underneath.
func (in *Instance) spawnPlayers() {
	var player *Kind
	for _, k := range in.puzzle.Kinds {
		if k.Player {
			player = k
			break
		}
	}
	if player == nil {
		return
	}
	for y := range in.cells {
		for x := range in.cells[y] {
			for _, k := range in.cells[y][x] {
				if k.Hidden && k.IsSpawn() {
					in.cells[y][x] = append(in.cells[y][x], player)
					break
				}
			}
		}
	}
}

// Press records one intent to be applied by the next Tick. A second press
// before the tick replaces the first.
func (in *Instance) Press(intent Intent) {
	in.pending = intent
}

// HasAgain reports whether the simulation has unresolved chained movement
// and wants another Tick without further input.
func (in *Instance) HasAgain() bool {
	return len(in.slides) > 0
}

// Tick applies the pending intent, or advances chained movement when no
// intent is pending. It reports game win and level changes.
func (in *Instance) Tick(ctx context.Context) (StepOutcome, error) {
	var out StepOutcome
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if in.wonGame {
		return StepOutcome{WonGame: true}, nil
	}

	intent := in.pending
	in.pending = IntentNone

	if _, msg := in.MessageText(); msg {
		if intent == IntentAction {
			return in.advanceLevel()
		}
		return out, nil
	}

	switch intent {
	case IntentUp, IntentDown, IntentLeft, IntentRight:
		dx, dy := delta(intent)
		snap := in.snapshot()
		if in.applyMove(dx, dy) {
			in.undo = append(in.undo, snap)
		}
	case IntentAction:
		// No action rules in this engine; the press settles immediately.
	case IntentUndo:
		if n := len(in.undo); n > 0 {
			in.restore(in.undo[n-1])
			in.undo = in.undo[:n-1]
		}
		return out, nil
	case IntentRestart:
		snap := in.snapshot()
		lvl := in.puzzle.Levels[in.level]
		in.reloadGrid(lvl)
		in.undo = append(in.undo, snap)
	case IntentNone:
		in.advanceSlides()
	}

	if in.levelWon() {
		return in.completeLevel()
	}
	return out, nil
}

func (in *Instance) advanceLevel() (StepOutcome, error) {
	next := in.level + 1
	if next >= len(in.puzzle.Levels) {
		return in.winGame()
	}
	if err := in.SetLevel(next); err != nil {
		return StepOutcome{}, err
	}
	if in.cb.OnLevelChange != nil {
		in.cb.OnLevelChange(next)
	}
	return StepOutcome{LevelChanged: true}, nil
}

// completeLevel advances past a solved level. Solving the last playable
// level wins the game; trailing messages are surfaced on the same step.
func (in *Instance) completeLevel() (StepOutcome, error) {
	for i := in.level + 1; i < len(in.puzzle.Levels); i++ {
		if !in.puzzle.Levels[i].IsMessage {
			return in.advanceLevel()
		}
	}
	for i := in.level + 1; i < len(in.puzzle.Levels); i++ {
		if in.cb.OnMessage != nil {
			in.cb.OnMessage(in.puzzle.Levels[i].Message)
		}
	}
	return in.winGame()
}

func (in *Instance) winGame() (StepOutcome, error) {
	in.wonGame = true
	in.slides = nil
	if in.cb.OnWin != nil {
		in.cb.OnWin()
	}
	return StepOutcome{WonGame: true}, nil
}

// reloadGrid is the engine-native restart: the grid resets but the undo
// history is kept so the restart itself can be undone.
func (in *Instance) reloadGrid(lvl Level) {
	in.slides = nil
	in.cells = make([][][]*Kind, lvl.Height)
	for y := range lvl.cells {
		in.cells[y] = make([][]*Kind, lvl.Width)
		for x, stack := range lvl.cells[y] {
			cp := make([]*Kind, 0, len(stack))
			for _, k := range stack {
				if k == in.puzzle.background {
					continue
				}
				cp = append(cp, k)
			}
			sortByLayer(cp)
			in.cells[y][x] = cp
		}
	}
	in.spawnPlayers()
}

func delta(intent Intent) (int, int) {
	switch intent {
	case IntentUp:
		return 0, -1
	case IntentDown:
		return 0, 1
	case IntentLeft:
		return -1, 0
	case IntentRight:
		return 1, 0
	}
	return 0, 0
}

type pos struct{ x, y int }

// applyMove moves every player one cell, pushing pushables one deep.
// Players nearest the destination edge move first so a column of players
// advances together.
func (in *Instance) applyMove(dx, dy int) bool {
	var players []pos
	for y := range in.cells {
		for x := range in.cells[y] {
			if in.containsTrait(x, y, func(k *Kind) bool { return k.Player }) {
				players = append(players, pos{x, y})
			}
		}
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].x*dx+players[i].y*dy > players[j].x*dx+players[j].y*dy
	})

	moved := false
	for _, p := range players {
		tx, ty := p.x+dx, p.y+dy
		if !in.inBounds(tx, ty) || in.containsTrait(tx, ty, func(k *Kind) bool { return k.Wall }) {
			continue
		}
		if push, ok := in.topPushable(tx, ty); ok {
			bx, by := tx+dx, ty+dy
			if !in.freeForPush(bx, by) {
				continue
			}
			in.removeKind(tx, ty, push)
			in.addKind(bx, by, push)
			if push.Sliding {
				in.slides = append(in.slides, slide{x: bx, y: by, dx: dx, dy: dy})
			}
		}
		if in.containsTrait(tx, ty, func(k *Kind) bool { return k.Player }) {
			continue
		}
		player := in.takePlayer(p.x, p.y)
		if player == nil {
			continue
		}
		in.addKind(tx, ty, player)
		moved = true
	}
	return moved
}

// advanceSlides moves each in-flight sliding object one cell, dropping it
// from the slide set once blocked.
func (in *Instance) advanceSlides() {
	var still []slide
	for _, s := range in.slides {
		nx, ny := s.x+s.dx, s.y+s.dy
		push, ok := in.topPushable(s.x, s.y)
		if !ok || !in.freeForPush(nx, ny) {
			continue
		}
		in.removeKind(s.x, s.y, push)
		in.addKind(nx, ny, push)
		if in.freeForPush(nx+s.dx, ny+s.dy) {
			still = append(still, slide{x: nx, y: ny, dx: s.dx, dy: s.dy})
		}
	}
	in.slides = still
}

func (in *Instance) inBounds(x, y int) bool {
	return y >= 0 && y < in.height && x >= 0 && x < in.width
}

func (in *Instance) freeForPush(x, y int) bool {
	if !in.inBounds(x, y) {
		return false
	}
	return !in.containsTrait(x, y, func(k *Kind) bool { return k.Wall || k.Pushable || k.Player })
}

func (in *Instance) containsTrait(x, y int, match func(*Kind) bool) bool {
	for _, k := range in.cells[y][x] {
		if match(k) {
			return true
		}
	}
	return false
}

func (in *Instance) topPushable(x, y int) (*Kind, bool) {
	stack := in.cells[y][x]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Pushable {
			return stack[i], true
		}
	}
	return nil, false
}

func (in *Instance) takePlayer(x, y int) *Kind {
	stack := in.cells[y][x]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Player {
			k := stack[i]
			in.cells[y][x] = append(stack[:i:i], stack[i+1:]...)
			return k
		}
	}
	return nil
}

func (in *Instance) removeKind(x, y int, kind *Kind) {
	stack := in.cells[y][x]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == kind {
			in.cells[y][x] = append(stack[:i:i], stack[i+1:]...)
			return
		}
	}
}

func (in *Instance) addKind(x, y int, kind *Kind) {
	stack := append(in.cells[y][x], kind)
	sortByLayer(stack)
	in.cells[y][x] = stack
}

func (in *Instance) snapshot() snapshot {
	cp := make([][][]*Kind, len(in.cells))
	for y := range in.cells {
		cp[y] = make([][]*Kind, len(in.cells[y]))
		for x := range in.cells[y] {
			s := make([]*Kind, len(in.cells[y][x]))
			copy(s, in.cells[y][x])
			cp[y][x] = s
		}
	}
	sl := make([]slide, len(in.slides))
	copy(sl, in.slides)
	return snapshot{cells: cp, slides: sl}
}

func (in *Instance) restore(s snapshot) {
	in.cells = s.cells
	in.slides = s.slides
}

func (in *Instance) levelWon() bool {
	if len(in.puzzle.Wins) == 0 {
		return false
	}
	for _, wc := range in.puzzle.Wins {
		if !in.winHolds(wc) {
			return false
		}
	}
	return true
}

func (in *Instance) winHolds(wc WinCondition) bool {
	matched := 0
	satisfied := 0
	for y := range in.cells {
		for x := range in.cells[y] {
			hasTarget := false
			hasOn := wc.On == nil
			for _, k := range in.cells[y][x] {
				if k == wc.Target {
					hasTarget = true
				}
				if wc.On != nil && k == wc.On {
					hasOn = true
				}
			}
			if hasTarget {
				matched++
				if hasOn {
					satisfied++
				}
			}
		}
	}
	switch wc.Quant {
	case QuantAll:
		return matched == satisfied
	case QuantSome:
		return satisfied > 0
	case QuantNo:
		return satisfied == 0
	}
	return false
}

// Cells returns the current grid as transient read-only views, stacks
// ordered topmost first with the implicit background at the bottom. In
// message state it fails with ErrMessageState.
func (in *Instance) Cells() ([][]Cell, error) {
	if _, msg := in.MessageText(); msg {
		return nil, ErrMessageState
	}
	rows := make([][]Cell, in.height)
	for y := 0; y < in.height; y++ {
		rows[y] = make([]Cell, in.width)
		for x := 0; x < in.width; x++ {
			src := in.cells[y][x]
			stack := make([]*Kind, 0, len(src)+1)
			for i := len(src) - 1; i >= 0; i-- {
				stack = append(stack, src[i])
			}
			stack = append(stack, in.puzzle.background)
			rows[y][x] = Cell{X: x, Y: y, Stack: stack}
		}
	}
	return rows, nil
}

// Satisfies is the fast condition matcher backing the render index: it
// checks a symbol's combined condition against a cell stack using the
// instance's precomputed kind masks. Cells holding kinds outside the
// registry fail with ErrUnknownKind; callers fall back to evaluating the
// symbol's members directly.
func (in *Instance) Satisfies(sym Symbol, stack []*Kind) (bool, error) {
	var cellMask uint64
	for _, k := range stack {
		bit, ok := in.bits[k]
		if !ok {
			return false, ErrUnknownKind
		}
		cellMask |= bit
	}
	var memberMask uint64
	for _, m := range sym.Members {
		bit, ok := in.bits[m]
		if !ok {
			return false, ErrUnknownKind
		}
		memberMask |= bit
	}
	if sym.Combinator == CombineAny {
		return cellMask&memberMask != 0, nil
	}
	return cellMask&memberMask == memberMask, nil
}

func sortByLayer(stack []*Kind) {
	sort.SliceStable(stack, func(i, j int) bool {
		return stack[i].Layer() < stack[j].Layer()
	})
}
