// Package engine is a compact, deterministic grid-puzzle engine with a
// PuzzleScript-flavored source format. It owns parsing, level state, and
// movement; rendering and turn orchestration live above it and talk to it
// through Parse, NewInstance, and the Instance methods.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one object class. Kinds are interned per puzzle; all
// other layers reference them by pointer identity, never by copy.
type Kind struct {
	Name  string
	Glyph string // level glyph, exactly one character

	// Behavior traits, declared in the OBJECTS section.
	Wall     bool // blocks movement
	Player   bool // moved by directional input
	Pushable bool // pushed one cell by a player
	Sliding  bool // keeps sliding after a push until blocked
	Hidden   bool // placement-only glyph, excluded from the symbol table
}

// Layer controls stacking order inside a cell: higher layers draw in front.
func (k *Kind) Layer() int {
	switch {
	case k.Player || k.Pushable:
		return 3
	case k.Wall:
		return 2
	case k.Name == backgroundName:
		return 0
	default:
		return 1
	}
}

// IsSpawn reports whether the kind is a spawn marker. Spawn markers place a
// player at level load and are intentionally invisible afterwards.
func (k *Kind) IsSpawn() bool {
	return strings.Contains(strings.ToLower(k.Name), "spawn")
}

// Combinator says how a symbol's members combine against a cell.
type Combinator int

const (
	CombineAll Combinator = iota // cell holds every member
	CombineAny                   // cell holds at least one member
)

// Symbol is one declaratively-defined table entry mapping a glyph (or a
// word alias) to member kinds. Symbols are immutable after parse.
type Symbol struct {
	Glyph      string
	Members    []*Kind
	Combinator Combinator
}

// SingleMember reports whether the symbol denotes exactly one kind.
func (s Symbol) SingleMember() bool { return len(s.Members) == 1 }

// Intent is one discrete press accepted by an instance.
type Intent int

const (
	IntentNone Intent = iota
	IntentUp
	IntentDown
	IntentLeft
	IntentRight
	IntentAction
	IntentUndo
	IntentRestart
)

func (i Intent) String() string {
	switch i {
	case IntentUp:
		return "up"
	case IntentDown:
		return "down"
	case IntentLeft:
		return "left"
	case IntentRight:
		return "right"
	case IntentAction:
		return "action"
	case IntentUndo:
		return "undo"
	case IntentRestart:
		return "restart"
	default:
		return "none"
	}
}

// Quantifier for win conditions.
type Quantifier int

const (
	QuantAll Quantifier = iota
	QuantSome
	QuantNo
)

// WinCondition is one "all|some|no X on Y" clause. All clauses of a puzzle
// must hold simultaneously for a level to be won.
type WinCondition struct {
	Quant  Quantifier
	Target *Kind
	On     *Kind
}

// Level is one LEVELS entry: either a playable grid or an interstitial
// message shown until the player acknowledges it.
type Level struct {
	Message   string
	IsMessage bool

	Width  int
	Height int
	// cells[y][x] lists the kinds placed at parse time, bottom-up,
	// background excluded (it is implicit in every cell).
	cells [][][]*Kind
}

// Puzzle is the immutable result of Parse.
type Puzzle struct {
	Title  string
	Author string

	Kinds   []*Kind
	Symbols []Symbol // declaration order: objects first, then legend
	Wins    []WinCondition
	Levels  []Level

	background  *Kind
	kindsByName map[string]*Kind
}

// KindByName resolves a declared kind, case-insensitively.
func (p *Puzzle) KindByName(name string) (*Kind, bool) {
	k, ok := p.kindsByName[strings.ToLower(name)]
	return k, ok
}

// Background returns the implicit bottom-of-stack kind.
func (p *Puzzle) Background() *Kind { return p.background }

// PlayableLevels counts non-message levels.
func (p *Puzzle) PlayableLevels() int {
	n := 0
	for _, l := range p.Levels {
		if !l.IsMessage {
			n++
		}
	}
	return n
}

// Cell is a transient read-only view of one grid position. Stack is ordered
// topmost (visually frontmost) first.
type Cell struct {
	X     int
	Y     int
	Stack []*Kind
}

// StepOutcome reports what a single Tick observed.
type StepOutcome struct {
	WonGame      bool
	LevelChanged bool
}

// Callbacks is the capability struct an instance invokes as it runs. Nil
// fields are skipped.
type Callbacks struct {
	OnMessage     func(text string)
	OnWin         func()
	OnLevelLoad   func(index, width, height int)
	OnLevelChange func(index int)
}

// ErrMessageState is returned by Cells when the instance is showing an
// interstitial message instead of a grid.
var ErrMessageState = errors.New("engine: no grid in message state")

// ErrUnknownKind is returned by the fast condition matcher when a cell
// holds a kind outside the instance's registry. Callers are expected to
// fall back to evaluating the symbol's members directly.
var ErrUnknownKind = errors.New("engine: kind not in instance registry")

// ParseError reports malformed puzzle source with a 1-based line number.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: line %d: %s", e.Line, e.Msg)
}

func parseErrf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// NormalizeLineEndings rewrites CRLF and bare CR to LF. The parser is
// strict about line endings, so callers normalize submitted source first.
func NormalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
