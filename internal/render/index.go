// Package render resolves stacks of simulation entities into single
// displayable glyphs and renders whole boards for clients.
package render

import (
	"sort"
	"strings"

	"puzzlewire/internal/engine"
)

// BackgroundGlyph is drawn for empty cells and for intentionally
// invisible spawn markers.
const BackgroundGlyph = '.'

// Evaluator is the engine's fast condition matcher. It may fail on
// legitimate states; the resolver masks that by re-deriving the condition
// from the symbol's declared members.
type Evaluator interface {
	Satisfies(sym engine.Symbol, stack []*engine.Kind) (bool, error)
}

// Index is the per-session render index: the puzzle's symbol definitions
// filtered to single-character glyphs and ordered specific-before-broad,
// so a broad ANY symbol never masks an ALL or single-member symbol that
// targets the same kind.
type Index struct {
	defs []engine.Symbol
	eval Evaluator
}

// NewIndex derives a render index from a puzzle's symbol table. eval is
// optional; without it conditions are always evaluated from the declared
// members.
func NewIndex(symbols []engine.Symbol, eval Evaluator) *Index {
	defs := make([]engine.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if len([]rune(s.Glyph)) != 1 {
			continue // word aliases are reference-only
		}
		defs = append(defs, s)
	}
	sort.SliceStable(defs, func(i, j int) bool {
		return specificity(defs[i]) < specificity(defs[j])
	})
	return &Index{defs: defs, eval: eval}
}

func specificity(s engine.Symbol) int {
	if s.Combinator == engine.CombineAll || s.SingleMember() {
		return 0
	}
	return 1
}

// Legend maps each renderable glyph to a human-readable symbol name.
func (ix *Index) Legend() map[string]string {
	out := make(map[string]string, len(ix.defs))
	for _, d := range ix.defs {
		names := make([]string, len(d.Members))
		for i, m := range d.Members {
			names[i] = m.Name
		}
		joiner := " and "
		if d.Combinator == engine.CombineAny {
			joiner = " or "
		}
		out[d.Glyph] = strings.Join(names, joiner)
	}
	return out
}

// Resolve converts one cell's entity stack into exactly one glyph.
//
// The stack is scanned topmost first; the first definition that lists the
// scanned kind as a member and whose full condition holds against the
// whole stack wins. A cell that matches nothing renders as the background
// glyph when its topmost kind is a spawn marker, or as the upper-cased
// first letter of the topmost kind's name so unmapped objects are never
// silently dropped.
func (ix *Index) Resolve(cell engine.Cell) rune {
	if len(cell.Stack) == 0 {
		return BackgroundGlyph
	}
	for _, k := range cell.Stack {
		for _, def := range ix.defs {
			if !memberOf(def, k) {
				continue
			}
			if ix.satisfied(def, cell.Stack) {
				return []rune(def.Glyph)[0]
			}
		}
	}
	top := cell.Stack[0]
	if top.IsSpawn() {
		return BackgroundGlyph
	}
	return fallbackGlyph(top.Name)
}

// satisfied tries the engine's fast matcher first and falls back to pure
// set containment over the declared members when the fast path fails, so
// the visual result is identical either way.
func (ix *Index) satisfied(def engine.Symbol, stack []*engine.Kind) bool {
	if ix.eval != nil {
		ok, err := ix.eval.Satisfies(def, stack)
		if err == nil {
			return ok
		}
	}
	present := func(k *engine.Kind) bool {
		for _, s := range stack {
			if s == k {
				return true
			}
		}
		return false
	}
	if def.Combinator == engine.CombineAny {
		for _, m := range def.Members {
			if present(m) {
				return true
			}
		}
		return false
	}
	for _, m := range def.Members {
		if !present(m) {
			return false
		}
	}
	return true
}

func memberOf(def engine.Symbol, k *engine.Kind) bool {
	for _, m := range def.Members {
		if m == k {
			return true
		}
	}
	return false
}

func fallbackGlyph(name string) rune {
	for _, r := range name {
		return []rune(strings.ToUpper(string(r)))[0]
	}
	return BackgroundGlyph
}
