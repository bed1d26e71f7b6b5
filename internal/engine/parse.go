package engine

import (
	"strings"
)

const backgroundName = "Background"

type section int

const (
	secHeader section = iota
	secObjects
	secLegend
	secWin
	secLevels
)

// Parse reads puzzle source and returns the immutable static puzzle data.
// Source must already be LF-normalized; a stray CR is a parse error.
func Parse(source string) (*Puzzle, error) {
	p := &Puzzle{kindsByName: map[string]*Kind{}}

	// Placement map: glyph -> kinds placed by that glyph in a level grid.
	// Includes hidden kinds and ALL-combinator legend entries; ANY entries
	// are render/reference-only and cannot be placed.
	placement := map[string][]*Kind{}

	cur := secHeader
	var levelLines []string
	var levelStart int

	flushLevel := func() error {
		if len(levelLines) == 0 {
			return nil
		}
		lvl, err := buildLevel(p, placement, levelLines, levelStart)
		if err != nil {
			return err
		}
		p.Levels = append(p.Levels, lvl)
		levelLines = nil
		return nil
	}

	lines := strings.Split(source, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		if strings.ContainsRune(raw, '\r') {
			return nil, parseErrf(lineNo, "carriage return in source; normalize line endings first")
		}

		// Level grids are whitespace-significant; everything else trims.
		line := strings.TrimSpace(raw)
		if strings.Trim(line, "=") == "" && line != "" {
			continue // section underline
		}
		if sec, ok := sectionFor(line); ok {
			if cur == secLevels {
				if err := flushLevel(); err != nil {
					return nil, err
				}
			}
			cur = sec
			if sec == secLevels {
				// The background kind must exist before grids reference
				// its glyph; declare the default if OBJECTS did not.
				ensureBackground(p, placement)
			}
			continue
		}

		switch cur {
		case secHeader:
			if line == "" {
				continue
			}
			switch {
			case hasKeyword(line, "title"):
				p.Title = strings.TrimSpace(line[len("title"):])
			case hasKeyword(line, "author"):
				p.Author = strings.TrimSpace(line[len("author"):])
			default:
				return nil, parseErrf(lineNo, "unexpected header line %q", line)
			}

		case secObjects:
			if line == "" {
				continue
			}
			if err := parseObject(p, placement, line, lineNo); err != nil {
				return nil, err
			}

		case secLegend:
			if line == "" {
				continue
			}
			if err := parseLegend(p, placement, line, lineNo); err != nil {
				return nil, err
			}

		case secWin:
			if line == "" {
				continue
			}
			wc, err := parseWin(p, line, lineNo)
			if err != nil {
				return nil, err
			}
			p.Wins = append(p.Wins, wc)

		case secLevels:
			switch {
			case line == "":
				if err := flushLevel(); err != nil {
					return nil, err
				}
			case hasKeyword(line, "message"):
				if err := flushLevel(); err != nil {
					return nil, err
				}
				p.Levels = append(p.Levels, Level{
					IsMessage: true,
					Message:   strings.TrimSpace(line[len("message"):]),
				})
			default:
				if len(levelLines) == 0 {
					levelStart = lineNo
				}
				levelLines = append(levelLines, strings.TrimRight(raw, " \t"))
			}
		}
	}
	if err := flushLevel(); err != nil {
		return nil, err
	}

	if err := finishPuzzle(p, placement); err != nil {
		return nil, err
	}
	return p, nil
}

func sectionFor(line string) (section, bool) {
	switch strings.ToUpper(line) {
	case "OBJECTS":
		return secObjects, true
	case "LEGEND":
		return secLegend, true
	case "WIN", "WINCONDITIONS":
		return secWin, true
	case "LEVELS":
		return secLevels, true
	}
	return 0, false
}

func hasKeyword(line, kw string) bool {
	if len(line) <= len(kw) {
		return false
	}
	return strings.EqualFold(line[:len(kw)], kw) && (line[len(kw)] == ' ' || line[len(kw)] == '\t')
}

// parseObject handles "Name = G trait..." declarations.
func parseObject(p *Puzzle, placement map[string][]*Kind, line string, lineNo int) error {
	name, rest, ok := strings.Cut(line, "=")
	if !ok {
		return parseErrf(lineNo, "object declaration needs '=': %q", line)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return parseErrf(lineNo, "bad object name %q", name)
	}
	if _, dup := p.kindsByName[strings.ToLower(name)]; dup {
		return parseErrf(lineNo, "duplicate object %q", name)
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return parseErrf(lineNo, "object %q needs a glyph", name)
	}
	glyph := fields[0]
	if len([]rune(glyph)) != 1 {
		return parseErrf(lineNo, "object %q glyph must be one character, got %q", name, glyph)
	}
	if _, taken := placement[glyph]; taken {
		return parseErrf(lineNo, "glyph %q already in use", glyph)
	}

	k := &Kind{Name: name, Glyph: glyph}
	for _, trait := range fields[1:] {
		switch strings.ToLower(trait) {
		case "wall":
			k.Wall = true
		case "player":
			k.Player = true
		case "push":
			k.Pushable = true
		case "slide":
			k.Pushable = true
			k.Sliding = true
		case "hidden":
			k.Hidden = true
		default:
			return parseErrf(lineNo, "object %q: unknown trait %q", name, trait)
		}
	}

	p.Kinds = append(p.Kinds, k)
	p.kindsByName[strings.ToLower(name)] = k
	placement[glyph] = []*Kind{k}
	if !k.Hidden {
		p.Symbols = append(p.Symbols, Symbol{Glyph: glyph, Members: []*Kind{k}, Combinator: CombineAll})
	}
	return nil
}

// parseLegend handles aggregate symbols: "G = A and B" (ALL) or
// "G = A or B" (ANY). Word-named aliases are allowed; only ALL entries
// with single-character glyphs are placeable in level grids.
func parseLegend(p *Puzzle, placement map[string][]*Kind, line string, lineNo int) error {
	glyph, rest, ok := strings.Cut(line, "=")
	if !ok {
		return parseErrf(lineNo, "legend entry needs '=': %q", line)
	}
	glyph = strings.TrimSpace(glyph)
	if glyph == "" || strings.ContainsAny(glyph, " \t") {
		return parseErrf(lineNo, "bad legend glyph %q", glyph)
	}
	if _, taken := placement[glyph]; taken {
		return parseErrf(lineNo, "glyph %q already in use", glyph)
	}
	for _, s := range p.Symbols {
		if s.Glyph == glyph {
			return parseErrf(lineNo, "glyph %q already in use", glyph)
		}
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return parseErrf(lineNo, "legend %q has no members", glyph)
	}

	comb := CombineAll
	sawJoiner := false
	var members []*Kind
	expectName := true
	for _, f := range fields {
		low := strings.ToLower(f)
		if low == "and" || low == "or" {
			if expectName {
				return parseErrf(lineNo, "legend %q: misplaced %q", glyph, f)
			}
			c := CombineAll
			if low == "or" {
				c = CombineAny
			}
			if sawJoiner && c != comb {
				return parseErrf(lineNo, "legend %q mixes 'and' with 'or'", glyph)
			}
			comb = c
			sawJoiner = true
			expectName = true
			continue
		}
		k, ok := p.kindsByName[low]
		if !ok {
			return parseErrf(lineNo, "legend %q references unknown object %q", glyph, f)
		}
		members = append(members, k)
		expectName = false
	}
	if expectName || len(members) == 0 {
		return parseErrf(lineNo, "legend %q is incomplete", glyph)
	}

	p.Symbols = append(p.Symbols, Symbol{Glyph: glyph, Members: members, Combinator: comb})
	if comb == CombineAll && len([]rune(glyph)) == 1 {
		placement[glyph] = members
	}
	return nil
}

// parseWin handles "all|some|no Name [on Name]".
func parseWin(p *Puzzle, line string, lineNo int) (WinCondition, error) {
	fields := strings.Fields(line)
	var wc WinCondition
	if len(fields) < 2 {
		return wc, parseErrf(lineNo, "bad win condition %q", line)
	}
	switch strings.ToLower(fields[0]) {
	case "all":
		wc.Quant = QuantAll
	case "some":
		wc.Quant = QuantSome
	case "no":
		wc.Quant = QuantNo
	default:
		return wc, parseErrf(lineNo, "win condition must start with all/some/no: %q", line)
	}
	target, ok := p.kindsByName[strings.ToLower(fields[1])]
	if !ok {
		return wc, parseErrf(lineNo, "win condition references unknown object %q", fields[1])
	}
	wc.Target = target
	switch len(fields) {
	case 2:
		if wc.Quant == QuantAll {
			return wc, parseErrf(lineNo, "'all %s' needs an 'on' clause", fields[1])
		}
	case 4:
		if !strings.EqualFold(fields[2], "on") {
			return wc, parseErrf(lineNo, "expected 'on' in win condition %q", line)
		}
		on, ok := p.kindsByName[strings.ToLower(fields[3])]
		if !ok {
			return wc, parseErrf(lineNo, "win condition references unknown object %q", fields[3])
		}
		wc.On = on
	default:
		return wc, parseErrf(lineNo, "bad win condition %q", line)
	}
	return wc, nil
}

func buildLevel(p *Puzzle, placement map[string][]*Kind, rows []string, startLine int) (Level, error) {
	width := 0
	for _, r := range rows {
		if n := len([]rune(r)); n > width {
			width = n
		}
	}
	lvl := Level{Width: width, Height: len(rows)}
	lvl.cells = make([][][]*Kind, len(rows))
	for y, row := range rows {
		lvl.cells[y] = make([][]*Kind, width)
		for x, g := range []rune(row) {
			glyph := string(g)
			if glyph == " " {
				continue
			}
			kinds, ok := placement[glyph]
			if !ok {
				return lvl, parseErrf(startLine+y, "level uses unknown or unplaceable glyph %q", glyph)
			}
			stack := make([]*Kind, len(kinds))
			copy(stack, kinds)
			lvl.cells[y][x] = stack
		}
	}
	return lvl, nil
}

func ensureBackground(p *Puzzle, placement map[string][]*Kind) {
	if bg, ok := p.kindsByName[strings.ToLower(backgroundName)]; ok {
		p.background = bg
		return
	}
	bg := &Kind{Name: backgroundName, Glyph: "."}
	p.Kinds = append(p.Kinds, bg)
	p.kindsByName[strings.ToLower(backgroundName)] = bg
	if _, taken := placement[bg.Glyph]; !taken {
		placement[bg.Glyph] = []*Kind{bg}
		p.Symbols = append(p.Symbols, Symbol{Glyph: bg.Glyph, Members: []*Kind{bg}, Combinator: CombineAll})
	}
	p.background = bg
}

func finishPuzzle(p *Puzzle, placement map[string][]*Kind) error {
	ensureBackground(p, placement)

	if len(p.Levels) == 0 {
		return parseErrf(1, "puzzle has no levels")
	}
	if p.PlayableLevels() == 0 {
		return parseErrf(1, "puzzle has no playable levels")
	}

	hasPlayer := false
	for _, k := range p.Kinds {
		if k.Player {
			hasPlayer = true
		}
	}
	spawnUsed := false
	for _, k := range p.Kinds {
		if k.Hidden && k.IsSpawn() {
			spawnUsed = true
		}
	}
	if spawnUsed && !hasPlayer {
		return parseErrf(1, "spawn marker declared but no object has the player trait")
	}
	return nil
}
