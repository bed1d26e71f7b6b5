// Package turn drives one simulation through a bounded press/tick/settle
// turn and classifies the outcome.
package turn

import (
	"context"
	"strings"

	"puzzlewire/internal/engine"
	"puzzlewire/internal/protocol"
)

// MaxSteps bounds the tick loop for a single intent. A simulation that
// reports chained actions indefinitely is cut off here and the turn
// returns whatever state it reached; exhausting the bound is not an error.
const MaxSteps = 50

const (
	winMessage           = "You win!"
	levelCompleteMessage = "Level complete!"
)

// Simulation is the slice of the engine a processor drives.
// *engine.Instance implements it.
type Simulation interface {
	Press(engine.Intent)
	Tick(ctx context.Context) (engine.StepOutcome, error)
	HasAgain() bool
	SetLevel(i int) error
	LevelIndex() int
}

// Result is one settled turn.
type Result struct {
	Status  string // protocol.Status*
	Message string
}

// Processor owns the turn state machine for one simulation. It collects
// the messages the engine emits mid-turn and keeps the game-complete
// status sticky until the session is reset. Not safe for concurrent use;
// the session serializes turns.
type Processor struct {
	sim  Simulation
	msgs []string
	won  bool
}

func NewProcessor() *Processor {
	return &Processor{}
}

// Callbacks returns the capability struct to hand the engine at instance
// construction, so mid-turn messages and the win signal land here.
func (p *Processor) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnMessage: func(text string) {
			if strings.TrimSpace(text) != "" {
				p.msgs = append(p.msgs, text)
			}
		},
		OnWin: func() { p.won = true },
	}
}

// Bind attaches the simulation. Messages emitted while loading level 0
// (an opening interstitial) stay queued for the first observation.
func (p *Processor) Bind(sim Simulation) { p.sim = sim }

// Won reports whether the processor has seen the game-complete signal.
func (p *Processor) Won() bool { return p.won }

// Status classifies the current resting state for read-only observation.
func (p *Processor) Status() string {
	if p.won {
		return protocol.StatusGameComplete
	}
	return protocol.StatusPlaying
}

// Apply drives one player intent to its next stable state.
//
// Restart reloads the current level from its static definition instead of
// pressing the engine's native restart, which discards the undo history
// and sidesteps the engine's crash-prone native path. Unknown intents are
// no-ops. All other intents are pressed and then ticked while the engine
// reports chained actions, up to MaxSteps.
func (p *Processor) Apply(ctx context.Context, intent string) (Result, error) {
	if p.won {
		return Result{Status: protocol.StatusGameComplete, Message: winMessage}, nil
	}

	if intent == protocol.IntentRestart {
		if err := p.sim.SetLevel(p.sim.LevelIndex()); err != nil {
			return Result{}, err
		}
		return Result{Status: protocol.StatusPlaying, Message: p.drain(nil)}, nil
	}

	in, ok := engineIntent(intent)
	if !ok {
		return Result{Status: p.Status(), Message: p.drain(nil)}, nil
	}

	p.sim.Press(in)
	levelChanged := false
	for steps := 0; steps < MaxSteps; steps++ {
		out, err := p.sim.Tick(ctx)
		if err != nil {
			return Result{}, err
		}
		if out.WonGame {
			p.won = true
			break
		}
		if out.LevelChanged {
			// Stop immediately: the new level's own chained animations
			// belong to the next turn.
			levelChanged = true
			break
		}
		if !p.sim.HasAgain() {
			break
		}
	}

	switch {
	case p.won:
		p.drain(nil)
		return Result{Status: protocol.StatusGameComplete, Message: winMessage}, nil
	case levelChanged:
		return Result{Status: protocol.StatusLevelComplete, Message: p.drain([]string{levelCompleteMessage})}, nil
	default:
		return Result{Status: protocol.StatusPlaying, Message: p.drain(nil)}, nil
	}
}

// drain joins and clears the collected messages, appending any extras.
func (p *Processor) drain(extra []string) string {
	msgs := append(p.msgs, extra...)
	p.msgs = nil
	return strings.Join(msgs, "\n")
}

func engineIntent(s string) (engine.Intent, bool) {
	switch s {
	case protocol.IntentUp:
		return engine.IntentUp, true
	case protocol.IntentDown:
		return engine.IntentDown, true
	case protocol.IntentLeft:
		return engine.IntentLeft, true
	case protocol.IntentRight:
		return engine.IntentRight, true
	case protocol.IntentAction:
		return engine.IntentAction, true
	case protocol.IntentUndo:
		return engine.IntentUndo, true
	}
	return engine.IntentNone, false
}
