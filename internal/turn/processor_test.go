package turn

import (
	"context"
	"testing"

	"puzzlewire/internal/engine"
	"puzzlewire/internal/protocol"
)

// stubSim scripts Tick outcomes so the loop policy can be tested without
// a real engine.
type stubSim struct {
	pressed   []engine.Intent
	ticks     int
	setLevels []int
	level     int

	alwaysAgain bool
	outcomes    map[int]engine.StepOutcome // by 1-based tick number
	onTick      func(tick int)
}

func (s *stubSim) Press(in engine.Intent) { s.pressed = append(s.pressed, in) }

func (s *stubSim) Tick(ctx context.Context) (engine.StepOutcome, error) {
	s.ticks++
	if s.onTick != nil {
		s.onTick(s.ticks)
	}
	return s.outcomes[s.ticks], nil
}

func (s *stubSim) HasAgain() bool { return s.alwaysAgain }

func (s *stubSim) SetLevel(i int) error {
	s.setLevels = append(s.setLevels, i)
	return nil
}

func (s *stubSim) LevelIndex() int { return s.level }

func TestApply_StepBound(t *testing.T) {
	sim := &stubSim{alwaysAgain: true}
	p := NewProcessor()
	p.Bind(sim)

	res, err := p.Apply(context.Background(), protocol.IntentRight)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sim.ticks != MaxSteps {
		t.Fatalf("ticks = %d, want exactly %d", sim.ticks, MaxSteps)
	}
	// Exhausting the bound is not a failure.
	if res.Status != protocol.StatusPlaying {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestApply_SettlesWithoutAgain(t *testing.T) {
	sim := &stubSim{}
	p := NewProcessor()
	p.Bind(sim)

	if _, err := p.Apply(context.Background(), protocol.IntentUp); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sim.ticks != 1 {
		t.Fatalf("ticks = %d, want 1", sim.ticks)
	}
	if len(sim.pressed) != 1 || sim.pressed[0] != engine.IntentUp {
		t.Fatalf("pressed: %v", sim.pressed)
	}
}

func TestApply_LevelChangeStopsTicking(t *testing.T) {
	sim := &stubSim{
		alwaysAgain: true,
		outcomes:    map[int]engine.StepOutcome{3: {LevelChanged: true}},
	}
	p := NewProcessor()
	p.Bind(sim)

	res, err := p.Apply(context.Background(), protocol.IntentDown)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sim.ticks != 3 {
		t.Fatalf("ticks = %d, want 3 (stop on level change)", sim.ticks)
	}
	if res.Status != protocol.StatusLevelComplete {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Message != "Level complete!" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestApply_WinOverridesMessages(t *testing.T) {
	sim := &stubSim{
		alwaysAgain: true,
		outcomes:    map[int]engine.StepOutcome{2: {WonGame: true}},
	}
	p := NewProcessor()
	p.Bind(sim)
	cb := p.Callbacks()
	sim.onTick = func(int) { cb.OnMessage("chained message") }

	res, err := p.Apply(context.Background(), protocol.IntentRight)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sim.ticks != 2 {
		t.Fatalf("ticks = %d, want 2 (stop on win)", sim.ticks)
	}
	if res.Status != protocol.StatusGameComplete || res.Message != "You win!" {
		t.Fatalf("result: %+v", res)
	}
}

func TestApply_CollectsMessages(t *testing.T) {
	sim := &stubSim{}
	p := NewProcessor()
	p.Bind(sim)
	cb := p.Callbacks()
	sim.onTick = func(int) {
		cb.OnMessage("first")
		cb.OnMessage("second")
	}

	res, err := p.Apply(context.Background(), protocol.IntentLeft)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Message != "first\nsecond" {
		t.Fatalf("message = %q", res.Message)
	}

	// Messages do not leak into the next turn.
	sim.onTick = nil
	res, err = p.Apply(context.Background(), protocol.IntentLeft)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Message != "" {
		t.Fatalf("stale message %q", res.Message)
	}
}

func TestApply_RestartReloadsInsteadOfPressing(t *testing.T) {
	sim := &stubSim{level: 4}
	p := NewProcessor()
	p.Bind(sim)

	res, err := p.Apply(context.Background(), protocol.IntentRestart)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sim.ticks != 0 || len(sim.pressed) != 0 {
		t.Fatalf("restart must not press or tick: ticks=%d pressed=%v", sim.ticks, sim.pressed)
	}
	if len(sim.setLevels) != 1 || sim.setLevels[0] != 4 {
		t.Fatalf("restart should reload the current level: %v", sim.setLevels)
	}
	if res.Status != protocol.StatusPlaying {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestApply_UnknownIntentIsNoop(t *testing.T) {
	sim := &stubSim{alwaysAgain: true}
	p := NewProcessor()
	p.Bind(sim)

	res, err := p.Apply(context.Background(), "teleport")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sim.ticks != 0 || len(sim.pressed) != 0 {
		t.Fatalf("unknown intent must skip the step loop")
	}
	if res.Status != protocol.StatusPlaying {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestApply_GameCompleteIsSticky(t *testing.T) {
	sim := &stubSim{outcomes: map[int]engine.StepOutcome{1: {WonGame: true}}}
	p := NewProcessor()
	p.Bind(sim)

	if _, err := p.Apply(context.Background(), protocol.IntentRight); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ticksAfterWin := sim.ticks

	res, err := p.Apply(context.Background(), protocol.IntentLeft)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Status != protocol.StatusGameComplete {
		t.Fatalf("status = %q, want sticky game_complete", res.Status)
	}
	if sim.ticks != ticksAfterWin {
		t.Fatalf("won session should not tick again")
	}
	if p.Status() != protocol.StatusGameComplete {
		t.Fatalf("observation status = %q", p.Status())
	}
}
