package protocol

import "strings"

// Canonical player intents. Wire actions are aliased (wasd keys, shorthand
// letters) and normalize to one of these.
const (
	IntentUp      = "up"
	IntentDown    = "down"
	IntentLeft    = "left"
	IntentRight   = "right"
	IntentAction  = "action"
	IntentUndo    = "undo"
	IntentRestart = "restart"
)

var actionAliases = map[string]string{
	"up":     IntentUp,
	"w":      IntentUp,
	"down":   IntentDown,
	"s":      IntentDown,
	"left":   IntentLeft,
	"a":      IntentLeft,
	"right":  IntentRight,
	"d":      IntentRight,
	"x":      IntentAction,
	"action": IntentAction,
	"space":  IntentAction,
	"z":      IntentUndo,
	"undo":   IntentUndo,
	"r":      IntentRestart,
	"reset":  IntentRestart,
}

// ParseAction normalizes a wire action string to a canonical intent.
// Unknown actions return ok=false; callers treat them as no-ops rather
// than errors.
func ParseAction(s string) (intent string, ok bool) {
	intent, ok = actionAliases[strings.ToLower(strings.TrimSpace(s))]
	return intent, ok
}
