package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session routing/state.
	ErrSessionNotFound = "E_SESSION_NOT_FOUND"
	ErrSessionLimit    = "E_SESSION_LIMIT"

	// Puzzle layer.
	ErrPuzzleNotFound = "E_PUZZLE_NOT_FOUND"
	ErrParseFailed    = "E_PARSE_FAILED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrSessionNotFound: {},
	ErrSessionLimit:    {},
	ErrPuzzleNotFound:  {},
	ErrParseFailed:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
