package protocol

import "encoding/json"

const Version = "1.0"

// Websocket message types.
const (
	TypeSub = "SUB"
	TypeObs = "OBS"
	TypeErr = "ERR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// CellJSON is one board cell for machine consumption: the entity-kind names
// present, ordered topmost first.
type CellJSON struct {
	X       int      `json:"x"`
	Y       int      `json:"y"`
	Content []string `json:"content"`
}

// Turn status values reported to clients.
const (
	StatusPlaying       = "playing"
	StatusLevelComplete = "level_complete"
	StatusGameComplete  = "game_complete"
)

// InitRequest creates a session from raw source or a named puzzle file.
type InitRequest struct {
	GameSource string `json:"gameSource,omitempty"`
	GameName   string `json:"gameName,omitempty"`
}

type InitResponse struct {
	SessionID   string            `json:"sessionId"`
	Board       string            `json:"board"`
	BoardJSON   []CellJSON        `json:"boardJSON"`
	Level       int               `json:"level"`
	Legend      map[string]string `json:"legend"`
	TotalLevels int               `json:"totalLevels"`
}

type ActionRequest struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
}

type ActionResponse struct {
	Board     string     `json:"board"`
	BoardJSON []CellJSON `json:"boardJSON"`
	Level     int        `json:"level"`
	Message   string     `json:"message"`
	Status    string     `json:"status"`
}

type ObserveResponse struct {
	Board     string            `json:"board"`
	BoardJSON []CellJSON        `json:"boardJSON"`
	Level     int               `json:"level"`
	Legend    map[string]string `json:"legend"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SubMsg (client -> server) subscribes a websocket to a session's frames.
type SubMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"sessionId"`
}

// ObsMsg (server -> client) is one observation frame, pushed on subscribe
// and after every completed turn.
type ObsMsg struct {
	Type      string     `json:"type"`
	Board     string     `json:"board"`
	BoardJSON []CellJSON `json:"boardJSON"`
	Level     int        `json:"level"`
	Message   string     `json:"message,omitempty"`
	Status    string     `json:"status"`
}

// ErrMsg (server -> client) reports a websocket-level failure before close.
type ErrMsg struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
