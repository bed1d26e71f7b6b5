package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"puzzlewire/internal/protocol"
	"puzzlewire/internal/session"
)

const miniSrc = `title Mini

OBJECTS
Background = .
Wall = # wall
Player = P player
Crate = * push
Target = O

WIN
all Crate on Target

LEVELS
#####
#P*O#
#####
`

const twoLevelSrc = `title Two Levels

OBJECTS
Background = .
Wall = # wall
Player = P player
Crate = * push
Target = O

WIN
all Crate on Target

LEVELS
#P*O#

message Almost there.

#P*O#
`

type fixture struct {
	store  *session.Store
	srv    *httptest.Server
	client *http.Client
}

func newFixture(t *testing.T, puzzles map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, src := range puzzles {
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(src), 0o644); err != nil {
			t.Fatalf("write puzzle: %v", err)
		}
	}
	logger := log.New(io.Discard, "", 0)
	store := session.NewStore(session.Options{Logger: logger})
	mux := http.NewServeMux()
	NewServer(store, dir, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{store: store, srv: srv, client: srv.Client()}
}

func (f *fixture) post(t *testing.T, path string, body any, out any) (int, protocol.ErrorResponse) {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := f.client.Post(f.srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		var eresp protocol.ErrorResponse
		if err := json.Unmarshal(raw, &eresp); err != nil {
			t.Fatalf("POST %s: status %d with unparseable body %q", path, resp.StatusCode, raw)
		}
		return resp.StatusCode, eresp
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("POST %s: bad response %q: %v", path, raw, err)
	}
	return resp.StatusCode, protocol.ErrorResponse{}
}

func (f *fixture) initSource(t *testing.T, src string) protocol.InitResponse {
	t.Helper()
	var out protocol.InitResponse
	code, eresp := f.post(t, "/init", protocol.InitRequest{GameSource: src}, &out)
	if code != http.StatusOK {
		t.Fatalf("init: %d %+v", code, eresp)
	}
	return out
}

func TestInit_FromSource(t *testing.T) {
	f := newFixture(t, nil)

	out := f.initSource(t, miniSrc)
	if out.SessionID == "" {
		t.Fatalf("missing sessionId")
	}
	if out.Board != "#####\n#P*O#\n#####" {
		t.Fatalf("board:\n%s", out.Board)
	}
	if out.Level != 1 || out.TotalLevels != 1 {
		t.Fatalf("levels: %d/%d", out.Level, out.TotalLevels)
	}
	if out.Legend["P"] != "Player" || out.Legend["#"] != "Wall" {
		t.Fatalf("legend: %v", out.Legend)
	}
	if len(out.BoardJSON) != 15 {
		t.Fatalf("boardJSON cells = %d", len(out.BoardJSON))
	}
	if f.store.Len() != 1 {
		t.Fatalf("store len = %d", f.store.Len())
	}
}

func TestInit_CRLFSourceAccepted(t *testing.T) {
	f := newFixture(t, nil)
	crlf := strings.ReplaceAll(miniSrc, "\n", "\r\n")
	out := f.initSource(t, crlf)
	if out.Board != "#####\n#P*O#\n#####" {
		t.Fatalf("board after CRLF normalization:\n%s", out.Board)
	}
}

func TestInit_Validation(t *testing.T) {
	f := newFixture(t, map[string]string{"mini": miniSrc})

	var out protocol.InitResponse
	code, eresp := f.post(t, "/init", protocol.InitRequest{}, &out)
	if code != http.StatusBadRequest || eresp.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("empty init: %d %+v", code, eresp)
	}

	code, eresp = f.post(t, "/init", protocol.InitRequest{GameName: "../etc/passwd"}, &out)
	if code != http.StatusBadRequest || eresp.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("traversal name: %d %+v", code, eresp)
	}

	code, eresp = f.post(t, "/init", protocol.InitRequest{GameName: "no-such-puzzle"}, &out)
	if code != http.StatusNotFound || eresp.Code != protocol.ErrPuzzleNotFound {
		t.Fatalf("unknown name: %d %+v", code, eresp)
	}

	code, eresp = f.post(t, "/init", protocol.InitRequest{GameSource: "OBJECTS\nA = a fly\nLEVELS\na\n"}, &out)
	if code != http.StatusInternalServerError || eresp.Code != protocol.ErrParseFailed {
		t.Fatalf("parse failure: %d %+v", code, eresp)
	}
	if f.store.Len() != 0 {
		t.Fatalf("failed inits must not create sessions")
	}

	resp, err := f.client.Get(f.srv.URL + "/init")
	if err != nil {
		t.Fatalf("GET /init: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /init: %d", resp.StatusCode)
	}
}

func TestInit_NamedPuzzle(t *testing.T) {
	f := newFixture(t, map[string]string{"mini": miniSrc})

	var out protocol.InitResponse
	code, eresp := f.post(t, "/init", protocol.InitRequest{GameName: "mini"}, &out)
	if code != http.StatusOK {
		t.Fatalf("init by name: %d %+v", code, eresp)
	}
	if out.Board != "#####\n#P*O#\n#####" {
		t.Fatalf("board:\n%s", out.Board)
	}
}

func TestAction_WinFlow(t *testing.T) {
	f := newFixture(t, nil)
	init := f.initSource(t, miniSrc)

	var out protocol.ActionResponse
	code, eresp := f.post(t, "/action", protocol.ActionRequest{SessionID: init.SessionID, Action: "d"}, &out)
	if code != http.StatusOK {
		t.Fatalf("action: %d %+v", code, eresp)
	}
	if out.Status != protocol.StatusGameComplete || out.Message != "You win!" {
		t.Fatalf("win turn: %+v", out)
	}

	// Further actions keep reporting the completed game.
	code, _ = f.post(t, "/action", protocol.ActionRequest{SessionID: init.SessionID, Action: "left"}, &out)
	if code != http.StatusOK || out.Status != protocol.StatusGameComplete {
		t.Fatalf("post-win turn: %d %+v", code, out)
	}
}

func TestAction_LevelAndMessageFlow(t *testing.T) {
	f := newFixture(t, nil)
	init := f.initSource(t, twoLevelSrc)
	if init.TotalLevels != 2 {
		t.Fatalf("totalLevels = %d", init.TotalLevels)
	}

	var out protocol.ActionResponse
	code, eresp := f.post(t, "/action", protocol.ActionRequest{SessionID: init.SessionID, Action: "right"}, &out)
	if code != http.StatusOK {
		t.Fatalf("action: %d %+v", code, eresp)
	}
	if out.Status != protocol.StatusLevelComplete {
		t.Fatalf("status = %q", out.Status)
	}
	if !strings.Contains(out.Message, "Almost there.") {
		t.Fatalf("interstitial text missing from %q", out.Message)
	}
	// The board now shows the interstitial; acknowledging it loads level 2.
	if out.Board != "Almost there." {
		t.Fatalf("message board: %q", out.Board)
	}

	code, _ = f.post(t, "/action", protocol.ActionRequest{SessionID: init.SessionID, Action: "action"}, &out)
	if code != http.StatusOK {
		t.Fatalf("ack action: %d", code)
	}
	if out.Level != 2 || out.Board != "#P*O#" {
		t.Fatalf("after ack: level=%d board=%q", out.Level, out.Board)
	}

	code, _ = f.post(t, "/action", protocol.ActionRequest{SessionID: init.SessionID, Action: "right"}, &out)
	if code != http.StatusOK || out.Status != protocol.StatusGameComplete {
		t.Fatalf("final turn: %d %+v", code, out)
	}
}

func TestAction_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)

	var out protocol.ActionResponse
	code, eresp := f.post(t, "/action", protocol.ActionRequest{SessionID: "nope", Action: "up"}, &out)
	if code != http.StatusNotFound || eresp.Code != protocol.ErrSessionNotFound {
		t.Fatalf("unknown session: %d %+v", code, eresp)
	}
	if f.store.Len() != 0 {
		t.Fatalf("action must never create a session")
	}
}

func TestObserve(t *testing.T) {
	f := newFixture(t, nil)
	init := f.initSource(t, miniSrc)

	resp, err := f.client.Get(f.srv.URL + "/observe?sessionId=" + init.SessionID)
	if err != nil {
		t.Fatalf("GET /observe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("observe: %d", resp.StatusCode)
	}
	var out protocol.ObserveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Board != init.Board || out.Level != 1 {
		t.Fatalf("observe: %+v", out)
	}

	bad, err := f.client.Get(f.srv.URL + "/observe?sessionId=missing")
	if err != nil {
		t.Fatalf("GET /observe: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown observe: %d", bad.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.client.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
}
