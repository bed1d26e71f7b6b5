// Command bot drives a puzzle session over the HTTP API: it initializes a
// named puzzle, then plays either a scripted move sequence or a seeded
// random walk until the game completes.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"puzzlewire/internal/protocol"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "server base url")
		game     = flag.String("game", "sokoban-basic", "named puzzle to play")
		moves    = flag.String("moves", "", "comma-separated move script (w/a/s/d/x/z/r); empty for a random walk")
		maxTurns = flag.Int("max_turns", 200, "stop after this many turns")
		seed     = flag.Int64("seed", 1, "random walk seed")
		delay    = flag.Duration("delay", 250*time.Millisecond, "pause between turns")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	client := &http.Client{Timeout: 10 * time.Second}

	var init protocol.InitResponse
	if err := post(client, *baseURL+"/init", protocol.InitRequest{GameName: *game}, &init); err != nil {
		logger.Fatalf("init: %v", err)
	}
	logger.Printf("session %s level %d/%d", init.SessionID, init.Level, init.TotalLevels)
	fmt.Println(init.Board)

	var script []string
	if *moves != "" {
		for _, m := range strings.Split(*moves, ",") {
			if m = strings.TrimSpace(m); m != "" {
				script = append(script, m)
			}
		}
	}
	rng := rand.New(rand.NewSource(*seed))
	walk := []string{"w", "a", "s", "d"}

	for turn := 0; turn < *maxTurns; turn++ {
		var action string
		if turn < len(script) {
			action = script[turn]
		} else if len(script) > 0 {
			logger.Printf("script exhausted after %d turns", len(script))
			return
		} else {
			action = walk[rng.Intn(len(walk))]
		}

		var res protocol.ActionResponse
		if err := post(client, *baseURL+"/action", protocol.ActionRequest{SessionID: init.SessionID, Action: action}, &res); err != nil {
			logger.Fatalf("action %q: %v", action, err)
		}
		logger.Printf("turn %d action=%s level=%d status=%s", turn+1, action, res.Level, res.Status)
		fmt.Println(res.Board)
		if res.Message != "" {
			logger.Printf("message: %s", res.Message)
		}
		if res.Status == protocol.StatusGameComplete {
			logger.Printf("game completed in %d turns", turn+1)
			return
		}
		time.Sleep(*delay)
	}
	logger.Printf("gave up after %d turns", *maxTurns)
}

func post(client *http.Client, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e protocol.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s (%s)", resp.Status, e.Error, e.Code)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
