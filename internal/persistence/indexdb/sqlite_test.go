package indexdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"puzzlewire/internal/session"
)

func turn(id string, seq int, status string) session.TurnRecord {
	return session.TurnRecord{
		SessionID: id,
		Seq:       seq,
		Intent:    "right",
		Status:    status,
		Level:     1,
		Message:   "",
		Board:     "#P.#",
		At:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func waitForTurns(t *testing.T, idx *SQLiteIndex, id string, want int) []TurnSummary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := idx.Turns(context.Background(), id, 0)
		if err != nil {
			t.Fatalf("turns: %v", err)
		}
		if len(got) >= want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("indexed %d turns, want %d", len(got), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSQLiteIndex_RecordAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.RecordSession("s1", "Mini", 2, time.Now())
	idx.RecordTurn(turn("s1", 1, "playing"))
	idx.RecordTurn(turn("s1", 2, "game_complete"))
	idx.RecordTurn(turn("other", 1, "playing"))

	got := waitForTurns(t, idx, "s1", 2)
	if got[0].Seq != 1 || got[0].Intent != "right" || got[0].Status != "playing" {
		t.Fatalf("turn 1: %+v", got[0])
	}
	if got[1].Seq != 2 || got[1].Status != "game_complete" {
		t.Fatalf("turn 2: %+v", got[1])
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close drains the queue and is idempotent; recording afterwards is a
	// no-op rather than a panic.
	idx.RecordTurn(turn("s1", 3, "playing"))
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSQLiteIndex_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx.RecordSession("s1", "Mini", 1, time.Now())
	idx.RecordTurn(turn("s1", 1, "playing"))
	waitForTurns(t, idx, "s1", 1)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	got, err := again.Turns(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("turns after reopen: %v", err)
	}
	if len(got) != 1 || got[0].Seq != 1 {
		t.Fatalf("persisted turns: %+v", got)
	}
}

func TestSQLiteIndex_RecordDuringClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				idx.RecordTurn(turn("s1", g*200+i, "playing"))
			}
		}(g)
	}
	close(start)
	// Closing while recorders are in flight must not panic; late records
	// are silently dropped.
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
