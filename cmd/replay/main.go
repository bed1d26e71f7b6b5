// Command replay pretty-prints a session's turn transcript
// (transcripts/<session>.jsonl.zst) for debugging and postmortems.
package main

import (
	"flag"
	"fmt"
	"os"

	"puzzlewire/internal/persistence/turnlog"
)

func main() {
	var (
		path    = flag.String("transcript", "", "path to .jsonl.zst transcript")
		boards  = flag.Bool("boards", true, "print the board after each turn")
		fromSeq = flag.Int("from_seq", 0, "start at this turn (inclusive)")
		toSeq   = flag.Int("to_seq", 0, "stop after this turn (0 = end)")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -transcript")
		os.Exit(2)
	}

	recs, err := turnlog.Read(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read transcript:", err)
		os.Exit(1)
	}

	for _, rec := range recs {
		if rec.Seq < *fromSeq {
			continue
		}
		if *toSeq > 0 && rec.Seq > *toSeq {
			break
		}
		fmt.Printf("#%d %s intent=%s status=%s level=%d\n",
			rec.Seq, rec.At.Format("15:04:05.000"), rec.Intent, rec.Status, rec.Level)
		if rec.Message != "" {
			fmt.Printf("  message: %s\n", rec.Message)
		}
		if *boards {
			fmt.Println(rec.Board)
		}
	}
	fmt.Printf("%d turns\n", len(recs))
}
