package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"puzzlewire/internal/config"
	"puzzlewire/internal/persistence/indexdb"
	"puzzlewire/internal/persistence/turnlog"
	"puzzlewire/internal/session"
	"puzzlewire/internal/transport/httpapi"
	"puzzlewire/internal/transport/ws"
)

func main() {
	var (
		configPath  = flag.String("config", "./configs/server.yaml", "server config path (optional)")
		addr        = flag.String("addr", "", "http listen address (overrides config)")
		puzzleDir   = flag.String("puzzles", "", "puzzle directory (overrides config)")
		dataDir     = flag.String("data", "", "runtime data directory (overrides config)")
		maxSessions = flag.Int("max_sessions", -1, "max concurrent sessions, 0 for unlimited (overrides config)")
		idleExpiry  = flag.Int("idle_expiry_sec", -1, "evict sessions idle this long, 0 to disable (overrides config)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite session index")
		disableLog  = flag.Bool("disable_turn_log", false, "disable turn transcripts")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load config: %v", err)
		}
		cfg = config.Defaults()
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *puzzleDir != "" {
		cfg.PuzzleDir = *puzzleDir
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *maxSessions >= 0 {
		cfg.MaxSessions = *maxSessions
	}
	if *idleExpiry >= 0 {
		cfg.IdleExpirySec = *idleExpiry
	}
	if *disableDB {
		cfg.DisableDB = true
	}
	if *disableLog {
		cfg.DisableLog = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	var sinks []session.TurnSink
	var transcripts *turnlog.Logger
	if !cfg.DisableLog {
		transcripts = turnlog.New(filepath.Join(cfg.DataDir, "transcripts"), logger)
		defer transcripts.Close()
		sinks = append(sinks, transcripts)
	}

	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "sessions.sqlite"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		sinks = append(sinks, idx)
	}

	store := session.NewStore(session.Options{
		MaxSessions: cfg.MaxSessions,
		IdleExpiry:  cfg.IdleExpiry(),
		Logger:      logger,
		TurnSinks:   sinks,
		OnCreated: func(s *session.Session) {
			if idx != nil {
				idx.RecordSession(s.ID, s.Title, s.TotalLevels(), time.Now())
			}
		},
		OnEvicted: func(s *session.Session) {
			if transcripts != nil {
				transcripts.CloseSession(s.ID)
			}
		},
	})
	go store.Janitor(ctx, 30*time.Second)

	mux := http.NewServeMux()
	httpapi.NewServer(store, cfg.PuzzleDir, logger).Register(mux)
	mux.Handle("/v1/ws", ws.NewServer(store, logger).Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (puzzles=%s data=%s)", cfg.Addr, cfg.PuzzleDir, cfg.DataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
	logger.Printf("shut down")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
