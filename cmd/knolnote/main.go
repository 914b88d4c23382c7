package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/knolnote/internal/ai"
	"github.com/conorfennell/knolnote/internal/config"
	"github.com/conorfennell/knolnote/internal/cron"
	"github.com/conorfennell/knolnote/internal/knol"
	"github.com/conorfennell/knolnote/internal/outline"
	"github.com/conorfennell/knolnote/internal/repository"
	"github.com/conorfennell/knolnote/internal/storage"
	"github.com/conorfennell/knolnote/internal/store"
	knolsync "github.com/conorfennell/knolnote/internal/sync"
	"github.com/conorfennell/knolnote/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "knolnote: %v\n", err)
		config.FlagSet().PrintDefaults()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("knolnote failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.DB)

	st, err := store.New(db, logger)
	if err != nil {
		return err
	}
	syncer := knolsync.New(db, st, cfg.ReposDir, logger).WithProgress(os.Stderr)

	acted := false
	if cfg.AddSource != "" {
		acted = true
		source, err := syncer.AddSource(cfg.AddSource)
		if err != nil {
			return fmt.Errorf("failed to add source: %w", err)
		}
		if _, err := syncer.Run(ctx, source); err != nil {
			return fmt.Errorf("failed to sync new source: %w", err)
		}
	}

	if cfg.Sync {
		acted = true
		if _, err := syncer.RunAll(ctx); err != nil {
			return err
		}
	}

	var gen ai.Generator
	if cfg.AI.APIKey != "" {
		gen, err = ai.New(ctx, cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			return fmt.Errorf("failed to create generator: %w", err)
		}
		defer gen.Close()
	}

	if cfg.Generate != "" {
		acted = true
		if err := generate(ctx, cfg, st, gen, logger); err != nil {
			return err
		}
	}

	if cfg.Serve {
		return serve(ctx, cfg, st, db, syncer, gen, logger)
	}

	if !acted {
		report(st, cfg.LeechThreshold)
	}
	return nil
}

func generate(ctx context.Context, cfg *config.Config, st *store.Store, gen ai.Generator, logger *slog.Logger) error {
	if gen == nil {
		return errors.New("generation needs an API key, set --ai-key or KNOLNOTE_AI__API_KEY")
	}
	doc, err := ai.GenerateDocument(ctx, gen, knol.DocumentID(0, "generated/"+cfg.Generate), cfg.Generate)
	if err != nil {
		return err
	}
	if cfg.Out != "" {
		if err := outline.WriteFile(cfg.Out, doc); err != nil {
			return fmt.Errorf("failed to write outline: %w", err)
		}
		doc.Path = cfg.Out
	}
	if err := st.Put(doc); err != nil {
		return err
	}
	logger.Info("document generated", "topic", cfg.Generate, "blocks", len(doc.Blocks), "out", cfg.Out)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, st *store.Store, db *storage.DB, syncer *knolsync.Syncer, gen ai.Generator, logger *slog.Logger) error {
	srv := web.NewServer(st, web.Options{
		LeechThreshold: cfg.LeechThreshold,
		FailDelay:      cfg.FailDelay,
		FrontDelay:     cfg.AutoPlay.Front,
		BackDelay:      cfg.AutoPlay.Back,
		Sources:        syncer,
		Lister:         db,
		Generator:      gen,
		Logger:         logger,
	})
	defer srv.Close()

	if cfg.SyncInterval > 0 {
		sched, err := cron.New(cfg.SyncInterval, func(ctx context.Context) error {
			_, err := syncer.RunAll(ctx)
			return err
		}, logger)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// report prints the card counts of every bucket.
func report(st *store.Store, leechThreshold int) {
	docs := st.Get()
	counts := repository.Classify(repository.DeriveAll(docs), leechThreshold, "").Counts()

	fmt.Printf("Found %d documents, %d cards.\n", len(docs), counts.All)
	fmt.Printf("  enabled:    %d\n", counts.Enabled)
	fmt.Printf("  new:        %d\n", counts.New)
	fmt.Printf("  struggling: %d\n", counts.Struggling)
	fmt.Printf("  leech:      %d\n", counts.Leech)
	fmt.Printf("  disabled:   %d\n", counts.Disabled)
}
