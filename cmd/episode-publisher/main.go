package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"episode-publisher/internal/config"
	"episode-publisher/internal/extract"
	"episode-publisher/internal/feed"
	"episode-publisher/internal/library"
	"episode-publisher/internal/publisher"
	"episode-publisher/internal/transcribe"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout)
	stop()
	os.Exit(code)
}

// run executes the publisher and returns the process exit code. lookup
// resolves credentials and the env file location.
func run(ctx context.Context, args []string, lookup func(string) string, stdout io.Writer) int {
	logger := log.New(stdout, "episode-publisher ", log.LstdFlags|log.Lmsgprefix)

	if err := config.LoadEnvFile(lookup("PODCAST_ENV_FILE")); err != nil {
		logger.Printf("load env file: %v", err)
		return exitFailed
	}

	opts, err := config.ParseArgs(args)
	if err != nil {
		if config.IsHelp(err) {
			fmt.Fprintln(stdout, err)
			return exitOK
		}
		logger.Printf("%v", err)
		return exitUsage
	}

	cfg, err := config.Resolve(opts)
	if err != nil {
		logger.Printf("configuration: %v", err)
		return exitFailed
	}

	var creds config.Credentials
	if !cfg.DryRun {
		creds, err = config.ResolveCredentials(cfg.Provider, lookup)
		if err != nil {
			logger.Printf("configuration: %v", err)
			return exitFailed
		}
	}

	store := feed.NewStore(cfg.FeedPath)
	if cfg.InitFeed && !cfg.DryRun {
		created, err := store.Init(feed.ChannelMetadata{
			Title:       cfg.Channel.Title,
			Link:        cfg.Channel.Link,
			Description: cfg.Channel.Description,
			Language:    cfg.Channel.Language,
			Author:      cfg.Author,
		}, time.Now())
		if err != nil {
			logger.Printf("initialise feed %s: %v", cfg.FeedPath, err)
			return exitFailed
		}
		if created {
			logger.Printf("created feed %s", cfg.FeedPath)
		}
	}

	if !cfg.DryRun {
		lock, err := store.Lock()
		if err != nil {
			logger.Printf("%v", err)
			return exitFailed
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Printf("error releasing feed lock: %v", err)
			}
		}()
	}

	deps, cleanup, err := buildDependencies(ctx, cfg, creds, logger)
	if err != nil {
		logger.Printf("%v", err)
		return exitFailed
	}
	defer cleanup()

	pub := publisher.New(cfg, deps)
	styled := isTerminal(stdout)
	report := func(summary publisher.Summary) {
		summary.Render(stdout, styled)
	}

	summary, err := pub.Run(ctx)
	report(summary)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return exitOK
		}
		logger.Printf("%v", err)
		return exitFailed
	}

	if !cfg.Watch {
		return exitOK
	}

	watcher, err := library.NewWatcher(pub.Scanner(), cfg.Debounce, logger)
	if err != nil {
		logger.Printf("watch %s: %v", cfg.InputDir, err)
		return exitFailed
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Printf("error closing watcher: %v", err)
		}
	}()

	logger.Printf("watching %s for new episodes", cfg.InputDir)
	if err := pub.Watch(ctx, watcher.Changes(), report); err != nil {
		logger.Printf("%v", err)
		return exitFailed
	}
	logger.Println("shutdown complete")
	return exitOK
}

// buildDependencies wires the remote clients. In dry-run mode no client is
// created since no file is processed.
func buildDependencies(ctx context.Context, cfg config.Config, creds config.Credentials, logger *log.Logger) (publisher.Dependencies, func(), error) {
	deps := publisher.Dependencies{Logger: logger}
	cleanup := func() {}
	if cfg.DryRun {
		return deps, cleanup, nil
	}

	stt := transcribe.NewOpenAI(creds.OpenAIKey, transcribe.Options{
		Model:   cfg.TranscriptionModel,
		BaseURL: cfg.APIBaseURL,
	})
	deps.Transcriber = stt

	if cfg.CachePath != "" {
		cache, err := transcribe.OpenCache(cfg.CachePath)
		if err != nil {
			return deps, cleanup, fmt.Errorf("open transcript cache: %w", err)
		}
		cleanup = func() {
			if err := cache.Close(); err != nil {
				logger.Printf("error closing transcript cache: %v", err)
			}
		}
		deps.Transcriber = transcribe.NewCached(stt, cache, stt.Model(), logger)
	}

	var gen extract.Generator
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := extract.NewGemini(ctx, creds.GeminiKey, extract.Options{Model: cfg.GeminiModel})
		if err != nil {
			cleanup()
			return deps, func() {}, err
		}
		gen = g
	default:
		gen = extract.NewOpenAI(creds.OpenAIKey, extract.Options{
			Model:   cfg.ChatModel,
			BaseURL: cfg.APIBaseURL,
		})
	}
	deps.Extractor = extract.New(gen, cfg.Rich)
	return deps, cleanup, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
