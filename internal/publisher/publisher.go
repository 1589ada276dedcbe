package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"episode-publisher/internal/config"
	"episode-publisher/internal/feed"
	"episode-publisher/internal/library"
	"episode-publisher/internal/metadata"
	"episode-publisher/internal/models"
	"episode-publisher/internal/transcribe"
)

// MetadataExtractor turns a transcript into episode metadata.
type MetadataExtractor interface {
	Extract(ctx context.Context, transcript string) (models.Metadata, error)
}

// Dependencies are the collaborators a Publisher drives.
type Dependencies struct {
	Transcriber transcribe.Transcriber
	Extractor   MetadataExtractor
	Logger      *log.Logger
	// Now defaults to time.Now and stamps pubDate.
	Now func() time.Time
}

// Publisher runs publishing passes: scan, filter, then transcribe, extract,
// probe, build and persist each new file before moving to the next.
type Publisher struct {
	cfg         config.Config
	scanner     *library.Scanner
	store       *feed.Store
	transcriber transcribe.Transcriber
	extractor   MetadataExtractor
	logger      *log.Logger
	now         func() time.Time
}

// New creates a Publisher for cfg.
func New(cfg config.Config, deps Dependencies) *Publisher {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Publisher{
		cfg:         cfg,
		scanner:     library.NewScanner(cfg.InputDir, cfg.AudioExtension),
		store:       feed.NewStore(cfg.FeedPath),
		transcriber: deps.Transcriber,
		extractor:   deps.Extractor,
		logger:      logger,
		now:         now,
	}
}

// Scanner returns the directory scanner used by each pass.
func (p *Publisher) Scanner() *library.Scanner {
	return p.scanner
}

// Run executes one pass. Per-file failures are recorded in the summary and
// the pass continues; a feed or directory I/O failure or a cancelled context
// ends the pass with an error.
func (p *Publisher) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	doc, err := p.store.Load()
	if err != nil {
		return summary, fmt.Errorf("%w: load %s: %v", ErrIO, p.store.Path(), err)
	}

	for candidate, err := range p.scanner.Scan() {
		if err != nil {
			return summary, fmt.Errorf("%w: scan %s: %v", ErrIO, p.scanner.Root(), err)
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		guid := candidate.Filename
		if doc.Contains(guid) {
			p.logger.Printf("Skipping %s - already in feed.", candidate.Filename)
			summary.add(models.FileResult{Filename: candidate.Filename, Status: models.StatusSkipped})
			continue
		}

		if p.cfg.DryRun {
			p.logger.Printf("Would publish %s (%d bytes)", candidate.Filename, candidate.FilesizeBytes)
			summary.add(models.FileResult{Filename: candidate.Filename, Status: models.StatusPending})
			continue
		}

		result, err := p.publish(ctx, doc, candidate)
		summary.add(result)
		if err != nil {
			if IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			p.logger.Printf("Failed to publish %s: %v", candidate.Filename, err)
		}
	}

	if summary.Total() == 0 {
		p.logger.Printf("No %s files found in %s.", p.cfg.AudioExtension, p.scanner.Root())
	} else if summary.Count(models.StatusAdded) == 0 && summary.Count(models.StatusFailed) == 0 && !p.cfg.DryRun {
		p.logger.Printf("No new episodes to publish.")
	}
	return summary, nil
}

// Watch runs a pass every time changes delivers, until ctx is done. A fatal
// pass error stops watching; report receives every completed pass.
func (p *Publisher) Watch(ctx context.Context, changes <-chan struct{}, report func(Summary)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			summary, err := p.Run(ctx)
			if report != nil {
				report(summary)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, doc *feed.Document, candidate models.Candidate) (models.FileResult, error) {
	result := models.FileResult{Filename: candidate.Filename, Status: models.StatusFailed}
	fail := func(err error) (models.FileResult, error) {
		result.Err = err
		return result, err
	}

	audio, err := os.ReadFile(candidate.Path)
	if err != nil {
		return fail(fmt.Errorf("%w: read %s: %v", ErrTranscription, candidate.Filename, err))
	}

	p.logger.Printf("Transcribing %s...", candidate.Filename)
	transcript, err := p.transcriber.Transcribe(ctx, candidate.Filename, bytes.NewReader(audio))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrTranscription, err))
	}

	p.logger.Printf("Generating episode metadata...")
	md, err := p.extractor.Extract(ctx, transcript)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrExtraction, err))
	}

	tags := metadata.ReadTags(candidate.Path)
	title := strings.TrimSpace(md.Title)
	if title == "" {
		title = tags.Title
	}
	if title == "" {
		title = strings.TrimSuffix(candidate.Filename, filepath.Ext(candidate.Filename))
	}

	author := p.cfg.Author
	if author == "" {
		author = tags.Artist
	}

	episode := models.Episode{
		GUID:          candidate.Filename,
		Filename:      candidate.Filename,
		Title:         title,
		Author:        author,
		FilesizeBytes: int64(len(audio)),
		PublishedAt:   p.now().UTC(),
	}

	if p.cfg.Rich {
		episode.Description = md.Description
		episode.Tags = md.Tags
		if seconds, err := metadata.ProbeDuration(candidate.Path); err != nil {
			p.logger.Printf("Warning: %v; publishing %s without duration", fmt.Errorf("%w: %v", ErrDecode, err), candidate.Filename)
		} else {
			episode.DurationSeconds = &seconds
		}
	}

	item, err := feed.BuildItem(episode, feed.ItemOptions{
		BaseURL:   p.cfg.BaseURL,
		MediaPath: p.cfg.MediaPath,
		Author:    author,
	})
	if err != nil {
		return fail(err)
	}
	if err := doc.Prepend(item); err != nil {
		return fail(err)
	}
	if err := p.store.Save(doc); err != nil {
		return fail(fmt.Errorf("%w: save %s: %v", ErrIO, p.store.Path(), err))
	}

	p.logger.Printf("✅ Added %s to feed.", title)
	result.Status = models.StatusAdded
	result.Title = title
	return result, nil
}
